package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/odontoapp/booking-api/internal/config"
)

type Service interface {
	SendResetCode(ctx context.Context, to, name, code string) error
}

type service struct {
	dialer *gomail.Dialer
	from   string
}

func NewService(cfg config.SMTPConfig) Service {
	return &service{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		from:   cfg.From,
	}
}

func (s *service) SendResetCode(_ context.Context, to, name, code string) error {
	body := fmt.Sprintf(
		"Hi %s,\n\nYour password recovery code is %s. It expires in 10 minutes.\n\nIf you did not request this, ignore this message.",
		name, code,
	)
	return s.send(to, "Password recovery code", body)
}

func (s *service) send(to, subject, content string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", content)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}

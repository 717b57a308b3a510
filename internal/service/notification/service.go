package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/odontoapp/booking-api/internal/model"
	"github.com/odontoapp/booking-api/internal/repository"
	"github.com/odontoapp/booking-api/pkg/logger"
	"github.com/odontoapp/booking-api/pkg/push"
)

const (
	targetCacheTTL     = 5 * time.Minute
	targetCacheCleanup = 10 * time.Minute
)

// Service delivers patient-facing pushes for the booking core. Delivery is
// best-effort everywhere: a false return with nil error means the patient
// is unreachable or opted out, not that anything went wrong.
type Service interface {
	SendReminder(ctx context.Context, slot *model.Slot) (bool, error)
	NotifyCanceledByProvider(ctx context.Context, slot *model.Slot) (bool, error)
}

type service struct {
	users      repository.UserRepository
	dispatcher push.Dispatcher
	targets    *gocache.Cache
	logger     *logger.Logger
}

func NewService(users repository.UserRepository, dispatcher push.Dispatcher, logger *logger.Logger) Service {
	return &service{
		users:      users,
		dispatcher: dispatcher,
		targets:    gocache.New(targetCacheTTL, targetCacheCleanup),
		logger:     logger,
	}
}

func (s *service) SendReminder(ctx context.Context, slot *model.Slot) (bool, error) {
	if slot.PatientID == nil {
		return false, nil
	}

	target, err := s.target(ctx, *slot.PatientID)
	if err != nil {
		return false, fmt.Errorf("failed to look up reminder target: %w", err)
	}
	if !target.Reachable() {
		return false, nil
	}

	providerName := s.providerName(ctx, slot)
	msg := &model.PushMessage{
		To:    *target.PushToken,
		Title: "Appointment reminder",
		Body:  fmt.Sprintf("Your appointment with %s is on %s at %s.", providerName, slot.Date, slot.Time),
		Data:  map[string]string{"appointment_id": slot.ID.String()},
	}

	if err := s.dispatcher.Send(ctx, msg); err != nil {
		return false, fmt.Errorf("failed to dispatch reminder: %w", err)
	}
	return true, nil
}

func (s *service) NotifyCanceledByProvider(ctx context.Context, slot *model.Slot) (bool, error) {
	if slot.PatientID == nil {
		return false, nil
	}

	target, err := s.target(ctx, *slot.PatientID)
	if err != nil {
		return false, fmt.Errorf("failed to look up cancellation target: %w", err)
	}
	if !target.Reachable() {
		return false, nil
	}

	providerName := s.providerName(ctx, slot)
	msg := &model.PushMessage{
		To:    *target.PushToken,
		Title: "Appointment canceled",
		Body:  fmt.Sprintf("Your appointment with %s on %s at %s was canceled by the provider.", providerName, slot.Date, slot.Time),
		Data:  map[string]string{"appointment_id": slot.ID.String()},
	}

	if err := s.dispatcher.Send(ctx, msg); err != nil {
		return false, fmt.Errorf("failed to dispatch cancellation notice: %w", err)
	}
	return true, nil
}

// target resolves the patient's push token and preferences, cached briefly
// so an hourly sweep over many appointments does not hammer the users table.
func (s *service) target(ctx context.Context, userID uuid.UUID) (*model.NotificationTarget, error) {
	key := userID.String()
	if cached, ok := s.targets.Get(key); ok {
		return cached.(*model.NotificationTarget), nil
	}

	target, err := s.users.GetNotificationTarget(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.targets.Set(key, target, gocache.DefaultExpiration)
	return target, nil
}

func (s *service) providerName(ctx context.Context, slot *model.Slot) string {
	if slot.ProviderName != nil && *slot.ProviderName != "" {
		return *slot.ProviderName
	}
	if target, err := s.target(ctx, slot.ProviderID); err == nil && target.Name != "" {
		return target.Name
	}
	return "your provider"
}

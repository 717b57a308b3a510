package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/odontoapp/booking-api/internal/email"
	"github.com/odontoapp/booking-api/internal/model"
	"github.com/odontoapp/booking-api/internal/repository"
	pkgauth "github.com/odontoapp/booking-api/pkg/auth"
	apperrors "github.com/odontoapp/booking-api/pkg/errors"
	"github.com/odontoapp/booking-api/pkg/logger"
	"github.com/odontoapp/booking-api/pkg/security"
)

const (
	bcryptCost       = 12
	resetCodeExpiry  = 10 * time.Minute
	resetTokenExpiry = 5 * time.Minute
)

type Service struct {
	userRepo repository.UserRepository
	jwtSvc   pkgauth.JWTService
	emailSvc email.Service
	hasher   security.PasswordHasher
	logger   *logger.Logger
}

func NewService(userRepo repository.UserRepository, jwtSvc pkgauth.JWTService, emailSvc email.Service, logger *logger.Logger) *Service {
	return &Service{
		userRepo: userRepo,
		jwtSvc:   jwtSvc,
		emailSvc: emailSvc,
		hasher:   security.NewBcryptHasher(bcryptCost),
		logger:   logger,
	}
}

func (s *Service) Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	role, err := model.ParseRole(req.Role)
	if err != nil {
		return nil, apperrors.BadRequest("account type must be provider or patient", err)
	}

	if existing, _ := s.userRepo.GetByEmail(ctx, req.Email); existing != nil {
		return nil, apperrors.Conflict("email already registered", nil)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to hash password: %w", err))
	}

	user := &model.User{
		Name:             req.Name,
		Email:            req.Email,
		PasswordHash:     hash,
		Role:             role,
		Document:         req.Document,
		Phone:            req.Phone,
		RemindersEnabled: true,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.Conflict("email already registered", err)
		}
		return nil, apperrors.Internal(err)
	}

	return user, nil
}

func (s *Service) Login(ctx context.Context, req *model.LoginRequest) (*model.TokenResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, apperrors.Unauthorized(fmt.Errorf("invalid credentials"))
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		return nil, apperrors.Unauthorized(fmt.Errorf("invalid credentials"))
	}

	token, err := s.jwtSvc.GenerateAccessToken(user)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to generate token: %w", err))
	}

	return &model.TokenResponse{AccessToken: token}, nil
}

func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	user, err := s.userRepo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("user", err)
		}
		return nil, apperrors.Internal(err)
	}
	return user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, req *model.UpdateProfileRequest) (*model.User, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if req.PushToken != nil {
		user.PushToken = req.PushToken
	}
	if req.RemindersEnabled != nil {
		user.RemindersEnabled = *req.RemindersEnabled
	}

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return nil, apperrors.Internal(err)
	}
	return user, nil
}

func (s *Service) ListProviders(ctx context.Context) ([]*model.ProviderSummary, error) {
	providers, err := s.userRepo.ListProviders(ctx)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return providers, nil
}

// ForgotPassword emails a short-lived 6-digit recovery code. The response
// is identical whether or not the account exists.
func (s *Service) ForgotPassword(ctx context.Context, emailAddr string) error {
	user, err := s.userRepo.GetByEmail(ctx, emailAddr)
	if err != nil {
		return nil
	}

	code, err := generateCode()
	if err != nil {
		return apperrors.Internal(err)
	}

	codeHash, err := s.hasher.CodeHash(code)
	if err != nil {
		return apperrors.Internal(err)
	}

	if err := s.userRepo.StoreResetCode(ctx, user.ID, codeHash, time.Now().Add(resetCodeExpiry)); err != nil {
		return apperrors.Internal(err)
	}

	if err := s.emailSvc.SendResetCode(ctx, user.Email, user.Name, code); err != nil {
		s.logger.Error(err, "failed to send recovery code", "email", user.Email)
	}
	return nil
}

func (s *Service) VerifyResetCode(ctx context.Context, emailAddr, code string) (string, error) {
	user, err := s.userRepo.GetByEmail(ctx, emailAddr)
	if err != nil {
		return "", apperrors.BadRequest("invalid or expired code", nil)
	}

	if user.ResetCodeHash == nil || user.ResetCodeExpires == nil || time.Now().After(*user.ResetCodeExpires) {
		return "", apperrors.BadRequest("invalid or expired code", nil)
	}

	if err := s.hasher.Compare(*user.ResetCodeHash, code); err != nil {
		return "", apperrors.BadRequest("incorrect code", nil)
	}

	// The code is single-use: once exchanged for a reset token it must
	// stop working, even before the password is changed.
	if err := s.userRepo.ClearResetCode(ctx, user.ID); err != nil {
		return "", apperrors.Internal(err)
	}

	token, err := s.jwtSvc.GenerateResetToken(user.ID, resetTokenExpiry)
	if err != nil {
		return "", apperrors.Internal(err)
	}
	return token, nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	userID, err := s.jwtSvc.ValidateResetToken(token)
	if err != nil {
		return apperrors.Unauthorized(err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperrors.Internal(err)
	}

	if err := s.userRepo.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("user", err)
		}
		return apperrors.Internal(err)
	}
	return nil
}

func (s *Service) ValidateToken(_ context.Context, token string) (*model.TokenClaims, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	return claims, nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate recovery code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

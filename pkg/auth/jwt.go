package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/odontoapp/booking-api/internal/config"
	"github.com/odontoapp/booking-api/internal/model"
)

type JWTService interface {
	GenerateAccessToken(user *model.User) (string, error)
	GenerateResetToken(userID uuid.UUID, ttl time.Duration) (string, error)
	ValidateToken(token string) (*model.TokenClaims, error)
	ValidateResetToken(token string) (uuid.UUID, error)
}

type jwtService struct {
	secret []byte
	expiry time.Duration
}

func NewJWTService(cfg config.JWTConfig) JWTService {
	expiry := time.Duration(cfg.ExpiryHours) * time.Hour
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &jwtService{
		secret: []byte(cfg.Secret),
		expiry: expiry,
	}
}

func (s *jwtService) GenerateAccessToken(user *model.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   user.ID.String(),
		"role":  string(user.Role),
		"name":  user.Name,
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(s.expiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *jwtService) GenerateResetToken(userID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID.String(),
		"scope": "password_reset",
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *jwtService) ValidateToken(tokenString string) (*model.TokenClaims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}

	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID in token")
	}

	rawRole, _ := claims["role"].(string)
	role, err := model.ParseRole(rawRole)
	if err != nil {
		return nil, fmt.Errorf("invalid role in token: %w", err)
	}

	name, _ := claims["name"].(string)
	email, _ := claims["email"].(string)

	return &model.TokenClaims{
		UserID: userID,
		Role:   role,
		Name:   name,
		Email:  email,
	}, nil
}

func (s *jwtService) ValidateResetToken(tokenString string) (uuid.UUID, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return uuid.Nil, err
	}

	if scope, _ := claims["scope"].(string); scope != "password_reset" {
		return uuid.Nil, fmt.Errorf("token is not a reset token")
	}

	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user ID in token")
	}
	return userID, nil
}

func (s *jwtService) parse(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

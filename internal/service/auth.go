package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sakif/snipspace/internal/auth"
	"github.com/sakif/snipspace/internal/model"
)

// AuthService turns credentials into tokens:
//
//	UserHandler (HTTP) → AuthService → UserService (accounts)
//	                                 ↘ TokenService (JWT)
//
// It does not set cookies or read requests; that stays in the handler.
type AuthService struct {
	users  *UserService
	tokens *auth.TokenService
	logger *zap.Logger
}

func NewAuthService(users *UserService, tokens *auth.TokenService, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{users: users, tokens: tokens, logger: logger}
}

// AuthResult bundles the user and the issued token so the handler can
// respond in one step.
type AuthResult struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// Signup creates the account (and its root folder) and logs it in.
func (s *AuthService) Signup(ctx context.Context, email, password string) (*AuthResult, error) {
	u, err := s.users.Create(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.issue(u)
}

// Login checks the credentials and issues a fresh token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	u, err := s.users.CheckCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user logged in", zap.String("userId", u.ID))
	return s.issue(u)
}

// ValidateToken returns the user id a token was issued for.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}

func (s *AuthService) issue(u *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(u.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", u.ID, err)
	}
	return &AuthResult{User: u, Token: token}, nil
}

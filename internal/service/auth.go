package service

import (
	"context"
	"fmt"
	"strings"

	"realtime_chat/internal/config"
	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/jwt"
	"realtime_chat/pkg/logger"
)

// AuthService проверяет access token, выданный внешним сервисом
// авторизации. Выдача токенов здесь не выполняется.
type AuthService interface {
	Authenticate(ctx context.Context, token string) (domain.Identity, error)
}

type authService struct {
	jwtCfg config.JWTConfig
	log    logger.Logger
}

func NewAuthService(jwtCfg config.JWTConfig, log logger.Logger) AuthService {
	return &authService{
		jwtCfg: jwtCfg,
		log:    log,
	}
}

func (s *authService) Authenticate(ctx context.Context, token string) (domain.Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return domain.Identity{}, fmt.Errorf("missing token: %w", apperrors.ErrUnauthorized)
	}

	claims, err := jwt.ValidateToken(token, s.jwtCfg.AccessSecret)
	if err != nil {
		s.log.Debug("Token validation failed", "error", err)
		return domain.Identity{}, err
	}
	if s.jwtCfg.Issuer != "" && claims.Issuer != "" && claims.Issuer != s.jwtCfg.Issuer {
		return domain.Identity{}, fmt.Errorf("unexpected issuer %q: %w", claims.Issuer, apperrors.ErrInvalidToken)
	}

	// Отображаемое имя: display_name, затем username, затем id
	displayName := claims.DisplayName
	if displayName == "" {
		displayName = claims.Username
	}
	if displayName == "" {
		displayName = claims.UserID
	}

	username := claims.Username
	if username == "" {
		username = displayName
	}

	return domain.Identity{
		UserID:   claims.UserID,
		Username: username,
		Profile: domain.Profile{
			DisplayName: displayName,
			Avatar:      claims.Avatar,
		},
	}, nil
}

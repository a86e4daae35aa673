package service

import (
	"context"

	"realtime_chat/internal/config"
	"realtime_chat/internal/domain"
	"realtime_chat/internal/repository"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

// PresenceService хранит онлайн-статус пользователя. Соединения считаются
// в хранилище состояния, поэтому учет общий для всех узлов шлюза.
type PresenceService interface {
	SetOnline(ctx context.Context, userID string, profile domain.Profile) (*domain.Presence, error)
	SetOffline(ctx context.Context, userID string) (*domain.Presence, error)
	// Connect учитывает соединение connID и переводит пользователя в онлайн
	Connect(ctx context.Context, userID, connID string, profile domain.Profile) (*domain.Presence, error)
	// Disconnect возвращает true, если закрыто последнее соединение пользователя
	Disconnect(ctx context.Context, userID string, connIDs ...string) (bool, error)
	GetOnlineUsers(ctx context.Context, limit int) ([]*domain.Presence, error)
	GetPresence(ctx context.Context, userID string) (*domain.Presence, error)
}

type presenceService struct {
	presenceRepo repository.PresenceRepository
	maxPageSize  int
	log          logger.Logger
}

func NewPresenceService(presenceRepo repository.PresenceRepository, cfg config.ChatConfig, log logger.Logger) PresenceService {
	maxPageSize := cfg.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = repository.DefaultRetentionCap
	}
	return &presenceService{
		presenceRepo: presenceRepo,
		maxPageSize:  maxPageSize,
		log:          log,
	}
}

func (s *presenceService) SetOnline(ctx context.Context, userID string, profile domain.Profile) (*domain.Presence, error) {
	presence, err := s.presenceRepo.SetOnline(ctx, userID, profile)
	if err != nil {
		return nil, err
	}
	s.log.Debug("User online", "user_id", userID)
	return presence, nil
}

func (s *presenceService) SetOffline(ctx context.Context, userID string) (*domain.Presence, error) {
	presence, err := s.presenceRepo.SetOffline(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.log.Debug("User offline", "user_id", userID)
	return presence, nil
}

func (s *presenceService) Connect(ctx context.Context, userID, connID string, profile domain.Profile) (*domain.Presence, error) {
	presence, err := s.presenceRepo.Connect(ctx, userID, connID, profile)
	if err != nil {
		return nil, err
	}
	s.log.Debug("User connection registered", "user_id", userID, "conn_id", connID)
	return presence, nil
}

func (s *presenceService) Disconnect(ctx context.Context, userID string, connIDs ...string) (bool, error) {
	wentOffline, err := s.presenceRepo.Disconnect(ctx, userID, connIDs...)
	if err != nil {
		return false, err
	}
	if wentOffline {
		s.log.Debug("User offline", "user_id", userID)
	}
	return wentOffline, nil
}

func (s *presenceService) GetOnlineUsers(ctx context.Context, limit int) ([]*domain.Presence, error) {
	if limit <= 0 {
		return nil, apperrors.ErrInvalidPagination
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}
	return s.presenceRepo.ListOnline(ctx, limit)
}

func (s *presenceService) GetPresence(ctx context.Context, userID string) (*domain.Presence, error) {
	return s.presenceRepo.Get(ctx, userID)
}

package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"realtime_chat/internal/config"
	"realtime_chat/internal/domain"
	"realtime_chat/internal/repository"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

// ChatService - журнал сообщений комнаты: проверка содержимого и пагинации.
type ChatService interface {
	Append(ctx context.Context, roomID, senderID string, contentType domain.ContentType, content string, metadata map[string]any) (*domain.Message, error)
	GetMessages(ctx context.Context, roomID string, limit int, before *time.Time) ([]*domain.Message, error)
	GetMessage(ctx context.Context, roomID, messageID string) (*domain.Message, error)
	// UpdateMessage применяет изменения, если check не вернул ошибку
	UpdateMessage(ctx context.Context, roomID, messageID string, update domain.MessageUpdate, check func(*domain.Message) error) (*domain.Message, error)
	DeleteMessage(ctx context.Context, roomID, messageID string) error
	MarkRead(ctx context.Context, roomID, messageID, userID string) (*domain.Message, error)
}

type chatService struct {
	messageRepo repository.MessageRepository
	maxPageSize int
	log         logger.Logger
}

func NewChatService(messageRepo repository.MessageRepository, cfg config.ChatConfig, log logger.Logger) ChatService {
	maxPageSize := cfg.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = repository.DefaultRetentionCap
	}
	return &chatService{
		messageRepo: messageRepo,
		maxPageSize: maxPageSize,
		log:         log,
	}
}

func (s *chatService) Append(ctx context.Context, roomID, senderID string, contentType domain.ContentType, content string, metadata map[string]any) (*domain.Message, error) {
	if contentType == "" {
		contentType = domain.ContentTypeText
	}
	if !contentType.Valid() {
		return nil, fmt.Errorf("content type %q: %w", contentType, apperrors.ErrUnsupportedType)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("message content is empty: %w", apperrors.ErrInvalidArgument)
	}

	message := &domain.Message{
		ID:          uuid.New().String(),
		RoomID:      roomID,
		SenderID:    senderID,
		ContentType: contentType,
		Content:     content,
		ReadBy:      []string{},
		Metadata:    metadata,
	}

	if err := s.messageRepo.Append(ctx, message); err != nil {
		return nil, err
	}

	return message, nil
}

func (s *chatService) GetMessages(ctx context.Context, roomID string, limit int, before *time.Time) ([]*domain.Message, error) {
	if limit <= 0 {
		return nil, apperrors.ErrInvalidPagination
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}
	return s.messageRepo.List(ctx, roomID, limit, before)
}

func (s *chatService) GetMessage(ctx context.Context, roomID, messageID string) (*domain.Message, error) {
	return s.messageRepo.Get(ctx, roomID, messageID)
}

func (s *chatService) UpdateMessage(ctx context.Context, roomID, messageID string, update domain.MessageUpdate, check func(*domain.Message) error) (*domain.Message, error) {
	if update.Content != nil && strings.TrimSpace(*update.Content) == "" {
		return nil, fmt.Errorf("message content is empty: %w", apperrors.ErrInvalidArgument)
	}

	return s.messageRepo.Update(ctx, roomID, messageID, func(message *domain.Message) error {
		if check != nil {
			if err := check(message); err != nil {
				return err
			}
		}
		if update.Content != nil {
			message.Content = *update.Content
		}
		if len(update.Metadata) > 0 {
			message.Metadata = mergeMetadata(message.Metadata, update.Metadata)
		}
		return nil
	})
}

func (s *chatService) DeleteMessage(ctx context.Context, roomID, messageID string) error {
	return s.messageRepo.Delete(ctx, roomID, messageID)
}

func (s *chatService) MarkRead(ctx context.Context, roomID, messageID, userID string) (*domain.Message, error) {
	return s.messageRepo.MarkRead(ctx, roomID, messageID, userID)
}

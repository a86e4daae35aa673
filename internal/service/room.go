package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"realtime_chat/internal/domain"
	"realtime_chat/internal/repository"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

// RoomService - каталог комнат: правила типов и членства поверх репозитория.
type RoomService interface {
	Create(ctx context.Context, name string, roomType domain.RoomType, memberIDs []string, metadata map[string]any) (*domain.Room, error)
	GetByID(ctx context.Context, roomID string) (*domain.Room, error)
	// Update возвращает комнату и участников, исключенных заменой состава
	Update(ctx context.Context, roomID string, update domain.RoomUpdate) (*domain.Room, []string, error)
	Delete(ctx context.Context, roomID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Room, error)
	AddMember(ctx context.Context, roomID, userID string) (*domain.Room, error)
	// RemoveMember возвращает true, если комната удалена вместе с последним участником
	RemoveMember(ctx context.Context, roomID, userID string) (bool, error)
}

type roomService struct {
	roomRepo repository.RoomRepository
	now      func() time.Time
	log      logger.Logger
}

func NewRoomService(roomRepo repository.RoomRepository, log logger.Logger) RoomService {
	return &roomService{
		roomRepo: roomRepo,
		now:      time.Now,
		log:      log,
	}
}

func (s *roomService) Create(ctx context.Context, name string, roomType domain.RoomType, memberIDs []string, metadata map[string]any) (*domain.Room, error) {
	if !roomType.Valid() {
		return nil, fmt.Errorf("room type %q: %w", roomType, apperrors.ErrUnsupportedType)
	}

	members := normalizeMembers(memberIDs)
	if len(members) == 0 {
		return nil, apperrors.ErrEmptyMembership
	}

	room := &domain.Room{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(name),
		Type:      roomType,
		MemberIDs: members,
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
		Metadata:  metadata,
	}

	if err := s.roomRepo.Create(ctx, room); err != nil {
		return nil, err
	}

	s.log.Info("Room created", "room_id", room.ID, "type", room.Type, "members", len(room.MemberIDs))
	return room, nil
}

func (s *roomService) GetByID(ctx context.Context, roomID string) (*domain.Room, error) {
	return s.roomRepo.GetByID(ctx, roomID)
}

func (s *roomService) Update(ctx context.Context, roomID string, update domain.RoomUpdate) (*domain.Room, []string, error) {
	var members []string
	if update.MemberIDs != nil {
		members = normalizeMembers(update.MemberIDs)
		if len(members) == 0 {
			return nil, nil, apperrors.ErrEmptyMembership
		}
	}

	return s.roomRepo.Update(ctx, roomID, func(room *domain.Room) error {
		if update.Type != nil && *update.Type != room.Type {
			if !room.Type.Mutable() {
				return fmt.Errorf("%s room type cannot be changed: %w", room.Type, apperrors.ErrInvalidOperation)
			}
			if !update.Type.Valid() {
				return fmt.Errorf("room type %q: %w", *update.Type, apperrors.ErrUnsupportedType)
			}
			room.Type = *update.Type
		}

		if members != nil {
			if !room.Type.Mutable() {
				return fmt.Errorf("%s room: %w", room.Type, apperrors.ErrFixedMembership)
			}
			room.MemberIDs = members
		}

		if update.Name != nil {
			room.Name = strings.TrimSpace(*update.Name)
		}
		if len(update.Metadata) > 0 {
			room.Metadata = mergeMetadata(room.Metadata, update.Metadata)
		}

		updatedAt := s.now().UTC().Truncate(time.Millisecond)
		room.UpdatedAt = &updatedAt
		return nil
	})
}

func (s *roomService) Delete(ctx context.Context, roomID string) (bool, error) {
	return s.roomRepo.Delete(ctx, roomID)
}

func (s *roomService) ListByUser(ctx context.Context, userID string) ([]*domain.Room, error) {
	return s.roomRepo.ListByUser(ctx, userID)
}

func (s *roomService) AddMember(ctx context.Context, roomID, userID string) (*domain.Room, error) {
	return s.roomRepo.AddMember(ctx, roomID, userID, rejectFixedMembership)
}

func (s *roomService) RemoveMember(ctx context.Context, roomID, userID string) (bool, error) {
	return s.roomRepo.RemoveMember(ctx, roomID, userID, rejectFixedMembership)
}

func rejectFixedMembership(room *domain.Room) error {
	if room.Type.FixedMembership() {
		return fmt.Errorf("%s room: %w", room.Type, apperrors.ErrFixedMembership)
	}
	return nil
}

// normalizeMembers убирает пустые и повторяющиеся идентификаторы и сортирует остальные.
func normalizeMembers(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	members := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	sort.Strings(members)
	return members
}

func mergeMetadata(current, patch map[string]any) map[string]any {
	merged := make(map[string]any, len(current)+len(patch))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}

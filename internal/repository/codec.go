package repository

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"realtime_chat/internal/domain"
)

// Граница сериализации: доменные типы <-> поля хешей Redis.
// Время хранится в миллисекундах Unix.

const (
	fieldID          = "id"
	fieldName        = "name"
	fieldType        = "type"
	fieldCreatedAt   = "created_at"
	fieldUpdatedAt   = "updated_at"
	fieldMetadata    = "metadata"
	fieldRoomID      = "room_id"
	fieldSenderID    = "sender_id"
	fieldContent     = "content"
	fieldSeq         = "seq"
	fieldEditedAt    = "edited_at"
	fieldUserID      = "user_id"
	fieldDisplayName = "display_name"
	fieldAvatar      = "avatar"
	fieldOnline      = "online"
	fieldLastSeen    = "last_seen"

	readFieldPrefix = "read:"
)

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

func parseOptionalMillis(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseMillis(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatOptionalMillis(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatMillis(*t)
}

func encodeMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return m, nil
}

func encodeRoom(room *domain.Room) (map[string]any, error) {
	metadata, err := encodeMetadata(room.Metadata)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		fieldID:        room.ID,
		fieldName:      room.Name,
		fieldType:      string(room.Type),
		fieldCreatedAt: formatMillis(room.CreatedAt),
		fieldUpdatedAt: formatOptionalMillis(room.UpdatedAt),
		fieldMetadata:  metadata,
	}, nil
}

func decodeRoom(fields map[string]string, members []string) (*domain.Room, error) {
	createdAt, err := parseMillis(fields[fieldCreatedAt])
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseOptionalMillis(fields[fieldUpdatedAt])
	if err != nil {
		return nil, err
	}
	metadata, err := decodeMetadata(fields[fieldMetadata])
	if err != nil {
		return nil, err
	}

	memberIDs := append([]string(nil), members...)
	sort.Strings(memberIDs)

	return &domain.Room{
		ID:        fields[fieldID],
		Name:      fields[fieldName],
		Type:      domain.RoomType(fields[fieldType]),
		MemberIDs: memberIDs,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		Metadata:  metadata,
	}, nil
}

// encodeMessage не пишет отметки о прочтении: они живут в отдельных
// полях read:{userId} и добавляются атомарно через HSET.
func encodeMessage(msg *domain.Message) (map[string]any, error) {
	metadata, err := encodeMetadata(msg.Metadata)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		fieldID:        msg.ID,
		fieldRoomID:    msg.RoomID,
		fieldSenderID:  msg.SenderID,
		fieldType:      string(msg.ContentType),
		fieldContent:   msg.Content,
		fieldCreatedAt: formatMillis(msg.CreatedAt),
		fieldSeq:       strconv.FormatInt(msg.Seq, 10),
		fieldEditedAt:  formatOptionalMillis(msg.EditedAt),
		fieldMetadata:  metadata,
	}, nil
}

func decodeMessage(fields map[string]string) (*domain.Message, error) {
	createdAt, err := parseMillis(fields[fieldCreatedAt])
	if err != nil {
		return nil, err
	}
	editedAt, err := parseOptionalMillis(fields[fieldEditedAt])
	if err != nil {
		return nil, err
	}
	seq, err := strconv.ParseInt(fields[fieldSeq], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid seq %q: %w", fields[fieldSeq], err)
	}
	metadata, err := decodeMetadata(fields[fieldMetadata])
	if err != nil {
		return nil, err
	}

	readBy := []string{}
	for field := range fields {
		if userID, ok := strings.CutPrefix(field, readFieldPrefix); ok {
			readBy = append(readBy, userID)
		}
	}
	sort.Strings(readBy)

	return &domain.Message{
		ID:          fields[fieldID],
		RoomID:      fields[fieldRoomID],
		SenderID:    fields[fieldSenderID],
		ContentType: domain.ContentType(fields[fieldType]),
		Content:     fields[fieldContent],
		CreatedAt:   createdAt,
		Seq:         seq,
		EditedAt:    editedAt,
		ReadBy:      readBy,
		Metadata:    metadata,
	}, nil
}

func readField(userID string) string {
	return readFieldPrefix + userID
}

func encodePresence(p *domain.Presence) map[string]any {
	online := "0"
	if p.Online {
		online = "1"
	}
	return map[string]any{
		fieldUserID:      p.UserID,
		fieldDisplayName: p.DisplayName,
		fieldAvatar:      p.Avatar,
		fieldOnline:      online,
		fieldLastSeen:    formatMillis(p.LastSeen),
	}
}

func decodePresence(fields map[string]string) (*domain.Presence, error) {
	lastSeen, err := parseMillis(fields[fieldLastSeen])
	if err != nil {
		return nil, err
	}
	return &domain.Presence{
		UserID:      fields[fieldUserID],
		DisplayName: fields[fieldDisplayName],
		Avatar:      fields[fieldAvatar],
		Online:      fields[fieldOnline] == "1",
		LastSeen:    lastSeen,
	}, nil
}

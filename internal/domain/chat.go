package domain

import (
	"time"
)

type ContentType string

const (
	ContentTypeText    ContentType = "text"
	ContentTypeImage   ContentType = "image"
	ContentTypeVideo   ContentType = "video"
	ContentTypeAudio   ContentType = "audio"
	ContentTypeSystem  ContentType = "system"
	ContentTypeCommand ContentType = "command"
)

func (t ContentType) Valid() bool {
	switch t {
	case ContentTypeText, ContentTypeImage, ContentTypeVideo,
		ContentTypeAudio, ContentTypeSystem, ContentTypeCommand:
		return true
	}
	return false
}

// Message - запись журнала комнаты. Пара (CreatedAt, Seq) уникальна
// в пределах комнаты, CreatedAt строго возрастает.
type Message struct {
	ID          string         `json:"id"`
	RoomID      string         `json:"roomId"`
	SenderID    string         `json:"senderId"`
	ContentType ContentType    `json:"type"`
	Content     string         `json:"content"`
	CreatedAt   time.Time      `json:"createdAt"`
	Seq         int64          `json:"seq"`
	EditedAt    *time.Time     `json:"editedAt,omitempty"`
	ReadBy      []string       `json:"readBy"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type MessageUpdate struct {
	Content  *string        `json:"content,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

package domain

import (
	"time"
)

type RoomType string

const (
	RoomTypeDirect RoomType = "direct"
	RoomTypeGroup  RoomType = "group"
	RoomTypeMatch  RoomType = "match"
	RoomTypeGlobal RoomType = "global"
)

func (t RoomType) Valid() bool {
	switch t {
	case RoomTypeDirect, RoomTypeGroup, RoomTypeMatch, RoomTypeGlobal:
		return true
	}
	return false
}

// Mutable сообщает, можно ли менять тип и состав комнаты через UpdateRoom.
func (t RoomType) Mutable() bool {
	return t == RoomTypeGroup
}

// OpenJoin сообщает, добавляется ли пользователь в участники при room:join.
func (t RoomType) OpenJoin() bool {
	return t == RoomTypeGroup || t == RoomTypeGlobal
}

// FixedMembership - состав direct и match комнат задается при создании.
func (t RoomType) FixedMembership() bool {
	return t == RoomTypeDirect || t == RoomTypeMatch
}

type Room struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      RoomType       `json:"type"`
	MemberIDs []string       `json:"memberIds"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt *time.Time     `json:"updatedAt,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (r *Room) HasMember(userID string) bool {
	for _, id := range r.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// RoomUpdate - частичное обновление, nil поля не меняются.
type RoomUpdate struct {
	Name      *string        `json:"name,omitempty"`
	Type      *RoomType      `json:"type,omitempty"`
	MemberIDs []string       `json:"memberIds,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

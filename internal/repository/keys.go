package repository

import (
	"fmt"
)

// Схема ключей Redis
const (
	RoomKeyPrefix        = "room:%s"
	RoomMembersKeyPrefix = "room:%s:members"
	UserRoomsKeyPrefix   = "user:%s:rooms"

	ChatMessagesKeyPrefix = "chat:room:%s:messages"
	ChatSeqKeyPrefix      = "chat:room:%s:seq"
	ChatMessageKeyPrefix  = "chat:room:%s:msg:%s"

	PresenceKeyPrefix      = "presence:%s"
	PresenceConnsKeyPrefix = "presence:%s:conns"
	PresenceOnlineKey      = "presence:online"
)

func roomKey(roomID string) string {
	return fmt.Sprintf(RoomKeyPrefix, roomID)
}

func roomMembersKey(roomID string) string {
	return fmt.Sprintf(RoomMembersKeyPrefix, roomID)
}

func userRoomsKey(userID string) string {
	return fmt.Sprintf(UserRoomsKeyPrefix, userID)
}

func messagesKey(roomID string) string {
	return fmt.Sprintf(ChatMessagesKeyPrefix, roomID)
}

func seqKey(roomID string) string {
	return fmt.Sprintf(ChatSeqKeyPrefix, roomID)
}

func messageKey(roomID, messageID string) string {
	return fmt.Sprintf(ChatMessageKeyPrefix, roomID, messageID)
}

func presenceKey(userID string) string {
	return fmt.Sprintf(PresenceKeyPrefix, userID)
}

func presenceConnsKey(userID string) string {
	return fmt.Sprintf(PresenceConnsKeyPrefix, userID)
}

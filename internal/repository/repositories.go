package repository

import (
	"realtime_chat/pkg/logger"
)

type Repositories struct {
	Room     RoomRepository
	Message  MessageRepository
	Presence PresenceRepository

	// Audit заполняется, только когда подключен PostgreSQL.
	Audit AuditRepository
}

// NewRepositories собирает репозитории поверх общего Store. archive
// опционален: без него вытесненные сообщения не сохраняются.
func NewRepositories(store *Store, archive MessageArchive, retentionCap int, log logger.Logger) *Repositories {
	repos := &Repositories{
		Room:     NewRoomRepository(store, log),
		Message:  NewMessageRepository(store, archive, retentionCap, log),
		Presence: NewPresenceRepository(store, log),
	}

	if archive != nil {
		log.Info("Message archive enabled")
	} else {
		log.Info("Message archive disabled, trimmed messages are dropped")
	}

	return repos
}

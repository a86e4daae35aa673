package gateway

import (
	"sync"
)

// hub - группы рассылки: roomID -> подписанные сессии этого узла.
type hub struct {
	mu     sync.RWMutex
	groups map[string]map[*Session]struct{}
}

func newHub() *hub {
	return &hub{groups: make(map[string]map[*Session]struct{})}
}

func (h *hub) join(roomID string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[roomID]
	if !ok {
		group = make(map[*Session]struct{})
		h.groups[roomID] = group
	}
	group[s] = struct{}{}
}

func (h *hub) leave(roomID string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[roomID]
	if !ok {
		return
	}
	delete(group, s)
	if len(group) == 0 {
		delete(h.groups, roomID)
	}
}

// drop удаляет группу целиком и возвращает ее бывших участников.
func (h *hub) drop(roomID string) []*Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	group := h.groups[roomID]
	delete(h.groups, roomID)

	sessions := make([]*Session, 0, len(group))
	for s := range group {
		sessions = append(sessions, s)
	}
	return sessions
}

// dropUser убирает из группы соединения пользователя и возвращает их.
func (h *hub) dropUser(roomID, userID string) []*Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[roomID]
	if !ok {
		return nil
	}
	var removed []*Session
	for s := range group {
		if s.UserID() == userID {
			delete(group, s)
			removed = append(removed, s)
		}
	}
	if len(group) == 0 {
		delete(h.groups, roomID)
	}
	return removed
}

// members возвращает снимок группы, рассылка идет без блокировки.
func (h *hub) members(roomID string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	group := h.groups[roomID]
	sessions := make([]*Session, 0, len(group))
	for s := range group {
		sessions = append(sessions, s)
	}
	return sessions
}

func (h *hub) size(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[roomID])
}

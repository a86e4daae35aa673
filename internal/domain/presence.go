package domain

import (
	"time"
)

type Presence struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Avatar      string    `json:"avatar,omitempty"`
	Online      bool      `json:"online"`
	LastSeen    time.Time `json:"lastSeen"`
}

// Profile - отображаемые поля пользователя, приходящие из токена.
type Profile struct {
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
}

// Identity - аутентифицированный пользователь соединения.
type Identity struct {
	UserID   string
	Username string
	Profile  Profile
}

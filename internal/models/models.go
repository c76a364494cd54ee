package models

import (
	"time"
)

// User is a registered account.
//
// IDs come from a never-reset monotonic sequence (bigserial in Postgres,
// an atomic counter in the memory store) and are never reused, even after
// an administrative delete — a recycled id would reattribute historical
// messages to whoever gets it next.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Credential is the stored password material for one user. The plaintext
// password is never persisted; Salt + HashedPassword are all that login
// verification needs. Replaced wholesale on password change.
type Credential struct {
	ID             int64  `json:"-"`
	UserID         int64  `json:"-"`
	Salt           string `json:"-"`
	HashedPassword string `json:"-"`
}

// Session is one authenticated login. Token is an opaque, unguessable
// string handed out at login time. One user may hold any number of
// concurrent sessions; sessions do not survive a server restart.
type Session struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
}

// Message is a single chat message.
//
// ID is a server-wide, strictly increasing sequence number and the only
// ordering authority: higher id means the append happened no earlier. It
// doubles as the long-poll cursor ("everything after id N"). CreatedAt is
// informational and plays no part in ordering.
type Message struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Text      string    `json:"text"`
	UserID    int64     `json:"user_id"`
}

package domain

import "errors"

// ErrSessionConflict is returned by session stores when a turn was written
// against a turn count that another request already advanced.
var ErrSessionConflict = errors.New("session turn count changed concurrently")

// Turn is a single persisted chatbot exchange within a session.
type Turn struct {
	PK        string
	SK        string
	SessionID string
	UserID    string
	Question  string
	Answer    string
	Status    string
	TTL       int64
}

// SessionMeta stores aggregate chatbot session state.
type SessionMeta struct {
	PK           string
	SK           string
	SessionID    string
	UserID       string
	LastActivity string
	Turns        int
	TTL          int64
}

package domain

import "time"

// PresenceRecord is one participant session's view of a resource.
// An empty Path is the null path: the session is not viewing anything.
type PresenceRecord struct {
	SessionID string    `json:"sessionId"`
	User      string    `json:"user"`
	Avatar    string    `json:"avatar,omitempty"`
	Path      string    `json:"path"`
	IsTyping  bool      `json:"isTyping"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PresenceQuery selects live records on a path, excluding one user.
type PresenceQuery struct {
	Path         string
	ExcludeUser  string
	UpdatedAfter time.Time
}

// Identity is the local participant as supplied by the page adapter.
type Identity struct {
	User   string
	Avatar string
}

// Package domain holds the shared types of the session and messaging
// dispatch engine: users, sessions, messages, groups, friendships, and the
// typed error kinds components return.
package domain

import "time"

// User is the persistent identity record. Uniqueness of Username and Email
// is enforced by the cold store's schema; deletion is not modeled.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Avatar       string
	Verified     bool
	CreatedAt    time.Time
	LastLoginAt  *time.Time
	Online       bool
}

// MessageKind distinguishes private from group messages.
type MessageKind string

const (
	KindPrivate MessageKind = "private"
	KindGroup   MessageKind = "group"
)

// Message is immutable except for its recall and read fields. JSON tags
// give the wire-facing history/push payloads the same camelCase
// convention as the rest of the protocol's fields (spec.md §6.2), and
// carry the "kind" discriminator the original always includes alongside
// private/group messages (SPEC_FULL.md §6).
type Message struct {
	ID         string      `json:"id"`
	From       int64       `json:"from"`
	To         int64       `json:"to"` // userId for private, groupId for group
	Kind       MessageKind `json:"kind"`
	Content    string      `json:"content"`
	Timestamp  int64       `json:"timestamp"` // ms-epoch
	Recalled   bool        `json:"recalled"`
	RecalledAt int64       `json:"recalledAt,omitempty"`
	RecalledBy int64       `json:"recalledBy,omitempty"`
	Read       bool        `json:"read"`
	ReadAt     int64       `json:"readAt,omitempty"`
}

// Group is membership-bearing; the member set lives in the hot store
// (group:<id>:members), not here.
type Group struct {
	ID        int64
	Name      string
	CreatorID int64
	CreatedAt time.Time
}

// FriendRequest is a directed pending edge, cleared on accept or reject.
type FriendRequest struct {
	From      int64
	To        int64
	CreatedAt time.Time
}

// PairKey returns the canonical private-chat stream key suffix for two
// users: the smaller id first, matching the hot store's chat:<a>:<b> scheme.
func PairKey(a, b int64) (int64, int64) {
	if a < b {
		return a, b
	}
	return b, a
}

// Package coldstore abstracts the relational archive tier (C2) and the
// UserRepository built on top of it (C3): users, friendships, archived
// private/group messages, groups. The schema matches spec.md §4.2.
package coldstore

import (
	"context"

	"github.com/relaychat/server/internal/domain"
)

// Store is what ArchiveWorker and MessagingCore's history reads depend on.
type Store interface {
	// InsertPrivateMessages archives a batch for one pair in one
	// transaction; duplicate inserts (same sender, recipient, timestamp and
	// content) are no-ops.
	InsertPrivateMessages(ctx context.Context, msgs []*domain.Message) error
	// InsertGroupMessages archives a batch for one group in one transaction.
	InsertGroupMessages(ctx context.Context, groupID int64, msgs []*domain.Message) error
	// GroupExists reports whether groupID is a known group row.
	GroupExists(ctx context.Context, groupID int64) (bool, error)
	// InsertFriendship is idempotent: the (user_id1, user_id2) unique
	// constraint makes re-insertion a no-op.
	InsertFriendship(ctx context.Context, a, b int64) error

	// HistoryPrivate returns the most-recent-first page of archived
	// messages for the pair.
	HistoryPrivate(ctx context.Context, a, b int64, count, offset int) ([]*domain.Message, error)
	// HistoryGroup returns the most-recent-first page of archived messages
	// for the group.
	HistoryGroup(ctx context.Context, groupID int64, count, offset int) ([]*domain.Message, error)

	// NextGroupID allocates a monotonic group id (spec.md §9 Open
	// Questions: replaces the time%10^6 scheme from the original).
	NextGroupID(ctx context.Context) (int64, error)
	// CreateGroup persists group metadata once an id has been allocated.
	CreateGroup(ctx context.Context, g *domain.Group) error

	Close() error
}

// Users is UserRepository (C3): CRUD, credential check, presence writes.
type Users interface {
	VerifyCredentials(ctx context.Context, username, password string) (userID int64, err error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	SetOnline(ctx context.Context, userID int64, online bool) error
	UpdateLastLogin(ctx context.Context, userID int64) error
	Register(ctx context.Context, username, password, email, avatar string) (userID int64, err error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	ListOnline(ctx context.Context) ([]*domain.User, error)
}

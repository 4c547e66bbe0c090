// Package hotstore abstracts the fast key-value tier (C1): strings,
// hashes, sets, and lists with trimming and pattern scan. Multiple
// dispatcher workers and the archive worker mutate the same store
// concurrently; atomicity is per-operation, never across calls.
package hotstore

import (
	"context"
	"time"
)

// Store is the full operation set MessagingCore and ArchiveWorker depend
// on. Negative list indices count from the tail, matching Redis semantics.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Type(ctx context.Context, key string) (string, error)
	KeysMatching(ctx context.Context, pattern string) ([]string, error)

	HashSet(ctx context.Context, key, field, value string) error
	HashGet(ctx context.Context, key, field string) (string, bool, error)

	SetAdd(ctx context.Context, key string, members ...string) error
	SetRemove(ctx context.Context, key string, members ...string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
	SetContains(ctx context.Context, key, member string) (bool, error)
	SetCardinality(ctx context.Context, key string) (int64, error)

	ListAppend(ctx context.Context, key string, values ...string) error
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ListTrim(ctx context.Context, key string, start, stop int64) error
	ListSet(ctx context.Context, key string, index int64, value string) error
	ListLength(ctx context.Context, key string) (int64, error)
}

// TypeString reports the Redis-flavored type names Type() returns, used by
// ArchiveWorker to skip keys of the wrong kind without erroring.
const (
	TypeNone   = "none"
	TypeString = "string"
	TypeList   = "list"
	TypeSet    = "set"
	TypeHash   = "hash"
)

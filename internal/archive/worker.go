// Package archive implements ArchiveWorker (C10): the background loop that
// drains hot message streams and friendship sets into cold storage while
// maintaining per-key high-water marks. Grounded on
// original_source/src/service/MessageArchiveService.cpp's three-pass
// structure (archivePrivateMessages/archiveGroupMessages/archiveFriendships),
// translated from its own-thread-plus-condition-variable shutdown into a
// goroutine whose wait is a sync.Cond over a stopping flag, standing in for
// the original's std::condition_variable wait-with-timeout.
package archive

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/relaychat/server/internal/coldstore"
	"github.com/relaychat/server/internal/domain"
	"github.com/relaychat/server/internal/hotstore"
)

// metricsSink is the subset of metrics.Registry ArchiveWorker reports to; an
// interface here avoids a direct dependency from internal/archive onto
// internal/metrics for the (common) case of running without it in tests.
type metricsSink interface {
	ObserveArchiveTick(pass string, ok bool)
}

const (
	tickPeriod         = 3600 * time.Second
	privateStreamLimit = -100
	groupStreamLimit   = -200
)

// Worker runs the periodic archival loop.
type Worker struct {
	Hot     hotstore.Store
	Cold    coldstore.Store
	Logger  *logrus.Logger
	Metrics metricsSink

	mu       sync.Mutex
	cond     *sync.Cond
	stopping bool
	done     chan struct{}
}

// New builds a Worker bound to hot and cold storage.
func New(hot hotstore.Store, cold coldstore.Store, logger *logrus.Logger) *Worker {
	w := &Worker{Hot: hot, Cold: cold, Logger: logger, done: make(chan struct{})}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Run ticks every 3600s, running the three archival passes in sequence,
// until Stop is called. Shutdown is cooperative: the wait on the condition
// variable is interrupted immediately by Stop rather than waiting out the
// full period.
func (w *Worker) Run() {
	defer close(w.done)

	for {
		w.runTick()

		w.mu.Lock()
		if w.stopping {
			w.mu.Unlock()
			return
		}
		timer := time.AfterFunc(tickPeriod, func() {
			w.mu.Lock()
			w.cond.Broadcast()
			w.mu.Unlock()
		})
		w.cond.Wait()
		timer.Stop()
		stop := w.stopping
		w.mu.Unlock()
		if stop {
			return
		}
	}
}

// Stop requests the loop exit at the next wait boundary and blocks until it
// has, matching the original's join-on-stop semantics.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.stopping = true
	w.cond.Broadcast()
	w.mu.Unlock()
	<-w.done
}

func (w *Worker) runTick() {
	ctx := context.Background()

	privateOK := w.archivePrivateMessages(ctx)
	groupOK := w.archiveGroupMessages(ctx)
	friendsOK := w.archiveFriendships(ctx)

	if w.Metrics != nil {
		w.Metrics.ObserveArchiveTick("private", privateOK)
		w.Metrics.ObserveArchiveTick("group", groupOK)
		w.Metrics.ObserveArchiveTick("friendships", friendsOK)
	}

	if privateOK || groupOK || friendsOK {
		w.Logger.Info("archive tick completed")
	} else {
		w.Logger.Warn("archive tick: all passes failed")
	}
}

func lastArchiveKey(key string) string { return key + ":last_archive" }

func (w *Worker) lastArchiveTime(ctx context.Context, key string) int64 {
	v, ok, err := w.Hot.Get(ctx, lastArchiveKey(key))
	if err != nil || !ok {
		return 0
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

func (w *Worker) updateLastArchiveTime(ctx context.Context, key string, ts int64) {
	if err := w.Hot.Set(ctx, lastArchiveKey(key), strconv.FormatInt(ts, 10)); err != nil {
		w.Logger.WithError(err).WithField("key", key).Warn("failed to update high-water mark")
	}
}

// archivePrivateMessages enumerates chat:*:* keys, inserts every message
// newer than the stored high-water mark into private_messages inside one
// transaction per key, then advances the mark and trims the hot stream to
// the last 100 entries.
func (w *Worker) archivePrivateMessages(ctx context.Context) bool {
	keys, err := w.Hot.KeysMatching(ctx, "chat:*:*")
	if err != nil {
		w.Logger.WithError(err).Error("failed to list private chat keys")
		return false
	}

	ok := true
	for _, key := range keys {
		if strings.HasSuffix(key, ":last_archive") {
			continue
		}
		if !w.archivePrivateKey(ctx, key) {
			ok = false
		}
	}
	return ok
}

func (w *Worker) archivePrivateKey(ctx context.Context, key string) bool {
	highWater := w.lastArchiveTime(ctx, key)

	raw, err := w.Hot.ListRange(ctx, key, 0, -1)
	if err != nil {
		w.Logger.WithError(err).WithField("key", key).Error("failed to read private stream")
		return false
	}
	if len(raw) == 0 {
		return true
	}

	var fresh []*domain.Message
	now := time.Now().UnixMilli()
	for _, r := range raw {
		var m domain.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			w.Logger.WithError(err).WithField("key", key).Warn("skipping malformed private message")
			continue
		}
		if m.Timestamp <= highWater {
			continue
		}
		fresh = append(fresh, &m)
	}
	if len(fresh) == 0 {
		return true
	}

	if err := w.Cold.InsertPrivateMessages(ctx, fresh); err != nil {
		w.Logger.WithError(err).WithField("key", key).Error("failed to archive private messages")
		return false
	}

	w.updateLastArchiveTime(ctx, key, now)
	if err := w.Hot.ListTrim(ctx, key, privateStreamLimit, -1); err != nil {
		w.Logger.WithError(err).WithField("key", key).Warn("failed to trim private stream")
	}
	return true
}

// archiveGroupMessages enumerates group:*:messages keys, skipping malformed
// keys, keys of the wrong hot-store type, and keys whose group id is not a
// known row in cold storage.
func (w *Worker) archiveGroupMessages(ctx context.Context) bool {
	keys, err := w.Hot.KeysMatching(ctx, "group:*:messages")
	if err != nil {
		w.Logger.WithError(err).Error("failed to list group message keys")
		return false
	}

	ok := true
	for _, key := range keys {
		if !w.archiveGroupKey(ctx, key) {
			ok = false
		}
	}
	return ok
}

func (w *Worker) archiveGroupKey(ctx context.Context, key string) bool {
	groupID, valid := parseGroupMessageKey(key)
	if !valid {
		w.Logger.WithField("key", key).Warn("invalid group message key format, skipping")
		return true
	}

	kind, err := w.Hot.Type(ctx, key)
	if err != nil {
		w.Logger.WithError(err).WithField("key", key).Error("failed to check key type")
		return false
	}
	if kind != hotstore.TypeList {
		w.Logger.WithField("key", key).Warn("group message key is not a list, skipping")
		return true
	}

	exists, err := w.Cold.GroupExists(ctx, groupID)
	if err != nil {
		w.Logger.WithError(err).WithField("groupId", groupID).Error("failed to check group existence")
		return false
	}
	if !exists {
		w.Logger.WithField("groupId", groupID).Warn("group does not exist in cold storage, skipping archive")
		return true
	}

	highWater := w.lastArchiveTime(ctx, key)
	raw, err := w.Hot.ListRange(ctx, key, 0, -1)
	if err != nil {
		w.Logger.WithError(err).WithField("key", key).Error("failed to read group stream")
		return false
	}
	if len(raw) == 0 {
		return true
	}

	var fresh []*domain.Message
	now := time.Now().UnixMilli()
	for _, r := range raw {
		var m domain.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			w.Logger.WithError(err).WithField("key", key).Warn("skipping malformed group message")
			continue
		}
		if m.Timestamp <= highWater {
			continue
		}
		fresh = append(fresh, &m)
	}
	if len(fresh) == 0 {
		return true
	}

	if err := w.Cold.InsertGroupMessages(ctx, groupID, fresh); err != nil {
		w.Logger.WithError(err).WithField("groupId", groupID).Error("failed to archive group messages")
		return false
	}

	w.updateLastArchiveTime(ctx, key, now)
	if err := w.Hot.ListTrim(ctx, key, groupStreamLimit, -1); err != nil {
		w.Logger.WithError(err).WithField("key", key).Warn("failed to trim group stream")
	}
	return true
}

func parseGroupMessageKey(key string) (groupID int64, ok bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != "group" || parts[2] != "messages" {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// archiveFriendships enumerates user:*:friends keys and inserts any missing
// pair into user_friends; the relational unique constraint on the pair
// provides idempotence, matching the original's existence-check-then-insert
// pattern (here delegated to ColdStore.InsertFriendship's ON CONFLICT).
func (w *Worker) archiveFriendships(ctx context.Context) bool {
	keys, err := w.Hot.KeysMatching(ctx, "user:*:friends")
	if err != nil {
		w.Logger.WithError(err).Error("failed to list friend keys")
		return false
	}

	ok := true
	for _, key := range keys {
		userID, valid := parseUserFriendsKey(key)
		if !valid {
			w.Logger.WithField("key", key).Warn("invalid friends key format, skipping")
			continue
		}

		friendIDs, err := w.Hot.SetMembers(ctx, key)
		if err != nil {
			w.Logger.WithError(err).WithField("userId", userID).Error("failed to read friend set")
			ok = false
			continue
		}
		for _, friendStr := range friendIDs {
			friendID, err := strconv.ParseInt(friendStr, 10, 64)
			if err != nil {
				continue
			}
			if err := w.Cold.InsertFriendship(ctx, userID, friendID); err != nil {
				w.Logger.WithError(err).WithFields(logrus.Fields{"user": userID, "friend": friendID}).
					Error("failed to archive friendship")
				ok = false
			}
		}
	}
	return ok
}

func parseUserFriendsKey(key string) (userID int64, ok bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != "user" || parts[2] != "friends" {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

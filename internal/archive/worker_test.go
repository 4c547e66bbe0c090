package archive

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaychat/server/internal/coldstore"
	"github.com/relaychat/server/internal/domain"
	"github.com/relaychat/server/internal/hotstore"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func putMessage(t *testing.T, hot hotstore.Store, key string, msg *domain.Message) {
	t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, hot.ListAppend(context.Background(), key, string(raw)))
}

func TestArchivePrivateMessagesInsertsOnlyFreshEntries(t *testing.T) {
	hot := hotstore.NewMemory()
	cold := coldstore.NewMemory()
	w := New(hot, cold, testLogger())
	ctx := context.Background()

	key := "chat:1:2"
	putMessage(t, hot, key, &domain.Message{ID: "a", From: 1, To: 2, Content: "hi", Timestamp: 1000})
	putMessage(t, hot, key, &domain.Message{ID: "b", From: 2, To: 1, Content: "yo", Timestamp: 2000})

	ok := w.archivePrivateMessages(ctx)
	assert.True(t, ok)

	msgs, err := cold.HistoryPrivate(ctx, 1, 2, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	highWater := w.lastArchiveTime(ctx, key)
	assert.Greater(t, highWater, int64(0))

	// A second tick with no new messages archives nothing further.
	ok = w.archivePrivateMessages(ctx)
	assert.True(t, ok)
	msgs, err = cold.HistoryPrivate(ctx, 1, 2, 10, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestArchivePrivateMessagesSkipsMalformedEntries(t *testing.T) {
	hot := hotstore.NewMemory()
	cold := coldstore.NewMemory()
	w := New(hot, cold, testLogger())
	ctx := context.Background()

	key := "chat:1:2"
	require.NoError(t, hot.ListAppend(ctx, key, "not json"))
	putMessage(t, hot, key, &domain.Message{ID: "a", From: 1, To: 2, Content: "hi", Timestamp: 1000})

	ok := w.archivePrivateMessages(ctx)
	assert.True(t, ok)

	msgs, err := cold.HistoryPrivate(ctx, 1, 2, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestArchiveGroupMessagesSkipsUnknownGroup(t *testing.T) {
	hot := hotstore.NewMemory()
	cold := coldstore.NewMemory()
	w := New(hot, cold, testLogger())
	ctx := context.Background()

	key := "group:99:messages"
	putMessage(t, hot, key, &domain.Message{ID: "a", From: 1, To: 99, Kind: domain.KindGroup, Content: "hi", Timestamp: 1000})

	ok := w.archiveGroupMessages(ctx)
	assert.True(t, ok, "skipping an unknown group is not a failure")

	msgs, err := cold.HistoryGroup(ctx, 99, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestArchiveGroupMessagesInsertsWhenGroupExists(t *testing.T) {
	hot := hotstore.NewMemory()
	cold := coldstore.NewMemory()
	cold.SeedGroup(&domain.Group{ID: 7, Name: "team", CreatorID: 1})
	w := New(hot, cold, testLogger())
	ctx := context.Background()

	key := "group:7:messages"
	putMessage(t, hot, key, &domain.Message{ID: "a", From: 1, To: 7, Kind: domain.KindGroup, Content: "hi", Timestamp: 1000})

	ok := w.archiveGroupMessages(ctx)
	assert.True(t, ok)

	msgs, err := cold.HistoryGroup(ctx, 7, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestArchiveGroupMessagesSkipsNonListKey(t *testing.T) {
	hot := hotstore.NewMemory()
	cold := coldstore.NewMemory()
	cold.SeedGroup(&domain.Group{ID: 7, Name: "team", CreatorID: 1})
	w := New(hot, cold, testLogger())
	ctx := context.Background()

	require.NoError(t, hot.Set(ctx, "group:7:messages", "not a list"))

	ok := w.archiveGroupMessages(ctx)
	assert.True(t, ok)
}

type recordingCold struct {
	*coldstore.Memory
	friendships [][2]int64
}

func (r *recordingCold) InsertFriendship(ctx context.Context, a, b int64) error {
	r.friendships = append(r.friendships, [2]int64{a, b})
	return r.Memory.InsertFriendship(ctx, a, b)
}

func TestArchiveFriendshipsInsertsEachMember(t *testing.T) {
	hot := hotstore.NewMemory()
	cold := &recordingCold{Memory: coldstore.NewMemory()}
	w := New(hot, cold, testLogger())
	ctx := context.Background()

	require.NoError(t, hot.SetAdd(ctx, "user:1:friends", "2", "3"))

	ok := w.archiveFriendships(ctx)
	assert.True(t, ok)
	assert.ElementsMatch(t, [][2]int64{{1, 2}, {1, 3}}, cold.friendships)

	assert.NoError(t, cold.InsertFriendship(ctx, 1, 2))
	assert.NoError(t, cold.InsertFriendship(ctx, 1, 3))
}

func TestParseGroupMessageKeyRejectsMalformed(t *testing.T) {
	_, ok := parseGroupMessageKey("group:messages")
	assert.False(t, ok)

	_, ok = parseGroupMessageKey("group:abc:messages")
	assert.False(t, ok)

	id, ok := parseGroupMessageKey("group:7:messages")
	assert.True(t, ok)
	assert.EqualValues(t, 7, id)
}

func TestRunStopsPromptlyOnStop(t *testing.T) {
	hot := hotstore.NewMemory()
	cold := coldstore.NewMemory()
	w := New(hot, cold, testLogger())

	done := make(chan struct{})
	go func() {
		w.Run()
		close(done)
	}()

	w.Stop()
	select {
	case <-w.done:
	default:
		t.Fatal("Stop returned before Run finished")
	}
}

package messaging

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaychat/server/internal/coldstore"
	"github.com/relaychat/server/internal/domain"
	"github.com/relaychat/server/internal/hotstore"
)

func newTestCore() *Core {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(hotstore.NewMemory(), coldstore.NewMemory(), coldstore.NewMemory(), NopPublisher{}, logger)
}

func makeFriends(t *testing.T, c *Core, a, b int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, c.Hot.SetAdd(ctx, userFriendsKey(a), strconv.FormatInt(b, 10)))
	require.NoError(t, c.Hot.SetAdd(ctx, userFriendsKey(b), strconv.FormatInt(a, 10)))
}

func TestSendPrivateRequiresFriendship(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()

	_, err := c.SendPrivate(ctx, 1, 3, "hi")
	require.Error(t, err)
	assert.Equal(t, domain.ErrNotFriend, err)
}

func TestSendPrivateRejectsSelfTarget(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()
	_, err := c.SendPrivate(ctx, 1, 1, "hi")
	assert.Equal(t, domain.ErrSelfTarget, err)
}

func TestSendPrivateParksOfflineMessage(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()
	makeFriends(t, c, 1, 2)

	msg, err := c.SendPrivate(ctx, 1, 2, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)

	stream, err := c.hotPrivateMessages(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, stream, 1)

	offline, err := c.DrainOffline(ctx, 2)
	require.NoError(t, err)
	require.Len(t, offline, 1)
	assert.Equal(t, "hello", offline[0].Content)

	drainedAgain, err := c.DrainOffline(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, drainedAgain)
}

func TestSendPrivateSkipsOfflineParkWhenRecipientOnline(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()
	makeFriends(t, c, 1, 2)
	require.NoError(t, c.MarkOnline(ctx, 2))

	_, err := c.SendPrivate(ctx, 1, 2, "hello")
	require.NoError(t, err)

	offline, err := c.DrainOffline(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, offline)
}

func TestSendGroupRequiresMembership(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()
	g, err := c.CreateGroup(ctx, 1, "team")
	require.NoError(t, err)

	_, err = c.SendGroup(ctx, 2, g.ID, "hi")
	assert.Equal(t, domain.ErrNotMember, err)
}

func TestSendGroupTrimsToLimit(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()
	g, err := c.CreateGroup(ctx, 1, "team")
	require.NoError(t, err)

	for i := 0; i < groupStreamLimit+10; i++ {
		_, err := c.SendGroup(ctx, 1, g.ID, "msg")
		require.NoError(t, err)
	}

	stream, err := c.hotGroupMessages(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, stream, groupStreamLimit)
}

func TestHistoryPrivateTopsUpFromHotStream(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()
	makeFriends(t, c, 1, 2)

	for i := 0; i < 3; i++ {
		_, err := c.SendPrivate(ctx, 1, 2, "m")
		require.NoError(t, err)
	}

	page, err := c.HistoryPrivate(ctx, 1, 2, 5, 0)
	require.NoError(t, err)
	assert.Len(t, page, 3)
}

func TestRecallPrivateWithinWindow(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()
	makeFriends(t, c, 1, 2)

	msg, err := c.SendPrivate(ctx, 1, 2, "oops")
	require.NoError(t, err)

	recalled, err := c.RecallPrivate(ctx, 1, 2, msg.ID)
	require.NoError(t, err)
	assert.True(t, recalled.Recalled)
}

func TestRecallPrivateRejectsNonSender(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()
	makeFriends(t, c, 1, 2)

	msg, err := c.SendPrivate(ctx, 1, 2, "oops")
	require.NoError(t, err)

	_, err = c.RecallPrivate(ctx, 2, 1, msg.ID)
	assert.Equal(t, domain.ErrNotSender, err)
}

func TestRecallPrivateRejectsExpiredWindow(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()
	makeFriends(t, c, 1, 2)

	msg, err := c.SendPrivate(ctx, 1, 2, "oops")
	require.NoError(t, err)

	stream, err := c.Hot.ListRange(ctx, privateStreamKey(1, 2), 0, -1)
	require.NoError(t, err)
	idx, decoded, err := findInStream(stream, msg.ID)
	require.NoError(t, err)
	decoded.Timestamp = time.Now().Add(-3 * time.Minute).UnixMilli()
	require.NoError(t, c.rewriteEntry(ctx, privateStreamKey(1, 2), idx, decoded))

	_, err = c.RecallPrivate(ctx, 1, 2, msg.ID)
	assert.Equal(t, domain.ErrRecallExpired, err)
}

func TestRecallGroupAllowsCreatorWithoutWindow(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()
	g, err := c.CreateGroup(ctx, 1, "team")
	require.NoError(t, err)
	require.NoError(t, c.JoinGroup(ctx, 2, g.ID))

	msg, err := c.SendGroup(ctx, 2, g.ID, "hi")
	require.NoError(t, err)

	stream, err := c.Hot.ListRange(ctx, groupStreamKey(g.ID), 0, -1)
	require.NoError(t, err)
	idx, decoded, err := findInStream(stream, msg.ID)
	require.NoError(t, err)
	decoded.Timestamp = time.Now().Add(-time.Hour).UnixMilli()
	require.NoError(t, c.rewriteEntry(ctx, groupStreamKey(g.ID), idx, decoded))

	recalled, err := c.RecallGroup(ctx, 1, g.ID, msg.ID)
	require.NoError(t, err)
	assert.True(t, recalled.Recalled)
}

func TestMarkReadPrivateRequiresRecipient(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()
	makeFriends(t, c, 1, 2)

	msg, err := c.SendPrivate(ctx, 1, 2, "hi")
	require.NoError(t, err)

	err = c.MarkReadPrivate(ctx, 1, 2, msg.ID)
	assert.Equal(t, domain.ErrNotRecipient, err)

	require.NoError(t, c.MarkReadPrivate(ctx, 2, 1, msg.ID))
}

func TestAddFriendCompletesOnMutualRequest(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()

	accepted, err := c.AddFriend(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, accepted)

	accepted, err = c.AddFriend(ctx, 2, 1)
	require.NoError(t, err)
	assert.True(t, accepted)

	friend, err := c.IsFriend(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, friend)
}

func TestSendFriendRequestRejectsDuplicatesAndExistingFriends(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()

	require.NoError(t, c.SendFriendRequest(ctx, 1, 2))
	err := c.SendFriendRequest(ctx, 1, 2)
	assert.Equal(t, domain.ErrRequestPending, err)

	makeFriends(t, c, 3, 4)
	err = c.SendFriendRequest(ctx, 3, 4)
	assert.Equal(t, domain.ErrAlreadyFriends, err)
}

func TestLeaveGroupDeletesWhenEmpty(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()
	g, err := c.CreateGroup(ctx, 1, "solo")
	require.NoError(t, err)

	require.NoError(t, c.LeaveGroup(ctx, 1, g.ID))

	exists, err := c.Hot.Exists(ctx, groupMetaKey(g.ID))
	require.NoError(t, err)
	assert.False(t, exists)

	card, err := c.Hot.SetCardinality(ctx, groupMembersKey(g.ID))
	require.NoError(t, err)
	assert.EqualValues(t, 0, card)
}

func TestPresenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()

	online, err := c.IsOnline(ctx, 9)
	require.NoError(t, err)
	assert.False(t, online)

	require.NoError(t, c.MarkOnline(ctx, 9))
	online, err = c.IsOnline(ctx, 9)
	require.NoError(t, err)
	assert.True(t, online)

	require.NoError(t, c.MarkOffline(ctx, 9))
	online, err = c.IsOnline(ctx, 9)
	require.NoError(t, err)
	assert.False(t, online)
}

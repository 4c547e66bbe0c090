package dispatcher

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaychat/server/internal/coldstore"
	"github.com/relaychat/server/internal/email"
	"github.com/relaychat/server/internal/hotstore"
	"github.com/relaychat/server/internal/messaging"
	"github.com/relaychat/server/internal/protocol"
	"github.com/relaychat/server/internal/session"
	"github.com/relaychat/server/internal/verification"
)

type fakeConn struct {
	sent   []string
	closed bool
}

func (c *fakeConn) Send(frame string) error {
	c.sent = append(c.sent, frame)
	return nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *coldstore.Memory, *hotstore.Memory) {
	t.Helper()
	hot := hotstore.NewMemory()
	cold := coldstore.NewMemory()
	core := messaging.New(hot, cold, cold, messaging.NopPublisher{}, testLogger())
	verif := verification.New(testLogger())
	mailer := email.NewFake()
	sessions := session.New(testLogger())
	return New(core, cold, verif, mailer, sessions, testLogger()), cold, hot
}

func frameLine(t *testing.T, typ protocol.Type, kv ...string) string {
	t.Helper()
	f, err := protocol.NewFrame(typ, kv...)
	require.NoError(t, err)
	line, err := f.Encode()
	require.NoError(t, err)
	return line
}

func lastFrame(t *testing.T, conn *fakeConn) *protocol.Frame {
	t.Helper()
	require.NotEmpty(t, conn.sent)
	f, err := protocol.Decode(conn.sent[len(conn.sent)-1])
	require.NoError(t, err)
	return f
}

func TestHeartbeatRespondsWithTimestamp(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	conn := &fakeConn{}
	st := NewState()

	d.Handle(context.Background(), conn, st, frameLine(t, protocol.HeartbeatRequest))

	f := lastFrame(t, conn)
	assert.Equal(t, protocol.HeartbeatResponse, f.Type)
	_, ok := f.Get("timestamp")
	assert.True(t, ok)
}

func TestLoginRejectsUnknownUser(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	conn := &fakeConn{}
	st := NewState()

	d.Handle(context.Background(), conn, st, frameLine(t, protocol.LoginRequest, "username", "ghost", "password", "pw"))

	f := lastFrame(t, conn)
	assert.Equal(t, protocol.LoginResponse, f.Type)
	status, _ := f.Get("status")
	assert.Equal(t, "1", status)
	assert.False(t, st.Authenticated)
}

func TestLoginSucceedsAndBindsSession(t *testing.T) {
	d, cold, _ := newTestDispatcher(t)
	ctx := context.Background()
	_, err := cold.Register(ctx, "alice", "hunter2", "alice@example.com", "")
	require.NoError(t, err)

	conn := &fakeConn{}
	st := NewState()
	d.Handle(ctx, conn, st, frameLine(t, protocol.LoginRequest, "username", "alice", "password", "hunter2"))

	f := lastFrame(t, conn)
	assert.Equal(t, protocol.LoginResponse, f.Type)
	status, _ := f.Get("status")
	assert.Equal(t, "0", status)
	assert.True(t, st.Authenticated)
	assert.NotZero(t, st.UserID)

	bound, ok := d.Sessions.Lookup(st.UserID)
	require.True(t, ok)
	assert.Same(t, conn, bound)
}

func TestLoginClosesThePriorConnectionOnEviction(t *testing.T) {
	d, cold, _ := newTestDispatcher(t)
	ctx := context.Background()
	_, err := cold.Register(ctx, "alice", "hunter2", "alice@example.com", "")
	require.NoError(t, err)

	firstConn := &fakeConn{}
	firstState := NewState()
	d.Handle(ctx, firstConn, firstState, frameLine(t, protocol.LoginRequest, "username", "alice", "password", "hunter2"))
	require.True(t, firstState.Authenticated)

	secondConn := &fakeConn{}
	secondState := NewState()
	d.Handle(ctx, secondConn, secondState, frameLine(t, protocol.LoginRequest, "username", "alice", "password", "hunter2"))
	require.True(t, secondState.Authenticated)

	assert.True(t, firstConn.closed)
	bound, ok := d.Sessions.Lookup(secondState.UserID)
	require.True(t, ok)
	assert.Same(t, secondConn, bound)
}

func TestRegisterRequiresValidVerificationCode(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	ctx := context.Background()

	conn := &fakeConn{}
	st := NewState()
	d.Handle(ctx, conn, st, frameLine(t, protocol.RegisterRequest,
		"username", "bob", "password", "pw", "email", "bob@example.com", "code", "000000"))

	f := lastFrame(t, conn)
	assert.Equal(t, protocol.RegisterResponse, f.Type)
	status, _ := f.Get("status")
	assert.Equal(t, "1", status)
}

func TestRegisterSucceedsWithValidCode(t *testing.T) {
	d, cold, _ := newTestDispatcher(t)
	ctx := context.Background()

	code, err := d.Verification.Generate(ctx, "bob@example.com")
	require.NoError(t, err)

	conn := &fakeConn{}
	st := NewState()
	d.Handle(ctx, conn, st, frameLine(t, protocol.RegisterRequest,
		"username", "bob", "password", "pw", "email", "bob@example.com", "code", code))

	f := lastFrame(t, conn)
	assert.Equal(t, protocol.RegisterResponse, f.Type)
	status, _ := f.Get("status")
	assert.Equal(t, "0", status)

	exists, err := cold.UsernameExists(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, exists)
}

func loginAs(t *testing.T, d *Dispatcher, cold *coldstore.Memory, username, password, emailAddr string) (conn *fakeConn, st *State, userID int64) {
	t.Helper()
	ctx := context.Background()
	id, err := cold.Register(ctx, username, password, emailAddr, "")
	require.NoError(t, err)

	conn = &fakeConn{}
	st = NewState()
	d.Handle(ctx, conn, st, frameLine(t, protocol.LoginRequest, "username", username, "password", password))
	require.True(t, st.Authenticated)
	return conn, st, id
}

func TestPrivateChatRejectsNonFriend(t *testing.T) {
	d, cold, _ := newTestDispatcher(t)
	ctx := context.Background()
	connA, stA, _ := loginAs(t, d, cold, "alice", "pw", "alice@example.com")
	_, _, idB := loginAs(t, d, cold, "bob", "pw", "bob@example.com")

	connA.sent = nil
	d.Handle(ctx, connA, stA, frameLine(t, protocol.PrivateChat, "toUserId", itoa(idB), "content", "hi"))

	f := lastFrame(t, connA)
	assert.Equal(t, protocol.Error, f.Type)
}

func TestPrivateChatDeliversToLiveFriend(t *testing.T) {
	d, cold, hot := newTestDispatcher(t)
	ctx := context.Background()
	connA, stA, idA := loginAs(t, d, cold, "alice", "pw", "alice@example.com")
	connB, _, idB := loginAs(t, d, cold, "bob", "pw", "bob@example.com")

	require.NoError(t, hot.SetAdd(ctx, "user:"+itoa(idA)+":friends", itoa(idB)))
	require.NoError(t, hot.SetAdd(ctx, "user:"+itoa(idB)+":friends", itoa(idA)))

	connB.sent = nil
	d.Handle(ctx, connA, stA, frameLine(t, protocol.PrivateChat, "toUserId", itoa(idB), "content", "hello bob"))

	f := lastFrame(t, connB)
	assert.Equal(t, protocol.PrivateChat, f.Type)
	content, _ := f.Get("content")
	assert.Equal(t, "hello bob", content)
}

func TestPrivateChatSanitizesContentContainingReservedCharacters(t *testing.T) {
	d, cold, hot := newTestDispatcher(t)
	ctx := context.Background()
	connA, stA, idA := loginAs(t, d, cold, "alice", "pw", "alice@example.com")
	connB, _, idB := loginAs(t, d, cold, "bob", "pw", "bob@example.com")

	require.NoError(t, hot.SetAdd(ctx, "user:"+itoa(idA)+":friends", itoa(idB)))
	require.NoError(t, hot.SetAdd(ctx, "user:"+itoa(idB)+":friends", itoa(idA)))

	connB.sent = nil
	// Decode splits each field on its first '=', so a raw wire line (unlike
	// protocol.NewFrame) can still carry a reserved character past the
	// decoder inside a field value.
	line := "12:toUserId=" + itoa(idB) + ";content=a=b;c=d"
	require.NotPanics(t, func() {
		d.Handle(ctx, connA, stA, line)
	})

	f := lastFrame(t, connB)
	assert.Equal(t, protocol.PrivateChat, f.Type)
	content, _ := f.Get("content")
	assert.NotContains(t, content, "=")
}

func TestAddFriendRequestThenMutualAddAccepts(t *testing.T) {
	d, cold, _ := newTestDispatcher(t)
	ctx := context.Background()
	connA, stA, _ := loginAs(t, d, cold, "alice", "pw", "alice@example.com")
	connB, stB, idB := loginAs(t, d, cold, "bob", "pw", "bob@example.com")
	idA := stA.UserID

	connA.sent = nil
	d.Handle(ctx, connA, stA, frameLine(t, protocol.AddFriendRequest, "friendId", itoa(idB)))
	f := lastFrame(t, connA)
	msg, _ := f.Get("message")
	assert.Equal(t, "friend request sent", msg)

	connB.sent = nil
	d.Handle(ctx, connB, stB, frameLine(t, protocol.AddFriendRequest, "friendId", itoa(idA)))
	f = lastFrame(t, connB)
	msg, _ = f.Get("message")
	assert.Equal(t, "friend request accepted", msg)

	friends, err := d.Core.ListFriends(ctx, idA)
	require.NoError(t, err)
	assert.Contains(t, friends, idB)
}

func TestDecodeErrorProducesErrorFrameWithoutClosing(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	conn := &fakeConn{}
	st := NewState()

	d.Handle(context.Background(), conn, st, "not a valid frame")

	f := lastFrame(t, conn)
	assert.Equal(t, protocol.Error, f.Type)
}

func TestRateLimitExceededProducesErrorFrame(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	conn := &fakeConn{}
	st := NewState()

	for i := 0; i < rateBurst+5; i++ {
		d.Handle(context.Background(), conn, st, frameLine(t, protocol.HeartbeatRequest))
	}

	found := false
	for _, raw := range conn.sent {
		if strings.Contains(raw, "rate limit exceeded") {
			found = true
			break
		}
	}
	assert.True(t, found, "expected at least one rate-limited response among %d frames", len(conn.sent))
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

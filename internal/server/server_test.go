package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaychat/server/internal/coldstore"
	"github.com/relaychat/server/internal/dispatcher"
	"github.com/relaychat/server/internal/email"
	"github.com/relaychat/server/internal/heartbeat"
	"github.com/relaychat/server/internal/hotstore"
	"github.com/relaychat/server/internal/messaging"
	"github.com/relaychat/server/internal/protocol"
	"github.com/relaychat/server/internal/session"
	"github.com/relaychat/server/internal/verification"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	hot := hotstore.NewMemory()
	cold := coldstore.NewMemory()
	logger := testLogger()
	core := messaging.New(hot, cold, cold, messaging.NopPublisher{}, logger)
	sessions := session.New(logger)
	verif := verification.New(logger)
	d := dispatcher.New(core, cold, verif, email.NewFake(), sessions, logger)
	hb := heartbeat.New(sessions, logger)

	return New(Config{AllowedOrigins: []string{"*"}, MaxConnections: 100}, d, sessions, hb, nil, verif, nil, logger)
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return ws
}

func TestHealthEndpointReportsHealthy(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadyEndpointOKWithNoDependenciesWired(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocketRoundTripHeartbeat(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	ws := dial(t, srv)
	defer ws.Close()

	f, err := protocol.NewFrame(protocol.HeartbeatRequest)
	require.NoError(t, err)
	line, err := f.Encode()
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(line)))

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)

	resp, err := protocol.Decode(string(raw))
	require.NoError(t, err)
	assert.Equal(t, protocol.HeartbeatResponse, resp.Type)
}

func TestWebSocketDisconnectMarksUserOffline(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	ctx := context.Background()
	id, err := s.Dispatcher.Users.Register(ctx, "alice", "pw", "alice@example.com", "")
	require.NoError(t, err)

	ws := dial(t, srv)

	loginFrame, err := protocol.NewFrame(protocol.LoginRequest, "username", "alice", "password", "pw")
	require.NoError(t, err)
	line, err := loginFrame.Encode()
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(line)))

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = ws.ReadMessage()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := s.Sessions.Lookup(id)
		return ok
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, ws.Close())

	require.Eventually(t, func() bool {
		_, ok := s.Sessions.Lookup(id)
		return !ok
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		online, err := s.Dispatcher.Core.IsOnline(ctx, id)
		return err == nil && !online
	}, time.Second, 10*time.Millisecond)
}

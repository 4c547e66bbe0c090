// Package server implements the Server (C11): the WebSocket/HTTP transport
// that accepts connections, turns each into a session.Conn bound to
// internal/dispatcher, and owns the lifecycle of the background workers
// (HeartbeatSupervisor, ArchiveWorker). Grounded on
// internal/handlers/chat_handler.go's Hub/Client (upgrader configuration,
// per-connection read/write pumps, origin checking, connection limits) and
// cmd/server/main.go's gin router and graceful-shutdown sequencing,
// generalized from the teacher's HTTP-handler-plus-JSON-message shape onto
// the line-oriented wire protocol internal/protocol encodes.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/relaychat/server/internal/archive"
	"github.com/relaychat/server/internal/dispatcher"
	"github.com/relaychat/server/internal/heartbeat"
	"github.com/relaychat/server/internal/metrics"
	"github.com/relaychat/server/internal/session"
	"github.com/relaychat/server/internal/verification"
)

const (
	maxMessageSize = 65536
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBuffer     = 256

	verificationSweepInterval = 5 * time.Minute
)

// Config controls listen behavior and connection admission, mirroring the
// teacher's handlers.Config.
type Config struct {
	AllowedOrigins []string
	MaxConnections int64
}

// pinger is satisfied by coldstore.Postgres and hotstore.Redis; the
// in-memory test doubles don't implement it, and /ready simply skips
// whichever dependency doesn't.
type pinger interface {
	Ping(ctx context.Context) error
}

// Server owns the HTTP/WebSocket listener and the background workers that
// run alongside it.
type Server struct {
	Dispatcher   *dispatcher.Dispatcher
	Sessions     *session.Registry
	Heartbeat    *heartbeat.Supervisor
	Archive      *archive.Worker
	Verification *verification.Service
	Metrics      *metrics.Registry
	Logger       *logrus.Logger
	Config       Config

	// Database and Redis are consulted by /ready if they implement pinger;
	// either may be nil (e.g. in tests wired against in-memory doubles).
	Database pinger
	Redis    pinger

	upgrader websocket.Upgrader
	active   int64

	httpServer *http.Server

	cleanupStop chan struct{}
	cleanupDone chan struct{}
}

// New builds a Server. Call Start to begin listening.
func New(cfg Config, d *dispatcher.Dispatcher, sessions *session.Registry, hb *heartbeat.Supervisor, aw *archive.Worker, verif *verification.Service, m *metrics.Registry, logger *logrus.Logger) *Server {
	s := &Server{
		Dispatcher:   d,
		Sessions:     sessions,
		Heartbeat:    hb,
		Archive:      aw,
		Verification: verif,
		Metrics:      m,
		Logger:       logger,
		Config:       cfg,
		cleanupStop:  make(chan struct{}),
		cleanupDone:  make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			logger.WithError(reason).Warn("websocket upgrade error")
		},
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	for _, allowed := range s.Config.AllowedOrigins {
		if allowed == "*" || allowed == r.Header.Get("Origin") {
			return true
		}
	}
	s.Logger.WithField("origin", r.Header.Get("Origin")).Warn("rejected websocket connection")
	return false
}

// Router builds the gin engine mounting /ws, /health, /ready, and /metrics,
// matching cmd/server/main.go's endpoint set.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if s.Metrics != nil {
		router.Use(s.prometheusMiddleware())
	}

	router.GET("/ws", s.handleWebSocket)
	router.GET("/health", s.handleHealth)
	router.GET("/ready", s.handleReady)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

func (s *Server) prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		s.Metrics.HTTPDuration.WithLabelValues(c.Request.Method, c.FullPath(), status).Observe(time.Since(start).Seconds())
		s.Metrics.HTTPRequests.WithLabelValues(c.Request.Method, c.FullPath(), status).Inc()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "relaychat-server",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.Database != nil {
		if err := s.Database.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": "database unavailable"})
			return
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": "redis unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	if atomic.LoadInt64(&s.active) >= s.Config.MaxConnections && s.Config.MaxConnections > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server at capacity"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	client := newWsConn(conn)
	atomic.AddInt64(&s.active, 1)
	if s.Metrics != nil {
		s.Metrics.SessionsActive.Set(float64(s.Sessions.Count()))
	}

	go s.writePump(client)
	go s.readPump(client)
}

// wsConn adapts *websocket.Conn to session.Conn. Writes are serialized
// through a single writer goroutine (gorilla/websocket forbids concurrent
// writes on one connection), matching the teacher's Client.send channel.
type wsConn struct {
	conn *websocket.Conn
	send chan string

	closeOnce sync.Once
}

func newWsConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn, send: make(chan string, sendBuffer)}
}

func (c *wsConn) Send(frame string) error {
	select {
	case c.send <- frame:
		return nil
	default:
		return errFullSendBuffer
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

var errFullSendBuffer = errors.New("server: connection send buffer full")

func (s *Server) readPump(client *wsConn) {
	defer func() {
		client.Close()
		s.onDisconnect(client)
	}()

	ctx := context.Background()
	st := dispatcher.NewState()

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.Logger.WithError(err).Debug("websocket read error")
			}
			return
		}
		s.Dispatcher.Handle(ctx, client, st, string(message))
	}
}

func (s *Server) writePump(client *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// onDisconnect unbinds whatever user client was bound to and marks them
// offline, matching spec.md §6.4's presence contract.
func (s *Server) onDisconnect(client *wsConn) {
	atomic.AddInt64(&s.active, -1)
	userID, ok := s.Sessions.RemoveConnection(client)
	if !ok {
		return
	}
	ctx := context.Background()
	if err := s.Dispatcher.Core.MarkOffline(ctx, userID); err != nil {
		s.Logger.WithError(err).WithField("userId", userID).Warn("failed to mark user offline on disconnect")
	}
	if err := s.Dispatcher.Users.SetOnline(ctx, userID, false); err != nil {
		s.Logger.WithError(err).WithField("userId", userID).Warn("failed to persist offline state on disconnect")
	}
	if s.Metrics != nil {
		s.Metrics.SessionsActive.Set(float64(s.Sessions.Count()))
	}
}

// Start begins serving on addr, and spawns the HeartbeatSupervisor,
// ArchiveWorker, and verification-code sweeper goroutines.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:           addr,
		Handler:        s.Router(),
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	if s.Heartbeat != nil {
		go s.Heartbeat.Run(context.Background())
	}
	if s.Archive != nil {
		go s.Archive.Run()
	}
	if s.Verification != nil {
		go s.sweepVerificationCodes()
	}

	s.Logger.WithField("addr", addr).Info("listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) sweepVerificationCodes() {
	defer close(s.cleanupDone)
	ticker := time.NewTicker(verificationSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.cleanupStop:
			return
		case <-ticker.C:
			if n := s.Verification.CleanupExpired(context.Background()); n > 0 {
				s.Logger.WithField("count", n).Debug("swept expired verification codes")
			}
		}
	}
}

// Shutdown drains the HTTP listener and stops the background workers,
// matching cmd/server/main.go's SIGINT/SIGTERM sequence.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	if s.Heartbeat != nil {
		s.Heartbeat.Stop()
	}
	if s.Archive != nil {
		s.Archive.Stop()
	}
	if s.Verification != nil {
		close(s.cleanupStop)
		<-s.cleanupDone
	}
	return err
}

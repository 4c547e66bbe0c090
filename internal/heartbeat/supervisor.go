// Package heartbeat implements HeartbeatSupervisor (C9): a periodic scan
// that force-closes connections idle past a threshold. Grounded on
// internal/handlers/chat_handler.go's cleanupInactiveClients (ticker-driven
// idle sweep), generalized to delegate the scan to session.Registry.SweepIdle
// instead of locking a Hub's own client map directly.
package heartbeat

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/relaychat/server/internal/session"
)

const (
	tickInterval  = 20 * time.Second
	idleThreshold = 60 * time.Second
)

// Supervisor owns the idle-connection sweep ticker.
type Supervisor struct {
	registry *session.Registry
	logger   *logrus.Logger

	stop chan struct{}
	done chan struct{}
}

// New builds a Supervisor bound to registry.
func New(registry *session.Registry, logger *logrus.Logger) *Supervisor {
	return &Supervisor{
		registry: registry,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run blocks, ticking every 20s and force-closing connections idle beyond
// 60s, until ctx is cancelled or Stop is called. Force-closing a connection
// triggers the transport's disconnect callback, which is responsible for
// calling Registry.RemoveConnection and marking the user offline.
func (s *Supervisor) Run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Supervisor) sweep() {
	idle := s.registry.SweepIdle(idleThreshold)
	for _, conn := range idle {
		if err := conn.Close(); err != nil {
			s.logger.WithError(err).Debug("error force-closing idle connection")
		}
	}
	if len(idle) > 0 {
		s.logger.WithField("count", len(idle)).Info("force-closed idle connections")
	}
}

// Stop signals Run to exit and waits for it to do so.
func (s *Supervisor) Stop() {
	close(s.stop)
	<-s.done
}

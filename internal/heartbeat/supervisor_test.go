package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaychat/server/internal/session"
)

type fakeConn struct {
	closed bool
}

func (c *fakeConn) Send(string) error { return nil }
func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestSweepForceClosesIdleConnections(t *testing.T) {
	registry := session.New(testLogger())
	conn := &fakeConn{}
	registry.Bind(1, conn)

	s := New(registry, testLogger())
	s.sweep()
	assert.False(t, conn.closed, "fresh binding should not be swept at default threshold")

	idle := registry.SweepIdle(0)
	require.Len(t, idle, 1)
	require.NoError(t, idle[0].Close())
	assert.True(t, conn.closed)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	registry := session.New(testLogger())
	s := New(registry, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after context cancellation")
	}
}

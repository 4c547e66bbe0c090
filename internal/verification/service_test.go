package verification

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestGenerateProducesSixDigitCode(t *testing.T) {
	s := New(testLogger())
	code, err := s.Generate(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Len(t, code, codeLength)
	for _, r := range code {
		assert.True(t, r >= '0' && r <= '9')
	}
}

func TestVerifySucceedsOnceThenFails(t *testing.T) {
	ctx := context.Background()
	s := New(testLogger())
	code, err := s.Generate(ctx, "alice@example.com")
	require.NoError(t, err)

	assert.True(t, s.Verify(ctx, "alice@example.com", code))
	assert.False(t, s.Verify(ctx, "alice@example.com", code))
}

func TestVerifyFailsOnWrongCode(t *testing.T) {
	ctx := context.Background()
	s := New(testLogger())
	_, err := s.Generate(ctx, "alice@example.com")
	require.NoError(t, err)

	assert.False(t, s.Verify(ctx, "alice@example.com", "000000"))
}

func TestVerifySucceedsAfterAnEarlierWrongAttempt(t *testing.T) {
	ctx := context.Background()
	s := New(testLogger())
	code, err := s.Generate(ctx, "alice@example.com")
	require.NoError(t, err)

	assert.False(t, s.Verify(ctx, "alice@example.com", "000000"))
	assert.True(t, s.Verify(ctx, "alice@example.com", code))
}

func TestVerifyFailsOnUnknownEmail(t *testing.T) {
	s := New(testLogger())
	assert.False(t, s.Verify(context.Background(), "nobody@example.com", "123456"))
}

func TestVerifyFailsOnExpiredCode(t *testing.T) {
	ctx := context.Background()
	s := New(testLogger())
	code, err := s.Generate(ctx, "alice@example.com")
	require.NoError(t, err)

	s.mu.Lock()
	e := s.codes["alice@example.com"]
	e.expiresAt = time.Now().Add(-time.Second)
	s.codes["alice@example.com"] = e
	s.mu.Unlock()

	assert.False(t, s.Verify(ctx, "alice@example.com", code))
}

func TestCleanupExpiredRemovesOnlyPastEntries(t *testing.T) {
	ctx := context.Background()
	s := New(testLogger())
	_, err := s.Generate(ctx, "fresh@example.com")
	require.NoError(t, err)
	_, err = s.Generate(ctx, "stale@example.com")
	require.NoError(t, err)

	s.mu.Lock()
	e := s.codes["stale@example.com"]
	e.expiresAt = time.Now().Add(-time.Second)
	s.codes["stale@example.com"] = e
	s.mu.Unlock()

	removed := s.CleanupExpired(ctx)
	assert.Equal(t, 1, removed)

	s.mu.Lock()
	_, staleStillThere := s.codes["stale@example.com"]
	_, freshStillThere := s.codes["fresh@example.com"]
	s.mu.Unlock()
	assert.False(t, staleStillThere)
	assert.True(t, freshStillThere)
}

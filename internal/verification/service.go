// Package verification implements the verification-code workflow (C4):
// a one-time numeric code issued against an email address, redeemed once,
// and expired after a fixed window. Grounded on
// original_source/src/service/VerificationCodeService.cpp, translated from
// its singleton-plus-mutex-map design into an injectable Go type.
package verification

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	codeLength  = 6
	codeExpiry  = 10 * time.Minute
)

type entry struct {
	code      string
	expiresAt time.Time
}

// Service issues and redeems verification codes keyed by email address.
// One process-wide instance is expected, used by the registration flow.
type Service struct {
	mu     sync.Mutex
	codes  map[string]entry
	logger *logrus.Logger
}

// New builds an empty Service.
func New(logger *logrus.Logger) *Service {
	return &Service{
		codes:  make(map[string]entry),
		logger: logger,
	}
}

// Generate issues a fresh 6-digit code for email, overwriting any code
// already pending for that address.
func (s *Service) Generate(_ context.Context, email string) (string, error) {
	code, err := randomDigits(codeLength)
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}

	s.mu.Lock()
	s.codes[email] = entry{code: code, expiresAt: time.Now().Add(codeExpiry)}
	s.mu.Unlock()

	s.logger.WithField("email", email).Info("verification code generated")
	return code, nil
}

// Verify redeems the code for email. A matching code is single-use and is
// removed once redeemed; an expired code is removed on lookup so its
// absence is reported consistently. A mismatched-but-unexpired code is left
// in place so the caller can retry.
func (s *Service) Verify(_ context.Context, email, code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.codes[email]
	if !ok {
		s.logger.WithField("email", email).Info("no verification code pending")
		return false
	}

	if time.Now().After(e.expiresAt) {
		delete(s.codes, email)
		s.logger.WithField("email", email).Info("verification code expired")
		return false
	}

	if e.code != code {
		s.logger.WithField("email", email).Info("verification code mismatch")
		return false
	}

	delete(s.codes, email)
	return true
}

// CleanupExpired drops any pending code past its expiry without requiring a
// Verify call, bounding memory use for addresses that never complete the
// flow. Intended to be swept periodically by the caller (the Server's
// background tickers alongside HeartbeatSupervisor).
func (s *Service) CleanupExpired(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for email, e := range s.codes {
		if now.After(e.expiresAt) {
			delete(s.codes, email)
			removed++
		}
	}
	return removed
}

func randomDigits(n int) (string, error) {
	digits := make([]byte, n)
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		digits[i] = '0' + b%10
	}
	return string(digits), nil
}

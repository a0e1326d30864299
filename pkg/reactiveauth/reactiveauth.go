// Package reactiveauth guards the transport layer's surface onto a reactive
// graph with a single bearer capability: a caller either holds a token
// issued by this process, or it doesn't. There is no user directory, no
// role model — a watch subscription is either allowed or it isn't, because
// the thing being protected is "can see this collection's live contents",
// not "can perform operation X as user Y".
package reactiveauth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLength     = 16
	iterationCount = 4096
	keyLength      = 32
)

var (
	// ErrUnauthorized is returned by Check for a missing, malformed or
	// expired token.
	ErrUnauthorized = errors.New("reactiveauth: unauthorized")
)

// Manager issues and checks bearer tokens scoped to this process's
// lifetime. Tokens are opaque base64 strings; the manager itself is the
// only place that can map one back to a valid session.
type Manager struct {
	mu       sync.RWMutex
	secret   []byte
	sessions map[string]time.Time // token -> expiry
	ttl      time.Duration
}

// NewManager returns a Manager that derives its HMAC key from secret via
// PBKDF2. A zero-length secret is a programming error — the caller must
// supply real entropy (e.g. from a config-loaded value or crypto/rand at
// startup).
func NewManager(secret []byte, ttl time.Duration) (*Manager, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("reactiveauth: empty secret")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("reactiveauth: generating salt: %w", err)
	}
	key := pbkdf2.Key(secret, salt, iterationCount, keyLength, sha256.New)
	return &Manager{
		secret:   key,
		sessions: make(map[string]time.Time),
		ttl:      ttl,
	}, nil
}

// IssueToken mints a fresh bearer token valid for the manager's configured
// TTL.
func (m *Manager) IssueToken() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("reactiveauth: generating token: %w", err)
	}
	mac := hmac.New(sha256.New, m.secret)
	mac.Write(raw)
	signed := append(raw, mac.Sum(nil)...)
	token := base64.URLEncoding.EncodeToString(signed)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = time.Now().Add(m.ttl)
	return token, nil
}

// Check reports whether token is currently valid. It returns ErrUnauthorized
// for anything else, without distinguishing "never issued" from "expired"
// to an external caller.
func (m *Manager) Check(token string) error {
	if token == "" {
		return ErrUnauthorized
	}
	m.mu.RLock()
	expiresAt, ok := m.sessions[token]
	m.mu.RUnlock()
	if !ok {
		return ErrUnauthorized
	}
	if time.Now().After(expiresAt) {
		m.mu.Lock()
		delete(m.sessions, token)
		m.mu.Unlock()
		return ErrUnauthorized
	}
	return nil
}

// Revoke invalidates token immediately, regardless of its remaining TTL.
func (m *Manager) Revoke(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

// CleanupExpired drops every session whose TTL has passed. Callers
// typically run this from a ticker goroutine (see cmd/server).
func (m *Manager) CleanupExpired() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for tok, expiresAt := range m.sessions {
		if now.After(expiresAt) {
			delete(m.sessions, tok)
		}
	}
}

// ParseBearer extracts the token from an Authorization header of the form
// "Bearer <token>".
func ParseBearer(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", fmt.Errorf("reactiveauth: %w: malformed Authorization header", ErrUnauthorized)
	}
	return strings.TrimPrefix(header, prefix), nil
}

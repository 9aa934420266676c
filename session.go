package ar24

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/connected-company/ar24-go/internal/transport"
)

// ErrHashNotFound is returned by a HashStore that holds no hash for a user.
var ErrHashNotFound = errors.New("ar24: auth hash not found")

// AuthHash is the hash returned by an OTP authentication, valid until
// ExpiresAt.
type AuthHash struct {
	Hash      string    `json:"hash"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the hash is set and not expired at now.
func (h AuthHash) Valid(now time.Time) bool {
	return h.Hash != "" && now.Before(h.ExpiresAt)
}

// HashStore shares auth hashes between clients, keyed by AR24 user id.
// Load returns ErrHashNotFound when nothing is stored.
type HashStore interface {
	Load(ctx context.Context, userID string) (AuthHash, error)
	Save(ctx context.Context, userID string, hash AuthHash) error
}

// Session is a registered sender: its credentials, its AR24 user id and the
// cached auth hash of its last OTP authentication.
type Session struct {
	sender *Sender
	userID string

	mu   sync.Mutex
	hash AuthHash
}

func newSession(sender *Sender, userID string) *Session {
	return &Session{sender: sender, userID: userID}
}

// Sender returns the sender the session belongs to.
func (s *Session) Sender() *Sender { return s.sender }

// UserID returns the AR24 user id resolved at registration.
func (s *Session) UserID() string { return s.userID }

// AuthHash returns the cached hash, possibly expired or empty.
func (s *Session) AuthHash() AuthHash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hash
}

func (s *Session) credentials() transport.Credentials {
	return transport.Credentials{Token: s.sender.token, UserID: s.userID}
}

// refreshFunc obtains a new hash. resp is nil when no round trip was made.
type refreshFunc func() (hash AuthHash, resp *AuthenticateResponse, err error)

// refreshIfNeeded calls refresh unless the cached hash is valid at now().
// The lock is held across refresh, so concurrent callers on the same session
// share one round trip. On error the cache is left unchanged.
func (s *Session) refreshIfNeeded(now func() time.Time, refresh refreshFunc) (*AuthenticateResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hash.Valid(now()) {
		return nil, nil
	}

	hash, resp, err := refresh()
	if err != nil {
		return nil, err
	}

	s.hash = hash
	return resp, nil
}

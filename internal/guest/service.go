// Package guest manages session credentials for external client principals.
// A client logs in with its long-lived static token; the service issues a
// random session token, stores only its sha256 hash, and hands the raw value
// back for the HTTP layer to set as a cookie. A data-store compromise alone
// therefore cannot be replayed as a session.
package guest

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"docuport/api/internal/store"
)

// SessionTTL bounds both the cookie max-age and the server-side expiry
// checked in Verify.
const SessionTTL = 7 * 24 * time.Hour

var ErrInvalidCredentials = errors.New("invalid email or login token")

// ClientStore is the subset of the data store the service needs.
type ClientStore interface {
	FindClientByEmailAndToken(ctx context.Context, email, loginToken string) (store.Client, error)
	UpdateClientSession(ctx context.Context, clientID, sessionTokenHash string, expiresAt time.Time) error
	FindClientBySessionTokenHash(ctx context.Context, hash string, now time.Time) (store.Client, error)
	ClearClientSessionByHash(ctx context.Context, hash string) error
}

type Service struct {
	store ClientStore
	now   func() time.Time
}

func NewService(clientStore ClientStore) *Service {
	return &Service{store: clientStore, now: time.Now}
}

// HashToken is the one-way hash under which session tokens are persisted.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// Login authenticates a client by (email, login token) and rotates its
// session. The returned raw token exists only in the response cookie.
func (s *Service) Login(ctx context.Context, email, loginToken string) (string, store.Client, error) {
	if email == "" || loginToken == "" {
		return "", store.Client{}, ErrInvalidCredentials
	}

	client, err := s.store.FindClientByEmailAndToken(ctx, email, loginToken)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.Client{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", store.Client{}, fmt.Errorf("lookup client: %w", err)
	}

	raw, err := newSessionToken()
	if err != nil {
		return "", store.Client{}, err
	}

	expiresAt := s.now().Add(SessionTTL)
	if err := s.store.UpdateClientSession(ctx, client.ID, HashToken(raw), expiresAt); err != nil {
		return "", store.Client{}, err
	}
	return raw, client, nil
}

// Verify resolves a raw session token to its client. A miss returns
// (nil, nil): unauthenticated is normal control flow, not a fault.
func (s *Service) Verify(ctx context.Context, raw string) (*store.Client, error) {
	if raw == "" {
		return nil, nil
	}
	client, err := s.store.FindClientBySessionTokenHash(ctx, HashToken(raw), s.now())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	return &client, nil
}

// Logout clears the session matching the raw token. Unknown tokens are a
// no-op so logout is idempotent.
func (s *Service) Logout(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	return s.store.ClearClientSessionByHash(ctx, HashToken(raw))
}

func newSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Package invite issues and redeems single-use, expiring team-join tokens.
package invite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"docuport/api/internal/store"
	"docuport/api/internal/util"
)

// TTL is how long an invitation stays redeemable after issuance.
const TTL = 15 * time.Minute

var (
	ErrInvalidToken = errors.New("invalid invitation token")
	ErrExpiredToken = errors.New("expired invitation token")
)

// InvitationStore is the subset of the data store the service needs.
// DeleteInvitationByToken must be atomic (delete-returning), so concurrent
// redeems of one token cannot both succeed.
type InvitationStore interface {
	InsertInvitation(ctx context.Context, inv store.TeamInvitation) error
	FindInvitationByToken(ctx context.Context, token string) (store.TeamInvitation, error)
	DeleteInvitation(ctx context.Context, invitationID string) error
	DeleteInvitationByToken(ctx context.Context, token string) (store.TeamInvitation, error)
	DeleteExpiredInvitations(ctx context.Context, before time.Time) (int, error)
}

type Service struct {
	store InvitationStore
	now   func() time.Time
}

func NewService(invitationStore InvitationStore) *Service {
	return &Service{store: invitationStore, now: time.Now}
}

// Issue creates an invitation scoped to one team and one email. Multiple
// outstanding invitations per team may coexist.
func (s *Service) Issue(ctx context.Context, teamID, email string) (store.TeamInvitation, error) {
	token, err := newInviteToken()
	if err != nil {
		return store.TeamInvitation{}, err
	}
	inv := store.TeamInvitation{
		ID:        util.NewID("inv"),
		TeamID:    teamID,
		Email:     email,
		Token:     token,
		ExpiresAt: s.now().Add(TTL),
	}
	if err := s.store.InsertInvitation(ctx, inv); err != nil {
		return store.TeamInvitation{}, err
	}
	return inv, nil
}

// Validate looks an invitation up without consuming it. An expired row is
// purged on first touch, so a later Validate on the same token reports
// ErrInvalidToken rather than ErrExpiredToken.
func (s *Service) Validate(ctx context.Context, token string) (store.TeamInvitation, error) {
	inv, err := s.store.FindInvitationByToken(ctx, token)
	if errors.Is(err, sql.ErrNoRows) {
		return store.TeamInvitation{}, ErrInvalidToken
	}
	if err != nil {
		return store.TeamInvitation{}, fmt.Errorf("lookup invitation: %w", err)
	}
	if s.now().After(inv.ExpiresAt) {
		if err := s.store.DeleteInvitation(ctx, inv.ID); err != nil {
			return store.TeamInvitation{}, err
		}
		return store.TeamInvitation{}, ErrExpiredToken
	}
	return inv, nil
}

// Consume deletes a validated invitation. Callers invoke this only after the
// invitee has been added to the team.
func (s *Service) Consume(ctx context.Context, invitationID string) error {
	return s.store.DeleteInvitation(ctx, invitationID)
}

// Redeem removes and returns the invitation in a single conditional delete.
// Exactly one of two concurrent redeems can win; the loser sees
// ErrInvalidToken. An expired row is consumed by the delete but still
// rejected.
func (s *Service) Redeem(ctx context.Context, token string) (store.TeamInvitation, error) {
	inv, err := s.store.DeleteInvitationByToken(ctx, token)
	if errors.Is(err, sql.ErrNoRows) {
		return store.TeamInvitation{}, ErrInvalidToken
	}
	if err != nil {
		return store.TeamInvitation{}, fmt.Errorf("redeem invitation: %w", err)
	}
	if s.now().After(inv.ExpiresAt) {
		return store.TeamInvitation{}, ErrExpiredToken
	}
	return inv, nil
}

// Sweep purges invitations whose expiry has passed, bounding growth from
// abandoned tokens.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	return s.store.DeleteExpiredInvitations(ctx, s.now())
}

// RunSweeper runs Sweep on the given interval until ctx is cancelled.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.Sweep(ctx); err != nil {
				log.Printf("invitation sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("invitation sweep removed %d expired tokens", n)
			}
		}
	}
}

func newInviteToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate invitation token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

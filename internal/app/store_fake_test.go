package app

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"docuport/api/internal/store"
)

// fakeStore is an in-memory dataStore for service and handler tests.
type fakeStore struct {
	mu          sync.Mutex
	clients     map[string]store.Client
	teams       map[string]store.Team
	members     map[string]map[string]bool
	invitations map[string]store.TeamInvitation
	documents   map[string]store.Document
	files       map[string]store.DocumentFile
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		clients:     map[string]store.Client{},
		teams:       map[string]store.Team{},
		members:     map[string]map[string]bool{},
		invitations: map[string]store.TeamInvitation{},
		documents:   map[string]store.Document{},
		files:       map[string]store.DocumentFile{},
	}
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) InsertClient(_ context.Context, c store.Client) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients[c.ID] = c
	return nil
}

func (f *fakeStore) GetClient(_ context.Context, clientID string) (store.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[clientID]
	if !ok {
		return store.Client{}, sql.ErrNoRows
	}
	return c, nil
}

func (f *fakeStore) ListClients(context.Context) ([]store.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var clients []store.Client
	for _, c := range f.clients {
		clients = append(clients, c)
	}
	return clients, nil
}

func (f *fakeStore) FindClientByEmailAndToken(_ context.Context, email, loginToken string) (store.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.clients {
		if c.Email == email && c.LoginToken == loginToken {
			return c, nil
		}
	}
	return store.Client{}, sql.ErrNoRows
}

func (f *fakeStore) UpdateClientSession(_ context.Context, clientID, hash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[clientID]
	if !ok {
		return sql.ErrNoRows
	}
	c.SessionTokenHash = &hash
	c.SessionExpiresAt = &expiresAt
	f.clients[clientID] = c
	return nil
}

func (f *fakeStore) FindClientBySessionTokenHash(_ context.Context, hash string, now time.Time) (store.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.clients {
		if c.SessionTokenHash != nil && *c.SessionTokenHash == hash &&
			c.SessionExpiresAt != nil && c.SessionExpiresAt.After(now) {
			return c, nil
		}
	}
	return store.Client{}, sql.ErrNoRows
}

func (f *fakeStore) ClearClientSessionByHash(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.clients {
		if c.SessionTokenHash != nil && *c.SessionTokenHash == hash {
			c.SessionTokenHash = nil
			c.SessionExpiresAt = nil
			f.clients[id] = c
		}
	}
	return nil
}

func (f *fakeStore) InsertTeam(_ context.Context, t store.Team) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teams[t.ID] = t
	return nil
}

func (f *fakeStore) GetTeam(_ context.Context, teamID string) (store.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.teams[teamID]
	if !ok {
		return store.Team{}, sql.ErrNoRows
	}
	return t, nil
}

func (f *fakeStore) AddTeamMember(_ context.Context, teamID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[teamID] == nil {
		f.members[teamID] = map[string]bool{}
	}
	f.members[teamID][userID] = true
	return nil
}

func (f *fakeStore) IsTeamMember(_ context.Context, teamID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[teamID][userID], nil
}

func (f *fakeStore) InsertInvitation(_ context.Context, inv store.TeamInvitation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invitations[inv.Token] = inv
	return nil
}

func (f *fakeStore) FindInvitationByToken(_ context.Context, token string) (store.TeamInvitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invitations[token]
	if !ok {
		return store.TeamInvitation{}, sql.ErrNoRows
	}
	return inv, nil
}

func (f *fakeStore) DeleteInvitation(_ context.Context, invitationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for token, inv := range f.invitations {
		if inv.ID == invitationID {
			delete(f.invitations, token)
		}
	}
	return nil
}

func (f *fakeStore) DeleteInvitationByToken(_ context.Context, token string) (store.TeamInvitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invitations[token]
	if !ok {
		return store.TeamInvitation{}, sql.ErrNoRows
	}
	delete(f.invitations, token)
	return inv, nil
}

func (f *fakeStore) DeleteExpiredInvitations(_ context.Context, before time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	removed := 0
	for token, inv := range f.invitations {
		if !inv.ExpiresAt.After(before) {
			delete(f.invitations, token)
			removed++
		}
	}
	return removed, nil
}

func (f *fakeStore) InsertDocument(_ context.Context, d store.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents[d.ID] = d
	return nil
}

func (f *fakeStore) GetDocument(_ context.Context, documentID string) (store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.documents[documentID]
	if !ok {
		return store.Document{}, sql.ErrNoRows
	}
	return d, nil
}

func (f *fakeStore) ListDocuments(context.Context) ([]store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var docs []store.Document
	for _, d := range f.documents {
		docs = append(docs, d)
	}
	return docs, nil
}

func (f *fakeStore) ListDocumentsByClient(_ context.Context, clientID string) ([]store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var docs []store.Document
	for _, d := range f.documents {
		if d.ClientID == clientID {
			docs = append(docs, d)
		}
	}
	return docs, nil
}

func (f *fakeStore) UpdateStoredStatus(_ context.Context, documentID, storedStatus string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.documents[documentID]
	if !ok {
		return sql.ErrNoRows
	}
	d.StoredStatus = storedStatus
	f.documents[documentID] = d
	return nil
}

func (f *fakeStore) UpdateTrackingWindow(_ context.Context, documentID string, startTrackAt, endTrackAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.documents[documentID]
	if !ok {
		return sql.ErrNoRows
	}
	d.StartTrackAt = startTrackAt
	d.EndTrackAt = endTrackAt
	f.documents[documentID] = d
	return nil
}

func (f *fakeStore) SetDocumentCompleted(_ context.Context, documentID string, completedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.documents[documentID]
	if !ok || d.CompletedAt != nil {
		return false, nil
	}
	d.CompletedAt = &completedAt
	d.StoredStatus = "COMPLETED"
	f.documents[documentID] = d
	return true, nil
}

func (f *fakeStore) SetDocumentApproved(_ context.Context, documentID string, approvedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.documents[documentID]
	if !ok || d.ApprovedAt != nil {
		return false, nil
	}
	d.ApprovedAt = &approvedAt
	f.documents[documentID] = d
	return true, nil
}

func (f *fakeStore) ListActiveForNotification(context.Context) ([]store.NotificationTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var targets []store.NotificationTarget
	for _, d := range f.documents {
		if d.StoredStatus != "IN_PROGRESS" || d.CompletedAt != nil {
			continue
		}
		c, ok := f.clients[d.ClientID]
		if !ok {
			continue
		}
		targets = append(targets, store.NotificationTarget{
			DocumentID:  d.ID,
			Title:       d.Title,
			ClientEmail: c.Email,
			EndTrackAt:  d.EndTrackAt,
		})
	}
	return targets, nil
}

func (f *fakeStore) InsertDocumentFile(_ context.Context, file store.DocumentFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[file.ID] = file
	return nil
}

func (f *fakeStore) GetDocumentFile(_ context.Context, fileID string) (store.DocumentFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[fileID]
	if !ok {
		return store.DocumentFile{}, sql.ErrNoRows
	}
	return file, nil
}

func (f *fakeStore) ListDocumentFiles(_ context.Context, documentID string) ([]store.DocumentFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var files []store.DocumentFile
	for _, file := range f.files {
		if file.DocumentID == documentID {
			files = append(files, file)
		}
	}
	return files, nil
}

func (f *fakeStore) DeleteDocumentFile(_ context.Context, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, fileID)
	return nil
}

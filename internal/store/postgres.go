package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- clients ---

const clientColumns = `id, company_name, email, login_token, session_token_hash, session_expires_at, created_at, updated_at`

func scanClient(row *sql.Row) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.CompanyName, &c.Email, &c.LoginToken, &c.SessionTokenHash, &c.SessionExpiresAt, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *PostgresStore) InsertClient(ctx context.Context, c Client) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, company_name, email, login_token)
		VALUES ($1, $2, $3, $4)
	`, c.ID, c.CompanyName, c.Email, c.LoginToken)
	if err != nil {
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetClient(ctx context.Context, clientID string) (Client, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id=$1`, clientID)
	return scanClient(row)
}

func (s *PostgresStore) ListClients(ctx context.Context) ([]Client, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY company_name`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.CompanyName, &c.Email, &c.LoginToken, &c.SessionTokenHash, &c.SessionExpiresAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (s *PostgresStore) FindClientByEmailAndToken(ctx context.Context, email, loginToken string) (Client, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+clientColumns+` FROM clients WHERE email=$1 AND login_token=$2
	`, email, loginToken)
	return scanClient(row)
}

func (s *PostgresStore) UpdateClientSession(ctx context.Context, clientID, sessionTokenHash string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE clients SET session_token_hash=$2, session_expires_at=$3, updated_at=NOW() WHERE id=$1
	`, clientID, sessionTokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("update client session: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindClientBySessionTokenHash(ctx context.Context, hash string, now time.Time) (Client, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+clientColumns+` FROM clients
		WHERE session_token_hash=$1 AND session_expires_at > $2
	`, hash, now)
	return scanClient(row)
}

func (s *PostgresStore) ClearClientSessionByHash(ctx context.Context, hash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE clients SET session_token_hash=NULL, session_expires_at=NULL, updated_at=NOW()
		WHERE session_token_hash=$1
	`, hash)
	if err != nil {
		return fmt.Errorf("clear client session: %w", err)
	}
	return nil
}

// --- teams ---

func (s *PostgresStore) InsertTeam(ctx context.Context, t Team) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO teams (id, name, owner_id) VALUES ($1, $2, $3)
	`, t.ID, t.Name, t.OwnerID)
	if err != nil {
		return fmt.Errorf("insert team: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTeam(ctx context.Context, teamID string) (Team, error) {
	var t Team
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, owner_id, created_at FROM teams WHERE id=$1
	`, teamID).Scan(&t.ID, &t.Name, &t.OwnerID, &t.CreatedAt)
	return t, err
}

func (s *PostgresStore) AddTeamMember(ctx context.Context, teamID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO team_members (team_id, user_id) VALUES ($1, $2)
		ON CONFLICT (team_id, user_id) DO NOTHING
	`, teamID, userID)
	if err != nil {
		return fmt.Errorf("add team member: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsTeamMember(ctx context.Context, teamID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM team_members WHERE team_id=$1 AND user_id=$2)
	`, teamID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check team member: %w", err)
	}
	return exists, nil
}

// --- invitations ---

func (s *PostgresStore) InsertInvitation(ctx context.Context, inv TeamInvitation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO team_invitations (id, team_id, email, token, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, inv.ID, inv.TeamID, inv.Email, inv.Token, inv.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert invitation: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindInvitationByToken(ctx context.Context, token string) (TeamInvitation, error) {
	var inv TeamInvitation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, team_id, email, token, expires_at, created_at
		FROM team_invitations WHERE token=$1
	`, token).Scan(&inv.ID, &inv.TeamID, &inv.Email, &inv.Token, &inv.ExpiresAt, &inv.CreatedAt)
	return inv, err
}

func (s *PostgresStore) DeleteInvitation(ctx context.Context, invitationID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM team_invitations WHERE id=$1`, invitationID)
	if err != nil {
		return fmt.Errorf("delete invitation: %w", err)
	}
	return nil
}

// DeleteInvitationByToken removes the row and returns it in one statement,
// so two concurrent redeems of the same token cannot both succeed.
func (s *PostgresStore) DeleteInvitationByToken(ctx context.Context, token string) (TeamInvitation, error) {
	var inv TeamInvitation
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM team_invitations WHERE token=$1
		RETURNING id, team_id, email, token, expires_at, created_at
	`, token).Scan(&inv.ID, &inv.TeamID, &inv.Email, &inv.Token, &inv.ExpiresAt, &inv.CreatedAt)
	return inv, err
}

func (s *PostgresStore) DeleteExpiredInvitations(ctx context.Context, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM team_invitations WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired invitations: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// --- documents ---

const documentColumns = `id, title, stored_status, start_track_at, end_track_at, completed_at, approved_at, approval_required, client_id, created_by, team_id, created_at, updated_at`

func scanDocument(scan func(dest ...any) error) (Document, error) {
	var d Document
	err := scan(&d.ID, &d.Title, &d.StoredStatus, &d.StartTrackAt, &d.EndTrackAt, &d.CompletedAt, &d.ApprovedAt, &d.ApprovalRequired, &d.ClientID, &d.CreatedBy, &d.TeamID, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (s *PostgresStore) InsertDocument(ctx context.Context, d Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, stored_status, start_track_at, end_track_at, approval_required, client_id, created_by, team_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, d.ID, d.Title, d.StoredStatus, d.StartTrackAt, d.EndTrackAt, d.ApprovalRequired, d.ClientID, d.CreatedBy, d.TeamID)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, documentID)
	return scanDocument(row.Scan)
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]Document, error) {
	return s.queryDocuments(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY end_track_at`)
}

func (s *PostgresStore) ListDocumentsByClient(ctx context.Context, clientID string) ([]Document, error) {
	return s.queryDocuments(ctx, `SELECT `+documentColumns+` FROM documents WHERE client_id=$1 ORDER BY end_track_at`, clientID)
}

func (s *PostgresStore) queryDocuments(ctx context.Context, query string, args ...any) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) UpdateStoredStatus(ctx context.Context, documentID, storedStatus string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents SET stored_status=$2, updated_at=NOW() WHERE id=$1
	`, documentID, storedStatus)
	if err != nil {
		return fmt.Errorf("update stored status: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTrackingWindow(ctx context.Context, documentID string, startTrackAt, endTrackAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents SET start_track_at=$2, end_track_at=$3, updated_at=NOW() WHERE id=$1
	`, documentID, startTrackAt, endTrackAt)
	if err != nil {
		return fmt.Errorf("update tracking window: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetDocumentCompleted stamps completed_at exactly once; a second call
// reports no rows changed.
func (s *PostgresStore) SetDocumentCompleted(ctx context.Context, documentID string, completedAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents SET completed_at=$2, stored_status='COMPLETED', updated_at=NOW()
		WHERE id=$1 AND completed_at IS NULL
	`, documentID, completedAt)
	if err != nil {
		return false, fmt.Errorf("set document completed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *PostgresStore) SetDocumentApproved(ctx context.Context, documentID string, approvedAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents SET approved_at=$2, updated_at=NOW()
		WHERE id=$1 AND approved_at IS NULL
	`, documentID, approvedAt)
	if err != nil {
		return false, fmt.Errorf("set document approved: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListActiveForNotification returns tracked, uncompleted documents joined
// with their client's email for the deadline notifier.
func (s *PostgresStore) ListActiveForNotification(ctx context.Context) ([]NotificationTarget, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.title, c.email, d.end_track_at
		FROM documents d
		JOIN clients c ON c.id = d.client_id
		WHERE d.stored_status = 'IN_PROGRESS' AND d.completed_at IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("list notification targets: %w", err)
	}
	defer rows.Close()

	var targets []NotificationTarget
	for rows.Next() {
		var t NotificationTarget
		if err := rows.Scan(&t.DocumentID, &t.Title, &t.ClientEmail, &t.EndTrackAt); err != nil {
			return nil, fmt.Errorf("scan notification target: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// --- document files ---

const fileColumns = `id, document_id, kind, name, locator, size, encrypted, iv, uploaded_by, created_at`

func (s *PostgresStore) InsertDocumentFile(ctx context.Context, f DocumentFile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_files (id, document_id, kind, name, locator, size, encrypted, iv, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, f.ID, f.DocumentID, f.Kind, f.Name, f.Locator, f.Size, f.Encrypted, f.IV, f.UploadedBy)
	if err != nil {
		return fmt.Errorf("insert document file: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocumentFile(ctx context.Context, fileID string) (DocumentFile, error) {
	var f DocumentFile
	err := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM document_files WHERE id=$1`, fileID).
		Scan(&f.ID, &f.DocumentID, &f.Kind, &f.Name, &f.Locator, &f.Size, &f.Encrypted, &f.IV, &f.UploadedBy, &f.CreatedAt)
	return f, err
}

func (s *PostgresStore) ListDocumentFiles(ctx context.Context, documentID string) ([]DocumentFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fileColumns+` FROM document_files WHERE document_id=$1 ORDER BY created_at
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list document files: %w", err)
	}
	defer rows.Close()

	var files []DocumentFile
	for rows.Next() {
		var f DocumentFile
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.Kind, &f.Name, &f.Locator, &f.Size, &f.Encrypted, &f.IV, &f.UploadedBy, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *PostgresStore) DeleteDocumentFile(ctx context.Context, fileID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM document_files WHERE id=$1`, fileID)
	if err != nil {
		return fmt.Errorf("delete document file: %w", err)
	}
	return nil
}

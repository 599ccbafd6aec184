package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"docuport/api/internal/config"
	"docuport/api/internal/email"
	"docuport/api/internal/guest"
	"docuport/api/internal/invite"
	"docuport/api/internal/status"
	"docuport/api/internal/store"
	"docuport/api/internal/util"
	"docuport/api/internal/vault"
)

type dataStore interface {
	Ping(ctx context.Context) error

	InsertClient(ctx context.Context, c store.Client) error
	GetClient(ctx context.Context, clientID string) (store.Client, error)
	ListClients(ctx context.Context) ([]store.Client, error)
	FindClientByEmailAndToken(ctx context.Context, email, loginToken string) (store.Client, error)
	UpdateClientSession(ctx context.Context, clientID, sessionTokenHash string, expiresAt time.Time) error
	FindClientBySessionTokenHash(ctx context.Context, hash string, now time.Time) (store.Client, error)
	ClearClientSessionByHash(ctx context.Context, hash string) error

	InsertTeam(ctx context.Context, t store.Team) error
	GetTeam(ctx context.Context, teamID string) (store.Team, error)
	AddTeamMember(ctx context.Context, teamID, userID string) error
	IsTeamMember(ctx context.Context, teamID, userID string) (bool, error)

	InsertInvitation(ctx context.Context, inv store.TeamInvitation) error
	FindInvitationByToken(ctx context.Context, token string) (store.TeamInvitation, error)
	DeleteInvitation(ctx context.Context, invitationID string) error
	DeleteInvitationByToken(ctx context.Context, token string) (store.TeamInvitation, error)
	DeleteExpiredInvitations(ctx context.Context, before time.Time) (int, error)

	InsertDocument(ctx context.Context, d store.Document) error
	GetDocument(ctx context.Context, documentID string) (store.Document, error)
	ListDocuments(ctx context.Context) ([]store.Document, error)
	ListDocumentsByClient(ctx context.Context, clientID string) ([]store.Document, error)
	UpdateStoredStatus(ctx context.Context, documentID, storedStatus string) error
	UpdateTrackingWindow(ctx context.Context, documentID string, startTrackAt, endTrackAt time.Time) error
	SetDocumentCompleted(ctx context.Context, documentID string, completedAt time.Time) (bool, error)
	SetDocumentApproved(ctx context.Context, documentID string, approvedAt time.Time) (bool, error)
	ListActiveForNotification(ctx context.Context) ([]store.NotificationTarget, error)

	InsertDocumentFile(ctx context.Context, f store.DocumentFile) error
	GetDocumentFile(ctx context.Context, fileID string) (store.DocumentFile, error)
	ListDocumentFiles(ctx context.Context, documentID string) ([]store.DocumentFile, error)
	DeleteDocumentFile(ctx context.Context, fileID string) error
}

// artifactVault is the at-rest encryption boundary.
type artifactVault interface {
	Store(ctx context.Context, data []byte, locator string) (vault.StoredArtifact, error)
	Retrieve(ctx context.Context, locator, ivHex string) ([]byte, error)
}

// Notifier is the outbound email boundary.
type Notifier interface {
	Send(ctx context.Context, msg email.Message) error
	IsConfigured() bool
}

type Service struct {
	cfg      config.Config
	store    dataStore
	vault    artifactVault
	guests   *guest.Service
	invites  *invite.Service
	notifier Notifier
	now      func() time.Time
}

func New(cfg config.Config, dataStore dataStore, artifactVault artifactVault, notifier Notifier) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		vault:    artifactVault,
		guests:   guest.NewService(dataStore),
		invites:  invite.NewService(dataStore),
		notifier: notifier,
		now:      time.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Invitations() *invite.Service {
	return s.invites
}

// --- guest sessions ---

func (s *Service) GuestLogin(ctx context.Context, emailAddr, loginToken string) (string, store.Client, error) {
	return s.guests.Login(ctx, emailAddr, loginToken)
}

func (s *Service) GuestVerify(ctx context.Context, raw string) (*store.Client, error) {
	return s.guests.Verify(ctx, raw)
}

func (s *Service) GuestLogout(ctx context.Context, raw string) error {
	return s.guests.Logout(ctx, raw)
}

// --- clients ---

func (s *Service) CreateClient(ctx context.Context, companyName, emailAddr string) (store.Client, error) {
	if companyName == "" || emailAddr == "" {
		return store.Client{}, validationError("company name and email are required")
	}
	token, err := newLoginToken()
	if err != nil {
		return store.Client{}, err
	}
	client := store.Client{
		ID:          util.NewID("cli"),
		CompanyName: companyName,
		Email:       emailAddr,
		LoginToken:  token,
	}
	if err := s.store.InsertClient(ctx, client); err != nil {
		return store.Client{}, fmt.Errorf("create client: %w", err)
	}
	return client, nil
}

func (s *Service) ListClients(ctx context.Context) ([]store.Client, error) {
	return s.store.ListClients(ctx)
}

// --- teams & invitations ---

func (s *Service) CreateTeam(ctx context.Context, name, ownerID string) (store.Team, error) {
	if name == "" {
		return store.Team{}, validationError("team name is required")
	}
	team := store.Team{ID: util.NewID("team"), Name: name, OwnerID: ownerID}
	if err := s.store.InsertTeam(ctx, team); err != nil {
		return store.Team{}, fmt.Errorf("create team: %w", err)
	}
	if err := s.store.AddTeamMember(ctx, team.ID, ownerID); err != nil {
		return store.Team{}, fmt.Errorf("add team owner: %w", err)
	}
	return team, nil
}

// InviteToTeam issues a join token and emails it to the invitee. The email
// is fire-and-forget: a delivery failure is logged, the invitation stands.
func (s *Service) InviteToTeam(ctx context.Context, teamID, emailAddr string) (store.TeamInvitation, error) {
	if emailAddr == "" {
		return store.TeamInvitation{}, validationError("invitee email is required")
	}
	team, err := s.store.GetTeam(ctx, teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.TeamInvitation{}, notFoundError("team not found")
	}
	if err != nil {
		return store.TeamInvitation{}, fmt.Errorf("lookup team: %w", err)
	}

	inv, err := s.invites.Issue(ctx, team.ID, emailAddr)
	if err != nil {
		return store.TeamInvitation{}, err
	}

	if s.notifier.IsConfigured() {
		msg := email.Message{
			To:          emailAddr,
			Subject:     fmt.Sprintf("You have been invited to join %s", team.Name),
			Title:       "Team invitation",
			Description: fmt.Sprintf("You have been invited to join the team %q on Docuport. The invitation expires in 15 minutes.", team.Name),
			Link:        fmt.Sprintf("%s/join?token=%s", s.cfg.BaseURL, url.QueryEscape(inv.Token)),
			ButtonText:  "Join team",
			Footer:      "If you did not expect this invitation, you can safely ignore this email.",
		}
		if err := s.notifier.Send(ctx, msg); err != nil {
			log.Printf("invitation email delivery failed for team %s: %v", team.ID, err)
		}
	}
	return inv, nil
}

func (s *Service) ValidateInvitation(ctx context.Context, token string) (store.TeamInvitation, error) {
	return s.invites.Validate(ctx, token)
}

// AcceptInvitation redeems the token atomically and adds the caller to the
// team. The single conditional delete inside Redeem is what prevents two
// concurrent accepts from both joining on one token.
func (s *Service) AcceptInvitation(ctx context.Context, token, userID string) (store.TeamInvitation, error) {
	inv, err := s.invites.Redeem(ctx, token)
	if err != nil {
		return store.TeamInvitation{}, err
	}
	if err := s.store.AddTeamMember(ctx, inv.TeamID, userID); err != nil {
		return store.TeamInvitation{}, fmt.Errorf("add team member: %w", err)
	}
	return inv, nil
}

// --- documents ---

type CreateDocumentInput struct {
	Title            string    `json:"title"`
	StartTrackAt     time.Time `json:"startTrackAt"`
	EndTrackAt       time.Time `json:"endTrackAt"`
	ApprovalRequired *bool     `json:"approvalRequired"`
	ClientID         string    `json:"clientId"`
	TeamID           *string   `json:"teamId"`
}

// DocumentView pairs a document with its effective status at read time.
type DocumentView struct {
	Document        store.Document
	EffectiveStatus status.Effective
}

func (s *Service) CreateDocument(ctx context.Context, input CreateDocumentInput, createdBy string) (DocumentView, error) {
	if input.Title == "" {
		return DocumentView{}, validationError("title is required")
	}
	if !input.EndTrackAt.After(input.StartTrackAt) {
		return DocumentView{}, validationError("endTrackAt must be after startTrackAt")
	}
	if _, err := s.store.GetClient(ctx, input.ClientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DocumentView{}, notFoundError("client not found")
		}
		return DocumentView{}, fmt.Errorf("lookup client: %w", err)
	}

	approvalRequired := true
	if input.ApprovalRequired != nil {
		approvalRequired = *input.ApprovalRequired
	}

	doc := store.Document{
		ID:               util.NewID("doc"),
		Title:            input.Title,
		StoredStatus:     string(status.StoredDraft),
		StartTrackAt:     input.StartTrackAt,
		EndTrackAt:       input.EndTrackAt,
		ApprovalRequired: approvalRequired,
		ClientID:         input.ClientID,
		CreatedBy:        createdBy,
		TeamID:           input.TeamID,
	}
	if err := s.store.InsertDocument(ctx, doc); err != nil {
		return DocumentView{}, fmt.Errorf("create document: %w", err)
	}
	return s.view(doc), nil
}

func (s *Service) GetDocument(ctx context.Context, documentID string) (DocumentView, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if errors.Is(err, sql.ErrNoRows) {
		return DocumentView{}, notFoundError("document not found")
	}
	if err != nil {
		return DocumentView{}, fmt.Errorf("lookup document: %w", err)
	}
	return s.view(doc), nil
}

func (s *Service) ListDocuments(ctx context.Context) ([]DocumentView, error) {
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	return s.views(docs), nil
}

func (s *Service) ListDocumentsForClient(ctx context.Context, clientID string) ([]DocumentView, error) {
	docs, err := s.store.ListDocumentsByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return s.views(docs), nil
}

// StartTracking moves a draft into its tracking window.
func (s *Service) StartTracking(ctx context.Context, documentID string) (DocumentView, error) {
	view, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return DocumentView{}, err
	}
	if view.Document.StoredStatus != string(status.StoredDraft) {
		return DocumentView{}, validationError("document is already being tracked")
	}
	if err := s.store.UpdateStoredStatus(ctx, documentID, string(status.StoredInProgress)); err != nil {
		return DocumentView{}, err
	}
	return s.GetDocument(ctx, documentID)
}

// RescheduleDocument moves the tracking window. The derived status follows
// automatically on the next read; completed documents stay completed.
func (s *Service) RescheduleDocument(ctx context.Context, documentID string, startTrackAt, endTrackAt time.Time) (DocumentView, error) {
	if !endTrackAt.After(startTrackAt) {
		return DocumentView{}, validationError("endTrackAt must be after startTrackAt")
	}
	if _, err := s.GetDocument(ctx, documentID); err != nil {
		return DocumentView{}, err
	}
	if err := s.store.UpdateTrackingWindow(ctx, documentID, startTrackAt, endTrackAt); err != nil {
		return DocumentView{}, err
	}
	return s.GetDocument(ctx, documentID)
}

// CompleteDocument stamps completedAt. The timestamp is set exactly once
// and never cleared.
func (s *Service) CompleteDocument(ctx context.Context, documentID string) (DocumentView, error) {
	if _, err := s.GetDocument(ctx, documentID); err != nil {
		return DocumentView{}, err
	}
	changed, err := s.store.SetDocumentCompleted(ctx, documentID, s.now())
	if err != nil {
		return DocumentView{}, err
	}
	if !changed {
		return DocumentView{}, validationError("document is already completed")
	}
	return s.GetDocument(ctx, documentID)
}

func (s *Service) ApproveDocument(ctx context.Context, documentID string) (DocumentView, error) {
	view, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return DocumentView{}, err
	}
	if view.Document.CompletedAt == nil {
		return DocumentView{}, validationError("document must be completed before approval")
	}
	changed, err := s.store.SetDocumentApproved(ctx, documentID, s.now())
	if err != nil {
		return DocumentView{}, err
	}
	if !changed {
		return DocumentView{}, validationError("document is already approved")
	}
	return s.GetDocument(ctx, documentID)
}

func (s *Service) view(doc store.Document) DocumentView {
	return DocumentView{
		Document: doc,
		EffectiveStatus: status.Derive(status.Input{
			Stored:           status.Stored(doc.StoredStatus),
			StartTrackAt:     doc.StartTrackAt,
			EndTrackAt:       doc.EndTrackAt,
			CompletedAt:      doc.CompletedAt,
			ApprovedAt:       doc.ApprovedAt,
			ApprovalRequired: doc.ApprovalRequired,
		}, s.now()),
	}
}

func (s *Service) views(docs []store.Document) []DocumentView {
	views := make([]DocumentView, 0, len(docs))
	for _, d := range docs {
		views = append(views, s.view(d))
	}
	return views
}

// --- files ---

// AttachFile encrypts and stores an uploaded artifact and records its
// metadata. The IV returned by the vault is persisted on the file row; the
// ciphertext blob itself never carries it.
func (s *Service) AttachFile(ctx context.Context, documentID, kind, name string, data []byte, uploadedBy string) (store.DocumentFile, error) {
	if name == "" {
		return store.DocumentFile{}, validationError("file name is required")
	}
	if kind != store.FileKindOriginal && kind != store.FileKindResponse {
		return store.DocumentFile{}, validationError("unknown file kind")
	}
	if _, err := s.GetDocument(ctx, documentID); err != nil {
		return store.DocumentFile{}, err
	}

	fileID := util.NewID("file")
	locator := vault.DocumentLocator(documentID, fileID)
	if kind == store.FileKindResponse {
		locator = vault.ResponseLocator(documentID, fileID)
	}

	artifact, err := s.vault.Store(ctx, data, locator)
	if err != nil {
		return store.DocumentFile{}, err
	}

	iv := artifact.IV
	file := store.DocumentFile{
		ID:         fileID,
		DocumentID: documentID,
		Kind:       kind,
		Name:       name,
		Locator:    artifact.Locator,
		Size:       artifact.Size,
		Encrypted:  artifact.Encrypted,
		IV:         &iv,
		UploadedBy: uploadedBy,
	}
	if err := s.store.InsertDocumentFile(ctx, file); err != nil {
		return store.DocumentFile{}, fmt.Errorf("record document file: %w", err)
	}
	return file, nil
}

// FetchFile loads a file record and its decrypted content. Entitlement is
// the caller's responsibility; see FetchFileForGuest for the guest path.
func (s *Service) FetchFile(ctx context.Context, fileID string) (store.DocumentFile, []byte, error) {
	file, err := s.store.GetDocumentFile(ctx, fileID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.DocumentFile{}, nil, notFoundError("file not found")
	}
	if err != nil {
		return store.DocumentFile{}, nil, fmt.Errorf("lookup file: %w", err)
	}

	iv := ""
	if file.IV != nil {
		iv = *file.IV
	}
	data, err := s.vault.Retrieve(ctx, file.Locator, iv)
	if err != nil {
		return store.DocumentFile{}, nil, err
	}
	return file, data, nil
}

// FetchFileForGuest verifies the guest owns the file's document before
// touching the vault.
func (s *Service) FetchFileForGuest(ctx context.Context, client *store.Client, fileID string) (store.DocumentFile, []byte, error) {
	file, err := s.store.GetDocumentFile(ctx, fileID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.DocumentFile{}, nil, notFoundError("file not found")
	}
	if err != nil {
		return store.DocumentFile{}, nil, fmt.Errorf("lookup file: %w", err)
	}
	doc, err := s.store.GetDocument(ctx, file.DocumentID)
	if err != nil {
		return store.DocumentFile{}, nil, fmt.Errorf("lookup document: %w", err)
	}
	if client == nil || doc.ClientID != client.ID {
		return store.DocumentFile{}, nil, forbiddenError()
	}

	iv := ""
	if file.IV != nil {
		iv = *file.IV
	}
	data, err := s.vault.Retrieve(ctx, file.Locator, iv)
	if err != nil {
		return store.DocumentFile{}, nil, err
	}
	return file, data, nil
}

// AttachResponseForGuest lets an authenticated guest upload a response file
// to one of its own documents.
func (s *Service) AttachResponseForGuest(ctx context.Context, client *store.Client, documentID, name string, data []byte) (store.DocumentFile, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.DocumentFile{}, notFoundError("document not found")
	}
	if err != nil {
		return store.DocumentFile{}, fmt.Errorf("lookup document: %w", err)
	}
	if client == nil || doc.ClientID != client.ID {
		return store.DocumentFile{}, forbiddenError()
	}
	return s.AttachFile(ctx, documentID, store.FileKindResponse, name, data, client.ID)
}

func (s *Service) ListFiles(ctx context.Context, documentID string) ([]store.DocumentFile, error) {
	return s.store.ListDocumentFiles(ctx, documentID)
}

func newLoginToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate login token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

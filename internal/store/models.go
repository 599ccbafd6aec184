package store

import "time"

// Client is an external guest principal. LoginToken is the long-lived static
// credential; SessionTokenHash holds the sha256 of the currently active
// session token, or nil when logged out. The raw session token is never
// persisted.
type Client struct {
	ID               string
	CompanyName      string
	Email            string
	LoginToken       string
	SessionTokenHash *string
	SessionExpiresAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Team struct {
	ID        string
	Name      string
	OwnerID   string
	CreatedAt time.Time
}

type TeamMember struct {
	TeamID   string
	UserID   string
	JoinedAt time.Time
}

// TeamInvitation is a single-use, expiring team-join token. The row is
// deleted on successful join or on first validation after expiry.
type TeamInvitation struct {
	ID        string
	TeamID    string
	Email     string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Document is a time-bounded tracked deliverable. StoredStatus only ever
// holds DRAFT, IN_PROGRESS or COMPLETED; WARNING and OVERDUE are derived at
// read time and never written here.
type Document struct {
	ID               string
	Title            string
	StoredStatus     string
	StartTrackAt     time.Time
	EndTrackAt       time.Time
	CompletedAt      *time.Time
	ApprovedAt       *time.Time
	ApprovalRequired bool
	ClientID         string
	CreatedBy        string
	TeamID           *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

const (
	FileKindOriginal = "original"
	FileKindResponse = "response"
)

// DocumentFile describes one stored artifact. Encrypted is true exactly when
// IV is non-nil; the IV is unique per file.
type DocumentFile struct {
	ID         string
	DocumentID string
	Kind       string
	Name       string
	Locator    string
	Size       int64
	Encrypted  bool
	IV         *string
	UploadedBy string
	CreatedAt  time.Time
}

// NotificationTarget is the projection the notification trigger iterates:
// active tracked documents joined with their client's email.
type NotificationTarget struct {
	DocumentID  string
	Title       string
	ClientEmail string
	EndTrackAt  time.Time
}

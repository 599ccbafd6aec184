// Package status derives a document's effective lifecycle state from its
// stored facts and the evaluation instant. WARNING and OVERDUE are never
// persisted; they are recomputed on every read so the stored status can
// never drift from the true state.
package status

import "time"

// Stored is the status explicitly written to the documents table.
type Stored string

const (
	StoredDraft      Stored = "DRAFT"
	StoredInProgress Stored = "IN_PROGRESS"
	StoredCompleted  Stored = "COMPLETED"
)

// Effective is the lifecycle state as computed at query time.
type Effective string

const (
	Draft      Effective = "DRAFT"
	InProgress Effective = "IN_PROGRESS"
	Warning    Effective = "WARNING"
	Overdue    Effective = "OVERDUE"
	Completed  Effective = "COMPLETED"
)

// WarningWindow is how long before the tracking deadline a document is
// flagged WARNING. The boundary is inclusive on the WARNING side.
const WarningWindow = 7 * 24 * time.Hour

// Input carries the stored facts the derivation depends on.
type Input struct {
	Stored           Stored
	StartTrackAt     time.Time
	EndTrackAt       time.Time
	CompletedAt      *time.Time
	ApprovedAt       *time.Time
	ApprovalRequired bool
}

// Derive computes the effective status at the given instant. It is a pure
// function: same inputs and same instant always yield the same result.
// Precedence, first match wins: DRAFT, COMPLETED, OVERDUE, WARNING,
// IN_PROGRESS.
func Derive(in Input, now time.Time) Effective {
	if in.Stored == StoredDraft {
		return Draft
	}
	if in.CompletedAt != nil && (in.ApprovedAt != nil || !in.ApprovalRequired) {
		return Completed
	}
	if now.After(in.EndTrackAt) {
		return Overdue
	}
	if in.EndTrackAt.Sub(now) <= WarningWindow {
		return Warning
	}
	return InProgress
}

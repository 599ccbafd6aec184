// Package notify owns the recurring deadline check. It re-derives how much
// tracking time each active document has left and emails the owning client
// when a document enters the warning window or goes overdue. The task runs
// server-side on its own schedule, independent of any request.
package notify

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	"docuport/api/internal/email"
	"docuport/api/internal/status"
	"docuport/api/internal/store"
)

const (
	KindWarning = "warning"
	KindOverdue = "overdue"

	// dedupTTL outlives the day bucket so a key cannot expire mid-bucket.
	dedupTTL = 48 * time.Hour
)

// Notifier is the outbound delivery boundary.
type Notifier interface {
	Send(ctx context.Context, msg email.Message) error
	IsConfigured() bool
}

// DocumentSource lists the documents worth evaluating.
type DocumentSource interface {
	ListActiveForNotification(ctx context.Context) ([]store.NotificationTarget, error)
}

type Trigger struct {
	docs     DocumentSource
	notifier Notifier
	dedup    Deduper
	baseURL  string
	now      func() time.Time
}

// New builds a trigger. dedup may be nil, in which case delivery degrades to
// at-least-once: repeated runs within the same window resend.
func New(docs DocumentSource, notifier Notifier, dedup Deduper, baseURL string) *Trigger {
	return &Trigger{docs: docs, notifier: notifier, dedup: dedup, baseURL: baseURL, now: time.Now}
}

// Run evaluates on the given interval until ctx is cancelled.
func (t *Trigger) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.RunOnce(ctx); err != nil {
				log.Printf("notification run failed: %v", err)
			}
		}
	}
}

// RunOnce performs a single evaluation pass. Delivery failures are logged
// per document and never affect document state or the rest of the pass.
func (t *Trigger) RunOnce(ctx context.Context) error {
	if !t.notifier.IsConfigured() {
		return nil
	}

	targets, err := t.docs.ListActiveForNotification(ctx)
	if err != nil {
		return fmt.Errorf("list notification targets: %w", err)
	}

	now := t.now()
	for _, target := range targets {
		kind := classify(target.EndTrackAt, now)
		if kind == "" {
			continue
		}
		if !t.shouldSend(ctx, target.DocumentID, kind, now) {
			continue
		}
		if err := t.notifier.Send(ctx, t.compose(target, kind, now)); err != nil {
			log.Printf("notification delivery failed for document %s (%s): %v", target.DocumentID, kind, err)
		}
	}
	return nil
}

// classify picks the notification kind for a deadline, or "" for none.
func classify(endTrackAt, now time.Time) string {
	remaining := endTrackAt.Sub(now)
	switch {
	case remaining <= 0:
		return KindOverdue
	case remaining < status.WarningWindow:
		return KindWarning
	default:
		return ""
	}
}

// shouldSend consults the idempotency key document+kind+day bucket. Dedup
// errors fall back to sending: at-least-once is the accepted floor.
func (t *Trigger) shouldSend(ctx context.Context, documentID, kind string, now time.Time) bool {
	if t.dedup == nil {
		return true
	}
	key := fmt.Sprintf("notify:%s:%s:%s", documentID, kind, now.UTC().Format("2006-01-02"))
	first, err := t.dedup.MarkOnce(ctx, key, dedupTTL)
	if err != nil {
		log.Printf("notification dedup unavailable, sending anyway: %v", err)
		return true
	}
	return first
}

func (t *Trigger) compose(target store.NotificationTarget, kind string, now time.Time) email.Message {
	link := fmt.Sprintf("%s/portal/documents/%s", t.baseURL, url.PathEscape(target.DocumentID))
	deadline := target.EndTrackAt.Format("January 2, 2006")

	if kind == KindOverdue {
		return email.Message{
			To:          target.ClientEmail,
			Subject:     fmt.Sprintf("Overdue: %s", target.Title),
			Title:       "Document overdue",
			Description: fmt.Sprintf("The tracking deadline for %q passed on %s. Please respond as soon as possible.", target.Title, deadline),
			Link:        link,
			ButtonText:  "Open document",
			Footer:      "You receive this because your company has documents tracked in Docuport.",
		}
	}

	days := int(target.EndTrackAt.Sub(now).Hours() / 24)
	return email.Message{
		To:          target.ClientEmail,
		Subject:     fmt.Sprintf("Deadline approaching: %s", target.Title),
		Title:       "Deadline approaching",
		Description: fmt.Sprintf("The document %q is due on %s (%d day(s) left).", target.Title, deadline, days),
		Link:        link,
		ButtonText:  "Open document",
		Footer:      "You receive this because your company has documents tracked in Docuport.",
	}
}

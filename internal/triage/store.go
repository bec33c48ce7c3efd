package triage

import "context"

// Store is the persistence boundary for the approval queue and history
// archive. A Store is used by one logical pipeline run at a time.
type Store interface {
	// GetApproval retrieves an approval by ID.
	GetApproval(ctx context.Context, id string) (*Approval, bool, error)

	// IsDuplicate reports whether a non-terminal approval or any history
	// entry exists for the message ID. Read-only.
	IsDuplicate(ctx context.Context, messageID string) (bool, error)

	// ListPending returns pending approvals for a route, newest first by
	// creation time.
	ListPending(ctx context.Context, route Route) ([]*Approval, error)

	// CreateApprovals inserts a batch of new approvals in a single
	// transaction. All-or-nothing: a failure leaves no partial writes.
	CreateApprovals(ctx context.Context, approvals []*Approval) error

	// Resolve atomically persists a terminal approval update together with
	// its history entry.
	Resolve(ctx context.Context, approval *Approval, entry *HistoryEntry) error

	// DeleteApproval removes an approval outright. Used only for pending
	// records discarded without processing.
	DeleteApproval(ctx context.Context, id string) error

	// ListHistory returns all history entries, newest first.
	ListHistory(ctx context.Context) ([]*HistoryEntry, error)
}

package triage

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/bursar/internal/mail"
)

// Service manages the approval queue lifecycle: listing pending records,
// resolving them (approve, reject, redirect), discarding them, and serving
// the history archive.
type Service struct {
	store   Store
	mailc   mail.Client
	logger  log.Logger
	metrics *Metrics
}

// NewService creates an approval queue service. metrics may be nil.
func NewService(store Store, mailc mail.Client, logger log.Logger, metrics *Metrics) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{store: store, mailc: mailc, logger: logger, metrics: metrics}
}

// Pending lists pending approvals for the given route, newest first.
func (s *Service) Pending(ctx context.Context, route Route) ([]*Approval, error) {
	return s.store.ListPending(ctx, route)
}

// History returns the full resolution archive, newest first.
func (s *Service) History(ctx context.Context) ([]*HistoryEntry, error) {
	return s.store.ListHistory(ctx)
}

// Approve sends the approved response to the original sender and archives
// the approval. When override is non-empty it replaces the generated draft.
// All mailbox operations happen before any state changes, so a mail failure
// leaves the approval pending and retryable.
func (s *Service) Approve(ctx context.Context, id, override string) (*Approval, error) {
	a, err := s.pending(ctx, id)
	if err != nil {
		return nil, err
	}

	final := a.GeneratedResponse
	if override != "" {
		final = override
	}
	if final == "" {
		return nil, ErrNoResponse
	}

	if _, err := s.mailc.SendReply(ctx, a.MessageID, AsHTML(final)); err != nil {
		return nil, fmt.Errorf("send reply: %w", err)
	}
	if err := s.markRead(ctx, a.MessageID); err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}

	now := time.Now()
	a.Approved = true
	a.ApprovedAt = &now
	a.FinalResponse = final
	a.UpdatedAt = now

	if err := s.resolve(ctx, a, StatusApproved); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "approval resolved", "approval_id", a.ID, "status", StatusApproved)
	s.metrics.incResolution(StatusApproved)
	return a, nil
}

// Reject archives an approval without sending anything. The message stays
// unread in the mailbox for manual handling.
func (s *Service) Reject(ctx context.Context, id string) (*Approval, error) {
	a, err := s.pending(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	a.Rejected = true
	a.RejectedAt = &now
	a.UpdatedAt = now

	if err := s.resolve(ctx, a, StatusRejected); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "approval resolved", "approval_id", a.ID, "status", StatusRejected)
	s.metrics.incResolution(StatusRejected)
	return a, nil
}

// Redirect forwards the original message to another department and archives
// the approval as handled. All mailbox operations happen before any state
// changes, so a mail failure leaves the approval pending and retryable.
func (s *Service) Redirect(ctx context.Context, id, toAddress, comment string) (*Approval, error) {
	a, err := s.pending(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := s.mailc.Forward(ctx, a.MessageID, toAddress, comment); err != nil {
		return nil, fmt.Errorf("forward: %w", err)
	}
	if err := s.markRead(ctx, a.MessageID); err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}

	now := time.Now()
	a.Approved = true
	a.ApprovedAt = &now
	a.FinalResponse = fmt.Sprintf("Redirected to %s with comment %s", toAddress, comment)
	a.UpdatedAt = now

	if err := s.resolve(ctx, a, StatusRedirected); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "approval resolved", "approval_id", a.ID, "status", StatusRedirected, "to", toAddress)
	s.metrics.incResolution(StatusRedirected)
	return a, nil
}

// Discard deletes a pending approval without resolution or history. The
// message can re-enter the queue on a later run.
func (s *Service) Discard(ctx context.Context, id string) error {
	a, err := s.pending(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteApproval(ctx, a.ID); err != nil {
		return fmt.Errorf("delete approval: %w", err)
	}
	s.logger.Info(ctx, "approval discarded", "approval_id", a.ID)
	s.metrics.incResolution("discarded")
	return nil
}

// pending loads an approval and verifies it is still resolvable.
func (s *Service) pending(ctx context.Context, id string) (*Approval, error) {
	a, ok, err := s.store.GetApproval(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get approval: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	if !a.Pending() {
		return nil, ErrAlreadyResolved
	}
	return a, nil
}

func (s *Service) resolve(ctx context.Context, a *Approval, status string) error {
	entry := &HistoryEntry{
		ID:                ulid.Make().String(),
		MessageID:         a.MessageID,
		ConversationID:    a.ConversationID,
		ConversationIndex: a.ConversationIndex,
		Subject:           a.Subject,
		SenderEmail:       a.SenderEmail,
		Route:             a.Route,
		Department:        a.Department,
		FinalResponse:     a.FinalResponse,
		Confidence:        a.Confidence,
		Status:            status,
		ReceivedAt:        a.ReceivedAt,
		ProcessedAt:       a.UpdatedAt,
	}
	if err := s.store.Resolve(ctx, a, entry); err != nil {
		return fmt.Errorf("resolve approval: %w", err)
	}
	return nil
}

// markRead tolerates a missing mail client; resolution flows are also used
// in contexts without mailbox access.
func (s *Service) markRead(ctx context.Context, messageID string) error {
	if s.mailc == nil {
		return nil
	}
	return s.mailc.MarkRead(ctx, messageID)
}

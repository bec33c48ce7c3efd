// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/bursar/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/bursar/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists approvals and history in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on the given pool and returns a ready Store. The
// caller owns the pool lifecycle.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const approvalColumns = `id, message_id, conversation_id, conversation_index, subject, sender_email,
	body, route, department, generated_response, final_response, confidence, agent_used,
	approved, approved_at, rejected, rejected_at, received_at, created_at, updated_at`

const historyColumns = `id, message_id, conversation_id, conversation_index, subject, sender_email,
	route, department, final_response, confidence, approval_status, received_at, processed_at`

// GetApproval retrieves an approval by ID.
func (s *Store) GetApproval(ctx context.Context, id string) (*triage.Approval, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.GetApproval", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE id = $1`
	a, err := scanApprovalRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if a == nil {
		return nil, false, nil
	}
	return a, true, nil
}

// IsDuplicate reports whether a pending approval or any history entry
// exists for the message ID.
func (s *Store) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.IsDuplicate", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	var dup bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM approvals WHERE message_id = $1 AND NOT approved AND NOT rejected
		) OR EXISTS (
			SELECT 1 FROM history WHERE message_id = $1
		)`, messageID,
	).Scan(&dup)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("dedup query: %w", err)
	}
	return dup, nil
}

// ListPending returns pending approvals for a route, newest first by
// creation time.
func (s *Store) ListPending(ctx context.Context, route triage.Route) ([]*triage.Approval, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListPending", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + approvalColumns + ` FROM approvals
		WHERE route = $1 AND NOT approved AND NOT rejected
		ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query, string(route))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	var out []*triage.Approval
	for rows.Next() {
		a, err := scanApprovalRow(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate pending: %w", err)
	}
	return out, nil
}

// CreateApprovals inserts the batch inside one transaction.
func (s *Store) CreateApprovals(ctx context.Context, approvals []*triage.Approval) error {
	ctx, span := tracer.Start(ctx, "pgstore.CreateApprovals", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
		attribute.Int("db.batch.size", len(approvals)),
	))
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	for _, a := range approvals {
		if err := insertApproval(ctx, tx, a); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Resolve updates the approval and appends its history entry in one
// transaction.
func (s *Store) Resolve(ctx context.Context, approval *triage.Approval, entry *triage.HistoryEntry) error {
	ctx, span := tracer.Start(ctx, "pgstore.Resolve", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	tag, err := tx.Exec(ctx,
		`UPDATE approvals SET
			final_response = $2,
			approved       = $3,
			approved_at    = $4,
			rejected       = $5,
			rejected_at    = $6,
			updated_at     = $7
		WHERE id = $1`,
		approval.ID, approval.FinalResponse,
		approval.Approved, approval.ApprovedAt,
		approval.Rejected, approval.RejectedAt,
		approval.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("update approval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return triage.ErrNotFound
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO history (`+historyColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		entry.ID, entry.MessageID, entry.ConversationID, entry.ConversationIndex,
		entry.Subject, entry.SenderEmail, string(entry.Route), entry.Department,
		entry.FinalResponse, entry.Confidence, entry.Status,
		entry.ReceivedAt, entry.ProcessedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// DeleteApproval removes an approval outright.
func (s *Store) DeleteApproval(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "pgstore.DeleteApproval", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "DELETE"),
	))
	defer span.End()

	if _, err := s.pool.Exec(ctx, `DELETE FROM approvals WHERE id = $1`, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("delete approval: %w", err)
	}
	return nil
}

// ListHistory returns all history entries, newest first.
func (s *Store) ListHistory(ctx context.Context) ([]*triage.HistoryEntry, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListHistory", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + historyColumns + ` FROM history ORDER BY processed_at DESC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []*triage.HistoryEntry
	for rows.Next() {
		var (
			h     triage.HistoryEntry
			route string
		)
		err := rows.Scan(
			&h.ID, &h.MessageID, &h.ConversationID, &h.ConversationIndex,
			&h.Subject, &h.SenderEmail, &route, &h.Department,
			&h.FinalResponse, &h.Confidence, &h.Status,
			&h.ReceivedAt, &h.ProcessedAt,
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h.Route = triage.Route(route)
		out = append(out, &h)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

func insertApproval(ctx context.Context, tx pgx.Tx, a *triage.Approval) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO approvals (`+approvalColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		a.ID, a.MessageID, a.ConversationID, a.ConversationIndex, a.Subject, a.SenderEmail,
		a.Body, string(a.Route), a.Department, a.GeneratedResponse, a.FinalResponse,
		a.Confidence, a.AgentUsed,
		a.Approved, a.ApprovedAt, a.Rejected, a.RejectedAt,
		a.ReceivedAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert approval %s: %w", a.ID, err)
	}
	return nil
}

// scanApprovalRow scans a single row into a triage.Approval. Returns
// (nil, nil) when no row is found.
func scanApprovalRow(row pgx.Row) (*triage.Approval, error) {
	var (
		a     triage.Approval
		route string
	)
	err := row.Scan(
		&a.ID, &a.MessageID, &a.ConversationID, &a.ConversationIndex, &a.Subject, &a.SenderEmail,
		&a.Body, &route, &a.Department, &a.GeneratedResponse, &a.FinalResponse,
		&a.Confidence, &a.AgentUsed,
		&a.Approved, &a.ApprovedAt, &a.Rejected, &a.RejectedAt,
		&a.ReceivedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}
	a.Route = triage.Route(route)
	return &a, nil
}

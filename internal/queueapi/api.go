// Package queueapi exposes the triage pipeline and approval queue over HTTP.
package queueapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/bursar/internal/departments"
	"github.com/linnemanlabs/bursar/internal/triage"
)

// Pipeline defines the orchestrator operations queueapi needs.
type Pipeline interface {
	ProcessMailbox(ctx context.Context, emit triage.EmitFunc) (*triage.Summary, error)
}

// QueueService defines the approval-queue operations queueapi needs.
type QueueService interface {
	Pending(ctx context.Context, route triage.Route) ([]*triage.Approval, error)
	History(ctx context.Context) ([]*triage.HistoryEntry, error)
	Approve(ctx context.Context, id, override string) (*triage.Approval, error)
	Reject(ctx context.Context, id string) (*triage.Approval, error)
	Redirect(ctx context.Context, id, toAddress, comment string) (*triage.Approval, error)
	Discard(ctx context.Context, id string) error
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger   log.Logger
	pipeline Pipeline
	svc      QueueService
	registry *departments.Registry
}

// New creates a new API handler.
func New(logger log.Logger, pipeline Pipeline, svc QueueService, registry *departments.Registry) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if pipeline == nil {
		panic(xerrors.New("pipeline is required"))
	}
	if svc == nil {
		panic(xerrors.New("queue service is required"))
	}
	if registry == nil {
		panic(xerrors.New("departments registry is required"))
	}
	return &API{
		logger:   logger,
		pipeline: pipeline,
		svc:      svc,
		registry: registry,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/triage/run", a.handleRun)
		r.Get("/triage/stream", a.handleStream)

		r.Get("/approvals", a.handleListPending)
		r.Post("/approvals/{id}/approve", a.handleApprove)
		r.Post("/approvals/{id}/reject", a.handleReject)
		r.Post("/approvals/{id}/redirect", a.handleRedirect)
		r.Delete("/approvals/{id}", a.handleDiscard)

		r.Get("/history", a.handleHistory)
		r.Get("/departments", a.handleDepartments)
	})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps queue-service sentinels onto HTTP status codes.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, triage.ErrNotFound):
		http.Error(w, `{"error":"approval not found"}`, http.StatusNotFound)
	case errors.Is(err, triage.ErrAlreadyResolved):
		http.Error(w, `{"error":"approval already resolved"}`, http.StatusConflict)
	case errors.Is(err, triage.ErrNoResponse):
		http.Error(w, `{"error":"no response available to send"}`, http.StatusBadRequest)
	default:
		a.logger.Error(r.Context(), err, "queue operation failed", "op", op)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}

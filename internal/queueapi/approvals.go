package queueapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/bursar/internal/triage"
)

type approveRequest struct {
	// EditedResponse replaces the generated draft when set.
	EditedResponse string `json:"edited_response"`
}

type redirectRequest struct {
	Department string `json:"department"`
	Comment    string `json:"comment"`
}

type resolveResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	ApprovalID string `json:"approval_id"`
}

// handleListPending returns pending approvals for one route, newest first.
// The route defaults to AI_AGENT.
func (a *API) handleListPending(w http.ResponseWriter, r *http.Request) {
	route := triage.RouteAgent
	if raw := r.URL.Query().Get("route"); raw != "" {
		parsed, err := triage.ParseRoute(raw)
		if err != nil {
			http.Error(w, `{"error":"invalid route"}`, http.StatusBadRequest)
			return
		}
		route = parsed
	}

	pending, err := a.svc.Pending(r.Context(), route)
	if err != nil {
		a.writeServiceError(w, r, err, "list pending")
		return
	}
	if pending == nil {
		pending = []*triage.Approval{}
	}

	a.writeJSON(w, http.StatusOK, pending)
}

func (a *API) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req approveRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
			return
		}
	}

	approval, err := a.svc.Approve(r.Context(), id, req.EditedResponse)
	if err != nil {
		a.writeServiceError(w, r, err, "approve")
		return
	}

	a.writeJSON(w, http.StatusOK, resolveResponse{
		Status:     "sent",
		ApprovalID: approval.ID,
	})
}

func (a *API) handleReject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	approval, err := a.svc.Reject(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err, "reject")
		return
	}

	a.writeJSON(w, http.StatusOK, resolveResponse{
		Status:     "success",
		Message:    "Email marked as rejected",
		ApprovalID: approval.ID,
	})
}

func (a *API) handleRedirect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req redirectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if req.Department == "" {
		http.Error(w, `{"error":"department is required"}`, http.StatusBadRequest)
		return
	}

	dept, ok := a.registry.Lookup(req.Department)
	if !ok {
		http.Error(w, `{"error":"unknown department"}`, http.StatusBadRequest)
		return
	}

	approval, err := a.svc.Redirect(r.Context(), id, dept.Address, req.Comment)
	if err != nil {
		a.writeServiceError(w, r, err, "redirect")
		return
	}

	a.writeJSON(w, http.StatusOK, resolveResponse{
		Status:     "success",
		Message:    "Email redirected to " + dept.Name,
		ApprovalID: approval.ID,
	})
}

func (a *API) handleDiscard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := a.svc.Discard(r.Context(), id); err != nil {
		a.writeServiceError(w, r, err, "discard")
		return
	}

	a.writeJSON(w, http.StatusOK, resolveResponse{
		Status:     "success",
		Message:    "Email deleted from approval queue",
		ApprovalID: id,
	})
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := a.svc.History(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err, "history")
		return
	}
	if entries == nil {
		entries = []*triage.HistoryEntry{}
	}

	a.writeJSON(w, http.StatusOK, entries)
}

func (a *API) handleDepartments(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.registry.All())
}

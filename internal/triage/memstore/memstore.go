// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/linnemanlabs/bursar/internal/triage"
)

// Store holds approvals and history in memory. Suitable for dev/testing.
type Store struct {
	mu        sync.RWMutex
	approvals map[string]*triage.Approval     // approval ID -> record
	history   map[string]*triage.HistoryEntry // history ID -> entry
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		approvals: make(map[string]*triage.Approval),
		history:   make(map[string]*triage.HistoryEntry),
	}
}

// GetApproval retrieves an approval by its ID. Returns a copy.
func (s *Store) GetApproval(_ context.Context, id string) (*triage.Approval, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.approvals[id]
	if !ok {
		return nil, false, nil
	}
	cp := *a
	return &cp, true, nil
}

// IsDuplicate reports whether the message already has a pending approval or
// a history entry.
func (s *Store) IsDuplicate(_ context.Context, messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.approvals {
		if a.MessageID == messageID && a.Pending() {
			return true, nil
		}
	}
	for _, h := range s.history {
		if h.MessageID == messageID {
			return true, nil
		}
	}
	return false, nil
}

// ListPending returns copies of pending approvals for a route, newest first
// by creation time.
func (s *Store) ListPending(_ context.Context, route triage.Route) ([]*triage.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*triage.Approval
	for _, a := range s.approvals {
		if a.Route != route || !a.Pending() {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// CreateApprovals stores copies of the batch. All-or-nothing: the map is
// only touched after every record has been copied.
func (s *Store) CreateApprovals(_ context.Context, approvals []*triage.Approval) error {
	cps := make([]*triage.Approval, 0, len(approvals))
	for _, a := range approvals {
		cp := *a
		cps = append(cps, &cp)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cp := range cps {
		s.approvals[cp.ID] = cp
	}
	return nil
}

// Resolve stores the terminal approval update and its history entry under
// one lock acquisition.
func (s *Store) Resolve(_ context.Context, approval *triage.Approval, entry *triage.HistoryEntry) error {
	acp := *approval
	ecp := *entry
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approvals[acp.ID] = &acp
	s.history[ecp.ID] = &ecp
	return nil
}

// DeleteApproval removes an approval outright.
func (s *Store) DeleteApproval(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.approvals, id)
	return nil
}

// ListHistory returns copies of all history entries, newest first.
func (s *Store) ListHistory(_ context.Context) ([]*triage.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*triage.HistoryEntry, 0, len(s.history))
	for _, h := range s.history {
		cp := *h
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ProcessedAt.After(out[j].ProcessedAt)
	})
	return out, nil
}

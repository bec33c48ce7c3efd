package triage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

func pendingApproval(id string) *Approval {
	now := time.Now()
	return &Approval{
		ID:                id,
		MessageID:         "msg-" + id,
		Subject:           "When is tuition due",
		SenderEmail:       "student@uni.edu",
		Route:             RouteAgent,
		GeneratedResponse: "Your balance is due May 1.",
		Confidence:        0.95,
		AgentUsed:         true,
		ReceivedAt:        now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestApprove_SendsGeneratedResponse(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	store.approvals["a1"] = pendingApproval("a1")
	mc := newMockMail()
	svc := NewService(store, mc, log.Nop(), nil)

	got, err := svc.Approve(context.Background(), "a1", "")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}

	if !got.Approved || got.ApprovedAt == nil {
		t.Error("approval must be marked approved with a timestamp")
	}
	if got.FinalResponse != "Your balance is due May 1." {
		t.Errorf("final response = %q", got.FinalResponse)
	}

	if len(mc.replies) != 1 || mc.replies[0] != "msg-a1" {
		t.Fatalf("replies = %v, want [msg-a1]", mc.replies)
	}
	if !strings.Contains(mc.replyBodies[0], "<div") {
		t.Errorf("reply body should be HTML, got %q", mc.replyBodies[0])
	}
	if len(mc.marked) != 1 || mc.marked[0] != "msg-a1" {
		t.Errorf("marked = %v, want [msg-a1]", mc.marked)
	}

	hist, _ := store.ListHistory(context.Background())
	if len(hist) != 1 {
		t.Fatalf("history entries = %d, want 1", len(hist))
	}
	if hist[0].Status != StatusApproved {
		t.Errorf("history status = %q, want %q", hist[0].Status, StatusApproved)
	}
	if hist[0].FinalResponse != got.FinalResponse {
		t.Errorf("history final response = %q", hist[0].FinalResponse)
	}
}

func TestApprove_OverrideReplacesDraft(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	store.approvals["a1"] = pendingApproval("a1")
	mc := newMockMail()
	svc := NewService(store, mc, log.Nop(), nil)

	got, err := svc.Approve(context.Background(), "a1", "Edited by staff.")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if got.FinalResponse != "Edited by staff." {
		t.Errorf("final response = %q, want override", got.FinalResponse)
	}
	if !strings.Contains(mc.replyBodies[0], "Edited by staff.") {
		t.Errorf("sent body = %q", mc.replyBodies[0])
	}
}

func TestApprove_NoResponseAvailable(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	a := pendingApproval("a1")
	a.Route = RouteHuman
	a.GeneratedResponse = ""
	a.AgentUsed = false
	store.approvals["a1"] = a
	mc := newMockMail()
	svc := NewService(store, mc, log.Nop(), nil)

	_, err := svc.Approve(context.Background(), "a1", "")
	if !errors.Is(err, ErrNoResponse) {
		t.Fatalf("err = %v, want ErrNoResponse", err)
	}
	if len(mc.replies) != 0 {
		t.Error("nothing must be sent without a response")
	}
}

func TestApprove_NotFound(t *testing.T) {
	t.Parallel()

	svc := NewService(newMockStore(), newMockMail(), log.Nop(), nil)

	_, err := svc.Approve(context.Background(), "nope", "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestApprove_AlreadyResolved(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	a := pendingApproval("a1")
	a.Rejected = true
	store.approvals["a1"] = a
	mc := newMockMail()
	svc := NewService(store, mc, log.Nop(), nil)

	_, err := svc.Approve(context.Background(), "a1", "")
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("err = %v, want ErrAlreadyResolved", err)
	}
	if len(mc.replies) != 0 {
		t.Error("resolved approvals must not send mail")
	}
}

func TestApprove_SendFailureLeavesPending(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	store.approvals["a1"] = pendingApproval("a1")
	mc := newMockMail()
	mc.sendErr = errors.New("graph 502")
	svc := NewService(store, mc, log.Nop(), nil)

	if _, err := svc.Approve(context.Background(), "a1", ""); err == nil {
		t.Fatal("expected error when send fails")
	}

	got, _, _ := store.GetApproval(context.Background(), "a1")
	if !got.Pending() {
		t.Error("approval must stay pending after a failed send")
	}
	hist, _ := store.ListHistory(context.Background())
	if len(hist) != 0 {
		t.Errorf("history entries = %d, want 0", len(hist))
	}
}

func TestApprove_MarkReadFailureLeavesPending(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	store.approvals["a1"] = pendingApproval("a1")
	mc := newMockMail()
	mc.markErr = errors.New("graph 503")
	svc := NewService(store, mc, log.Nop(), nil)

	if _, err := svc.Approve(context.Background(), "a1", ""); err == nil {
		t.Fatal("expected error when mark read fails")
	}

	got, _, _ := store.GetApproval(context.Background(), "a1")
	if !got.Pending() {
		t.Error("approval must stay pending after a failed mark read")
	}
	hist, _ := store.ListHistory(context.Background())
	if len(hist) != 0 {
		t.Errorf("history entries = %d, want 0", len(hist))
	}
}

func TestReject_ArchivesWithoutMail(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	store.approvals["a1"] = pendingApproval("a1")
	mc := newMockMail()
	svc := NewService(store, mc, log.Nop(), nil)

	got, err := svc.Reject(context.Background(), "a1")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}

	if !got.Rejected || got.RejectedAt == nil {
		t.Error("approval must be marked rejected with a timestamp")
	}
	if len(mc.replies) != 0 || len(mc.forwards) != 0 || len(mc.marked) != 0 {
		t.Error("reject must not touch the mailbox")
	}

	hist, _ := store.ListHistory(context.Background())
	if len(hist) != 1 || hist[0].Status != StatusRejected {
		t.Fatalf("history = %+v, want one rejected entry", hist)
	}
}

func TestRedirect_ForwardsAndArchives(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	store.approvals["a1"] = pendingApproval("a1")
	mc := newMockMail()
	svc := NewService(store, mc, log.Nop(), nil)

	got, err := svc.Redirect(context.Background(), "a1", "registrar@uni.edu", "records request")
	if err != nil {
		t.Fatalf("Redirect: %v", err)
	}

	if !got.Approved || got.ApprovedAt == nil {
		t.Error("redirect must mark the approval approved with a timestamp")
	}
	if got.Rejected {
		t.Error("redirect must not mark the approval rejected")
	}
	want := "Redirected to registrar@uni.edu with comment records request"
	if got.FinalResponse != want {
		t.Errorf("final response = %q, want %q", got.FinalResponse, want)
	}
	if len(mc.forwards) != 1 || mc.forwards[0] != "msg-a1->registrar@uni.edu" {
		t.Errorf("forwards = %v", mc.forwards)
	}
	if len(mc.marked) != 1 {
		t.Errorf("marked = %v, want the original marked read", mc.marked)
	}

	hist, _ := store.ListHistory(context.Background())
	if len(hist) != 1 || hist[0].Status != StatusRedirected {
		t.Fatalf("history = %+v, want one redirected entry", hist)
	}
}

func TestRedirect_ForwardFailureLeavesPending(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	store.approvals["a1"] = pendingApproval("a1")
	mc := newMockMail()
	mc.forwardErr = errors.New("graph 502")
	svc := NewService(store, mc, log.Nop(), nil)

	if _, err := svc.Redirect(context.Background(), "a1", "registrar@uni.edu", ""); err == nil {
		t.Fatal("expected error when forward fails")
	}

	got, _, _ := store.GetApproval(context.Background(), "a1")
	if !got.Pending() {
		t.Error("approval must stay pending after a failed forward")
	}
}

func TestRedirect_MarkReadFailureLeavesPending(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	store.approvals["a1"] = pendingApproval("a1")
	mc := newMockMail()
	mc.markErr = errors.New("graph 503")
	svc := NewService(store, mc, log.Nop(), nil)

	if _, err := svc.Redirect(context.Background(), "a1", "registrar@uni.edu", ""); err == nil {
		t.Fatal("expected error when mark read fails")
	}

	got, _, _ := store.GetApproval(context.Background(), "a1")
	if !got.Pending() {
		t.Error("approval must stay pending after a failed mark read")
	}
	hist, _ := store.ListHistory(context.Background())
	if len(hist) != 0 {
		t.Errorf("history entries = %d, want 0", len(hist))
	}
}

func TestDiscard_DeletesWithoutHistory(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	store.approvals["a1"] = pendingApproval("a1")
	mc := newMockMail()
	svc := NewService(store, mc, log.Nop(), nil)

	if err := svc.Discard(context.Background(), "a1"); err != nil {
		t.Fatalf("Discard: %v", err)
	}

	if _, ok, _ := store.GetApproval(context.Background(), "a1"); ok {
		t.Error("approval must be gone after discard")
	}
	hist, _ := store.ListHistory(context.Background())
	if len(hist) != 0 {
		t.Errorf("history entries = %d, want 0 after discard", len(hist))
	}
	if len(mc.replies) != 0 && len(mc.marked) != 0 {
		t.Error("discard must not touch the mailbox")
	}
}

func TestDiscard_NotFound(t *testing.T) {
	t.Parallel()

	svc := NewService(newMockStore(), newMockMail(), log.Nop(), nil)

	if err := svc.Discard(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/linnemanlabs/bursar/internal/triage"
)

func TestSend_NoWebhookIsNoop(t *testing.T) {
	t.Parallel()

	n := New("")
	if err := n.Send(context.Background(), &triage.Summary{Status: "complete"}); err != nil {
		t.Fatalf("Send with empty webhook: %v", err)
	}
}

func TestSend_PostsBlocks(t *testing.T) {
	t.Parallel()

	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		var err error
		if body, err = json.Marshal(decodeBody(t, r)); err != nil {
			t.Fatalf("re-marshal: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL)
	err := n.Send(context.Background(), &triage.Summary{
		Status:        "complete",
		Processed:     4,
		AIAgent:       2,
		HumanRequired: 1,
		Redirect:      1,
		Skipped:       3,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	payload := string(body)
	for _, want := range []string{
		"Inbox Triage Complete",
		"\U0001f7e1", // yellow circle while human review is pending
		"*Processed:* 4",
		"*Auto-drafted:* 2",
		"*Needs human:* 1",
		"*Redirected:* 1",
		"*Skipped:* 3",
	} {
		if !strings.Contains(payload, want) {
			t.Errorf("payload missing %q", want)
		}
	}
}

func TestSend_EmptyInbox(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body = decodeBody(t, r)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL)
	if err := n.Send(context.Background(), &triage.Summary{Status: "empty"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	raw, _ := json.Marshal(body)
	if !strings.Contains(string(raw), "Inbox Clear") {
		t.Errorf("payload = %s, want Inbox Clear header", raw)
	}
	if !strings.Contains(string(raw), "\U0001f7e2") {
		t.Errorf("payload = %s, want green circle", raw)
	}
}

func TestSend_WebhookError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	n := New(srv.URL)
	err := n.Send(context.Background(), &triage.Summary{Status: "complete"})
	if err == nil {
		t.Fatal("expected error on HTTP 400")
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("error = %v, want status code", err)
	}
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		t.Fatalf("decode webhook body: %v", err)
	}
	return m
}

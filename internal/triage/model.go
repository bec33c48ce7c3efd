package triage

import (
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/bursar/internal/mail"
)

// Route is the triage decision for a message.
type Route string

const (
	// RouteAgent means an automated knowledge-base reply can be drafted.
	RouteAgent Route = "AI_AGENT"

	// RouteHuman means the message needs manual handling.
	RouteHuman Route = "HUMAN_REQUIRED"

	// RouteRedirect means the message belongs to another department.
	RouteRedirect Route = "REDIRECT"
)

// ParseRoute validates a raw route string from the classification
// collaborator. Anything outside the three-way taxonomy is rejected.
func ParseRoute(s string) (Route, error) {
	switch Route(s) {
	case RouteAgent, RouteHuman, RouteRedirect:
		return Route(s), nil
	}
	return "", fmt.Errorf("unknown route %q", s)
}

// Resolution status recorded in the history archive.
const (
	StatusApproved   = "approved"
	StatusRejected   = "rejected"
	StatusRedirected = "redirected"
)

// Sentinel errors for approval-queue preconditions.
var (
	ErrNotFound        = xerrors.New("approval not found")
	ErrAlreadyResolved = xerrors.New("approval already resolved")
	ErrNoResponse      = xerrors.New("no response available to send")
)

// Classification is the router's verdict for one inbound message.
// Department is set if and only if Route is RouteRedirect.
type Classification struct {
	MessageID  string       `json:"message_id"`
	Message    mail.Message `json:"message"`
	Route      Route        `json:"route"`
	Confidence float64      `json:"confidence"`
	Reason     string       `json:"reason"`
	Department string       `json:"department,omitempty"`
}

// Approval is the persistent unit of the queue: a triaged message awaiting
// a staff resolve action. Approved and Rejected are mutually exclusive
// terminal states; a record with neither is pending.
type Approval struct {
	ID                string     `json:"id"`
	MessageID         string     `json:"message_id"`
	ConversationID    string     `json:"conversation_id,omitempty"`
	ConversationIndex string     `json:"conversation_index,omitempty"`
	Subject           string     `json:"subject"`
	SenderEmail       string     `json:"sender_email"`
	Body              string     `json:"body"`
	Route             Route      `json:"route"`
	Department        string     `json:"department,omitempty"`
	GeneratedResponse string     `json:"generated_response,omitempty"`
	FinalResponse     string     `json:"final_response,omitempty"`
	Confidence        float64    `json:"confidence"`
	AgentUsed         bool       `json:"agent_used"`
	Approved          bool       `json:"approved"`
	ApprovedAt        *time.Time `json:"approved_at,omitempty"`
	Rejected          bool       `json:"rejected"`
	RejectedAt        *time.Time `json:"rejected_at,omitempty"`
	ReceivedAt        time.Time  `json:"received_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Pending reports whether the record has not yet reached a terminal state.
func (a *Approval) Pending() bool {
	return !a.Approved && !a.Rejected
}

// HistoryEntry is the immutable archival counterpart written when an
// approval reaches a terminal state. Created once, never mutated.
type HistoryEntry struct {
	ID                string    `json:"id"`
	MessageID         string    `json:"message_id"`
	ConversationID    string    `json:"conversation_id,omitempty"`
	ConversationIndex string    `json:"conversation_index,omitempty"`
	Subject           string    `json:"subject"`
	SenderEmail       string    `json:"sender_email"`
	Route             Route     `json:"route"`
	Department        string    `json:"department,omitempty"`
	FinalResponse     string    `json:"final_response,omitempty"`
	Confidence        float64   `json:"confidence"`
	Status            string    `json:"approval_status"`
	ReceivedAt        time.Time `json:"received_at"`
	ProcessedAt       time.Time `json:"processed_at"`
}

// Summary is the outcome of one pipeline run over a batch of messages.
type Summary struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	Processed     int    `json:"processed"`
	AIAgent       int    `json:"ai_agent"`
	HumanRequired int    `json:"human_required"`
	Redirect      int    `json:"redirect"`
	Skipped       int    `json:"skipped"`
}

// Package mail defines the provider-neutral contract for the mailbox
// collaborator: fetching unread messages, reading conversation threads,
// and acting on messages (reply, forward, mark read).
package mail

import (
	"context"
	"time"
)

// Message is a normalized unit of triage work. Produced by the provider
// client; immutable within a pipeline run.
type Message struct {
	ID                string    `json:"id"`
	ConversationID    string    `json:"conversation_id,omitempty"`
	ConversationIndex string    `json:"conversation_index,omitempty"`
	Subject           string    `json:"subject"`
	Body              string    `json:"body"`
	Sender            string    `json:"sender"`
	SenderEmail       string    `json:"sender_email"`
	ReceivedAt        time.Time `json:"received_at"`
	IsRead            bool      `json:"is_read"`
}

// ThreadMessage is one raw message of a conversation thread, as returned by
// the provider. Preview is a short plain-text excerpt; Body is the full
// content and may be empty when only a preview is available.
type ThreadMessage struct {
	ID          string    `json:"id"`
	SenderName  string    `json:"sender_name"`
	SenderEmail string    `json:"sender_email"`
	Subject     string    `json:"subject"`
	Preview     string    `json:"preview"`
	Body        string    `json:"body"`
	ReceivedAt  time.Time `json:"received_at"`
}

// SendResult reports the outcome of an outbound send or forward.
type SendResult struct {
	Success bool
	Message string
}

// Client is the mailbox collaborator consumed by the triage core.
// Implementations own their own timeouts; the core treats any error as a
// collaborator failure.
type Client interface {
	// FetchUnread returns up to maxResults unread messages.
	FetchUnread(ctx context.Context, maxResults int) ([]Message, error)

	// FetchThread returns all messages of a conversation, oldest first.
	FetchThread(ctx context.Context, conversationID string) ([]ThreadMessage, error)

	// MarkRead marks a message as read.
	MarkRead(ctx context.Context, messageID string) error

	// SendReply sends htmlBody as a reply on the original message.
	SendReply(ctx context.Context, messageID, htmlBody string) (*SendResult, error)

	// Forward forwards the original message to toAddress with a comment.
	Forward(ctx context.Context, messageID, toAddress, comment string) (*SendResult, error)
}

// Package graph implements mail.Client against the Microsoft Graph API
// using app-only client credentials.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/bursar/internal/mail"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// threadFetchLimit caps how many messages a conversation lookup returns.
const threadFetchLimit = 25

// Config holds the Azure AD app registration and target mailbox.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// Mailbox is the user principal name or object ID of the shared
	// mailbox the service reads and sends from.
	Mailbox string

	// BaseURL overrides the Graph endpoint, for tests.
	BaseURL string
}

// Client talks to one mailbox through the Graph REST API.
type Client struct {
	httpc   *http.Client
	baseURL string
	mailbox string
	logger  log.Logger
}

// New builds a Graph client. The underlying HTTP client refreshes its
// app-only token automatically.
func New(ctx context.Context, cfg Config, logger log.Logger) *Client {
	if logger == nil {
		logger = log.Nop()
	}
	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID),
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		httpc:   creds.Client(ctx),
		baseURL: baseURL,
		mailbox: cfg.Mailbox,
		logger:  logger,
	}
}

// NewWithHTTPClient builds a Graph client on a caller-supplied HTTP client.
// Used by tests to bypass the token exchange.
func NewWithHTTPClient(httpc *http.Client, baseURL, mailbox string, logger log.Logger) *Client {
	if logger == nil {
		logger = log.Nop()
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{httpc: httpc, baseURL: baseURL, mailbox: mailbox, logger: logger}
}

type graphAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type graphRecipient struct {
	EmailAddress graphAddress `json:"emailAddress"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphMessage struct {
	ID                string          `json:"id"`
	Subject           string          `json:"subject"`
	BodyPreview       string          `json:"bodyPreview"`
	Body              *graphBody      `json:"body"`
	From              *graphRecipient `json:"from"`
	ReceivedDateTime  time.Time       `json:"receivedDateTime"`
	IsRead            bool            `json:"isRead"`
	ConversationID    string          `json:"conversationId"`
	ConversationIndex string          `json:"conversationIndex"`
}

type graphList struct {
	Value []graphMessage `json:"value"`
}

// FetchUnread lists unread messages in the mailbox, newest first.
func (c *Client) FetchUnread(ctx context.Context, maxResults int) ([]mail.Message, error) {
	q := url.Values{
		"$filter":  {"isRead eq false"},
		"$top":     {strconv.Itoa(maxResults)},
		"$orderby": {"receivedDateTime desc"},
		"$select":  {"id,subject,bodyPreview,from,receivedDateTime,isRead,body,conversationId,conversationIndex"},
	}

	var list graphList
	if err := c.get(ctx, "/messages?"+q.Encode(), &list); err != nil {
		return nil, fmt.Errorf("fetch unread: %w", err)
	}

	msgs := make([]mail.Message, 0, len(list.Value))
	for _, m := range list.Value {
		msgs = append(msgs, mail.Message{
			ID:                m.ID,
			ConversationID:    m.ConversationID,
			ConversationIndex: m.ConversationIndex,
			Subject:           m.Subject,
			Body:              messageBody(m),
			Sender:            senderName(m),
			SenderEmail:       senderAddress(m),
			ReceivedAt:        m.ReceivedDateTime,
			IsRead:            m.IsRead,
		})
	}
	return msgs, nil
}

// FetchThread lists all messages in a conversation, oldest first. Graph
// rejects $orderby combined with a conversationId filter, so ordering
// happens client-side.
func (c *Client) FetchThread(ctx context.Context, conversationID string) ([]mail.ThreadMessage, error) {
	q := url.Values{
		"$filter": {fmt.Sprintf("conversationId eq '%s'", conversationID)},
		"$select": {"id,subject,body,bodyPreview,from,receivedDateTime,conversationIndex"},
		"$top":    {strconv.Itoa(threadFetchLimit)},
	}

	var list graphList
	if err := c.get(ctx, "/messages?"+q.Encode(), &list); err != nil {
		return nil, fmt.Errorf("fetch thread: %w", err)
	}

	sort.Slice(list.Value, func(i, j int) bool {
		return list.Value[i].ReceivedDateTime.Before(list.Value[j].ReceivedDateTime)
	})

	thread := make([]mail.ThreadMessage, 0, len(list.Value))
	for _, m := range list.Value {
		thread = append(thread, mail.ThreadMessage{
			ID:          m.ID,
			SenderName:  senderName(m),
			SenderEmail: senderAddress(m),
			Subject:     m.Subject,
			Preview:     m.BodyPreview,
			Body:        messageBody(m),
			ReceivedAt:  m.ReceivedDateTime,
		})
	}
	return thread, nil
}

// MarkRead flags a message as read.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	payload := map[string]bool{"isRead": true}
	resp, err := c.do(ctx, http.MethodPatch, "/messages/"+url.PathEscape(messageID), payload)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mark read: graph returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// SendReply posts a true reply on the original message, keeping the thread
// headers intact. htmlBody must already be HTML.
func (c *Client) SendReply(ctx context.Context, messageID, htmlBody string) (*mail.SendResult, error) {
	payload := map[string]any{
		"message": map[string]any{
			"importance": "normal",
			"body": map[string]string{
				"contentType": "html",
				"content":     htmlBody,
			},
		},
	}

	resp, err := c.do(ctx, http.MethodPost, "/messages/"+url.PathEscape(messageID)+"/reply", payload)
	if err != nil {
		return nil, fmt.Errorf("send reply: %w", err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("send reply: graph returned HTTP %d: %s", resp.StatusCode, body)
	}
	return &mail.SendResult{Success: true, Message: "Reply sent successfully"}, nil
}

// Forward forwards the original message to another address with a comment.
func (c *Client) Forward(ctx context.Context, messageID, toAddress, comment string) (*mail.SendResult, error) {
	payload := map[string]any{
		"comment": comment,
		"toRecipients": []graphRecipient{
			{EmailAddress: graphAddress{Address: toAddress}},
		},
	}

	resp, err := c.do(ctx, http.MethodPost, "/messages/"+url.PathEscape(messageID)+"/forward", payload)
	if err != nil {
		return nil, fmt.Errorf("forward: %w", err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("forward: graph returned HTTP %d: %s", resp.StatusCode, body)
	}
	return &mail.SendResult{Success: true, Message: "Forward sent successfully"}, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("graph returned HTTP %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	u := fmt.Sprintf("%s/users/%s%s", c.baseURL, url.PathEscape(c.mailbox), path)
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", `outlook.body-content-type="text"`)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpc.Do(req)
}

func messageBody(m graphMessage) string {
	if m.Body != nil && m.Body.Content != "" {
		return m.Body.Content
	}
	return m.BodyPreview
}

func senderName(m graphMessage) string {
	if m.From == nil {
		return "Unknown"
	}
	return m.From.EmailAddress.Name
}

func senderAddress(m graphMessage) string {
	if m.From == nil {
		return "unknown"
	}
	return m.From.EmailAddress.Address
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

package triage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/linnemanlabs/bursar/internal/mail"
)

// Event is one progress report from a pipeline run. Progress is a
// monotonic percentage; the terminal event carries either the summary or
// an error message.
type Event struct {
	Status   string   `json:"status"` // "progress" | "empty" | "complete" | "error"
	Step     string   `json:"step,omitempty"`
	Progress int      `json:"progress"`
	Message  string   `json:"message,omitempty"`
	Count    int      `json:"count,omitempty"`
	Summary  *Summary `json:"summary,omitempty"`
}

// EmitFunc receives pipeline events. Returning an error aborts the run;
// nothing staged is committed.
type EmitFunc func(Event) error

// Notifier pushes run summaries to an external channel.
type Notifier interface {
	Send(ctx context.Context, summary *Summary) error
}

// Engine composes the classifier, drafter, mailbox, and store into one
// triage run over a batch of inbound messages.
type Engine struct {
	store      Store
	mailc      mail.Client
	classifier *Classifier
	drafter    *Drafter
	logger     log.Logger
	metrics    *Metrics
	notifier   Notifier
	maxFetch   int
}

// NewEngine creates a pipeline engine with the given dependencies.
// metrics and notifier may be nil.
func NewEngine(store Store, mailc mail.Client, classifier *Classifier, drafter *Drafter, logger log.Logger, metrics *Metrics, notifier Notifier, maxFetch int) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	if maxFetch <= 0 {
		maxFetch = 50
	}
	return &Engine{
		store:      store,
		mailc:      mailc,
		classifier: classifier,
		drafter:    drafter,
		logger:     logger,
		metrics:    metrics,
		notifier:   notifier,
		maxFetch:   maxFetch,
	}
}

// ProcessMailbox fetches unread messages and runs the pipeline over them.
// emit may be nil for blocking callers.
func (e *Engine) ProcessMailbox(ctx context.Context, emit EmitFunc) (*Summary, error) {
	if emit == nil {
		emit = func(Event) error { return nil }
	}

	if err := emit(Event{Status: "progress", Progress: 5, Step: "Fetching unread emails..."}); err != nil {
		return nil, err
	}

	msgs, err := e.mailc.FetchUnread(ctx, e.maxFetch)
	if err != nil {
		e.emitError(emit, err)
		return nil, fmt.Errorf("fetch unread: %w", err)
	}

	if len(msgs) == 0 {
		summary := &Summary{Status: "empty", Message: "You are all caught up!"}
		_ = emit(Event{Status: "empty", Progress: 100, Message: summary.Message, Summary: summary})
		return summary, nil
	}

	if err := emit(Event{
		Status:   "progress",
		Progress: 10,
		Count:    len(msgs),
		Step:     fmt.Sprintf("Found %d unread email(s)", len(msgs)),
	}); err != nil {
		return nil, err
	}

	return e.Run(ctx, msgs, emit)
}

// Run executes the triage pipeline over a fixed batch: fetch threads in
// parallel, classify sequentially, stage approval records per route, draft
// responses for the automated route, then commit all staged writes in one
// transaction. All writes stay in memory until the single commit, so an
// abandoned or failed run never leaves partial state.
func (e *Engine) Run(ctx context.Context, msgs []mail.Message, emit EmitFunc) (*Summary, error) {
	if emit == nil {
		emit = func(Event) error { return nil }
	}
	start := time.Now()

	// Step 1: fetch each message's conversation thread in parallel. A
	// failed fetch degrades to an empty thread for that message only.
	threads := e.fetchThreads(ctx, msgs)
	if err := emit(Event{Status: "progress", Progress: 20, Step: "Fetched conversation threads"}); err != nil {
		return nil, err
	}

	// Step 2: classify the whole batch, one message at a time.
	human, agent, redirect := e.classifier.Classify(ctx, msgs, threads)
	if err := emit(Event{
		Status:   "progress",
		Progress: 40,
		Step:     fmt.Sprintf("Classified %d email(s)", len(human)+len(agent)+len(redirect)),
	}); err != nil {
		return nil, err
	}

	var (
		staged  []*Approval
		summary Summary
	)

	// Steps 3 and 4: stage redirect and human records.
	for _, cl := range redirect {
		if e.stageClassification(ctx, cl, "", &staged, &summary) {
			summary.Redirect++
		}
	}
	if err := emit(Event{Status: "progress", Progress: 50, Step: "Queued redirect emails"}); err != nil {
		return nil, err
	}

	for _, cl := range human {
		if e.stageClassification(ctx, cl, "", &staged, &summary) {
			summary.HumanRequired++
		}
	}
	if err := emit(Event{Status: "progress", Progress: 60, Step: "Queued human-review emails"}); err != nil {
		return nil, err
	}

	// Step 5: draft responses for the automated route. A failed draft
	// skips the message entirely; it is never queued with a blank reply.
	for i, cl := range agent {
		dup, err := e.store.IsDuplicate(ctx, cl.MessageID)
		if err != nil {
			e.emitError(emit, err)
			return nil, fmt.Errorf("dedup check: %w", err)
		}
		step := fmt.Sprintf("Drafted response %d of %d", i+1, len(agent))
		if dup {
			summary.Skipped++
			e.metrics.incSkipped()
			step = fmt.Sprintf("Skipped duplicate %d of %d", i+1, len(agent))
		} else {
			response, err := e.drafter.Draft(ctx, cl, threads[cl.MessageID])
			if err != nil {
				e.logger.Error(ctx, err, "draft failed, skipping message",
					"message_id", cl.MessageID,
					"subject", cl.Message.Subject,
				)
				e.metrics.incDropped("draft")
				step = fmt.Sprintf("Skipped %d of %d after a failed draft", i+1, len(agent))
			} else {
				staged = append(staged, e.newApproval(cl, response))
				summary.AIAgent++
				e.metrics.incRoute(RouteAgent)
			}
		}

		progress := 60 + 30*(i+1)/len(agent)
		if err := emit(Event{
			Status:   "progress",
			Progress: progress,
			Step:     step,
		}); err != nil {
			return nil, err
		}
	}

	// Step 6: one batched commit for everything staged.
	if len(staged) > 0 {
		if err := e.store.CreateApprovals(ctx, staged); err != nil {
			e.metrics.incRun("failed", time.Since(start).Seconds())
			e.emitError(emit, err)
			return nil, fmt.Errorf("commit approvals: %w", err)
		}
	}

	summary.Processed = summary.AIAgent + summary.HumanRequired + summary.Redirect
	summary.Status = "success"
	summary.Message = fmt.Sprintf(
		"Processed %d emails (%d AI, %d human, %d redirect), skipped %d",
		summary.Processed, summary.AIAgent, summary.HumanRequired, summary.Redirect, summary.Skipped,
	)

	e.metrics.incRun("success", time.Since(start).Seconds())
	e.logger.Info(ctx, "triage run complete",
		"processed", summary.Processed,
		"ai_agent", summary.AIAgent,
		"human_required", summary.HumanRequired,
		"redirect", summary.Redirect,
		"skipped", summary.Skipped,
		"duration", time.Since(start).Seconds(),
	)

	if e.notifier != nil {
		if err := e.notifier.Send(ctx, &summary); err != nil {
			e.logger.Warn(ctx, "run notification failed", "error", err)
		}
	}

	// The commit already happened; a lost consumer at this point is not an
	// error worth surfacing.
	_ = emit(Event{Status: "complete", Progress: 100, Message: summary.Message, Summary: &summary})

	return &summary, nil
}

// stageClassification dedup-checks and stages one non-agent record.
// Returns true when a record was staged.
func (e *Engine) stageClassification(ctx context.Context, cl Classification, response string, staged *[]*Approval, summary *Summary) bool {
	dup, err := e.store.IsDuplicate(ctx, cl.MessageID)
	if err != nil {
		e.logger.Error(ctx, err, "dedup check failed, skipping message", "message_id", cl.MessageID)
		e.metrics.incDropped("dedup")
		return false
	}
	if dup {
		summary.Skipped++
		e.metrics.incSkipped()
		return false
	}

	*staged = append(*staged, e.newApproval(cl, response))
	e.metrics.incRoute(cl.Route)
	return true
}

func (e *Engine) newApproval(cl Classification, response string) *Approval {
	now := time.Now()
	m := cl.Message
	return &Approval{
		ID:                ulid.Make().String(),
		MessageID:         m.ID,
		ConversationID:    m.ConversationID,
		ConversationIndex: m.ConversationIndex,
		Subject:           m.Subject,
		SenderEmail:       m.SenderEmail,
		Body:              m.Body,
		Route:             cl.Route,
		Department:        cl.Department,
		GeneratedResponse: response,
		Confidence:        cl.Confidence,
		AgentUsed:         response != "",
		ReceivedAt:        m.ReceivedAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// fetchThreads issues one conversation fetch per message concurrently and
// waits for all to settle. Failures degrade to an empty thread.
func (e *Engine) fetchThreads(ctx context.Context, msgs []mail.Message) map[string][]mail.ThreadMessage {
	var mu sync.Mutex
	threads := make(map[string][]mail.ThreadMessage, len(msgs))

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range msgs {
		if m.ConversationID == "" {
			continue
		}
		g.Go(func() error {
			t, err := e.mailc.FetchThread(gctx, m.ConversationID)
			if err != nil {
				e.logger.Warn(gctx, "thread fetch failed, using empty context",
					"message_id", m.ID,
					"conversation_id", m.ConversationID,
					"error", err,
				)
				e.metrics.incDropped("thread_fetch")
				return nil
			}
			mu.Lock()
			threads[m.ID] = t
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // goroutines never return errors; failures degrade per item

	return threads
}

func (e *Engine) emitError(emit EmitFunc, err error) {
	_ = emit(Event{Status: "error", Progress: 100, Message: err.Error()})
}

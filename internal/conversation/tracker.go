// ABOUTME: Tracker is the stateful side of the protocol: conversation records and timeouts
// ABOUTME: All mutations run as serialized load-mutate-save sequences over one Store

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/parley/internal/store"
	"github.com/2389/parley/internal/wire"
)

// Timeout windows per message type. The window applied to a record is keyed
// by the most recent message type seen on it (LastType), not the type that
// opened it: a conversation that just went through CLARIFY is expected to
// move faster than one waiting on a fresh REQUEST.
const (
	ClarifyWindow   = 10 * time.Minute
	RequestWindow   = 30 * time.Minute
	HandoffWindow   = 30 * time.Minute
	BroadcastWindow = 5 * time.Minute
)

// historyTimeout is the history entry type recorded by the timeout sweep.
const historyTimeout = "TIMEOUT"

// Filter selects records in List. Zero-value fields match everything.
type Filter struct {
	Status string
	From   string
	To     string
}

// Conversation is a record tagged with its request id, as returned by List.
type Conversation struct {
	RequestID string
	Record    *store.Record
}

// Tracker maintains per-conversation state in a Store. Mutating operations
// (Track, Timeout, Cleanup, CheckTimeouts) are serialized through a
// per-instance mutex so their load-mutate-save sequences never interleave;
// read-only operations go straight to the store and observe either the pre-
// or post-mutation snapshot. Two processes sharing one backing store are NOT
// coordinated; single-process callers are the supported deployment.
type Tracker struct {
	store   store.Store
	logger  *slog.Logger
	windows map[string]time.Duration

	mu  sync.Mutex // serializes mutating load-mutate-save sequences
	now func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the tracker's time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithWindows overrides one or more timeout windows, keyed by message type.
func WithWindows(windows map[string]time.Duration) Option {
	return func(t *Tracker) {
		for msgType, w := range windows {
			t.windows[msgType] = w
		}
	}
}

// New creates a Tracker backed by the given store.
func New(st store.Store, logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		store:  st,
		logger: logger.With("component", "conversation"),
		windows: map[string]time.Duration{
			wire.TypeClarify:   ClarifyWindow,
			wire.TypeRequest:   RequestWindow,
			wire.TypeHandoff:   HandoffWindow,
			wire.TypeBroadcast: BroadcastWindow,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track records a parsed message against its conversation. The first message
// for a request id creates the record (status open, or the RESPONSE's own
// status when the conversation starts with one); every call appends exactly
// one history entry. RESPONSE moves status to its own status (default done),
// CLARIFY to clarifying, other types leave status alone. A duplicate request
// id is merged into the existing record's history, never rejected.
func (t *Tracker) Track(ctx context.Context, msg *wire.Message) (*store.Record, error) {
	if msg == nil {
		return nil, fmt.Errorf("nil message")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	now := t.now()
	rec, exists := records[msg.RequestID]
	if !exists {
		rec = &store.Record{
			Type:      msg.Type,
			To:        msg.To,
			From:      msg.From,
			Task:      firstTask(msg),
			Status:    store.StatusOpen,
			CreatedAt: now,
		}
		records[msg.RequestID] = rec
	} else {
		t.logger.Warn("request id already tracked, merging into history",
			"request_id", msg.RequestID,
			"type", msg.Type,
			"from", msg.From)
		// Task keeps the first task/question/broadcast text seen, which
		// may arrive after a conversation opened with a RESPONSE.
		if rec.Task == "" {
			rec.Task = firstTask(msg)
		}
	}

	switch msg.Type {
	case wire.TypeResponse:
		status := msg.Status
		if status == "" {
			status = store.StatusDone
		}
		rec.Status = status
	case wire.TypeClarify:
		rec.Status = store.StatusClarifying
	}

	if msg.Depth != nil {
		rec.Depth = msg.Depth.Current
	}
	rec.UpdatedAt = now
	rec.LastType = msg.Type
	rec.History = append(rec.History, store.HistoryEntry{
		Type:    msg.Type,
		From:    msg.From,
		To:      msg.To,
		Status:  msg.Status,
		At:      now,
		Content: payload(msg),
	})

	if err := t.store.Save(ctx, records); err != nil {
		return nil, err
	}

	t.logger.Debug("conversation tracked",
		"request_id", msg.RequestID,
		"type", msg.Type,
		"status", rec.Status)
	return rec.Clone(), nil
}

// Get returns a copy of the record for a request id, or nil when unknown.
// Absence is not an error.
func (t *Tracker) Get(ctx context.Context, requestID string) (*store.Record, error) {
	records, err := t.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return records[requestID].Clone(), nil
}

// List returns copies of all records matching the filter, each tagged with
// its request id. Order is unspecified.
func (t *Tracker) List(ctx context.Context, f Filter) ([]Conversation, error) {
	records, err := t.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	var out []Conversation
	for id, rec := range records {
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		if f.From != "" && rec.From != f.From {
			continue
		}
		if f.To != "" && rec.To != f.To {
			continue
		}
		out = append(out, Conversation{RequestID: id, Record: rec.Clone()})
	}
	return out, nil
}

// Timeout marks a conversation as timed out, recording the reason in its
// history. Returns nil without error when the request id is unknown.
func (t *Tracker) Timeout(ctx context.Context, requestID, reason string) (*store.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	rec, ok := records[requestID]
	if !ok {
		return nil, nil
	}
	t.applyTimeout(rec, reason)

	if err := t.store.Save(ctx, records); err != nil {
		return nil, err
	}

	t.logger.Info("conversation timed out", "request_id", requestID, "reason", reason)
	return rec.Clone(), nil
}

// Cleanup deletes every record whose status is terminal and whose age since
// its last update exceeds olderThan. Returns the number removed. Records
// still open or clarifying are never removed, regardless of age.
func (t *Tracker) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.store.Load(ctx)
	if err != nil {
		return 0, err
	}

	now := t.now()
	removed := 0
	for id, rec := range records {
		if !store.Terminal(rec.Status) {
			continue
		}
		if now.Sub(rec.UpdatedAt) > olderThan {
			delete(records, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}

	if err := t.store.Save(ctx, records); err != nil {
		return 0, err
	}

	t.logger.Info("cleanup removed conversations", "count", removed)
	return removed, nil
}

// CheckTimeouts scans open and clarifying conversations and times out any
// whose window has elapsed. The window is chosen by the record's LastType.
// Returns the request ids that were transitioned.
func (t *Tracker) CheckTimeouts(ctx context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	now := t.now()
	var timedOut []string
	for id, rec := range records {
		if rec.Status != store.StatusOpen && rec.Status != store.StatusClarifying {
			continue
		}
		elapsed := now.Sub(rec.UpdatedAt)
		if elapsed <= t.window(rec.LastType) {
			continue
		}
		reason := fmt.Sprintf("No activity for %d minutes after %s", int(elapsed.Minutes()), rec.LastType)
		t.applyTimeout(rec, reason)
		timedOut = append(timedOut, id)
		t.logger.Info("conversation timed out", "request_id", id, "reason", reason)
	}
	if len(timedOut) == 0 {
		return nil, nil
	}

	if err := t.store.Save(ctx, records); err != nil {
		return nil, err
	}
	return timedOut, nil
}

// applyTimeout is the single place a record transitions to timeout. Callers
// hold the mutation lock and save the snapshot afterwards.
func (t *Tracker) applyTimeout(rec *store.Record, reason string) {
	now := t.now()
	rec.Status = store.StatusTimeout
	rec.UpdatedAt = now
	rec.History = append(rec.History, store.HistoryEntry{
		Type:    historyTimeout,
		At:      now,
		Content: reason,
	})
}

// window returns the timeout window for a message type, defaulting to the
// REQUEST window for unknown types.
func (t *Tracker) window(msgType string) time.Duration {
	if w, ok := t.windows[msgType]; ok {
		return w
	}
	return t.windows[wire.TypeRequest]
}

// firstTask extracts the text that seeds a new record's Task field: the
// first task, question, or broadcast text seen on the conversation.
func firstTask(msg *wire.Message) string {
	switch {
	case msg.Task != "":
		return msg.Task
	case msg.Question != "":
		return msg.Question
	case msg.Message != "":
		return msg.Message
	}
	return ""
}

// payload returns the history entry content for a message.
func payload(msg *wire.Message) string {
	switch msg.Type {
	case wire.TypeRequest, wire.TypeHandoff:
		return msg.Task
	case wire.TypeClarify:
		return msg.Question
	case wire.TypeResponse:
		return msg.Result
	case wire.TypeBroadcast:
		return msg.Message
	}
	return ""
}

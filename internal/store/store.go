// ABOUTME: Store interface and data types for parley conversation persistence
// ABOUTME: Defines the Record/HistoryEntry structs and the snapshot Store contract

package store

import (
	"context"
	"time"
)

// Conversation status values.
const (
	StatusOpen       = "open"
	StatusClarifying = "clarifying"
	StatusDone       = "done"
	StatusPartial    = "partial"
	StatusFailed     = "failed"
	StatusTimeout    = "timeout"
)

// Terminal reports whether a status makes the conversation eligible for
// cleanup.
func Terminal(status string) bool {
	switch status {
	case StatusDone, StatusPartial, StatusFailed, StatusTimeout:
		return true
	}
	return false
}

// Record is the persisted state of one conversation, keyed by its request id.
// JSON field names follow the on-disk document layout.
type Record struct {
	Type      string         `json:"type"`
	To        string         `json:"to"`
	From      string         `json:"from"`
	Task      string         `json:"task,omitempty"`
	Status    string         `json:"status"`
	Depth     int            `json:"depth"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	LastType  string         `json:"lastType"`
	History   []HistoryEntry `json:"history"`
}

// HistoryEntry is one append-only step in a conversation's history.
type HistoryEntry struct {
	Type    string    `json:"type"`
	From    string    `json:"from,omitempty"`
	To      string    `json:"to,omitempty"`
	Status  string    `json:"status,omitempty"`
	At      time.Time `json:"at"`
	Content string    `json:"content,omitempty"`
}

// Clone returns a deep copy of the record. Callers of the tracker only ever
// see copies, never handles into the persisted snapshot.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.History = make([]HistoryEntry, len(r.History))
	copy(out.History, r.History)
	return &out
}

// CloneAll deep-copies a whole snapshot.
func CloneAll(records map[string]*Record) map[string]*Record {
	out := make(map[string]*Record, len(records))
	for id, rec := range records {
		out[id] = rec.Clone()
	}
	return out
}

// Store persists the conversation snapshot: the complete mapping from request
// id to Record. Load and Save move the whole document, matching the
// read-load, mutate, write-save discipline the tracker serializes around.
type Store interface {
	// Load returns the current snapshot. A store with no prior Save
	// returns an empty map, not an error.
	Load(ctx context.Context) (map[string]*Record, error)

	// Save replaces the snapshot.
	Save(ctx context.Context, records map[string]*Record) error

	// Close releases any backing resources.
	Close() error
}

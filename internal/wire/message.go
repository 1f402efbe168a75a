// ABOUTME: Message types and enumerations for the parley wire protocol
// ABOUTME: Defines the Message struct, Depth pair, and the closed type/status/priority sets

package wire

// Message type constants. The set is closed: anything else is rejected by the
// parser and unsupported by the builders.
const (
	TypeRequest   = "REQUEST"
	TypeResponse  = "RESPONSE"
	TypeClarify   = "CLARIFY"
	TypeHandoff   = "HANDOFF"
	TypeBroadcast = "BROADCAST"
)

// BroadcastRecipient is the literal recipient used by BROADCAST messages.
const BroadcastRecipient = "all"

// Status values a RESPONSE may carry. Invalid values are discarded by the
// parser rather than rejecting the whole message.
const (
	StatusDone    = "done"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Priority values. Invalid values are discarded, not rejected.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Depth bounds how many protocol hops a conversation may traverse before a
// terminal RESPONSE is mandatory.
type Depth struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// DefaultDepth is applied by the builders when the caller omits a depth.
var DefaultDepth = Depth{Current: 1, Max: 5}

// Message is a fully parsed protocol message. A Message is either completely
// valid (header matched, From and RequestID present, type-specific payload
// present) or Parse returns nil; there is no partially-valid Message.
type Message struct {
	Type      string `json:"type"`
	To        string `json:"to"`
	From      string `json:"from"`
	RequestID string `json:"requestId"`

	// Depth is nil when the field was absent or malformed.
	Depth *Depth `json:"depth,omitempty"`

	// Type-specific payload fields.
	Task     string `json:"task,omitempty"`     // REQUEST, HANDOFF
	Question string `json:"question,omitempty"` // CLARIFY
	Status   string `json:"status,omitempty"`   // RESPONSE
	Result   string `json:"result,omitempty"`   // RESPONSE
	Message  string `json:"message,omitempty"`  // BROADCAST

	// Optional fields.
	Context  string `json:"context,omitempty"`
	Callback string `json:"callback,omitempty"`
	Priority string `json:"priority,omitempty"`

	// Meta holds any field the parser did not recognize, keyed by the
	// original casing. Preserved verbatim, never interpreted.
	Meta map[string]string `json:"meta,omitempty"`

	// Raw is the original text the message was parsed from, kept for audit.
	Raw string `json:"-"`
}

// validTypes is the closed message-type enumeration.
var validTypes = map[string]bool{
	TypeRequest:   true,
	TypeResponse:  true,
	TypeClarify:   true,
	TypeHandoff:   true,
	TypeBroadcast: true,
}

// ValidType reports whether t is a member of the closed message-type set.
func ValidType(t string) bool {
	return validTypes[t]
}

var validStatuses = map[string]bool{
	StatusDone:    true,
	StatusPartial: true,
	StatusFailed:  true,
}

var validPriorities = map[string]bool{
	PriorityLow:    true,
	PriorityNormal: true,
	PriorityHigh:   true,
}

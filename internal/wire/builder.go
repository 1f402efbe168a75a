// ABOUTME: Builders serializing structured fields into parley wire-format text
// ABOUTME: Enforces required fields and the depth-limit invariant before rendering

package wire

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Fields carries the inputs for the build functions. Zero values mean
// "absent"; each builder validates its own required subset.
type Fields struct {
	To        string
	From      string
	RequestID string
	Task      string
	Question  string
	Status    string
	Result    string
	Message   string
	Context   string
	Callback  string
	Priority  string
	Depth     *Depth
}

// MissingFieldError reports a required field absent from a build call.
type MissingFieldError struct {
	MessageType string
	Field       string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s message requires field %q", e.MessageType, e.Field)
}

// DepthLimitError reports a refused hop: the conversation has reached its
// depth bound and only RESPONSE may be sent.
type DepthLimitError struct {
	MessageType string
	Depth       Depth
}

func (e *DepthLimitError) Error() string {
	return fmt.Sprintf("Depth limit reached (%d/%d): cannot send %s, must send RESPONSE instead",
		e.Depth.Current, e.Depth.Max, e.MessageType)
}

// BuildRequest renders a REQUEST. To, From and Task are required; RequestID
// is generated from the sender when omitted; Depth defaults to 1/5.
func BuildRequest(f Fields) (string, error) {
	if err := require(TypeRequest, "to", f.To, "from", f.From, "task", f.Task); err != nil {
		return "", err
	}
	depth := effectiveDepth(f.Depth)
	if err := checkDepth(TypeRequest, depth); err != nil {
		return "", err
	}
	id := f.RequestID
	if id == "" {
		id = GenerateRequestID(f.From)
	}
	return render(TypeRequest, f.To, []field{
		{"From", f.From},
		{"RequestId", id},
		{"Task", f.Task},
		{"Context", f.Context},
		{"Depth", depth.String()},
		{"Callback", f.Callback},
		{"Priority", f.Priority},
	}), nil
}

// BuildResponse renders a RESPONSE. To, From and RequestID are required,
// plus at least one of Result or Status. RESPONSE is the terminal act and is
// always depth-legal.
func BuildResponse(f Fields) (string, error) {
	if err := require(TypeResponse, "to", f.To, "from", f.From, "requestId", f.RequestID); err != nil {
		return "", err
	}
	if f.Result == "" && f.Status == "" {
		return "", &MissingFieldError{MessageType: TypeResponse, Field: "result"}
	}
	depth := effectiveDepth(f.Depth)
	return render(TypeResponse, f.To, []field{
		{"From", f.From},
		{"RequestId", f.RequestID},
		{"Status", f.Status},
		{"Result", f.Result},
		{"Context", f.Context},
		{"Depth", depth.String()},
		{"Callback", f.Callback},
		{"Priority", f.Priority},
	}), nil
}

// BuildClarify renders a CLARIFY. To, From, RequestID and Question are
// required; CLARIFY counts as a hop and is refused at the depth limit.
func BuildClarify(f Fields) (string, error) {
	if err := require(TypeClarify, "to", f.To, "from", f.From, "requestId", f.RequestID, "question", f.Question); err != nil {
		return "", err
	}
	depth := effectiveDepth(f.Depth)
	if err := checkDepth(TypeClarify, depth); err != nil {
		return "", err
	}
	return render(TypeClarify, f.To, []field{
		{"From", f.From},
		{"RequestId", f.RequestID},
		{"Question", f.Question},
		{"Context", f.Context},
		{"Depth", depth.String()},
		{"Callback", f.Callback},
		{"Priority", f.Priority},
	}), nil
}

// BuildHandoff renders a HANDOFF. To, From, RequestID and Task are required;
// HANDOFF counts as a hop and is refused at the depth limit.
func BuildHandoff(f Fields) (string, error) {
	if err := require(TypeHandoff, "to", f.To, "from", f.From, "requestId", f.RequestID, "task", f.Task); err != nil {
		return "", err
	}
	depth := effectiveDepth(f.Depth)
	if err := checkDepth(TypeHandoff, depth); err != nil {
		return "", err
	}
	return render(TypeHandoff, f.To, []field{
		{"From", f.From},
		{"RequestId", f.RequestID},
		{"Task", f.Task},
		{"Context", f.Context},
		{"Depth", depth.String()},
		{"Callback", f.Callback},
		{"Priority", f.Priority},
	}), nil
}

// BuildBroadcast renders a BROADCAST to the literal "all" recipient. From and
// Message are required; RequestID is generated when omitted. BROADCAST is not
// part of the depth chain and is always depth-legal.
func BuildBroadcast(f Fields) (string, error) {
	if err := require(TypeBroadcast, "from", f.From, "message", f.Message); err != nil {
		return "", err
	}
	depth := effectiveDepth(f.Depth)
	id := f.RequestID
	if id == "" {
		id = GenerateRequestID(f.From)
	}
	return render(TypeBroadcast, BroadcastRecipient, []field{
		{"From", f.From},
		{"RequestId", id},
		{"Message", f.Message},
		{"Context", f.Context},
		{"Depth", depth.String()},
		{"Callback", f.Callback},
		{"Priority", f.Priority},
	}), nil
}

// IncrementDepth returns the depth for a reply composed from an incoming
// message: current advances by one, max never changes. The incoming depth
// must be present.
func IncrementDepth(d *Depth) (Depth, error) {
	if d == nil {
		return Depth{}, fmt.Errorf("cannot increment depth: incoming depth is missing")
	}
	return Depth{Current: d.Current + 1, Max: d.Max}, nil
}

// String renders the wire encoding of a depth pair.
func (d Depth) String() string {
	return fmt.Sprintf("%d/%d", d.Current, d.Max)
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

const idSuffixLen = 6

// GenerateRequestID derives a conversation identifier from the sender: the
// sanitized lowercase alphanumeric form of the name joined to a short random
// suffix. Collisions are not checked; the suffix length makes them
// practically negligible and duplicate identifiers are merged downstream
// anyway.
func GenerateRequestID(from string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(from) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	name := b.String()
	if name == "" {
		name = "agent"
	}
	return name + "-" + randomSuffix(idSuffixLen)
}

// randomSuffix draws n characters from the fixed lowercase-alphanumeric
// alphabet using crypto/rand.
func randomSuffix(n int) string {
	max := big.NewInt(int64(len(idAlphabet)))
	buf := make([]byte, n)
	for i := range buf {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform source is
			// broken; there is no useful recovery here.
			panic(fmt.Sprintf("wire: reading random source: %v", err))
		}
		buf[i] = idAlphabet[v.Int64()]
	}
	return string(buf)
}

// field is a rendered Key: value pair. Empty values are skipped.
type field struct {
	key   string
	value string
}

// require returns a MissingFieldError for the first empty value in the
// (name, value) pairs.
func require(msgType string, pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return &MissingFieldError{MessageType: msgType, Field: pairs[i]}
		}
	}
	return nil
}

// effectiveDepth applies the default depth when the caller omitted one.
func effectiveDepth(d *Depth) Depth {
	if d == nil {
		return DefaultDepth
	}
	return *d
}

// checkDepth enforces the depth-limit invariant for hop-counting types.
func checkDepth(msgType string, d Depth) error {
	if d.Current >= d.Max {
		return &DepthLimitError{MessageType: msgType, Depth: d}
	}
	return nil
}

// render produces the fenced wire encoding: header line followed by the
// non-empty fields in their fixed order. The output must stay bit-for-bit
// compatible with Parse.
func render(msgType, to string, fields []field) string {
	var b strings.Builder
	b.WriteString(fence)
	b.WriteByte('\n')
	fmt.Fprintf(&b, "[%s → @%s]\n", msgType, to)
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", f.key, f.value)
	}
	b.WriteString(fence)
	return b.String()
}

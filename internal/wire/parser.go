// ABOUTME: Parser recovering structured protocol messages from free channel text
// ABOUTME: Locates the first fenced block and runs a line tokenizer over its contents

package wire

import (
	"regexp"
	"strconv"
	"strings"
)

const fence = "```"

// headerRe matches the block's first line, e.g. "[REQUEST → @Mantis]".
// The arrow is the Unicode right-arrow glyph, not ASCII "->".
var headerRe = regexp.MustCompile(`^\[(\w+)\s*→\s*@(\S+)\]$`)

// fieldRe matches a "Key: value" line. Keys are letters only; anything else is
// treated as a continuation of the previous field's value.
var fieldRe = regexp.MustCompile(`^([A-Za-z]+):\s*(.*)$`)

// depthRe matches the "current/max" depth encoding.
var depthRe = regexp.MustCompile(`^(\d+)/(\d+)$`)

// knownFields maps normalized field names (lowercased, hyphens and
// underscores stripped) to their canonical slot. Names outside this set land
// in Message.Meta under their original casing.
var knownFields = map[string]bool{
	"from":      true,
	"requestid": true,
	"task":      true,
	"result":    true,
	"context":   true,
	"depth":     true,
	"callback":  true,
	"priority":  true,
	"status":    true,
	"question":  true,
	"message":   true,
}

// Parse extracts a protocol message from raw channel text. It returns nil for
// anything that is not a well-formed protocol message: missing fence, bad
// header, unknown type, or missing required fields. Malformed optional values
// (depth, status, priority) are discarded individually without rejecting the
// message. Parse has no side effects and is deterministic.
func Parse(raw string) *Message {
	if raw == "" {
		return nil
	}

	block, ok := extractBlock(raw)
	if !ok {
		return nil
	}

	lines := strings.Split(block, "\n")

	// First non-blank line must be the header.
	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i == len(lines) {
		return nil
	}
	header := headerRe.FindStringSubmatch(strings.TrimSpace(lines[i]))
	if header == nil {
		return nil
	}
	// The type enumeration is uppercase on the wire; "[request → @x]" is not
	// a protocol message.
	msgType := header[1]
	if !ValidType(msgType) {
		return nil
	}

	msg := &Message{
		Type: msgType,
		To:   header[2],
		Meta: map[string]string{},
		Raw:  raw,
	}

	// Accumulate Key: value pairs; lines that do not introduce a key are
	// continuations of the previous value.
	fields := map[string]string{} // normalized name -> value
	var lastKey string    // normalized, or "" when the last key was unknown
	var lastRawKey string // original casing for meta continuation
	for _, line := range lines[i+1:] {
		if m := fieldRe.FindStringSubmatch(line); m != nil {
			key, value := m[1], m[2]
			norm := normalizeField(key)
			if knownFields[norm] {
				fields[norm] = value
				lastKey, lastRawKey = norm, ""
			} else {
				msg.Meta[key] = value
				lastKey, lastRawKey = "", key
			}
			continue
		}
		// Continuation line: append to whichever field came last.
		switch {
		case lastKey != "":
			fields[lastKey] += "\n" + line
		case lastRawKey != "":
			msg.Meta[lastRawKey] += "\n" + line
		}
	}
	if len(msg.Meta) == 0 {
		msg.Meta = nil
	}

	msg.From = fields["from"]
	msg.RequestID = fields["requestid"]
	msg.Task = fields["task"]
	msg.Result = fields["result"]
	msg.Context = fields["context"]
	msg.Callback = fields["callback"]
	msg.Question = fields["question"]
	msg.Message = fields["message"]

	// Two-tier validation: malformed optional values are dropped, not fatal.
	if v, ok := fields["depth"]; ok {
		msg.Depth = parseDepth(v)
	}
	if v, ok := fields["status"]; ok {
		if v = strings.TrimSpace(v); validStatuses[v] {
			msg.Status = v
		}
	}
	if v, ok := fields["priority"]; ok {
		if v = strings.TrimSpace(v); validPriorities[v] {
			msg.Priority = v
		}
	}

	if msg.From == "" || msg.RequestID == "" {
		return nil
	}
	if !hasRequiredPayload(msg) {
		return nil
	}
	return msg
}

// extractBlock returns the contents of the first triple-backtick fenced
// region, matching the non-greedy "first fence to the next fence" rule.
// Surrounding whitespace is trimmed so the fence newlines do not leak into
// the first or last field value.
func extractBlock(raw string) (string, bool) {
	start := strings.Index(raw, fence)
	if start < 0 {
		return "", false
	}
	rest := raw[start+len(fence):]
	end := strings.Index(rest, fence)
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// normalizeField case-folds a field name and strips hyphens and underscores,
// so "requestid", "REQUESTID" and "RequestId" all address the same slot.
func normalizeField(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", "")
	name = strings.ReplaceAll(name, "_", "")
	return name
}

// parseDepth parses "current/max". Any deviation from the numeric grammar
// yields nil; the parser does not enforce current <= max (that is the
// builder's job).
func parseDepth(v string) *Depth {
	m := depthRe.FindStringSubmatch(strings.TrimSpace(v))
	if m == nil {
		return nil
	}
	current, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	max, err := strconv.Atoi(m[2])
	if err != nil {
		return nil
	}
	return &Depth{Current: current, Max: max}
}

// hasRequiredPayload checks the type-specific required fields.
func hasRequiredPayload(msg *Message) bool {
	switch msg.Type {
	case TypeRequest, TypeHandoff:
		return msg.Task != ""
	case TypeResponse:
		return msg.Result != "" || msg.Status != ""
	case TypeClarify:
		return msg.Question != ""
	case TypeBroadcast:
		return msg.Message != ""
	}
	return false
}

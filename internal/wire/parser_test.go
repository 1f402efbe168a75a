// ABOUTME: Tests for the wire-format parser
// ABOUTME: Covers fence location, header grammar, continuations, and two-tier validation

package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tRequire "github.com/stretchr/testify/require"
)

const weatherRequest = "```\n" +
	"[REQUEST → @Mantis]\n" +
	"From: Lotbot\n" +
	"RequestId: lotbot-abc123\n" +
	"Task: Check the weather in Paris\n" +
	"Depth: 1/5\n" +
	"```"

func TestParse_Request(t *testing.T) {
	msg := Parse(weatherRequest)
	tRequire.NotNil(t, msg)

	assert.Equal(t, TypeRequest, msg.Type)
	assert.Equal(t, "Mantis", msg.To)
	assert.Equal(t, "Lotbot", msg.From)
	assert.Equal(t, "lotbot-abc123", msg.RequestID)
	assert.Equal(t, "Check the weather in Paris", msg.Task)
	tRequire.NotNil(t, msg.Depth)
	assert.Equal(t, Depth{Current: 1, Max: 5}, *msg.Depth)
	assert.Equal(t, weatherRequest, msg.Raw)
}

func TestParse_EmbeddedInProse(t *testing.T) {
	raw := "Hey @Mantis, picking this up from the thread above.\n\n" +
		weatherRequest +
		"\n\nThanks!"
	msg := Parse(raw)
	tRequire.NotNil(t, msg)
	assert.Equal(t, "lotbot-abc123", msg.RequestID)
	assert.Equal(t, raw, msg.Raw)
}

func TestParse_FirstBlockWins(t *testing.T) {
	raw := weatherRequest + "\n\n```\n[RESPONSE → @Lotbot]\nFrom: Mantis\nRequestId: other\nResult: x\n```"
	msg := Parse(raw)
	tRequire.NotNil(t, msg)
	assert.Equal(t, TypeRequest, msg.Type)
	assert.Equal(t, "lotbot-abc123", msg.RequestID)
}

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty input", ""},
		{"no fence", "[REQUEST → @Mantis]\nFrom: A\nRequestId: x\nTask: t"},
		{"unterminated fence", "```\n[REQUEST → @Mantis]\nFrom: A\nRequestId: x\nTask: t"},
		{"empty block", "```\n```"},
		{"ascii arrow", "```\n[REQUEST -> @Mantis]\nFrom: A\nRequestId: x\nTask: t\n```"},
		{"missing recipient sigil", "```\n[REQUEST → Mantis]\nFrom: A\nRequestId: x\nTask: t\n```"},
		{"unknown type", "```\n[SUMMON → @Mantis]\nFrom: A\nRequestId: x\nTask: t\n```"},
		{"lowercase type", "```\n[request → @Mantis]\nFrom: A\nRequestId: x\nTask: t\n```"},
		{"mixed-case type", "```\n[Request → @Mantis]\nFrom: A\nRequestId: x\nTask: t\n```"},
		{"no header", "```\nFrom: A\nRequestId: x\nTask: t\n```"},
		{"missing from", "```\n[REQUEST → @Mantis]\nRequestId: x\nTask: t\n```"},
		{"missing request id", "```\n[REQUEST → @Mantis]\nFrom: A\nTask: t\n```"},
		{"request without task", "```\n[REQUEST → @Mantis]\nFrom: A\nRequestId: x\n```"},
		{"handoff without task", "```\n[HANDOFF → @Mantis]\nFrom: A\nRequestId: x\n```"},
		{"clarify without question", "```\n[CLARIFY → @Mantis]\nFrom: A\nRequestId: x\n```"},
		{"broadcast without message", "```\n[BROADCAST → @all]\nFrom: A\nRequestId: x\n```"},
		{"response without result or status", "```\n[RESPONSE → @Mantis]\nFrom: A\nRequestId: x\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, Parse(tt.raw))
		})
	}
}

func TestParse_ResponseStatusOnly(t *testing.T) {
	msg := Parse("```\n[RESPONSE → @Lotbot]\nFrom: Mantis\nRequestId: lotbot-abc123\nStatus: done\n```")
	tRequire.NotNil(t, msg)
	assert.Equal(t, StatusDone, msg.Status)
	assert.Empty(t, msg.Result)
}

func TestParse_MultiLineValue(t *testing.T) {
	raw := "```\n" +
		"[REQUEST → @Mantis]\n" +
		"From: Lotbot\n" +
		"RequestId: lotbot-abc123\n" +
		"Task: Summarize the report:\n" +
		"- section one\n" +
		"- section two\n" +
		"Depth: 2/5\n" +
		"```"
	msg := Parse(raw)
	tRequire.NotNil(t, msg)
	assert.Equal(t, "Summarize the report:\n- section one\n- section two", msg.Task)
	tRequire.NotNil(t, msg.Depth)
	assert.Equal(t, 2, msg.Depth.Current)
}

func TestParse_FieldNameNormalization(t *testing.T) {
	raw := "```\n" +
		"[REQUEST → @Mantis]\n" +
		"from: Lotbot\n" +
		"REQUESTID: lotbot-abc123\n" +
		"Task: t\n" +
		"```"
	msg := Parse(raw)
	tRequire.NotNil(t, msg)
	assert.Equal(t, "Lotbot", msg.From)
	assert.Equal(t, "lotbot-abc123", msg.RequestID)
}

func TestParse_UnknownFieldsGoToMeta(t *testing.T) {
	raw := "```\n" +
		"[REQUEST → @Mantis]\n" +
		"From: Lotbot\n" +
		"RequestId: lotbot-abc123\n" +
		"Task: t\n" +
		"Urgency: ASAP\n" +
		"TraceToken: tok-1\n" +
		"```"
	msg := Parse(raw)
	tRequire.NotNil(t, msg)
	// Original casing preserved, never interpreted.
	assert.Equal(t, map[string]string{"Urgency": "ASAP", "TraceToken": "tok-1"}, msg.Meta)
}

func TestParse_MalformedOptionalValuesDiscarded(t *testing.T) {
	raw := "```\n" +
		"[RESPONSE → @Lotbot]\n" +
		"From: Mantis\n" +
		"RequestId: lotbot-abc123\n" +
		"Result: 18C and sunny\n" +
		"Status: mostly-done\n" +
		"Priority: urgent\n" +
		"Depth: five/5\n" +
		"```"
	msg := Parse(raw)
	tRequire.NotNil(t, msg, "invalid optional values must not reject the message")
	assert.Empty(t, msg.Status)
	assert.Empty(t, msg.Priority)
	assert.Nil(t, msg.Depth)
	assert.Equal(t, "18C and sunny", msg.Result)
}

func TestParse_TrailingWhitespaceOnEnumValues(t *testing.T) {
	raw := "```\n" +
		"[RESPONSE → @Lotbot]\n" +
		"From: Mantis\n" +
		"RequestId: lotbot-abc123\n" +
		"Status: done \n" +
		"Priority: high\t\n" +
		"Result: 18C and sunny\n" +
		"```"
	msg := Parse(raw)
	tRequire.NotNil(t, msg)
	assert.Equal(t, StatusDone, msg.Status)
	assert.Equal(t, PriorityHigh, msg.Priority)
}

func TestParse_DepthGrammarOnly(t *testing.T) {
	// The parser accepts any numeric pair; the bound is the builder's job.
	msg := Parse("```\n[REQUEST → @Mantis]\nFrom: A\nRequestId: x\nTask: t\nDepth: 9/3\n```")
	tRequire.NotNil(t, msg)
	tRequire.NotNil(t, msg.Depth)
	assert.Equal(t, Depth{Current: 9, Max: 3}, *msg.Depth)
}

func TestParse_OptionalFields(t *testing.T) {
	raw := "```\n" +
		"[CLARIFY → @Lotbot]\n" +
		"From: Mantis\n" +
		"RequestId: lotbot-abc123\n" +
		"Question: Which Paris?\n" +
		"Context: There are several.\n" +
		"Depth: 2/5\n" +
		"Callback: cb-42\n" +
		"Priority: high\n" +
		"```"
	msg := Parse(raw)
	tRequire.NotNil(t, msg)
	assert.Equal(t, "Which Paris?", msg.Question)
	assert.Equal(t, "There are several.", msg.Context)
	assert.Equal(t, "cb-42", msg.Callback)
	assert.Equal(t, PriorityHigh, msg.Priority)
}

func TestParse_Deterministic(t *testing.T) {
	first := Parse(weatherRequest)
	second := Parse(weatherRequest)
	assert.Equal(t, first, second)
}

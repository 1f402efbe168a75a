// Package wire implements the parley wire format: a text-embeddable
// encoding that lets agents exchange structured messages over any plain
// text channel (chat, forum thread, issue comment).
//
// # Format
//
// A message is a fenced code block containing a header line and Key: value
// fields:
//
//	```
//	[REQUEST → @Mantis]
//	From: Lotbot
//	RequestId: lotbot-abc123
//	Task: Check the weather in Paris
//	Depth: 1/5
//	```
//
// The header names the message type and recipient; the arrow is the Unicode
// right-arrow glyph. Field values may span multiple lines: a line that does
// not introduce a new key continues the previous value.
//
// # Message Types
//
//   - REQUEST: ask another agent to perform a task
//   - RESPONSE: report a result (terminal, always depth-legal)
//   - CLARIFY: ask a question about an open request
//   - HANDOFF: delegate an open request onward
//   - BROADCAST: announce to all agents (outside the depth chain)
//
// # Parsing
//
// Parse recovers a Message from raw text or returns nil. Validation is
// two-tier: a malformed depth, status, or priority value is dropped from the
// message, while a missing From, RequestId, or type-required payload field
// rejects the whole message. There is no partially-valid Message.
//
// # Building
//
// BuildRequest, BuildResponse, BuildClarify, BuildHandoff and BuildBroadcast
// render wire text from a Fields value. The builders enforce the protocol's
// safety property: REQUEST, CLARIFY and HANDOFF each consume a conversation
// hop and are refused with a DepthLimitError once Depth.Current reaches
// Depth.Max, forcing the conversation to terminate with a RESPONSE.
// IncrementDepth composes a reply's depth from the message being answered.
package wire

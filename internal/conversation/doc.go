// Package conversation tracks the state of protocol conversations.
//
// # Overview
//
// The Tracker sits between the wire parser and a persistence backend. The
// hosting agent hands it every parsed message; the tracker folds the message
// into the conversation record keyed by its request id and persists the
// updated snapshot. History is the source of truth: every Track call appends
// exactly one history entry.
//
// # Lifecycle
//
// A record is created on the first Track call for a request id with status
// "open" (or the RESPONSE's own status when a conversation begins with a
// RESPONSE). RESPONSE messages move the record to their own status (default
// "done"); CLARIFY moves it to "clarifying"; REQUEST, HANDOFF and BROADCAST
// leave status untouched. Records only become "timeout" through the timeout
// sweep, and are only deleted by Cleanup once their status is terminal
// (done, partial, failed, timeout) and they have aged past the caller's
// threshold.
//
// # Timeouts
//
// CheckTimeouts scans open and clarifying conversations on the caller's
// cadence; nothing runs periodically inside the package. The applicable
// window is keyed by the most recent message type on the record: CLARIFY 10
// minutes, REQUEST and HANDOFF 30, BROADCAST 5, anything else the REQUEST
// window.
//
// # Concurrency
//
// Mutating operations run as strict load-mutate-save sequences serialized by
// a per-instance mutex, so independent trackers (in tests, say) never
// cross-contaminate. Reads skip the mutex and see either the pre- or
// post-mutation snapshot. Two processes sharing one backing store are not
// coordinated; pair that with the "merge duplicate request ids, warn only"
// policy and single-process operation is the supported shape.
package conversation

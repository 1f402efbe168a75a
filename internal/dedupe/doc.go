// Package dedupe suppresses duplicate deliveries of the same wire message
// within a time window, so channel redeliveries do not pollute conversation
// history. It deduplicates physical deliveries only; conversation-level
// duplicate request ids remain a merge at the tracker.
package dedupe

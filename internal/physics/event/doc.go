// Package event defines the per-event data handed to the selection core:
// reconstructed candidates, tagger hits, and the transient particle
// hypotheses built from them.
//
// Candidates and tagger hits are immutable once an event is produced. The
// core holds pointers to candidates and never copies or edits them.
package event

// Package pipeline drives events from a source through a selector and hands
// every selection to a set of sinks.
//
// With one worker events are processed strictly in source order. With more
// workers each worker owns its own selector and fit pool, events are
// processed out of order, and sink calls are serialized by the runner.
// Cancellation is checked between events only.
package pipeline

// Package source supplies events to the selection loop.
package source

import (
	"context"
	"errors"
	"io"

	"github.com/banshee-data/combfit/internal/physics/event"
)

// ErrMalformedEvent marks input that could not be turned into an event.
var ErrMalformedEvent = errors.New("malformed event")

// Source yields events one at a time. Next returns io.EOF after the last
// event.
type Source interface {
	Next(ctx context.Context) (*event.Event, error)
}

// Slice is an in-memory Source.
type Slice struct {
	events []*event.Event
	i      int
}

// NewSlice returns a Source over evs.
func NewSlice(evs ...*event.Event) *Slice {
	return &Slice{events: evs}
}

// Next implements Source.
func (s *Slice) Next(ctx context.Context) (*event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.i >= len(s.events) {
		return nil, io.EOF
	}
	ev := s.events[s.i]
	s.i++
	return ev, nil
}

package source

import (
	"context"
	"errors"
	"sync"

	"github.com/roman-kulish/lora-locator/internal/ttn"
)

// ErrExhausted is returned by Replay once every window has been served.
var ErrExhausted = errors.New("replay exhausted")

// Source provides the most recent uplinks of the tracked device.
type Source interface {
	// Latest returns up to n most recent uplinks, oldest first.
	Latest(ctx context.Context, n int) ([]ttn.Uplink, error)
}

var (
	_ Source = (*ttn.StorageClient)(nil)
	_ Source = (*ttn.Subscriber)(nil)
	_ Source = (*Replay)(nil)
)

// Replay plays back a recorded uplink sequence as if the device were moving
// through it. Each call to Latest returns the window of n uplinks ending one
// message later than the previous call.
type Replay struct {
	mu      sync.Mutex
	uplinks []ttn.Uplink
	end     int
}

// NewReplay creates a replay over uplinks ordered oldest first.
func NewReplay(uplinks []ttn.Uplink) *Replay {
	return &Replay{uplinks: uplinks}
}

// Latest returns the next window. The first window ends after the n-th
// uplink, or after the last one if fewer are recorded.
func (r *Replay) Latest(ctx context.Context, n int) ([]ttn.Uplink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.end == 0 {
		r.end = min(n, len(r.uplinks))
	} else {
		r.end++
	}
	if r.end > len(r.uplinks) || len(r.uplinks) == 0 {
		return nil, ErrExhausted
	}

	start := max(r.end-n, 0)
	return append([]ttn.Uplink(nil), r.uplinks[start:r.end]...), nil
}

// Position returns the number of uplinks served so far.
func (r *Replay) Position() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.end
}

// Len returns the number of recorded uplinks.
func (r *Replay) Len() int {
	return len(r.uplinks)
}

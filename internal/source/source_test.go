package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roman-kulish/lora-locator/internal/ttn"
)

func recorded(n int) []ttn.Uplink {
	base := time.Date(2024, 4, 15, 9, 0, 0, 0, time.UTC)
	uplinks := make([]ttn.Uplink, n)
	for i := range uplinks {
		uplinks[i] = ttn.Uplink{ReceivedAt: base.Add(time.Duration(i) * time.Second)}
	}
	return uplinks
}

func TestReplay_SlidingWindow(t *testing.T) {
	r := NewReplay(recorded(7))
	ctx := context.Background()

	for i, wantEnd := range []int{5, 6, 7} {
		got, err := r.Latest(ctx, 5)
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		if len(got) != 5 {
			t.Fatalf("call %d: expected 5 uplinks, got %d", i, len(got))
		}
		if last := got[4].ReceivedAt.Second(); last != wantEnd-1 {
			t.Errorf("call %d: expected window to end at uplink %d, got %d", i, wantEnd-1, last)
		}
	}

	if _, err := r.Latest(ctx, 5); !errors.Is(err, ErrExhausted) {
		t.Errorf("Expected ErrExhausted, got %v", err)
	}
}

func TestReplay_ShortRecording(t *testing.T) {
	r := NewReplay(recorded(2))

	got, err := r.Latest(context.Background(), 5)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Expected the whole recording, got %d uplinks", len(got))
	}
	if r.Position() != 2 {
		t.Errorf("Expected position 2, got %d", r.Position())
	}
}

func TestReplay_Empty(t *testing.T) {
	if _, err := NewReplay(nil).Latest(context.Background(), 5); !errors.Is(err, ErrExhausted) {
		t.Errorf("Expected ErrExhausted, got %v", err)
	}
}

func TestReplay_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewReplay(recorded(3)).Latest(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

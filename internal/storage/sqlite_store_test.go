package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/roman-kulish/lora-locator/internal/ttn"
)

func testUplink(t *testing.T, receivedAt time.Time, rssi float64) ttn.Uplink {
	t.Helper()

	raw := fmt.Sprintf(`{"end_device_ids":{"device_id":"dev1"},"received_at":%q,"uplink_message":{"decoded_payload":{"analog_in_8":3.9},"rx_metadata":[{"gateway_ids":{"gateway_id":"gw1"},"rssi":%g},{"gateway_ids":{"gateway_id":"gw2"},"rssi":%g}],"settings":{"frequency":"868500000"}}}`,
		receivedAt.Format(time.RFC3339Nano), rssi, rssi-10)

	u, ok, err := ttn.Decoder{}.Decode([]byte(raw))
	if err != nil || !ok {
		t.Fatalf("decoding test uplink: %v (ok %v)", err, ok)
	}
	return u
}

func TestSqliteStore_RecordAndReplay(t *testing.T) {
	ctx := context.Background()
	store := NewSqliteStore(filepath.Join(t.TempDir(), "uplinks.sqlite"))
	defer store.Close()

	sessionID, err := store.CreateSession(ctx, "ttn-storage", "walk through floor 0", map[string]int{"limit": 100})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	base := time.Date(2024, 4, 15, 9, 0, 0, 0, time.UTC)
	uplinks := []ttn.Uplink{
		testUplink(t, base.Add(2*time.Second), -80),
		testUplink(t, base, -90),
		testUplink(t, base.Add(time.Second), -85),
	}

	stored, err := store.StoreUplinks(ctx, sessionID, uplinks)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if stored != 3 {
		t.Errorf("Expected 3 stored uplinks, got %d", stored)
	}

	stored, err = store.StoreUplinks(ctx, sessionID, uplinks[:1])
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if stored != 0 {
		t.Errorf("Expected duplicates to be ignored, got %d stored", stored)
	}

	got, err := LoadUplinks(ctx, store, sessionID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 uplinks, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].ReceivedAt.Before(got[i-1].ReceivedAt) {
			t.Errorf("Expected uplinks oldest first, got %v before %v", got[i-1].ReceivedAt, got[i].ReceivedAt)
		}
	}
	if got[0].Channel != 2 || got[0].Receptions[0].RSSI != -90 {
		t.Errorf("Unexpected first uplink %+v", got[0])
	}

	ranged, err := LoadUplinks(ctx, store, sessionID, WithTimeRange(base.Add(time.Second), base.Add(5*time.Second)))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(ranged) != 2 {
		t.Errorf("Expected 2 uplinks in range, got %d", len(ranged))
	}

	stats, err := store.GatewayStats(ctx, sessionID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(stats) != 2 || stats[0].GatewayID != "gw1" || stats[0].Receptions != 3 || stats[0].MeanRSSI != -85 {
		t.Errorf("Unexpected gateway stats %+v", stats)
	}

	sessions, err := store.Sessions(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Source != "ttn-storage" || sessions[0].Config == nil {
		t.Errorf("Unexpected sessions %+v", sessions)
	}
}

func TestLoadUplinks_NoData(t *testing.T) {
	ctx := context.Background()
	store := NewSqliteStore(filepath.Join(t.TempDir(), "uplinks.sqlite"))
	defer store.Close()

	sessionID, err := store.CreateSession(ctx, "mqtt", "", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if _, err = LoadUplinks(ctx, store, sessionID); !errors.Is(err, ErrNoData) {
		t.Errorf("Expected ErrNoData for an empty session, got %v", err)
	}
	if _, err = LoadUplinks(ctx, store, sessionID+1); !errors.Is(err, ErrNoData) {
		t.Errorf("Expected ErrNoData for a missing session, got %v", err)
	}
}

package timemap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roman-kulish/lora-locator/internal/ttn"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "places.csv")
	content := "2024-04-15T09:00:00Z,2024-04-15T09:10:00Z,0/a\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	places, err := Load(path, nil, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(places) != 1 || places[0].Name != "0/a" {
		t.Errorf("Expected place 0/a, got %v", places)
	}

	if _, err = Load(filepath.Join(t.TempDir(), "missing.csv"), nil, nil); err == nil {
		t.Errorf("Expected an error for a missing file")
	}
}

func TestLoad_Interactive(t *testing.T) {
	in := strings.NewReader("F\n")
	var out strings.Builder

	places, err := Load("", in, &out)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(places) != 0 {
		t.Errorf("Expected no places, got %v", places)
	}
	if !strings.Contains(out.String(), "Time-place mapping tool") {
		t.Errorf("Expected the menu to be printed, got %q", out.String())
	}
}

func TestSplit(t *testing.T) {
	base := time.Date(2024, 4, 15, 9, 0, 0, 0, time.UTC)
	var uplinks []ttn.Uplink
	for i := 0; i < 10; i++ {
		uplinks = append(uplinks, ttn.Uplink{ReceivedAt: base.Add(time.Duration(i) * time.Minute)})
	}

	places := []Place{
		{Name: "0/a", Begin: base, End: base.Add(4 * time.Minute)},
		{Name: "1/b", Begin: base.Add(4 * time.Minute), End: base.Add(6 * time.Minute)},
		{Name: "2/c", Begin: base.Add(time.Hour), End: base.Add(2 * time.Hour)},
	}

	recordings := Split(places, uplinks)
	tests := []struct {
		name string
		want int
	}{
		{"0/a", 5},
		{"1/b", 3},
		{"2/c", 0},
	}
	for i, tt := range tests {
		if recordings[i].Place.Name != tt.name {
			t.Errorf("Expected place %s, got %s", tt.name, recordings[i].Place.Name)
		}
		if len(recordings[i].Uplinks) != tt.want {
			t.Errorf("Expected %d uplinks at %s, got %d", tt.want, tt.name, len(recordings[i].Uplinks))
		}
	}
}

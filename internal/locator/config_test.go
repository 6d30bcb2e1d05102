package locator

import (
	"context"
	"errors"
	"testing"

	"github.com/roman-kulish/lora-locator/internal/config"
	"github.com/roman-kulish/lora-locator/internal/source"
	"github.com/roman-kulish/lora-locator/internal/ttn"
)

func ptr(v float64) *float64 {
	return &v
}

func deployment() *config.Config {
	return &config.Config{
		Locator: testConfig(),
		Fingerprints: config.FingerprintsConfig{
			Sentinel: -150,
			Gateways: []string{"gw1", "gw2"},
			Entries: []config.FingerprintEntry{
				{Label: "0/a", Gateways: map[string]map[int]*float64{"gw1": {0: ptr(-80)}, "gw2": {0: nil}}},
				{Label: "1/b", Gateways: map[string]map[int]*float64{"gw1": {0: ptr(-100)}, "gw2": {0: ptr(-60)}}},
			},
		},
		Coordinates: map[string]config.Coordinate{
			"0/a": {Latitude: 39.4810, Longitude: -0.3405},
			"1/b": {Latitude: 39.4820, Longitude: -0.3410},
		},
	}
}

func TestFromConfig(t *testing.T) {
	src := source.NewReplay([]ttn.Uplink{
		uplink(0, ttn.Reading{}, map[string]float64{"gw1": -100, "gw2": -60}),
	})
	pub := &recorder{}

	l, err := FromConfig(src, pub, deployment())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	est, err := l.Step(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if est.Result.Label != office {
		t.Errorf("Expected %v, got %v", office, est.Result.Label)
	}
}

func TestFromConfig_Errors(t *testing.T) {
	cfg := deployment()
	delete(cfg.Coordinates, "1/b")
	if _, err := FromConfig(source.NewReplay(nil), &recorder{}, cfg); !errors.Is(err, ErrNoCoordinates) {
		t.Errorf("Expected ErrNoCoordinates, got %v", err)
	}

	cfg = deployment()
	cfg.Fingerprints.Gateways = nil
	if _, err := FromConfig(source.NewReplay(nil), &recorder{}, cfg); !errors.Is(err, config.ErrNoGateways) {
		t.Errorf("Expected ErrNoGateways, got %v", err)
	}
}

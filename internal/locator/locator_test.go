package locator

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/roman-kulish/lora-locator/internal/config"
	"github.com/roman-kulish/lora-locator/internal/fingerprint"
	"github.com/roman-kulish/lora-locator/internal/source"
	"github.com/roman-kulish/lora-locator/internal/ttn"
	"github.com/roman-kulish/lora-locator/internal/web"
)

var (
	hall   = fingerprint.Label{Floor: "0", Zone: "a"}
	office = fingerprint.Label{Floor: "1", Zone: "b"}
	base   = time.Date(2024, 4, 15, 9, 0, 0, 0, time.UTC)
)

type recorder struct {
	mu     sync.Mutex
	points []web.Point
	err    error
}

func (r *recorder) Publish(_ context.Context, p web.Point) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.points = append(r.points, p)
	return nil
}

func newClassifier() *fingerprint.Classifier {
	m := fingerprint.NewMap()
	m.Set(hall, "gw1", 0, -80)
	m.SetSilent(hall, "gw2", 0, -150)
	m.Set(office, "gw1", 0, -100)
	m.Set(office, "gw2", 0, -60)
	return fingerprint.NewClassifier(m, fingerprint.Params{Sentinel: -150, Gateways: []string{"gw1", "gw2"}})
}

var coords = map[fingerprint.Label]config.Coordinate{
	hall:   {Latitude: 39.4810, Longitude: -0.3405},
	office: {Latitude: 39.4820, Longitude: -0.3410},
}

func uplink(i int, payload ttn.Payload, rssi map[string]float64) ttn.Uplink {
	u := ttn.Uplink{ReceivedAt: base.Add(time.Duration(i) * time.Second), Channel: 0, Payload: payload}
	for gateway, v := range rssi {
		u.Receptions = append(u.Receptions, ttn.Reception{GatewayID: gateway, RSSI: v})
	}
	return u
}

func testConfig() config.LocatorConfig {
	return config.LocatorConfig{Messages: 2, PollInterval: config.Duration(time.Millisecond)}
}

func TestStep_Fingerprint(t *testing.T) {
	src := source.NewReplay([]ttn.Uplink{
		uplink(0, ttn.Reading{}, map[string]float64{"gw1": -99, "gw2": -61}),
		uplink(1, ttn.Reading{}, map[string]float64{"gw1": -101, "gw2": -59}),
	})
	pub := &recorder{}
	l := New(src, newClassifier(), coords, pub, testConfig())

	est, err := l.Step(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if est.Result.Label != office {
		t.Errorf("Expected %v, got %v", office, est.Result.Label)
	}
	want := web.Point{Latitude: 39.4820, Longitude: -0.3410, Label: "1/b", Origin: web.OriginFingerprint, Time: base.Add(time.Second)}
	if len(pub.points) != 1 || pub.points[0] != want {
		t.Errorf("Expected %+v published, got %+v", want, pub.points)
	}
}

func TestStep_LogsScores(t *testing.T) {
	src := source.NewReplay([]ttn.Uplink{
		uplink(0, ttn.Reading{}, map[string]float64{"gw1": -100, "gw2": -60}),
	})
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l := New(src, newClassifier(), coords, &recorder{}, testConfig(), WithLogger(logger))

	if _, err := l.Step(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"scores.1/b=0", "scores.0/a=8500"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in log output, got %q", want, out)
		}
	}
}

func TestStep_GPSFixWins(t *testing.T) {
	src := source.NewReplay([]ttn.Uplink{
		uplink(0, ttn.GPSFix{Latitude: 1, Longitude: 1}, map[string]float64{"gw1": -80}),
		uplink(1, ttn.GPSFix{Latitude: 2, Longitude: 3}, map[string]float64{"gw1": -80}),
		uplink(2, ttn.Reading{}, map[string]float64{"gw1": -80}),
	})
	pub := &recorder{}
	cfg := testConfig()
	cfg.Messages = 3
	l := New(src, newClassifier(), coords, pub, cfg)

	est, err := l.Step(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if est.Point.Origin != web.OriginGPS || est.Point.Latitude != 2 || est.Point.Longitude != 3 {
		t.Errorf("Expected the newest GPS fix, got %+v", est.Point)
	}
	if !est.Result.Empty() {
		t.Errorf("Expected no classification for a GPS fix")
	}
}

func TestStep_ChannelAware(t *testing.T) {
	mask := fingerprint.ChannelMask(1)
	// gw2 is silent although channel 0 was used, which only the hall expects
	src := source.NewReplay([]ttn.Uplink{
		uplink(0, ttn.Reading{UsedChannels: &mask}, map[string]float64{"gw1": -90}),
	})
	pub := &recorder{}
	cfg := testConfig()
	cfg.ChannelAware = true
	l := New(src, newClassifier(), coords, pub, cfg)

	est, err := l.Step(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if est.Result.Label != hall {
		t.Errorf("Expected %v, got %v (%v)", hall, est.Result.Label, est.Result.Scores)
	}
}

func TestStep_UnknownGateways(t *testing.T) {
	uplinks := []ttn.Uplink{uplink(0, ttn.Reading{}, map[string]float64{"gw1": -80, "rogue": -40})}

	l := New(source.NewReplay(uplinks), newClassifier(), coords, &recorder{}, testConfig())
	if _, err := l.Step(context.Background()); !errors.Is(err, fingerprint.ErrUnknownGateway) {
		t.Errorf("Expected ErrUnknownGateway, got %v", err)
	}

	cfg := testConfig()
	cfg.IgnoreUnknownGateways = true
	l = New(source.NewReplay(uplinks), newClassifier(), coords, &recorder{}, cfg)
	if _, err := l.Step(context.Background()); err != nil {
		t.Errorf("Expected unknown gateways to be dropped, got %v", err)
	}
}

func TestStep_Failures(t *testing.T) {
	reg := prometheus.NewRegistry()

	noCoords := New(source.NewReplay([]ttn.Uplink{uplink(0, ttn.Reading{}, map[string]float64{"gw1": -80})}),
		newClassifier(), nil, &recorder{}, testConfig(), WithRegisterer(reg))
	if _, err := noCoords.Step(context.Background()); !errors.Is(err, ErrNoCoordinates) {
		t.Errorf("Expected ErrNoCoordinates, got %v", err)
	}
	if n := testutil.ToFloat64(noCoords.metrics.failures.WithLabelValues("no_coordinates")); n != 1 {
		t.Errorf("Expected 1 failure recorded, got %v", n)
	}

	unknownChannel := uplink(0, ttn.Reading{}, map[string]float64{"gw1": -80})
	unknownChannel.Channel = ttn.UnknownChannel
	l := New(source.NewReplay([]ttn.Uplink{unknownChannel}), newClassifier(), coords, &recorder{}, testConfig())
	if _, err := l.Step(context.Background()); !errors.Is(err, ErrNoReadings) {
		t.Errorf("Expected ErrNoReadings, got %v", err)
	}

	pub := &recorder{err: errors.New("map server down")}
	l = New(source.NewReplay([]ttn.Uplink{uplink(0, ttn.Reading{}, map[string]float64{"gw1": -80})}),
		newClassifier(), coords, pub, testConfig())
	if _, err := l.Step(context.Background()); err == nil {
		t.Errorf("Expected a publish error")
	}
}

func TestRun_StopsWhenReplayEnds(t *testing.T) {
	var uplinks []ttn.Uplink
	for i := 0; i < 5; i++ {
		uplinks = append(uplinks, uplink(i, ttn.Reading{}, map[string]float64{"gw1": -80}))
	}
	pub := &recorder{}
	l := New(source.NewReplay(uplinks), newClassifier(), coords, pub, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Run(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// windows end after uplinks 2, 3, 4 and 5
	if len(pub.points) != 4 {
		t.Errorf("Expected 4 estimates, got %d", len(pub.points))
	}
	if ctx.Err() != nil {
		t.Errorf("Expected the replay to end before the timeout")
	}
}

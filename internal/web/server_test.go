package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roman-kulish/lora-locator/internal/config"
	"github.com/roman-kulish/lora-locator/internal/source"
	"github.com/roman-kulish/lora-locator/internal/ttn"
)

var testTime = time.Date(2024, 4, 15, 9, 30, 0, 0, time.UTC)

type fakeGPS struct {
	enabled, disabled int
	err               error
}

func (f *fakeGPS) EnableGPS(context.Context) error {
	f.enabled++
	return f.err
}

func (f *fakeGPS) DisableGPS(context.Context) error {
	f.disabled++
	return f.err
}

func newTestServer(t *testing.T, options ...func(s *Server)) (*Server, *httptest.Server) {
	t.Helper()
	options = append([]func(s *Server){WithClock(func() time.Time { return testTime })}, options...)
	s, err := NewServer(config.WebConfig{Title: "Test map", Zoom: 18}, options...)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestServer_SetPoint(t *testing.T) {
	_, ts := newTestServer(t)

	if code, _ := get(t, ts.URL+"/point"); code != http.StatusNotFound {
		t.Errorf("Expected 404 before any point, got %d", code)
	}

	resp, err := http.Post(ts.URL+"/set_point", "application/json", strings.NewReader(`{"latitude": 39.48, "longitude": -0.34}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	code, body := get(t, ts.URL+"/point")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	var p Point
	if err = json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if p.Latitude != 39.48 || p.Longitude != -0.34 || p.Origin != OriginFingerprint || !p.Time.Equal(testTime) {
		t.Errorf("Unexpected point %+v", p)
	}
}

func TestServer_SetPointInvalid(t *testing.T) {
	_, ts := newTestServer(t)

	for _, body := range []string{`{"latitude": 95, "longitude": 0}`, `not json`} {
		resp, err := http.Post(ts.URL+"/set_point", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, resp.StatusCode)
		}
	}

	if code, _ := get(t, ts.URL+"/set_point"); code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET /set_point, got %d", code)
	}
}

func TestServer_Index(t *testing.T) {
	_, ts := newTestServer(t)

	code, body := get(t, ts.URL+"/")
	if code != http.StatusOK || !strings.Contains(body, "<title>Test map</title>") {
		t.Errorf("Unexpected index %d: %.80s", code, body)
	}
	if !strings.Contains(strings.ReplaceAll(body, " ", ""), "constzoom=18;") {
		t.Errorf("Expected zoom in page")
	}
}

func TestServer_GPSStatus(t *testing.T) {
	indoor, outdoor := true, false
	tests := []struct {
		name    string
		payload ttn.Payload
		want    string
	}{
		{"exterior", ttn.Reading{Indoor: &outdoor}, `{"dev_interior":0}`},
		{"interior", ttn.GPSFix{Reading: ttn.Reading{Indoor: &indoor}}, `{"dev_interior":1}`},
		{"unknown defaults to interior", ttn.Unknown{}, `{"dev_interior":1}`},
	}
	for _, tt := range tests {
		src := source.NewReplay([]ttn.Uplink{{Payload: tt.payload}})
		_, ts := newTestServer(t, WithSource(src))

		code, body := get(t, ts.URL+"/gps_status")
		if code != http.StatusOK || strings.TrimSpace(body) != tt.want {
			t.Errorf("%s: expected %s, got %d %s", tt.name, tt.want, code, body)
		}
	}

	_, ts := newTestServer(t)
	if code, _ := get(t, ts.URL+"/gps_status"); code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without a source, got %d", code)
	}
}

func TestServer_GPSCommands(t *testing.T) {
	gps := &fakeGPS{}
	_, ts := newTestServer(t, WithGPSController(gps))

	if code, body := get(t, ts.URL+"/gps_enable"); code != http.StatusOK || !strings.Contains(body, "GPS_ENABLE_SEND") {
		t.Errorf("Unexpected enable response %d %s", code, body)
	}
	if code, body := get(t, ts.URL+"/gps_disable"); code != http.StatusOK || !strings.Contains(body, "GPS_DISABLE_SEND") {
		t.Errorf("Unexpected disable response %d %s", code, body)
	}
	if gps.enabled != 1 || gps.disabled != 1 {
		t.Errorf("Expected one command each, got %+v", gps)
	}

	gps.err = errors.New("device unreachable")
	if code, _ := get(t, ts.URL+"/gps_enable"); code != http.StatusBadGateway {
		t.Errorf("Expected 502 on downlink failure, got %d", code)
	}

	_, body := get(t, ts.URL+"/metrics")
	if !strings.Contains(body, `lora_mapserver_downlinks_total{command="enable",result="error"} 1`) {
		t.Errorf("Expected downlink metrics, got %s", body)
	}
}

func TestServer_Websocket(t *testing.T) {
	s, ts := newTestServer(t)
	if err := s.SetPoint(Point{Latitude: 1, Longitude: 2, Label: "0/a"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var p Point
	if err = conn.ReadJSON(&p); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if p.Label != "0/a" {
		t.Errorf("Expected the current point first, got %+v", p)
	}

	if err = s.SetPoint(Point{Latitude: 3, Longitude: 4, Origin: OriginGPS}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err = conn.ReadJSON(&p); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if p.Latitude != 3 || p.Origin != OriginGPS {
		t.Errorf("Expected the pushed point, got %+v", p)
	}
}

func TestClient_Publish(t *testing.T) {
	s, ts := newTestServer(t)

	c, err := NewClient(ts.URL, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err = c.Publish(context.Background(), Point{Latitude: 39.4, Longitude: -0.3, Label: "1/b"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if p, ok := s.Point(); !ok || p.Label != "1/b" {
		t.Errorf("Expected the published point, got %+v", p)
	}

	if err = c.Publish(context.Background(), Point{Latitude: 200}); err == nil {
		t.Errorf("Expected an error for a rejected point")
	}
}

func TestServer_Publish(t *testing.T) {
	s, _ := newTestServer(t)

	want := Point{Latitude: 1, Longitude: 2, Label: "0/a", Origin: OriginGPS, Time: testTime.Add(-time.Minute)}
	if err := s.Publish(context.Background(), want); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got, ok := s.Point(); !ok || got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}

	if err := s.Publish(context.Background(), Point{Latitude: 0, Longitude: 200}); err == nil {
		t.Errorf("Expected an invalid longitude to be rejected")
	}
}

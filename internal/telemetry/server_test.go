package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestServer_Handler(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_events_total", Help: "Test events"})
	registry.MustRegister(counter)
	counter.Add(3)

	ts := httptest.NewServer(NewServer(":0", registry, WithRuntimeMetrics()).Handler())
	defer ts.Close()

	tests := []struct {
		path string
		want string
	}{
		{"/metrics", "test_events_total 3"},
		{"/metrics", "go_goroutines"},
		{"/health", "OK"},
	}
	for _, tt := range tests {
		resp, err := http.Get(ts.URL + tt.path)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", tt.path, resp.StatusCode)
		}
		if !strings.Contains(string(body), tt.want) {
			t.Errorf("%s: expected %q in body", tt.path, tt.want)
		}
	}
}

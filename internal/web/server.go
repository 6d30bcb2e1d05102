// Package web implements the map server: a Leaflet page showing the last
// estimated device position, live updates over a websocket and the GPS
// control endpoints.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roman-kulish/lora-locator/internal/config"
	"github.com/roman-kulish/lora-locator/internal/source"
)

const shutdownTimeout = 5 * time.Second

// GPSController switches the device GPS receiver.
type GPSController interface {
	EnableGPS(ctx context.Context) error
	DisableGPS(ctx context.Context) error
}

func WithLogger(logger *slog.Logger) func(s *Server) {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithSource enables /gps_status, which reads the latest uplink of src.
func WithSource(src source.Source) func(s *Server) {
	return func(s *Server) {
		s.source = src
	}
}

// WithGPSController enables /gps_enable and /gps_disable.
func WithGPSController(gps GPSController) func(s *Server) {
	return func(s *Server) {
		s.gps = gps
	}
}

// WithRegistry sets the registry the server metrics are registered with and
// served from.
func WithRegistry(reg *prometheus.Registry) func(s *Server) {
	return func(s *Server) {
		s.registry = reg
	}
}

// WithClock replaces time.Now for stamping points.
func WithClock(now func() time.Time) func(s *Server) {
	return func(s *Server) {
		s.now = now
	}
}

// Server is the map server.
type Server struct {
	config config.WebConfig
	router *mux.Router

	mu    sync.RWMutex
	point *Point

	source   source.Source
	gps      GPSController
	registry *prometheus.Registry
	metrics  *metrics
	hub      *hub
	now      func() time.Time
	logger   *slog.Logger
}

// NewServer creates a map server and registers its routes.
func NewServer(cfg config.WebConfig, options ...func(s *Server)) (*Server, error) {
	s := &Server{
		config: cfg,
		router: mux.NewRouter(),
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}

	s.metrics = newMetrics(s.registry)
	s.hub = newHub(s.metrics, s.logger)

	if err := s.addRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

// Handler returns the server routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Point returns the current point, if any.
func (s *Server) Point() (Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.point == nil {
		return Point{}, false
	}
	return *s.point, true
}

// SetPoint replaces the current point and pushes it to every connected
// browser.
func (s *Server) SetPoint(p Point) error {
	if err := p.validate(); err != nil {
		return err
	}
	if p.Time.IsZero() {
		p.Time = s.now().UTC()
	}
	if p.Origin == "" {
		p.Origin = OriginFingerprint
	}

	msg, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding point: %w", err)
	}

	s.mu.Lock()
	s.point = &p
	s.mu.Unlock()

	s.metrics.points.WithLabelValues(p.Origin).Inc()
	s.metrics.latitude.Set(p.Latitude)
	s.metrics.longitude.Set(p.Longitude)
	s.hub.broadcast(msg)

	s.logger.Info("Point updated",
		slog.Float64("latitude", p.Latitude),
		slog.Float64("longitude", p.Longitude),
		slog.String("label", p.Label),
		slog.String("origin", p.Origin))
	return nil
}

// Publish sets the point directly, letting an in-process locator publish
// without going through HTTP.
func (s *Server) Publish(_ context.Context, p Point) error {
	return s.SetPoint(p)
}

// Run serves HTTP on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Map server listening", slog.String("address", s.config.Listen))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.hub.close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

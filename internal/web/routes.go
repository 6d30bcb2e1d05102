package web

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roman-kulish/lora-locator/internal/ttn"
)

const (
	maxBodyBytes = 4 * 1024

	indexRoute      = "/"
	setPointRoute   = "/set_point"
	pointRoute      = "/point"
	wsRoute         = "/ws"
	gpsStatusRoute  = "/gps_status"
	gpsEnableRoute  = "/gps_enable"
	gpsDisableRoute = "/gps_disable"
	metricsRoute    = "/metrics"

	defaultTitle = "LoRaWAN locator"
)

//go:embed index.html
var indexHTML string

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

func (s *Server) addRoutes() error {
	routes := []struct {
		path    string
		method  string
		handler http.HandlerFunc
	}{
		{indexRoute, http.MethodGet, s.index},
		{setPointRoute, http.MethodPost, s.setPoint},
		{pointRoute, http.MethodGet, s.getPoint},
		{wsRoute, http.MethodGet, s.serveWS},
		{gpsStatusRoute, http.MethodGet, s.gpsStatus},
		{gpsEnableRoute, http.MethodGet, s.gpsEnable},
		{gpsDisableRoute, http.MethodGet, s.gpsDisable},
		{metricsRoute, http.MethodGet, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}).ServeHTTP},
	}
	for _, r := range routes {
		if err := s.addRoute(r.path, r.method, r.handler); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) addRoute(path, method string, f http.HandlerFunc) error {
	if err := s.router.HandleFunc(path, f).Methods(method).GetError(); err != nil {
		return fmt.Errorf("failed to add route, path=%s, method=%s: %w", path, method, err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", slog.Any("error", err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"status": "error", "error": err.Error()})
}

// Routes

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	data := struct {
		Title string
		Zoom  int
	}{
		Title: s.config.Title,
		Zoom:  s.config.Zoom,
	}
	if data.Title == "" {
		data.Title = defaultTitle
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		s.logger.Error("Failed to render index", slog.Any("error", err))
	}
}

func (s *Server) setPoint(w http.ResponseWriter, req *http.Request) {
	var p Point
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err := dec.Decode(&p); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decoding point: %w", err))
		return
	}
	if err := s.SetPoint(p); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) getPoint(w http.ResponseWriter, _ *http.Request) {
	p, ok := s.Point()
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("no point set"))
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) serveWS(w http.ResponseWriter, req *http.Request) {
	var greeting []byte
	if p, ok := s.Point(); ok {
		greeting, _ = json.Marshal(p)
	}
	s.hub.serve(w, req, greeting)
}

// gpsStatus reports whether the device considers itself indoors, 1 for
// interior and 0 for exterior. Interior is assumed when the latest uplink
// does not say.
func (s *Server) gpsStatus(w http.ResponseWriter, req *http.Request) {
	if s.source == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("no uplink source configured"))
		return
	}

	uplinks, err := s.source.Latest(req.Context(), 1)
	if err != nil {
		s.logger.Warn("Failed to read latest uplink", slog.Any("error", err))
		s.writeError(w, http.StatusBadGateway, err)
		return
	}

	interior := 1
	if len(uplinks) > 0 {
		if r, ok := ttn.ReadingOf(uplinks[len(uplinks)-1].Payload); ok && r.Indoor != nil && !*r.Indoor {
			interior = 0
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"dev_interior": interior})
}

func (s *Server) gpsEnable(w http.ResponseWriter, req *http.Request) {
	s.gpsCommand(w, req, "enable", "GPS_ENABLE_SEND")
}

func (s *Server) gpsDisable(w http.ResponseWriter, req *http.Request) {
	s.gpsCommand(w, req, "disable", "GPS_DISABLE_SEND")
}

func (s *Server) gpsCommand(w http.ResponseWriter, req *http.Request, command, status string) {
	if s.gps == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("no downlink configured"))
		return
	}

	send := s.gps.EnableGPS
	if command == "disable" {
		send = s.gps.DisableGPS
	}
	if err := send(req.Context()); err != nil {
		s.metrics.downlinks.WithLabelValues(command, "error").Inc()
		s.logger.Error("GPS downlink failed", slog.String("command", command), slog.Any("error", err))
		s.writeError(w, http.StatusBadGateway, err)
		return
	}

	s.metrics.downlinks.WithLabelValues(command, "ok").Inc()
	s.logger.Info("GPS downlink sent", slog.String("command", command))
	s.writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

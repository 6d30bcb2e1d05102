package web

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	points    *prometheus.CounterVec
	clients   prometheus.Gauge
	downlinks *prometheus.CounterVec
	latitude  prometheus.Gauge
	longitude prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		points: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lora_mapserver_points_total",
				Help: "Total number of points received",
			},
			[]string{"origin"},
		),
		clients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lora_mapserver_websocket_clients",
				Help: "Number of connected websocket clients",
			},
		),
		downlinks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lora_mapserver_downlinks_total",
				Help: "Total number of GPS downlink commands sent",
			},
			[]string{"command", "result"},
		),
		latitude: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lora_mapserver_point_latitude",
				Help: "Latitude of the current point",
			},
		),
		longitude: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lora_mapserver_point_longitude",
				Help: "Longitude of the current point",
			},
		),
	}

	reg.MustRegister(m.points, m.clients, m.downlinks, m.latitude, m.longitude)
	return m
}

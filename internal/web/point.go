package web

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Point origins.
const (
	OriginFingerprint = "fingerprint"
	OriginGPS         = "gps"
)

// Point is a device position shown on the map.
type Point struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Label     string    `json:"label,omitempty"`
	Origin    string    `json:"origin,omitempty"`
	Time      time.Time `json:"time"`
}

func (p Point) validate() error {
	var errs []error
	if math.IsNaN(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 {
		errs = append(errs, fmt.Errorf("latitude %v out of range", p.Latitude))
	}
	if math.IsNaN(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
		errs = append(errs, fmt.Errorf("longitude %v out of range", p.Longitude))
	}
	return errors.Join(errs...)
}

package storage

import (
	"time"
)

// Session is a recording of uplinks taken from one source
type Session struct {
	ID          int64
	StartTime   time.Time
	Source      string
	Description string
	Config      *string
}

// GatewayStat summarises the receptions of one gateway within a session
type GatewayStat struct {
	GatewayID  string
	Receptions int64
	MeanRSSI   float64
	MinRSSI    float64
	MaxRSSI    float64
}

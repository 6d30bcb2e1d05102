package ttn

import (
	"github.com/roman-kulish/lora-locator/internal/fingerprint"
)

// Cayenne LPP fields produced by the device payload formatter.
const (
	FieldGPS     = "gps_3"
	FieldBattery = "analog_in_8"
	FieldIndoor  = "digital_in_4"
)

// Payload is the decoded application payload of an uplink. It is one of
// GPSFix, Reading or Unknown.
type Payload interface {
	isPayload()
}

// GPSFix is a payload carrying a satellite position. Reading holds the
// status fields sent alongside the fix.
type GPSFix struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
	Reading   Reading
}

// Reading is a payload without a position. Absent fields are nil.
type Reading struct {
	Battery      *float64
	Indoor       *bool
	UsedChannels *fingerprint.ChannelMask
}

// Unknown is a payload without any recognised field.
type Unknown struct {
	Fields map[string]any
}

func (GPSFix) isPayload()  {}
func (Reading) isPayload() {}
func (Unknown) isPayload() {}

// ReadingOf returns the status fields of a payload.
func ReadingOf(p Payload) (Reading, bool) {
	switch v := p.(type) {
	case GPSFix:
		return v.Reading, true
	case Reading:
		return v, true
	default:
		return Reading{}, false
	}
}

func decodePayload(fields map[string]any, usedChannelField string) Payload {
	var r Reading
	var known bool

	if v, ok := number(fields[FieldBattery]); ok {
		r.Battery = &v
		known = true
	}
	if v, ok := number(fields[FieldIndoor]); ok {
		indoor := v != 0
		r.Indoor = &indoor
		known = true
	}
	if usedChannelField != "" {
		if v, ok := number(fields[usedChannelField]); ok && v >= 0 && v <= 255 {
			mask := fingerprint.ChannelMask(uint8(v))
			r.UsedChannels = &mask
			known = true
		}
	}

	if gps, ok := fields[FieldGPS].(map[string]any); ok {
		lat, latOK := number(gps["latitude"])
		lon, lonOK := number(gps["longitude"])
		if latOK && lonOK {
			alt, _ := number(gps["altitude"])
			return GPSFix{Latitude: lat, Longitude: lon, Altitude: alt, Reading: r}
		}
	}

	if !known {
		return Unknown{Fields: fields}
	}
	return r
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

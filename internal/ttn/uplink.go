package ttn

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/roman-kulish/lora-locator/internal/fingerprint"
)

// UnknownChannel is the channel of an uplink sent on a frequency outside the
// channel plan.
const UnknownChannel = -1

// EU868 channel plan of the deployment, frequency in Hz to channel index.
var channelPlan = map[uint64]int{
	868_100_000: 0,
	868_300_000: 1,
	868_500_000: 2,
	867_100_000: 3,
	867_300_000: 4,
	867_500_000: 5,
	867_700_000: 6,
	867_900_000: 7,
	868_800_000: 8,
}

// Channel returns the channel index of a frequency in Hz.
func Channel(frequency uint64) (int, bool) {
	ch, ok := channelPlan[frequency]
	if !ok {
		return UnknownChannel, false
	}
	return ch, true
}

// Uplink is a parsed uplink message with the reception metadata of every
// gateway that heard it.
type Uplink struct {
	DeviceID   string
	ReceivedAt time.Time
	Frequency  uint64
	Channel    int
	Receptions []Reception
	Payload    Payload

	// Raw is the original JSON message, kept for recording.
	Raw json.RawMessage
}

// Reception is the metadata reported by one gateway.
type Reception struct {
	GatewayID string
	EUI       string
	RSSI      float64
}

// ChannelKnown reports whether the uplink frequency is part of the channel plan.
func (u Uplink) ChannelKnown() bool {
	return u.Channel != UnknownChannel
}

type uplinkJSON struct {
	EndDeviceIDs struct {
		DeviceID string `json:"device_id"`
	} `json:"end_device_ids"`
	ReceivedAt    time.Time `json:"received_at"`
	UplinkMessage struct {
		DecodedPayload map[string]any `json:"decoded_payload"`
		RxMetadata     []struct {
			GatewayIDs struct {
				GatewayID string `json:"gateway_id"`
				EUI       string `json:"eui"`
			} `json:"gateway_ids"`
			RSSI float64 `json:"rssi"`
		} `json:"rx_metadata"`
		Settings struct {
			Frequency json.Number `json:"frequency"`
		} `json:"settings"`
	} `json:"uplink_message"`
}

// Decoder parses uplink messages.
type Decoder struct {
	// UsedChannelField is the decoded payload field carrying the used channel bit set.
	UsedChannelField string
}

// Decode parses a single uplink message as delivered by the MQTT integration
// and wrapped in "result" by the storage integration. ok is false for
// messages without a decoded payload.
func (d Decoder) Decode(data []byte) (u Uplink, ok bool, err error) {
	var msg uplinkJSON
	if err = json.Unmarshal(data, &msg); err != nil {
		return Uplink{}, false, fmt.Errorf("decoding uplink: %w", err)
	}
	if msg.UplinkMessage.DecodedPayload == nil {
		return Uplink{}, false, nil
	}

	u = Uplink{
		DeviceID:   msg.EndDeviceIDs.DeviceID,
		ReceivedAt: msg.ReceivedAt.UTC(),
		Channel:    UnknownChannel,
		Payload:    decodePayload(msg.UplinkMessage.DecodedPayload, d.UsedChannelField),
		Raw:        append(json.RawMessage(nil), data...),
	}

	if f := msg.UplinkMessage.Settings.Frequency.String(); f != "" {
		if u.Frequency, err = strconv.ParseUint(f, 10, 64); err != nil {
			return Uplink{}, false, fmt.Errorf("parsing frequency '%s': %w", f, err)
		}
		u.Channel, _ = Channel(u.Frequency)
	}

	u.Receptions = make([]Reception, 0, len(msg.UplinkMessage.RxMetadata))
	for _, rx := range msg.UplinkMessage.RxMetadata {
		u.Receptions = append(u.Receptions, Reception{
			GatewayID: rx.GatewayIDs.GatewayID,
			EUI:       rx.GatewayIDs.EUI,
			RSSI:      rx.RSSI,
		})
	}

	return u, true, nil
}

// DecodeStream parses newline delimited storage integration results. Blank
// lines and messages without a decoded payload are skipped.
func (d Decoder) DecodeStream(r io.Reader) ([]Uplink, error) {
	var uplinks []Uplink

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		var envelope struct {
			Result json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, fmt.Errorf("line %d: decoding envelope: %w", line, err)
		}
		if len(envelope.Result) == 0 {
			continue
		}

		u, ok, err := d.Decode(envelope.Result)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if ok {
			uplinks = append(uplinks, u)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stream: %w", err)
	}

	return uplinks, nil
}

// FilterRange returns the uplinks received within [begin, end].
func FilterRange(uplinks []Uplink, begin, end time.Time) []Uplink {
	var out []Uplink
	for _, u := range uplinks {
		if !u.ReceivedAt.Before(begin) && !u.ReceivedAt.After(end) {
			out = append(out, u)
		}
	}
	return out
}

// Readings converts uplinks to aggregator input. Uplinks on a frequency
// outside the channel plan are skipped.
func Readings(uplinks []Uplink) []fingerprint.Uplink {
	out := make([]fingerprint.Uplink, 0, len(uplinks))
	for _, u := range uplinks {
		if !u.ChannelKnown() {
			continue
		}
		receptions := make([]fingerprint.Reception, 0, len(u.Receptions))
		for _, r := range u.Receptions {
			receptions = append(receptions, fingerprint.Reception{GatewayID: r.GatewayID, RSSI: r.RSSI})
		}
		out = append(out, fingerprint.Uplink{Channel: u.Channel, Receptions: receptions})
	}
	return out
}

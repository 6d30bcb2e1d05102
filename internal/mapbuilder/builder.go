// Package mapbuilder derives fingerprint map entries from uplinks recorded
// while the device stayed at known places.
package mapbuilder

import (
	"maps"
	"slices"

	"github.com/roman-kulish/lora-locator/internal/config"
	"github.com/roman-kulish/lora-locator/internal/fingerprint"
	"github.com/roman-kulish/lora-locator/internal/ttn"
)

// Readings groups the RSSI readings of uplinks per gateway and channel, in
// reception order. Uplinks outside the channel plan are skipped.
func Readings(uplinks []ttn.Uplink) map[string]map[int][]float64 {
	out := make(map[string]map[int][]float64)
	for _, u := range uplinks {
		if !u.ChannelKnown() {
			continue
		}
		for _, r := range u.Receptions {
			if out[r.GatewayID] == nil {
				out[r.GatewayID] = make(map[int][]float64)
			}
			out[r.GatewayID][u.Channel] = append(out[r.GatewayID][u.Channel], r.RSSI)
		}
	}
	return out
}

// GatewayAverages returns the mean RSSI of every gateway over all channels.
func GatewayAverages(uplinks []ttn.Uplink) map[string]float64 {
	readings := make(map[string][]float64)
	for _, u := range uplinks {
		for _, r := range u.Receptions {
			readings[r.GatewayID] = append(readings[r.GatewayID], r.RSSI)
		}
	}

	out := make(map[string]float64, len(readings))
	for gateway, values := range readings {
		out[gateway] = Estimate(values, MethodAverage)
	}
	return out
}

// Entry builds the fingerprint entry of one place. Every gateway heard at
// the place gets all fingerprint channels; channels it never heard there are
// left nil, which marks them silent.
func Entry(label fingerprint.Label, uplinks []ttn.Uplink, m Method) config.FingerprintEntry {
	entry := config.FingerprintEntry{
		Label:    label.String(),
		Gateways: make(map[string]map[int]*float64),
	}

	readings := Readings(uplinks)
	for _, gateway := range slices.Sorted(maps.Keys(readings)) {
		channels := make(map[int]*float64, fingerprint.NumChannels)
		for ch := 0; ch < fingerprint.NumChannels; ch++ {
			values, ok := readings[gateway][ch]
			if !ok {
				channels[ch] = nil
				continue
			}
			v := Estimate(values, m)
			channels[ch] = &v
		}
		entry.Gateways[gateway] = channels
	}
	return entry
}

// Sample is the set of uplinks recorded at one place.
type Sample struct {
	Label   fingerprint.Label
	Uplinks []ttn.Uplink
}

// merge joins samples sharing a label, in order of first appearance.
func merge(samples []Sample) []Sample {
	var out []Sample
	index := make(map[fingerprint.Label]int)
	for _, s := range samples {
		if len(s.Uplinks) == 0 {
			continue
		}
		if i, ok := index[s.Label]; ok {
			out[i].Uplinks = append(out[i].Uplinks, s.Uplinks...)
			continue
		}
		index[s.Label] = len(out)
		out = append(out, Sample{Label: s.Label, Uplinks: slices.Clone(s.Uplinks)})
	}
	return out
}

// Build creates a fingerprint document from samples, keeping their order.
// Samples of a place visited more than once are joined into one entry. The
// gateway list is every gateway heard in any sample, sorted.
func Build(samples []Sample, sentinel float64, m Method) config.FingerprintsConfig {
	fc := config.FingerprintsConfig{Sentinel: sentinel}

	seen := make(map[string]struct{})
	for _, s := range merge(samples) {
		entry := Entry(s.Label, s.Uplinks, m)
		if len(entry.Gateways) == 0 {
			continue
		}
		for gateway := range entry.Gateways {
			seen[gateway] = struct{}{}
		}
		fc.Entries = append(fc.Entries, entry)
	}
	fc.Gateways = slices.Sorted(maps.Keys(seen))

	return fc
}

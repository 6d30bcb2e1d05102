package fingerprint

import (
	"maps"
	"slices"
)

// Params holds the deployment settings shared by normalization and
// classification.
type Params struct {
	// Sentinel is the signal strength substituted wherever no reading exists.
	Sentinel float64

	// Gateways lists every gateway the deployment can ever see. Gateways
	// outside this list are unknown to the fingerprint map.
	Gateways []string

	// UsedChannels enables channel-aware filling when set: every flagged
	// channel that a gateway did not hear is filled with Sentinel.
	UsedChannels *ChannelMask
}

// Normalize extends the fingerprint map and the observation to the common
// gateway/channel universe described by p. Neither argument is modified; the
// extended copies are returned.
//
// The observation gains every missing gateway with the channel set of the
// lexicographically smallest gateway it originally held.
func Normalize(m *Map, obs Observation, p Params) (*Map, Observation) {
	fps := m.Clone()
	for _, label := range fps.labels {
		fp := fps.fingerprints[label]
		for _, gateway := range p.Gateways {
			if _, ok := fp[gateway]; ok {
				continue
			}
			channels := make(ChannelRSS, NumChannels)
			for ch := 0; ch < NumChannels; ch++ {
				channels[ch] = p.Sentinel
			}
			fp[gateway] = channels
		}
	}

	out := obs.Clone()
	if out == nil {
		out = make(Observation)
	}

	var template []int
	if present := obs.Gateways(); len(present) > 0 {
		template = slices.Sorted(maps.Keys(obs[present[0]]))
	}
	for _, gateway := range p.Gateways {
		if _, ok := out[gateway]; ok {
			continue
		}
		channels := make(ChannelRSS, len(template))
		for _, ch := range template {
			channels[ch] = p.Sentinel
		}
		out[gateway] = channels
	}

	if p.UsedChannels != nil {
		for _, ch := range p.UsedChannels.Channels() {
			for _, gateway := range p.Gateways {
				if out[gateway] == nil {
					out[gateway] = make(ChannelRSS)
				}
				if _, ok := out[gateway][ch]; !ok {
					out[gateway][ch] = p.Sentinel
				}
			}
		}
	}

	return fps, out
}

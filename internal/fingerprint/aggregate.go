package fingerprint

// Reception is a single gateway reading of an uplink.
type Reception struct {
	GatewayID string
	RSSI      float64
}

// Uplink is the part of a raw uplink message the aggregator needs: the
// transmit channel and the signal strength reported by every gateway that
// received it.
type Uplink struct {
	Channel    int
	Receptions []Reception
}

// Aggregate folds a batch of uplinks into one observation. For every
// (gateway, channel) pair the first reading is stored as is and each later
// reading replaces the stored value with (reading + stored) / 2, so recent
// uplinks weigh more than in an arithmetic mean.
func Aggregate(uplinks []Uplink) Observation {
	obs := make(Observation)
	for _, u := range uplinks {
		for _, r := range u.Receptions {
			channels, ok := obs[r.GatewayID]
			if !ok {
				channels = make(ChannelRSS)
				obs[r.GatewayID] = channels
			}
			if prev, ok := channels[u.Channel]; ok {
				channels[u.Channel] = (r.RSSI + prev) / 2
				continue
			}
			channels[u.Channel] = r.RSSI
		}
	}
	return obs
}

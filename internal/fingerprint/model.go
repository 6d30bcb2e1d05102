package fingerprint

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// NumChannels is the number of uplink channels a fingerprint entry covers.
const NumChannels = 8

// Label identifies a known physical location. The classifier only compares
// labels for equality; Floor and Zone are used for partial-match accuracy.
type Label struct {
	Floor string `yaml:"floor" json:"floor"`
	Zone  string `yaml:"zone" json:"zone"`
}

// ParseLabel parses "floor/zone" or the compact two character form "0e".
func ParseLabel(s string) (Label, error) {
	s = strings.TrimSpace(s)
	if floor, zone, ok := strings.Cut(s, "/"); ok {
		if floor == "" || zone == "" {
			return Label{}, fmt.Errorf("invalid label %q", s)
		}
		return Label{Floor: floor, Zone: zone}, nil
	}
	if r := []rune(s); len(r) == 2 {
		return Label{Floor: string(r[0]), Zone: string(r[1])}, nil
	}
	return Label{}, fmt.Errorf("invalid label %q: expected floor/zone", s)
}

func (l Label) String() string {
	return l.Floor + "/" + l.Zone
}

// MarshalText implements encoding.TextMarshaler so labels can be used as map keys
// in JSON and YAML documents.
func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Label) UnmarshalText(text []byte) error {
	parsed, err := ParseLabel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ChannelRSS maps a channel index to a signal strength in dBm.
type ChannelRSS map[int]float64

// Observation maps a gateway ID to its per-channel signal strengths.
type Observation map[string]ChannelRSS

// Clone returns a deep copy of the observation.
func (o Observation) Clone() Observation {
	if o == nil {
		return nil
	}
	c := make(Observation, len(o))
	for gateway, channels := range o {
		c[gateway] = maps.Clone(channels)
	}
	return c
}

// Gateways returns the gateway IDs of the observation in lexicographic order.
func (o Observation) Gateways() []string {
	return slices.Sorted(maps.Keys(o))
}

// Restrict returns a copy holding only the listed gateways, and the IDs of
// the gateways that were dropped, in lexicographic order.
func (o Observation) Restrict(gateways []string) (Observation, []string) {
	c := make(Observation, len(o))
	var dropped []string
	for _, gateway := range o.Gateways() {
		if !slices.Contains(gateways, gateway) {
			dropped = append(dropped, gateway)
			continue
		}
		c[gateway] = maps.Clone(o[gateway])
	}
	return c, dropped
}

// Empty reports whether the observation carries no (gateway, channel) pair.
func (o Observation) Empty() bool {
	for _, channels := range o {
		if len(channels) > 0 {
			return false
		}
	}
	return true
}

// ChannelMask is a bit set of the channels a device transmitted on during a
// burst: bit k set means channel k was used.
type ChannelMask uint8

// Used reports whether channel ch is flagged.
func (m ChannelMask) Used(ch int) bool {
	if ch < 0 || ch >= NumChannels {
		return false
	}
	return m&(1<<ch) != 0
}

// Channels returns the flagged channel indices in ascending order.
func (m ChannelMask) Channels() []int {
	var channels []int
	for ch := 0; ch < NumChannels; ch++ {
		if m.Used(ch) {
			channels = append(channels, ch)
		}
	}
	return channels
}

type position struct {
	label   Label
	gateway string
	channel int
}

// Map is the fingerprint store: an ordered set of labels, each with the
// expected signal strengths per gateway and channel. Label order is the
// insertion order and decides classification ties.
type Map struct {
	labels       []Label
	fingerprints map[Label]Observation
	silent       map[position]struct{}
}

// NewMap creates an empty fingerprint map.
func NewMap() *Map {
	return &Map{
		fingerprints: make(map[Label]Observation),
		silent:       make(map[position]struct{}),
	}
}

// Set stores the expected signal strength for a label, gateway and channel.
func (m *Map) Set(label Label, gateway string, channel int, rss float64) {
	fp, ok := m.fingerprints[label]
	if !ok {
		fp = make(Observation)
		m.fingerprints[label] = fp
		m.labels = append(m.labels, label)
	}
	if fp[gateway] == nil {
		fp[gateway] = make(ChannelRSS)
	}
	fp[gateway][channel] = rss
	delete(m.silent, position{label, gateway, channel})
}

// SetSilent stores a "no signal" placeholder with the given sentinel value and
// remembers the position so that Resubstitute can replace it later.
func (m *Map) SetSilent(label Label, gateway string, channel int, sentinel float64) {
	m.Set(label, gateway, channel, sentinel)
	m.silent[position{label, gateway, channel}] = struct{}{}
}

// Labels returns the labels in map order.
func (m *Map) Labels() []Label {
	return slices.Clone(m.labels)
}

// Fingerprint returns the stored entry for a label. The returned observation
// must not be modified.
func (m *Map) Fingerprint(label Label) (Observation, bool) {
	fp, ok := m.fingerprints[label]
	return fp, ok
}

// Len returns the number of labels.
func (m *Map) Len() int {
	return len(m.labels)
}

// Silent returns the number of silent placeholders recorded in the map.
func (m *Map) Silent() int {
	return len(m.silent)
}

// Clone returns a deep copy of the map.
func (m *Map) Clone() *Map {
	c := &Map{
		labels:       slices.Clone(m.labels),
		fingerprints: make(map[Label]Observation, len(m.fingerprints)),
		silent:       maps.Clone(m.silent),
	}
	for label, fp := range m.fingerprints {
		c.fingerprints[label] = fp.Clone()
	}
	return c
}

// Resubstitute returns a copy of the map with every silent placeholder set to v.
func (m *Map) Resubstitute(v float64) *Map {
	c := m.Clone()
	for pos := range c.silent {
		c.fingerprints[pos.label][pos.gateway][pos.channel] = v
	}
	return c
}

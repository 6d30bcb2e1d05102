package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/lora-locator/internal/fingerprint"
)

// FingerprintsConfig is the fingerprint map of a deployment. A null channel
// value marks a channel the gateway never heard at that place; it is loaded
// with the sentinel and replaced during calibration.
type FingerprintsConfig struct {
	File     string             `yaml:"file,omitempty"`
	Sentinel float64            `yaml:"sentinel"`
	Gateways []string           `yaml:"gateways"`
	Entries  []FingerprintEntry `yaml:"entries"`
}

// FingerprintEntry holds the expected signal strengths at one place
type FingerprintEntry struct {
	Label    string                       `yaml:"label"`
	Gateways map[string]map[int]*float64 `yaml:"gateways"`
}

// empty reports whether the entry lists no channel for any gateway.
func (e FingerprintEntry) empty() bool {
	for _, channels := range e.Gateways {
		if len(channels) > 0 {
			return false
		}
	}
	return true
}

// LoadFingerprints decodes the fingerprint document at path over base.
func LoadFingerprints(path string, base FingerprintsConfig) (FingerprintsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FingerprintsConfig{}, fmt.Errorf("reading file: %w", err)
	}

	fc := base
	fc.File = ""
	fc.Entries = nil
	if err = yaml.Unmarshal(data, &fc); err != nil {
		return FingerprintsConfig{}, fmt.Errorf("parsing yaml: %w", err)
	}
	return fc, nil
}

// WriteFingerprints writes fc as a YAML document to path.
func WriteFingerprints(path string, fc FingerprintsConfig) error {
	data, err := yaml.Marshal(fc)
	if err != nil {
		return fmt.Errorf("marshaling fingerprints: %w", err)
	}
	if err = os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

// ErrNoGateways is returned by Map when the gateway list is empty.
var ErrNoGateways = errors.New("fingerprints: no gateways listed")

// Map builds the fingerprint map. Entry order is preserved.
func (fc FingerprintsConfig) Map() (*fingerprint.Map, error) {
	if len(fc.Gateways) == 0 {
		return nil, ErrNoGateways
	}

	m := fingerprint.NewMap()
	for _, entry := range fc.Entries {
		label, err := fingerprint.ParseLabel(entry.Label)
		if err != nil {
			return nil, err
		}
		if _, ok := m.Fingerprint(label); ok {
			return nil, fmt.Errorf("duplicate fingerprint entry '%s'", label)
		}
		if entry.empty() {
			return nil, fmt.Errorf("fingerprint entry '%s' has no channels", label)
		}

		for _, gateway := range slices.Sorted(maps.Keys(entry.Gateways)) {
			channels := entry.Gateways[gateway]
			for _, ch := range slices.Sorted(maps.Keys(channels)) {
				if ch < 0 || ch >= fingerprint.NumChannels {
					return nil, fmt.Errorf("entry '%s', gateway '%s': channel %d out of range", label, gateway, ch)
				}
				if v := channels[ch]; v != nil {
					m.Set(label, gateway, ch, *v)
				} else {
					m.SetSilent(label, gateway, ch, fc.Sentinel)
				}
			}
		}
	}
	return m, nil
}

// Params returns the classification parameters without a channel mask.
func (fc FingerprintsConfig) Params() fingerprint.Params {
	return fingerprint.Params{
		Sentinel: fc.Sentinel,
		Gateways: slices.Clone(fc.Gateways),
	}
}

package locator

import (
	"fmt"

	"github.com/roman-kulish/lora-locator/internal/config"
	"github.com/roman-kulish/lora-locator/internal/fingerprint"
	"github.com/roman-kulish/lora-locator/internal/source"
)

// FromConfig creates a locator using the fingerprints, coordinates and loop
// settings of cfg.
func FromConfig(src source.Source, publisher Publisher, cfg *config.Config, options ...func(l *Locator)) (*Locator, error) {
	m, err := cfg.Fingerprints.Map()
	if err != nil {
		return nil, fmt.Errorf("loading fingerprints: %w", err)
	}
	coords, err := cfg.LabelCoordinates()
	if err != nil {
		return nil, fmt.Errorf("loading coordinates: %w", err)
	}

	for _, label := range m.Labels() {
		if _, ok := coords[label]; !ok {
			return nil, fmt.Errorf("%w '%s'", ErrNoCoordinates, label)
		}
	}

	classifier := fingerprint.NewClassifier(m, cfg.Fingerprints.Params())
	return New(src, classifier, coords, publisher, cfg.Locator, options...), nil
}

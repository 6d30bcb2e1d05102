package fingerprint

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
)

// ErrUnknownGateway is returned when the observation holds a gateway that a
// fingerprint entry lacks after normalization. It means the gateway list of
// the deployment is incomplete.
var ErrUnknownGateway = errors.New("gateway missing from fingerprint")

// Score is the total squared error of one label.
type Score struct {
	Label Label
	Error float64
}

// Result is the outcome of a classification: the best matching label and the
// total squared error of every label.
type Result struct {
	Label  Label
	Scores map[Label]float64

	order []Label
}

// Empty reports whether the classification had nothing to compare.
func (r Result) Empty() bool {
	return len(r.Scores) == 0
}

// Ranked returns the scores in ascending error order. Equal errors keep the
// fingerprint map order.
func (r Result) Ranked() []Score {
	ranked := make([]Score, 0, len(r.order))
	for _, label := range r.order {
		ranked = append(ranked, Score{Label: label, Error: r.Scores[label]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Error < ranked[j].Error
	})
	return ranked
}

// Classify normalizes the map and the observation with p and returns the
// label whose fingerprint has the smallest sum of squared differences to the
// observation. Only channels present both in the observation and in the
// label's entry for that gateway are compared. Ties go to the label that
// comes first in the map.
//
// An empty map, or an observation left without any reading after
// normalization, yields an empty Result and no error.
func Classify(m *Map, obs Observation, p Params) (Result, error) {
	fps, normalized := Normalize(m, obs, p)
	if fps.Len() == 0 || normalized.Empty() {
		return Result{Scores: map[Label]float64{}}, nil
	}

	gateways := normalized.Gateways()
	result := Result{
		Scores: make(map[Label]float64, fps.Len()),
		order:  fps.Labels(),
	}

	best := -1.0
	for _, label := range result.order {
		fp := fps.fingerprints[label]

		var total float64
		for _, gateway := range gateways {
			expected, ok := fp[gateway]
			if !ok {
				return Result{}, fmt.Errorf("%w: gateway '%s' under label '%s'", ErrUnknownGateway, gateway, label)
			}
			observed := normalized[gateway]
			for _, ch := range slices.Sorted(maps.Keys(observed)) {
				if want, ok := expected[ch]; ok {
					diff := observed[ch] - want
					total += diff * diff
				}
			}
		}

		result.Scores[label] = total
		if best < 0 || total < best {
			best = total
			result.Label = label
		}
	}

	return result, nil
}

// Classifier bundles a fingerprint map with the deployment parameters.
type Classifier struct {
	fingerprints *Map
	params       Params
}

// NewClassifier creates a classifier over a private copy of m.
func NewClassifier(m *Map, p Params) *Classifier {
	p.Gateways = slices.Clone(p.Gateways)
	p.UsedChannels = nil
	return &Classifier{fingerprints: m.Clone(), params: p}
}

// Params returns the classifier parameters without a channel mask.
func (c *Classifier) Params() Params {
	p := c.params
	p.Gateways = slices.Clone(p.Gateways)
	return p
}

// Classify classifies obs. A non-nil used enables channel-aware filling.
func (c *Classifier) Classify(obs Observation, used *ChannelMask) (Result, error) {
	p := c.params
	p.UsedChannels = used
	return Classify(c.fingerprints, obs, p)
}

// Package benchmark measures the classifier accuracy on labelled recordings
// by splitting the uplinks of every place into random test observations.
package benchmark

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/roman-kulish/lora-locator/internal/fingerprint"
	"github.com/roman-kulish/lora-locator/internal/ttn"
)

const (
	DefaultRuns    = 30
	DefaultBuckets = 5
)

// Place is the recording made at one labelled place.
type Place struct {
	Label   fingerprint.Label
	Uplinks []ttn.Uplink
}

// Split shuffles uplinks and deals them into k random buckets, aggregating
// each bucket into one test observation. Buckets that receive no uplink are
// returned empty.
func Split(uplinks []ttn.Uplink, k int, rng *rand.Rand) []fingerprint.Observation {
	readings := ttn.Readings(uplinks)
	rng.Shuffle(len(readings), func(i, j int) {
		readings[i], readings[j] = readings[j], readings[i]
	})

	buckets := make([][]fingerprint.Uplink, k)
	for _, r := range readings {
		n := rng.IntN(k)
		buckets[n] = append(buckets[n], r)
	}

	out := make([]fingerprint.Observation, k)
	for i, b := range buckets {
		out[i] = fingerprint.Aggregate(b)
	}
	return out
}

// Run is the outcome of one benchmark pass.
type Run struct {
	Accuracy fingerprint.Accuracy

	// MeanError is the mean distance in metres between expected and
	// predicted places, NaN when no prediction has coordinates for both.
	MeanError float64
}

// Report summarises a benchmark.
type Report struct {
	// BestSentinel is the best sentinel value averaged over the runs.
	BestSentinel float64
	Sentinels    []float64
	Runs         []Run
}

func WithLogger(logger *slog.Logger) func(b *Benchmark) {
	return func(b *Benchmark) {
		b.logger = logger
	}
}

func WithRand(rng *rand.Rand) func(b *Benchmark) {
	return func(b *Benchmark) {
		b.rng = rng
	}
}

func WithCoordinates(coords map[fingerprint.Label]orb.Point) func(b *Benchmark) {
	return func(b *Benchmark) {
		b.coords = coords
	}
}

// WithIgnoreUnknownGateways drops gateways missing from the deployment from
// test observations instead of failing the run.
func WithIgnoreUnknownGateways() func(b *Benchmark) {
	return func(b *Benchmark) {
		b.ignoreUnknown = true
	}
}

// Benchmark evaluates a fingerprint map against labelled recordings.
type Benchmark struct {
	m       *fingerprint.Map
	params  fingerprint.Params
	runs    int
	buckets int

	rng           *rand.Rand
	coords        map[fingerprint.Label]orb.Point
	ignoreUnknown bool
	logger        *slog.Logger
}

// New creates a benchmark doing runs passes with buckets test observations
// per place. Zero values select the defaults.
func New(m *fingerprint.Map, params fingerprint.Params, runs, buckets int, options ...func(b *Benchmark)) *Benchmark {
	if runs <= 0 {
		runs = DefaultRuns
	}
	if buckets <= 0 {
		buckets = DefaultBuckets
	}

	b := &Benchmark{
		m:       m,
		params:  params,
		runs:    runs,
		buckets: buckets,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(b)
	}
	return b
}

// corpus draws a fresh random test set from places.
func (b *Benchmark) corpus(places []Place) *fingerprint.Corpus {
	c := fingerprint.NewCorpus()
	for _, p := range places {
		cases := Split(p.Uplinks, b.buckets, b.rng)
		if b.ignoreUnknown {
			for i, obs := range cases {
				var dropped []string
				cases[i], dropped = obs.Restrict(b.params.Gateways)
				if len(dropped) > 0 {
					b.logger.Debug("Dropped unknown gateways", slog.String("place", p.Label.String()), slog.Any("gateways", dropped))
				}
			}
		}
		c.Add(p.Label, cases...)
	}
	return c
}

// BestSentinel calibrates the sentinel once per run on a fresh random test
// set and returns the mean of the best values along with every run's best.
func (b *Benchmark) BestSentinel(places []Place, sweep fingerprint.Sweep) (float64, []float64, error) {
	best := make([]float64, 0, b.runs)
	var sum float64
	for i := 0; i < b.runs; i++ {
		cal, err := fingerprint.Calibrate(b.m, b.corpus(places), b.params.Gateways, sweep)
		if err != nil {
			return 0, nil, fmt.Errorf("calibration run %d: %w", i+1, err)
		}
		b.logger.Debug("Calibration run",
			slog.Int("run", i+1),
			slog.Float64("sentinel", cal.Best.Sentinel),
			slog.Float64("accuracy", cal.Best.Accuracy.Overall()))

		best = append(best, cal.Best.Sentinel)
		sum += cal.Best.Sentinel
	}
	return sum / float64(len(best)), best, nil
}

// Runs benchmarks the map with the configured sentinel on a fresh random
// test set per run.
func (b *Benchmark) Runs(places []Place) ([]Run, error) {
	runs := make([]Run, 0, b.runs)
	for i := 0; i < b.runs; i++ {
		ev, err := fingerprint.Evaluate(b.m, b.corpus(places), b.params)
		if err != nil {
			return nil, fmt.Errorf("benchmark run %d: %w", i+1, err)
		}

		run := Run{Accuracy: ev.Accuracy, MeanError: b.meanError(ev.Predictions)}
		b.logger.Debug("Benchmark run",
			slog.Int("run", i+1),
			slog.Float64("accuracy", run.Accuracy.Overall()),
			slog.Float64("floor", run.Accuracy.Floor()),
			slog.Float64("zone", run.Accuracy.Zone()))
		runs = append(runs, run)
	}
	return runs, nil
}

// Report runs the sentinel calibration followed by the benchmark.
func (b *Benchmark) Report(places []Place, sweep fingerprint.Sweep) (Report, error) {
	best, sentinels, err := b.BestSentinel(places, sweep)
	if err != nil {
		return Report{}, err
	}
	runs, err := b.Runs(places)
	if err != nil {
		return Report{}, err
	}
	return Report{BestSentinel: best, Sentinels: sentinels, Runs: runs}, nil
}

func (b *Benchmark) meanError(predictions []fingerprint.Prediction) float64 {
	var sum float64
	var n int
	for _, p := range predictions {
		want, ok := b.coords[p.Want]
		if !ok {
			continue
		}
		got, ok := b.coords[p.Got]
		if !ok {
			continue
		}
		sum += geo.Distance(want, got)
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// Mean averages the accuracy ratios and errors of runs.
func Mean(runs []Run) (overall, floor, zone, meanError float64) {
	if len(runs) == 0 {
		return 0, 0, 0, math.NaN()
	}
	var errSum float64
	var errN int
	for _, r := range runs {
		overall += r.Accuracy.Overall()
		floor += r.Accuracy.Floor()
		zone += r.Accuracy.Zone()
		if !math.IsNaN(r.MeanError) {
			errSum += r.MeanError
			errN++
		}
	}
	n := float64(len(runs))
	meanError = math.NaN()
	if errN > 0 {
		meanError = errSum / float64(errN)
	}
	return overall / n, floor / n, zone / n, meanError
}

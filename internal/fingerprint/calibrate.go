package fingerprint

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrEmptySweep is returned when a sweep yields no candidate values.
var ErrEmptySweep = errors.New("sweep has no candidate values")

// Corpus is a labelled set of test observations kept in insertion order.
type Corpus struct {
	labels []Label
	cases  map[Label][]Observation
}

// NewCorpus creates an empty corpus.
func NewCorpus() *Corpus {
	return &Corpus{cases: make(map[Label][]Observation)}
}

// Add appends test observations for a label.
func (c *Corpus) Add(label Label, cases ...Observation) {
	if _, ok := c.cases[label]; !ok {
		c.labels = append(c.labels, label)
	}
	c.cases[label] = append(c.cases[label], cases...)
}

// Labels returns the corpus labels in insertion order.
func (c *Corpus) Labels() []Label {
	return slices.Clone(c.labels)
}

// Cases returns the test observations of a label.
func (c *Corpus) Cases(label Label) []Observation {
	return c.cases[label]
}

// Len returns the number of test observations over all labels.
func (c *Corpus) Len() int {
	var n int
	for _, cases := range c.cases {
		n += len(cases)
	}
	return n
}

// Accuracy counts classification outcomes. Floor and zone counters record
// partial matches of the label components.
type Accuracy struct {
	Total        int
	Correct      int
	CorrectFloor int
	CorrectZone  int
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

// Overall returns the exact-match ratio, 0 when nothing was tested.
func (a Accuracy) Overall() float64 { return ratio(a.Correct, a.Total) }

// Floor returns the floor-match ratio, 0 when nothing was tested.
func (a Accuracy) Floor() float64 { return ratio(a.CorrectFloor, a.Total) }

// Zone returns the zone-match ratio, 0 when nothing was tested.
func (a Accuracy) Zone() float64 { return ratio(a.CorrectZone, a.Total) }

func (a *Accuracy) record(want, got Label) {
	a.Total++
	if want == got {
		a.Correct++
	}
	if want.Floor == got.Floor {
		a.CorrectFloor++
	}
	if want.Zone == got.Zone {
		a.CorrectZone++
	}
}

// Prediction pairs the expected label of a test case with the classifier output.
type Prediction struct {
	Want Label
	Got  Label
}

// Evaluation is the outcome of classifying a whole corpus.
type Evaluation struct {
	Accuracy
	Predictions []Prediction
}

// Evaluate classifies every non-empty test observation of the corpus.
func Evaluate(m *Map, corpus *Corpus, p Params) (Evaluation, error) {
	var ev Evaluation
	for _, want := range corpus.labels {
		for _, obs := range corpus.cases[want] {
			if obs.Empty() {
				continue
			}
			res, err := Classify(m, obs, p)
			if err != nil {
				return Evaluation{}, fmt.Errorf("classifying test case of '%s': %w", want, err)
			}
			ev.record(want, res.Label)
			ev.Predictions = append(ev.Predictions, Prediction{Want: want, Got: res.Label})
		}
	}
	return ev, nil
}

// Sweep describes the candidate sentinel values Begin, Begin+Stride, ... up
// to but excluding End. A negative stride scans downwards.
type Sweep struct {
	Begin  float64 `yaml:"begin"`
	End    float64 `yaml:"end"`
	Stride float64 `yaml:"stride"`
}

// MaxSweepValues bounds the number of candidates of a sweep.
const MaxSweepValues = 100_000

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Values returns the candidate values of the sweep. A sweep with a zero or
// non-finite parameter, or more than MaxSweepValues candidates, yields none.
func (s Sweep) Values() []float64 {
	if s.Stride == 0 || !finite(s.Stride) || !finite(s.Begin) || !finite(s.End) {
		return nil
	}
	n := math.Ceil((s.End - s.Begin) / s.Stride)
	if n <= 0 || n > MaxSweepValues {
		return nil
	}

	values := make([]float64, 0, int(n))
	for i := 0; i < int(n); i++ {
		v := s.Begin + float64(i)*s.Stride
		if (s.Stride > 0 && v >= s.End) || (s.Stride < 0 && v <= s.End) {
			break
		}
		values = append(values, v)
	}
	return values
}

// Candidate is the accuracy reached with one sentinel value.
type Candidate struct {
	Sentinel float64
	Accuracy Accuracy
}

// Calibration is the outcome of a sentinel sweep.
type Calibration struct {
	Best       Candidate
	Candidates []Candidate
}

// Calibrate runs the corpus through the classifier once per sweep value and
// returns the value with the highest overall accuracy; ties keep the first
// value scanned. Silent placeholders of m are replaced by the candidate value
// for each run. A corpus without test cases scores 0 for every candidate,
// so the first candidate is returned.
func Calibrate(m *Map, corpus *Corpus, gateways []string, sweep Sweep) (Calibration, error) {
	values := sweep.Values()
	if len(values) == 0 {
		return Calibration{}, fmt.Errorf("%w: begin %g, end %g, stride %g", ErrEmptySweep, sweep.Begin, sweep.End, sweep.Stride)
	}

	cal := Calibration{Candidates: make([]Candidate, 0, len(values))}
	for i, v := range values {
		ev, err := Evaluate(m.Resubstitute(v), corpus, Params{Sentinel: v, Gateways: gateways})
		if err != nil {
			return Calibration{}, fmt.Errorf("evaluating sentinel %g: %w", v, err)
		}

		c := Candidate{Sentinel: v, Accuracy: ev.Accuracy}
		cal.Candidates = append(cal.Candidates, c)
		if i == 0 || c.Accuracy.Overall() > cal.Best.Accuracy.Overall() {
			cal.Best = c
		}
	}
	return cal, nil
}

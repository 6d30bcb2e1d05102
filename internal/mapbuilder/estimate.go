package mapbuilder

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	MethodAverage  Method = "avg"
	MethodGaussMAD Method = "gauss-mad"
	MethodGaussStd Method = "gauss-std"

	// madScale converts a median absolute deviation to a normal sigma.
	madScale = 0.6745

	// truncate is the kernel radius in sigmas.
	truncate = 4.0
)

var validMethods = map[Method]struct{}{
	MethodAverage:  {},
	MethodGaussMAD: {},
	MethodGaussStd: {},
}

// Method selects how repeated readings of one channel are reduced to a
// single fingerprint value
type Method string

func (m Method) String() string {
	return string(m)
}

// ParseMethod validates a method name.
func ParseMethod(s string) (Method, error) {
	m := Method(s)
	if _, ok := validMethods[m]; !ok {
		return "", fmt.Errorf("invalid method '%s', expected one of avg, gauss-mad, gauss-std", s)
	}
	return m, nil
}

// Estimate reduces readings, in reception order, to one value. The Gaussian
// methods smooth the series with a kernel whose sigma is derived from the
// spread of the readings and average the result; a zero spread falls back
// to the plain mean.
func Estimate(readings []float64, m Method) float64 {
	if len(readings) == 0 {
		return math.NaN()
	}

	var sigma float64
	switch m {
	case MethodGaussMAD:
		sigma = medianAbsDeviation(readings) / madScale
	case MethodGaussStd:
		_, sigma = stat.PopMeanStdDev(readings, nil)
	}
	if sigma > 0 {
		return stat.Mean(gaussianFilter(readings, sigma), nil)
	}
	return stat.Mean(readings, nil)
}

// median averages the two middle values of an even-length sample.
func median(x []float64) float64 {
	s := slices.Clone(x)
	slices.Sort(s)

	lower := stat.Quantile(0.5, stat.Empirical, s, nil)
	if len(s)%2 == 1 {
		return lower
	}
	n := float64(len(s))
	upper := stat.Quantile((n/2+0.5)/n, stat.Empirical, s, nil)
	return (lower + upper) / 2
}

func medianAbsDeviation(x []float64) float64 {
	dev := slices.Clone(x)
	floats.AddConst(-median(x), dev)
	for i, v := range dev {
		dev[i] = math.Abs(v)
	}
	return median(dev)
}

// gaussianFilter convolves x with a normalised Gaussian kernel, extending
// the series at both ends by reflection (d c b a | a b c d | d c b a).
func gaussianFilter(x []float64, sigma float64) []float64 {
	radius := int(truncate*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-0.5 * d * d / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)

	n := len(x)
	out := make([]float64, n)
	for i := range x {
		var acc float64
		for k, w := range kernel {
			acc += w * x[reflect(i+k-radius, n)]
		}
		out[i] = acc
	}
	return out
}

func reflect(i, n int) int {
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}

package scoring

import (
	"math"
	"math/rand/v2"
	"slices"
)

// ConfidenceInterval is a percentile bootstrap interval around a mean.
type ConfidenceInterval struct {
	Lower           float64 `json:"lower"`
	Upper           float64 `json:"upper"`
	Mean            float64 `json:"mean"`
	ConfidenceLevel float64 `json:"confidence_level"`
	NumBootstraps   int     `json:"num_bootstraps"`
}

const BootstrapIterations = 10000

// BootstrapCI resamples values with replacement and reports the percentile
// interval of the resampled means. Fewer than two values collapse the
// interval onto the mean. A negative seed draws a random one.
func BootstrapCI(values []float64, level float64, seed int64) ConfidenceInterval {
	m := mean(values)
	ci := ConfidenceInterval{Lower: m, Upper: m, Mean: m, ConfidenceLevel: level}
	n := len(values)
	if n < 2 {
		return ci
	}

	s := uint64(seed)
	if seed < 0 {
		s = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))

	means := make([]float64, BootstrapIterations)
	sample := make([]float64, n)
	for i := range means {
		for j := range sample {
			sample[j] = values[rng.IntN(n)]
		}
		means[i] = mean(sample)
	}
	slices.Sort(means)

	alpha := 1 - level
	lo := int(math.Floor(alpha / 2 * BootstrapIterations))
	hi := int(math.Floor((1 - alpha/2) * BootstrapIterations))
	if hi >= BootstrapIterations {
		hi = BootstrapIterations - 1
	}
	ci.Lower, ci.Upper = means[lo], means[hi]
	ci.NumBootstraps = BootstrapIterations
	return ci
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

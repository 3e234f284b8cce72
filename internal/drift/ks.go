package drift

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ksTest runs the two-sample Kolmogorov-Smirnov test and returns the test
// statistic and p-value as plain float64 scalars. This is the single choke
// point between the statistics library and the rest of the detector: nothing
// but primitive numerics crosses this boundary.
func ksTest(reference, current []float64) (statistic, pValue float64) {
	if len(reference) == 0 || len(current) == 0 {
		return 0, 1
	}

	ref := make([]float64, len(reference))
	cur := make([]float64, len(current))
	copy(ref, reference)
	copy(cur, current)
	sort.Float64s(ref)
	sort.Float64s(cur)

	statistic = stat.KolmogorovSmirnov(ref, nil, cur, nil)
	pValue = ksPValue(statistic, len(ref), len(cur))
	return statistic, pValue
}

// ksPValue computes the asymptotic two-sample KS p-value via the Kolmogorov
// distribution series Q(lambda) = 2 * sum_{j>=1} (-1)^(j-1) exp(-2 j^2 lambda^2)
func ksPValue(d float64, n, m int) float64 {
	if d <= 0 {
		return 1
	}
	en := math.Sqrt(float64(n) * float64(m) / float64(n+m))
	lambda := (en + 0.12 + 0.11/en) * d

	sum := 0.0
	for j := 1; j <= 100; j++ {
		term := 2 * math.Pow(-1, float64(j-1)) * math.Exp(-2*float64(j*j)*lambda*lambda)
		sum += term
		if math.Abs(term) < 1e-10 {
			break
		}
	}

	switch {
	case sum < 0:
		return 0
	case sum > 1:
		return 1
	default:
		return sum
	}
}

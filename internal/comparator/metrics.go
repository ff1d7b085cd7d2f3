package comparator

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/histogram"
)

// epsilon mirrors DBL_EPSILON, the threshold compareHist uses to skip empty
// bins.
const epsilon = 2.220446049250313e-16

func correlation(h1, h2 histogram.Histogram) float64 {
	if len(h1) == 0 {
		return 1
	}
	var s1, s2, s11, s12, s22 float64
	for i := range h1 {
		a, b := h1[i], h2[i]
		s1 += a
		s2 += b
		s11 += a * a
		s12 += a * b
		s22 += b * b
	}
	scale := 1 / float64(len(h1))
	num := s12 - s1*s2*scale
	denom2 := (s11 - s1*s1*scale) * (s22 - s2*s2*scale)
	if math.Abs(denom2) <= epsilon {
		return 1
	}
	return num / math.Sqrt(denom2)
}

func chiSquared(h1, h2 histogram.Histogram) float64 {
	var result float64
	for i := range h1 {
		a := h1[i]
		if math.Abs(a) <= epsilon {
			continue
		}
		d := a - h2[i]
		result += d * d / a
	}
	return result
}

func chiSquaredAlt(h1, h2 histogram.Histogram) float64 {
	var result float64
	for i := range h1 {
		sum := h1[i] + h2[i]
		if math.Abs(sum) <= epsilon {
			continue
		}
		d := h1[i] - h2[i]
		result += d * d / sum
	}
	return 2 * result
}

func intersection(h1, h2 histogram.Histogram) float64 {
	var result float64
	for i := range h1 {
		result += math.Min(h1[i], h2[i])
	}
	return result
}

func bhattacharyya(h1, h2 histogram.Histogram) float64 {
	var result, s1, s2 float64
	for i := range h1 {
		result += math.Sqrt(h1[i] * h2[i])
		s1 += h1[i]
		s2 += h2[i]
	}
	s := s1 * s2
	if math.Abs(s) > epsilon {
		s = 1 / math.Sqrt(s)
	} else {
		s = 1
	}
	return math.Sqrt(math.Max(1-result*s, 0))
}

func kullbackLeibler(h1, h2 histogram.Histogram) float64 {
	var result float64
	for i := range h1 {
		p, q := h1[i], h2[i]
		if math.Abs(p) <= epsilon {
			continue
		}
		if math.Abs(q) <= epsilon {
			q = 1e-10
		}
		result += p * math.Log(p/q)
	}
	return result
}

func euclidean(h1, h2 histogram.Histogram) float64 {
	var sum float64
	for i := range h1 {
		d := h1[i] - h2[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func cityBlock(h1, h2 histogram.Histogram) float64 {
	var sum float64
	for i := range h1 {
		sum += math.Abs(h1[i] - h2[i])
	}
	return sum
}

func chebyshev(h1, h2 histogram.Histogram) float64 {
	var best float64
	for i := range h1 {
		best = math.Max(best, math.Abs(h1[i]-h2[i]))
	}
	return best
}

func cosineAngle(h1, h2 histogram.Histogram) float64 {
	n1, n2 := l2Norm(h1), l2Norm(h2)
	var dot float64
	for i := range h1 {
		dot += (h1[i] / n1) * (h2[i] / n2)
	}
	return dot
}

func l2Norm(h histogram.Histogram) float64 {
	var sum float64
	for _, v := range h {
		sum += v * v
	}
	return math.Sqrt(sum)
}

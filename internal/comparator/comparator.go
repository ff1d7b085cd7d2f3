// Package comparator provides the pluggable histogram comparison strategies
// used by the rankers. Every comparator carries an explicit Reversed flag:
// true when a higher score means a closer match (similarity metrics), false
// when a lower score does (distance metrics).
package comparator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/histogram"
	apperrors "github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/errors"
)

// Comparator scores the similarity of two equal-length histograms.
type Comparator interface {
	Compare(h1, h2 histogram.Histogram) float64
	Reversed() bool
	Name() string
}

type metric struct {
	name     string
	reversed bool
	fn       func(h1, h2 histogram.Histogram) float64
}

func (m metric) Compare(h1, h2 histogram.Histogram) float64 {
	if len(h1) != len(h2) {
		panic(fmt.Sprintf("comparator %s: histogram length mismatch %d != %d", m.name, len(h1), len(h2)))
	}
	return m.fn(h1, h2)
}

func (m metric) Reversed() bool { return m.reversed }

func (m metric) Name() string { return m.name }

func (m metric) String() string { return m.name }

func Correlation() Comparator {
	return metric{name: "correlation", reversed: true, fn: correlation}
}

func ChiSquared() Comparator {
	return metric{name: "chi-squared", fn: chiSquared}
}

func Intersection() Comparator {
	return metric{name: "intersection", reversed: true, fn: intersection}
}

// Hellinger is the OpenCV alias of Bhattacharyya; both names are kept so
// configurations written against either one resolve.
func Hellinger() Comparator {
	return metric{name: "hellinger", fn: bhattacharyya}
}

func Bhattacharyya() Comparator {
	return metric{name: "bhattacharyya", fn: bhattacharyya}
}

func ChiSquaredAlt() Comparator {
	return metric{name: "chi-squared-alt", fn: chiSquaredAlt}
}

func KullbackLeibler() Comparator {
	return metric{name: "kullback-leibler", fn: kullbackLeibler}
}

func Euclidean() Comparator {
	return metric{name: "euclidean", fn: euclidean}
}

func CityBlock() Comparator {
	return metric{name: "cityblock", fn: cityBlock}
}

func Chebyshev() Comparator {
	return metric{name: "chebyshev", fn: chebyshev}
}

// CosineAngle normalises both histograms to unit length and returns their
// dot product. A zero histogram produces NaN.
func CosineAngle() Comparator {
	return metric{name: "cosine", reversed: true, fn: cosineAngle}
}

var registry = map[string]func() Comparator{
	"correlation":      Correlation,
	"chi-squared":      ChiSquared,
	"intersection":     Intersection,
	"hellinger":        Hellinger,
	"bhattacharyya":    Bhattacharyya,
	"chi-squared-alt":  ChiSquaredAlt,
	"kullback-leibler": KullbackLeibler,
	"euclidean":        Euclidean,
	"cityblock":        CityBlock,
	"chebyshev":        Chebyshev,
	"cosine":           CosineAngle,
}

// ByName resolves a comparator from its configuration name. Matching is
// case-insensitive.
func ByName(name string) (Comparator, error) {
	ctor, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: unknown comparator %q (known: %s)",
			apperrors.ErrInvalidInput, name, strings.Join(Names(), ", "))
	}
	return ctor(), nil
}

// Names lists every registered comparator name in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

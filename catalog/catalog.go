// Package catalog holds the named example integrals, each with its closed form.
package catalog

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"mc-integrator/integrand"
	"mc-integrator/region"
)

// ErrUnknownProblem is returned by Lookup for names not in the catalog.
var ErrUnknownProblem = errors.New("unknown problem")

// Problem is a ready-to-run integral.
type Problem struct {
	Name        string
	Description string
	Region      region.Region
	Integrand   integrand.Integrand
	Predicate   integrand.Predicate
	Exact       float64
}

// WithRegion returns a copy of p over a different region. The exact value
// only holds for the original region, so it is cleared to NaN.
func (p Problem) WithRegion(r region.Region) Problem {
	p.Region = r
	p.Exact = math.NaN()
	return p
}

// HasExact reports whether the closed form is known.
func (p Problem) HasExact() bool { return !math.IsNaN(p.Exact) }

var builtin = map[string]func() Problem{
	"pi": func() Problem {
		return Problem{
			Name:        "pi",
			Description: "area of the unit disc sampled from [-1,1]^2",
			Region:      region.MustNew([]float64{-1, -1}, []float64{1, 1}),
			Integrand:   integrand.Constant(1),
			Predicate:   integrand.Ball([]float64{0, 0}, 1),
			Exact:       math.Pi,
		}
	},
	"square-1d": func() Problem {
		return Problem{
			Name:        "square-1d",
			Description: "x^2 on [0,1]",
			Region:      region.MustNew([]float64{0}, []float64{1}),
			Integrand:   integrand.Func(func(x []float64) float64 { return x[0] * x[0] }),
			Exact:       1.0 / 3.0,
		}
	},
	"square-1d-wide": func() Problem {
		return Problem{
			Name:        "square-1d-wide",
			Description: "x^2 on [0,2]",
			Region:      region.MustNew([]float64{0}, []float64{2}),
			Integrand:   integrand.Func(func(x []float64) float64 { return x[0] * x[0] }),
			Exact:       8.0 / 3.0,
		}
	},
	"gaussian-1d": func() Problem {
		return Problem{
			Name:        "gaussian-1d",
			Description: "exp(-x^2) on [-3,3]",
			Region:      region.MustNew([]float64{-3}, []float64{3}),
			Integrand:   integrand.Func(func(x []float64) float64 { return math.Exp(-x[0] * x[0]) }),
			Exact:       math.Sqrt(math.Pi) * math.Erf(3),
		}
	},
	"sphere-3d": func() Problem {
		return Problem{
			Name:        "sphere-3d",
			Description: "volume of the unit ball sampled from [-1,1]^3",
			Region:      region.MustNew([]float64{-1, -1, -1}, []float64{1, 1, 1}),
			Integrand:   integrand.Constant(1),
			Predicate:   integrand.Ball([]float64{0, 0, 0}, 1),
			Exact:       4.0 / 3.0 * math.Pi,
		}
	},
	"cube-sum-3d": func() Problem {
		return Problem{
			Name:        "cube-sum-3d",
			Description: "x+y+z on [0,1]^3",
			Region:      region.MustNew([]float64{0, 0, 0}, []float64{1, 1, 1}),
			Integrand:   integrand.Func(func(x []float64) float64 { return x[0] + x[1] + x[2] }),
			Exact:       1.5,
		}
	},
	"masked-2d": func() Problem {
		return Problem{
			Name:        "masked-2d",
			Description: "x*y over the quarter disc x,y >= 0, x^2+y^2 <= 1",
			Region:      region.MustNew([]float64{0, 0}, []float64{1, 1}),
			Integrand:   integrand.Func(func(x []float64) float64 { return x[0] * x[1] }),
			Predicate:   integrand.Ball([]float64{0, 0}, 1),
			Exact:       1.0 / 8.0,
		}
	},
}

// MeanSquare is (3/d)·Σ x_i² on [0,1]^d. Its integral is 1 for every d and
// its variance shrinks with d, which makes it the reference for dimension studies.
func MeanSquare(d int) (Problem, error) {
	reg, err := region.Unit(d)
	if err != nil {
		return Problem{}, err
	}
	return Problem{
		Name:        fmt.Sprintf("mean-square-%dd", d),
		Description: fmt.Sprintf("(3/%d)*sum x_i^2 on [0,1]^%d", d, d),
		Region:      reg,
		Integrand: integrand.Func(func(x []float64) float64 {
			var s float64
			for _, xi := range x {
				s += xi * xi
			}
			return 3 * s / float64(len(x))
		}),
		Exact: 1,
	}, nil
}

// Product is Π 2x_i on [0,1]^d. Its integral is 1 but its variance is
// (4/3)^d - 1, so it gets harder as d grows.
func Product(d int) (Problem, error) {
	reg, err := region.Unit(d)
	if err != nil {
		return Problem{}, err
	}
	return Problem{
		Name:        fmt.Sprintf("product-%dd", d),
		Description: fmt.Sprintf("prod 2*x_i on [0,1]^%d", d),
		Region:      reg,
		Integrand: integrand.Func(func(x []float64) float64 {
			p := 1.0
			for _, xi := range x {
				p *= 2 * xi
			}
			return p
		}),
		Exact: 1,
	}, nil
}

// Lookup returns the named problem. Besides the fixed names it accepts
// "mean-square-<d>d" and "product-<d>d" for any d >= 1.
func Lookup(name string) (Problem, error) {
	if mk, ok := builtin[name]; ok {
		return mk(), nil
	}
	for prefix, mk := range map[string]func(int) (Problem, error){
		"mean-square-": MeanSquare,
		"product-":     Product,
	} {
		if d, ok := parseDim(name, prefix); ok {
			return mk(d)
		}
	}
	return Problem{}, fmt.Errorf("%w: %q", ErrUnknownProblem, name)
}

func parseDim(name, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, "d")
	if !ok {
		return 0, false
	}
	d, err := strconv.Atoi(rest)
	if err != nil || d < 1 {
		return 0, false
	}
	return d, true
}

// Names lists the fixed problem names in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every fixed problem in name order.
func All() []Problem {
	names := Names()
	out := make([]Problem, 0, len(names))
	for _, name := range names {
		out = append(out, builtin[name]())
	}
	return out
}

// Package integrand holds the functions the estimator evaluates and the
// membership predicates that restrict a region.
package integrand

// Integrand is evaluated once per accepted sample point.
// Evaluate must not retain x; the slice is reused for the next sample.
type Integrand interface {
	Evaluate(x []float64) (float64, error)
}

// Func adapts a total function that cannot fail.
type Func func(x []float64) float64

func (f Func) Evaluate(x []float64) (float64, error) {
	return f(x), nil
}

// Checked adapts a function that may fail. Its error reaches the caller
// of the estimator unchanged.
type Checked func(x []float64) (float64, error)

func (f Checked) Evaluate(x []float64) (float64, error) {
	return f(x)
}

// Constant returns the integrand f(x) = c.
func Constant(c float64) Integrand {
	return Func(func([]float64) float64 { return c })
}

// Mask restricts f to the points accepted by p; rejected points contribute 0.
// A nil predicate returns f unchanged.
func Mask(f Integrand, p Predicate) Integrand {
	if p == nil {
		return f
	}
	return NewMasked(f, p)
}

// Masked is the composition predicate(x) ? f(x) : 0.
type Masked struct {
	f Integrand
	p Predicate
}

// NewMasked composes f with p. A nil predicate accepts every point.
func NewMasked(f Integrand, p Predicate) *Masked {
	if p == nil {
		p = AcceptAll
	}
	return &Masked{f: f, p: p}
}

func (m *Masked) Evaluate(x []float64) (float64, error) {
	v, _, err := m.Contribute(x)
	return v, err
}

// Contribute returns the contribution of x and whether the predicate accepted it.
// f is only evaluated for accepted points.
func (m *Masked) Contribute(x []float64) (float64, bool, error) {
	if !m.p(x) {
		return 0, false, nil
	}
	v, err := m.f.Evaluate(x)
	return v, true, err
}

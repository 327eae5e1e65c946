package integrand

// Predicate decides region membership. It must be pure.
type Predicate func(x []float64) bool

// AcceptAll includes every point.
func AcceptAll(x []float64) bool { return true }

// Ball accepts points within radius of center (boundary included).
func Ball(center []float64, radius float64) Predicate {
	c := append([]float64(nil), center...)
	r2 := radius * radius
	return func(x []float64) bool {
		var s float64
		for i, xi := range x {
			d := xi - c[i]
			s += d * d
		}
		return s <= r2
	}
}

// HalfSpace accepts points with dot(normal, x) <= offset.
func HalfSpace(normal []float64, offset float64) Predicate {
	n := append([]float64(nil), normal...)
	return func(x []float64) bool {
		var s float64
		for i, xi := range x {
			s += n[i] * xi
		}
		return s <= offset
	}
}

// And accepts points accepted by every predicate.
func And(ps ...Predicate) Predicate {
	return func(x []float64) bool {
		for _, p := range ps {
			if !p(x) {
				return false
			}
		}
		return true
	}
}

// Not inverts p.
func Not(p Predicate) Predicate {
	return func(x []float64) bool { return !p(x) }
}

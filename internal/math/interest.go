package math

// SlotsPerYear is the number of 400ms slots in a 365-day year.
const SlotsPerYear = 78_840_000

// CompoundRate returns (1 + rate)^slots using exponentiation by squaring.
// Every intermediate is >= 1, so truncation can never push the factor
// below one.
func CompoundRate(rate Number, slots uint64) (Number, error) {
	base, err := One().Add(rate)
	if err != nil {
		return Number{}, err
	}

	result := One()
	for slots > 0 {
		if slots&1 == 1 {
			if result, err = result.Mul(base); err != nil {
				return Number{}, err
			}
		}
		slots >>= 1
		if slots > 0 {
			if base, err = base.Mul(base); err != nil {
				return Number{}, err
			}
		}
	}
	return result, nil
}

// InterpolateLinear returns the value on the segment (x0, y0)-(x1, y1) at x.
// x must lie within [x0, x1] and y1 >= y0.
func InterpolateLinear(x, x0, x1, y0, y1 Number) (Number, error) {
	if x1.Lte(x0) {
		return y0, nil
	}
	return Compute(x).
		Sub(x0).
		Mul(y1.SaturatingSub(y0)).
		Div(x1.SaturatingSub(x0)).
		Add(y0).
		Result()
}

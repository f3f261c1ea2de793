package math

// Calc chains Number operations and keeps the first error, so multi-step
// formulas read as a single expression:
//
//	v, err := Compute(minRatio).Mul(loan).Sub(collateral).Div(denom).Result()
type Calc struct {
	n   Number
	err error
}

// Compute starts a chain at n.
func Compute(n Number) Calc {
	return Calc{n: n}
}

func (c Calc) Add(o Number) Calc {
	if c.err != nil {
		return c
	}
	c.n, c.err = c.n.Add(o)
	return c
}

func (c Calc) Sub(o Number) Calc {
	if c.err != nil {
		return c
	}
	c.n, c.err = c.n.Sub(o)
	return c
}

func (c Calc) SaturatingSub(o Number) Calc {
	if c.err != nil {
		return c
	}
	c.n = c.n.SaturatingSub(o)
	return c
}

func (c Calc) Mul(o Number) Calc {
	if c.err != nil {
		return c
	}
	c.n, c.err = c.n.Mul(o)
	return c
}

func (c Calc) Div(o Number) Calc {
	if c.err != nil {
		return c
	}
	c.n, c.err = c.n.Div(o)
	return c
}

// Result returns the value and the first error encountered.
func (c Calc) Result() (Number, error) {
	if c.err != nil {
		return Number{}, c.err
	}
	return c.n, nil
}

// Err returns the first error encountered.
func (c Calc) Err() error { return c.err }

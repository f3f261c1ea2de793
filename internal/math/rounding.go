package math

// RoundingMode selects the direction used when a fixed-point result has to be
// turned into an integral token or note amount.
type RoundingMode int

const (
	RoundDown RoundingMode = iota
	RoundUp
)

func (m RoundingMode) String() string {
	switch m {
	case RoundDown:
		return "Down"
	case RoundUp:
		return "Up"
	default:
		return "Unknown"
	}
}

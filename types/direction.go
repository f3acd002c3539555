package types

import "fmt"

// Direction selects whether lower or higher rewards are considered better.
// A run fixes its direction at construction time; every component of the
// exchange must agree on it.
type Direction string

const (
	// Minimize treats lower rewards as better.
	Minimize Direction = "minimize"
	// Maximize treats higher rewards as better.
	Maximize Direction = "maximize"
)

// Validate reports whether the direction is one of the two known values.
func (d Direction) Validate() error {
	switch d {
	case Minimize, Maximize:
		return nil
	default:
		return NewError(ErrInvalidConfig, fmt.Sprintf("unknown direction %q", string(d)))
	}
}

// String returns the direction name.
func (d Direction) String() string {
	return string(d)
}

// Comparator returns the strict improvement predicate for the direction:
// the returned function reports whether reward a beats reward b. Components
// capture the comparator once at construction instead of re-deciding the
// direction at every comparison site.
func (d Direction) Comparator() func(a, b float64) bool {
	if d == Maximize {
		return func(a, b float64) bool { return a > b }
	}
	return func(a, b float64) bool { return a < b }
}

// Better reports whether reward a is a strict improvement over reward b.
// Convenience for one-off comparisons; hot paths use Comparator.
func (d Direction) Better(a, b float64) bool {
	if d == Maximize {
		return a > b
	}
	return a < b
}

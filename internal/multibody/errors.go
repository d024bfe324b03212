package multibody

import (
	"errors"
	"fmt"
)

// Domain errors for tree realization.
var (
	// ErrCoincidentStations indicates a distance constraint whose two
	// stations are (numerically) at the same world point, leaving the
	// separation direction undefined.
	ErrCoincidentStations = errors.New("multibody: distance constraint stations are coincident")

	// ErrInvalidState indicates a position or velocity vector containing
	// NaN or Inf.
	ErrInvalidState = errors.New("multibody: invalid state vector (NaN or Inf detected)")

	// ErrDimensionMismatch indicates an input vector whose length does not
	// match the tree's aggregate coordinate or speed count.
	ErrDimensionMismatch = errors.New("multibody: dimension mismatch between vector and tree")
)

// ConstraintError wraps a domain error with the index of the offending
// distance constraint.
type ConstraintError struct {
	Constraint int
	Wrapped    error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint %d: %v", e.Constraint, e.Wrapped)
}

func (e *ConstraintError) Unwrap() error { return e.Wrapped }

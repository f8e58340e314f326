package embodiedflows

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownMaterial    = errors.New("unknown material")
	ErrInvalidCoefficient = errors.New("invalid coefficient")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrUnitMismatch       = errors.New("unit mismatch")
	ErrEmptyAssembly      = errors.New("empty assembly")
)

// UnknownMaterialError is returned by resolvers when a reference id does not exist.
type UnknownMaterialError struct {
	ID string
	// Suggestions are close matches the resolver found, best first
	Suggestions []string
}

func (err *UnknownMaterialError) Error() string {
	if len(err.Suggestions) == 0 {
		return fmt.Sprintf("unknown material %q", err.ID)
	}
	return fmt.Sprintf("unknown material %q (did you mean: %s)", err.ID, strings.Join(err.Suggestions, ", "))
}

func (err *UnknownMaterialError) Is(target error) bool { return target == ErrUnknownMaterial }

// InvalidCoefficientError reports a coefficient, density, wastage, reduction
// factor or service life outside of its allowed range.
type InvalidCoefficientError struct {
	Subject string
	Field   string
	Value   float64
}

func (err *InvalidCoefficientError) Error() string {
	return fmt.Sprintf("invalid %s for %s: %g", err.Field, err.Subject, err.Value)
}

func (err *InvalidCoefficientError) Is(target error) bool { return target == ErrInvalidCoefficient }

// InvalidQuantityError reports a non-positive quantity or analysis period.
type InvalidQuantityError struct {
	Subject string
	Value   float64
}

func (err *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity for %s: %g (must be greater than 0)", err.Subject, err.Value)
}

func (err *InvalidQuantityError) Is(target error) bool { return target == ErrInvalidQuantity }

// UnitMismatchError reports a pairing of units with no defined conversion.
type UnitMismatchError struct {
	Subject string
	From    FunctionalUnit
	To      FunctionalUnit
}

func (err *UnitMismatchError) Error() string {
	if err.To == "" {
		return fmt.Sprintf("unit mismatch (%s): unsupported unit", err.Subject)
	}
	return fmt.Sprintf("unit mismatch (%s): cannot convert %s to %s", err.Subject, err.From, err.To)
}

func (err *UnitMismatchError) Is(target error) bool { return target == ErrUnitMismatch }

// EmptyAssemblyError is returned when an assembly has no component or a built
// asset has no assembly.
type EmptyAssemblyError struct {
	Name string
}

func (err *EmptyAssemblyError) Error() string {
	return fmt.Sprintf("%s has nothing to aggregate", err.Name)
}

func (err *EmptyAssemblyError) Is(target error) bool { return target == ErrEmptyAssembly }

// ErrorKind returns a stable name for taxonomy errors, "internal" otherwise.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrUnknownMaterial):
		return "unknown_material"
	case errors.Is(err, ErrInvalidCoefficient):
		return "invalid_coefficient"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrUnitMismatch):
		return "unit_mismatch"
	case errors.Is(err, ErrEmptyAssembly):
		return "empty_assembly"
	}
	return "internal"
}

// IsInvalidInput reports whether err belongs to the input error taxonomy.
func IsInvalidInput(err error) bool {
	return ErrorKind(err) != "internal"
}

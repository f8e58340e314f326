package embodiedflows

import (
	"fmt"
	"math"
)

// ResolveQuantity converts a raw quantity measured as source into the target
// functional unit. Only identity and mass/volume conversions through density
// are defined.
func ResolveQuantity(raw float64, source, target FunctionalUnit, density float64) (float64, error) {
	subject := fmt.Sprintf("%g %s", raw, source)
	if math.IsNaN(raw) || math.IsInf(raw, 0) || raw <= 0 {
		return 0, &InvalidQuantityError{Subject: string(source) + " selection", Value: raw}
	}

	switch {
	case source == target:
		return raw, nil
	case source == Mass && target == Volume:
		if density <= 0 || math.IsNaN(density) {
			return 0, &InvalidCoefficientError{Subject: subject, Field: "density", Value: density}
		}
		return raw / density, nil
	case source == Volume && target == Mass:
		if density <= 0 || math.IsNaN(density) {
			return 0, &InvalidCoefficientError{Subject: subject, Field: "density", Value: density}
		}
		return raw * density, nil
	}

	return 0, &UnitMismatchError{Subject: subject, From: source, To: target}
}

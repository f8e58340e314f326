package embodiedflows

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Flow is one of the embodied environmental flows tracked by the engine.
type Flow string

const (
	// Energy in megajoules
	Energy Flow = "energy"
	// Water in litres
	Water Flow = "water"
	// GHG emissions in kilograms of CO2 equivalent
	GHG Flow = "ghg"
)

// DefinedFlows lists every flow in reporting order.
var DefinedFlows = []Flow{Energy, Water, GHG}

// Unit returns the unit the flow is expressed in.
func (f Flow) Unit() string {
	switch f {
	case Energy:
		return "MJ"
	case Water:
		return "L"
	case GHG:
		return "kgCO₂e"
	}
	return ""
}

// PrintName returns the human name of the flow.
func (f Flow) PrintName() string {
	switch f {
	case Energy:
		return "Energy"
	case Water:
		return "Water"
	case GHG:
		return "Greenhouse Gas Emissions"
	}
	return string(f)
}

// Flows holds one value per defined flow. Depending on the context values are
// coefficients per functional unit, reduction factors or absolute quantities.
type Flows struct {
	Energy float64 `json:"energy"`
	Water  float64 `json:"water"`
	GHG    float64 `json:"ghg"`
}

func (f Flows) Get(flow Flow) float64 {
	switch flow {
	case Energy:
		return f.Energy
	case Water:
		return f.Water
	case GHG:
		return f.GHG
	}
	return 0
}

func (f *Flows) Set(flow Flow, v float64) {
	switch flow {
	case Energy:
		f.Energy = v
	case Water:
		f.Water = v
	case GHG:
		f.GHG = v
	}
}

func (f Flows) Add(o Flows) Flows {
	return Flows{Energy: f.Energy + o.Energy, Water: f.Water + o.Water, GHG: f.GHG + o.GHG}
}

func (f Flows) Scale(factor float64) Flows {
	return Flows{Energy: f.Energy * factor, Water: f.Water * factor, GHG: f.GHG * factor}
}

// FunctionalUnit is the physical unit a material's coefficients are expressed per.
type FunctionalUnit string

const (
	Mass   FunctionalUnit = "kg"
	Length FunctionalUnit = "m"
	Area   FunctionalUnit = "m²"
	Volume FunctionalUnit = "m³"
	Count  FunctionalUnit = "no."
)

// ParseFunctionalUnit normalizes user input ("m2", "M3", "count", ...) into a FunctionalUnit.
func ParseFunctionalUnit(s string) (FunctionalUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "kg", "mass":
		return Mass, nil
	case "m", "length":
		return Length, nil
	case "m²", "m2", "area":
		return Area, nil
	case "m³", "m3", "volume":
		return Volume, nil
	case "no.", "no", "count", "unit", "units":
		return Count, nil
	}
	return "", &UnitMismatchError{
		Subject: fmt.Sprintf("functional unit %q", s),
		From:    FunctionalUnit(s),
	}
}

func (fu FunctionalUnit) Valid() bool {
	switch fu {
	case Mass, Length, Area, Volume, Count:
		return true
	}
	return false
}

// GeometryKind is the reference quantity an assembly is normalized to.
type GeometryKind string

const (
	Unit       GeometryKind = "unit"
	Linear     GeometryKind = "linear"
	Surface    GeometryKind = "surface"
	Volumetric GeometryKind = "volumetric"
)

// ParseGeometryKind accepts either a geometry kind name or its natural unit.
func ParseGeometryKind(s string) (GeometryKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unit", "units", "no.", "no", "count":
		return Unit, nil
	case "linear", "m", "length":
		return Linear, nil
	case "surface", "m²", "m2", "area":
		return Surface, nil
	case "volumetric", "m³", "m3", "volume":
		return Volumetric, nil
	}
	return "", &UnitMismatchError{Subject: fmt.Sprintf("geometry kind %q", s)}
}

// NaturalUnit returns the unit installed quantities of the geometry kind are measured in.
func (g GeometryKind) NaturalUnit() FunctionalUnit {
	switch g {
	case Unit:
		return Count
	case Linear:
		return Length
	case Surface:
		return Area
	case Volumetric:
		return Volume
	}
	return ""
}

// ServiceLife in years. Infinite service lives are never replaced.
type ServiceLife float64

var Infinite = ServiceLife(math.Inf(1))

// Years returns a finite service life.
func Years(n float64) ServiceLife {
	return ServiceLife(n)
}

func (sl ServiceLife) IsInfinite() bool {
	return math.IsInf(float64(sl), 1)
}

func (sl ServiceLife) valid() bool {
	return !math.IsNaN(float64(sl)) && sl > 0
}

func (sl ServiceLife) String() string {
	if sl.IsInfinite() {
		return "infinite"
	}
	return fmt.Sprintf("%g years", float64(sl))
}

// MarshalText renders infinite service lives as "infinite" since JSON has no infinity.
func (sl ServiceLife) MarshalText() ([]byte, error) {
	if sl.IsInfinite() {
		return []byte("infinite"), nil
	}
	return []byte(fmt.Sprintf("%g", float64(sl))), nil
}

func (sl *ServiceLife) UnmarshalText(text []byte) error {
	if string(text) == "infinite" {
		*sl = Infinite
		return nil
	}
	years, err := strconv.ParseFloat(string(text), 64)
	if err != nil {
		return fmt.Errorf("invalid service life %q: %w", text, err)
	}
	*sl = Years(years)
	return nil
}

// periodTolerance absorbs binary rounding when a period is an exact multiple
// of a service life, e.g. 0.3 / 0.1.
const periodTolerance = 1e-9

// Replacements returns how many times a component with the given service life
// is replaced during the period. The initial installation is not a replacement,
// and a replacement falling exactly at the end of the period does not happen.
func Replacements(periodYears float64, sl ServiceLife) int {
	if sl.IsInfinite() || !sl.valid() || float64(sl) >= periodYears {
		return 0
	}

	ratio := periodYears / float64(sl)
	if rounded := math.Round(ratio); math.Abs(ratio-rounded) <= periodTolerance*rounded {
		return int(rounded) - 1
	}

	return int(math.Ceil(ratio)) - 1
}

package embodiedflows

import (
	"fmt"
	"math"
)

// Record is the reference data of a material as returned by a Resolver.
type Record struct {
	ID             string
	Name           string
	Category       string
	FunctionalUnit FunctionalUnit
	// Density in kg/m³, 0 when unknown
	Density      float64
	Coefficients Flows
	// ServiceLife is the indicative service life, Infinite when the database has none
	ServiceLife ServiceLife
	// Wastage is the indicative wastage fraction
	Wastage float64
	DOI     string
	// ProcessShares is the share of the hybrid coefficient coming from process data
	ProcessShares Flows
}

// Resolver gives access to the reference materials database. Implementations
// must be safe for concurrent reads.
type Resolver interface {
	Lookup(id string) (Record, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(id string) (Record, error)

func (fn ResolverFunc) Lookup(id string) (Record, error) { return fn(id) }

// Overrides are the user adjustments applied on top of a material record.
type Overrides struct {
	// Wastage fraction in [0,1), nil keeps the record default
	Wastage *float64
	// ServiceLife, nil keeps the record default
	ServiceLife *ServiceLife
	// Reduction factors in [0,1] discounting each coefficient
	Reduction Flows
	Comments  string
}

// CustomSpec describes a material built from user supplied coefficients.
type CustomSpec struct {
	Name           string
	Category       string
	FunctionalUnit FunctionalUnit
	Density        float64
	Coefficients   Flows
}

// Material is a finalized material specification. It is a value object and
// must not be modified once it feeds an assembly.
type Material struct {
	ID             string         `json:"id,omitempty"`
	Name           string         `json:"name"`
	Category       string         `json:"category,omitempty"`
	FunctionalUnit FunctionalUnit `json:"functional_unit"`
	Density        float64        `json:"density"`
	// Base coefficients as found in the record, kept for traceability
	Base      Flows `json:"base_coefficients"`
	Reduction Flows `json:"reduction_factors"`
	// Effective coefficients used by every calculation
	Effective     Flows       `json:"effective_coefficients"`
	Wastage       float64     `json:"wastage"`
	ServiceLife   ServiceLife `json:"service_life"`
	DOI           string      `json:"doi,omitempty"`
	ProcessShares Flows       `json:"process_shares"`
	Comments      string      `json:"comments,omitempty"`
	Custom        bool        `json:"custom"`
}

// Key is the base breakdown key of the material. An analysis suffixes it when
// distinct materials share it, see Result.MaterialKey.
func (m *Material) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return "custom:" + m.Name
}

func (m *Material) String() string {
	return fmt.Sprintf("%s (%s)", m.Name, m.FunctionalUnit)
}

// ResolveMaterial looks up id with the resolver and applies the overrides.
func ResolveMaterial(resolver Resolver, id string, overrides Overrides) (*Material, error) {
	record, err := resolver.Lookup(id)
	if err != nil {
		return nil, err
	}
	if record.ID == "" {
		record.ID = id
	}
	if record.Name == "" {
		record.Name = record.ID
	}

	return newMaterial(record, overrides, false)
}

// NewCustomMaterial builds a material from user coefficients, bypassing any resolver.
func NewCustomMaterial(spec CustomSpec, overrides Overrides) (*Material, error) {
	if spec.Name == "" {
		spec.Name = "Custom Material"
	}
	record := Record{
		Name:           spec.Name,
		Category:       spec.Category,
		FunctionalUnit: spec.FunctionalUnit,
		Density:        spec.Density,
		Coefficients:   spec.Coefficients,
		ServiceLife:    Infinite,
	}

	return newMaterial(record, overrides, true)
}

func newMaterial(record Record, overrides Overrides, custom bool) (*Material, error) {
	subject := "material " + record.Name
	if !custom {
		subject = fmt.Sprintf("material %q", record.ID)
	}

	if !record.FunctionalUnit.Valid() {
		return nil, &UnitMismatchError{Subject: subject, From: record.FunctionalUnit}
	}

	if err := validateNonNegative(subject, "density", record.Density); err != nil {
		return nil, err
	}

	for _, flow := range DefinedFlows {
		if err := validateNonNegative(subject, string(flow)+" coefficient", record.Coefficients.Get(flow)); err != nil {
			return nil, err
		}
		reduction := overrides.Reduction.Get(flow)
		if math.IsNaN(reduction) || reduction < 0 || reduction > 1 {
			return nil, &InvalidCoefficientError{Subject: subject, Field: string(flow) + " reduction factor", Value: reduction}
		}
	}

	wastage := record.Wastage
	if overrides.Wastage != nil {
		wastage = *overrides.Wastage
	}
	if err := validateWastage(subject, wastage); err != nil {
		return nil, err
	}

	serviceLife := record.ServiceLife
	if serviceLife == 0 {
		serviceLife = Infinite
	}
	if overrides.ServiceLife != nil {
		serviceLife = *overrides.ServiceLife
	}
	if !serviceLife.valid() {
		return nil, &InvalidCoefficientError{Subject: subject, Field: "service life", Value: float64(serviceLife)}
	}

	effective := Flows{}
	for _, flow := range DefinedFlows {
		effective.Set(flow, record.Coefficients.Get(flow)*(1-overrides.Reduction.Get(flow)))
	}

	id := record.ID
	if custom {
		id = ""
	}

	return &Material{
		ID:             id,
		Name:           record.Name,
		Category:       record.Category,
		FunctionalUnit: record.FunctionalUnit,
		Density:        record.Density,
		Base:           record.Coefficients,
		Reduction:      overrides.Reduction,
		Effective:      effective,
		Wastage:        wastage,
		ServiceLife:    serviceLife,
		DOI:            record.DOI,
		ProcessShares:  record.ProcessShares,
		Comments:       overrides.Comments,
		Custom:         custom,
	}, nil
}

func validateNonNegative(subject, field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return &InvalidCoefficientError{Subject: subject, Field: field, Value: v}
	}
	return nil
}

func validateWastage(subject string, w float64) error {
	if math.IsNaN(w) || w < 0 || w >= 1 {
		return &InvalidCoefficientError{Subject: subject, Field: "wastage", Value: w}
	}
	return nil
}

package embodiedflows

import (
	"fmt"
	"math"
	"slices"
)

// Component pairs a material with its quantity per assembly unit, expressed in
// the material functional unit.
type Component struct {
	Material *Material
	Quantity float64
	// ServiceLife overrides every other service life when set
	ServiceLife *ServiceLife
	// Wastage overrides every other wastage fraction when set
	Wastage *float64
}

type ComponentOption func(c *Component)

func WithComponentServiceLife(sl ServiceLife) ComponentOption {
	return func(c *Component) {
		c.ServiceLife = &sl
	}
}

func WithComponentWastage(w float64) ComponentOption {
	return func(c *Component) {
		c.Wastage = &w
	}
}

// NewComponent resolves a raw quantity measured as kind into the material
// functional unit and returns the resulting component.
func NewComponent(material *Material, raw float64, kind FunctionalUnit, opts ...ComponentOption) (Component, error) {
	if material == nil {
		return Component{}, &UnknownMaterialError{ID: "<nil>"}
	}

	quantity, err := ResolveQuantity(raw, kind, material.FunctionalUnit, material.Density)
	if err != nil {
		return Component{}, err
	}

	c := Component{
		Material: material,
		Quantity: quantity,
	}
	for _, opt := range opts {
		opt(&c)
	}

	return c, nil
}

// Assembly combines materials into a functional building part whose
// coefficients are normalized to one unit of its geometry kind. Assemblies are
// immutable once aggregated.
type Assembly struct {
	name         string
	category     string
	comments     string
	geometry     GeometryKind
	components   []Component
	serviceLife  *ServiceLife
	wastage      *float64
	coefficients Flows
}

type AssemblyOption func(a *Assembly)

// WithServiceLife overrides the service life of every component without its own override.
func WithServiceLife(sl ServiceLife) AssemblyOption {
	return func(a *Assembly) {
		a.serviceLife = &sl
	}
}

// WithWastage overrides the wastage of every component without its own override.
func WithWastage(w float64) AssemblyOption {
	return func(a *Assembly) {
		a.wastage = &w
	}
}

func WithComments(comments string) AssemblyOption {
	return func(a *Assembly) {
		a.comments = comments
	}
}

// Aggregate builds an assembly from its components.
func Aggregate(name, category string, geometry GeometryKind, components []Component, opts ...AssemblyOption) (*Assembly, error) {
	if name == "" {
		name = "Assembly"
	}
	if category == "" {
		category = name
	}
	subject := fmt.Sprintf("assembly %q", name)

	if geometry.NaturalUnit() == "" {
		return nil, &UnitMismatchError{Subject: subject, From: FunctionalUnit(geometry)}
	}

	if len(components) == 0 {
		return nil, &EmptyAssemblyError{Name: subject}
	}

	assembly := &Assembly{
		name:       name,
		category:   category,
		geometry:   geometry,
		components: slices.Clone(components),
	}

	for _, opt := range opts {
		opt(assembly)
	}

	if assembly.serviceLife != nil && !assembly.serviceLife.valid() {
		return nil, &InvalidCoefficientError{Subject: subject, Field: "service life override", Value: float64(*assembly.serviceLife)}
	}
	if assembly.wastage != nil {
		if err := validateWastage(subject, *assembly.wastage); err != nil {
			return nil, err
		}
	}

	for i, c := range assembly.components {
		componentSubject := fmt.Sprintf("%s component %d", subject, i+1)
		if c.Material == nil {
			return nil, &UnknownMaterialError{ID: componentSubject}
		}
		if math.IsNaN(c.Quantity) || math.IsInf(c.Quantity, 0) || c.Quantity <= 0 {
			return nil, &InvalidQuantityError{Subject: componentSubject + " (" + c.Material.Name + ")", Value: c.Quantity}
		}
		if c.ServiceLife != nil && !c.ServiceLife.valid() {
			return nil, &InvalidCoefficientError{Subject: componentSubject, Field: "service life override", Value: float64(*c.ServiceLife)}
		}
		if c.Wastage != nil {
			if err := validateWastage(componentSubject, *c.Wastage); err != nil {
				return nil, err
			}
		}

		assembly.coefficients = assembly.coefficients.Add(c.Material.Effective.Scale(c.Quantity))
	}

	return assembly, nil
}

func (a *Assembly) Name() string           { return a.name }
func (a *Assembly) Category() string       { return a.category }
func (a *Assembly) Comments() string       { return a.comments }
func (a *Assembly) Geometry() GeometryKind { return a.geometry }

// Components returns a copy of the assembly components in insertion order.
func (a *Assembly) Components() []Component {
	return slices.Clone(a.components)
}

// ServiceLifeOverride returns the assembly level service life, if any.
func (a *Assembly) ServiceLifeOverride() (ServiceLife, bool) {
	if a.serviceLife == nil {
		return 0, false
	}
	return *a.serviceLife, true
}

// WastageOverride returns the assembly level wastage, if any.
func (a *Assembly) WastageOverride() (float64, bool) {
	if a.wastage == nil {
		return 0, false
	}
	return *a.wastage, true
}

// Coefficients returns the flows of one assembly unit, wastage excluded.
func (a *Assembly) Coefficients() Flows {
	return a.coefficients
}

// InitialFlows returns the flows of one assembly unit including wastage.
func (a *Assembly) InitialFlows() Flows {
	total := Flows{}
	for _, c := range a.components {
		total = total.Add(c.Material.Effective.Scale(c.Quantity * (1 + a.wastageOf(c))))
	}
	return total
}

// serviceLifeOf resolves the service life of a component: component override,
// then assembly override, then material.
func (a *Assembly) serviceLifeOf(c Component) ServiceLife {
	if c.ServiceLife != nil {
		return *c.ServiceLife
	}
	if a.serviceLife != nil {
		return *a.serviceLife
	}
	return c.Material.ServiceLife
}

func (a *Assembly) wastageOf(c Component) float64 {
	if c.Wastage != nil {
		return *c.Wastage
	}
	if a.wastage != nil {
		return *a.wastage
	}
	return c.Material.Wastage
}

func (a *Assembly) String() string {
	return fmt.Sprintf("%s (%s, %d components)", a.name, a.geometry.NaturalUnit(), len(a.components))
}

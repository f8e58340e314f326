package project

import (
	"fmt"
	"log/slog"

	embodiedflows "github.com/superdango/embodied-flows"
)

// DefaultPeriod is used when a document declares no period of analysis.
const DefaultPeriod = 50

// Request resolves every material of the document with resolver and builds
// the analysis request. The comparison document inherits materials,
// assemblies and period it does not redefine.
func (doc *Document) Request(resolver embodiedflows.Resolver) (*embodiedflows.Request, error) {
	return doc.request(resolver, nil)
}

type scope struct {
	materials  map[string]*embodiedflows.Material
	assemblies map[string]*embodiedflows.Assembly
	period     float64
}

func (doc *Document) request(resolver embodiedflows.Resolver, parent *scope) (*embodiedflows.Request, error) {
	s := &scope{
		materials:  make(map[string]*embodiedflows.Material),
		assemblies: make(map[string]*embodiedflows.Assembly),
		period:     DefaultPeriod,
	}
	if parent != nil {
		for k, v := range parent.materials {
			s.materials[k] = v
		}
		for k, v := range parent.assemblies {
			s.assemblies[k] = v
		}
		s.period = parent.period
	}
	if doc.Period != 0 {
		s.period = doc.Period
	}

	for i, md := range doc.Materials {
		key := md.Key
		if key == "" {
			key = md.ID
		}
		if key == "" {
			return nil, fmt.Errorf("%w: material %d has neither key nor id", ErrInvalidDocument, i+1)
		}

		m, err := md.material(resolver)
		if err != nil {
			return nil, fmt.Errorf("material %q: %w", key, err)
		}
		s.materials[key] = m
	}

	for _, ad := range doc.Assemblies {
		a, err := ad.assembly(resolver, s)
		if err != nil {
			return nil, fmt.Errorf("assembly %q: %w", ad.Name, err)
		}
		s.assemblies[a.Name()] = a
	}

	req := &embodiedflows.Request{
		Name:        doc.Name,
		PeriodYears: s.period,
		Assemblies:  make([]embodiedflows.Instance, 0, len(doc.Uses)),
		BuiltAssets: make([]*embodiedflows.BuiltAsset, 0, len(doc.BuiltAssets)),
	}

	for _, use := range doc.Uses {
		instance, err := s.instance(use)
		if err != nil {
			return nil, err
		}
		req.Assemblies = append(req.Assemblies, instance)
	}

	for _, bd := range doc.BuiltAssets {
		instances := make([]embodiedflows.Instance, 0, len(bd.Instances))
		for _, id := range bd.Instances {
			instance, err := s.instance(id)
			if err != nil {
				return nil, fmt.Errorf("built asset %q: %w", bd.Name, err)
			}
			instances = append(instances, instance)
		}
		builtAsset, err := embodiedflows.NewBuiltAsset(bd.Name, instances, embodiedflows.WithBuiltAssetComments(bd.Comments))
		if err != nil {
			return nil, err
		}
		req.BuiltAssets = append(req.BuiltAssets, builtAsset)
	}

	if doc.Comparison != nil {
		comparison, err := doc.Comparison.request(resolver, s)
		if err != nil {
			return nil, fmt.Errorf("comparison: %w", err)
		}
		req.Comparison = comparison
	}

	slog.Debug("project resolved", "name", doc.Name, "materials", len(s.materials), "assemblies", len(s.assemblies))

	return req, nil
}

func (s *scope) instance(use InstanceDoc) (embodiedflows.Instance, error) {
	a, found := s.assemblies[use.Assembly]
	if !found {
		return embodiedflows.Instance{}, fmt.Errorf("%w: unknown assembly %q", ErrInvalidDocument, use.Assembly)
	}
	return embodiedflows.Instance{Assembly: a, Quantity: use.Quantity}, nil
}

// material resolves a catalog material or builds a custom one.
func (md MaterialDoc) material(resolver embodiedflows.Resolver) (*embodiedflows.Material, error) {
	overrides := embodiedflows.Overrides{
		Wastage:     percent(md.WastagePercent),
		ServiceLife: serviceLife(md.ServiceLife),
		Reduction: embodiedflows.Flows{
			Energy: md.ReductionPercent.Energy / 100,
			Water:  md.ReductionPercent.Water / 100,
			GHG:    md.ReductionPercent.GHG / 100,
		},
		Comments: md.Comments,
	}

	if md.Custom == nil {
		if md.ID == "" {
			return nil, fmt.Errorf("%w: catalog material without id", ErrInvalidDocument)
		}
		return embodiedflows.ResolveMaterial(resolver, md.ID, overrides)
	}

	fu, err := embodiedflows.ParseFunctionalUnit(md.Custom.FunctionalUnit)
	if err != nil {
		return nil, err
	}

	return embodiedflows.NewCustomMaterial(embodiedflows.CustomSpec{
		Name:           md.Custom.Name,
		Category:       md.Custom.Category,
		FunctionalUnit: fu,
		Density:        md.Custom.Density,
		Coefficients: embodiedflows.Flows{
			Energy: md.Custom.Energy,
			Water:  md.Custom.Water,
			GHG:    md.Custom.GHG,
		},
	}, overrides)
}

func (ad AssemblyDoc) assembly(resolver embodiedflows.Resolver, s *scope) (*embodiedflows.Assembly, error) {
	geometry, err := embodiedflows.ParseGeometryKind(ad.Geometry)
	if err != nil {
		return nil, err
	}

	components := make([]embodiedflows.Component, 0, len(ad.Components))
	for i, cd := range ad.Components {
		m, found := s.materials[cd.Material]
		if !found {
			// components may reference catalog ids directly
			m, err = embodiedflows.ResolveMaterial(resolver, cd.Material, embodiedflows.Overrides{})
			if err != nil {
				return nil, fmt.Errorf("component %d: %w", i+1, err)
			}
			s.materials[cd.Material] = m
		}

		unit := m.FunctionalUnit
		if cd.Unit != "" {
			unit, err = embodiedflows.ParseFunctionalUnit(cd.Unit)
			if err != nil {
				return nil, fmt.Errorf("component %d: %w", i+1, err)
			}
		}

		opts := make([]embodiedflows.ComponentOption, 0, 2)
		if sl := serviceLife(cd.ServiceLife); sl != nil {
			opts = append(opts, embodiedflows.WithComponentServiceLife(*sl))
		}
		if w := percent(cd.WastagePercent); w != nil {
			opts = append(opts, embodiedflows.WithComponentWastage(*w))
		}

		c, err := embodiedflows.NewComponent(m, cd.Quantity, unit, opts...)
		if err != nil {
			return nil, fmt.Errorf("component %d: %w", i+1, err)
		}
		components = append(components, c)
	}

	opts := []embodiedflows.AssemblyOption{embodiedflows.WithComments(ad.Comments)}
	if sl := serviceLife(ad.ServiceLife); sl != nil {
		opts = append(opts, embodiedflows.WithServiceLife(*sl))
	}
	if w := percent(ad.WastagePercent); w != nil {
		opts = append(opts, embodiedflows.WithWastage(*w))
	}

	return embodiedflows.Aggregate(ad.Name, ad.Category, geometry, components, opts...)
}

func percent(p *float64) *float64 {
	if p == nil {
		return nil
	}
	fraction := *p / 100
	return &fraction
}

// serviceLife maps 0 to never replaced.
func serviceLife(years *float64) *embodiedflows.ServiceLife {
	if years == nil {
		return nil
	}
	sl := embodiedflows.Years(*years)
	if *years == 0 {
		sl = embodiedflows.Infinite
	}
	return &sl
}

package demo

import (
	"github.com/superdango/embodied-flows/internal/project"
)

// Project returns a demonstration project: a concrete wall never replaced,
// compared with the same wall whose concrete lasts 20 years.
func Project() *project.Document {
	return &project.Document{
		Name:   "Wall",
		Period: 50,
		Materials: []project.MaterialDoc{
			{
				Key: "concrete",
				Custom: &project.CustomDoc{
					Name:           "Concrete",
					Category:       "Concrete",
					FunctionalUnit: "m³",
					Density:        2400,
					Energy:         200,
					Water:          1500,
					GHG:            30,
				},
				WastagePercent: ptr(5),
				ServiceLife:    ptr(0),
			},
		},
		Assemblies: []project.AssemblyDoc{
			{
				Name:     "Wall",
				Category: "Walls",
				Geometry: "volumetric",
				Components: []project.ComponentDoc{
					{Material: "concrete", Quantity: 1},
				},
			},
		},
		Uses: []project.InstanceDoc{
			{Assembly: "Wall", Quantity: 10},
		},
		Comparison: &project.Document{
			Name: "Wall, 20 years concrete",
			Assemblies: []project.AssemblyDoc{
				{
					Name:        "Wall",
					Category:    "Walls",
					Geometry:    "volumetric",
					ServiceLife: ptr(20),
					Components: []project.ComponentDoc{
						{Material: "concrete", Quantity: 1},
					},
				},
			},
			Uses: []project.InstanceDoc{
				{Assembly: "Wall", Quantity: 10},
			},
		},
	}
}

func ptr(f float64) *float64 { return &f }

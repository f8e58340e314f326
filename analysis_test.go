package embodiedflows_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	embodiedflows "github.com/superdango/embodied-flows"
)

func concreteWall(t *testing.T, sl embodiedflows.ServiceLife) *embodiedflows.Assembly {
	t.Helper()
	concrete, err := embodiedflows.NewCustomMaterial(embodiedflows.CustomSpec{
		Name:           "Concrete",
		FunctionalUnit: embodiedflows.Volume,
		Density:        2400,
		Coefficients:   embodiedflows.Flows{Energy: 200, Water: 1000, GHG: 300},
	}, embodiedflows.Overrides{Wastage: ptr(0.05), ServiceLife: &sl})
	assert.NoError(t, err)

	wall, err := embodiedflows.Aggregate("Wall", "Walls", embodiedflows.Volumetric, []embodiedflows.Component{
		mustComponent(t, concrete, 1, embodiedflows.Volume),
	})
	assert.NoError(t, err)
	return wall
}

func ptr[T any](v T) *T { return &v }

func TestAnalyzeWithoutReplacement(t *testing.T) {
	result, err := embodiedflows.Analyze(&embodiedflows.Request{
		Assemblies:  []embodiedflows.Instance{{Assembly: concreteWall(t, embodiedflows.Infinite), Quantity: 10}},
		PeriodYears: 50,
	})
	assert.NoError(t, err)

	energy := result.Totals.Energy
	assert.InDelta(t, 2000, energy.Initial, 1e-9)
	assert.InDelta(t, 100, energy.InitialWastage, 1e-9)
	assert.Equal(t, 0.0, energy.Recurrent)
	assert.Equal(t, 0.0, energy.RecurrentWastage)
	assert.InDelta(t, 2100, energy.LifeCycle, 1e-9)
	assert.InDelta(t, 100, energy.LifeCycleWastage, 1e-9)

	assert.NotEmpty(t, result.ID)
	assert.Equal(t, "Analysis", result.Name)
	assert.Len(t, result.Items, 1)
	assert.Equal(t, embodiedflows.AssemblyItem, result.Items[0].Kind)
	assert.NoError(t, result.Verify(1e-9))
}

func TestAnalyzeWithReplacements(t *testing.T) {
	result, err := embodiedflows.Analyze(&embodiedflows.Request{
		Assemblies:  []embodiedflows.Instance{{Assembly: concreteWall(t, embodiedflows.Years(20)), Quantity: 10}},
		PeriodYears: 50,
	})
	assert.NoError(t, err)

	energy := result.Totals.Energy
	assert.InDelta(t, 2000, energy.Initial, 1e-9)
	assert.InDelta(t, 100, energy.InitialWastage, 1e-9)
	assert.InDelta(t, 4000, energy.Recurrent, 1e-9)
	assert.InDelta(t, 200, energy.RecurrentWastage, 1e-9)
	assert.InDelta(t, 6300, energy.LifeCycle, 1e-9)

	assert.InDelta(t, 10*300*1.05*3, result.Totals.GHG.LifeCycle, 1e-9)
}

func TestAnalyzeBoundary(t *testing.T) {
	for period, want := range map[float64]float64{50: 1, 49.999: 1, 25: 0, 10: 0} {
		result, err := embodiedflows.Analyze(&embodiedflows.Request{
			Assemblies:  []embodiedflows.Instance{{Assembly: concreteWall(t, embodiedflows.Years(25))}},
			PeriodYears: period,
		})
		assert.NoError(t, err)
		// standalone assemblies default to one unit
		assert.InDelta(t, want*200, result.Totals.Energy.Recurrent, 1e-9, "period %g", period)
		assert.InDelta(t, want*200*0.05, result.Totals.Energy.RecurrentWastage, 1e-9, "period %g", period)
	}
}

func TestAnalyzeServiceLifePrecedence(t *testing.T) {
	pine := mustMaterial(t, "timber-pine") // 40 years

	assembly, err := embodiedflows.Aggregate("Deck", "Outdoor", embodiedflows.Surface, []embodiedflows.Component{
		mustComponent(t, pine, 10, embodiedflows.Mass),
		mustComponent(t, pine, 10, embodiedflows.Mass, embodiedflows.WithComponentServiceLife(embodiedflows.Years(5)),
			embodiedflows.WithComponentWastage(0)),
	}, embodiedflows.WithServiceLife(embodiedflows.Years(10)))
	assert.NoError(t, err)

	result, err := embodiedflows.Analyze(&embodiedflows.Request{
		Assemblies:  []embodiedflows.Instance{{Assembly: assembly, Quantity: 1}},
		PeriodYears: 30,
	})
	assert.NoError(t, err)

	// assembly override 10 years: 2 replacements, component override 5 years: 5 replacements
	assert.InDelta(t, 1000*2+1000*5, result.Totals.Energy.Recurrent, 1e-9)
	// wastage: 10% on the first component, disabled on the second
	assert.InDelta(t, 1000*0.1, result.Totals.Energy.InitialWastage, 1e-9)

	// both components share the same material and merge into one entry
	assert.Equal(t, 1, result.Breakdown.Len())
	entry, found := result.Breakdown.Get(embodiedflows.BreakdownKey{Assembly: "Deck", Material: "timber-pine"})
	assert.True(t, found)
	assert.Equal(t, 20.0, entry.Quantity)
}

func TestAnalyzeBuiltAsset(t *testing.T) {
	concrete := mustMaterial(t, "concrete-32")
	pine := mustMaterial(t, "timber-pine")

	slab, err := embodiedflows.Aggregate("Slab", "Floors", embodiedflows.Surface, []embodiedflows.Component{
		mustComponent(t, concrete, 0.2, embodiedflows.Volume),
	})
	assert.NoError(t, err)
	frame, err := embodiedflows.Aggregate("Frame", "Walls", embodiedflows.Linear, []embodiedflows.Component{
		mustComponent(t, pine, 2, embodiedflows.Mass),
		mustComponent(t, concrete, 0.01, embodiedflows.Volume),
	})
	assert.NoError(t, err)

	house, err := embodiedflows.NewBuiltAsset("House", []embodiedflows.Instance{
		{Assembly: slab, Quantity: 100},
		{Assembly: frame, Quantity: 80},
		{Assembly: slab, Quantity: 20},
	})
	assert.NoError(t, err)

	result, err := embodiedflows.Analyze(&embodiedflows.Request{
		Name:        "House",
		Assemblies:  []embodiedflows.Instance{{Assembly: frame, Quantity: 5}},
		BuiltAssets: []*embodiedflows.BuiltAsset{house},
		PeriodYears: 50,
	})
	assert.NoError(t, err)
	assert.NoError(t, result.Verify(1e-9))

	assert.Len(t, result.Items, 2)
	assert.Equal(t, embodiedflows.BuiltAssetItem, result.Items[1].Kind)

	slabEntry, found := result.Items[1].Breakdown.Get(embodiedflows.BreakdownKey{Assembly: "Slab", Material: "concrete-32"})
	assert.True(t, found)
	assert.InDelta(t, 120*0.2, slabEntry.Quantity, 1e-9)
	assert.InDelta(t, 120*0.2*200, slabEntry.Totals.Energy.Initial, 1e-9)

	// the request breakdown merges the standalone frame with the built asset frame
	frameEntry, found := result.Breakdown.Get(embodiedflows.BreakdownKey{Assembly: "Frame", Material: "timber-pine"})
	assert.True(t, found)
	assert.InDelta(t, 85*2, frameEntry.Quantity, 1e-9)

	keys := []embodiedflows.BreakdownKey{}
	for _, entry := range result.Breakdown.Entries() {
		keys = append(keys, entry.Key)
	}
	assert.Equal(t, []embodiedflows.BreakdownKey{
		{Assembly: "Frame", Material: "timber-pine"},
		{Assembly: "Frame", Material: "concrete-32"},
		{Assembly: "Slab", Material: "concrete-32"},
	}, keys)

	byMaterial := result.ByMaterial()
	assert.Len(t, byMaterial, 2)
	assert.Equal(t, "Pine, kiln dried", byMaterial[0].Label)

	byCategory := result.ByCategory()
	assert.Equal(t, "Walls", byCategory[0].Key)
	assert.Equal(t, "Floors", byCategory[1].Key)
	assert.Len(t, result.ByAssembly(), 2)

	boq := result.BillOfQuantities()
	assert.Len(t, boq, 2)
	assert.Equal(t, "concrete-32", boq[1].Material)
	assert.InDelta(t, 85*0.01+120*0.2, boq[1].Quantity, 1e-9)
	assert.Equal(t, embodiedflows.Volume, boq[1].FunctionalUnit)

	assert.Len(t, result.Materials, 2)
	assert.Equal(t, "timber-pine", result.Materials[0].Key())
}

func TestAnalyzeWorkers(t *testing.T) {
	concrete := mustMaterial(t, "concrete-32")
	pine := mustMaterial(t, "timber-pine")

	instances := []embodiedflows.Instance{}
	for i := range 50 {
		assembly, err := embodiedflows.Aggregate("Panel", "Walls", embodiedflows.Surface, []embodiedflows.Component{
			mustComponent(t, concrete, 0.1+float64(i)/100, embodiedflows.Volume),
			mustComponent(t, pine, 1+float64(i), embodiedflows.Mass),
		})
		assert.NoError(t, err)
		instances = append(instances, embodiedflows.Instance{Assembly: assembly, Quantity: 3.3})
	}
	asset, err := embodiedflows.NewBuiltAsset("Tower", instances)
	assert.NoError(t, err)

	req := &embodiedflows.Request{BuiltAssets: []*embodiedflows.BuiltAsset{asset}, PeriodYears: 90}

	sequential, err := embodiedflows.Analyze(req)
	assert.NoError(t, err)
	parallel, err := embodiedflows.NewAnalyzer(embodiedflows.WithWorkers(8)).Analyze(req)
	assert.NoError(t, err)

	assert.Equal(t, sequential.Totals, parallel.Totals)
	assert.Equal(t, sequential.Breakdown.Entries(), parallel.Breakdown.Entries())
}

func TestAnalyzeComparison(t *testing.T) {
	result, err := embodiedflows.Analyze(&embodiedflows.Request{
		Name:        "Baseline",
		Assemblies:  []embodiedflows.Instance{{Assembly: concreteWall(t, embodiedflows.Infinite), Quantity: 10}},
		PeriodYears: 50,
		Comparison: &embodiedflows.Request{
			Name:        "Alternative",
			Assemblies:  []embodiedflows.Instance{{Assembly: concreteWall(t, embodiedflows.Years(20)), Quantity: 10}},
			PeriodYears: 50,
		},
	})
	assert.NoError(t, err)
	assert.InDelta(t, 2100, result.Totals.Energy.LifeCycle, 1e-9)
	assert.Equal(t, "Alternative", result.Comparison.Name)
	assert.InDelta(t, 6300, result.Comparison.Totals.Energy.LifeCycle, 1e-9)
	assert.NotEqual(t, result.ID, result.Comparison.ID)
	assert.NoError(t, result.Verify(1e-9))
}

func TestAnalyzeErrors(t *testing.T) {
	wall := concreteWall(t, embodiedflows.Infinite)

	_, err := embodiedflows.Analyze(&embodiedflows.Request{
		Assemblies:  []embodiedflows.Instance{{Assembly: wall}},
		PeriodYears: 0,
	})
	assert.ErrorIs(t, err, embodiedflows.ErrInvalidQuantity)

	_, err = embodiedflows.Analyze(&embodiedflows.Request{PeriodYears: 50})
	assert.ErrorIs(t, err, embodiedflows.ErrEmptyAssembly)

	_, err = embodiedflows.Analyze(&embodiedflows.Request{
		Assemblies:  []embodiedflows.Instance{{Assembly: wall, Quantity: -4}},
		PeriodYears: 50,
	})
	assert.ErrorIs(t, err, embodiedflows.ErrInvalidQuantity)

	_, err = embodiedflows.Analyze(&embodiedflows.Request{
		Assemblies:  []embodiedflows.Instance{{Assembly: wall}},
		PeriodYears: 50,
		Comparison:  &embodiedflows.Request{PeriodYears: -1},
	})
	assert.ErrorIs(t, err, embodiedflows.ErrInvalidQuantity)
}

func TestResultJSON(t *testing.T) {
	result, err := embodiedflows.Analyze(&embodiedflows.Request{
		Assemblies:  []embodiedflows.Instance{{Assembly: concreteWall(t, embodiedflows.Infinite), Quantity: 10}},
		PeriodYears: 50,
	})
	assert.NoError(t, err)

	b, err := json.Marshal(result)
	assert.NoError(t, err)

	decoded := struct {
		Breakdown []struct {
			Key struct {
				Assembly string `json:"assembly"`
				Material string `json:"material"`
			} `json:"key"`
		} `json:"breakdown"`
		Materials []struct {
			ServiceLife string `json:"service_life"`
		} `json:"materials"`
	}{}
	assert.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "custom:Concrete", decoded.Breakdown[0].Key.Material)
	assert.Equal(t, "infinite", decoded.Materials[0].ServiceLife)
}

func TestAnalyzeDistinctMaterials(t *testing.T) {
	bolts, err := embodiedflows.NewCustomMaterial(embodiedflows.CustomSpec{
		FunctionalUnit: embodiedflows.Mass,
		Coefficients:   embodiedflows.Flows{Energy: 10},
	}, embodiedflows.Overrides{})
	assert.NoError(t, err)
	resin, err := embodiedflows.NewCustomMaterial(embodiedflows.CustomSpec{
		FunctionalUnit: embodiedflows.Volume,
		Coefficients:   embodiedflows.Flows{Energy: 1000},
	}, embodiedflows.Overrides{Wastage: ptr(0.5)})
	assert.NoError(t, err)

	concrete := mustMaterial(t, "concrete-32")
	greener, err := embodiedflows.ResolveMaterial(testResolver, "concrete-32", embodiedflows.Overrides{
		Reduction: embodiedflows.Flows{GHG: 0.2},
	})
	assert.NoError(t, err)
	// resolved again without override, equal to the first one
	again := mustMaterial(t, "concrete-32")

	fixing, err := embodiedflows.Aggregate("Fixing", "", embodiedflows.Unit, []embodiedflows.Component{
		mustComponent(t, bolts, 20, embodiedflows.Mass),
		mustComponent(t, resin, 0.01, embodiedflows.Volume),
		mustComponent(t, concrete, 0.1, embodiedflows.Volume),
		mustComponent(t, greener, 0.1, embodiedflows.Volume),
		mustComponent(t, again, 0.1, embodiedflows.Volume),
	})
	assert.NoError(t, err)

	result, err := embodiedflows.Analyze(&embodiedflows.Request{
		Assemblies:  []embodiedflows.Instance{{Assembly: fixing}},
		PeriodYears: 50,
	})
	assert.NoError(t, err)
	assert.NoError(t, result.Verify(1e-9))

	keys := []string{}
	for _, entry := range result.Breakdown.Entries() {
		keys = append(keys, entry.Key.Material)
	}
	assert.Equal(t, []string{"custom:Custom Material", "custom:Custom Material#2", "concrete-32", "concrete-32#2"}, keys)

	boq := result.BillOfQuantities()
	assert.Len(t, boq, 4)
	assert.InDelta(t, 20, boq[0].Quantity, 1e-12)
	assert.Equal(t, embodiedflows.Mass, boq[0].FunctionalUnit)
	assert.InDelta(t, 0.01, boq[1].Quantity, 1e-12)
	assert.Equal(t, embodiedflows.Volume, boq[1].FunctionalUnit)
	assert.InDelta(t, 0.2, boq[2].Quantity, 1e-12)

	assert.Len(t, result.Materials, 4)
	assert.Same(t, resin, result.Materials[1])
	assert.Same(t, greener, result.Materials[3])

	key, found := result.MaterialKey(again)
	assert.True(t, found)
	assert.Equal(t, "concrete-32", key)
	key, _ = result.MaterialKey(greener)
	assert.Equal(t, "concrete-32#2", key)
	_, found = result.MaterialKey(mustMaterial(t, "timber-pine"))
	assert.False(t, found)
}

func TestAnalyzeAssembliesSharingAName(t *testing.T) {
	concrete := mustMaterial(t, "concrete-32")
	wall, err := embodiedflows.Aggregate("Wall", "Walls", embodiedflows.Volumetric, []embodiedflows.Component{
		mustComponent(t, concrete, 1, embodiedflows.Volume),
	})
	assert.NoError(t, err)
	facade, err := embodiedflows.Aggregate("Wall", "Facades", embodiedflows.Volumetric, []embodiedflows.Component{
		mustComponent(t, concrete, 1, embodiedflows.Volume),
	})
	assert.NoError(t, err)

	result, err := embodiedflows.Analyze(&embodiedflows.Request{
		Assemblies:  []embodiedflows.Instance{{Assembly: wall, Quantity: 2}, {Assembly: facade, Quantity: 3}},
		PeriodYears: 50,
	})
	assert.NoError(t, err)

	assert.Equal(t, 1, result.Breakdown.Len())
	entry, found := result.Breakdown.Get(embodiedflows.BreakdownKey{Assembly: "Wall", Material: "concrete-32"})
	assert.True(t, found)
	assert.Equal(t, "Walls", entry.AssemblyCategory)
	assert.InDelta(t, 5, entry.Quantity, 1e-12)
}

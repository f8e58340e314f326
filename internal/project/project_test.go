package project

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	embodiedflows "github.com/superdango/embodied-flows"
	"github.com/superdango/embodied-flows/model/catalog"
)

const houseJSON = `{
  "name": "House",
  "period": 50,
  "materials": [
    {"key": "concrete", "id": "concrete-32mpa", "reduction_percent": {"ghg": 20}},
    {"key": "panel", "custom": {"name": "Recycled panel", "functional_unit": "m2", "energy": 10, "water": 2, "ghg": 1}, "wastage_percent": 10, "service_life": 25}
  ],
  "assemblies": [
    {
      "name": "Slab",
      "category": "Floors",
      "geometry": "m2",
      "components": [
        {"material": "concrete", "quantity": 0.2},
        {"material": "steel-reinforcing-bar", "quantity": 15, "unit": "kg"}
      ]
    },
    {
      "name": "Partition",
      "geometry": "surface",
      "service_life": 0,
      "components": [
        {"material": "panel", "quantity": 2},
        {"material": "timber-softwood-kiln-dried", "quantity": 10, "unit": "kg", "wastage_percent": 0}
      ]
    }
  ],
  "uses": [{"assembly": "Partition", "quantity": 4}],
  "built_assets": [
    {"name": "Ground floor", "instances": [{"assembly": "Slab", "quantity": 120}, {"assembly": "Partition", "quantity": 30}]}
  ],
  "comparison": {
    "name": "Lighter slab",
    "materials": [{"key": "concrete", "id": "concrete-20mpa"}],
    "assemblies": [
      {"name": "Slab", "category": "Floors", "geometry": "m2", "components": [{"material": "concrete", "quantity": 0.15}]}
    ],
    "built_assets": [
      {"name": "Ground floor", "instances": [{"assembly": "Slab", "quantity": 120}, {"assembly": "Partition", "quantity": 30}]}
    ]
  }
}`

func TestParseAndRequest(t *testing.T) {
	doc, err := Parse(strings.NewReader(houseJSON))
	require.NoError(t, err)
	assert.Equal(t, "House", doc.Name)
	assert.Len(t, doc.Assemblies, 2)
	require.NotNil(t, doc.Comparison)

	req, err := doc.Request(catalog.Default())
	require.NoError(t, err)
	assert.Equal(t, 50.0, req.PeriodYears)
	assert.Len(t, req.Assemblies, 1)
	assert.Len(t, req.BuiltAssets, 1)

	slab := req.BuiltAssets[0].Instances()[0].Assembly
	assert.Equal(t, "Floors", slab.Category())
	components := slab.Components()
	require.Len(t, components, 2)
	assert.InDelta(t, 459*0.8, components[0].Material.Effective.GHG, 1e-9)
	assert.Equal(t, 459.0, components[0].Material.Base.GHG)

	partition := req.Assemblies[0].Assembly
	assert.Equal(t, "Partition", partition.Category())
	sl, overridden := partition.ServiceLifeOverride()
	assert.True(t, overridden)
	assert.True(t, sl.IsInfinite())

	panel := partition.Components()[0].Material
	assert.True(t, panel.Custom)
	assert.InDelta(t, 0.1, panel.Wastage, 1e-12)
	assert.Equal(t, embodiedflows.Years(25), panel.ServiceLife)
	assert.Equal(t, embodiedflows.Area, panel.FunctionalUnit)

	// 10 kg of timber measured by mass against a material declared per m³
	timber := partition.Components()[1]
	assert.InDelta(t, 10.0/500, timber.Quantity, 1e-12)
	require.NotNil(t, timber.Wastage)
	assert.Equal(t, 0.0, *timber.Wastage)

	comparison := req.Comparison
	require.NotNil(t, comparison)
	assert.Equal(t, "Lighter slab", comparison.Name)
	assert.Equal(t, 50.0, comparison.PeriodYears)
	lighter := comparison.BuiltAssets[0].Instances()[0].Assembly
	assert.Equal(t, "concrete-20mpa", lighter.Components()[0].Material.ID)
	// inherited from the main document
	assert.Same(t, partition, comparison.BuiltAssets[0].Instances()[1].Assembly)

	result, err := embodiedflows.Analyze(req)
	require.NoError(t, err)
	assert.NoError(t, result.Verify(1e-9))
}

func TestDocumentErrors(t *testing.T) {
	_, err := Parse(strings.NewReader(`{"name": "x", "perod": 50}`))
	assert.ErrorIs(t, err, ErrInvalidDocument)

	_, err = Parse(strings.NewReader(`not json`))
	assert.ErrorIs(t, err, ErrInvalidDocument)

	tests := []struct {
		input string
		want  error
	}{
		{input: `{"uses": [{"assembly": "Ghost"}]}`, want: ErrInvalidDocument},
		{input: `{"materials": [{"key": "x", "id": "unobtainium"}]}`, want: embodiedflows.ErrUnknownMaterial},
		{input: `{"materials": [{"key": "x"}]}`, want: ErrInvalidDocument},
		{input: `{"assemblies": [{"name": "A", "geometry": "blob", "components": []}]}`, want: embodiedflows.ErrUnitMismatch},
		{input: `{"assemblies": [{"name": "A", "geometry": "m", "components": []}]}`, want: embodiedflows.ErrEmptyAssembly},
		{
			input: `{"assemblies": [{"name": "A", "geometry": "m", "components": [{"material": "timber-skirting", "quantity": 2, "unit": "m3"}]}]}`,
			want:  embodiedflows.ErrUnitMismatch,
		},
		{
			input: `{"assemblies": [{"name": "A", "geometry": "m", "components": [{"material": "timber-skirting", "quantity": -2}]}]}`,
			want:  embodiedflows.ErrInvalidQuantity,
		},
	}
	for _, tt := range tests {
		doc, err := Parse(strings.NewReader(tt.input))
		require.NoError(t, err, tt.input)
		_, err = doc.Request(catalog.Default())
		assert.ErrorIs(t, err, tt.want, tt.input)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "house.json")
	require.NoError(t, os.WriteFile(path, []byte(houseJSON), 0o600))

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "House", doc.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

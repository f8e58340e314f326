package report_test

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	embodiedflows "github.com/superdango/embodied-flows"
	"github.com/superdango/embodied-flows/internal/demo"
	"github.com/superdango/embodied-flows/model/catalog"
	"github.com/superdango/embodied-flows/report"
)

func wallResult(t *testing.T) *embodiedflows.Result {
	t.Helper()
	req, err := demo.Project().Request(catalog.Default())
	require.NoError(t, err)
	result, err := embodiedflows.Analyze(req)
	require.NoError(t, err)
	return result
}

func TestRows(t *testing.T) {
	rows := report.Rows(wallResult(t))
	require.Len(t, rows, 3)

	energy := rows[0]
	assert.Equal(t, "Wall", energy.Item)
	assert.Equal(t, embodiedflows.AssemblyItem, energy.ItemKind)
	assert.Equal(t, "Walls", energy.Category)
	assert.Equal(t, "custom:Concrete", energy.Material)
	assert.Equal(t, embodiedflows.Energy, energy.Flow)
	assert.InDelta(t, 10, energy.Quantity, 1e-9)
	assert.InDelta(t, 2100, energy.Metrics.LifeCycle, 1e-9)

	assert.Equal(t, embodiedflows.Water, rows[1].Flow)
	assert.InDelta(t, 15750, rows[1].Metrics.LifeCycle, 1e-9)
	assert.Equal(t, embodiedflows.GHG, rows[2].Flow)
	assert.InDelta(t, 315, rows[2].Metrics.LifeCycle, 1e-9)
}

func TestWriteCSV(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, report.WriteCSV(buf, wallResult(t)))

	reader := csv.NewReader(buf)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	require.NoError(t, err)

	assert.Equal(t, []string{"report", "Wall"}, records[0])

	lifeCycle := func(flow string, after int) float64 {
		for _, record := range records[after:] {
			if record[0] == flow {
				v, err := strconv.ParseFloat(record[6], 64)
				require.NoError(t, err)
				return v
			}
		}
		t.Fatalf("no %s totals found", flow)
		return 0
	}
	assert.InDelta(t, 2100, lifeCycle("energy", 0), 1e-9)

	comparison := -1
	for i, record := range records {
		if record[0] == "*** COMPARISON ***" {
			comparison = i
		}
	}
	require.Greater(t, comparison, 0)
	assert.InDelta(t, 6300, lifeCycle("energy", comparison), 1e-9)

	assert.Contains(t, records, report.Header)
	assert.Contains(t, records, []string{"custom:Concrete", "Concrete", "10", "m³"})
}

func TestText(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, report.Text(buf, wallResult(t)))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Wall\n"))
	assert.Contains(t, out, "2100.00")
	assert.Contains(t, out, "Comparison")
	assert.Contains(t, out, "6300.00")
}

func TestHybrid(t *testing.T) {
	steel, err := embodiedflows.ResolveMaterial(catalog.Default(), "steel-reinforcing-bar", embodiedflows.Overrides{})
	require.NoError(t, err)

	hybrid := report.Hybrid(steel)
	assert.InDelta(t, 0.54, hybrid.Energy.Process, 1e-12)
	assert.InDelta(t, 0.46, hybrid.Energy.IO, 1e-12)
	assert.InDelta(t, steel.Effective.Energy, hybrid.Energy.ProcessValue+hybrid.Energy.IOValue, 1e-9)
	assert.Equal(t, hybrid.GHG, hybrid.Get(embodiedflows.GHG))

	slab, err := embodiedflows.Aggregate("Slab", "Floors", embodiedflows.Surface, []embodiedflows.Component{
		mustComponent(t, steel, 15, embodiedflows.Mass),
	})
	require.NoError(t, err)
	result, err := embodiedflows.Analyze(&embodiedflows.Request{
		Assemblies:  []embodiedflows.Instance{{Assembly: slab, Quantity: 100}},
		PeriodYears: 50,
	})
	require.NoError(t, err)

	// a single material keeps its own shares
	totals := report.HybridResult(result)
	assert.InDelta(t, 0.54, totals.Energy.Process, 1e-9)
	assert.InDelta(t, result.Totals.GHG.LifeCycle, totals.GHG.ProcessValue+totals.GHG.IOValue, 1e-9)

	// custom materials carry no process share
	custom := report.HybridResult(wallResult(t))
	assert.Equal(t, 0.0, custom.Energy.Process)
	assert.InDelta(t, 2100, custom.Energy.IOValue, 1e-9)
}

func mustComponent(t *testing.T, m *embodiedflows.Material, quantity float64, unit embodiedflows.FunctionalUnit) embodiedflows.Component {
	t.Helper()
	c, err := embodiedflows.NewComponent(m, quantity, unit)
	require.NoError(t, err)
	return c
}

package embodiedflows

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Metrics are the six time extended totals computed for one flow.
type Metrics struct {
	Initial          float64 `json:"initial"`
	InitialWastage   float64 `json:"initial_wastage"`
	Recurrent        float64 `json:"recurrent"`
	RecurrentWastage float64 `json:"recurrent_wastage"`
	LifeCycle        float64 `json:"life_cycle"`
	LifeCycleWastage float64 `json:"life_cycle_wastage"`
}

// MetricNames lists metric names in the order returned by Metrics.Values.
var MetricNames = []string{"initial", "initial_wastage", "recurrent", "recurrent_wastage", "life_cycle", "life_cycle_wastage"}

// NewMetrics derives the six metrics from an initial flow, a wastage fraction
// and a number of replacements.
func NewMetrics(initial, wastage float64, replacements int) Metrics {
	initialWastage := initial * wastage
	recurrent := initial * float64(replacements)
	recurrentWastage := recurrent * wastage
	return Metrics{
		Initial:          initial,
		InitialWastage:   initialWastage,
		Recurrent:        recurrent,
		RecurrentWastage: recurrentWastage,
		LifeCycle:        initial + initialWastage + recurrent + recurrentWastage,
		LifeCycleWastage: initialWastage + recurrentWastage,
	}
}

func (m Metrics) Add(o Metrics) Metrics {
	return Metrics{
		Initial:          m.Initial + o.Initial,
		InitialWastage:   m.InitialWastage + o.InitialWastage,
		Recurrent:        m.Recurrent + o.Recurrent,
		RecurrentWastage: m.RecurrentWastage + o.RecurrentWastage,
		LifeCycle:        m.LifeCycle + o.LifeCycle,
		LifeCycleWastage: m.LifeCycleWastage + o.LifeCycleWastage,
	}
}

func (m Metrics) Values() []float64 {
	return []float64{m.Initial, m.InitialWastage, m.Recurrent, m.RecurrentWastage, m.LifeCycle, m.LifeCycleWastage}
}

// Totals holds metrics for every flow.
type Totals struct {
	Energy Metrics `json:"energy"`
	Water  Metrics `json:"water"`
	GHG    Metrics `json:"ghg"`
}

func (t Totals) Get(flow Flow) Metrics {
	switch flow {
	case Energy:
		return t.Energy
	case Water:
		return t.Water
	case GHG:
		return t.GHG
	}
	return Metrics{}
}

func (t Totals) Add(o Totals) Totals {
	return Totals{
		Energy: t.Energy.Add(o.Energy),
		Water:  t.Water.Add(o.Water),
		GHG:    t.GHG.Add(o.GHG),
	}
}

// LifeCycle returns the life cycle value of every flow.
func (t Totals) LifeCycle() Flows {
	return Flows{Energy: t.Energy.LifeCycle, Water: t.Water.LifeCycle, GHG: t.GHG.LifeCycle}
}

// BreakdownKey identifies a breakdown entry. Assemblies are identified by
// name: distinct assemblies sharing a name are summed together under the
// category of the first one.
type BreakdownKey struct {
	Assembly string `json:"assembly"`
	Material string `json:"material"`
}

// BreakdownEntry gathers every contribution of a material within an assembly.
type BreakdownEntry struct {
	Key              BreakdownKey   `json:"key"`
	AssemblyCategory string         `json:"assembly_category"`
	MaterialName     string         `json:"material_name"`
	FunctionalUnit   FunctionalUnit `json:"functional_unit"`
	// Quantity installed in the material functional unit, replacements excluded
	Quantity float64 `json:"quantity"`
	Totals   Totals  `json:"totals"`
}

func (e BreakdownEntry) merge(o BreakdownEntry) BreakdownEntry {
	e.Quantity += o.Quantity
	e.Totals = e.Totals.Add(o.Totals)
	return e
}

// Breakdown is an insertion ordered map of breakdown entries.
type Breakdown struct {
	entries []BreakdownEntry
	index   map[BreakdownKey]int
}

func NewBreakdown() *Breakdown {
	return &Breakdown{
		entries: make([]BreakdownEntry, 0),
		index:   make(map[BreakdownKey]int),
	}
}

// Add sums entry into the breakdown, creating the key on first use.
func (b *Breakdown) Add(entry BreakdownEntry) {
	if i, found := b.index[entry.Key]; found {
		b.entries[i] = b.entries[i].merge(entry)
		return
	}
	b.index[entry.Key] = len(b.entries)
	b.entries = append(b.entries, entry)
}

// Merge sums every entry of o into b, preserving the order of o for new keys.
func (b *Breakdown) Merge(o *Breakdown) {
	for _, entry := range o.entries {
		b.Add(entry)
	}
}

func (b *Breakdown) Get(key BreakdownKey) (BreakdownEntry, bool) {
	i, found := b.index[key]
	if !found {
		return BreakdownEntry{}, false
	}
	return b.entries[i], true
}

// Entries returns a copy of the entries in insertion order.
func (b *Breakdown) Entries() []BreakdownEntry {
	entries := make([]BreakdownEntry, len(b.entries))
	copy(entries, b.entries)
	return entries
}

func (b *Breakdown) Len() int { return len(b.entries) }

// Totals sums every entry.
func (b *Breakdown) Totals() Totals {
	totals := Totals{}
	for _, entry := range b.entries {
		totals = totals.Add(entry.Totals)
	}
	return totals
}

func (b *Breakdown) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.entries)
}

// ItemKind distinguishes standalone assemblies from built assets.
type ItemKind string

const (
	AssemblyItem   ItemKind = "assembly"
	BuiltAssetItem ItemKind = "built_asset"
)

// ItemResult holds the totals of one analyzed item.
type ItemResult struct {
	Name      string     `json:"name"`
	Kind      ItemKind   `json:"kind"`
	Comments  string     `json:"comments,omitempty"`
	Totals    Totals     `json:"totals"`
	Breakdown *Breakdown `json:"breakdown"`
}

// Result is the output of an analysis run.
type Result struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	PeriodYears float64      `json:"period_of_analysis"`
	Items       []ItemResult `json:"items"`
	Totals      Totals       `json:"totals"`
	Breakdown   *Breakdown   `json:"breakdown"`
	Materials   []*Material  `json:"materials"`
	Comparison  *Result      `json:"comparison,omitempty"`

	materialKeys map[*Material]string
}

// MaterialKey returns the breakdown key of m, or false when m is not part of
// the analyzed request.
func (r *Result) MaterialKey(m *Material) (string, bool) {
	key, found := r.materialKeys[m]
	return key, found
}

// Group is an aggregated view over breakdown entries.
type Group struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Totals Totals `json:"totals"`
}

func (r *Result) groupBy(key func(e BreakdownEntry) (string, string)) []Group {
	groups := make([]Group, 0)
	index := make(map[string]int)
	for _, entry := range r.Breakdown.entries {
		k, label := key(entry)
		i, found := index[k]
		if !found {
			index[k] = len(groups)
			groups = append(groups, Group{Key: k, Label: label, Totals: entry.Totals})
			continue
		}
		groups[i].Totals = groups[i].Totals.Add(entry.Totals)
	}
	return groups
}

// ByMaterial sums the breakdown by material.
func (r *Result) ByMaterial() []Group {
	return r.groupBy(func(e BreakdownEntry) (string, string) { return e.Key.Material, e.MaterialName })
}

// ByAssembly sums the breakdown by assembly.
func (r *Result) ByAssembly() []Group {
	return r.groupBy(func(e BreakdownEntry) (string, string) { return e.Key.Assembly, e.Key.Assembly })
}

// ByCategory sums the breakdown by assembly category.
func (r *Result) ByCategory() []Group {
	return r.groupBy(func(e BreakdownEntry) (string, string) { return e.AssemblyCategory, e.AssemblyCategory })
}

// QuantityLine is one line of a bill of quantities.
type QuantityLine struct {
	Material       string         `json:"material"`
	Name           string         `json:"name"`
	Quantity       float64        `json:"quantity"`
	FunctionalUnit FunctionalUnit `json:"functional_unit"`
}

// BillOfQuantities returns the total installed quantity of every material.
func (r *Result) BillOfQuantities() []QuantityLine {
	lines := make([]QuantityLine, 0)
	index := make(map[string]int)
	for _, entry := range r.Breakdown.entries {
		i, found := index[entry.Key.Material]
		if !found {
			index[entry.Key.Material] = len(lines)
			lines = append(lines, QuantityLine{
				Material:       entry.Key.Material,
				Name:           entry.MaterialName,
				Quantity:       entry.Quantity,
				FunctionalUnit: entry.FunctionalUnit,
			})
			continue
		}
		lines[i].Quantity += entry.Quantity
	}
	return lines
}

// Verify checks that breakdowns and totals are conserved within the relative
// tolerance: item breakdowns sum to item totals, item totals sum to the
// request totals and the request breakdown sums to the request totals.
func (r *Result) Verify(tolerance float64) error {
	itemsSum := Totals{}
	for _, item := range r.Items {
		if err := compareTotals("item "+item.Name, item.Breakdown.Totals(), item.Totals, tolerance); err != nil {
			return err
		}
		itemsSum = itemsSum.Add(item.Totals)
	}

	if err := compareTotals("items sum", itemsSum, r.Totals, tolerance); err != nil {
		return err
	}
	if err := compareTotals("request breakdown", r.Breakdown.Totals(), r.Totals, tolerance); err != nil {
		return err
	}

	if r.Comparison != nil {
		if err := r.Comparison.Verify(tolerance); err != nil {
			return fmt.Errorf("comparison: %w", err)
		}
	}
	return nil
}

func compareTotals(subject string, got, want Totals, tolerance float64) error {
	for _, flow := range DefinedFlows {
		g, w := got.Get(flow).Values(), want.Get(flow).Values()
		for i := range g {
			if !floats.EqualWithinAbsOrRel(g[i], w[i], tolerance, tolerance) {
				return fmt.Errorf("%s: %s %s is not conserved: %g != %g", subject, flow, MetricNames[i], g[i], w[i])
			}
		}
	}
	return nil
}

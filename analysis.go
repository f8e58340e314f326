package embodiedflows

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Request is the set of assemblies and built assets to analyze.
type Request struct {
	Name string
	// Assemblies used standalone. A zero quantity counts as one assembly unit.
	Assemblies  []Instance
	BuiltAssets []*BuiltAsset
	PeriodYears float64
	// Comparison is analyzed independently into Result.Comparison
	Comparison *Request
}

type AnalyzerOption func(a *Analyzer)

// WithWorkers computes line items on up to n goroutines. Results are
// identical to the sequential computation.
func WithWorkers(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.workers = n
		}
	}
}

// Analyzer computes life cycle embodied flows. It holds no state between
// calls and is safe for concurrent use.
type Analyzer struct {
	workers int
}

func NewAnalyzer(opts ...AnalyzerOption) *Analyzer {
	analyzer := &Analyzer{workers: 1}
	for _, opt := range opts {
		opt(analyzer)
	}
	return analyzer
}

// Analyze runs a sequential analysis of the request.
func Analyze(req *Request) (*Result, error) {
	return NewAnalyzer().Analyze(req)
}

type item struct {
	name     string
	kind     ItemKind
	comments string
	lines    []Instance
}

type lineRef struct {
	item     int
	instance Instance
}

// Analyze computes initial, wastage, recurrent and life cycle flows of every
// line item in the request. Any invalid input aborts the whole analysis.
func (a *Analyzer) Analyze(req *Request) (*Result, error) {
	if req == nil {
		return nil, &EmptyAssemblyError{Name: "analysis request"}
	}

	name := req.Name
	if name == "" {
		name = "Analysis"
	}

	period := req.PeriodYears
	if math.IsNaN(period) || math.IsInf(period, 0) || period <= 0 {
		return nil, &InvalidQuantityError{Subject: fmt.Sprintf("period of analysis of %q", name), Value: period}
	}

	items, err := collectItems(name, req)
	if err != nil {
		return nil, err
	}

	lines := make([]lineRef, 0)
	for i, it := range items {
		for _, instance := range it.lines {
			lines = append(lines, lineRef{item: i, instance: instance})
		}
	}

	materials := indexMaterials(items)

	partials := make([]*Breakdown, len(lines))
	errg := new(errgroup.Group)
	errg.SetLimit(a.workers)
	for i, line := range lines {
		errg.Go(func() error {
			partials[i] = analyzeLine(line.instance, period, materials.keys)
			return nil
		})
	}
	if err := errg.Wait(); err != nil {
		return nil, err
	}

	itemBreakdowns := make([]*Breakdown, len(items))
	for i := range items {
		itemBreakdowns[i] = NewBreakdown()
	}
	for i, line := range lines {
		itemBreakdowns[line.item].Merge(partials[i])
	}

	result := &Result{
		ID:           uuid.NewString(),
		Name:         name,
		PeriodYears:  period,
		Items:        make([]ItemResult, 0, len(items)),
		Breakdown:    NewBreakdown(),
		Materials:    materials.materials,
		materialKeys: materials.keys,
	}

	for i, it := range items {
		result.Items = append(result.Items, ItemResult{
			Name:      it.name,
			Kind:      it.kind,
			Comments:  it.comments,
			Totals:    itemBreakdowns[i].Totals(),
			Breakdown: itemBreakdowns[i],
		})
		result.Breakdown.Merge(itemBreakdowns[i])
	}
	result.Totals = result.Breakdown.Totals()

	if req.Comparison != nil {
		result.Comparison, err = a.Analyze(req.Comparison)
		if err != nil {
			return nil, err
		}
	}

	slog.Debug("analysis completed", "name", name, "items", len(items), "lines", len(lines), "period", period)

	return result, nil
}

func collectItems(name string, req *Request) ([]item, error) {
	items := make([]item, 0, len(req.Assemblies)+len(req.BuiltAssets))

	for i, instance := range req.Assemblies {
		if instance.Quantity == 0 {
			instance.Quantity = 1
		}
		if err := validateInstance(fmt.Sprintf("analysis %q", name), i, instance); err != nil {
			return nil, err
		}
		items = append(items, item{
			name:     instance.Assembly.Name(),
			kind:     AssemblyItem,
			comments: instance.Assembly.Comments(),
			lines:    []Instance{instance},
		})
	}

	for i, builtAsset := range req.BuiltAssets {
		if builtAsset == nil {
			return nil, &EmptyAssemblyError{Name: fmt.Sprintf("analysis %q built asset %d", name, i+1)}
		}
		items = append(items, item{
			name:     builtAsset.Name(),
			kind:     BuiltAssetItem,
			comments: builtAsset.Comments(),
			lines:    builtAsset.Instances(),
		})
	}

	if len(items) == 0 {
		return nil, &EmptyAssemblyError{Name: fmt.Sprintf("analysis %q", name)}
	}

	categories := make(map[string]string)
	for _, it := range items {
		for _, line := range it.lines {
			a := line.Assembly
			category, found := categories[a.name]
			if !found {
				categories[a.name] = a.category
				continue
			}
			if category != a.category {
				slog.Warn("assemblies sharing a name are merged", "analysis", name, "assembly", a.name, "category", category, "ignored_category", a.category)
			}
		}
	}

	return items, nil
}

// analyzeLine computes the breakdown of a single installed assembly.
func analyzeLine(instance Instance, period float64, keys map[*Material]string) *Breakdown {
	assembly := instance.Assembly
	breakdown := NewBreakdown()

	for _, c := range assembly.components {
		lineQuantity := instance.Quantity * c.Quantity
		wastage := assembly.wastageOf(c)
		replacements := Replacements(period, assembly.serviceLifeOf(c))

		totals := Totals{
			Energy: NewMetrics(lineQuantity*c.Material.Effective.Energy, wastage, replacements),
			Water:  NewMetrics(lineQuantity*c.Material.Effective.Water, wastage, replacements),
			GHG:    NewMetrics(lineQuantity*c.Material.Effective.GHG, wastage, replacements),
		}

		breakdown.Add(BreakdownEntry{
			Key:              BreakdownKey{Assembly: assembly.name, Material: keys[c.Material]},
			AssemblyCategory: assembly.category,
			MaterialName:     c.Material.Name,
			FunctionalUnit:   c.Material.FunctionalUnit,
			Quantity:         lineQuantity,
			Totals:           totals,
		})
	}

	return breakdown
}

// materialIndex assigns a breakdown key to every distinct material of a
// request. Equal materials share a key. Distinct materials sharing an id or a
// custom name are suffixed in order of appearance: concrete-32, concrete-32#2.
type materialIndex struct {
	keys      map[*Material]string
	taken     map[string]bool
	materials []*Material
}

func indexMaterials(items []item) *materialIndex {
	idx := &materialIndex{
		keys:      make(map[*Material]string),
		taken:     make(map[string]bool),
		materials: make([]*Material, 0),
	}
	for _, it := range items {
		for _, line := range it.lines {
			for _, c := range line.Assembly.components {
				idx.add(c.Material)
			}
		}
	}
	return idx
}

func (idx *materialIndex) add(m *Material) {
	if _, found := idx.keys[m]; found {
		return
	}
	for _, known := range idx.materials {
		if *known == *m {
			idx.keys[m] = idx.keys[known]
			return
		}
	}

	key := m.Key()
	for n := 2; idx.taken[key]; n++ {
		key = fmt.Sprintf("%s#%d", m.Key(), n)
	}
	idx.taken[key] = true
	idx.keys[m] = key
	idx.materials = append(idx.materials, m)
}

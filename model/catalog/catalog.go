package catalog

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"
	embodiedflows "github.com/superdango/embodied-flows"
	"github.com/superdango/embodied-flows/internal/must"
)

//go:embed data/materials.csv
var materialsCSV []byte

// Columns of a catalog file, in order.
var Columns = []string{
	"id", "name", "category", "functional_unit", "density",
	"energy", "water", "ghg", "service_life", "wastage", "doi",
	"process_energy", "process_water", "process_ghg",
}

// maxSuggestions is the number of close matches attached to unknown material errors
const maxSuggestions = 3

// Catalog is a read only materials database. It implements embodiedflows.Resolver.
type Catalog struct {
	records []embodiedflows.Record
	ids     map[string]int
	names   map[string]int
	// searchable holds "name category" per record, used for fuzzy matching
	searchable []string
}

// New indexes records. Later records with a duplicated id are ignored.
func New(records []embodiedflows.Record) *Catalog {
	c := &Catalog{
		records:    make([]embodiedflows.Record, 0, len(records)),
		ids:        make(map[string]int, len(records)),
		names:      make(map[string]int, len(records)),
		searchable: make([]string, 0, len(records)),
	}
	for _, record := range records {
		id := strings.ToLower(record.ID)
		if _, found := c.ids[id]; found {
			slog.Warn("duplicated catalog material ignored", "id", record.ID)
			continue
		}
		c.ids[id] = len(c.records)
		if _, found := c.names[strings.ToLower(record.Name)]; !found {
			c.names[strings.ToLower(record.Name)] = len(c.records)
		}
		c.records = append(c.records, record)
		c.searchable = append(c.searchable, record.Name+" "+record.Category)
	}
	return c
}

var defaultCatalog = sync.OnceValue(func() *Catalog {
	return must.Value(Parse(bytes.NewReader(materialsCSV)))
})

// Default returns the catalog built from the embedded materials seed.
func Default() *Catalog {
	return defaultCatalog()
}

// Parse reads a catalog file. Wastage is stored as a ratio of installed
// quantity (1.05 for 5%) and a negative or empty service life means the
// material is never replaced.
func Parse(r io.Reader) (*Catalog, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(Columns)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("catalog is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog header: %w", err)
	}
	if !slices.Equal(header, Columns) {
		return nil, fmt.Errorf("unexpected catalog header %v, want %v", header, Columns)
	}

	records := make([]embodiedflows.Record, 0)
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog: %w", err)
		}

		record, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("catalog line %d: %w", line, err)
		}
		records = append(records, record)
	}

	return New(records), nil
}

func parseRow(row []string) (embodiedflows.Record, error) {
	numbers := make(map[string]float64)
	for i, column := range Columns {
		switch column {
		case "id", "name", "category", "functional_unit", "doi":
			continue
		}
		value := strings.TrimSpace(row[i])
		if value == "" {
			continue
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return embodiedflows.Record{}, fmt.Errorf("column %s: %w", column, err)
		}
		numbers[column] = f
	}

	id := strings.TrimSpace(row[0])
	if id == "" {
		return embodiedflows.Record{}, errors.New("material id is empty")
	}

	fu, err := embodiedflows.ParseFunctionalUnit(row[3])
	if err != nil {
		return embodiedflows.Record{}, err
	}

	name := strings.TrimSpace(row[1])
	if name == "" {
		name = id
	}

	return embodiedflows.Record{
		ID:             id,
		Name:           name,
		Category:       strings.TrimSpace(row[2]),
		FunctionalUnit: fu,
		Density:        numbers["density"],
		Coefficients: embodiedflows.Flows{
			Energy: numbers["energy"],
			Water:  numbers["water"],
			GHG:    numbers["ghg"],
		},
		ServiceLife: ServiceLifeFromYears(numbers["service_life"]),
		Wastage:     WastageFromRatio(numbers["wastage"]),
		DOI:         strings.TrimSpace(row[10]),
		ProcessShares: embodiedflows.Flows{
			Energy: numbers["process_energy"],
			Water:  numbers["process_water"],
			GHG:    numbers["process_ghg"],
		},
	}, nil
}

// ServiceLifeFromYears converts a stored service life, where zero or
// negative values mean the material is never replaced.
func ServiceLifeFromYears(years float64) embodiedflows.ServiceLife {
	if years > 0 {
		return embodiedflows.Years(years)
	}
	return embodiedflows.Infinite
}

// WastageFromRatio converts a stored wastage ratio (1.05) to a fraction (0.05).
func WastageFromRatio(ratio float64) float64 {
	if ratio > 1 {
		return ratio - 1
	}
	return 0
}

// WastageRatio is the inverse of WastageFromRatio.
func WastageRatio(fraction float64) float64 {
	return 1 + fraction
}

// Lookup finds a material by id, or by exact name. Unknown materials return an
// embodiedflows.UnknownMaterialError carrying the closest names found.
func (c *Catalog) Lookup(id string) (embodiedflows.Record, error) {
	key := strings.ToLower(strings.TrimSpace(id))
	if i, found := c.ids[key]; found {
		return c.records[i], nil
	}
	if i, found := c.names[key]; found {
		return c.records[i], nil
	}

	suggestions := make([]string, 0, maxSuggestions)
	for _, i := range c.closest(id, maxSuggestions) {
		suggestions = append(suggestions, c.records[i].ID)
	}

	return embodiedflows.Record{}, &embodiedflows.UnknownMaterialError{ID: id, Suggestions: suggestions}
}

// Search returns records fuzzy matching query, best first. An empty query
// matches everything in catalog order. A non empty category restricts the
// results to that category. A limit lower or equal to zero returns every match.
func (c *Catalog) Search(query, category string, limit int) []embodiedflows.Record {
	indexes := make([]int, 0)
	if strings.TrimSpace(query) == "" {
		for i := range c.records {
			indexes = append(indexes, i)
		}
	} else {
		indexes = c.closest(query, len(c.records))
	}

	results := make([]embodiedflows.Record, 0)
	for _, i := range indexes {
		if category != "" && !strings.EqualFold(c.records[i].Category, category) {
			continue
		}
		results = append(results, c.records[i])
		if limit > 0 && len(results) == limit {
			break
		}
	}
	return results
}

// closest ranks records against every submatch of query. Records matching
// more submatches come first, ties are broken by edit distance.
func (c *Catalog) closest(query string, n int) []int {
	type candidate struct {
		index    int
		matches  int
		distance int
	}
	candidates := make(map[int]*candidate)

	for _, submatch := range submatches(strings.TrimSpace(query)) {
		ranks := fuzzy.RankFindNormalizedFold(submatch, c.searchable)
		sort.Sort(ranks)
		for _, rank := range ranks {
			cand, found := candidates[rank.OriginalIndex]
			if !found {
				cand = &candidate{index: rank.OriginalIndex, distance: rank.Distance}
				candidates[rank.OriginalIndex] = cand
			}
			cand.matches++
			cand.distance = min(cand.distance, rank.Distance)
		}
	}

	sorted := make([]*candidate, 0, len(candidates))
	for _, cand := range candidates {
		sorted = append(sorted, cand)
	}
	slices.SortFunc(sorted, func(a, b *candidate) int {
		if a.matches != b.matches {
			return b.matches - a.matches
		}
		if a.distance != b.distance {
			return a.distance - b.distance
		}
		return a.index - b.index
	})

	indexes := make([]int, 0, min(n, len(sorted)))
	for _, cand := range sorted[:min(n, len(sorted))] {
		indexes = append(indexes, cand.index)
	}

	if len(indexes) > 0 {
		slog.Debug("fuzzy found the closest material", "source", query, "match", c.records[indexes[0]].ID)
	}

	return indexes
}

// submatches splits string into subcomponents from small to entire string
// to help fuzzy matching finding the best option. For example, passing the
// string: "foo bar baz" returns {"foo", "foo bar", "foo bar baz", "bar", "baz"}
func submatches(s string) []string {
	splited := strings.Fields(s)
	if len(splited) == 0 {
		return nil
	}
	submatches := make([]string, 0)
	for i, substr := range splited {
		if i > 0 {
			submatches = append(submatches, submatches[i-1]+" "+substr)
			continue
		}
		submatches = append(submatches, substr)
	}
	submatches = append(submatches, splited[1:]...)
	return submatches
}

// Categories lists categories in order of first appearance.
func (c *Catalog) Categories() []string {
	categories := make([]string, 0)
	for _, record := range c.records {
		if record.Category != "" && !slices.Contains(categories, record.Category) {
			categories = append(categories, record.Category)
		}
	}
	return categories
}

// ByCategory returns the records of category in catalog order.
func (c *Catalog) ByCategory(category string) []embodiedflows.Record {
	return c.Search("", category, 0)
}

// Records returns a copy of every record in catalog order.
func (c *Catalog) Records() []embodiedflows.Record {
	return slices.Clone(c.records)
}

func (c *Catalog) Len() int { return len(c.records) }

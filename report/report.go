// Package report renders analysis results as rows, CSV files and text summaries.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	embodiedflows "github.com/superdango/embodied-flows"
)

// Row holds the six metrics of one flow for one material of one assembly of an item.
type Row struct {
	Item           string
	ItemKind       embodiedflows.ItemKind
	Assembly       string
	Category       string
	Material       string
	MaterialName   string
	Quantity       float64
	FunctionalUnit embodiedflows.FunctionalUnit
	Flow           embodiedflows.Flow
	Metrics        embodiedflows.Metrics
}

// Header lists the CSV columns written for every row.
var Header = append([]string{
	"item", "item_kind", "assembly", "category", "material", "material_name",
	"quantity", "functional_unit", "flow", "unit",
}, embodiedflows.MetricNames...)

func (row Row) record() []string {
	record := []string{
		row.Item, string(row.ItemKind), row.Assembly, row.Category, row.Material, row.MaterialName,
		formatFloat(row.Quantity), string(row.FunctionalUnit), string(row.Flow), row.Flow.Unit(),
	}
	for _, v := range row.Metrics.Values() {
		record = append(record, formatFloat(v))
	}
	return record
}

// Rows flattens the item breakdowns of r in item, entry then flow order.
// Comparison rows are not included.
func Rows(r *embodiedflows.Result) []Row {
	rows := make([]Row, 0)
	for _, item := range r.Items {
		for _, entry := range item.Breakdown.Entries() {
			for _, flow := range embodiedflows.DefinedFlows {
				rows = append(rows, Row{
					Item:           item.Name,
					ItemKind:       item.Kind,
					Assembly:       entry.Key.Assembly,
					Category:       entry.AssemblyCategory,
					Material:       entry.Key.Material,
					MaterialName:   entry.MaterialName,
					Quantity:       entry.Quantity,
					FunctionalUnit: entry.FunctionalUnit,
					Flow:           flow,
					Metrics:        entry.Totals.Get(flow),
				})
			}
		}
	}
	return rows
}

// WriteCSV writes the report details, the totals, every row and the bill of
// quantities. A comparison is written after the main result.
func WriteCSV(w io.Writer, r *embodiedflows.Result) error {
	records := resultRecords(r)
	if r.Comparison != nil {
		records = append(records, []string{}, []string{"*** COMPARISON ***"})
		records = append(records, resultRecords(r.Comparison)...)
	}
	if err := csv.NewWriter(w).WriteAll(records); err != nil {
		return fmt.Errorf("failed to write csv report: %w", err)
	}
	return nil
}

func resultRecords(r *embodiedflows.Result) [][]string {
	records := [][]string{
		{"report", r.Name},
		{"id", r.ID},
		{"period_of_analysis", formatFloat(r.PeriodYears), "years"},
		{},
		append([]string{"flow", "unit"}, embodiedflows.MetricNames...),
	}
	for _, flow := range embodiedflows.DefinedFlows {
		record := []string{string(flow), flow.Unit()}
		for _, v := range r.Totals.Get(flow).Values() {
			record = append(record, formatFloat(v))
		}
		records = append(records, record)
	}

	records = append(records, []string{}, Header)
	for _, row := range Rows(r) {
		records = append(records, row.record())
	}

	records = append(records, []string{}, []string{"material", "material_name", "quantity", "functional_unit"})
	for _, line := range r.BillOfQuantities() {
		records = append(records, []string{line.Material, line.Name, formatFloat(line.Quantity), string(line.FunctionalUnit)})
	}
	return records
}

// Text prints a human readable summary of r.
func Text(w io.Writer, r *embodiedflows.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	writeText(tw, r)
	if r.Comparison != nil {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "Comparison")
		writeText(tw, r.Comparison)
	}
	return tw.Flush()
}

var totalLines = []struct {
	name  string
	value func(m embodiedflows.Metrics) float64
}{
	{"Life cycle", func(m embodiedflows.Metrics) float64 { return m.LifeCycle }},
	{"Initial", func(m embodiedflows.Metrics) float64 { return m.Initial }},
	{"Initial wastage", func(m embodiedflows.Metrics) float64 { return m.InitialWastage }},
	{"Recurrent", func(m embodiedflows.Metrics) float64 { return m.Recurrent }},
	{"Recurrent wastage", func(m embodiedflows.Metrics) float64 { return m.RecurrentWastage }},
}

func writeText(tw *tabwriter.Writer, r *embodiedflows.Result) {
	fmt.Fprintf(tw, "%s\n", r.Name)
	fmt.Fprintf(tw, "Period of analysis: %s years\n\n", formatFloat(r.PeriodYears))

	fmt.Fprintln(tw, "\tEnergy (MJ)\tWater (L)\tGHG (kgCO₂e)\t")
	for _, line := range totalLines {
		values := make([]string, 0, len(embodiedflows.DefinedFlows))
		for _, flow := range embodiedflows.DefinedFlows {
			values = append(values, formatValue(line.value(r.Totals.Get(flow))))
		}
		fmt.Fprintf(tw, "%s\t%s\t\n", line.name, strings.Join(values, "\t"))
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "By item\tEnergy (MJ)\tWater (L)\tGHG (kgCO₂e)\t")
	for _, item := range r.Items {
		lc := item.Totals.LifeCycle()
		fmt.Fprintf(tw, "%s (%s)\t%s\t%s\t%s\t\n", item.Name, item.Kind, formatValue(lc.Energy), formatValue(lc.Water), formatValue(lc.GHG))
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "By material\tEnergy (MJ)\tWater (L)\tGHG (kgCO₂e)\t")
	for _, group := range r.ByMaterial() {
		lc := group.Totals.LifeCycle()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", group.Label, formatValue(lc.Energy), formatValue(lc.Water), formatValue(lc.GHG))
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

package embodiedflows

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
)

// Metric olds the name and value of a measurement in addition to its labels.
type Metric struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// Clone return a deep copy of a metric.
func (m Metric) Clone() Metric {
	copiedLabel := make(map[string]string, len(m.Labels))
	maps.Copy(copiedLabel, m.Labels)
	return Metric{
		Name:   m.Name,
		Value:  m.Value,
		Labels: copiedLabel,
	}
}

func (m *Metric) AddLabel(key, value string) *Metric {
	m.Labels = MergeLabels(m.Labels, map[string]string{key: value})
	return m
}

func (m *Metric) SanitizeLabels() *Metric {
	newLabels := make(map[string]string)
	invalidChars := []string{".", "/", "-", ":", ";", " "}
	for label, value := range m.Labels {
		for _, char := range invalidChars {
			label = strings.ReplaceAll(label, char, "_")
		}
		newLabels[label] = value
	}
	m.Labels = newLabels
	return m
}

// MergeLabels returns a new label set, values of later sets win.
func MergeLabels(labelSets ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, labels := range labelSets {
		maps.Copy(merged, labels)
	}
	return merged
}

// MetricName returns the exposition name of a flow, e.g. embodied_ghg_kgco2e.
func MetricName(flow Flow) string {
	unit := strings.ToLower(strings.NewReplacer("₂", "2").Replace(flow.Unit()))
	return "embodied_" + string(flow) + "_" + unit
}

// ResultMetrics flattens a result into metrics: one per flow and stage for the
// request totals, then one per flow and stage for every item breakdown entry.
func ResultMetrics(r *Result) []*Metric {
	metrics := make([]*Metric, 0)
	base := map[string]string{"analysis": r.Name}

	metrics = append(metrics, totalsMetrics(r.Totals, MergeLabels(base, map[string]string{"scope": "total"}))...)

	for _, item := range r.Items {
		for _, entry := range item.Breakdown.entries {
			labels := MergeLabels(base, map[string]string{
				"scope":    string(item.Kind),
				"item":     item.Name,
				"assembly": entry.Key.Assembly,
				"category": entry.AssemblyCategory,
				"material": entry.MaterialName,
			})
			metrics = append(metrics, totalsMetrics(entry.Totals, labels)...)
		}
	}

	if r.Comparison != nil {
		for _, metric := range ResultMetrics(r.Comparison) {
			metrics = append(metrics, metric.AddLabel("comparison", "true"))
		}
	}

	return metrics
}

func totalsMetrics(totals Totals, labels map[string]string) []*Metric {
	metrics := make([]*Metric, 0, len(DefinedFlows)*len(MetricNames))
	for _, flow := range DefinedFlows {
		for i, value := range totals.Get(flow).Values() {
			metrics = append(metrics, &Metric{
				Name:   MetricName(flow),
				Labels: MergeLabels(labels, map[string]string{"stage": MetricNames[i]}),
				Value:  value,
			})
		}
	}
	return metrics
}

// WriteOpenMetrics writes the result in the OpenMetrics text format.
func WriteOpenMetrics(w io.Writer, r *Result) error {
	for _, flow := range DefinedFlows {
		name := MetricName(flow)
		if _, err := fmt.Fprintf(w, "# TYPE %s gauge\n# UNIT %s %s\n", name, name, flow.Unit()); err != nil {
			return fmt.Errorf("writing metric header %s failed: %w", name, err)
		}
	}

	for _, metric := range ResultMetrics(r) {
		if err := writeMetric(w, metric); err != nil {
			return err
		}
	}

	_, err := io.WriteString(w, "# EOF\n")
	return err
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func writeMetric(w io.Writer, metric *Metric) error {
	// sanitize a copy, metrics returned by ResultMetrics stay untouched
	clone := metric.Clone()
	metric = clone.SanitizeLabels()

	// sort labels in lexicographical order
	labels := make([]string, 0, len(metric.Labels))
	for labelName, labelValue := range metric.Labels {
		labels = append(labels, fmt.Sprintf(`%s="%s"`, labelName, labelEscaper.Replace(labelValue)))
	}
	slices.SortFunc(labels, strings.Compare)

	_, err := fmt.Fprintf(w, "%s{%s} %0.10f\n", metric.Name, strings.Join(labels, ","), metric.Value)
	if err != nil {
		return fmt.Errorf("writing metric %s failed: %w", metric.Name, err)
	}

	return nil
}

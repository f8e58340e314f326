package report

import (
	embodiedflows "github.com/superdango/embodied-flows"
)

// Share splits a hybrid value into its process data and input-output parts.
type Share struct {
	// Process and IO are fractions summing to 1
	Process float64 `json:"process"`
	IO      float64 `json:"io"`
	// ProcessValue and IOValue are the value multiplied by each fraction
	ProcessValue float64 `json:"process_value"`
	IOValue      float64 `json:"io_value"`
}

func newShare(value, process float64) Share {
	return Share{
		Process:      process,
		IO:           1 - process,
		ProcessValue: value * process,
		IOValue:      value * (1 - process),
	}
}

// HybridBreakdown holds the share of every flow.
type HybridBreakdown struct {
	Energy Share `json:"energy"`
	Water  Share `json:"water"`
	GHG    Share `json:"ghg"`
}

func (h HybridBreakdown) Get(flow embodiedflows.Flow) Share {
	switch flow {
	case embodiedflows.Energy:
		return h.Energy
	case embodiedflows.Water:
		return h.Water
	case embodiedflows.GHG:
		return h.GHG
	}
	return Share{}
}

// Hybrid breaks the effective coefficients of m down into process and
// input-output shares. Custom materials carry no process share.
func Hybrid(m *embodiedflows.Material) HybridBreakdown {
	return HybridBreakdown{
		Energy: newShare(m.Effective.Energy, m.ProcessShares.Energy),
		Water:  newShare(m.Effective.Water, m.ProcessShares.Water),
		GHG:    newShare(m.Effective.GHG, m.ProcessShares.GHG),
	}
}

// HybridResult breaks the life cycle totals of r down by weighting every
// breakdown entry with the process shares of its material.
func HybridResult(r *embodiedflows.Result) HybridBreakdown {
	shares := make(map[string]embodiedflows.Flows, len(r.Materials))
	for _, m := range r.Materials {
		if key, found := r.MaterialKey(m); found {
			shares[key] = m.ProcessShares
		}
	}

	var total, process embodiedflows.Flows
	for _, entry := range r.Breakdown.Entries() {
		lc := entry.Totals.LifeCycle()
		share := shares[entry.Key.Material]
		total = total.Add(lc)
		process = process.Add(embodiedflows.Flows{
			Energy: lc.Energy * share.Energy,
			Water:  lc.Water * share.Water,
			GHG:    lc.GHG * share.GHG,
		})
	}

	fraction := func(flow embodiedflows.Flow) Share {
		if total.Get(flow) == 0 {
			return Share{}
		}
		return newShare(total.Get(flow), process.Get(flow)/total.Get(flow))
	}

	return HybridBreakdown{
		Energy: fraction(embodiedflows.Energy),
		Water:  fraction(embodiedflows.Water),
		GHG:    fraction(embodiedflows.GHG),
	}
}

package aggregator

import "podcastgen/internal/types"

type Summary struct {
	Total        int                     `json:"total"`
	Succeeded    int                     `json:"succeeded"`
	Failed       int                     `json:"failed"`
	SuccessRate  float64                 `json:"success_rate"`
	ByWorkflow   map[string]int          `json:"by_workflow"`
	FailedByKind map[types.ErrorKind]int `json:"failed_by_kind"`
	AvgMs        int64                   `json:"avg_duration_ms"`
}

// Summarize counts batch outcomes. Average duration covers successful rows only.
func Summarize(outcomes []types.BatchOutcome) Summary {
	s := Summary{
		Total:        len(outcomes),
		ByWorkflow:   map[string]int{},
		FailedByKind: map[types.ErrorKind]int{},
	}
	var totalMs int64
	for _, o := range outcomes {
		s.ByWorkflow[o.Workflow]++
		if o.Success {
			s.Succeeded++
			totalMs += o.DurationMs
			continue
		}
		s.Failed++
		kind := o.Kind
		if kind == "" {
			kind = types.KindInternal
		}
		s.FailedByKind[kind]++
	}
	if s.Total > 0 {
		s.SuccessRate = float64(s.Succeeded) / float64(s.Total)
	}
	if s.Succeeded > 0 {
		s.AvgMs = totalMs / int64(s.Succeeded)
	}
	return s
}

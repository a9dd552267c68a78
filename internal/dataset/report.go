package dataset

import (
	"fmt"
	"slices"

	"github.com/xuri/excelize/v2"

	"podcastgen/internal/aggregator"
	"podcastgen/internal/types"
)

const (
	resultsSheet = "Results"
	summarySheet = "Summary"
)

var resultsHeader = []interface{}{"Row", "ID", "Workflow", "Success", "Audio", "Kind", "Message", "Run ID", "Duration (ms)"}

// WriteReport saves batch outcomes and their summary to an xlsx workbook
// with a Results sheet and a Summary sheet.
func WriteReport(path string, outcomes []types.BatchOutcome, sum aggregator.Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(resultsSheet, "A1", &resultsHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, o := range outcomes {
		cellName, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			o.Item.Row, o.Item.ID, o.Workflow, o.Success, o.Audio,
			string(o.Kind), o.Message, o.RunID, o.DurationMs,
		}
		if err := f.SetSheetRow(resultsSheet, cellName, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := f.SetPanes(resultsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("add summary sheet: %w", err)
	}
	lines := [][]interface{}{
		{"Total", sum.Total},
		{"Succeeded", sum.Succeeded},
		{"Failed", sum.Failed},
		{"Success rate", sum.SuccessRate},
		{"Average duration (ms)", sum.AvgMs},
	}
	for _, wf := range sortedKeys(sum.ByWorkflow) {
		lines = append(lines, []interface{}{"Workflow: " + wf, sum.ByWorkflow[wf]})
	}
	kinds := make(map[string]int, len(sum.FailedByKind))
	for k, v := range sum.FailedByKind {
		kinds[string(k)] = v
	}
	for _, k := range sortedKeys(kinds) {
		lines = append(lines, []interface{}{"Failed: " + k, kinds[k]})
	}
	for i, line := range lines {
		cellName, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cellName, &line); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

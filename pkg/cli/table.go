package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/YuminosukeSato/shapscale/analysis"
	"github.com/YuminosukeSato/shapscale/metrics"
)

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetHeader(header)
	return table
}

// writeContributions prints one row per category and one column per grid size.
func writeContributions(w io.Writer, res *analysis.TargetResult) error {
	if _, err := fmt.Fprintf(w, "%s\n", res.Target); err != nil {
		return err
	}
	table := newTable(w, append([]string{"Category"}, res.GridSizes()...))
	for c, row := range res.Values() {
		cells := make([]string, 0, len(row)+1)
		cells = append(cells, res.Categories[c])
		for _, v := range row {
			cells = append(cells, formatScore(v))
		}
		table.Append(cells)
	}
	table.Render()
	return nil
}

// writeImportances prints the top features by mean |SHAP|; top <= 0 prints all.
func writeImportances(w io.Writer, importances []metrics.FeatureImportance, top int) {
	if top > 0 && top < len(importances) {
		importances = importances[:top]
	}
	table := newTable(w, []string{"#", "Feature", "Mean |SHAP|"})
	for i, fi := range importances {
		table.Append([]string{strconv.Itoa(i + 1), fi.Name, formatScore(fi.Score)})
	}
	table.Render()
}

func writeCategorySums(w io.Writer, categories []metrics.Category, contributions []float64) {
	table := newTable(w, []string{"Category", "Sum of mean |SHAP|"})
	for c, cat := range categories {
		table.Append([]string{cat.Name, formatScore(contributions[c])})
	}
	table.Render()
}

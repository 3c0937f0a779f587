package render

import (
	"bytes"
	"fmt"

	"github.com/banshee-data/hextile/internal/fsutil"
	"github.com/banshee-data/hextile/internal/trials"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// TrialCostChart builds a bar chart of total and mean centroid
// displacement per trial. Trials that did not finish show as gaps.
func TrialCostChart(report *trials.Report, subtitle string) *charts.Bar {
	x := make([]string, 0, len(report.Trials))
	total := make([]opts.BarData, 0, len(report.Trials))
	mean := make([]opts.BarData, 0, len(report.Trials))
	for _, t := range report.Trials {
		x = append(x, fmt.Sprintf("trial %d", t.Index))
		if t.State != trials.StateDone {
			total = append(total, opts.BarData{Value: "-", Name: t.State.String()})
			mean = append(mean, opts.BarData{Value: "-", Name: t.State.String()})
			continue
		}
		total = append(total, opts.BarData{Value: t.TotalCost})
		mean = append(mean, opts.BarData{Value: t.MeanCost})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Hex assignment trials", Width: "100%", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{Title: "Centroid displacement per trial", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("total", total,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: viridisHex[2]}),
		).
		AddSeries("mean", mean,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: viridisHex[7]}),
		)
	return bar
}

// WriteTrialChart renders the trial chart as a standalone HTML page.
func WriteTrialChart(fsys fsutil.FileSystem, path string, report *trials.Report, subtitle string) error {
	page := components.NewPage()
	page.AddCharts(TrialCostChart(report, subtitle))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	if err := fsys.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

package cli

import (
	"context"
	"io"

	urfave "github.com/urfave/cli/v3"

	"github.com/YuminosukeSato/shapscale/analysis"
	"github.com/YuminosukeSato/shapscale/chart"
	"github.com/YuminosukeSato/shapscale/pkg/config"
	"github.com/YuminosukeSato/shapscale/pkg/errors"
	"github.com/YuminosukeSato/shapscale/pkg/log"
)

const (
	configFlag  = "config"
	outputFlag  = "output"
	showFlag    = "show"
	workersFlag = "workers"
)

func newRunCmd() *urfave.Command {
	return &urfave.Command{
		Name:  "run",
		Usage: "Explain every target, print the category tables and draw the chart",
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:      configFlag,
				Aliases:   []string{"c"},
				Usage:     "Path to the analysis YAML (see `shapscale config`)",
				TakesFile: true,
				Required:  true,
			},
			&urfave.StringFlag{
				Name:      outputFlag,
				Aliases:   []string{"o"},
				Usage:     "Chart file; the extension picks the format (png, svg, pdf, ...)",
				TakesFile: true,
			},
			&urfave.BoolFlag{
				Name:  showFlag,
				Usage: "Also draw the chart in the terminal as sixel",
			},
			&urfave.IntFlag{
				Name:  workersFlag,
				Usage: "Model/dataset pairs explained at once (0: one per pair)",
			},
		},
		Action: runAction,
	}
}

func runAction(ctx context.Context, cmd *urfave.Command) error {
	cfg, err := config.Load(cmd.String(configFlag))
	if err != nil {
		return err
	}
	if cmd.IsSet(outputFlag) {
		cfg.Chart.Output = cmd.String(outputFlag)
	}
	if cmd.IsSet(workersFlag) {
		cfg.Workers = int(cmd.Int(workersFlag))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	fig, err := runTargets(ctx, cfg, stdout(cmd))
	if err != nil {
		return err
	}
	if err := fig.Save(cfg.Chart.Output); err != nil {
		return err
	}
	log.GetLoggerWithName("cli").Info("chart written", log.OutputPathKey, cfg.Chart.Output)

	if cmd.Bool(showFlag) {
		return fig.Display(stdout(cmd))
	}
	return nil
}

// runTargets explains the targets in order, printing a table after each,
// and returns the figure with one panel per target.
func runTargets(ctx context.Context, cfg *config.Config, w io.Writer) (*chart.Figure, error) {
	series, err := cfg.Series()
	if err != nil {
		return nil, err
	}
	fig := &chart.Figure{
		Series:      series,
		GridSizes:   cfg.GridSizes,
		XLabel:      cfg.Chart.XLabel,
		YLabel:      cfg.Chart.YLabel,
		LegendTitle: cfg.Chart.LegendTitle,
		YTicks:      cfg.Chart.YTicks,
		Width:       chart.Inches(cfg.Chart.WidthIn),
		Height:      chart.Inches(cfg.Chart.HeightIn),
	}

	analyzer := analysis.New(cfg.MetricCategories(), analysis.WithWorkers(cfg.Workers))
	log.GetLoggerWithName("cli").Debug("starting analysis", log.WorkersKey, cfg.Workers)
	for _, target := range cfg.Targets {
		pairs := make([]analysis.Pair, len(cfg.GridSizes))
		for g, size := range cfg.GridSizes {
			pairs[g] = analysis.Pair{GridSize: size, ModelPath: target.Models[g], DataPath: target.Datasets[g]}
		}
		res, err := analyzer.RunTarget(ctx, target.Name, pairs)
		if err != nil {
			return nil, err
		}
		if err := writeContributions(w, res); err != nil {
			return nil, errors.Wrapf(err, "print target %s", target.Name)
		}
		fig.Panels = append(fig.Panels, chart.Panel{Title: target.Name, Values: res.Values()})
	}
	return fig, nil
}

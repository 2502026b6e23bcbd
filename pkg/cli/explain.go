package cli

import (
	"context"
	"fmt"
	"os"

	urfave "github.com/urfave/cli/v3"

	"github.com/YuminosukeSato/shapscale/analysis"
	"github.com/YuminosukeSato/shapscale/pkg/config"
	"github.com/YuminosukeSato/shapscale/pkg/errors"
)

const (
	modelFlag = "model"
	dataFlag  = "data"
	topFlag   = "top"
)

func newExplainCmd() *urfave.Command {
	return &urfave.Command{
		Name:  "explain",
		Usage: "Explain a single model/dataset pair",
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:      modelFlag,
				Aliases:   []string{"m"},
				Usage:     "XGBoost JSON or LightGBM text model",
				TakesFile: true,
				Required:  true,
			},
			&urfave.StringFlag{
				Name:      dataFlag,
				Aliases:   []string{"d"},
				Usage:     "CSV dataset with a header row",
				TakesFile: true,
				Required:  true,
			},
			&urfave.StringFlag{
				Name:      configFlag,
				Aliases:   []string{"c"},
				Usage:     "Analysis YAML to take the categories from (default: built-in categories)",
				TakesFile: true,
			},
			&urfave.IntFlag{
				Name:  topFlag,
				Usage: "Print only the N most important features (0: all)",
				Validator: func(n int64) error {
					if n < 0 {
						return errors.NewValidationError(topFlag, "must not be negative", n)
					}
					return nil
				},
			},
		},
		Action: explainAction,
	}
}

func explainAction(ctx context.Context, cmd *urfave.Command) error {
	cfg := config.Default()
	if path := cmd.String(configFlag); path != "" {
		var err error
		if cfg, err = readCategories(path); err != nil {
			return err
		}
	}
	categories := cfg.MetricCategories()

	res, err := analysis.New(categories).ExplainPair(ctx, analysis.Pair{
		ModelPath: cmd.String(modelFlag),
		DataPath:  cmd.String(dataFlag),
	})
	if err != nil {
		return err
	}

	w := stdout(cmd)
	fmt.Fprintf(w, "model: %s\ndata: %s\nrows: %d\nbase value: %s\nmean prediction: %s\n\n",
		res.ModelPath, res.DataPath, res.Rows, formatScore(res.BaseValue), formatScore(res.MeanPrediction))
	writeImportances(w, res.Importances, int(cmd.Int(topFlag)))
	fmt.Fprintln(w)
	writeCategorySums(w, categories, res.Contributions)
	return nil
}

// readCategories reads a config file for its categories only, so a file
// without targets is accepted.
func readCategories(path string) (*config.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open config %s", path)
	}
	defer file.Close()

	cfg, err := config.Read(file)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	if err := cfg.ValidateCategories(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

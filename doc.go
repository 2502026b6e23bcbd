// Package shapscale measures how the drivers of a tree-ensemble model shift
// with the spatial grid size of its training data.
//
// For every target (for example AMT and AMT-var) and every grid size, an
// XGBoost or LightGBM model is explained on its dataset with exact TreeSHAP.
// The mean absolute SHAP value of each feature is summed into feature
// categories, and the category sums are drawn as one log-scaled panel per
// target with the grid sizes along the x axis.
//
// # Quick Start
//
// Print the default configuration, fill in the model and dataset paths and
// run the analysis:
//
//	shapscale config > analysis.yaml
//	shapscale run --config analysis.yaml --output shap_categories.png
//
// A single pair can be inspected without a configuration file:
//
//	shapscale explain --model models/AMT_grid25.json --data data/grid25.csv --top 10
//
// # Packages
//
//   - sklearn/ensemble: XGBoost JSON and LightGBM text models, TreeSHAP
//   - dataset: CSV feature tables aligned to model features
//   - metrics: mean |SHAP| per feature and per category
//   - analysis: concurrent explain-and-aggregate runs per target
//   - chart: multi-panel log-scale chart, file and sixel output
//   - pkg/config: YAML analysis configuration
//   - pkg/cli: the shapscale command
//   - pkg/errors, pkg/log: error types, warnings and structured logging
//   - core/parallel: parallel processing utilities
//
// # Library Use
//
//	cfg, err := config.Load("analysis.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	a := analysis.New(cfg.MetricCategories(), analysis.WithWorkers(cfg.Workers))
//	res, err := a.RunTarget(ctx, "AMT", pairs)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Values()) // [category][grid size]
package shapscale

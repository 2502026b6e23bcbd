// Package analysis runs the load, explain and aggregate steps for every
// model/dataset pair of a target.
package analysis

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/shapscale/core/model"
	"github.com/YuminosukeSato/shapscale/dataset"
	"github.com/YuminosukeSato/shapscale/metrics"
	"github.com/YuminosukeSato/shapscale/pkg/errors"
	"github.com/YuminosukeSato/shapscale/pkg/log"
	"github.com/YuminosukeSato/shapscale/sklearn/ensemble"
)

// Pair is one model and its dataset at one grid size.
type Pair struct {
	GridSize  string
	ModelPath string
	DataPath  string
}

// PairResult is the attribution summary of one pair.
type PairResult struct {
	Pair
	Rows      int
	BaseValue float64
	// MeanPrediction is the mean model output on the prediction scale.
	MeanPrediction float64
	// Contributions holds one value per category, in category order.
	Contributions []float64
	// Importances is every model feature by mean |SHAP|, highest first.
	Importances []metrics.FeatureImportance
}

// TargetResult collects the pairs of one target in grid-size order.
type TargetResult struct {
	Target     string
	Categories []string
	Pairs      []PairResult
}

// GridSizes returns the grid-size labels in order.
func (r *TargetResult) GridSizes() []string {
	out := make([]string, len(r.Pairs))
	for i, p := range r.Pairs {
		out[i] = p.GridSize
	}
	return out
}

// Values returns Values[category][grid size].
func (r *TargetResult) Values() [][]float64 {
	out := make([][]float64, len(r.Categories))
	for c := range out {
		out[c] = make([]float64, len(r.Pairs))
		for g, p := range r.Pairs {
			out[c][g] = p.Contributions[c]
		}
	}
	return out
}

// ExplainerFunc builds the explainer used for a loaded model.
type ExplainerFunc func(m *ensemble.Model) model.Explainer

// Analyzer explains pairs and aggregates their attributions into categories.
type Analyzer struct {
	categories   []metrics.Category
	workers      int
	shapOpts     []ensemble.TreeSHAPOption
	newExplainer ExplainerFunc
	logger       log.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithWorkers bounds the pairs explained at once. 0 runs every pair at once.
func WithWorkers(n int) Option {
	return func(a *Analyzer) {
		a.workers = n
	}
}

// WithTreeSHAPOptions passes options to every TreeSHAP.
func WithTreeSHAPOptions(opts ...ensemble.TreeSHAPOption) Option {
	return func(a *Analyzer) {
		a.shapOpts = append(a.shapOpts, opts...)
	}
}

// WithExplainer replaces the default TreeSHAP explainer.
func WithExplainer(f ExplainerFunc) Option {
	return func(a *Analyzer) {
		a.newExplainer = f
	}
}

// WithLogger replaces the component logger.
func WithLogger(l log.Logger) Option {
	return func(a *Analyzer) {
		a.logger = l
	}
}

// New returns an Analyzer for the given categories.
func New(categories []metrics.Category, opts ...Option) *Analyzer {
	a := &Analyzer{categories: categories}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = log.GetLoggerWithName("analysis")
	}
	if a.newExplainer == nil {
		a.newExplainer = func(m *ensemble.Model) model.Explainer {
			return ensemble.NewTreeSHAP(m, a.shapOpts...)
		}
	}
	return a
}

// RunTarget explains every pair of a target. Results keep the input order
// no matter which pair finishes first; the first failure cancels the rest.
func (a *Analyzer) RunTarget(ctx context.Context, target string, pairs []Pair) (*TargetResult, error) {
	if len(pairs) == 0 {
		return nil, errors.Wrapf(errors.ErrEmptyData, "target %s has no model/dataset pairs", target)
	}
	logger := a.logger.With(log.TargetKey, target)

	results := make([]PairResult, len(pairs))
	g, ctx := errgroup.WithContext(ctx)
	if a.workers > 0 {
		g.SetLimit(a.workers)
	}
	for i := range pairs {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return errors.WithStack(err)
			}
			res, err := a.explainPair(logger.With(log.PairIndexKey, i), pairs[i])
			if err != nil {
				return errors.Wrapf(err, "target %s grid size %s", target, pairs[i].GridSize)
			}
			results[i] = *res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	names := make([]string, len(a.categories))
	for c, cat := range a.categories {
		names[c] = cat.Name
	}
	return &TargetResult{Target: target, Categories: names, Pairs: results}, nil
}

// ExplainPair explains a single pair.
func (a *Analyzer) ExplainPair(ctx context.Context, pair Pair) (*PairResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return a.explainPair(a.logger, pair)
}

func (a *Analyzer) explainPair(logger log.Logger, pair Pair) (*PairResult, error) {
	start := time.Now()
	logger = logger.With(log.GridSizeKey, pair.GridSize)

	m, err := ensemble.LoadModelFile(pair.ModelPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("model loaded",
		log.ModelPathKey, pair.ModelPath,
		log.ModelFormatKey, m.Format,
		log.ObjectiveKey, m.Objective,
		log.TreesKey, len(m.Trees),
		log.MaxDepthKey, m.MaxDepth(),
	)

	frame, err := dataset.ReadCSVFile(pair.DataPath)
	if err != nil {
		return nil, err
	}
	X, err := frame.AlignTo(m.FeatureNames, m.NumFeatures)
	if err != nil {
		return nil, err
	}
	names := m.FeatureNames
	if len(names) == 0 {
		names = frame.Columns
	}

	values, base, err := a.newExplainer(m).Explain(X)
	if err != nil {
		return nil, errors.Wrapf(err, "explain %s", pair.ModelPath)
	}
	meanPred, err := meanPrediction(m, X)
	if err != nil {
		return nil, errors.Wrapf(err, "predict %s", pair.ModelPath)
	}

	for _, missing := range metrics.UnmatchedFeatures(names, a.categories) {
		errors.Warn(errors.NewUnmatchedFeatureWarning(missing.Name, missing.Features, pair.DataPath))
	}
	contributions, err := metrics.CategoryContributions(values, names, a.categories)
	if err != nil {
		return nil, err
	}
	importances, err := metrics.FeatureImportances(values, names)
	if err != nil {
		return nil, err
	}

	logger.Info("pair explained",
		log.DataPathKey, pair.DataPath,
		log.SamplesKey, frame.Rows(),
		log.FeaturesKey, len(names),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return &PairResult{
		Pair:           pair,
		Rows:           frame.Rows(),
		BaseValue:      base,
		MeanPrediction: meanPred,
		Contributions:  contributions,
		Importances:    importances,
	}, nil
}

// meanPrediction averages the predictions of p over the rows of X.
func meanPrediction(p model.Predictor, X mat.Matrix) (float64, error) {
	pred, err := p.Predict(X)
	if err != nil {
		return 0, err
	}
	rows, _ := pred.Dims()
	sum := 0.0
	for i := 0; i < rows; i++ {
		sum += pred.At(i, 0)
	}
	return sum / float64(rows), nil
}

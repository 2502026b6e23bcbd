package analysis

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/shapscale/core/model"
	"github.com/YuminosukeSato/shapscale/metrics"
	"github.com/YuminosukeSato/shapscale/pkg/errors"
	"github.com/YuminosukeSato/shapscale/pkg/log"
	"github.com/YuminosukeSato/shapscale/sklearn/ensemble"
)

// xgbStump splits on feature FEATURE at 0.5 with leaves -LEAF and +LEAF of equal cover,
// so the expected value is the base score and |phi| of that feature is LEAF for every row.
const xgbStump = `{
  "learner": {
    "feature_names": ["Elevation", "Slope", "Forest"],
    "gradient_booster": {"name": "gbtree", "model": {"trees": [{
      "default_left": [0, 0, 0],
      "left_children": [1, -1, -1],
      "right_children": [2, -1, -1],
      "split_conditions": [0.5, -LEAF, LEAF],
      "split_indices": [FEATURE, 0, 0],
      "sum_hessian": [2, 1, 1]
    }]}},
    "learner_model_param": {"base_score": "5E-1", "num_class": "0", "num_feature": "3"},
    "objective": {"name": "reg:squarederror"}
  },
  "version": [2, 0, 3]
}`

// lgbStump splits Slope at 1.5 with leaves -0.5 and 0.5.
const lgbStump = `tree
version=v3
num_class=1
num_tree_per_iteration=1
max_feature_idx=2
objective=regression
feature_names=Elevation Slope Forest

Tree=0
num_leaves=2
num_cat=0
split_feature=1
split_gain=1
threshold=1.5
decision_type=2
left_child=-1
right_child=-2
leaf_value=-0.5 0.5
leaf_weight=1 1
leaf_count=1 1
internal_value=0
internal_weight=2
internal_count=2
is_linear=0
shrinkage=1


end of trees
`

// Columns are deliberately out of model order and carry an extra column.
const gridData = `Forest,Slope,Elevation,Station
0,1,0.2,7
1,2,0.8,7
`

var testCategories = []metrics.Category{
	{Name: "Topography", Features: []string{"Elevation", "Slope"}},
	{Name: "Land Cover", Features: []string{"Forest"}},
	{Name: "Climate", Features: []string{"LST"}},
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func xgbModel(feature, leaf string) string {
	return strings.NewReplacer("FEATURE", feature, "LEAF", leaf).Replace(xgbStump)
}

// testPairs builds grid sizes 1, 25 and 100 with known attributions:
// Topography 1, 0, 0.5 and Land Cover 0, 2, 0.
func testPairs(t *testing.T) []Pair {
	t.Helper()
	dir := t.TempDir()
	data := writeFile(t, dir, "data.csv", gridData)
	return []Pair{
		{GridSize: "1", ModelPath: writeFile(t, dir, "grid1.json", xgbModel("0", "1")), DataPath: data},
		{GridSize: "25", ModelPath: writeFile(t, dir, "grid25.json", xgbModel("2", "2")), DataPath: data},
		{GridSize: "100", ModelPath: writeFile(t, dir, "grid100.txt", lgbStump), DataPath: data},
	}
}

// silenceWarnings collects warnings for the duration of the test.
func silenceWarnings(t *testing.T) func() []error {
	t.Helper()
	var (
		mu       sync.Mutex
		warnings []error
	)
	errors.SetZerologWarnFunc(nil)
	errors.SetWarningHandler(func(w error) {
		mu.Lock()
		defer mu.Unlock()
		warnings = append(warnings, w)
	})
	t.Cleanup(func() { errors.SetWarningHandler(func(error) {}) })
	return func() []error {
		mu.Lock()
		defer mu.Unlock()
		return append([]error(nil), warnings...)
	}
}

func quietLogger() log.Logger {
	logger, _ := log.NewTestLogger(log.LevelError)
	return logger
}

func TestRunTarget(t *testing.T) {
	silenceWarnings(t)
	a := New(testCategories, WithLogger(quietLogger()), WithWorkers(2))

	res, err := a.RunTarget(context.Background(), "AMT", testPairs(t))
	require.NoError(t, err)

	assert.Equal(t, "AMT", res.Target)
	assert.Equal(t, []string{"Topography", "Land Cover", "Climate"}, res.Categories)
	assert.Equal(t, []string{"1", "25", "100"}, res.GridSizes())

	values := res.Values()
	require.Len(t, values, 3)
	assert.InDeltaSlice(t, []float64{1, 0, 0.5}, values[0], 1e-12)
	assert.InDeltaSlice(t, []float64{0, 2, 0}, values[1], 1e-12)
	assert.Equal(t, []float64{0, 0, 0}, values[2], "no feature of the category exists")

	first := res.Pairs[0]
	assert.Equal(t, 2, first.Rows)
	assert.InDelta(t, 0.5, first.BaseValue, 1e-12)
	require.Len(t, first.Importances, 3)
	assert.Equal(t, "Elevation", first.Importances[0].Name)
	assert.InDelta(t, 1, first.Importances[0].Score, 1e-12)
}

func TestRunTarget_Deterministic(t *testing.T) {
	silenceWarnings(t)
	pairs := testPairs(t)

	serial, err := New(testCategories, WithLogger(quietLogger()), WithWorkers(1)).
		RunTarget(context.Background(), "AMT", pairs)
	require.NoError(t, err)
	concurrent, err := New(testCategories, WithLogger(quietLogger())).
		RunTarget(context.Background(), "AMT", pairs)
	require.NoError(t, err)

	assert.Equal(t, serial.Values(), concurrent.Values())
	assert.Equal(t, serial.GridSizes(), concurrent.GridSizes())
}

func TestRunTarget_UnmatchedFeatureWarning(t *testing.T) {
	warnings := silenceWarnings(t)
	_, err := New(testCategories, WithLogger(quietLogger())).
		RunTarget(context.Background(), "AMT", testPairs(t)[:1])
	require.NoError(t, err)

	var unmatched []*errors.UnmatchedFeatureWarning
	for _, w := range warnings() {
		if u, ok := w.(*errors.UnmatchedFeatureWarning); ok {
			unmatched = append(unmatched, u)
		}
	}
	require.Len(t, unmatched, 1)
	assert.Equal(t, "Climate", unmatched[0].Category)
	assert.Equal(t, []string{"LST"}, unmatched[0].Features)
	assert.True(t, strings.HasSuffix(unmatched[0].Source, "data.csv"))
}

func TestRunTarget_Logging(t *testing.T) {
	silenceWarnings(t)
	logger, _ := log.NewTestLogger(log.LevelDebug)

	_, err := New(testCategories, WithLogger(logger)).
		RunTarget(context.Background(), "AMT-var", testPairs(t))
	require.NoError(t, err)

	assert.True(t, logger.ContainsMessage("model loaded"))
	assert.True(t, logger.ContainsMessage("pair explained"))
	assert.True(t, logger.ContainsField(log.TargetKey, "AMT-var"))
	assert.True(t, logger.ContainsField(log.GridSizeKey, "25"))
	assert.True(t, logger.ContainsField(log.ModelFormatKey, "lightgbm"))
	assert.True(t, logger.ContainsField(log.SamplesKey, float64(2)))
}

func TestRunTarget_Errors(t *testing.T) {
	silenceWarnings(t)
	a := New(testCategories, WithLogger(quietLogger()))

	t.Run("no pairs", func(t *testing.T) {
		_, err := a.RunTarget(context.Background(), "AMT", nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrEmptyData))
		assert.Contains(t, err.Error(), "AMT")
	})

	t.Run("missing model names the grid size", func(t *testing.T) {
		pairs := testPairs(t)
		pairs[1].ModelPath = filepath.Join(t.TempDir(), "absent.json")
		_, err := a.RunTarget(context.Background(), "AMT", pairs)
		require.Error(t, err)
		assert.True(t, errors.Is(err, os.ErrNotExist))
		assert.Contains(t, err.Error(), "target AMT grid size 25")
	})

	t.Run("dataset lacks a model feature", func(t *testing.T) {
		pairs := testPairs(t)
		pairs[0].DataPath = writeFile(t, t.TempDir(), "short.csv", "Elevation,Slope\n0.1,1\n")
		_, err := a.RunTarget(context.Background(), "AMT", pairs)
		var valErr *errors.ValidationError
		require.True(t, errors.As(err, &valErr))
		assert.Equal(t, "Forest", valErr.Value)
	})

	t.Run("empty dataset", func(t *testing.T) {
		pairs := testPairs(t)
		pairs[2].DataPath = writeFile(t, t.TempDir(), "empty.csv", "Elevation,Slope,Forest\n")
		_, err := a.RunTarget(context.Background(), "AMT", pairs)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrEmptyData))
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := a.RunTarget(ctx, "AMT", testPairs(t))
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestExplainPair(t *testing.T) {
	silenceWarnings(t)
	a := New(testCategories[:2], WithLogger(quietLogger()))
	pair := testPairs(t)[2]

	res, err := a.ExplainPair(context.Background(), pair)
	require.NoError(t, err)
	assert.Equal(t, pair, res.Pair)
	assert.InDeltaSlice(t, []float64{0.5, 0}, res.Contributions, 1e-12)
	assert.Equal(t, "Slope", res.Importances[0].Name)
	// -0.5 and 0.5 under the identity link
	assert.InDelta(t, 0, res.MeanPrediction, 1e-12)

	res, err = a.ExplainPair(context.Background(), testPairs(t)[0])
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.BaseValue, 1e-12)
	assert.InDelta(t, 0.5, res.MeanPrediction, 1e-12)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.ExplainPair(ctx, pair)
	assert.True(t, errors.Is(err, context.Canceled))
}

// fixedExplainer attributes a constant to every cell.
type fixedExplainer struct {
	value float64
	base  float64
}

func (f fixedExplainer) Explain(X mat.Matrix) (*mat.Dense, float64, error) {
	rows, cols := X.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Set(i, j, f.value)
		}
	}
	return out, f.base, nil
}

func TestWithExplainer(t *testing.T) {
	silenceWarnings(t)
	var loaded []string
	var mu sync.Mutex
	a := New(testCategories[:2], WithLogger(quietLogger()), WithExplainer(func(m *ensemble.Model) model.Explainer {
		mu.Lock()
		defer mu.Unlock()
		loaded = append(loaded, m.Format)
		return fixedExplainer{value: -0.25, base: 3}
	}))

	res, err := a.RunTarget(context.Background(), "AMT", testPairs(t))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ensemble.FormatXGBoost, ensemble.FormatXGBoost, ensemble.FormatLightGBM}, loaded)
	for _, p := range res.Pairs {
		assert.Equal(t, 3.0, p.BaseValue)
		// Elevation and Slope each contribute mean |-0.25|.
		assert.InDeltaSlice(t, []float64{0.5, 0.25}, p.Contributions, 1e-12)
	}

	t.Run("explainer error", func(t *testing.T) {
		a := New(testCategories, WithLogger(quietLogger()), WithExplainer(func(m *ensemble.Model) model.Explainer {
			return ensemble.NewTreeSHAP(nil)
		}))
		_, err := a.ExplainPair(context.Background(), testPairs(t)[0])
		var valueErr *errors.ValueError
		require.True(t, errors.As(err, &valueErr))
		assert.Contains(t, err.Error(), "explain ")
	})
}

package ensemble

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/shapscale/pkg/errors"
)

const xgbTrees = `[
  {
    "base_weights": [0, 0, 0, 0, 0],
    "categories": [], "categories_nodes": [], "categories_segments": [], "categories_sizes": [],
    "default_left": [true, false, false, false, false],
    "id": 0,
    "left_children": [1, -1, 3, -1, -1],
    "loss_changes": [1.5, 0, 0.7, 0, 0],
    "parents": [2147483647, 0, 0, 2, 2],
    "right_children": [2, -1, 4, -1, -1],
    "split_conditions": [0.5, 0.1, 1.0, 0.2, 0.3],
    "split_indices": [0, 0, 1, 0, 0],
    "split_type": [0, 0, 0, 0, 0],
    "sum_hessian": [10, 4, 6, 3, 3],
    "tree_param": {"num_deleted": "0", "num_feature": "3", "num_nodes": "5", "size_leaf_vector": "1"}
  },
  {
    "default_left": [0, 0, 0],
    "id": 1,
    "left_children": [1, -1, -1],
    "right_children": [2, -1, -1],
    "split_conditions": [2.0, -0.05, 0.05],
    "split_indices": [2, 0, 0],
    "split_type": [0, 0, 0],
    "sum_hessian": [10, 5, 5]
  }
]`

const xgbTemplate = `{
  "learner": {
    "attributes": {},
    "feature_names": ["Elevation", "Slope", "Forest"],
    "feature_types": ["float", "float", "float"],
    "gradient_booster": BOOSTER,
    "learner_model_param": {"base_score": "BASE", "boost_from_average": "1", "num_class": "NUMCLASS", "num_feature": "3", "num_target": "1"},
    "objective": {"name": "OBJECTIVE", "reg_loss_param": {"scale_pos_weight": "1"}}
  },
  "version": [2, 0, 3]
}`

type xgbFixture struct {
	booster   string
	base      string
	numClass  string
	objective string
}

func (f xgbFixture) json() string {
	if f.booster == "" {
		f.booster = `{"name": "gbtree", "model": {"gbtree_model_param": {"num_parallel_tree": "1", "num_trees": "2"}, "iteration_indptr": [0, 1, 2], "tree_info": [0, 0], "trees": ` + xgbTrees + `}}`
	}
	if f.base == "" {
		f.base = "[5E-1]"
	}
	if f.numClass == "" {
		f.numClass = "0"
	}
	if f.objective == "" {
		f.objective = "reg:squarederror"
	}
	return strings.NewReplacer(
		"BOOSTER", f.booster,
		"BASE", f.base,
		"NUMCLASS", f.numClass,
		"OBJECTIVE", f.objective,
	).Replace(xgbTemplate)
}

func TestLoadXGBoostJSON(t *testing.T) {
	m, err := LoadXGBoostJSON(strings.NewReader(xgbFixture{}.json()))
	require.NoError(t, err)

	assert.Equal(t, FormatXGBoost, m.Format)
	assert.Equal(t, "reg:squarederror", m.Objective)
	assert.Equal(t, 3, m.NumFeatures)
	assert.Equal(t, 1, m.NumClass)
	assert.Equal(t, []string{"Elevation", "Slope", "Forest"}, m.FeatureNames)
	assert.Equal(t, 0.5, m.BaseMargin)
	require.Len(t, m.Trees, 2)
	assert.Equal(t, 2, m.MaxDepth())

	X := mat.NewDense(3, 3, []float64{
		0.2, 0, 3,
		math.NaN(), 0, 0,
		0.7, 2.0, 1,
	})
	margin, err := m.PredictMargin(X)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.65, 0.55, 0.75}, margin.RawMatrix().Data, 1e-12)

	// 0.5 + (4*0.1 + 3*0.2 + 3*0.3)/10 + 0
	assert.InDelta(t, 0.69, m.ExpectedValue(), 1e-12)
}

func TestLoadXGBoostJSON_BaseScore(t *testing.T) {
	tests := []struct {
		name      string
		base      string
		objective string
		want      float64
	}{
		{"plain string", "5E-1", "reg:squarederror", 0.5},
		{"bracketed", "[2.5E0]", "reg:squarederror", 2.5},
		{"logistic uses logit", "[5E-1]", "binary:logistic", 0},
		{"logistic 0.8", "8E-1", "binary:logistic", math.Log(4)},
		{"poisson uses log", "2E0", "count:poisson", math.Log(2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := LoadXGBoostJSON(strings.NewReader(xgbFixture{base: tt.base, objective: tt.objective}.json()))
			require.NoError(t, err)
			assert.InDelta(t, tt.want, m.BaseMargin, 1e-12)
		})
	}
}

func TestLoadXGBoostJSON_LogisticPredict(t *testing.T) {
	m, err := LoadXGBoostJSON(strings.NewReader(xgbFixture{objective: "binary:logistic"}.json()))
	require.NoError(t, err)

	X := mat.NewDense(1, 3, []float64{0.2, 0, 3})
	p, err := m.Predict(X)
	require.NoError(t, err)
	// margin = 0 + 0.1 + 0.05
	assert.InDelta(t, 1/(1+math.Exp(-0.15)), p.At(0, 0), 1e-12)
}

func TestLoadXGBoostJSON_Dart(t *testing.T) {
	booster := `{"name": "dart", "gbtree": {"name": "gbtree", "model": {"trees": ` + xgbTrees + `}}, "weight_drop": [0.5, 2]}`
	m, err := LoadXGBoostJSON(strings.NewReader(xgbFixture{booster: booster}.json()))
	require.NoError(t, err)

	margin, err := m.PredictMargin(mat.NewDense(1, 3, []float64{0.2, 0, 3}))
	require.NoError(t, err)
	assert.InDelta(t, 0.5+0.5*0.1+2*0.05, margin.At(0, 0), 1e-12)
}

func TestLoadXGBoostJSON_Float32Split(t *testing.T) {
	booster := `{"name": "gbtree", "model": {"trees": [{
		"default_left": [0, 0, 0], "left_children": [1, -1, -1], "right_children": [2, -1, -1],
		"split_conditions": [0.12345679, -1, 1], "split_indices": [0, 0, 0], "sum_hessian": [2, 1, 1]}]}}`
	m, err := LoadXGBoostJSON(strings.NewReader(xgbFixture{booster: booster, base: "0E0"}.json()))
	require.NoError(t, err)
	assert.Equal(t, float64(float32(0.12345679)), m.Trees[0].Nodes[0].Threshold)

	// 0.123456789 rounds to the same float32 as the split value, so it is not below it.
	X := mat.NewDense(2, 3, []float64{
		0.123456789, 0, 0,
		0.1234567, 0, 0,
	})
	margin, err := m.PredictMargin(X)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -1}, margin.RawMatrix().Data)

	sv, err := NewTreeSHAP(m).CalculateSHAP(X)
	require.NoError(t, err)
	assert.InDelta(t, 1, sv.Values.At(0, 0), 1e-12)
	assert.InDelta(t, -1, sv.Values.At(1, 0), 1e-12)
	assert.InDelta(t, 0, sv.BaseValue, 1e-12)
}

func TestLoadXGBoostJSON_Multiclass(t *testing.T) {
	m, err := LoadXGBoostJSON(strings.NewReader(xgbFixture{numClass: "3", objective: "multi:softprob"}.json()))
	require.NoError(t, err)
	assert.Equal(t, 3, m.NumClass)

	_, err = NewTreeSHAP(m).CalculateSHAP(mat.NewDense(1, 3, nil))
	var valueErr *errors.ValueError
	assert.True(t, errors.As(err, &valueErr))
}

func TestLoadXGBoostJSON_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, err error)
	}{
		{
			name:  "not json",
			input: "tree\nversion=v3",
			check: func(t *testing.T, err error) {
				var parseErr *errors.ParseError
				assert.True(t, errors.As(err, &parseErr))
			},
		},
		{
			name:  "missing learner",
			input: `{"version": [1, 7, 0]}`,
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "learner")
			},
		},
		{
			name:  "gblinear",
			input: xgbFixture{booster: `{"name": "gblinear", "model": {"weights": [0.1]}}`}.json(),
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, errors.ErrUnsupportedFormat))
			},
		},
		{
			name:  "categorical split",
			input: xgbFixture{}.json(),
			check: nil,
		},
		{
			name: "length mismatch",
			input: xgbFixture{booster: `{"name": "gbtree", "model": {"trees": [{
				"default_left": [0, 0], "left_children": [1, -1, -1], "right_children": [2, -1, -1],
				"split_conditions": [1, 2, 3], "split_indices": [0, 0, 0], "sum_hessian": [2, 1, 1]}]}}`}.json(),
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "default_left has 2 entries")
			},
		},
		{
			name: "feature out of range",
			input: xgbFixture{booster: `{"name": "gbtree", "model": {"trees": [{
				"default_left": [0, 0, 0], "left_children": [1, -1, -1], "right_children": [2, -1, -1],
				"split_conditions": [1, 2, 3], "split_indices": [7, 0, 0], "sum_hessian": [2, 1, 1]}]}}`}.json(),
			check: func(t *testing.T, err error) {
				var dimErr *errors.DimensionError
				assert.True(t, errors.As(err, &dimErr))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tt.input
			if tt.check == nil {
				// Mark the root of the first tree as categorical.
				input = strings.Replace(input, `"split_type": [0, 0, 0, 0, 0]`, `"split_type": [1, 0, 0, 0, 0]`, 1)
				_, err := LoadXGBoostJSON(strings.NewReader(input))
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrNotImplemented))
				return
			}
			_, err := LoadXGBoostJSON(strings.NewReader(input))
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestTreeSHAP_XGBoostFixture(t *testing.T) {
	m, err := LoadXGBoostJSON(strings.NewReader(xgbFixture{}.json()))
	require.NoError(t, err)

	X := mat.NewDense(2, 3, []float64{
		0.7, 2.0, 1,
		0.2, math.NaN(), 5,
	})
	sv, err := NewTreeSHAP(m).CalculateSHAP(X)
	require.NoError(t, err)
	assert.Equal(t, m.FeatureNames, sv.FeatureNames)

	for i := 0; i < 2; i++ {
		x := mat.Row(nil, i, X)
		assert.InDeltaSlice(t, bruteForceSHAP(m, x), sv.Values.RawRowView(i), 1e-12)
	}
	// Forest only matters through the second tree: 0.05 - mean(-0.05, 0.05) at x=5.
	assert.InDelta(t, 0.05, sv.Values.At(1, 2), 1e-12)
}

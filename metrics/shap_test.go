package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/shapscale/pkg/errors"
)

// shapMatrix: 3 rows x 4 features (Elevation, Slope, Forest, IJI)
func shapMatrix() *mat.Dense {
	return mat.NewDense(3, 4, []float64{
		0.3, -0.1, 0.0, 2,
		-0.6, 0.1, 0.0, -1,
		0.3, -0.4, 0.0, 0,
	})
}

var shapNames = []string{"Elevation", "Slope", "Forest", "IJI"}

func TestMeanAbsolute(t *testing.T) {
	got, err := MeanAbsolute(shapMatrix())
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.4, 0.2, 0, 1}, got, 1e-12)

	_, err = MeanAbsolute(&mat.Dense{})
	assert.True(t, errors.Is(err, errors.ErrEmptyData))

	_, err = MeanAbsolute(mat.NewDense(1, 2, []float64{1, math.Inf(-1)}))
	var numErr *errors.NumericalInstabilityError
	assert.True(t, errors.As(err, &numErr))
}

func TestCategoryContributions(t *testing.T) {
	categories := []Category{
		{Name: "Topography", Features: []string{"Elevation", "Slope", "Aspect"}},
		{Name: "Land Cover", Features: []string{"Forest", "Grassland"}},
		{Name: "Shape metrics", Features: []string{"Shapeindex"}},
		{Name: "Aggregation metrics", Features: []string{"Aggregationindex", "IJI"}},
		{Name: "Overlap", Features: []string{"Elevation"}},
	}

	got, err := CategoryContributions(shapMatrix(), shapNames, categories)
	require.NoError(t, err)
	require.Len(t, got, len(categories))

	assert.InDelta(t, 0.6, got[0], 1e-12, "Aspect is absent and skipped")
	assert.Equal(t, 0.0, got[1], "all-zero attributions")
	assert.Equal(t, 0.0, got[2], "no feature present")
	assert.InDelta(t, 1.0, got[3], 1e-12)
	assert.InDelta(t, 0.4, got[4], 1e-12, "a feature counts in every category listing it")
	for _, v := range got {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestCategoryContributions_Deterministic(t *testing.T) {
	categories := []Category{{Name: "All", Features: shapNames}}
	first, err := CategoryContributions(shapMatrix(), shapNames, categories)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := CategoryContributions(shapMatrix(), shapNames, categories)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCategoryContributions_Errors(t *testing.T) {
	_, err := CategoryContributions(shapMatrix(), shapNames[:3], nil)
	var dimErr *errors.DimensionError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 4, dimErr.Expected)
	assert.Equal(t, 3, dimErr.Got)

	_, err = CategoryContributions(&mat.Dense{}, nil, nil)
	assert.True(t, errors.Is(err, errors.ErrEmptyData))
}

func TestFeatureImportances(t *testing.T) {
	got, err := FeatureImportances(shapMatrix(), shapNames)
	require.NoError(t, err)

	names := make([]string, len(got))
	for i, fi := range got {
		names[i] = fi.Name
	}
	assert.Equal(t, []string{"IJI", "Elevation", "Slope", "Forest"}, names)
	assert.InDelta(t, 1.0, got[0].Score, 1e-12)

	_, err = FeatureImportances(shapMatrix(), nil)
	assert.Error(t, err)
}

func TestUnmatchedFeatures(t *testing.T) {
	categories := []Category{
		{Name: "Topography", Features: []string{"Elevation", "Slope", "Aspect"}},
		{Name: "Land Cover", Features: []string{"Forest"}},
		{Name: "Core area metrics", Features: []string{"Coreareaindex"}},
	}
	got := UnmatchedFeatures(shapNames, categories)
	assert.Equal(t, []Category{
		{Name: "Topography", Features: []string{"Aspect"}},
		{Name: "Core area metrics", Features: []string{"Coreareaindex"}},
	}, got)

	assert.Empty(t, UnmatchedFeatures(shapNames, categories[1:2]))
}

// Package metrics はSHAP値の集計（特徴量ごとの平均絶対値とカテゴリ別の寄与）を提供する。
package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/shapscale/pkg/errors"
)

// Category は名前付きの特徴量グループ
type Category struct {
	Name     string
	Features []string
}

// FeatureImportance は特徴量名と平均|SHAP|の組
type FeatureImportance struct {
	Name  string
	Score float64
}

// MeanAbsolute は列ごとの平均絶対値 mean(|v|) を計算する
func MeanAbsolute(values mat.Matrix) ([]float64, error) {
	rows, cols := values.Dims()
	if rows == 0 || cols == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "MeanAbsolute")
	}

	col := make([]float64, rows)
	means := make([]float64, cols)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, values)
		for i, v := range col {
			col[i] = math.Abs(v)
		}
		means[j] = floats.Sum(col) / float64(rows)
	}
	if err := errors.CheckNumericalStability("MeanAbsolute", means, -1); err != nil {
		return nil, err
	}
	return means, nil
}

// CategoryContributions はカテゴリごとに Σ_{f∈present} mean|φ_f| を計算する。
// featureNamesはvaluesの列名。データに存在しない特徴量は無視され、
// 一つも存在しないカテゴリは0になる。
func CategoryContributions(values mat.Matrix, featureNames []string, categories []Category) ([]float64, error) {
	_, cols := values.Dims()
	if len(featureNames) != cols {
		return nil, errors.NewDimensionError("CategoryContributions", cols, len(featureNames), 1)
	}
	means, err := MeanAbsolute(values)
	if err != nil {
		return nil, err
	}

	index := columnIndex(featureNames)
	out := make([]float64, len(categories))
	for c, category := range categories {
		for _, f := range category.Features {
			if j, ok := index[f]; ok {
				out[c] += means[j]
			}
		}
	}
	return out, nil
}

// FeatureImportances は特徴量を平均|SHAP|の降順に並べる。同点は列順を保つ。
func FeatureImportances(values mat.Matrix, featureNames []string) ([]FeatureImportance, error) {
	_, cols := values.Dims()
	if len(featureNames) != cols {
		return nil, errors.NewDimensionError("FeatureImportances", cols, len(featureNames), 1)
	}
	means, err := MeanAbsolute(values)
	if err != nil {
		return nil, err
	}

	importances := make([]FeatureImportance, cols)
	for j, name := range featureNames {
		importances[j] = FeatureImportance{Name: name, Score: means[j]}
	}
	sort.SliceStable(importances, func(a, b int) bool {
		return importances[a].Score > importances[b].Score
	})
	return importances, nil
}

// UnmatchedFeatures はカテゴリの特徴量のうちfeatureNamesに存在しないものを返す。
// 全て存在するカテゴリは結果に含まれない。
func UnmatchedFeatures(featureNames []string, categories []Category) []Category {
	index := columnIndex(featureNames)
	var unmatched []Category
	for _, category := range categories {
		var missing []string
		for _, f := range category.Features {
			if _, ok := index[f]; !ok {
				missing = append(missing, f)
			}
		}
		if len(missing) > 0 {
			unmatched = append(unmatched, Category{Name: category.Name, Features: missing})
		}
	}
	return unmatched
}

func columnIndex(names []string) map[string]int {
	index := make(map[string]int, len(names))
	for j, name := range names {
		if _, dup := index[name]; !dup {
			index[name] = j
		}
	}
	return index
}

package model

import "gonum.org/v1/gonum/mat"

// Explainer は予測値を特徴量ごとの寄与に分解するインターフェース
type Explainer interface {
	// Explain は行×特徴量の寄与行列と期待値（ベース値）を返す。
	// 各行について 寄与の合計 + ベース値 = その行のマージン予測 となる。
	Explain(X mat.Matrix) (*mat.Dense, float64, error)
}

// Package ensemble reads gradient-boosted tree ensembles written by XGBoost
// (JSON) and LightGBM (text) into one format-neutral Model, predicts with it
// and explains its margin predictions with exact TreeSHAP.
//
// Loading and explaining:
//
//	model, err := ensemble.LoadModelFile("models/AMT_grid25.json")
//	if err != nil {
//		return err
//	}
//	sv, err := ensemble.NewTreeSHAP(model).CalculateSHAP(X)
//	if err != nil {
//		return err
//	}
//	// sv.Values is rows x features; each row sums with sv.BaseValue to the
//	// margin prediction of that row.
//
// XGBoost nodes route x left when x < threshold and send NaN to the default
// child. LightGBM nodes route x left when x <= threshold and follow the
// missing-value type recorded in decision_type. Categorical splits, linear
// trees and gblinear boosters are rejected at load time.
package ensemble

package ensemble

import "github.com/YuminosukeSato/shapscale/core/model"

var (
	_ model.Predictor = (*Model)(nil)
	_ model.Explainer = (*TreeSHAP)(nil)
)

// Package log defines standard attribute keys for attribution runs.
//
// These keys follow a hierarchical naming convention (e.g., "model.path",
// "data.samples") so one run can be filtered by target, grid size or file.

package log

// Model and Operation Context
// These attributes identify the model file and the operation being performed.
const (
	// ModelPathKey is the model file being loaded or explained.
	ModelPathKey = "model.path"

	// ModelFormatKey is the serialization format of the model.
	// Values: "xgboost", "lightgbm"
	ModelFormatKey = "model.format"

	// ObjectiveKey is the training objective recorded in the model file.
	// Examples: "reg:squarederror", "binary:logistic", "regression"
	ObjectiveKey = "model.objective"

	// TreesKey is the number of trees in the ensemble.
	TreesKey = "model.trees"

	// MaxDepthKey is the deepest root-to-leaf path over all trees.
	MaxDepthKey = "model.max_depth"

	// OperationKey specifies the operation being performed.
	// Standard values: "load", "explain", "aggregate", "render"
	OperationKey = "op.name"

	// ComponentKey identifies which package is performing the operation.
	ComponentKey = "op.component"
)

// Data Shape
const (
	// DataPathKey is the dataset file.
	DataPathKey = "data.path"

	// SamplesKey indicates the number of rows in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of feature columns.
	FeaturesKey = "data.features"

	// DroppedColumnsKey lists dataset columns the model does not use.
	DroppedColumnsKey = "data.dropped_columns"
)

// Analysis Context
const (
	TargetKey   = "target.name"
	GridSizeKey = "grid.size"
	CategoryKey = "category.name"

	// PairIndexKey is the position of a model/dataset pair within its target.
	PairIndexKey = "pair.index"

	// OutputPathKey is the chart file written by the renderer.
	OutputPathKey = "output.path"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// WorkersKey is the number of concurrent pair workers.
	WorkersKey = "perf.workers"
)

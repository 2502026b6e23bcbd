package ensemble

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/shapscale/pkg/errors"
)

// SplitRule selects the comparison applied at an internal node.
type SplitRule uint8

const (
	// LessThan sends x to the left child when float32(x) < float32(threshold).
	// XGBoost stores and compares split values in single precision.
	LessThan SplitRule = iota
	// LessEqual sends x to the left child when x <= threshold (LightGBM).
	LessEqual
)

// MissingType controls which inputs follow the node's default direction.
type MissingType uint8

const (
	// MissingNaN sends NaN to the default child.
	MissingNaN MissingType = iota
	// MissingZero sends zero and NaN to the default child.
	MissingZero
	// MissingNone treats NaN as zero and never uses the default child.
	MissingNone
)

// zeroThreshold matches LightGBM's kZeroThreshold.
const zeroThreshold = 1e-35

// Format names recorded on Model.Format.
const (
	FormatXGBoost  = "xgboost"
	FormatLightGBM = "lightgbm"
)

// Node represents a single node in a decision tree.
// A node with Left == -1 is a leaf and only Value and Cover are meaningful.
type Node struct {
	Left, Right int
	Feature     int
	Threshold   float64
	DefaultLeft bool
	Missing     MissingType
	Rule        SplitRule

	// Value is the leaf output, already scaled by learning rate and dart weight.
	Value float64
	// Cover is the training weight (hessian sum or sample count) reaching the node.
	Cover float64
}

// IsLeaf returns true if the node is a leaf node
func (n *Node) IsLeaf() bool {
	return n.Left < 0
}

// goesLeft reports whether x follows the left branch.
func (n *Node) goesLeft(x float64) bool {
	switch n.Missing {
	case MissingNaN:
		if math.IsNaN(x) {
			return n.DefaultLeft
		}
	case MissingZero:
		if math.IsNaN(x) || math.Abs(x) <= zeroThreshold {
			return n.DefaultLeft
		}
	case MissingNone:
		if math.IsNaN(x) {
			x = 0
		}
	}
	if n.Rule == LessEqual {
		return x <= n.Threshold
	}
	return float32(x) < float32(n.Threshold)
}

// next returns the child x is routed to.
func (n *Node) next(x float64) int {
	if n.goesLeft(x) {
		return n.Left
	}
	return n.Right
}

// Tree is one tree of the ensemble. Nodes[0] is the root.
type Tree struct {
	Nodes []Node
}

// Predict makes a prediction for a single sample using this tree
func (t *Tree) Predict(features []float64) float64 {
	idx := 0
	for {
		node := &t.Nodes[idx]
		if node.IsLeaf() {
			return node.Value
		}
		idx = node.next(features[node.Feature])
	}
}

// ExpectedValue is the cover-weighted mean leaf value.
func (t *Tree) ExpectedValue() float64 {
	return t.expected(0)
}

func (t *Tree) expected(idx int) float64 {
	node := &t.Nodes[idx]
	if node.IsLeaf() {
		return node.Value
	}
	left, right := &t.Nodes[node.Left], &t.Nodes[node.Right]
	lw, rw := childWeights(left, right)
	return lw*t.expected(node.Left) + rw*t.expected(node.Right)
}

// childWeights returns the share of cover going to each child. The shares
// always sum to one; children without cover information split evenly.
func childWeights(left, right *Node) (float64, float64) {
	total := left.Cover + right.Cover
	if total <= 0 {
		return 0.5, 0.5
	}
	return left.Cover / total, right.Cover / total
}

// MaxDepth returns the number of edges on the longest root-to-leaf path.
func (t *Tree) MaxDepth() int {
	var walk func(idx int) int
	walk = func(idx int) int {
		node := &t.Nodes[idx]
		if node.IsLeaf() {
			return 0
		}
		l, r := walk(node.Left), walk(node.Right)
		if l > r {
			return l + 1
		}
		return r + 1
	}
	if len(t.Nodes) == 0 {
		return 0
	}
	return walk(0)
}

// Validate checks that every node is reachable exactly once from the root,
// child indices are in range and split features are below numFeatures.
func (t *Tree) Validate(numFeatures int) error {
	if len(t.Nodes) == 0 {
		return errors.NewValueError("Tree.Validate", "tree has no nodes")
	}
	seen := make([]bool, len(t.Nodes))
	stack := []int{0}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[idx] {
			return errors.NewValueError("Tree.Validate", "node reached twice (cycle or shared child)")
		}
		seen[idx] = true

		node := &t.Nodes[idx]
		if node.IsLeaf() {
			if math.IsNaN(node.Value) || math.IsInf(node.Value, 0) {
				return errors.NewNumericalInstabilityError("leaf_value", []float64{node.Value}, -1)
			}
			continue
		}
		if node.Right < 0 || node.Left >= len(t.Nodes) || node.Right >= len(t.Nodes) {
			return errors.NewValueError("Tree.Validate", "child index out of range")
		}
		if node.Feature < 0 || node.Feature >= numFeatures {
			return errors.NewDimensionError("Tree.Validate", numFeatures, node.Feature+1, 1)
		}
		stack = append(stack, node.Left, node.Right)
	}
	for _, ok := range seen {
		if !ok {
			return errors.NewValueError("Tree.Validate", "node not reachable from root")
		}
	}
	return nil
}

// Model is a gradient-boosted tree ensemble read from XGBoost or LightGBM output.
// The raw (margin) prediction is BaseMargin plus the sum of tree outputs.
type Model struct {
	Format       string
	Objective    string
	NumFeatures  int
	NumClass     int
	FeatureNames []string
	BaseMargin   float64
	Trees        []Tree
}

// NFeatures returns the number of input columns the model expects.
func (m *Model) NFeatures() int {
	return m.NumFeatures
}

// PredictRow returns the margin prediction of one sample.
func (m *Model) PredictRow(x []float64) float64 {
	sum := m.BaseMargin
	for i := range m.Trees {
		sum += m.Trees[i].Predict(x)
	}
	return sum
}

// PredictMargin returns the raw margin prediction for each row of X as a column vector.
func (m *Model) PredictMargin(X mat.Matrix) (*mat.Dense, error) {
	rows, cols := X.Dims()
	if cols != m.NumFeatures {
		return nil, errors.NewDimensionError("Model.PredictMargin", m.NumFeatures, cols, 1)
	}
	out := mat.NewDense(rows, 1, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		out.Set(i, 0, m.PredictRow(row))
	}
	return out, nil
}

// Predict applies the objective's inverse link to PredictMargin.
func (m *Model) Predict(X mat.Matrix) (mat.Matrix, error) {
	margin, err := m.PredictMargin(X)
	if err != nil {
		return nil, err
	}
	link := m.inverseLink()
	rows, _ := margin.Dims()
	for i := 0; i < rows; i++ {
		margin.Set(i, 0, link(margin.At(i, 0)))
	}
	return margin, nil
}

// ExpectedValue is BaseMargin plus the expected value of every tree.
func (m *Model) ExpectedValue() float64 {
	sum := m.BaseMargin
	for i := range m.Trees {
		sum += m.Trees[i].ExpectedValue()
	}
	return sum
}

// MaxDepth returns the deepest tree depth in the ensemble.
func (m *Model) MaxDepth() int {
	depth := 0
	for i := range m.Trees {
		if d := m.Trees[i].MaxDepth(); d > depth {
			depth = d
		}
	}
	return depth
}

// Validate checks every tree and the feature name table.
func (m *Model) Validate() error {
	if m.NumFeatures <= 0 {
		return errors.NewValueError("Model.Validate", "model declares no features")
	}
	if len(m.FeatureNames) > 0 && len(m.FeatureNames) != m.NumFeatures {
		return errors.NewDimensionError("Model.Validate", m.NumFeatures, len(m.FeatureNames), 1)
	}
	if len(m.Trees) == 0 {
		return errors.NewValueError("Model.Validate", "model has no trees")
	}
	for i := range m.Trees {
		if err := m.Trees[i].Validate(m.NumFeatures); err != nil {
			return errors.Wrapf(err, "tree %d", i)
		}
	}
	return nil
}

// inverseLink maps a margin to the prediction scale of the objective.
func (m *Model) inverseLink() func(float64) float64 {
	switch linkOf(m.Objective) {
	case linkLogit:
		return func(v float64) float64 { return 1 / (1 + math.Exp(-v)) }
	case linkLog:
		return math.Exp
	default:
		return func(v float64) float64 { return v }
	}
}

type link int

const (
	linkIdentity link = iota
	linkLogit
	linkLog
)

// linkOf classifies XGBoost and LightGBM objective names.
func linkOf(objective string) link {
	name := strings.Fields(objective)
	if len(name) == 0 {
		return linkIdentity
	}
	switch name[0] {
	case "binary:logistic", "reg:logistic", "binary", "cross_entropy", "xentropy":
		return linkLogit
	case "count:poisson", "reg:gamma", "reg:tweedie", "survival:aft", "poisson", "gamma", "tweedie":
		return linkLog
	}
	return linkIdentity
}

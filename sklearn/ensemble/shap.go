package ensemble

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/shapscale/core/parallel"
	"github.com/YuminosukeSato/shapscale/pkg/errors"
)

// SHAPValues holds SHAP values for model interpretation
type SHAPValues struct {
	Values       *mat.Dense // SHAP values matrix (samples x features)
	BaseValue    float64    // Expected value (base value)
	FeatureNames []string   // Optional feature names
}

// TreeSHAP computes exact path-dependent SHAP values (Lundberg et al., Algorithm 2).
// Each output row sums with BaseValue to the row's margin prediction.
type TreeSHAP struct {
	model        *Model
	workers      int
	rowThreshold int
}

// TreeSHAPOption configures a TreeSHAP.
type TreeSHAPOption func(*TreeSHAP)

// WithWorkers caps the goroutines used for rows. 0 uses every CPU.
func WithWorkers(n int) TreeSHAPOption {
	return func(ts *TreeSHAP) {
		ts.workers = n
	}
}

// WithRowThreshold sets the row count up to which rows are explained on
// the calling goroutine.
func WithRowThreshold(n int) TreeSHAPOption {
	return func(ts *TreeSHAP) {
		ts.rowThreshold = n
	}
}

// NewTreeSHAP creates a new TreeSHAP calculator
func NewTreeSHAP(model *Model, opts ...TreeSHAPOption) *TreeSHAP {
	ts := &TreeSHAP{
		model:        model,
		rowThreshold: 32,
	}
	for _, opt := range opts {
		opt(ts)
	}
	return ts
}

// CalculateSHAP calculates SHAP values for given samples
func (ts *TreeSHAP) CalculateSHAP(X mat.Matrix) (_ *SHAPValues, err error) {
	defer errors.Recover(&err, "TreeSHAP.CalculateSHAP")

	if ts.model == nil {
		return nil, errors.NewValueError("TreeSHAP.CalculateSHAP", "model is nil")
	}
	if ts.model.NumClass > 1 {
		return nil, errors.NewValueError("TreeSHAP.CalculateSHAP",
			"multi-output models are not supported (num_class > 1)")
	}
	rows, cols := X.Dims()
	if rows == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "TreeSHAP.CalculateSHAP")
	}
	if cols != ts.model.NumFeatures {
		return nil, errors.NewDimensionError("TreeSHAP.CalculateSHAP", ts.model.NumFeatures, cols, 1)
	}

	values := mat.NewDense(rows, cols, nil)
	trees := ts.model.Trees
	maxDepth := ts.model.MaxDepth()

	// Each row owns its output row, so ranges never overlap.
	err = parallel.ParallelizeErrWithThreshold(rows, ts.rowThreshold, ts.workers, func(start, end int) error {
		x := make([]float64, cols)
		phi := make([]float64, cols)
		buf := make([]pathElement, 0, (maxDepth+2)*(maxDepth+3)/2)
		for i := start; i < end; i++ {
			mat.Row(x, i, X)
			for j := range phi {
				phi[j] = 0
			}
			for t := range trees {
				treeSHAP(&trees[t], x, phi, buf)
			}
			values.SetRow(i, phi)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := errors.CheckMatrix("tree_shap", values, rows, cols); err != nil {
		return nil, err
	}
	base := ts.model.ExpectedValue()
	if err := errors.CheckScalar("expected_value", base); err != nil {
		return nil, err
	}

	return &SHAPValues{
		Values:       values,
		BaseValue:    base,
		FeatureNames: ts.model.FeatureNames,
	}, nil
}

// Explain implements model.Explainer.
func (ts *TreeSHAP) Explain(X mat.Matrix) (*mat.Dense, float64, error) {
	sv, err := ts.CalculateSHAP(X)
	if err != nil {
		return nil, 0, err
	}
	return sv.Values, sv.BaseValue, nil
}

// pathElement is one feature on the current root-to-node path.
// zero is the fraction of "feature absent" paths that flow through,
// one is 1 if x follows this branch and 0 otherwise.
type pathElement struct {
	feature   int
	zero, one float64
	weight    float64
}

// treeSHAP adds the attributions of one tree for sample x into phi.
// buf is scratch space reused across trees.
func treeSHAP(t *Tree, x, phi []float64, buf []pathElement) {
	if len(t.Nodes) == 0 || t.Nodes[0].IsLeaf() {
		return
	}
	s := shapWalker{tree: t, x: x, phi: phi, buf: buf[:0]}
	s.recurse(0, 0, 1, 1, -1)
}

type shapWalker struct {
	tree *Tree
	x    []float64
	phi  []float64
	// buf stacks the path of every level; a level's path starts where its
	// parent's ends.
	buf []pathElement
}

// recurse visits node idx. The parent's path occupies buf[start:].
func (s *shapWalker) recurse(idx, start int, zero, one float64, feature int) {
	parent := s.buf[start:]
	depth := len(parent)

	// Copy the parent path so siblings see it unmodified.
	s.buf = append(s.buf, parent...)
	base := start + depth
	path := extendPath(s.buf[base:], zero, one, feature)
	s.buf = append(s.buf[:base], path...)

	node := &s.tree.Nodes[idx]
	if node.IsLeaf() {
		for i := 1; i < len(path); i++ {
			w := unwoundPathSum(path, i)
			el := path[i]
			s.phi[el.feature] += w * (el.one - el.zero) * node.Value
		}
		s.buf = s.buf[:base]
		return
	}

	hot, cold := node.Right, node.Left
	if node.goesLeft(s.x[node.Feature]) {
		hot, cold = node.Left, node.Right
	}
	leftW, rightW := childWeights(&s.tree.Nodes[node.Left], &s.tree.Nodes[node.Right])
	hotW, coldW := rightW, leftW
	if hot == node.Left {
		hotW, coldW = leftW, rightW
	}

	// A feature already on the path is unwound so it appears once.
	incomingZero, incomingOne := 1.0, 1.0
	for k := 1; k < len(path); k++ {
		if path[k].feature == node.Feature {
			incomingZero, incomingOne = path[k].zero, path[k].one
			path = unwindPath(path, k)
			s.buf = s.buf[:base+len(path)]
			break
		}
	}

	if z := hotW * incomingZero; z != 0 || incomingOne != 0 {
		s.recurse(hot, base, z, incomingOne, node.Feature)
	}
	// The cold branch never carries x, so a zero-cover cold child adds nothing.
	if z := coldW * incomingZero; z != 0 {
		s.recurse(cold, base, z, 0, node.Feature)
	}
	s.buf = s.buf[:base]
}

// extendPath appends a feature split to the path and updates the
// permutation weights of all subsets.
func extendPath(path []pathElement, zero, one float64, feature int) []pathElement {
	d := len(path)
	w := 0.0
	if d == 0 {
		w = 1
	}
	path = append(path, pathElement{feature: feature, zero: zero, one: one, weight: w})
	for i := d - 1; i >= 0; i-- {
		path[i+1].weight += one * path[i].weight * float64(i+1) / float64(d+1)
		path[i].weight = zero * path[i].weight * float64(d-i) / float64(d+1)
	}
	return path
}

// unwindPath undoes extendPath for the element at k and removes it.
func unwindPath(path []pathElement, k int) []pathElement {
	d := len(path) - 1
	one, zero := path[k].one, path[k].zero
	next := path[d].weight
	for i := d - 1; i >= 0; i-- {
		if one != 0 {
			tmp := path[i].weight
			path[i].weight = next * float64(d+1) / (float64(i+1) * one)
			next = tmp - path[i].weight*zero*float64(d-i)/float64(d+1)
		} else {
			path[i].weight = path[i].weight * float64(d+1) / (zero * float64(d-i))
		}
	}
	for i := k; i < d; i++ {
		path[i].feature = path[i+1].feature
		path[i].zero = path[i+1].zero
		path[i].one = path[i+1].one
	}
	return path[:d]
}

// unwoundPathSum is the total weight the path would have with element k
// removed, without modifying the path.
func unwoundPathSum(path []pathElement, k int) float64 {
	d := len(path) - 1
	one, zero := path[k].one, path[k].zero
	next := path[d].weight
	total := 0.0
	for i := d - 1; i >= 0; i-- {
		if one != 0 {
			tmp := next * float64(d+1) / (float64(i+1) * one)
			total += tmp
			next = path[i].weight - tmp*zero*float64(d-i)/float64(d+1)
		} else if zero != 0 {
			total += path[i].weight / zero / (float64(d-i) / float64(d+1))
		}
	}
	return total
}

package ensemble

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	simplejson "github.com/bitly/go-simplejson"

	"github.com/YuminosukeSato/shapscale/pkg/errors"
)

// LoadXGBoostJSONFile loads a model saved by XGBoost's save_model("*.json").
func LoadXGBoostJSONFile(path string) (*Model, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open model file %s", path)
	}
	defer file.Close()

	return loadXGBoostJSON(file, path)
}

// LoadXGBoostJSON loads an XGBoost (>= 1.0) JSON model.
func LoadXGBoostJSON(r io.Reader) (*Model, error) {
	return loadXGBoostJSON(r, "xgboost json")
}

func loadXGBoostJSON(r io.Reader, source string) (*Model, error) {
	doc, err := simplejson.NewFromReader(r)
	if err != nil {
		return nil, errors.NewParseError(source, 0, err.Error())
	}
	learner, ok := doc.CheckGet("learner")
	if !ok {
		return nil, errors.NewParseError(source, 0, "missing \"learner\" object")
	}

	model := &Model{Format: FormatXGBoost}
	model.Objective = learner.GetPath("objective", "name").MustString()

	params := learner.Get("learner_model_param")
	if model.NumFeatures, err = stringInt(params.Get("num_feature")); err != nil {
		return nil, errors.NewParseError(source, 0, "learner_model_param.num_feature: "+err.Error())
	}
	if model.NumClass, err = stringInt(params.Get("num_class")); err != nil {
		return nil, errors.NewParseError(source, 0, "learner_model_param.num_class: "+err.Error())
	}
	if model.NumClass == 0 {
		model.NumClass = 1
	}
	baseScore, err := parseBaseScore(params.Get("base_score"))
	if err != nil {
		return nil, errors.NewParseError(source, 0, "learner_model_param.base_score: "+err.Error())
	}
	model.BaseMargin = baseMargin(model.Objective, baseScore)

	if names, ok := learner.CheckGet("feature_names"); ok {
		model.FeatureNames = names.MustStringArray()
		if model.NumFeatures == 0 {
			model.NumFeatures = len(model.FeatureNames)
		}
	}

	booster := learner.Get("gradient_booster")
	var (
		trees   *simplejson.Json
		weights []float64
	)
	switch name := booster.Get("name").MustString(); name {
	case "gbtree", "":
		trees = booster.GetPath("model", "trees")
	case "dart":
		trees = booster.GetPath("gbtree", "model", "trees")
		if weights, err = floatArray(booster, "weight_drop"); err != nil {
			return nil, errors.NewParseError(source, 0, err.Error())
		}
	default:
		return nil, errors.NewModelError("LoadXGBoostJSON", fmt.Sprintf("unsupported booster %q", name), errors.ErrUnsupportedFormat)
	}

	list, err := trees.Array()
	if err != nil {
		return nil, errors.NewParseError(source, 0, "gradient_booster trees array not found")
	}
	if weights != nil && len(weights) != len(list) {
		return nil, errors.NewParseError(source, 0,
			fmt.Sprintf("weight_drop has %d entries for %d trees", len(weights), len(list)))
	}

	model.Trees = make([]Tree, len(list))
	for i := range list {
		weight := 1.0
		if weights != nil {
			weight = weights[i]
		}
		tree, err := readXGBoostTree(trees.GetIndex(i), weight)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: tree %d", source, i)
		}
		model.Trees[i] = tree
	}

	if err := model.Validate(); err != nil {
		return nil, errors.Wrap(err, source)
	}
	return model, nil
}

// readXGBoostTree converts the column arrays of one tree into nodes.
func readXGBoostTree(t *simplejson.Json, weight float64) (Tree, error) {
	left, err := intArray(t, "left_children")
	if err != nil {
		return Tree{}, err
	}
	right, err := intArray(t, "right_children")
	if err != nil {
		return Tree{}, err
	}
	features, err := intArray(t, "split_indices")
	if err != nil {
		return Tree{}, err
	}
	conditions, err := floatArray(t, "split_conditions")
	if err != nil {
		return Tree{}, err
	}
	hessians, err := floatArray(t, "sum_hessian")
	if err != nil {
		return Tree{}, err
	}
	defaults, err := boolArray(t, "default_left")
	if err != nil {
		return Tree{}, err
	}
	var splitTypes []int
	if _, ok := t.CheckGet("split_type"); ok {
		if splitTypes, err = intArray(t, "split_type"); err != nil {
			return Tree{}, err
		}
	}

	n := len(left)
	for name, l := range map[string]int{
		"right_children":   len(right),
		"split_indices":    len(features),
		"split_conditions": len(conditions),
		"sum_hessian":      len(hessians),
		"default_left":     len(defaults),
	} {
		if l != n {
			return Tree{}, errors.NewModelError("LoadXGBoostJSON",
				fmt.Sprintf("%s has %d entries, left_children has %d", name, l, n), nil)
		}
	}

	nodes := make([]Node, n)
	for i := 0; i < n; i++ {
		node := Node{
			Left:    left[i],
			Right:   right[i],
			Cover:   hessians[i],
			Missing: MissingNaN,
			Rule:    LessThan,
		}
		if left[i] < 0 {
			node.Left, node.Right = -1, -1
			node.Value = conditions[i] * weight
		} else {
			if i < len(splitTypes) && splitTypes[i] != 0 {
				return Tree{}, errors.NewModelError("LoadXGBoostJSON", "categorical splits are not supported", errors.ErrNotImplemented)
			}
			node.Feature = features[i]
			node.Threshold = float64(float32(conditions[i]))
			node.DefaultLeft = defaults[i]
		}
		nodes[i] = node
	}
	return Tree{Nodes: nodes}, nil
}

// baseMargin converts base_score to margin space for the objective.
func baseMargin(objective string, score float64) float64 {
	switch objective {
	case "binary:logistic", "reg:logistic", "binary:logitraw":
		return math.Log(score / (1 - score))
	case "count:poisson", "reg:gamma", "reg:tweedie", "survival:aft":
		return math.Log(score)
	}
	return score
}

// parseBaseScore accepts "5E-1", "[5E-1]" and plain numbers.
// Multi-target vectors use their first entry; absent means XGBoost's 0.5.
func parseBaseScore(j *simplejson.Json) (float64, error) {
	if j.Interface() == nil {
		return 0.5, nil
	}
	if v, err := j.Float64(); err == nil {
		return v, nil
	}
	s, err := j.String()
	if err != nil {
		return 0, errors.New("expected string or number")
	}
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// stringInt reads XGBoost's string-encoded integers. Missing means 0.
func stringInt(j *simplejson.Json) (int, error) {
	if j.Interface() == nil {
		return 0, nil
	}
	if v, err := j.Int(); err == nil {
		return v, nil
	}
	s, err := j.String()
	if err != nil {
		return 0, errors.New("expected integer")
	}
	return strconv.Atoi(strings.TrimSpace(s))
}

func arrayOf(j *simplejson.Json, key string) (*simplejson.Json, int, error) {
	node, ok := j.CheckGet(key)
	if !ok {
		return nil, 0, errors.Newf("missing %q", key)
	}
	raw, err := node.Array()
	if err != nil {
		return nil, 0, errors.Newf("%q is not an array", key)
	}
	return node, len(raw), nil
}

func floatArray(j *simplejson.Json, key string) ([]float64, error) {
	node, n, err := arrayOf(j, key)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		if out[i], err = node.GetIndex(i).Float64(); err != nil {
			return nil, errors.Wrapf(err, "%s[%d]", key, i)
		}
	}
	return out, nil
}

func intArray(j *simplejson.Json, key string) ([]int, error) {
	node, n, err := arrayOf(j, key)
	if err != nil {
		return nil, err
	}
	out := make([]int, n)
	for i := range out {
		if out[i], err = node.GetIndex(i).Int(); err != nil {
			return nil, errors.Wrapf(err, "%s[%d]", key, i)
		}
	}
	return out, nil
}

// boolArray accepts JSON booleans or 0/1 integers.
func boolArray(j *simplejson.Json, key string) ([]bool, error) {
	node, n, err := arrayOf(j, key)
	if err != nil {
		return nil, err
	}
	out := make([]bool, n)
	for i := range out {
		elem := node.GetIndex(i)
		if b, err := elem.Bool(); err == nil {
			out[i] = b
			continue
		}
		v, err := elem.Int()
		if err != nil {
			return nil, errors.Newf("%s[%d]: expected bool or 0/1", key, i)
		}
		out[i] = v != 0
	}
	return out, nil
}

package ensemble

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/shapscale/pkg/errors"
)

// LoadLightGBMFile loads a LightGBM model from a text file
// This supports the standard LightGBM model format saved by save_model()
func LoadLightGBMFile(path string) (*Model, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open model file %s", path)
	}
	defer file.Close()

	return loadLightGBM(file, path)
}

// LoadLightGBM loads a LightGBM text model from an io.Reader.
func LoadLightGBM(r io.Reader) (*Model, error) {
	return loadLightGBM(r, "lightgbm model")
}

// treeBlock is one "Tree=N" section and the line it starts on.
type treeBlock struct {
	line   int
	params treeParams
}

func loadLightGBM(r io.Reader, source string) (*Model, error) {
	scanner := bufio.NewScanner(r)
	// feature_infos and tree arrays can be very long lines
	scanner.Buffer(make([]byte, 0, 1<<20), 256<<20)

	header := make(treeParams)
	var (
		blocks  []treeBlock
		current treeParams
		lineNo  int
		started bool
	)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !started {
			if line != "tree" {
				return nil, errors.NewParseError(source, lineNo, "not a LightGBM text model (first line must be \"tree\")")
			}
			started = true
			continue
		}
		if line == "end of trees" {
			break
		}
		if strings.HasPrefix(line, "Tree=") {
			current = make(treeParams)
			blocks = append(blocks, treeBlock{line: lineNo, params: current})
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			// bare header flags such as average_output
			if current == nil {
				header[line] = ""
			}
			continue
		}
		if current != nil {
			current[strings.TrimSpace(key)] = strings.TrimSpace(value)
		} else {
			header[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewParseError(source, lineNo, err.Error())
	}
	if !started {
		return nil, errors.NewParseError(source, 0, "empty model file")
	}

	model := &Model{Format: FormatLightGBM, NumClass: 1}
	maxFeature, err := header.toInt("max_feature_idx")
	if err != nil {
		return nil, errors.NewParseError(source, 0, err.Error())
	}
	model.NumFeatures = maxFeature + 1
	if _, ok := header["num_class"]; ok {
		if model.NumClass, err = header.toInt("num_class"); err != nil {
			return nil, errors.NewParseError(source, 0, err.Error())
		}
	}
	model.Objective = header["objective"]
	if names, ok := header["feature_names"]; ok {
		model.FeatureNames = strings.Fields(names)
	}

	model.Trees = make([]Tree, 0, len(blocks))
	for i, block := range blocks {
		tree, err := readLightGBMTree(block.params)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%s:%d: tree %d", source, block.line, i))
		}
		model.Trees = append(model.Trees, tree)
	}

	// rf boosting averages the trees of each class instead of summing them.
	if _, ok := header["average_output"]; ok {
		averageTrees(model)
	}

	if err := model.Validate(); err != nil {
		return nil, errors.Wrap(err, source)
	}
	return model, nil
}

// averageTrees divides every leaf by the number of boosting iterations.
func averageTrees(m *Model) {
	classes := m.NumClass
	if classes < 1 {
		classes = 1
	}
	iterations := len(m.Trees) / classes
	if iterations < 1 {
		return
	}
	scale := 1 / float64(iterations)
	for i := range m.Trees {
		nodes := m.Trees[i].Nodes
		for j := range nodes {
			if nodes[j].IsLeaf() {
				nodes[j].Value *= scale
			}
		}
	}
}

// readLightGBMTree lays internal nodes out first and appends leaf i at
// numLeaves-1+i, so a negative child ~i maps to a fixed slot.
func readLightGBMTree(p treeParams) (Tree, error) {
	numLeaves, err := p.toInt("num_leaves")
	if err != nil {
		return Tree{}, err
	}
	if numLeaves < 1 {
		return Tree{}, errors.New("num_leaves < 1")
	}
	if v, ok := p["is_linear"]; ok && v != "0" {
		return Tree{}, errors.NewModelError("LoadLightGBM", "linear trees are not supported", errors.ErrNotImplemented)
	}
	if v, ok := p["num_cat"]; ok && v != "0" {
		return Tree{}, errors.NewModelError("LoadLightGBM", "categorical splits are not supported", errors.ErrNotImplemented)
	}

	leafValues, err := p.toFloat64Slice("leaf_value")
	if err != nil {
		return Tree{}, err
	}
	if len(leafValues) != numLeaves {
		return Tree{}, errors.Newf("leaf_value has %d entries, num_leaves=%d", len(leafValues), numLeaves)
	}
	leafCounts, err := p.optionalFloat64Slice("leaf_count", numLeaves)
	if err != nil {
		return Tree{}, err
	}

	// Special case - constant value tree (single leaf)
	if numLeaves == 1 {
		return Tree{Nodes: []Node{{Left: -1, Right: -1, Value: leafValues[0], Cover: leafCounts[0]}}}, nil
	}

	numInternal := numLeaves - 1
	splitFeatures, err := p.toIntSlice("split_feature")
	if err != nil {
		return Tree{}, err
	}
	thresholds, err := p.toFloat64Slice("threshold")
	if err != nil {
		return Tree{}, err
	}
	decisionTypes, err := p.toIntSlice("decision_type")
	if err != nil {
		return Tree{}, err
	}
	leftChilds, err := p.toIntSlice("left_child")
	if err != nil {
		return Tree{}, err
	}
	rightChilds, err := p.toIntSlice("right_child")
	if err != nil {
		return Tree{}, err
	}
	internalCounts, err := p.optionalFloat64Slice("internal_count", numInternal)
	if err != nil {
		return Tree{}, err
	}
	for name, l := range map[string]int{
		"split_feature": len(splitFeatures),
		"threshold":     len(thresholds),
		"decision_type": len(decisionTypes),
		"left_child":    len(leftChilds),
		"right_child":   len(rightChilds),
	} {
		if l != numInternal {
			return Tree{}, errors.Newf("%s has %d entries, expected %d", name, l, numInternal)
		}
	}

	child := func(c int) int {
		if c < 0 {
			return numInternal + ^c
		}
		return c
	}

	nodes := make([]Node, numInternal+numLeaves)
	for i := 0; i < numInternal; i++ {
		dt := decisionTypes[i]
		if dt&1 != 0 {
			return Tree{}, errors.NewModelError("LoadLightGBM", "categorical splits are not supported", errors.ErrNotImplemented)
		}
		node := Node{
			Left:        child(leftChilds[i]),
			Right:       child(rightChilds[i]),
			Feature:     splitFeatures[i],
			Threshold:   thresholds[i],
			DefaultLeft: dt&(1<<1) != 0,
			Rule:        LessEqual,
			Cover:       internalCounts[i],
		}
		// Missing type from decision_type (bits 2-3)
		switch (dt >> 2) & 3 {
		case 1:
			node.Missing = MissingZero
		case 2:
			node.Missing = MissingNaN
		default:
			node.Missing = MissingNone
		}
		nodes[i] = node
	}
	for j := 0; j < numLeaves; j++ {
		nodes[numInternal+j] = Node{Left: -1, Right: -1, Value: leafValues[j], Cover: leafCounts[j]}
	}
	return Tree{Nodes: nodes}, nil
}

// Helper types and functions
type treeParams map[string]string

func (p treeParams) toInt(key string) (int, error) {
	v, ok := p[key]
	if !ok {
		return 0, errors.Newf("key %s not found", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrap(err, key)
	}
	return n, nil
}

func (p treeParams) toFloat64Slice(key string) ([]float64, error) {
	v, ok := p[key]
	if !ok {
		return nil, errors.Newf("key %s not found", key)
	}
	parts := strings.Fields(v)
	result := make([]float64, 0, len(parts))
	for _, part := range parts {
		val, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, errors.Wrap(err, key)
		}
		result = append(result, val)
	}
	return result, nil
}

// optionalFloat64Slice returns n zeros when key is absent or empty.
func (p treeParams) optionalFloat64Slice(key string, n int) ([]float64, error) {
	if v, ok := p[key]; !ok || v == "" {
		return make([]float64, n), nil
	}
	values, err := p.toFloat64Slice(key)
	if err != nil {
		return nil, err
	}
	if len(values) != n {
		return nil, errors.Newf("%s has %d entries, expected %d", key, len(values), n)
	}
	return values, nil
}

func (p treeParams) toIntSlice(key string) ([]int, error) {
	v, ok := p[key]
	if !ok {
		return nil, errors.Newf("key %s not found", key)
	}
	parts := strings.Fields(v)
	result := make([]int, 0, len(parts))
	for _, part := range parts {
		val, err := strconv.ParseInt(part, 10, 32)
		if err != nil {
			return nil, errors.Wrap(err, key)
		}
		result = append(result, int(val))
	}
	return result, nil
}

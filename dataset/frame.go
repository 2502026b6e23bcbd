package dataset

import (
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/shapscale/pkg/errors"
)

// Frame is a numeric table with named columns.
type Frame struct {
	Columns []string
	X       *mat.Dense
	// Source is the file the frame was read from, used in messages.
	Source string
}

// Rows returns the number of data rows.
func (f *Frame) Rows() int {
	r, _ := f.X.Dims()
	return r
}

// Index returns the position of the named column or -1.
func (f *Frame) Index(name string) int {
	for j, c := range f.Columns {
		if c == name {
			return j
		}
	}
	return -1
}

// Has reports whether the frame has the named column.
func (f *Frame) Has(name string) bool {
	return f.Index(name) >= 0
}

// AlignTo returns the frame's data with columns in the order the model
// expects. When names is non-empty columns are matched by name, a missing
// column is an error and extra columns are dropped with a warning. Without
// names the frame must already have exactly numFeatures columns.
func (f *Frame) AlignTo(names []string, numFeatures int) (*mat.Dense, error) {
	rows, cols := f.X.Dims()
	if len(names) == 0 {
		if cols != numFeatures {
			return nil, errors.Wrapf(
				errors.NewDimensionError("Frame.AlignTo", numFeatures, cols, 1),
				"%s", f.Source)
		}
		return f.X, nil
	}

	order := make([]int, len(names))
	var missing []string
	for i, name := range names {
		order[i] = f.Index(name)
		if order[i] < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, errors.NewValidationError("dataset columns",
			"model features missing from "+f.Source, strings.Join(missing, ", "))
	}

	identity := cols == len(names)
	for i, j := range order {
		if i != j {
			identity = false
			break
		}
	}
	if identity {
		return f.X, nil
	}

	if extra := f.extraColumns(names); len(extra) > 0 {
		errors.Warn(errors.NewDataConversionWarning(
			f.Source, "model features",
			"dropped columns not used by the model: "+strings.Join(extra, ", ")))
	}

	out := mat.NewDense(rows, len(names), nil)
	for i, j := range order {
		for r := 0; r < rows; r++ {
			out.Set(r, i, f.X.At(r, j))
		}
	}
	return out, nil
}

func (f *Frame) extraColumns(names []string) []string {
	used := make(map[string]struct{}, len(names))
	for _, n := range names {
		used[n] = struct{}{}
	}
	var extra []string
	for _, c := range f.Columns {
		if _, ok := used[c]; !ok {
			extra = append(extra, c)
		}
	}
	return extra
}

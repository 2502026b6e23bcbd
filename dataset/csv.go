package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/shapscale/pkg/errors"
)

var nan = math.NaN()

// missingMarkers are cell values read as NaN.
var missingMarkers = map[string]struct{}{
	"":     {},
	"NA":   {},
	"N/A":  {},
	"NaN":  {},
	"nan":  {},
	"null": {},
	"NULL": {},
}

// ReadCSVFile reads a CSV file with a header row into a Frame.
func ReadCSVFile(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open dataset %s", path)
	}
	defer file.Close()

	return readCSV(file, path)
}

// ReadCSV reads CSV with a header row from r.
func ReadCSV(r io.Reader) (*Frame, error) {
	return readCSV(r, "csv")
}

func readCSV(r io.Reader, source string) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.Wrapf(errors.ErrEmptyData, "%s: no header row", source)
	}
	if err != nil {
		return nil, errors.NewParseError(source, 1, err.Error())
	}

	columns := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for j, name := range header {
		name = strings.TrimSpace(name)
		if j == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		if name == "" {
			return nil, errors.NewParseError(source, 1, "empty column name at position "+strconv.Itoa(j+1))
		}
		if prev, dup := seen[name]; dup {
			return nil, errors.NewParseError(source, 1,
				"duplicate column "+strconv.Quote(name)+" at positions "+strconv.Itoa(prev+1)+" and "+strconv.Itoa(j+1))
		}
		seen[name] = j
		columns[j] = name
	}

	var data []float64
	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// csv.ParseError already carries the line.
			return nil, errors.NewParseError(source, 0, err.Error())
		}
		line, _ := reader.FieldPos(0)
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" && len(columns) > 1 {
			continue
		}
		if len(record) != len(columns) {
			return nil, errors.Wrapf(
				errors.NewDimensionError("dataset.ReadCSV", len(columns), len(record), 1),
				"%s:%d", source, line)
		}
		for j, cell := range record {
			v, err := parseCell(cell)
			if err != nil {
				return nil, errors.NewValueError("dataset.ReadCSV",
					source+":"+strconv.Itoa(line)+": column "+strconv.Quote(columns[j])+": "+
						"non-numeric value "+strconv.Quote(cell))
			}
			data = append(data, v)
		}
		rows++
	}
	if rows == 0 {
		return nil, errors.Wrapf(errors.ErrEmptyData, "%s: no data rows", source)
	}

	return &Frame{
		Columns: columns,
		X:       mat.NewDense(rows, len(columns), data),
		Source:  source,
	}, nil
}

func parseCell(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if _, ok := missingMarkers[cell]; ok {
		return nan, nil
	}
	return strconv.ParseFloat(cell, 64)
}

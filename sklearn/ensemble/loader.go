package ensemble

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/YuminosukeSato/shapscale/pkg/errors"
)

// LoadModelFile loads a model and detects the format from its content:
// a JSON object is read as XGBoost, a file starting with "tree" as LightGBM.
func LoadModelFile(path string) (*Model, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open model file %s", path)
	}
	defer file.Close()

	return loadModel(file, path)
}

// LoadModel is LoadModelFile for an already opened stream.
func LoadModel(r io.Reader) (*Model, error) {
	return loadModel(r, "model")
}

func loadModel(r io.Reader, source string) (*Model, error) {
	br := bufio.NewReader(r)
	format, err := sniffFormat(br)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", source)
	}
	switch format {
	case FormatXGBoost:
		return loadXGBoostJSON(br, source)
	default:
		return loadLightGBM(br, source)
	}
}

// sniffFormat peeks at the first non-blank bytes without consuming them.
func sniffFormat(br *bufio.Reader) (string, error) {
	head, err := br.Peek(512)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return "", err
	}
	head = bytes.TrimLeft(head, " \t\r\n")
	switch {
	case len(head) == 0:
		return "", errors.ErrEmptyData
	case head[0] == '{':
		return FormatXGBoost, nil
	case bytes.HasPrefix(head, []byte("tree")):
		return FormatLightGBM, nil
	}
	return "", errors.ErrUnsupportedFormat
}

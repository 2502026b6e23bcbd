package chart

import (
	"bytes"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/vg/draw"

	"github.com/YuminosukeSato/shapscale/pkg/errors"
)

func testFigure() *Figure {
	return &Figure{
		Series: []Series{
			{Name: "Topography", Color: color.RGBA{B: 0xff, A: 0xff}, Marker: draw.CrossGlyph{}},
			{Name: "Shape metrics", Color: color.RGBA{G: 0x80, B: 0x80, A: 0xff}, Marker: StarGlyph{}},
			{Name: "Core area metrics", Color: color.RGBA{R: 0xa5, G: 0x2a, B: 0x2a, A: 0xff}, Marker: DownTriangleGlyph{}},
			{Name: "Aggregation metrics", Color: color.RGBA{R: 0x4b, B: 0x82, A: 0xff}, Marker: DiamondGlyph{}},
		},
		GridSizes: []string{"1", "25", "100", "225", "400"},
		Panels: []Panel{
			{Title: "AMT", Values: [][]float64{
				{1.2, 0.9, 0.7, 0.5, 0.4},
				{0.05, 0.06, 0, 0.08, 0.1},
				{0, 0, 0, 0, 0},
				{0.3, 0.2, 0.25, 0.2, 0.15},
			}},
			{Title: "AMT-var", Values: [][]float64{
				{0.6, 0.5, 0.5, 0.4, 0.3},
				{0.07, 0.06, 0.05, 0.08, 0.1},
				{0.1, 0.1, 0.1, 0.1, 0.1},
				{1.5, 1.2, 1.1, 0.9, 0.8},
			}},
		},
		XLabel:      "Grid size (km²)",
		YLabel:      "Log₁₀(SHAP Values)",
		LegendTitle: "Categories",
		YTicks:      []float64{0.05, 0.1, 0.2, 0.5, 1.0, 1.5, 2},
		Width:       Inches(14),
		Height:      Inches(6),
	}
}

func TestFigure_Save(t *testing.T) {
	for _, ext := range []string{"png", "svg", "pdf"} {
		t.Run(ext, func(t *testing.T) {
			f := testFigure()
			if ext == "pdf" {
				// The PDF backend embeds single-byte encoded fonts.
				f.XLabel, f.YLabel = "Grid size (km2)", "SHAP values"
			}
			path := filepath.Join(t.TempDir(), "shap_categories."+ext)
			require.NoError(t, f.Save(path))

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Greater(t, info.Size(), int64(0))
		})
	}
}

func TestFigure_SavePNGSignature(t *testing.T) {
	wt, err := testFigure().WriterTo("PNG")
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = wt.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), buf.Bytes()[:4])
}

func TestFigure_SaveErrors(t *testing.T) {
	dir := t.TempDir()

	err := testFigure().Save(filepath.Join(dir, "chart.bmp"))
	assert.True(t, errors.Is(err, errors.ErrUnsupportedFormat))

	err = testFigure().Save(filepath.Join(dir, "chart"))
	var valErr *errors.ValidationError
	assert.True(t, errors.As(err, &valErr))
}

func TestFigure_Validate(t *testing.T) {
	f := testFigure()
	require.NoError(t, f.Validate())

	f.Panels[1].Values[2] = []float64{0.1}
	var dimErr *errors.DimensionError
	require.True(t, errors.As(f.Validate(), &dimErr))
	assert.Equal(t, 5, dimErr.Expected)

	f = testFigure()
	f.Panels[0].Values = f.Panels[0].Values[:3]
	assert.Error(t, f.Validate())

	f = testFigure()
	f.Panels = nil
	assert.Error(t, f.Validate())

	f = testFigure()
	f.Width = 0
	assert.Error(t, f.Validate())
}

func TestFigure_AllZeroPanel(t *testing.T) {
	f := testFigure()
	for _, p := range f.Panels {
		for _, row := range p.Values {
			for i := range row {
				row[i] = 0
			}
		}
	}
	lo, hi := f.yRange()
	assert.Equal(t, 0.05, lo)
	assert.Equal(t, 2.0, hi)
	require.NoError(t, f.Save(filepath.Join(t.TempDir(), "zeros.png")))
}

func TestFigure_YRangeShared(t *testing.T) {
	lo, hi := testFigure().yRange()
	assert.Less(t, lo, 0.05)
	assert.Greater(t, hi, 1.5)
	assert.Greater(t, lo, 0.0)
}

func TestFigure_YRangeCoversTicks(t *testing.T) {
	f := testFigure()
	for _, p := range f.Panels {
		for _, row := range p.Values {
			for i := range row {
				row[i] = 0.3 + 0.15*float64(i)/float64(len(row))
			}
		}
	}
	lo, hi := f.yRange()
	assert.LessOrEqual(t, lo, f.YTicks[0])
	assert.GreaterOrEqual(t, hi, f.YTicks[len(f.YTicks)-1])

	f.YTicks = nil
	lo, hi = f.yRange()
	assert.Greater(t, lo, 0.2)
	assert.Less(t, hi, 0.5)
}

func TestFigure_Display(t *testing.T) {
	f := testFigure()
	f.Width, f.Height = Inches(3), Inches(2)
	var buf bytes.Buffer
	require.NoError(t, f.Display(&buf))
	// DCS introducer of a sixel sequence.
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x1bP")))
}

func TestPanelLabel(t *testing.T) {
	assert.Equal(t, "(a)", PanelLabel(0))
	assert.Equal(t, "(b)", PanelLabel(1))
	assert.Equal(t, "(z)", PanelLabel(25))
	assert.Equal(t, "(aa)", PanelLabel(26))
}

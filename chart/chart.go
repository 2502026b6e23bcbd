// Package chart draws category contributions across grid sizes as one
// log-scaled line panel per target with a shared legend on the right.
package chart

import (
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	xfont "golang.org/x/image/font"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/font"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	// Output formats for draw.NewFormattedCanvas.
	_ "gonum.org/v1/plot/vg/vgeps"
	_ "gonum.org/v1/plot/vg/vgimg"
	_ "gonum.org/v1/plot/vg/vgpdf"
	_ "gonum.org/v1/plot/vg/vgsvg"

	"github.com/YuminosukeSato/shapscale/pkg/errors"
)

// Series is the drawing style of one category.
type Series struct {
	Name   string
	Color  color.Color
	Marker draw.GlyphDrawer
}

// Panel holds one target's values, Values[category][grid size].
type Panel struct {
	Title  string
	Values [][]float64
}

// Figure is the complete multi-panel chart.
type Figure struct {
	Series    []Series
	GridSizes []string
	Panels    []Panel

	XLabel      string
	YLabel      string
	LegendTitle string
	YTicks      []float64

	Width, Height vg.Length
}

const (
	legendShare = 0.15
	glyphRadius = vg.Length(3)
)

// Validate checks that every panel has one row per series and one value per grid size.
func (f *Figure) Validate() error {
	if len(f.Panels) == 0 {
		return errors.NewValueError("Figure.Validate", "figure has no panels")
	}
	if len(f.GridSizes) == 0 {
		return errors.NewValueError("Figure.Validate", "figure has no grid sizes")
	}
	if f.Width <= 0 || f.Height <= 0 {
		return errors.NewValidationError("figure size", "width and height must be positive",
			[2]vg.Length{f.Width, f.Height})
	}
	for _, p := range f.Panels {
		if len(p.Values) != len(f.Series) {
			return errors.Wrapf(errors.NewDimensionError("Figure.Validate", len(f.Series), len(p.Values), 0),
				"panel %q", p.Title)
		}
		for i, row := range p.Values {
			if len(row) != len(f.GridSizes) {
				return errors.Wrapf(errors.NewDimensionError("Figure.Validate", len(f.GridSizes), len(row), 1),
					"panel %q category %q", p.Title, f.Series[i].Name)
			}
		}
	}
	return nil
}

// Draw renders the figure onto dc.
func (f *Figure) Draw(dc draw.Canvas) error {
	if err := f.Validate(); err != nil {
		return err
	}
	lo, hi := f.yRange()

	plots := make([][]*plot.Plot, 1)
	plots[0] = make([]*plot.Plot, len(f.Panels))
	for i := range f.Panels {
		p, err := f.panelPlot(i, lo, hi)
		if err != nil {
			return err
		}
		plots[0][i] = p
	}

	width := dc.Max.X - dc.Min.X
	split := dc.Max.X - width*legendShare
	panelArea := draw.Canvas{Canvas: dc.Canvas, Rectangle: vg.Rectangle{Min: dc.Min, Max: vg.Point{X: split, Y: dc.Max.Y}}}
	legendArea := draw.Canvas{Canvas: dc.Canvas, Rectangle: vg.Rectangle{Min: vg.Point{X: split, Y: dc.Min.Y}, Max: dc.Max}}

	tiles := draw.Tiles{
		Rows:      1,
		Cols:      len(f.Panels),
		PadX:      vg.Millimeter * 6,
		PadTop:    vg.Millimeter * 8,
		PadBottom: vg.Millimeter * 2,
		PadLeft:   vg.Millimeter * 4,
		PadRight:  vg.Millimeter * 2,
	}
	canvases := plot.Align(plots, tiles, panelArea)
	for i, p := range plots[0] {
		p.Draw(canvases[0][i])
		f.drawPanelLabel(canvases[0][i], i)
	}
	f.drawLegend(legendArea)
	return nil
}

// WriterTo renders the figure in the given format (png, svg, pdf, eps, jpg, tiff).
func (f *Figure) WriterTo(format string) (io.WriterTo, error) {
	c, err := draw.NewFormattedCanvas(f.Width, f.Height, strings.ToLower(format))
	if err != nil {
		return nil, errors.Wrap(errors.ErrUnsupportedFormat, err.Error())
	}
	if err := f.Draw(draw.New(c)); err != nil {
		return nil, err
	}
	return c, nil
}

// Save writes the figure to path; the extension selects the format.
func (f *Figure) Save(path string) (err error) {
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	if format == "" {
		return errors.NewValidationError("output", "file name needs an extension such as .png or .svg", path)
	}
	wt, err := f.WriterTo(format)
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = errors.Wrapf(cerr, "close %s", path)
		}
	}()
	if _, err := wt.WriteTo(file); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

// panelPlot builds panel i with the shared y range [lo, hi].
func (f *Figure) panelPlot(i int, lo, hi float64) (*plot.Plot, error) {
	panel := f.Panels[i]
	p := plot.New()
	p.Title.Text = panel.Title
	p.X.Label.Text = f.XLabel
	if i == 0 {
		p.Y.Label.Text = f.YLabel
	}

	grid := plotter.NewGrid()
	grid.Vertical.Dashes = []vg.Length{vg.Points(3), vg.Points(3)}
	grid.Vertical.Width = vg.Points(0.5)
	grid.Horizontal = grid.Vertical
	p.Add(grid)

	for c, s := range f.Series {
		pts := positivePoints(panel.Values[c])
		if len(pts) == 0 {
			continue
		}
		line, scatter, err := plotter.NewLinePoints(pts)
		if err != nil {
			return nil, errors.Wrapf(err, "panel %q category %q", panel.Title, s.Name)
		}
		line.Color = s.Color
		line.Width = vg.Points(1.2)
		scatter.GlyphStyle = draw.GlyphStyle{Color: s.Color, Radius: glyphRadius, Shape: s.Marker}
		p.Add(line, scatter)
	}

	ticks := make([]plot.Tick, len(f.GridSizes))
	for g, label := range f.GridSizes {
		ticks[g] = plot.Tick{Value: float64(g), Label: label}
	}
	p.X.Tick.Marker = plot.ConstantTicks(ticks)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter
	p.X.Min = -0.3
	p.X.Max = float64(len(f.GridSizes)-1) + 0.3

	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = yTicks(f.YTicks)
	p.Y.Min, p.Y.Max = lo, hi
	return p, nil
}

// positivePoints drops values a log axis cannot show.
func positivePoints(values []float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(values))
	for g, v := range values {
		if v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v) {
			pts = append(pts, plotter.XY{X: float64(g), Y: v})
		}
	}
	return pts
}

// yRange is the y range shared by all panels, padded in log space.
func (f *Figure) yRange() (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range f.Panels {
		for _, row := range p.Values {
			for _, pt := range positivePoints(row) {
				lo = math.Min(lo, pt.Y)
				hi = math.Max(hi, pt.Y)
			}
		}
	}
	if math.IsInf(lo, 1) {
		if len(f.YTicks) > 0 {
			return f.YTicks[0], f.YTicks[len(f.YTicks)-1]
		}
		return 0.1, 1
	}
	// Every fixed tick stays on the axis.
	for _, v := range f.YTicks {
		if v > 0 {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if lo == hi {
		return lo / 2, hi * 2
	}
	pad := math.Pow(hi/lo, 0.05)
	return lo / pad, hi * pad
}

func yTicks(values []float64) plot.Ticker {
	if len(values) == 0 {
		return plot.LogTicks{Prec: -1}
	}
	ticks := make([]plot.Tick, len(values))
	for i, v := range values {
		ticks[i] = plot.Tick{Value: v, Label: strconv.FormatFloat(v, 'g', -1, 64)}
	}
	return plot.ConstantTicks(ticks)
}

// drawPanelLabel writes "(a)", "(b)", ... above the top-left corner of panel i.
func (f *Figure) drawPanelLabel(c draw.Canvas, i int) {
	sty := draw.TextStyle{
		Color:   color.Black,
		Font:    boldFont(12),
		Handler: plot.DefaultTextHandler,
		XAlign:  draw.XLeft,
		YAlign:  draw.YBottom,
	}
	c.FillText(sty, vg.Point{X: c.Min.X, Y: c.Max.Y + vg.Millimeter*2}, PanelLabel(i))
}

// drawLegend draws a framed, titled legend centered vertically in c.
func (f *Figure) drawLegend(c draw.Canvas) {
	legend := plot.NewLegend()
	legend.Left = true
	legend.Top = true
	legend.TextStyle.Font = font.From(plot.DefaultFont, 10)
	for _, s := range f.Series {
		line := draw.LineStyle{Color: s.Color, Width: vg.Points(1.2)}
		legend.Add(s.Name,
			legendLine{style: line},
			legendGlyph{style: draw.GlyphStyle{Color: s.Color, Radius: glyphRadius, Shape: s.Marker}})
	}

	title := draw.TextStyle{
		Color:   color.Black,
		Font:    font.From(plot.DefaultFont, 11),
		Handler: plot.DefaultTextHandler,
		XAlign:  draw.XCenter,
		YAlign:  draw.YTop,
	}
	pad := vg.Millimeter * 2
	entries := legend.Rectangle(c)
	w := entries.Max.X - entries.Min.X
	if tw := title.Width(f.LegendTitle); tw > w {
		w = tw
	}
	w += 2 * pad
	h := entries.Max.Y - entries.Min.Y + title.Height(f.LegendTitle) + 3*pad

	origin := vg.Point{X: c.Min.X + pad, Y: c.Center().Y - h/2}
	box := vg.Rectangle{Min: origin, Max: vg.Point{X: origin.X + w, Y: origin.Y + h}}

	frame := draw.LineStyle{Color: color.Gray{Y: 0x99}, Width: vg.Points(0.6)}
	c.StrokeLines(frame, []vg.Point{
		box.Min, {X: box.Max.X, Y: box.Min.Y}, box.Max, {X: box.Min.X, Y: box.Max.Y}, box.Min,
	})
	c.FillText(title, vg.Point{X: (box.Min.X + box.Max.X) / 2, Y: box.Max.Y - pad}, f.LegendTitle)

	inner := draw.Canvas{Canvas: c.Canvas, Rectangle: vg.Rectangle{
		Min: vg.Point{X: box.Min.X + pad, Y: box.Min.Y + pad},
		Max: vg.Point{X: box.Max.X - pad, Y: box.Max.Y - 2*pad - title.Height(f.LegendTitle)},
	}}
	legend.Draw(inner)
}

// PanelLabel returns "(a)" for 0, "(b)" for 1 and so on.
func PanelLabel(i int) string {
	label := ""
	for n := i; ; n = n/26 - 1 {
		label = string(rune('a'+n%26)) + label
		if n < 26 {
			break
		}
	}
	return "(" + label + ")"
}

func boldFont(size vg.Length) font.Font {
	f := font.From(plot.DefaultFont, size)
	f.Weight = xfont.WeightBold
	return f
}

type legendLine struct {
	style draw.LineStyle
}

func (l legendLine) Thumbnail(c *draw.Canvas) {
	y := c.Center().Y
	c.StrokeLine2(l.style, c.Min.X, y, c.Max.X, y)
}

type legendGlyph struct {
	style draw.GlyphStyle
}

func (g legendGlyph) Thumbnail(c *draw.Canvas) {
	c.DrawGlyphNoClip(g.style, c.Center())
}

package chart

import (
	"image"
	"io"

	"github.com/mattn/go-sixel"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/YuminosukeSato/shapscale/pkg/errors"
)

// terminalDPI keeps a 14x6 inch figure within a typical terminal width.
const terminalDPI = 72

// Image rasterizes the figure at the given DPI.
func (f *Figure) Image(dpi int) (image.Image, error) {
	c := vgimg.NewWith(vgimg.UseWH(f.Width, f.Height), vgimg.UseDPI(dpi))
	if err := f.Draw(draw.New(c)); err != nil {
		return nil, err
	}
	return c.Image(), nil
}

// Display writes the figure to w as a sixel image.
func (f *Figure) Display(w io.Writer) error {
	img, err := f.Image(terminalDPI)
	if err != nil {
		return err
	}
	if err := sixel.NewEncoder(w).Encode(img); err != nil {
		return errors.Wrap(err, "encode sixel")
	}
	_, err = io.WriteString(w, "\n")
	return err
}

// Inches converts a size in inches to a vg.Length.
func Inches(v float64) vg.Length {
	return vg.Length(v) * vg.Inch
}

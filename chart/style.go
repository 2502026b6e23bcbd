package chart

import (
	"image/color"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/YuminosukeSato/shapscale/pkg/errors"
)

// palette maps color names accepted in configs to RGB values.
var palette = map[string]color.RGBA{
	"black":   {0x00, 0x00, 0x00, 0xff},
	"blue":    {0x00, 0x00, 0xff, 0xff},
	"brown":   {0xa5, 0x2a, 0x2a, 0xff},
	"cyan":    {0x00, 0xff, 0xff, 0xff},
	"gold":    {0xff, 0xd7, 0x00, 0xff},
	"gray":    {0x80, 0x80, 0x80, 0xff},
	"green":   {0x00, 0x80, 0x00, 0xff},
	"grey":    {0x80, 0x80, 0x80, 0xff},
	"indigo":  {0x4b, 0x00, 0x82, 0xff},
	"magenta": {0xff, 0x00, 0xff, 0xff},
	"navy":    {0x00, 0x00, 0x80, 0xff},
	"olive":   {0x80, 0x80, 0x00, 0xff},
	"orange":  {0xff, 0xa5, 0x00, 0xff},
	"pink":    {0xff, 0xc0, 0xcb, 0xff},
	"purple":  {0x80, 0x00, 0x80, 0xff},
	"red":     {0xff, 0x00, 0x00, 0xff},
	"teal":    {0x00, 0x80, 0x80, 0xff},
	"violet":  {0xee, 0x82, 0xee, 0xff},
}

// ColorNames returns the accepted color names in sorted order.
func ColorNames() []string {
	names := make([]string, 0, len(palette))
	for name := range palette {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseColor accepts a palette name or #rrggbb.
func ParseColor(s string) (color.Color, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if c, ok := palette[name]; ok {
		return c, nil
	}
	if len(name) == 7 && name[0] == '#' {
		v, err := strconv.ParseUint(name[1:], 16, 32)
		if err == nil {
			return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
		}
	}
	return nil, errors.NewValidationError("color", "unknown color, use #rrggbb or one of "+strings.Join(ColorNames(), ", "), s)
}

// Markers lists the accepted marker codes.
const Markers = "x o s + * v d ^"

// ParseMarker maps a one-letter marker code to a glyph.
func ParseMarker(s string) (draw.GlyphDrawer, error) {
	switch s {
	case "x":
		return draw.CrossGlyph{}, nil
	case "o":
		return draw.CircleGlyph{}, nil
	case "s":
		return draw.BoxGlyph{}, nil
	case "+":
		return draw.PlusGlyph{}, nil
	case "*":
		return StarGlyph{}, nil
	case "v":
		return DownTriangleGlyph{}, nil
	case "d":
		return DiamondGlyph{}, nil
	case "^":
		return draw.PyramidGlyph{}, nil
	}
	return nil, errors.NewValidationError("marker", "unknown marker, use one of "+Markers, s)
}

// StarGlyph draws a filled five-pointed star.
type StarGlyph struct{}

// DrawGlyph implements the draw.GlyphDrawer interface.
func (StarGlyph) DrawGlyph(c *draw.Canvas, sty draw.GlyphStyle, pt vg.Point) {
	outer := sty.Radius * 1.2
	inner := outer * 0.4
	p := make(vg.Path, 0, 11)
	for i := 0; i < 10; i++ {
		r := outer
		if i%2 == 1 {
			r = inner
		}
		a := math.Pi/2 + float64(i)*math.Pi/5
		q := vg.Point{X: pt.X + r*vg.Length(math.Cos(a)), Y: pt.Y + r*vg.Length(math.Sin(a))}
		if i == 0 {
			p.Move(q)
		} else {
			p.Line(q)
		}
	}
	p.Close()
	c.Fill(p)
}

// DownTriangleGlyph draws a filled triangle pointing down.
type DownTriangleGlyph struct{}

// DrawGlyph implements the draw.GlyphDrawer interface.
func (DownTriangleGlyph) DrawGlyph(c *draw.Canvas, sty draw.GlyphStyle, pt vg.Point) {
	r := sty.Radius * 1.25
	dx := r * vg.Length(math.Cos(math.Pi/6))
	dy := r * 0.5
	p := make(vg.Path, 0, 4)
	p.Move(vg.Point{X: pt.X, Y: pt.Y - r})
	p.Line(vg.Point{X: pt.X + dx, Y: pt.Y + dy})
	p.Line(vg.Point{X: pt.X - dx, Y: pt.Y + dy})
	p.Close()
	c.Fill(p)
}

// DiamondGlyph draws a filled diamond, narrower than it is tall.
type DiamondGlyph struct{}

// DrawGlyph implements the draw.GlyphDrawer interface.
func (DiamondGlyph) DrawGlyph(c *draw.Canvas, sty draw.GlyphStyle, pt vg.Point) {
	h := sty.Radius * 1.1
	w := sty.Radius * 0.75
	p := make(vg.Path, 0, 5)
	p.Move(vg.Point{X: pt.X, Y: pt.Y + h})
	p.Line(vg.Point{X: pt.X + w, Y: pt.Y})
	p.Line(vg.Point{X: pt.X, Y: pt.Y - h})
	p.Line(vg.Point{X: pt.X - w, Y: pt.Y})
	p.Close()
	c.Fill(p)
}

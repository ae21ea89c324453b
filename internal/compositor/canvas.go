// Package compositor renders the frame visible at a playhead time. It
// reads project snapshots and the media handle cache; the raster
// surface is the only thing it writes to.
package compositor

import (
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"
)

// Canvas is the minimal 2D surface contract the compositor draws
// against. Transform state is a stack: Save pushes, Restore pops.
type Canvas interface {
	Size() (width, height int)
	Clear(c color.Color)
	FillRect(x, y, w, h float64, c color.Color)
	Save()
	Restore()
	Translate(dx, dy float64)
	Scale(sx, sy float64)
	Rotate(radians float64)
	SetAlpha(a float64)
	DrawImage(img image.Image, x, y, w, h float64)
	DrawText(s string, x, y float64, c color.Color)
}

type canvasState struct {
	transform f64.Aff3
	alpha     float64
}

// ImageCanvas is a software Canvas over an RGBA buffer. Image draws go
// through an affine transform with bilinear filtering; rect fills use
// nearest-neighbor, which keeps their edges crisp.
type ImageCanvas struct {
	dst   *image.RGBA
	state canvasState
	stack []canvasState
}

func NewImageCanvas(width, height int) *ImageCanvas {
	return &ImageCanvas{
		dst:   image.NewRGBA(image.Rect(0, 0, width, height)),
		state: canvasState{transform: identity(), alpha: 1},
	}
}

// Image returns the underlying buffer. Callers must not draw on it
// while a render is in progress.
func (c *ImageCanvas) Image() *image.RGBA { return c.dst }

func (c *ImageCanvas) Size() (int, int) {
	b := c.dst.Bounds()
	return b.Dx(), b.Dy()
}

func (c *ImageCanvas) Clear(col color.Color) {
	xdraw.Draw(c.dst, c.dst.Bounds(), image.NewUniform(col), image.Point{}, xdraw.Src)
}

func (c *ImageCanvas) Save() {
	c.stack = append(c.stack, c.state)
}

func (c *ImageCanvas) Restore() {
	if len(c.stack) == 0 {
		return
	}
	c.state = c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
}

func (c *ImageCanvas) Translate(dx, dy float64) {
	c.state.transform = mul(c.state.transform, f64.Aff3{1, 0, dx, 0, 1, dy})
}

func (c *ImageCanvas) Scale(sx, sy float64) {
	c.state.transform = mul(c.state.transform, f64.Aff3{sx, 0, 0, 0, sy, 0})
}

func (c *ImageCanvas) Rotate(radians float64) {
	sin, cos := math.Sincos(radians)
	c.state.transform = mul(c.state.transform, f64.Aff3{cos, -sin, 0, sin, cos, 0})
}

func (c *ImageCanvas) SetAlpha(a float64) {
	if a < 0 {
		a = 0
	}
	if a > 1 {
		a = 1
	}
	c.state.alpha = a
}

// FillRect paints an axis-aligned rect in local coordinates. It rides
// the same transform path as DrawImage via a 1x1 source.
func (c *ImageCanvas) FillRect(x, y, w, h float64, col color.Color) {
	px := image.NewRGBA(image.Rect(0, 0, 1, 1))
	px.Set(0, 0, col)
	c.transformDraw(px, x, y, w, h, xdraw.NearestNeighbor)
}

func (c *ImageCanvas) DrawImage(img image.Image, x, y, w, h float64) {
	if img == nil {
		return
	}
	c.transformDraw(img, x, y, w, h, xdraw.ApproxBiLinear)
}

func (c *ImageCanvas) transformDraw(src image.Image, x, y, w, h float64, interp xdraw.Interpolator) {
	sb := src.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 || w <= 0 || h <= 0 {
		return
	}

	// Place the source rect, then apply the accumulated transform.
	place := f64.Aff3{
		w / float64(sb.Dx()), 0, x,
		0, h / float64(sb.Dy()), y,
	}
	m := mul(c.state.transform, place)

	var opts *xdraw.Options
	if c.state.alpha < 1 {
		mask := image.NewUniform(color.Alpha16{A: uint16(c.state.alpha * 0xffff)})
		opts = &xdraw.Options{SrcMask: mask, SrcMaskP: image.Point{}}
	}
	interp.Transform(c.dst, m, src, sb, xdraw.Over, opts)
}

// DrawText renders a small fixed-width label. Only the anchor point is
// transformed; glyphs are not rotated or scaled, which is enough for
// placeholder labels.
func (c *ImageCanvas) DrawText(s string, x, y float64, col color.Color) {
	px, py := apply(c.state.transform, x, y)
	d := font.Drawer{
		Dst:  c.dst,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(int(math.Round(px)), int(math.Round(py))),
	}
	d.DrawString(s)
}

func identity() f64.Aff3 {
	return f64.Aff3{1, 0, 0, 0, 1, 0}
}

// mul composes two affine transforms: the result applies b, then a.
func mul(a, b f64.Aff3) f64.Aff3 {
	return f64.Aff3{
		a[0]*b[0] + a[1]*b[3], a[0]*b[1] + a[1]*b[4], a[0]*b[2] + a[1]*b[5] + a[2],
		a[3]*b[0] + a[4]*b[3], a[3]*b[1] + a[4]*b[4], a[3]*b[2] + a[4]*b[5] + a[5],
	}
}

func apply(m f64.Aff3, x, y float64) (float64, float64) {
	return m[0]*x + m[1]*y + m[2], m[3]*x + m[4]*y + m[5]
}

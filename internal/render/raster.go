package render

import (
	"image"
	"image/color"
	"math"
)

// Raster draws simple primitives straight into an RGBA pixel buffer.
// It skips gg path building for the per-body circles, which dominate a frame.
type Raster struct {
	pix    []byte
	width  int
	height int
	stride int
}

// NewRaster wraps img. Drawing writes through to img.Pix.
func NewRaster(img *image.RGBA) *Raster {
	b := img.Bounds()
	return &Raster{
		pix:    img.Pix,
		width:  b.Dx(),
		height: b.Dy(),
		stride: img.Stride,
	}
}

// Clear fills the whole buffer with c.
func (r *Raster) Clear(c color.RGBA) {
	for i := 0; i+3 < len(r.pix); i += 4 {
		r.pix[i] = c.R
		r.pix[i+1] = c.G
		r.pix[i+2] = c.B
		r.pix[i+3] = c.A
	}
}

func (r *Raster) set(idx int, c color.RGBA) {
	if c.A == 255 {
		r.pix[idx] = c.R
		r.pix[idx+1] = c.G
		r.pix[idx+2] = c.B
		r.pix[idx+3] = 255
		return
	}
	// result = src*a + dst*(1-a), destination assumed opaque
	a := float64(c.A) / 255.0
	inv := 1.0 - a
	r.pix[idx] = uint8(float64(c.R)*a + float64(r.pix[idx])*inv)
	r.pix[idx+1] = uint8(float64(c.G)*a + float64(r.pix[idx+1])*inv)
	r.pix[idx+2] = uint8(float64(c.B)*a + float64(r.pix[idx+2])*inv)
	r.pix[idx+3] = 255
}

// FillCircle draws a filled circle, clipped to the buffer.
func (r *Raster) FillCircle(cx, cy int, radius float64, c color.RGBA) {
	if c.A == 0 || radius <= 0 {
		return
	}
	rad := int(radius + 0.5)
	radSq := radius * radius

	y1 := max(0, cy-rad)
	y2 := min(r.height, cy+rad+1)
	for py := y1; py < y2; py++ {
		dy := float64(py - cy)
		dySq := dy * dy
		if dySq > radSq {
			continue
		}
		ext := math.Sqrt(radSq - dySq)
		x1 := max(0, cx-int(ext+0.5))
		x2 := min(r.width, cx+int(ext+0.5)+1)

		row := py * r.stride
		for px := x1; px < x2; px++ {
			dx := float64(px - cx)
			if dx*dx+dySq <= radSq {
				r.set(row+px*4, c)
			}
		}
	}
}

// StrokeCircle draws a ring of the given line width centred on radius.
func (r *Raster) StrokeCircle(cx, cy int, radius float64, lineWidth int, c color.RGBA) {
	outer := radius + float64(lineWidth)/2
	inner := max(0, radius-float64(lineWidth)/2)
	outerSq, innerSq := outer*outer, inner*inner

	rad := int(outer + 0.5)
	y1 := max(0, cy-rad)
	y2 := min(r.height, cy+rad+1)
	for py := y1; py < y2; py++ {
		dy := float64(py - cy)
		dySq := dy * dy
		if dySq > outerSq {
			continue
		}
		ext := math.Sqrt(outerSq - dySq)
		x1 := max(0, cx-int(ext+0.5))
		x2 := min(r.width, cx+int(ext+0.5)+1)

		row := py * r.stride
		for px := x1; px < x2; px++ {
			dx := float64(px - cx)
			d := dx*dx + dySq
			if d <= outerSq && d >= innerSq {
				r.set(row+px*4, c)
			}
		}
	}
}

// HLine draws a horizontal line from x1 to x2 inclusive.
func (r *Raster) HLine(x1, x2, y int, c color.RGBA) {
	if y < 0 || y >= r.height {
		return
	}
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	x1 = max(0, x1)
	x2 = min(r.width-1, x2)
	row := y * r.stride
	for x := x1; x <= x2; x++ {
		r.set(row+x*4, c)
	}
}

// VLine draws a vertical line from y1 to y2 inclusive.
func (r *Raster) VLine(x, y1, y2 int, c color.RGBA) {
	if x < 0 || x >= r.width {
		return
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	y1 = max(0, y1)
	y2 = min(r.height-1, y2)
	for y := y1; y <= y2; y++ {
		r.set(y*r.stride+x*4, c)
	}
}

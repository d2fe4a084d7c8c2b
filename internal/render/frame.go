// Package render draws simulation snapshots to PNG frames.
package render

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"log"
	"math"
	"sync"
	"time"

	"sphere-field/internal/physics"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

// Default frame size in pixels.
const (
	DefaultWidth  = 800
	DefaultHeight = 800

	// MaxGridLines caps grid overlay lines per axis; denser grids are skipped.
	MaxGridLines = 200
)

var (
	colorBackground = color.RGBA{12, 12, 28, 255}
	colorGrid       = color.RGBA{30, 30, 45, 255}
	colorBorder     = color.RGBA{90, 90, 120, 255}
	colorSlow       = color.RGBA{60, 130, 255, 255}
	colorFast       = color.RGBA{255, 80, 60, 255}
	colorOutline    = color.RGBA{0, 0, 0, 120}
	colorText       = color.RGBA{230, 230, 240, 255}
)

// Config sets the output frame size.
type Config struct {
	Width  int
	Height int
}

// Renderer draws snapshots into a cached gg context. It is safe for
// concurrent use; renders are serialised on the shared context.
type Renderer struct {
	mu     sync.Mutex
	cfg    Config
	dc     *gg.Context
	raster *Raster

	frames    uint64
	lastFrame time.Duration
}

// NewRenderer allocates the frame buffer once.
func NewRenderer(cfg Config) *Renderer {
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultHeight
	}
	dc := gg.NewContext(cfg.Width, cfg.Height)
	dc.SetFontFace(basicfont.Face7x13)

	r := &Renderer{cfg: cfg, dc: dc}
	if img, ok := dc.Image().(*image.RGBA); ok {
		r.raster = NewRaster(img)
	} else {
		log.Println("⚠️ Frame buffer is not RGBA, bodies drawn through gg")
	}
	return r
}

// Size returns the frame size in pixels.
func (r *Renderer) Size() (int, int) { return r.cfg.Width, r.cfg.Height }

// view maps world coordinates to pixels. World y points up, pixel y down.
type view struct {
	scale       float64
	offX, offY  float64
	worldW      float64
	worldH      float64
	frameHeight float64
}

func newView(snap *physics.Snapshot, w, h int) (view, bool) {
	if snap == nil || snap.Width <= 0 || snap.Height <= 0 {
		return view{}, false
	}
	ww, wh := float64(snap.Width), float64(snap.Height)
	scale := math.Min(float64(w)/ww, float64(h)/wh)
	return view{
		scale:       scale,
		offX:        (float64(w) - ww*scale) / 2,
		offY:        (float64(h) - wh*scale) / 2,
		worldW:      ww,
		worldH:      wh,
		frameHeight: float64(h),
	}, true
}

func (v view) point(x, y float32) (float64, float64) {
	return v.offX + float64(x)*v.scale, v.frameHeight - v.offY - float64(y)*v.scale
}

// speedColor blends from slow to fast by t in [0,1].
func speedColor(t float64) color.RGBA {
	t = math.Max(0, math.Min(1, t))
	lerp := func(a, b uint8) uint8 { return uint8(float64(a) + (float64(b)-float64(a))*t) }
	return color.RGBA{
		lerp(colorSlow.R, colorFast.R),
		lerp(colorSlow.G, colorFast.G),
		lerp(colorSlow.B, colorFast.B),
		255,
	}
}

// draw renders snap into the internal buffer. Callers hold r.mu.
func (r *Renderer) draw(snap *physics.Snapshot) {
	dc := r.dc
	w, h := r.cfg.Width, r.cfg.Height

	dc.SetColor(colorBackground)
	dc.DrawRectangle(0, 0, float64(w), float64(h))
	dc.Fill()

	v, ok := newView(snap, w, h)
	if !ok {
		dc.SetColor(colorText)
		dc.DrawStringAnchored("not configured", float64(w)/2, float64(h)/2, 0.5, 0.5)
		return
	}

	r.drawGrid(v, snap.Rows, snap.Columns)

	dc.SetColor(colorBorder)
	dc.SetLineWidth(2)
	x0, y0 := v.point(0, snap.Height)
	dc.DrawRectangle(x0, y0, v.worldW*v.scale, v.worldH*v.scale)
	dc.Stroke()

	r.drawBodies(v, snap.Bodies)
	r.drawHUD(snap)
}

func (r *Renderer) drawGrid(v view, rows, columns int) {
	if rows <= 0 || columns <= 0 || rows > MaxGridLines || columns > MaxGridLines {
		return
	}
	dc := r.dc
	dc.SetColor(colorGrid)
	dc.SetLineWidth(1)
	left, top := v.point(0, float32(v.worldH))
	right, bottom := v.point(float32(v.worldW), 0)
	for i := 1; i < columns; i++ {
		x := left + (right-left)*float64(i)/float64(columns)
		dc.DrawLine(x, top, x, bottom)
		dc.Stroke()
	}
	for j := 1; j < rows; j++ {
		y := top + (bottom-top)*float64(j)/float64(rows)
		dc.DrawLine(left, y, right, y)
		dc.Stroke()
	}
}

func (r *Renderer) drawBodies(v view, bodies []physics.BodySnapshot) {
	var maxSpeed float64
	for i := range bodies {
		b := &bodies[i]
		maxSpeed = math.Max(maxSpeed, math.Hypot(float64(b.VX), float64(b.VY)))
	}

	for i := range bodies {
		b := &bodies[i]
		px, py := v.point(b.X, b.Y)
		pr := math.Max(1, float64(b.Radius)*v.scale)
		t := 0.0
		if maxSpeed > 0 {
			t = math.Hypot(float64(b.VX), float64(b.VY)) / maxSpeed
		}
		c := speedColor(t)

		if r.raster != nil {
			cx, cy := int(px+0.5), int(py+0.5)
			r.raster.FillCircle(cx, cy, pr, c)
			if pr >= 4 {
				r.raster.StrokeCircle(cx, cy, pr, 1, colorOutline)
			}
			continue
		}
		r.dc.SetColor(c)
		r.dc.DrawCircle(px, py, pr)
		r.dc.Fill()
	}
}

func (r *Renderer) drawHUD(snap *physics.Snapshot) {
	dc := r.dc
	dc.SetColor(colorText)
	lines := []string{
		fmt.Sprintf("step %d  bodies %d", snap.Step, len(snap.Bodies)),
		fmt.Sprintf("intersections %d", snap.Intersections),
		fmt.Sprintf("wall %d  contact %d  exchange %d",
			snap.Stats.BoundaryHits, snap.Stats.BodyContacts, snap.Stats.Exchanges),
	}
	for i, line := range lines {
		dc.DrawString(line, 8, 16+float64(i)*15)
	}
}

// Image renders snap and returns a copy of the frame.
func (r *Renderer) Image(snap *physics.Snapshot) image.Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	start := time.Now()
	r.draw(snap)
	src := r.dc.Image()
	out := image.NewRGBA(src.Bounds())
	if rgba, ok := src.(*image.RGBA); ok {
		copy(out.Pix, rgba.Pix)
	} else {
		for y := src.Bounds().Min.Y; y < src.Bounds().Max.Y; y++ {
			for x := src.Bounds().Min.X; x < src.Bounds().Max.X; x++ {
				out.Set(x, y, src.At(x, y))
			}
		}
	}
	r.record(time.Since(start))
	return out
}

// WritePNG renders snap and encodes it as PNG to w.
func (r *Renderer) WritePNG(w io.Writer, snap *physics.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	start := time.Now()
	r.draw(snap)
	if err := r.dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	r.record(time.Since(start))
	return nil
}

func (r *Renderer) record(d time.Duration) {
	r.frames++
	r.lastFrame = d
}

// Stats reports frames rendered and the last frame time.
func (r *Renderer) Stats() (frames uint64, last time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames, r.lastFrame
}

package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"sphere-field/internal/physics"
)

func testSnapshot() *physics.Snapshot {
	return &physics.Snapshot{
		Step:    3,
		Width:   10,
		Height:  10,
		Rows:    5,
		Columns: 5,
		Bodies: []physics.BodySnapshot{
			{ID: 0, X: 5, Y: 5, VX: 1, Radius: 1},
			{ID: 1, X: 2, Y: 8, VY: -3, Radius: 0.5},
		},
	}
}

func TestWritePNGDecodes(t *testing.T) {
	r := NewRenderer(Config{Width: 100, Height: 100})

	var buf bytes.Buffer
	if err := r.WritePNG(&buf, testSnapshot()); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 100 {
		t.Errorf("bounds = %v, want 100x100", b)
	}

	frames, _ := r.Stats()
	if frames != 1 {
		t.Errorf("frames = %d, want 1", frames)
	}
}

func TestImageDrawsBodyAtCentre(t *testing.T) {
	r := NewRenderer(Config{Width: 100, Height: 100})
	img := r.Image(testSnapshot())

	// Body 0 sits at the world centre with a 10px radius.
	got := color.RGBAModel.Convert(img.At(50, 50)).(color.RGBA)
	if got == colorBackground {
		t.Errorf("centre pixel is background, want body colour")
	}
	empty := color.RGBAModel.Convert(img.At(90, 90)).(color.RGBA)
	if empty != colorBackground {
		t.Errorf("empty cell pixel = %v, want background", empty)
	}
}

func TestImageFlipsY(t *testing.T) {
	r := NewRenderer(Config{Width: 100, Height: 100})
	snap := &physics.Snapshot{
		Width:  10,
		Height: 10,
		Bodies: []physics.BodySnapshot{{X: 5, Y: 9, Radius: 0.5}},
	}
	img := r.Image(snap)

	// y=9 is near the top of the frame.
	top := color.RGBAModel.Convert(img.At(50, 10)).(color.RGBA)
	bottom := color.RGBAModel.Convert(img.At(50, 90)).(color.RGBA)
	if top == colorBackground {
		t.Errorf("expected body near the top of the frame")
	}
	if bottom != colorBackground {
		t.Errorf("expected empty background near the bottom, got %v", bottom)
	}
}

func TestUnconfiguredSnapshot(t *testing.T) {
	r := NewRenderer(Config{})
	w, h := r.Size()
	if w != DefaultWidth || h != DefaultHeight {
		t.Errorf("size = %dx%d, want defaults", w, h)
	}
	var buf bytes.Buffer
	if err := r.WritePNG(&buf, &physics.Snapshot{}); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	if err := r.WritePNG(&buf, nil); err != nil {
		t.Fatalf("WritePNG(nil): %v", err)
	}
}

func TestSpeedColor(t *testing.T) {
	if got := speedColor(0); got != colorSlow {
		t.Errorf("speedColor(0) = %v", got)
	}
	if got := speedColor(1); got != colorFast {
		t.Errorf("speedColor(1) = %v", got)
	}
	if got := speedColor(5); got != colorFast {
		t.Errorf("speedColor clamps above 1, got %v", got)
	}
}

func TestRasterFillCircle(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	r := NewRaster(img)
	r.Clear(color.RGBA{0, 0, 0, 255})
	red := color.RGBA{255, 0, 0, 255}
	r.FillCircle(10, 10, 3, red)

	if got := img.RGBAAt(10, 10); got != red {
		t.Errorf("centre = %v, want red", got)
	}
	if got := img.RGBAAt(10, 14); got == red {
		t.Errorf("pixel outside radius was filled")
	}
	// Clipped circles must not panic.
	r.FillCircle(-5, 25, 8, red)
	r.StrokeCircle(0, 0, 30, 2, red)
	r.HLine(-10, 30, 5, red)
	r.VLine(5, -10, 30, red)
}

func TestRasterBlend(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	r := NewRaster(img)
	r.Clear(color.RGBA{0, 0, 0, 255})
	r.HLine(0, 3, 1, color.RGBA{200, 0, 0, 128})

	got := img.RGBAAt(1, 1)
	if got.R < 90 || got.R > 110 || got.A != 255 {
		t.Errorf("blended pixel = %v, want about half red and opaque", got)
	}
}

func BenchmarkWritePNG(b *testing.B) {
	r := NewRenderer(Config{Width: 800, Height: 800})
	snap := &physics.Snapshot{Width: 200, Height: 200, Rows: 50, Columns: 50}
	for i := 0; i < 2000; i++ {
		snap.Bodies = append(snap.Bodies, physics.BodySnapshot{
			ID:     uint32(i),
			X:      float32(i%200) + 0.5,
			Y:      float32(i/10%200) + 0.5,
			VX:     1,
			Radius: 0.5,
		})
	}
	var buf bytes.Buffer
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		_ = r.WritePNG(&buf, snap)
	}
}

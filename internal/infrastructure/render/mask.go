package render

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/retouchlab/eraser/internal/core/domain"
)

// Mask renders the marked regions as white discs on black, sized for
// inpainting pipelines that take an explicit removal mask.
func Mask(width, height int, strokes []domain.AnnotationStroke) *image.NRGBA {
	mask := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 3; i < len(mask.Pix); i += 4 {
		mask.Pix[i] = 0xFF
	}

	white := color.NRGBA{255, 255, 255, 255}
	for _, stroke := range strokes {
		radius := strokeRadius(stroke, width, height)
		for _, p := range stroke.Points {
			cx := int(clamp(p.X, 0, 1)*float64(width) + 0.5)
			cy := int(clamp(p.Y, 0, 1)*float64(height) + 0.5)
			fillDisc(mask, cx, cy, radius, white)
		}
	}
	return mask
}

// MarkerOverlay clones the photo and draws a crosshair on every marker.
func MarkerOverlay(img image.Image, markers []domain.Marker) *image.NRGBA {
	out := imaging.Clone(img)
	w, h := out.Bounds().Dx(), out.Bounds().Dy()
	red := color.NRGBA{255, 0, 0, 255}
	cross := int(math.Max(4, 0.01*float64(min(w, h))))

	for _, m := range markers {
		px := int(clamp(m.X, 0, 1)*float64(w) + 0.5)
		py := int(clamp(m.Y, 0, 1)*float64(h) + 0.5)
		drawHLine(out, py, px-cross, px+cross, red)
		drawVLine(out, px, py-cross, py+cross, red)
	}
	return out
}

// strokeRadius derives the disc radius from the stroke width in pixels,
// falling back to roughly 2% of the short side for zero-width strokes.
func strokeRadius(stroke domain.AnnotationStroke, width, height int) int {
	if stroke.Width > 0 {
		return int(math.Max(2, stroke.Width/2))
	}
	return int(math.Max(4, 0.02*float64(min(width, height))))
}

func fillDisc(img *image.NRGBA, cx, cy, radius int, c color.NRGBA) {
	for dy := -radius; dy <= radius; dy++ {
		span := int(math.Sqrt(float64(radius*radius - dy*dy)))
		drawHLine(img, cy+dy, cx-span, cx+span+1, c)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}

package annotate

import (
	"fmt"
	"strings"

	"github.com/retouchlab/eraser/internal/core/domain"
)

const defaultBasePrompt = "Remove the marked objects from this photo."

// Converter turns user strokes into normalized markers and builds the
// removal prompt text sent to the model.
type Converter struct{}

func NewConverter() *Converter {
	return &Converter{}
}

// ToMarkers reduces every stroke to its centroid. A stroke without
// points falls back to the image center rather than failing.
func (c *Converter) ToMarkers(img domain.AnnotatedImage) []domain.Marker {
	markers := make([]domain.Marker, 0, len(img.Strokes))
	for i, stroke := range img.Strokes {
		x, y := centroid(stroke.Points)
		id := stroke.ID
		if id == "" {
			id = fmt.Sprintf("marker-%d", i+1)
		}
		markers = append(markers, domain.Marker{
			ID:    id,
			X:     x,
			Y:     y,
			Label: fmt.Sprintf("object %d", i+1),
		})
	}
	return markers
}

// RemovalPrompt is pure and deterministic: same annotated image, same
// base, same output.
func (c *Converter) RemovalPrompt(img domain.AnnotatedImage, base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = defaultBasePrompt
	}

	var b strings.Builder
	b.WriteString(base)
	fmt.Fprintf(&b, " The user marked %d object(s) for removal.", len(img.Strokes))
	b.WriteString(" Reconstruct the uncovered background so lighting, texture, and composition stay consistent with the rest of the scene, and leave unmarked areas untouched.")
	if instructions := strings.TrimSpace(img.Instructions); instructions != "" {
		fmt.Fprintf(&b, " Additional instructions: %s", instructions)
	}
	return b.String()
}

func centroid(points []domain.AnnotationPoint) (float64, float64) {
	if len(points) == 0 {
		return 0.5, 0.5
	}
	var sx, sy float64
	for _, p := range points {
		sx += p.X
		sy += p.Y
	}
	n := float64(len(points))
	return sx / n, sy / n
}

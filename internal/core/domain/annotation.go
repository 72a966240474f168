package domain

import (
	"fmt"
	"os"
	"time"
)

// AnnotationPoint is a single sampled position of a draw gesture,
// normalized to the source image (0,0 = top-left, 1,1 = bottom-right).
type AnnotationPoint struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Pressure float64 `json:"pressure,omitempty"`
}

// AnnotationStroke is one continuous user-drawn path marking an object
// for removal. Points keep draw order; the stroke is immutable once built.
type AnnotationStroke struct {
	ID        string            `json:"id"`
	Points    []AnnotationPoint `json:"points"`
	Color     string            `json:"color,omitempty"`
	Width     float64           `json:"width,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// AnnotatedImage bundles an image payload with the strokes drawn on it
// and optional free-text user instructions.
type AnnotatedImage struct {
	Image        ImagePayload       `json:"image"`
	Strokes      []AnnotationStroke `json:"strokes"`
	Instructions string             `json:"instructions,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Marker is the normalized centroid of a stroke, sent to the remote model.
// Derived on every conversion, never persisted on its own.
type Marker struct {
	ID    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label,omitempty"`
}

// ImagePayload carries image content as either inline bytes or a local
// file path, with a single accessor for both variants.
type ImagePayload struct {
	Data []byte `json:"data,omitempty"`
	Path string `json:"path,omitempty"`
}

func BytesPayload(data []byte) ImagePayload { return ImagePayload{Data: data} }

func PathPayload(path string) ImagePayload { return ImagePayload{Path: path} }

// Inline reports whether the payload already holds its bytes in memory.
func (p ImagePayload) Inline() bool { return len(p.Data) > 0 }

func (p ImagePayload) Empty() bool { return len(p.Data) == 0 && p.Path == "" }

// Bytes returns the image content, reading the backing file for the
// path variant.
func (p ImagePayload) Bytes() ([]byte, error) {
	if len(p.Data) > 0 {
		return p.Data, nil
	}
	if p.Path == "" {
		return nil, fmt.Errorf("image payload: %w", ErrInvalidInput)
	}
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("read image payload %s: %w", p.Path, err)
	}
	return data, nil
}

package render

import (
	"fmt"

	"github.com/retouchlab/eraser/internal/core/domain"
)

// draftMaxDim caps the longest side of draft-quality output.
const draftMaxDim = 1280

// Finisher maps finished pipeline output and stroke annotations onto
// the delivery codecs.
type Finisher struct{}

// EncodeResult re-encodes lossy formats with the quality mapped from
// the requested level and downscales draft output. PNG passes through
// untouched unless draft quality asks for a downscale.
func (Finisher) EncodeResult(edited []byte, pctx domain.ProcessingContext) ([]byte, error) {
	format, err := DetectFormat(edited)
	if err != nil {
		return nil, err
	}

	draft := pctx.Quality == domain.QualityDraft
	if format == FormatPNG && !draft {
		return edited, nil
	}

	img, _, err := Decode(edited)
	if err != nil {
		return nil, err
	}
	if draft {
		img = Downscale(img, draftMaxDim)
	}
	return Encode(img, format, EncodeOptions{Quality: qualityFor(pctx.Quality)})
}

// RenderMask rasterizes the stroke annotations at the source image's
// dimensions, white discs on black. No strokes means no mask.
func (Finisher) RenderMask(img domain.AnnotatedImage) ([]byte, error) {
	if len(img.Strokes) == 0 {
		return nil, nil
	}
	data, err := img.Image.Bytes()
	if err != nil {
		return nil, fmt.Errorf("resolve source payload: %w", err)
	}
	src, _, err := Decode(data)
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	mask := Mask(bounds.Dx(), bounds.Dy(), img.Strokes)
	return Encode(mask, FormatPNG, EncodeOptions{})
}

func qualityFor(level domain.QualityLevel) int {
	switch level {
	case domain.QualityDraft:
		return 75
	case domain.QualityHigh:
		return 95
	default:
		return 90
	}
}

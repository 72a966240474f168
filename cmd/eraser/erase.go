package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/retouchlab/eraser/internal/bootstrap"
	"github.com/retouchlab/eraser/internal/config"
	"github.com/retouchlab/eraser/internal/core/domain"
	"github.com/retouchlab/eraser/internal/infrastructure/annotate"
	"github.com/retouchlab/eraser/internal/infrastructure/render"
)

func newEraseCmd() *cobra.Command {
	var out string
	var instructions string
	var strokesPath string
	var quality string
	var overlayPath string

	cmd := &cobra.Command{
		Use:   "erase IMAGE",
		Short: "Remove marked or described objects from a photo",
		Example: `  # Describe what to remove
  eraser erase photo.jpg -i "remove the trash can on the left"

  # Use strokes exported from the editor
  eraser erase photo.jpg --strokes strokes.json -o clean.jpg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			editor, closeFn, err := bootstrap.NewEditor(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			img := domain.AnnotatedImage{
				Image:        domain.PathPayload(args[0]),
				Instructions: instructions,
				CreatedAt:    time.Now(),
			}
			if strokesPath != "" {
				data, err := os.ReadFile(strokesPath)
				if err != nil {
					return fmt.Errorf("read strokes file: %w", err)
				}
				if err := json.Unmarshal(data, &img.Strokes); err != nil {
					return fmt.Errorf("decode strokes file: %w", err)
				}
			}

			if overlayPath != "" {
				if err := writeMarkerOverlay(overlayPath, img); err != nil {
					return err
				}
				cmd.Printf("wrote marker overlay %s\n", overlayPath)
			}

			result, err := editor.EditImage(cmd.Context(), domain.EditRequest{
				Image:   img,
				Context: domain.ProcessingContext{Quality: domain.QualityLevel(quality)},
			})
			if err != nil {
				return err
			}

			if out == "" {
				out = outputPath(args[0], result.ProcessedImage)
			}
			if err := os.WriteFile(out, result.ProcessedImage, 0o644); err != nil {
				return fmt.Errorf("write edited image: %w", err)
			}

			cmd.Printf("wrote %s (%d bytes) in %s\n", out, len(result.ProcessedImage), result.ProcessingTime.Round(time.Millisecond))
			if result.EnhancedPrompt != "" {
				cmd.Printf("prompt: %s\n", result.EnhancedPrompt)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default: <image>-edited.<ext>)")
	cmd.Flags().StringVarP(&instructions, "instructions", "i", "", "plain-language description of what to remove")
	cmd.Flags().StringVar(&strokesPath, "strokes", "", "JSON file with annotation strokes")
	cmd.Flags().StringVar(&quality, "quality", "standard", "output quality: draft, standard or high")
	cmd.Flags().StringVar(&overlayPath, "overlay", "", "also write a debug overlay showing the derived markers")

	return cmd
}

// writeMarkerOverlay draws the derived marker positions on a copy of
// the source so a run can be sanity-checked before the edit lands.
func writeMarkerOverlay(path string, img domain.AnnotatedImage) error {
	data, err := img.Image.Bytes()
	if err != nil {
		return fmt.Errorf("read source image: %w", err)
	}
	src, _, err := render.Decode(data)
	if err != nil {
		return err
	}

	markers := annotate.NewConverter().ToMarkers(img)
	encoded, err := render.Encode(render.MarkerOverlay(src, markers), render.FormatPNG, render.EncodeOptions{})
	if err != nil {
		return fmt.Errorf("encode overlay: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("write overlay: %w", err)
	}
	return nil
}

// outputPath derives a sibling path for the edited image, trusting the
// returned bytes over the source extension.
func outputPath(imagePath string, processed []byte) string {
	ext := filepath.Ext(imagePath)
	if format, err := render.DetectFormat(processed); err == nil {
		ext = format.Extension()
	}
	base := strings.TrimSuffix(imagePath, filepath.Ext(imagePath))
	return base + "-edited" + ext
}

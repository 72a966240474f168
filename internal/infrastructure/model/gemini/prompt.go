package gemini

import (
	"fmt"
	"strings"

	"github.com/retouchlab/eraser/internal/core/domain"
)

const safetySystemPrompt = `You are an image content screener for a photo editing service.`

const safetyUserPrompt = `Review the attached photo.
Answer with the single word SAFE when the photo is acceptable for automated editing.
Answer with the single word UNSAFE when it contains sexual content, graphic violence, or exploitative imagery.
No other words.`

func buildAnalyzePrompt(markers []domain.Marker) string {
	if len(markers) == 0 {
		return "Describe the distracting objects in this photo and write one concise instruction for removing them."
	}

	var b strings.Builder
	b.WriteString("The user marked these spots for removal (coordinates normalized to 0..1):\n")
	for idx, m := range markers {
		label := m.Label
		if label == "" {
			label = fmt.Sprintf("object %d", idx+1)
		}
		b.WriteString(fmt.Sprintf("- %s at (%.3f, %.3f)\n", label, m.X, m.Y))
	}
	b.WriteString("\nIdentify each marked object and write one concise editing instruction that removes them all and reconstructs the background naturally. Return only the instruction.")
	return b.String()
}

func parseSafetyVerdict(text string) (bool, error) {
	verdict := strings.ToUpper(strings.TrimSpace(text))
	switch {
	case strings.HasPrefix(verdict, "UNSAFE"):
		return false, nil
	case strings.HasPrefix(verdict, "SAFE"):
		return true, nil
	default:
		return false, fmt.Errorf("gemini safety: unrecognized verdict %q", text)
	}
}

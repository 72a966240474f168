package ollama

import (
	"fmt"
	"strings"

	"github.com/retouchlab/eraser/internal/core/domain"
)

const safetySystemPrompt = `You screen photos for a photo editing service.`

const safetyUserPrompt = `Look at the attached photo.
Reply SAFE if it is acceptable for automated editing.
Reply UNSAFE if it contains sexual content, graphic violence, or exploitative imagery.
Reply with one word only.`

func buildAnalyzePrompt(markers []domain.Marker) string {
	if len(markers) == 0 {
		return "Describe the distracting objects in this photo and write one short instruction for removing them."
	}

	var b strings.Builder
	b.WriteString("The user marked these spots for removal, coordinates normalized to 0..1:\n")
	for idx, m := range markers {
		label := m.Label
		if label == "" {
			label = fmt.Sprintf("object %d", idx+1)
		}
		b.WriteString(fmt.Sprintf("- %s at (%.3f, %.3f)\n", label, m.X, m.Y))
	}
	b.WriteString("\nName each marked object and write one short editing instruction that removes them all and fills the background naturally. Reply with the instruction only.")
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
		return false, fmt.Errorf("ollama safety: unrecognized verdict %q", text)
	}
}

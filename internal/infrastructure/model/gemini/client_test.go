package gemini

import (
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"

	"github.com/retouchlab/eraser/internal/core/domain"
)

func TestBuildAnalyzePromptListsMarkers(t *testing.T) {
	markers := []domain.Marker{
		{ID: "m-1", X: 0.25, Y: 0.75, Label: "lamp post"},
		{ID: "m-2", X: 0.5, Y: 0.5},
	}

	prompt := buildAnalyzePrompt(markers)
	if !strings.Contains(prompt, "lamp post at (0.250, 0.750)") {
		t.Fatalf("labeled marker missing: %s", prompt)
	}
	if !strings.Contains(prompt, "object 2 at (0.500, 0.500)") {
		t.Fatalf("fallback label missing: %s", prompt)
	}
}

func TestParseSafetyVerdict(t *testing.T) {
	cases := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"SAFE", true, false},
		{" safe\n", true, false},
		{"UNSAFE", false, false},
		{"unsafe: depicts violence", false, false},
		{"I cannot classify this image", false, true},
		{"", false, true},
	}
	for _, c := range cases {
		got, err := parseSafetyVerdict(c.in)
		if c.wantErr {
			if err == nil {
				t.Fatalf("parseSafetyVerdict(%q) expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseSafetyVerdict(%q) error = %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("parseSafetyVerdict(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestResponseExtraction(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{
				genai.Text("remove the "),
				genai.Text("street sign"),
				genai.Blob{MIMEType: "image/png", Data: []byte{0x89, 0x50}},
			}},
		}},
	}

	if got := responseText(resp); got != "remove the street sign" {
		t.Fatalf("responseText = %q", got)
	}
	if got := responseImage(resp); len(got) != 2 {
		t.Fatalf("responseImage = %v", got)
	}
	if got := responseImage(&genai.GenerateContentResponse{}); got != nil {
		t.Fatalf("expected nil image for empty response, got %v", got)
	}
}

func TestBlockedFaultIsValidation(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockReasonSafety},
	}

	f := blockedFault(resp)
	if f == nil {
		t.Fatal("expected fault for blocked prompt")
	}
	if f.Kind != domain.FaultValidation {
		t.Fatalf("kind = %s, want validation", f.Kind)
	}
	if f.Retryable() {
		t.Fatal("blocked prompt must not be retryable")
	}
	if blockedFault(&genai.GenerateContentResponse{}) != nil {
		t.Fatal("expected nil fault without prompt feedback")
	}
}

func TestClassifyGeminiErrorStatusCodes(t *testing.T) {
	retryable := classifyGeminiError(&googleapi.Error{Code: 503, Message: "overloaded"})
	if !retryable.Retryable || !retryable.RecordFailure {
		t.Fatalf("503 classification = %+v", retryable)
	}

	denied := classifyGeminiError(&googleapi.Error{Code: 403, Message: "permission denied"})
	if denied.Retryable {
		t.Fatal("403 must not be retryable")
	}
	if denied.RecordFailure {
		t.Fatal("client errors must not trip the breaker")
	}
}

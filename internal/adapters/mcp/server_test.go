package mcpadapter

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/retouchlab/eraser/internal/config"
	"github.com/retouchlab/eraser/internal/core/domain"
)

var pngSample = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00, 0x01}

type editorFake struct {
	req       domain.EditRequest
	result    *domain.ProcessingResult
	err       error
	safe      bool
	available bool
}

func (f *editorFake) EditImage(_ context.Context, req domain.EditRequest) (*domain.ProcessingResult, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *editorFake) Cancel(string) bool { return false }

func (f *editorFake) Watch(string) (<-chan domain.ProcessingProgress, func()) {
	ch := make(chan domain.ProcessingProgress)
	close(ch)
	return ch, func() {}
}

func (f *editorFake) ServiceAvailable(context.Context) bool { return f.available }

func (f *editorFake) CheckImageSafety(context.Context, domain.ImagePayload) (bool, error) {
	return f.safe, f.err
}

func toolRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatalf("expected content in tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func TestEraseToolWritesEditedFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(src, pngSample, 0o644); err != nil {
		t.Fatalf("write source image: %v", err)
	}

	editor := &editorFake{result: &domain.ProcessingResult{
		ProcessedImage: pngSample,
		EnhancedPrompt: "erase the cone",
	}}
	srv := NewServer(config.Config{}, editor)

	res, err := srv.handleErase(context.Background(), toolRequest(map[string]any{
		"image_path":   src,
		"instructions": "remove the cone",
	}))
	if err != nil {
		t.Fatalf("handle erase: %v", err)
	}
	if res.IsError {
		t.Fatalf("expected success, got error result: %s", resultText(t, res))
	}

	out := filepath.Join(dir, "photo-edited.png")
	written, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read edited file: %v", err)
	}
	if len(written) != len(pngSample) {
		t.Fatalf("edited file has %d bytes, want %d", len(written), len(pngSample))
	}
	if !strings.Contains(resultText(t, res), "erase the cone") {
		t.Fatalf("expected prompt in result text, got %q", resultText(t, res))
	}
	if editor.req.Image.Instructions != "remove the cone" {
		t.Fatalf("instructions not forwarded, got %q", editor.req.Image.Instructions)
	}
}

func TestEraseToolRequiresImagePath(t *testing.T) {
	srv := NewServer(config.Config{}, &editorFake{})

	res, err := srv.handleErase(context.Background(), toolRequest(map[string]any{
		"instructions": "remove the cone",
	}))
	if err != nil {
		t.Fatalf("handle erase: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected error result for missing image_path")
	}
}

func TestEraseToolReportsFaultMessage(t *testing.T) {
	editor := &editorFake{err: domain.NewFault(domain.FaultQuota, "rate limit exceeded")}
	srv := NewServer(config.Config{}, editor)

	res, err := srv.handleErase(context.Background(), toolRequest(map[string]any{
		"image_path":   "/tmp/none.png",
		"instructions": "remove it",
	}))
	if err != nil {
		t.Fatalf("handle erase: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected error result")
	}
	if !strings.Contains(resultText(t, res), "rate limit exceeded") {
		t.Fatalf("expected fault message, got %q", resultText(t, res))
	}
}

func TestSafetyToolVerdicts(t *testing.T) {
	srv := NewServer(config.Config{}, &editorFake{safe: true})
	res, err := srv.handleSafety(context.Background(), toolRequest(map[string]any{
		"image_path": "/tmp/photo.png",
	}))
	if err != nil {
		t.Fatalf("handle safety: %v", err)
	}
	if !strings.Contains(resultText(t, res), "passed") {
		t.Fatalf("expected passing verdict, got %q", resultText(t, res))
	}

	srv = NewServer(config.Config{}, &editorFake{safe: false})
	res, err = srv.handleSafety(context.Background(), toolRequest(map[string]any{
		"image_path": "/tmp/photo.png",
	}))
	if err != nil {
		t.Fatalf("handle safety: %v", err)
	}
	if !strings.Contains(resultText(t, res), "flagged") {
		t.Fatalf("expected flagged verdict, got %q", resultText(t, res))
	}
}

func TestStatusToolReportsProvider(t *testing.T) {
	srv := NewServer(config.Config{ModelProvider: "gemini"}, &editorFake{available: true})
	res, err := srv.handleStatus(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("handle status: %v", err)
	}
	text := resultText(t, res)
	if !strings.Contains(text, "available") || !strings.Contains(text, "gemini") {
		t.Fatalf("unexpected status text %q", text)
	}
}

func TestDerivedOutputPathMatchesBytes(t *testing.T) {
	got := derivedOutputPath("/photos/cat.jpg", pngSample)
	if got != "/photos/cat-edited.png" {
		t.Fatalf("expected png extension from sniffed bytes, got %q", got)
	}
	got = derivedOutputPath("/photos/cat.jpg", []byte("???"))
	if got != "/photos/cat-edited.jpg" {
		t.Fatalf("expected source extension fallback, got %q", got)
	}
}

package mcpadapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/retouchlab/eraser/internal/config"
	"github.com/retouchlab/eraser/internal/core/domain"
	"github.com/retouchlab/eraser/internal/core/ports"
	"github.com/retouchlab/eraser/internal/infrastructure/render"
)

const serverVersion = "1.0.0"

// Server exposes the edit pipeline as MCP tools over stdio so agent
// hosts can drive object removal on local files.
type Server struct {
	cfg    config.Config
	editor ports.ImageEditor
}

func NewServer(cfg config.Config, editor ports.ImageEditor) *Server {
	return &Server{cfg: cfg, editor: editor}
}

func (s *Server) Serve() error {
	srv := server.NewMCPServer(
		"eraser",
		serverVersion,
		server.WithToolCapabilities(false),
	)

	srv.AddTool(mcp.NewTool("erase_objects",
		mcp.WithDescription("Remove objects from a photo and write the edited image next to the original."),
		mcp.WithString("image_path",
			mcp.Required(),
			mcp.Description("Path to the source image (png, jpeg or webp)."),
		),
		mcp.WithString("instructions",
			mcp.Required(),
			mcp.Description("What to remove, e.g. 'remove the traffic cone on the left'."),
		),
		mcp.WithString("output_path",
			mcp.Description("Where to write the edited image. Defaults to <image>-edited.<ext>."),
		),
	), s.handleErase)

	srv.AddTool(mcp.NewTool("check_image_safety",
		mcp.WithDescription("Check whether an image passes the content safety policy."),
		mcp.WithString("image_path",
			mcp.Required(),
			mcp.Description("Path to the image to check."),
		),
	), s.handleSafety)

	srv.AddTool(mcp.NewTool("service_status",
		mcp.WithDescription("Report whether the AI editing backend is reachable."),
	), s.handleStatus)

	return server.ServeStdio(srv)
}

func (s *Server) handleErase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	imagePath, err := request.RequireString("image_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	instructions, err := request.RequireString("instructions")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	outputPath := request.GetString("output_path", "")

	result, err := s.editor.EditImage(ctx, domain.EditRequest{
		Image: domain.AnnotatedImage{
			Image:        domain.PathPayload(imagePath),
			Instructions: instructions,
			CreatedAt:    time.Now().UTC(),
		},
	})
	if err != nil {
		return mcp.NewToolResultError(domain.Classify(err).Message), nil
	}

	if outputPath == "" {
		outputPath = derivedOutputPath(imagePath, result.ProcessedImage)
	}
	if err := os.WriteFile(outputPath, result.ProcessedImage, 0o644); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("write edited image: %v", err)), nil
	}

	prompt := result.EnhancedPrompt
	if prompt == "" {
		prompt = result.OriginalPrompt
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Edited image written to %s (%d bytes).\nPrompt used: %s",
		outputPath, len(result.ProcessedImage), prompt,
	)), nil
}

func (s *Server) handleSafety(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	imagePath, err := request.RequireString("image_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	safe, err := s.editor.CheckImageSafety(ctx, domain.PathPayload(imagePath))
	if err != nil {
		return mcp.NewToolResultError(domain.Classify(err).Message), nil
	}
	if safe {
		return mcp.NewToolResultText("The image passed the content safety check."), nil
	}
	return mcp.NewToolResultText("The image was flagged by the content safety check."), nil
}

func (s *Server) handleStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	available := s.editor.ServiceAvailable(ctx)
	state := "unavailable"
	if available {
		state = "available"
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Editing backend is %s (provider: %s).",
		state, s.cfg.ModelProvider,
	)), nil
}

// derivedOutputPath names the edited file after the source, with the
// extension matched to the actual bytes the model returned.
func derivedOutputPath(imagePath string, processed []byte) string {
	ext := filepath.Ext(imagePath)
	base := strings.TrimSuffix(imagePath, ext)
	if format, err := render.DetectFormat(processed); err == nil {
		ext = format.Extension()
	}
	return base + "-edited" + ext
}

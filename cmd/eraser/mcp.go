package main

import (
	"github.com/spf13/cobra"

	mcpadapter "github.com/retouchlab/eraser/internal/adapters/mcp"
	"github.com/retouchlab/eraser/internal/bootstrap"
	"github.com/retouchlab/eraser/internal/config"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the editing tools over the Model Context Protocol on stdio",
		Long: `Starts an MCP server on stdin/stdout so agent hosts can call the
erase_objects, check_image_safety and service_status tools directly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			editor, closeFn, err := bootstrap.NewEditor(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			return mcpadapter.NewServer(cfg, editor).Serve()
		},
	}
}

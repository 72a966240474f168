package main

import (
	"github.com/spf13/cobra"

	"github.com/retouchlab/eraser/internal/bootstrap"
	"github.com/retouchlab/eraser/internal/config"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report editing backend availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			editor, closeFn, err := bootstrap.NewEditor(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			state := "unavailable"
			if editor.ServiceAvailable(cmd.Context()) {
				state = "available"
			}
			cmd.Printf("provider: %s\nbackend: %s\n", cfg.ModelProvider, state)
			return nil
		},
	}
}

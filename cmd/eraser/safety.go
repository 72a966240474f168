package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/retouchlab/eraser/internal/bootstrap"
	"github.com/retouchlab/eraser/internal/config"
	"github.com/retouchlab/eraser/internal/core/domain"
)

func newSafetyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "safety IMAGE",
		Short: "Check whether a photo passes the content safety screen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			editor, closeFn, err := bootstrap.NewEditor(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			safe, err := editor.CheckImageSafety(cmd.Context(), domain.PathPayload(args[0]))
			if err != nil {
				return err
			}
			if !safe {
				return errors.New("image was flagged by the content safety screen")
			}
			cmd.Println("image passed the content safety screen")
			return nil
		},
	}
}

package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

func main() {
	if err := fang.Execute(
		context.Background(),
		newRootCmd(),
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eraser",
		Short: "AI object removal for photos",
		Long: `Eraser removes unwanted objects from photos using generative AI.

Mark the objects to remove, or describe them in plain language, and the
pipeline analyzes the image, builds an editing prompt, and applies the
edit with an image-output model.`,
	}

	cmd.AddCommand(newEraseCmd())
	cmd.AddCommand(newSafetyCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newMCPCmd())

	return cmd
}

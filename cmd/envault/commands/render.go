package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/envault/envault/pkg/render"
)

func newRenderCommand() *cobra.Command {
	var (
		format      string
		outPath     string
		managedOnly bool
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Resolve the environment and write it to a file or stdout",
		Long: `Resolve the configured environment and serialize it instead of
launching a process. Provider-derived and protected values are masked
by default; pass --mask none to render them in the clear.`,
		Example: `  # Dotenv to stdout, secrets masked
  envault render

  # Unmasked shell exports for sourcing
  envault render --format shell --mask none

  # Managed keys only, as JSON, into a file
  envault render --format json --managed-only --out env.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			logger, err := newLogger()
			if err != nil {
				return err
			}

			res, _, cleanup, err := evaluate(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer cleanup()
			logWarnings(logger, res)

			out := os.Stdout
			if outPath != "" {
				f, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
				if err != nil {
					return fmt.Errorf("failed to open output file: %w", err)
				}
				defer f.Close()
				out = f
			}

			return render.Render(out, res, render.Options{
				Format:      render.Format(format),
				Mask:        render.MaskMode(maskMode),
				ManagedOnly: managedOnly,
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "o", "dotenv", "output format: dotenv, shell, json, yaml")
	cmd.Flags().StringVar(&outPath, "out", "", "write to this file instead of stdout")
	cmd.Flags().BoolVar(&managedOnly, "managed-only", false, "render only keys produced by the configuration")

	return cmd
}

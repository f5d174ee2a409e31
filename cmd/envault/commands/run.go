package commands

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/envault/envault/pkg/eval"
	"github.com/envault/envault/pkg/launcher"
)

func newRunCommand() *cobra.Command {
	var (
		watch    bool
		noRedact bool
	)

	cmd := &cobra.Command{
		Use:   "run -- <command> [args...]",
		Short: "Resolve the environment and run a command with it",
		Long: `Resolve the configured environment and launch the given command with
it. Secret values are scrubbed from the child's output unless
--no-redact is set. With --watch, the child is restarted whenever a
configuration file changes.`,
		Example: `  # Run a server with the resolved environment
  envault run -- node server.js

  # Production profile, restart on config changes
  envault run --profile production --watch -- ./app

  # Resolved variables only, nothing from the parent environment
  envault run --pure -- env`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			logger, err := newLogger()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			l := launcher.New(logger)

			if m, err := buildMetrics(); err != nil {
				return err
			} else if m != nil {
				srv := m.StartServer()
				defer srv.Close()
			}

			reload := func(rctx context.Context) (launcher.Options, error) {
				res, _, cleanup, err := evaluate(rctx, logger)
				if err != nil {
					return launcher.Options{}, err
				}
				defer cleanup()
				logWarnings(logger, res)

				opts := launcher.Options{
					Command: args,
					Env:     res.Env,
					Stdin:   os.Stdin,
					Stdout:  os.Stdout,
					Stderr:  os.Stderr,
				}
				if !noRedact {
					opts.Redact = launcher.SecretValues(res)
				}
				return opts, nil
			}

			var code int
			if watch {
				// Fail fast and learn the watch targets before the
				// restart loop takes over.
				_, paths, cleanup, err := evaluate(ctx, logger)
				if err != nil {
					return err
				}
				cleanup()
				code, err = l.Watch(ctx, paths, reload)
				if err != nil && ctx.Err() == nil {
					return err
				}
			} else {
				opts, err := reload(ctx)
				if err != nil {
					return err
				}
				code, err = l.Run(ctx, opts)
				if err != nil && ctx.Err() == nil {
					return err
				}
			}
			if code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "restart the command when configuration files change")
	cmd.Flags().BoolVar(&noRedact, "no-redact", false, "do not scrub secret values from child output")

	return cmd
}

// logWarnings surfaces non-fatal evaluation warnings before launch.
func logWarnings(logger zerolog.Logger, res *eval.Result) {
	for _, w := range res.Warnings {
		logger.Warn().Str("component", "eval").Msg(w)
	}
}

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the application",
		Long: `Start the HTTP server, connect the ODM when configured and bind every controller action.
The command blocks until SIGINT or SIGTERM and then shuts down gracefully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			app, err := opts.newBootstrap()
			if err != nil {
				return err
			}

			if err := app.Run(ctx); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			successColor.Fprint(out, "✓ ")
			fmt.Fprintf(out, "Listening on %s (%d actions)\n", app.Server().Addr(), len(app.Registry().Actions()))

			waitErr := app.WaitForShutdown(ctx)
			shutdownErr := app.Shutdown(context.Background())
			return errors.Join(waitErr, shutdownErr)
		},
	}
}

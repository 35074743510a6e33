// Package cmd provides the command-line interface for foundry applications.
package cmd

import (
	"fmt"
	"os"

	"foundry/bootstrap"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	baseDir   string
	env       string
	logLevel  string
	logFormat string
	noColor   bool

	// extra is appended to the bootstrap options; tests use it to inject drivers and loggers.
	extra []bootstrap.Option
}

// NewRootCmd creates the foundry command with all subcommands.
func NewRootCmd(options ...bootstrap.Option) *cobra.Command {
	opts := &globalOptions{extra: options}

	root := &cobra.Command{
		Use:   "foundry",
		Short: "Run and inspect a foundry application",
		Long: `Run and inspect a foundry application.

An application lives in a base directory holding configuration/config.json, an optional
configuration/parameters.json and the controller, document and subscriber manifest directories.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}

	root.PersistentFlags().StringVar(&opts.baseDir, "base-dir", ".", "Application base directory")
	root.PersistentFlags().StringVar(&opts.env, "env", "", "Environment name (defaults to $FOUNDRY_ENV)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format: console or json")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newConfigCmd(opts))
	root.AddCommand(newRoutesCmd(opts))

	return root
}

// Execute runs the root command and reports a failure on stderr.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		errorColor.Fprintf(os.Stderr, "Error: ")
		fmt.Fprintln(os.Stderr, bootstrap.DescribeStartupError(err))
		return 1
	}
	return 0
}

// newBootstrap builds a Bootstrap from the persistent flags. A log level or format given on the
// command line replaces the logging section of the configuration.
func (o *globalOptions) newBootstrap() (*bootstrap.Bootstrap, error) {
	options := make([]bootstrap.Option, 0, len(o.extra)+1)
	if o.logLevel != "" || o.logFormat != "" {
		logger, err := bootstrap.InitLogger(o.logLevel, o.logFormat)
		if err != nil {
			return nil, err
		}
		options = append(options, bootstrap.WithLogger(logger.Sugar()))
	}
	options = append(options, o.extra...)

	return bootstrap.New(bootstrap.RunOptions{
		BaseDir:     o.baseDir,
		Environment: o.env,
	}, options...)
}

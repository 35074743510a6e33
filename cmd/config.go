package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(opts *globalOptions) *cobra.Command {
	var (
		format     string
		parameters bool
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the merged configuration",
		Long: `Print the configuration after the environment file and FOUNDRY_* variables are applied.
With --parameters the merged parameters are printed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.newBootstrap()
			if err != nil {
				return err
			}

			var v any = app.Config().AllSettings()
			if parameters {
				v = map[string]any(app.Parameters())
			}
			return writeFormatted(cmd.OutOrStdout(), format, v)
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "yaml", "Output format: yaml or json")
	cmd.Flags().BoolVar(&parameters, "parameters", false, "Print parameters instead of configuration")

	return cmd
}

// writeFormatted encodes v as indented JSON or YAML.
func writeFormatted(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q (use yaml or json)", format)
	}
}

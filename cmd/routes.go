package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"foundry/action"
	"foundry/controller"

	"github.com/spf13/cobra"
)

// route is the JSON form of a registered action.
type route struct {
	Name   string `json:"name"`
	Method string `json:"method"`
	Path   string `json:"path"`
}

func newRoutesCmd(opts *globalOptions) *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List the actions the controllers register",
		Long: `Load every controller manifest and list the actions it registers, without starting the
HTTP server or connecting the ODM. The table form also lists the services in the container.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.newBootstrap()
			if err != nil {
				return err
			}
			if err := app.LoadControllers(); err != nil {
				return err
			}

			actions := app.Registry().Actions()
			out := cmd.OutOrStdout()
			if outputJSON {
				routes := make([]route, 0, len(actions))
				for _, a := range actions {
					routes = append(routes, route{Name: a.Name, Method: a.Method, Path: a.Path})
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(routes)
			}

			renderControllers(out, app.Controllers())
			renderServices(out, app.Container().Types())
			renderRoutesTable(out, actions)
			return nil
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output in JSON format")

	return cmd
}

func renderControllers(w io.Writer, manifests []controller.Manifest) {
	if len(manifests) == 0 {
		warningColor.Fprintln(w, "No controllers loaded")
		return
	}
	headerColor.Fprintln(w, "CONTROLLERS")
	for _, m := range manifests {
		prefix := m.Prefix
		if prefix == "" {
			prefix = "/"
		}
		fmt.Fprintf(w, "  %-20s %-20s ", m.Controller, prefix)
		infoColor.Fprintln(w, m.Path)
	}
	fmt.Fprintln(w)
}

func renderServices(w io.Writer, types []string) {
	headerColor.Fprintln(w, "SERVICES")
	for _, t := range types {
		fmt.Fprintf(w, "  %s\n", t)
	}
	fmt.Fprintln(w)
}

// renderRoutesTable displays actions in registration order.
func renderRoutesTable(w io.Writer, actions []action.Action) {
	if len(actions) == 0 {
		warningColor.Fprintln(w, "No actions registered")
		return
	}

	headerColor.Fprintln(w, "ROUTES")
	headerColor.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%-8s %-40s %s\n", "Method", "Path", "Name")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, a := range actions {
		path := a.Path
		if len(path) > 39 {
			path = path[:36] + "..."
		}
		fmt.Fprintf(w, "%-8s %-40s %s\n", a.Method, path, a.Name)
	}
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

// Package builtin provides the controllers every foundry application can enable from a
// manifest.
package builtin

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"foundry/action"
	"foundry/controller"
)

// Register adds the built-in controllers to catalog.
func Register(catalog *controller.Catalog) error {
	for name, f := range map[string]controller.Factory{
		"ping":   Ping,
		"static": Static,
	} {
		if err := catalog.Register(name, f); err != nil {
			return err
		}
	}
	return nil
}

// NewCatalog returns a catalog holding the built-in controllers.
func NewCatalog() *controller.Catalog {
	catalog := controller.NewCatalog()
	if err := Register(catalog); err != nil {
		panic(err)
	}
	return catalog
}

type pingOptions struct {
	Path    string `mapstructure:"path"`
	Message string `mapstructure:"message"`
}

// Ping answers GET <prefix>/ping with {"status":"ok"}. The path and the status text can be
// changed with the path and message options.
func Ping(reg action.Registrar, m controller.Manifest) error {
	opts := pingOptions{Path: "/ping", Message: "ok"}
	if err := m.Options.Decode(&opts); err != nil {
		return err
	}
	body := map[string]string{"status": opts.Message}
	return reg.Register(action.Action{
		Method: http.MethodGet,
		Path:   opts.Path,
		Handler: func(c *action.Context) error {
			return c.JSON(http.StatusOK, body)
		},
	})
}

type staticOptions struct {
	Dir string `mapstructure:"dir"`
}

// Static serves the files of the dir option under the manifest prefix. A relative dir is
// resolved against the manifest's directory.
func Static(reg action.Registrar, m controller.Manifest) error {
	var opts staticOptions
	if err := m.Options.Decode(&opts); err != nil {
		return err
	}
	if opts.Dir == "" {
		return errors.New("static: dir option is required")
	}
	dir := opts.Dir
	if !filepath.IsAbs(dir) && m.Path != "" {
		dir = filepath.Join(filepath.Dir(m.Path), dir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("static: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("static: %s is not a directory", dir)
	}

	files := http.FileServer(http.Dir(dir))
	serve := func(c *action.Context) error {
		r := c.Request.Clone(c.Context())
		r.URL.Path = "/" + c.Param("file")
		r.URL.RawPath = ""
		files.ServeHTTP(c.Response, r)
		return nil
	}

	for _, method := range []string{http.MethodGet, http.MethodHead} {
		if err := reg.Register(action.Action{
			Method:  method,
			Path:    "/{file:.*}",
			Handler: serve,
		}); err != nil {
			return err
		}
	}
	return nil
}

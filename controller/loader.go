package controller

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"foundry/action"
	"foundry/util/manifest"

	"go.uber.org/zap"
)

// Manifest selects a controller and configures it.
//
//	controller: ping        # defaults to the file name without extension
//	prefix: /api
//	enabled: true
//	options:
//	  message: pong
type Manifest struct {
	Controller string  `yaml:"controller" json:"controller"`
	Prefix     string  `yaml:"prefix" json:"prefix,omitempty"`
	Enabled    *bool   `yaml:"enabled" json:"enabled,omitempty"`
	Options    Options `yaml:"options" json:"options,omitempty"`

	// Path is the manifest file the controller was loaded from.
	Path string `yaml:"-" json:"path"`
}

// IsEnabled reports whether the manifest should be loaded. Manifests are enabled unless they
// say otherwise.
func (m Manifest) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// Loader reads controller manifests and runs their factories.
type Loader struct {
	catalog  *Catalog
	registry action.Registrar
	logger   *zap.SugaredLogger

	// SkipMissing makes RequireAll ignore directories that do not exist. It is set for
	// conventional directories, which an application may simply not have.
	SkipMissing bool

	loaded []Manifest
}

func NewLoader(catalog *Catalog, registry action.Registrar, logger *zap.SugaredLogger) *Loader {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Loader{catalog: catalog, registry: registry, logger: logger}
}

// RequireAll loads every manifest under paths. Directories are walked recursively in lexical
// order; files without a manifest extension are ignored. Loading stops at the first error.
func (l *Loader) RequireAll(paths []string) error {
	for _, dir := range paths {
		files, err := manifest.Files(dir)
		if err != nil {
			if l.SkipMissing && errors.Is(err, fs.ErrNotExist) {
				l.logger.Debugf("Controller directory %s does not exist, skipping", dir)
				continue
			}
			return err
		}
		for _, f := range files {
			if err := l.require(f); err != nil {
				return err
			}
		}
	}
	return nil
}

// Loaded returns the manifests loaded so far, in load order.
func (l *Loader) Loaded() []Manifest {
	out := make([]Manifest, len(l.loaded))
	copy(out, l.loaded)
	return out
}

func (l *Loader) require(f manifest.File) error {
	var m Manifest
	if err := manifest.Decode(f.Path, &m); err != nil {
		return err
	}
	m.Path = f.Path
	m.Controller = strings.TrimSpace(m.Controller)
	if m.Controller == "" {
		m.Controller = f.Name
	}

	if !m.IsEnabled() {
		l.logger.Infof("Controller %s disabled by %s", m.Controller, f.Path)
		return nil
	}

	factory, ok := l.catalog.Lookup(m.Controller)
	if !ok {
		return fmt.Errorf("%w %q in %s (known: %s)", ErrUnknownController, m.Controller, f.Path, strings.Join(l.catalog.Names(), ", "))
	}
	if err := factory(action.WithPrefix(l.registry, m.Prefix), m); err != nil {
		return fmt.Errorf("controller %s (%s): %w", m.Controller, f.Path, err)
	}

	l.loaded = append(l.loaded, m)
	l.logger.Infow("Controller loaded", "controller", m.Controller, "prefix", m.Prefix, "manifest", f.Path)
	return nil
}

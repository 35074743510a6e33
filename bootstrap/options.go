package bootstrap

import (
	"path/filepath"

	"foundry/action"
	"foundry/controller"
	"foundry/di"
	"foundry/odm"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RunOptions locates the files and directories of an application. Every path left empty is
// derived from BaseDir:
//
//	<base>/configuration/config.json      configuration
//	<base>/configuration/parameters.json  parameters
//	<base>/controller                     controller manifests
//	<base>/document                       ODM document manifests
//	<base>/subscriber                     ODM subscriber manifests
//
// Environment selects the override files (config.<env>.json); when empty FOUNDRY_ENV is used.
type RunOptions struct {
	BaseDir        string
	ConfigFiles    []string
	ParameterFiles []string
	ControllerDirs []string
	DocumentDirs   []string
	SubscriberDirs []string
	Environment    string
}

// pathSet is a resolved list of paths. Conventional paths may be missing on disk.
type pathSet struct {
	paths    []string
	explicit bool
}

type resolvedPaths struct {
	config      pathSet
	parameters  pathSet
	controllers pathSet
	documents   pathSet
	subscribers pathSet
}

func (o RunOptions) resolve() resolvedPaths {
	base := o.BaseDir
	if base == "" {
		base = "."
	}
	pick := func(explicit []string, conventional ...string) pathSet {
		if len(explicit) > 0 {
			return pathSet{paths: explicit, explicit: true}
		}
		return pathSet{paths: []string{filepath.Join(append([]string{base}, conventional...)...)}}
	}
	return resolvedPaths{
		config:      pick(o.ConfigFiles, "configuration", "config.json"),
		parameters:  pick(o.ParameterFiles, "configuration", "parameters.json"),
		controllers: pick(o.ControllerDirs, "controller"),
		documents:   pick(o.DocumentDirs, "document"),
		subscribers: pick(o.SubscriberDirs, "subscriber"),
	}
}

// Option customizes a Bootstrap.
type Option func(*Bootstrap)

// WithLogger sets the logger. By default one is built from the logging configuration section.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(b *Bootstrap) { b.logger = logger }
}

// WithContainer uses c instead of a fresh container.
func WithContainer(c *di.Container) Option {
	return func(b *Bootstrap) { b.container = c }
}

// WithActionRegistry uses reg instead of a fresh registry, so actions registered in code before
// Run are bound with the controllers.
func WithActionRegistry(reg *action.Registry) Option {
	return func(b *Bootstrap) { b.registry = reg }
}

// WithControllerCatalog sets the controllers manifests can select. The default holds the
// built-in controllers.
func WithControllerCatalog(c *controller.Catalog) Option {
	return func(b *Bootstrap) { b.catalog = c }
}

// WithDriver makes a database driver available under name, replacing the built-in one of the
// same name.
func WithDriver(name string, factory odm.DriverFactory) Option {
	return func(b *Bootstrap) { b.drivers[name] = factory }
}

// WithSubscriber registers a handler subscriber manifests can refer to.
func WithSubscriber(name string, fn odm.SubscriberFunc) Option {
	return func(b *Bootstrap) { b.subscribers[name] = fn }
}

// WithTracerProvider sets the provider of the bootstrap spans. The global provider is used by
// default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(b *Bootstrap) { b.tracerProvider = tp }
}

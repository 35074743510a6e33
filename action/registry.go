// Package action holds the request handlers of the application. Controllers register actions
// with a Registry; the bootstrap binds them to the HTTP application once its dependencies are
// ready.
package action

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"foundry/api"
	"foundry/di"
	"foundry/metrics"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// HandlerFunc serves an action. A returned *HTTPError is sent with its status; any other error
// becomes a 500.
type HandlerFunc func(*Context) error

// Action is a handler bound to a method and a path template.
type Action struct {
	// Name defaults to "METHOD path".
	Name   string
	Method string
	Path   string

	Handler    HandlerFunc
	Middleware []mux.MiddlewareFunc
}

func (a Action) key() string {
	return a.Method + " " + a.Path
}

// Router is the HTTP application actions are bound to. *api.App implements it.
type Router interface {
	Handle(method, path string, h http.Handler, opts ...api.RouteOption)
}

// Registrar accepts action registrations.
type Registrar interface {
	Register(a Action) error
	Handle(method, path string, h HandlerFunc, mw ...mux.MiddlewareFunc) error
}

// Registry collects actions and binds them to a Router. The lock guards the action list only; it
// is never held while calling into the Router or while serving a request.
type Registry struct {
	mu        sync.RWMutex
	actions   []Action
	index     map[string]int
	router    Router
	container atomic.Pointer[di.Container]
	logger    *zap.SugaredLogger
}

func NewRegistry(logger *zap.SugaredLogger) *Registry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Registry{
		index:  make(map[string]int),
		logger: logger,
	}
}

// Register adds an action. The method defaults to GET. Registering the same method and path
// twice returns ErrDuplicateAction. Once RegisterActions has run, new actions are bound
// immediately.
func (r *Registry) Register(a Action) error {
	a.Method = strings.ToUpper(strings.TrimSpace(a.Method))
	if a.Method == "" {
		a.Method = http.MethodGet
	}
	if a.Path == "" || !strings.HasPrefix(a.Path, "/") {
		return fmt.Errorf("%w: path %q must start with /", ErrInvalidAction, a.Path)
	}
	if a.Handler == nil {
		return fmt.Errorf("%w: %s has no handler", ErrInvalidAction, a.key())
	}
	if a.Name == "" {
		a.Name = a.key()
	}

	r.mu.Lock()
	if _, exists := r.index[a.key()]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateAction, a.key())
	}
	r.index[a.key()] = len(r.actions)
	r.actions = append(r.actions, a)
	router, count := r.router, len(r.actions)
	r.mu.Unlock()

	if router != nil {
		r.bind(router, a)
		metrics.ActionsRegistered.Set(float64(count))
	}
	return nil
}

// Handle registers h for method and path.
func (r *Registry) Handle(method, path string, h HandlerFunc, mw ...mux.MiddlewareFunc) error {
	return r.Register(Action{Method: method, Path: path, Handler: h, Middleware: mw})
}

// SetContainer sets the container handed to actions through their Context.
func (r *Registry) SetContainer(c *di.Container) {
	r.container.Store(c)
}

func (r *Registry) Container() *di.Container {
	return r.container.Load()
}

// Actions returns the registered actions in registration order.
func (r *Registry) Actions() []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Action, len(r.actions))
	copy(out, r.actions)
	return out
}

// Bound reports whether RegisterActions has run.
func (r *Registry) Bound() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.router != nil
}

// RegisterActions binds every registered action to router. It may only be called once.
func (r *Registry) RegisterActions(router Router) error {
	if router == nil {
		return errors.New("register actions: router is nil")
	}

	r.mu.Lock()
	if r.router != nil {
		r.mu.Unlock()
		return ErrAlreadyBound
	}
	r.router = router
	actions := slices.Clone(r.actions)
	r.mu.Unlock()

	// Actions registered from here on bind themselves in Register.
	for _, a := range actions {
		r.bind(router, a)
	}
	metrics.ActionsRegistered.Set(float64(len(actions)))
	r.logger.Infof("Registered %d actions", len(actions))
	return nil
}

func (r *Registry) bind(router Router, a Action) {
	action := a
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := &Context{
			Request:   req,
			Response:  w,
			action:    &action,
			container: r.Container(),
			logger:    r.logger,
		}
		if err := action.Handler(ctx); err != nil {
			r.handleError(ctx, err)
		}
	})
	for i := len(action.Middleware) - 1; i >= 0; i-- {
		h = action.Middleware[i](h)
	}
	router.Handle(action.Method, action.Path, h, api.Named(action.Name))
	r.logger.Debugw("Action bound", "action", action.Name, "method", action.Method, "path", action.Path)
}

func (r *Registry) handleError(c *Context, err error) {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		httpErr = NewHTTPError(http.StatusInternalServerError, "internal server error").Wrap(err)
	}
	metrics.ActionErrors.WithLabelValues(c.action.Name, strconv.Itoa(httpErr.Status)).Inc()
	api.WriteError(c.Response, c.Request, httpErr.Status, httpErr.Message, err, r.logger)
}

// WithPrefix returns a Registrar that prepends prefix to every path.
func WithPrefix(reg Registrar, prefix string) Registrar {
	prefix = "/" + strings.Trim(prefix, "/")
	if prefix == "/" {
		return reg
	}
	return &prefixed{reg: reg, prefix: prefix}
}

type prefixed struct {
	reg    Registrar
	prefix string
}

func (p *prefixed) Register(a Action) error {
	a.Path = joinPath(p.prefix, a.Path)
	return p.reg.Register(a)
}

func (p *prefixed) Handle(method, path string, h HandlerFunc, mw ...mux.MiddlewareFunc) error {
	return p.Register(Action{Method: method, Path: path, Handler: h, Middleware: mw})
}

func joinPath(prefix, p string) string {
	if p == "" || p == "/" {
		return prefix
	}
	joined := path.Join(prefix, p)
	if strings.HasSuffix(p, "/") {
		joined += "/"
	}
	return joined
}

package api

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"foundry/metrics"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Route describes a handler bound to the application.
type Route struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Name   string `json:"name,omitempty"`
}

// RouteOption customizes a route passed to App.Handle.
type RouteOption func(*routeSpec)

// Named sets the route name reported by App.Routes.
func Named(name string) RouteOption {
	return func(s *routeSpec) { s.name = name }
}

type routeSpec struct {
	method  string
	path    string
	name    string
	handler http.Handler
}

// snapshot is an immutable router and the middleware chain around it.
type snapshot struct {
	router  *mux.Router
	handler http.Handler
}

// App is the HTTP application. Routes and middleware may be added while the server is already
// serving requests: every change publishes a rebuilt router, and requests in flight finish on the
// one they started with. Serving never takes the App lock.
type App struct {
	mu         sync.Mutex
	routes     []routeSpec
	middleware []mux.MiddlewareFunc
	current    atomic.Pointer[snapshot]
	logger     *zap.SugaredLogger
}

// NewApp creates an application backed by a gorilla/mux router. Unknown paths and methods get
// JSON error responses.
func NewApp(logger *zap.SugaredLogger) *App {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	a := &App{logger: logger}
	a.publish()
	return a
}

// publish rebuilds the router from the recorded routes and middleware. Callers hold a.mu, except
// NewApp.
func (a *App) publish() {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	router.Use(a.instrument)

	for _, spec := range a.routes {
		route := router.Handle(spec.path, spec.handler)
		if spec.method != "" {
			route.Methods(spec.method)
		}
		if spec.name != "" {
			route.Name(spec.name)
		}
	}

	var h http.Handler = router
	for i := len(a.middleware) - 1; i >= 0; i-- {
		h = a.middleware[i](h)
	}
	a.current.Store(&snapshot{router: router, handler: h})
}

// Use appends middleware that wraps every request, including ones that match no route.
// Middleware runs in the order it was added.
func (a *App) Use(mw ...mux.MiddlewareFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.middleware = append(a.middleware, mw...)
	a.publish()
}

// Handle binds h to method and path. An empty method matches any method. Path templates use
// gorilla/mux syntax ("/users/{id}").
func (a *App) Handle(method, path string, h http.Handler, opts ...RouteOption) {
	spec := routeSpec{method: strings.ToUpper(method), path: path, handler: h}
	for _, opt := range opts {
		opt(&spec)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.routes = append(a.routes, spec)
	a.publish()
}

func (a *App) HandleFunc(method, path string, h http.HandlerFunc, opts ...RouteOption) {
	a.Handle(method, path, h, opts...)
}

// Routes returns the bound routes sorted by path and method. Routes without a method restriction
// are reported with method "*".
func (a *App) Routes() []Route {
	var routes []Route
	_ = a.current.Load().router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := route.GetPathTemplate()
		if err != nil {
			return nil
		}
		methods, err := route.GetMethods()
		if err != nil || len(methods) == 0 {
			methods = []string{"*"}
		}
		for _, m := range methods {
			routes = append(routes, Route{Method: m, Path: path, Name: route.GetName()})
		}
		return nil
	})

	sort.SliceStable(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})
	return routes
}

// Logger returns the application logger.
func (a *App) Logger() *zap.SugaredLogger {
	return a.logger
}

func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.current.Load().handler.ServeHTTP(w, r)
}

// instrument records request metrics for matched routes under their path template.
func (a *App) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := "unknown"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.RecordHTTPRequest(r.Method, route, wrapped.statusCode, time.Since(start))
	})
}

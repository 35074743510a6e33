package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"foundry/api"
	"foundry/di"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

var validate = validator.New()

// Context is passed to every action handler.
type Context struct {
	Request  *http.Request
	Response http.ResponseWriter

	action    *Action
	container *di.Container
	logger    *zap.SugaredLogger
}

// Context returns the request context.
func (c *Context) Context() context.Context {
	return c.Request.Context()
}

// Action returns the action being served.
func (c *Context) Action() Action {
	return *c.action
}

// Param returns a path parameter ("/users/{id}").
func (c *Context) Param(name string) string {
	return mux.Vars(c.Request)[name]
}

// Query returns the first query string value for name.
func (c *Context) Query(name string) string {
	return c.Request.URL.Query().Get(name)
}

// Body returns the value decoded by the configured body parser.
func (c *Context) Body() (any, bool) {
	return api.Body(c.Request)
}

// Bind decodes the JSON request body into v and validates it with its `validate` struct tags.
// Decode and validation failures are returned as 400 HTTP errors.
func (c *Context) Bind(v any) error {
	if c.Request.Body == nil {
		return BadRequest("request body is required")
	}
	dec := json.NewDecoder(c.Request.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return BadRequest("request body is required")
		}
		return BadRequest("invalid request body").Wrap(err)
	}

	if err := validate.Struct(v); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			// v is not a struct; nothing to validate.
			return nil
		}
		return BadRequest(fmt.Sprintf("validation failed: %v", err)).Wrap(err)
	}
	return nil
}

// Container returns the container associated with the action registry.
func (c *Context) Container() *di.Container {
	return c.container
}

// Logger returns a logger carrying the request ID and action name.
func (c *Context) Logger() *zap.SugaredLogger {
	return api.LogWithRequestID(c.Request, c.logger).With("action", c.action.Name)
}

func (c *Context) JSON(status int, v any) error {
	return api.WriteJSON(c.Response, status, v)
}

func (c *Context) Text(status int, s string) error {
	c.Response.Header().Set("Content-Type", "text/plain; charset=utf-8")
	c.Response.WriteHeader(status)
	_, err := io.WriteString(c.Response, s)
	return err
}

func (c *Context) NoContent() error {
	c.Response.WriteHeader(http.StatusNoContent)
	return nil
}

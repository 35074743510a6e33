package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"foundry/metrics"

	"github.com/dustin/go-humanize"
	"github.com/go-viper/mapstructure/v2"
	"github.com/gorilla/mux"
)

// Body parser kinds accepted by BodyParser.
const (
	BodyParserJSON       = "json"
	BodyParserText       = "text"
	BodyParserRaw        = "raw"
	BodyParserURLEncoded = "urlencoded"
)

// DefaultBodyLimit is the body size limit applied when no limit option is configured.
const DefaultBodyLimit = 100 * humanize.KiByte

// ErrInvalidBodyParser is wrapped by every error caused by an unknown body parser kind.
var ErrInvalidBodyParser = errors.New("invalid body parser")

// InvalidBodyParserError reports an unknown body parser kind.
type InvalidBodyParserError struct {
	Kind string
}

func (e *InvalidBodyParserError) Error() string {
	return fmt.Sprintf("invalid body parser %q: must be one of %s", e.Kind, strings.Join(BodyParserKinds(), ", "))
}

func (e *InvalidBodyParserError) Unwrap() error { return ErrInvalidBodyParser }

// BodyParserKinds lists the supported body parser kinds.
func BodyParserKinds() []string {
	return []string{BodyParserJSON, BodyParserText, BodyParserRaw, BodyParserURLEncoded}
}

// BodyParserOptions configure a body parser.
type BodyParserOptions struct {
	// Limit is a byte count or a size such as "100kb" or "1MiB".
	Limit string `mapstructure:"limit"`
	// Type lists the media types the parser handles. Patterns use path.Match syntax
	// ("application/*+json"). Defaults depend on the kind.
	Type []string `mapstructure:"type"`
	// Strict makes the json parser accept only objects and arrays.
	Strict *bool `mapstructure:"strict"`
	// Extended makes the urlencoded parser keep repeated keys as arrays.
	Extended bool `mapstructure:"extended"`
}

var defaultBodyTypes = map[string][]string{
	BodyParserJSON:       {"application/json", "application/*+json"},
	BodyParserText:       {"text/plain"},
	BodyParserRaw:        {"application/octet-stream"},
	BodyParserURLEncoded: {"application/x-www-form-urlencoded"},
}

type bodyParser struct {
	kind   string
	limit  int64
	types  []string
	strict bool
	opts   BodyParserOptions
	decode func(p *bodyParser, data []byte) (any, error)
}

// BodyParser returns middleware that decodes request bodies of the given kind. The decoded value
// is read with Body:
//
//	json        any (map[string]any, []any, ...)
//	text        string
//	raw         []byte
//	urlencoded  map[string]string, or map[string]any with []string values for repeated keys
//	            when the extended option is set
//
// Requests whose content type does not match pass through untouched. Bodies over the limit get
// 413 and undecodable bodies get 400. An unknown kind returns *InvalidBodyParserError.
func BodyParser(kind string, opts map[string]any) (mux.MiddlewareFunc, error) {
	p := &bodyParser{kind: kind}
	switch kind {
	case BodyParserJSON:
		p.decode = decodeJSONBody
	case BodyParserText:
		p.decode = decodeTextBody
	case BodyParserRaw:
		p.decode = decodeRawBody
	case BodyParserURLEncoded:
		p.decode = decodeURLEncodedBody
	default:
		return nil, &InvalidBodyParserError{Kind: kind}
	}

	if err := mapstructure.WeakDecode(opts, &p.opts); err != nil {
		return nil, fmt.Errorf("invalid %s body parser options: %w", kind, err)
	}

	p.limit = DefaultBodyLimit
	if p.opts.Limit != "" {
		limit, err := humanize.ParseBytes(p.opts.Limit)
		if err != nil {
			return nil, fmt.Errorf("invalid %s body parser limit %q: %w", kind, p.opts.Limit, err)
		}
		p.limit = int64(limit)
	}

	p.types = p.opts.Type
	if len(p.types) == 0 {
		p.types = defaultBodyTypes[kind]
	}
	for _, pattern := range p.types {
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid %s body parser type %q: %w", kind, pattern, err)
		}
	}

	p.strict = true
	if p.opts.Strict != nil {
		p.strict = *p.opts.Strict
	}

	return p.middleware, nil
}

// Body returns the value decoded by the body parser, if any.
func Body(r *http.Request) (any, bool) {
	v, ok := r.Context().Value(ContextKeyBody).(bodyValue)
	if !ok {
		return nil, false
	}
	return v.value, true
}

type bodyValue struct {
	value any
}

func (p *bodyParser) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, parsed := r.Context().Value(ContextKeyBody).(bodyValue); parsed || !hasBody(r) || !p.matches(r) {
			next.ServeHTTP(w, r)
			return
		}

		if r.ContentLength > p.limit {
			p.reject(w, r, http.StatusRequestEntityTooLarge, "request entity too large", "too_large")
			return
		}

		data, err := io.ReadAll(io.LimitReader(r.Body, p.limit+1))
		_ = r.Body.Close()
		if err != nil {
			p.reject(w, r, http.StatusBadRequest, "failed to read request body", "read")
			return
		}
		if int64(len(data)) > p.limit {
			p.reject(w, r, http.StatusRequestEntityTooLarge, "request entity too large", "too_large")
			return
		}

		value, err := p.decode(p, data)
		if err != nil {
			p.reject(w, r, http.StatusBadRequest, err.Error(), "malformed")
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(data))
		ctx := context.WithValue(r.Context(), ContextKeyBody, bodyValue{value: value})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (p *bodyParser) reject(w http.ResponseWriter, r *http.Request, status int, message, reason string) {
	metrics.BodyParserRejections.WithLabelValues(p.kind, reason).Inc()
	WriteError(w, r, status, message, nil, nil)
}

func (p *bodyParser) matches(r *http.Request) bool {
	header := r.Header.Get("Content-Type")
	if header == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	for _, pattern := range p.types {
		if ok, _ := path.Match(pattern, mediaType); ok {
			return true
		}
	}
	return false
}

func hasBody(r *http.Request) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return false
	}
	return r.ContentLength != 0 || len(r.TransferEncoding) > 0
}

func decodeJSONBody(p *bodyParser, data []byte) (any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return map[string]any{}, nil
	}
	if p.strict && trimmed[0] != '{' && trimmed[0] != '[' {
		return nil, errors.New("invalid JSON body: only objects and arrays are accepted")
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	return v, nil
}

func decodeTextBody(_ *bodyParser, data []byte) (any, error) {
	return string(data), nil
}

func decodeRawBody(_ *bodyParser, data []byte) (any, error) {
	return data, nil
}

func decodeURLEncodedBody(p *bodyParser, data []byte) (any, error) {
	values, err := url.ParseQuery(string(data))
	if err != nil {
		return nil, fmt.Errorf("invalid form body: %w", err)
	}
	if !p.opts.Extended {
		form := make(map[string]string, len(values))
		for k := range values {
			form[k] = values.Get(k)
		}
		return form, nil
	}
	form := make(map[string]any, len(values))
	for k, v := range values {
		if len(v) == 1 {
			form[k] = v[0]
		} else {
			form[k] = v
		}
	}
	return form, nil
}

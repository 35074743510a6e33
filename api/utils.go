package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// ErrorResponse is the JSON body written for failed requests.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if v == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	_ = WriteJSON(w, statusCode, ErrorResponse{Error: message})
}

// WriteError writes an error response to the client and logs the underlying error. Server
// errors are logged at error level, client errors at debug level.
func WriteError(w http.ResponseWriter, r *http.Request, statusCode int, message string, err error, logger *zap.SugaredLogger) {
	requestID, _ := GetRequestID(r.Context())
	if logger != nil && err != nil {
		fields := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", statusCode,
			"error", err,
		}
		if statusCode >= http.StatusInternalServerError {
			logger.Errorw(message, fields...)
		} else {
			logger.Debugw(message, fields...)
		}
	}
	_ = WriteJSON(w, statusCode, ErrorResponse{Error: message, RequestID: requestID})
}

// responseWriterWrapper wraps http.ResponseWriter to capture the status code.
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader captures the status code before writing it.
func (w *responseWriterWrapper) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Write implements http.ResponseWriter.Write and ensures status code is captured.
func (w *responseWriterWrapper) Write(b []byte) (int, error) {
	if !w.written {
		w.statusCode = http.StatusOK
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriterWrapper) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

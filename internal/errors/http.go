package errors

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// ErrorResponse is the standard JSON error body
type ErrorResponse struct {
	Status    string `json:"status"`
	ErrorCode Code   `json:"error_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// HTTPWriter writes taxonomy errors as HTTP responses
type HTTPWriter struct {
	logger *zap.Logger
}

// NewHTTPWriter creates an HTTPWriter
func NewHTTPWriter(logger *zap.Logger) *HTTPWriter {
	return &HTTPWriter{logger: logger}
}

// WriteError maps err to a status code and writes the standard body.
// The request id is taken from the X-Request-ID header set by the
// request-id middleware.
func (hw *HTTPWriter) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	code := CodeOf(err)
	hw.Write(w, HTTPStatus(code), code, err.Error(), r.Header.Get("X-Request-ID"))
}

// Write writes an explicit error response
func (hw *HTTPWriter) Write(w http.ResponseWriter, statusCode int, code Code, message, requestID string) {
	hw.logger.Warn("http error response",
		zap.Int("status_code", statusCode),
		zap.String("error_code", string(code)),
		zap.String("message", message),
		zap.String("request_id", requestID),
	)

	resp := ErrorResponse{
		Status:    "error",
		ErrorCode: code,
		Message:   message,
		RequestID: requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// WriteValidationError writes a 400 with CodeInvalidArgument
func (hw *HTTPWriter) WriteValidationError(w http.ResponseWriter, message, requestID string) {
	hw.Write(w, http.StatusBadRequest, CodeInvalidArgument, message, requestID)
}

// WriteRateLimited writes a 429 with CodeRateLimited
func (hw *HTTPWriter) WriteRateLimited(w http.ResponseWriter, requestID string) {
	hw.Write(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded", requestID)
}

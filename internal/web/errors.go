package web

// errors.go turns handler errors into responses.
//
// Every error is logged with its technical detail and the request ID. The
// client gets plain text by default, or JSON when it asked for it. Input
// errors are echoed verbatim since their text is the contract with the form;
// anything else is replaced by the core.MapError message.

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/topsis/internal/core"
	"github.com/JonMunkholm/topsis/internal/logging"
)

var errRateLimited = errors.New("rate limit exceeded")

// Response kinds for failures that are not input errors.
const (
	kindTooLarge    = "too_large"
	kindBusy        = "busy"
	kindRateLimited = "rate_limited"
	kindNotFound    = "not_found"
	kindInternal    = "internal"
)

// Response is the JSON body of POST /calculate and of API errors.
type Response struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Kind    string `json:"kind"`
	ID      string `json:"id,omitempty"`
}

// statusFor maps a pipeline error to an HTTP status.
func statusFor(err error) int {
	var ie *core.InputError
	switch {
	case errors.As(err, &ie):
		return http.StatusBadRequest
	case isTooLarge(err):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTooManyCalculations):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func kindFor(err error) string {
	var ie *core.InputError
	switch {
	case errors.As(err, &ie):
		return string(ie.Kind)
	case isTooLarge(err):
		return kindTooLarge
	case errors.Is(err, core.ErrTooManyCalculations):
		return kindBusy
	case errors.Is(err, errRateLimited):
		return kindRateLimited
	default:
		return kindInternal
	}
}

// isTooLarge also matches on text since multipart parsing does not always
// wrap the reader error.
func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "request body too large")
}

// respondError logs err and writes the client-facing response.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	userMsg := core.MapError(err)

	body := userMsg.Message
	var ie *core.InputError
	if errors.As(err, &ie) {
		body = ie.Message
	}

	logger := logging.FromContext(r.Context())
	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	if wantsJSON(r) {
		writeJSON(w, status, Response{Message: body, Code: userMsg.Code, Kind: kindFor(err)})
		return
	}
	writeText(w, status, body)
}

// wantsJSON checks if the client prefers a JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// writeJSON encodes v as JSON. Encoding errors are only logged since the
// header is already out.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

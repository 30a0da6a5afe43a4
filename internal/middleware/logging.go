package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"go-auth-service/internal/logger"
	"go-auth-service/internal/service"
)

const requestIDHeader = "X-Request-ID"

// errorBody pulls the error code out of an envelope response for the access log.
type errorBody struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set(requestIDHeader, requestID)

		started := time.Now()
		wrapped := newResponseWriter(w)

		next.ServeHTTP(wrapped, r)

		attrs := []slog.Attr{
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", logger.RequestPath(r)),
			slog.Int("status", wrapped.status),
			slog.Int64("duration_ms", time.Since(started).Milliseconds()),
			slog.String("client_ip", service.ClientIPFromContext(r.Context())),
		}
		if code, message, ok := wrapped.errorCode(); ok {
			attrs = append(attrs, slog.String("error_code", code), slog.String("error_message", message))
		}

		slog.LogAttrs(r.Context(), levelForStatus(wrapped.status), "request", attrs...)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if rw.wroteHeader {
		return
	}
	rw.status = statusCode
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Write keeps a copy of error bodies only; success bodies may carry tokens.
func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.status >= 400 {
		rw.body.Write(b)
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) errorCode() (string, string, bool) {
	if rw.status < 400 || rw.body.Len() == 0 {
		return "", "", false
	}
	var parsed errorBody
	if err := json.Unmarshal(rw.body.Bytes(), &parsed); err != nil || parsed.Error == nil {
		return "", "", false
	}
	return parsed.Error.Code, parsed.Error.Message, true
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

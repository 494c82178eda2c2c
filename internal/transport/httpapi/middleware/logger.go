package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Dayo-Adewuyi/Banking-Ledger-System/pkg/logger"
)

// errCapture wraps the response writer to retain the body of error
// responses so the log line can carry the message.
type errCapture struct {
	chimiddleware.WrapResponseWriter
	body *bytes.Buffer
}

func (e *errCapture) Write(b []byte) (int, error) {
	if e.Status() >= 400 && e.body.Len() < 1024 {
		e.body.Write(b)
	}
	return e.WrapResponseWriter.Write(b)
}

// extractErrorMessage pulls the error field out of a JSON error body,
// falling back to the raw body.
func extractErrorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return string(body)
}

// Logger logs each request with method, path, status, duration and the
// request ID assigned upstream.
func Logger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &errCapture{
				WrapResponseWriter: chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor),
				body:               &bytes.Buffer{},
			}

			next.ServeHTTP(ww, r)

			fields := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", chimiddleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			}

			switch {
			case ww.Status() >= 500:
				fields = append(fields, "error", extractErrorMessage(ww.body.Bytes()))
				log.Error("request failed", fields...)
			case ww.Status() >= 400:
				fields = append(fields, "error", extractErrorMessage(ww.body.Bytes()))
				log.Warn("request error", fields...)
			default:
				log.Info("request completed", fields...)
			}
		})
	}
}

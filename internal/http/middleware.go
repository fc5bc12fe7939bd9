package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/price-batch-service/internal/obs"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
)

// RequestIDFromContext returns the id assigned by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID).(string)
	return v
}

type statusRecorder struct {
	h  http.ResponseWriter
	st int
	n  int
}

func (w *statusRecorder) Header() http.Header { return w.h.Header() }
func (w *statusRecorder) WriteHeader(code int) {
	w.st = code
	w.h.WriteHeader(code)
}
func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.h.Write(b)
	w.n += n
	return n, err
}

// Flush lets event streams push through the recorder.
func (w *statusRecorder) Flush() {
	if f, ok := w.h.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusRecorder) Unwrap() http.ResponseWriter { return w.h }

// WithRequestID propagates X-Request-Id, generating one when absent.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, reqID)))
	})
}

// WithLogging emits one http_request line per request.
func WithLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{h: w, st: 200}
		next.ServeHTTP(sr, r)
		lat := time.Since(start)
		obs.Logger.Info("http_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sr.st,
			"bytes", sr.n,
			"latency_ms", float64(lat.Microseconds())/1000.0,
			"request_id", RequestIDFromContext(r.Context()),
		)
	})
}

// WithRecover turns a handler panic into a 500.
func WithRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				obs.Logger.Error("http_panic",
					"path", r.URL.Path,
					"request_id", RequestIDFromContext(r.Context()),
					"panic", fmt.Sprint(rec),
				)
				WriteJSONError(w, http.StatusInternalServerError, codeInternal, "")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

package httpapi

import (
	"expvar"
	"net/http"
)

// NewRouter registers HTTP routes and returns the handler with middleware.
func NewRouter(app *App) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", app.indexHandler)
	mux.HandleFunc("POST /{$}", app.submitHandler)
	mux.HandleFunc("POST /batches", app.submitHandler)
	mux.HandleFunc("GET /batches", app.listHandler)
	mux.HandleFunc("GET /batches/{id}", app.getBatchHandler)
	mux.HandleFunc("DELETE /batches/{id}", app.cancelHandler)
	mux.HandleFunc("GET /batches/{id}/events", app.eventsHandler)
	mux.HandleFunc("GET /batches/{id}/result", app.resultHandler)
	mux.HandleFunc("GET /progress", app.latestEventsHandler)
	mux.HandleFunc("GET /download", app.latestResultHandler)
	mux.HandleFunc("GET /healthz", app.healthHandler)
	mux.HandleFunc("GET /debug/metrics", app.metricsHandler)
	mux.Handle("GET /debug/vars", expvar.Handler())
	mux.HandleFunc("GET /openapi.yaml", app.openapiHandler)
	mux.HandleFunc("GET /docs", app.docsHandler)
	return WithRequestID(WithLogging(WithRecover(mux)))
}

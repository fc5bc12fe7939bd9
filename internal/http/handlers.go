package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	scalargo "github.com/bdpiprava/scalar-go"
	"github.com/gin-contrib/sse"

	"github.com/fairyhunter13/price-batch-service/internal/batch"
	"github.com/fairyhunter13/price-batch-service/internal/config"
	httpopenapi "github.com/fairyhunter13/price-batch-service/internal/http/openapi"
	"github.com/fairyhunter13/price-batch-service/internal/model"
	"github.com/fairyhunter13/price-batch-service/internal/obs"
	"github.com/fairyhunter13/price-batch-service/internal/progress"
	"github.com/fairyhunter13/price-batch-service/internal/sheet"
)

// formMemory is how much of a multipart body is held in memory before
// spilling to disk.
const formMemory = 8 << 20

// App holds the state shared by handlers.
type App struct {
	Cfg     config.Config
	Manager *batch.Manager
	closing atomic.Bool
	started time.Time
}

type ack struct {
	Status      string         `json:"status"`
	RequestID   string         `json:"request_id"`
	Batch       model.BatchRun `json:"batch"`
	EventsURL   string         `json:"events_url"`
	ResultURL   string         `json:"result_url"`
	BacklogSize int            `json:"backlog_size"`
}

// NewApp constructs an App.
func NewApp(cfg config.Config, m *batch.Manager) *App {
	return &App{Cfg: cfg, Manager: m, started: time.Now()}
}

// StartShutdown rejects new submissions from now on.
func (a *App) StartShutdown() {
	a.closing.Store(true)
	a.Manager.CloseIntake()
}

func (a *App) submitHandler(w http.ResponseWriter, r *http.Request) {
	if a.closing.Load() || a.Manager.IsShuttingDown() {
		WriteJSONError(w, http.StatusServiceUnavailable, codeShuttingDown, "")
		return
	}
	if a.Cfg.UploadMaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.Cfg.UploadMaxBytes)
	}
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteJSONError(w, http.StatusRequestEntityTooLarge, codeTooLarge, fmt.Sprintf("limit is %d bytes", tooLarge.Limit))
			return
		}
		WriteJSONError(w, http.StatusBadRequest, codeInvalidForm, err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, hdr, err := r.FormFile("excel_file")
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, codeValidation, "excel_file is required")
		return
	}
	defer file.Close()
	path, err := stageUpload(file)
	if err != nil {
		obs.Logger.Error("upload_stage_error", "request_id", RequestIDFromContext(r.Context()), "error", err)
		WriteJSONError(w, http.StatusInternalServerError, codeInternal, "could not store upload")
		return
	}

	sub := batch.Submission{
		Source:       sheet.FileSource{Path: path},
		Instructions: formValue(r, "system_prompt", a.Cfg.SystemPrompt),
		Model:        formValue(r, "model", a.Cfg.Model),
		Filename:     sheet.EnsureExt(r.FormValue("output_filename"), a.Cfg.OutputFilename),
	}
	run, err := a.Manager.Submit(sub)
	if err != nil {
		if errors.Is(err, batch.ErrShuttingDown) {
			WriteJSONError(w, http.StatusServiceUnavailable, codeShuttingDown, "")
			return
		}
		WriteJSONError(w, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}
	ac := ack{
		Status:      "accepted",
		RequestID:   RequestIDFromContext(r.Context()),
		Batch:       run,
		EventsURL:   "/batches/" + run.ID + "/events",
		ResultURL:   "/batches/" + run.ID + "/result",
		BacklogSize: a.Manager.BacklogSize(),
	}
	writeJSON(w, http.StatusAccepted, ac)
	obs.Logger.Info("batch_accepted",
		"request_id", ac.RequestID,
		"batch_id", run.ID,
		"sequence", run.Sequence,
		"upload", hdr.Filename,
		"upload_bytes", hdr.Size,
		"output_filename", run.Filename,
		"backlog_size", ac.BacklogSize,
	)
}

// stageUpload copies an uploaded workbook to a temp file owned by the batch.
func stageUpload(f multipart.File) (string, error) {
	tmp, err := os.CreateTemp("", "pricebatch-*"+sheet.Ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, f); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func formValue(r *http.Request, key, def string) string {
	if v := strings.TrimSpace(r.FormValue(key)); v != "" {
		return v
	}
	return def
}

func (a *App) listHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"batches": a.Manager.Runs()})
}

func (a *App) getBatchHandler(w http.ResponseWriter, r *http.Request) {
	run, ok := a.Manager.Run(r.PathValue("id"))
	if !ok {
		WriteJSONError(w, http.StatusNotFound, codeNotFound, "")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (a *App) cancelHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, ok := a.Manager.Run(id)
	if !ok {
		WriteJSONError(w, http.StatusNotFound, codeNotFound, "")
		return
	}
	if !a.Manager.Cancel(id) {
		WriteJSONError(w, http.StatusConflict, codeConflict, string(run.Status))
		return
	}
	obs.Logger.Info("batch_cancel_requested", "request_id", RequestIDFromContext(r.Context()), "batch_id", id)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling", "batch_id": id})
}

func (a *App) eventsHandler(w http.ResponseWriter, r *http.Request) {
	a.streamEvents(w, r, r.PathValue("id"))
}

func (a *App) latestEventsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := a.Manager.LatestID()
	if !ok {
		WriteJSONError(w, http.StatusNotFound, codeNotFound, "no batch submitted")
		return
	}
	a.streamEvents(w, r, id)
}

// streamEvents relays a batch's progress bus as server-sent events. Every
// line is a "progress" event, idle periods produce a comment, and a final
// "done" event carries the batch status once the bus closes.
func (a *App) streamEvents(w http.ResponseWriter, r *http.Request, id string) {
	bus, ok := a.Manager.Bus(id)
	if !ok {
		WriteJSONError(w, http.StatusNotFound, codeNotFound, "")
		return
	}
	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	sub := bus.Subscribe()
	defer sub.Close()

	h := w.Header()
	h.Set("Content-Type", sse.ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		obs.Logger.Warn("sse_flush_unsupported", "batch_id", id, "error", err)
	}

	for {
		ev, err := sub.Next(r.Context(), a.Cfg.SSEIdle)
		switch {
		case err == nil:
			err = sse.Encode(w, sse.Event{
				Event: "progress",
				Id:    strconv.FormatUint(ev.Seq, 10),
				Data:  ev.String(),
			})
		case errors.Is(err, progress.ErrIdle):
			_, err = io.WriteString(w, ": keepalive\n\n")
		case errors.Is(err, progress.ErrClosed):
			run, _ := a.Manager.Run(id)
			_ = sse.Encode(w, sse.Event{Event: "done", Data: string(run.Status)})
			_ = rc.Flush()
			if n := sub.Dropped(); n > 0 {
				obs.Logger.Warn("sse_events_dropped", "batch_id", id, "dropped", n)
			}
			return
		default:
			return
		}
		if err != nil {
			return
		}
		_ = rc.Flush()
	}
}

func (a *App) resultHandler(w http.ResponseWriter, r *http.Request) {
	a.serveResult(w, r, r.PathValue("id"))
}

func (a *App) latestResultHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := a.Manager.LatestID()
	if !ok {
		WriteJSONError(w, http.StatusNotFound, codeNotReady, "no batch submitted")
		return
	}
	a.serveResult(w, r, id)
}

// serveResult hands out a batch artifact. The artifact is removed by the
// first successful download.
func (a *App) serveResult(w http.ResponseWriter, r *http.Request, id string) {
	art, ok := a.Manager.TakeResult(id)
	if !ok {
		if _, known := a.Manager.Run(id); !known {
			WriteJSONError(w, http.StatusNotFound, codeNotFound, "")
			return
		}
		WriteJSONError(w, http.StatusNotFound, codeNotReady, "result is still running, failed, or was already downloaded")
		return
	}
	name := art.Filename
	if name == "" {
		name = a.Cfg.OutputFilename
	}
	w.Header().Set("Content-Type", sheet.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(art.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(art.Data)
	obs.Logger.Info("batch_result_downloaded",
		"request_id", RequestIDFromContext(r.Context()),
		"batch_id", id,
		"filename", name,
		"rows", len(art.Records),
	)
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if a.closing.Load() {
		status = "draining"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (a *App) metricsHandler(w http.ResponseWriter, r *http.Request) {
	enq, proc, backlog, depth := a.Manager.QueueMetrics()
	m := map[string]any{
		"batches_enqueued":  enq,
		"batches_processed": proc,
		"backlog_size":      backlog,
		"queue_depth":       depth,
		"runner_count":      a.Manager.RunnerCount(),
		"active_batches":    a.Manager.ActiveCount(),
		"tracked_batches":   len(a.Manager.Runs()),
		"uptime_sec":        time.Since(a.started).Seconds(),
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *App) openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(httpopenapi.YAML)
}

func (a *App) docsHandler(w http.ResponseWriter, r *http.Request) {
	html, err := scalargo.NewV2(
		scalargo.WithSpecURL("/openapi.yaml"),
		scalargo.WithMetaDataOpts(
			scalargo.WithTitle("Price Batch Service API"),
		),
	)
	if err != nil {
		WriteJSONError(w, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, html)
}

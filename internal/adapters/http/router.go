package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/kirillkom/sumflow/internal/config"
	"github.com/kirillkom/sumflow/internal/core/ports"
	"github.com/kirillkom/sumflow/internal/observability/metrics"
)

const (
	multipartMemory    = 32 << 20
	xlsxContentType    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	defaultUploadLimit = 200 << 20
)

type Router struct {
	cfg       config.Config
	submitter ports.TaskSubmitter
	status    ports.StatusReader
	exporter  ports.BatchExporter
	metrics   *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	submitter ports.TaskSubmitter,
	status ports.StatusReader,
	exporter ports.BatchExporter,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:       cfg,
		submitter: submitter,
		status:    status,
		exporter:  exporter,
		metrics:   httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/batches", rt.uploadBatch)
	mux.HandleFunc("GET /v1/batches/{batch_id}", rt.getBatch)
	mux.HandleFunc("GET /v1/batches/{batch_id}/export.xlsx", rt.exportBatch)
	mux.HandleFunc("GET /v1/tasks/{task_id}", rt.getTask)
	mux.HandleFunc("GET /v1/tasks/{task_id}/text", rt.getTaskText)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadBatch(w http.ResponseWriter, r *http.Request) {
	limit := int64(rt.cfg.MaxUploadMB) << 20
	if limit <= 0 {
		limit = defaultUploadLimit
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody(r, "multipart form with field 'files' is required"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody(r, "multipart field 'files' is required"))
		return
	}

	uploads := make([]ports.UploadFile, 0, len(headers))
	opened := make([]multipart.File, 0, len(headers))
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(r, "cannot read uploaded file "+header.Filename))
			return
		}
		opened = append(opened, f)
		uploads = append(uploads, ports.UploadFile{Filename: header.Filename, Body: f})
	}

	meta, err := rt.submitter.UploadBatch(r.Context(), uploads)
	if err != nil {
		if meta != nil {
			w.Header().Set("X-Batch-ID", meta.BatchID)
		}
		writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		accepted := make([]metrics.AcceptedFile, len(headers))
		for i, header := range headers {
			accepted[i] = metrics.AcceptedFile{Filename: header.Filename, Size: header.Size}
		}
		rt.metrics.RecordBatch(accepted)
	}
	writeJSON(w, http.StatusAccepted, meta)
}

func (rt *Router) getBatch(w http.ResponseWriter, r *http.Request) {
	status, err := rt.status.BatchStatus(r.Context(), r.PathValue("batch_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (rt *Router) exportBatch(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("batch_id")
	data, err := rt.exporter.ExportBatch(r.Context(), batchID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="batch-`+batchID+`.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (rt *Router) getTask(w http.ResponseWriter, r *http.Request) {
	progress, err := rt.status.TaskStatus(r.Context(), r.URL.Query().Get("batch"), r.PathValue("task_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (rt *Router) getTaskText(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")
	text, err := rt.status.RawText(r.Context(), taskID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"taskId": taskID, "text": text})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, errorBody(r, err.Error()))
}

func errorBody(r *http.Request, msg string) map[string]string {
	body := map[string]string{"error": msg}
	if id := requestIDFromContext(r.Context()); id != "" {
		body["request_id"] = id
	}
	return body
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}


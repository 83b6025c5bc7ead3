/**
 * HTTP API
 *
 * Exposes the extraction pipeline over HTTP:
 * - synchronous extraction of an uploaded photograph
 * - asynchronous job submission and status lookup
 * - liveness, readiness and statistics endpoints
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HenSanInDuty/ocr-cccd/internal/card"
	extractionerrors "github.com/HenSanInDuty/ocr-cccd/internal/errors"
	"github.com/HenSanInDuty/ocr-cccd/internal/imagesource"
	"github.com/HenSanInDuty/ocr-cccd/internal/logging"
	"github.com/HenSanInDuty/ocr-cccd/internal/processor"
	"github.com/HenSanInDuty/ocr-cccd/internal/queue"
)

// JobQueue submits asynchronous extraction jobs.
type JobQueue interface {
	Enqueue(ctx context.Context, payload *queue.ExtractPayload) (string, error)
}

// JobReader looks up job state.
type JobReader interface {
	GetJob(ctx context.Context, jobID string) (*queue.JobState, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// StatsSource reports runtime statistics for one component.
type StatsSource func(ctx context.Context) (interface{}, error)

// Config holds handler dependencies. Only Extractor is required.
type Config struct {
	Extractor    processor.Extractor
	Detector     processor.RegionDetector
	Queue        JobQueue
	Jobs         JobReader
	Publisher    queue.StatusPublisher // records the queued status of submitted jobs
	Stats        map[string]StatsSource
	Gatherer     prometheus.Gatherer
	HealthChecks map[string]HealthCheck
	MaxImageSize int64
	Timeout      time.Duration
}

// Handler wires extraction endpoints to the pipeline.
type Handler struct {
	cfg    Config
	logger *logging.Logger
}

// New constructs a handler.
func New(cfg Config) (*Handler, error) {
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if cfg.MaxImageSize <= 0 {
		cfg.MaxImageSize = 20 << 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Handler{cfg: cfg, logger: logging.NewLogger("API")}, nil
}

// Router returns a chi router with all endpoints mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	h.Register(r)
	return r
}

// Register mounts the endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	if h.cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Route("/v1", func(r chi.Router) {
		r.Post("/extractions", h.HandleExtract)
		r.Post("/jobs", h.HandleSubmitJob)
		r.Get("/jobs/{jobID}", h.HandleGetJob)
		r.Get("/stats", h.HandleStats)
	})
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type submitResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// uploadForm is a parsed multipart extraction request.
type uploadForm struct {
	variant string
	mode    string
	front   []byte
	back    []byte
}

// HandleExtract handles POST /v1/extractions: multipart fields front, back,
// variant and mode. The extraction runs synchronously.
func (h *Handler) HandleExtract(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := middleware.GetReqID(r.Context())

	form, err := h.parseUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	req, err := h.buildRequest(form)
	if err != nil {
		result := card.FailureResult(err)
		result.Variant = card.CanonicalVariant(form.variant)
		writeJSON(w, statusFor(result), result)
		return
	}
	req.JobID = requestID

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.Timeout)
	defer cancel()

	result := h.cfg.Extractor.Run(ctx, req)

	h.logger.Info("Extraction served",
		"request_id", requestID,
		"variant", result.Variant,
		"kind", result.Kind,
		"duration_ms", time.Since(start).Milliseconds())

	writeJSON(w, statusFor(result), result)
}

// HandleSubmitJob handles POST /v1/jobs: the same form as HandleExtract, queued.
func (h *Handler) HandleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Queue == nil {
		writeError(w, http.StatusServiceUnavailable, "queue_unavailable", "job queue is not configured")
		return
	}

	form, err := h.parseUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if _, err := card.ParseCardVariant(form.variant); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_variant", err.Error())
		return
	}

	payload := &queue.ExtractPayload{
		JobID:   uuid.NewString(),
		Variant: form.variant,
		Mode:    form.mode,
		Front:   form.front,
		Back:    form.back,
	}

	// Must precede Enqueue: a worker may report processing before Enqueue returns.
	h.publish(r.Context(), payload.JobID, queue.StatusQueued, nil)

	jobID, err := h.cfg.Queue.Enqueue(r.Context(), payload)
	if err != nil {
		h.logger.Error("Failed to enqueue job", "job", payload.JobID, "error", err)
		h.publish(r.Context(), payload.JobID, queue.StatusFailed,
			errorResponse{Error: "enqueue_failed", Message: err.Error()})
		writeError(w, http.StatusServiceUnavailable, "enqueue_failed", "could not queue the job")
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{JobID: jobID, Status: queue.StatusQueued})
}

func (h *Handler) publish(ctx context.Context, jobID, status string, result interface{}) {
	if h.cfg.Publisher == nil {
		return
	}
	if err := h.cfg.Publisher.UpdateJobStatus(ctx, jobID, status, result); err != nil {
		h.logger.Warn("Failed to record job status", "job", jobID, "status", status, "error", err)
	}
}

// HandleGetJob handles GET /v1/jobs/{jobID}.
func (h *Handler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "jobs_unavailable", "job store is not configured")
		return
	}

	jobID := chi.URLParam(r, "jobID")
	state, err := h.cfg.Jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, queue.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("job %s not found", jobID))
		return
	}
	if err != nil {
		h.logger.Error("Failed to read job", "job", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not read job state")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.cfg.HealthChecks))
	healthy := true
	for name, check := range h.cfg.HealthChecks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{"status": status, "checks": checks})
}

// HandleStats handles GET /v1/stats. A failing source is reported inline.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	stats := make(map[string]interface{}, len(h.cfg.Stats))
	for name, source := range h.cfg.Stats {
		value, err := source(ctx)
		if err != nil {
			stats[name] = map[string]string{"error": err.Error()}
			continue
		}
		stats[name] = value
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) parseUpload(w http.ResponseWriter, r *http.Request) (*uploadForm, error) {
	// Two images plus form overhead.
	r.Body = http.MaxBytesReader(w, r.Body, 2*h.cfg.MaxImageSize+1<<20)
	if err := r.ParseMultipartForm(2 * h.cfg.MaxImageSize); err != nil {
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}

	form := &uploadForm{
		variant: r.FormValue("variant"),
		mode:    r.FormValue("mode"),
	}
	var err error
	if form.front, err = h.readPart(r.MultipartForm, "front"); err != nil {
		return nil, err
	}
	if form.back, err = h.readPart(r.MultipartForm, "back"); err != nil {
		return nil, err
	}
	return form, nil
}

func (h *Handler) readPart(form *multipart.Form, name string) ([]byte, error) {
	headers := form.File[name]
	if len(headers) == 0 {
		return nil, nil
	}
	if headers[0].Size > h.cfg.MaxImageSize {
		return nil, fmt.Errorf("%s image exceeds %d bytes", name, h.cfg.MaxImageSize)
	}
	file, err := headers[0].Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s image: %w", name, err)
	}
	defer file.Close()
	return io.ReadAll(file)
}

func (h *Handler) buildRequest(form *uploadForm) (*processor.Request, error) {
	variant, err := card.ParseCardVariant(form.variant)
	if err != nil {
		return nil, extractionerrors.NewPreconditionError(err.Error())
	}
	req := &processor.Request{Variant: variant, Detector: h.cfg.Detector}

	if form.mode != "" {
		if req.Mode, err = card.ParseFallbackMode(form.mode); err != nil {
			return nil, extractionerrors.NewPreconditionError(err.Error())
		}
	}
	if req.Front, err = imagesource.DecodeSide("front", form.front); err != nil {
		return nil, err
	}
	if req.Back, err = imagesource.DecodeSide("back", form.back); err != nil {
		return nil, err
	}
	return req, nil
}

// statusFor maps a result onto an HTTP status.
func statusFor(result card.ExtractionResult) int {
	if result.Kind == card.KindQRParseError {
		return http.StatusUnprocessableEntity
	}
	if result.Failure == nil {
		return http.StatusOK
	}
	switch result.Failure.Code {
	case extractionerrors.ErrorPreconditionFailed, extractionerrors.ErrorInvalidImage:
		return http.StatusBadRequest
	case extractionerrors.ErrorDecodeFailed, extractionerrors.ErrorValidationFailed, extractionerrors.ErrorNothingDetected:
		return http.StatusUnprocessableEntity
	case extractionerrors.ErrorProcessingTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/tableread/internal/clip"
	"github.com/maauso/tableread/internal/job"
	"github.com/maauso/tableread/internal/stitch"
)

// maxRequestBytes bounds the JSON body of a create request.
const maxRequestBytes = 1 << 20

// JobTracker is notified when background jobs start and finish.
// metrics.Metrics satisfies it.
type JobTracker interface {
	JobStarted()
	JobDone()
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *job.StitchService
	defaults           stitch.Config
	schemes            []string
	tracker            JobTracker
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool

	wg sync.WaitGroup
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateStitch only creates the job and returns immediately
// without starting background processing.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithDefaults sets the pipeline settings used for omitted request fields.
func WithDefaults(cfg stitch.Config) HandlerOption {
	return func(h *Handlers) {
		h.defaults = cfg
	}
}

// WithAllowedSchemes restricts the clip URL schemes clients may submit.
func WithAllowedSchemes(schemes ...string) HandlerOption {
	return func(h *Handlers) {
		h.schemes = schemes
	}
}

// WithJobTracker sets the tracker notified about background jobs.
func WithJobTracker(t JobTracker) HandlerOption {
	return func(h *Handlers) {
		h.tracker = t
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.StitchService, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		defaults:           stitch.DefaultConfig(),
		schemes:            []string{"http", "https"},
		validator:          validator.New(validator.WithRequiredStructEnabled()),
		logger:             logger,
		enableAsyncProcess: true, // Default to enabled
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateStitch handles POST /stitches requests.
func (h *Handlers) CreateStitch(w http.ResponseWriter, r *http.Request) {
	var req CreateStitchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	// Validate request
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	for i, u := range req.Clips {
		if scheme := clip.FromURL(u).Scheme(); !slices.Contains(h.schemes, scheme) {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("clip %d: scheme %q is not allowed", i, scheme), "UNSUPPORTED_SOURCE")
			return
		}
	}

	input := job.StitchInput{
		Clips:    req.Clips,
		Config:   h.pipelineConfig(req),
		PushToS3: req.PushToS3,
	}

	// Create job first (synchronously)
	createdJob, err := h.service.CreateJob(r.Context(), input)
	if err != nil {
		if errors.Is(err, stitch.ErrInvalidConfig) {
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		h.logger.Error("failed to create job",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	resp := CreateStitchResponse{
		ID:     createdJob.ID,
		Status: string(createdJob.GetStatus()),
	}

	// Start processing in background with a detached context
	// Use context.WithoutCancel to prevent cancellation when the request ends
	if h.enableAsyncProcess {
		h.startBackground(context.WithoutCancel(r.Context()), createdJob.ID)
	}

	h.logger.Info("stitch job created",
		slog.String("job_id", createdJob.ID),
		slog.Int("clips", len(req.Clips)),
	)

	writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handlers) startBackground(ctx context.Context, jobID string) {
	h.wg.Add(1)
	if h.tracker != nil {
		h.tracker.JobStarted()
	}
	go func() {
		defer h.wg.Done()
		if h.tracker != nil {
			defer h.tracker.JobDone()
		}
		if _, err := h.service.ProcessExistingJob(ctx, jobID); err != nil {
			h.logger.Error("background processing failed",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Drain waits for background jobs to finish or ctx to end.
func (h *Handlers) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handlers) pipelineConfig(req CreateStitchRequest) stitch.Config {
	cfg := h.defaults
	if req.PauseMs != nil {
		cfg.PauseDurationMs = *req.PauseMs
	}
	if req.RoomToneVolume != nil {
		cfg.RoomToneVolume = *req.RoomToneVolume
	}
	if req.SampleRate != nil {
		cfg.SampleRate = *req.SampleRate
	}
	return cfg
}

// ListStitches handles GET /stitches requests.
func (h *Handlers) ListStitches(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}

	resp := ListStitchesResponse{Stitches: make([]StitchResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Stitches = append(resp.Stitches, toStitchResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetStitch handles GET /stitches/{id} requests.
func (h *Handlers) GetStitch(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeJobError(w, jobID, err)
		return
	}

	writeJSON(w, http.StatusOK, toStitchResponse(foundJob))
}

// GetStitchAudio handles GET /stitches/{id}/audio requests and streams the
// finished recording as audio/wav.
func (h *Handlers) GetStitchAudio(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	rc, _, err := h.service.OpenAudio(r.Context(), jobID)
	if err != nil {
		h.writeJobError(w, jobID, err)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", jobID+".wav"))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("failed to stream audio",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// DeleteStitch handles DELETE /stitches/{id} requests.
func (h *Handlers) DeleteStitch(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	if err := h.service.DeleteJob(r.Context(), jobID); err != nil {
		h.writeJobError(w, jobID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) writeJobError(w http.ResponseWriter, jobID string, err error) {
	switch {
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
	case errors.Is(err, job.ErrAudioNotReady):
		writeError(w, http.StatusConflict, "audio is not ready", "AUDIO_NOT_READY")
	case errors.Is(err, job.ErrAudioDeleted):
		writeError(w, http.StatusGone, "audio was deleted", "AUDIO_DELETED")
	case errors.Is(err, job.ErrJobActive):
		writeError(w, http.StatusConflict, "job is still active", "JOB_ACTIVE")
	default:
		h.logger.Error("job request failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
	}
}

func toStitchResponse(j *job.Job) StitchResponse {
	resp := StitchResponse{
		ID:              j.ID,
		Status:          string(j.Status),
		Stage:           string(j.Stage),
		Current:         j.Current,
		Total:           j.Total,
		Message:         j.Message,
		Progress:        j.Progress,
		Error:           j.Error,
		DurationSeconds: j.DurationSeconds,
		CreatedAt:       j.CreatedAt,
	}
	if j.FailedClip >= 0 {
		fc := j.FailedClip
		resp.FailedClip = &fc
	}
	if !j.CompletedAt.IsZero() {
		ca := j.CompletedAt
		resp.CompletedAt = &ca
	}

	if j.Status == job.StatusCompleted {
		switch {
		case j.AudioURL != "":
			resp.AudioURL = j.AudioURL
		case j.OutputPath != "":
			resp.AudioURL = "/stitches/" + j.ID + "/audio"
		}
	}
	return resp
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

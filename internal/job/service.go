package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/maauso/tableread/internal/clip"
	"github.com/maauso/tableread/internal/stitch"
	"github.com/maauso/tableread/internal/storage"
)

// Static errors for the stitch service.
var (
	// ErrAudioNotReady is returned when audio is requested for an unfinished job.
	ErrAudioNotReady = errors.New("job: audio is not ready")
	// ErrAudioDeleted is returned when a finished job's audio was removed.
	ErrAudioDeleted = errors.New("job: audio was deleted")
	// ErrJobActive is returned when deleting a job that has not finished.
	ErrJobActive = errors.New("job: job is still active")
)

// Stitcher runs a stitch. *stitch.Stitcher satisfies it.
type Stitcher interface {
	Stitch(ctx context.Context, sources []clip.Source, cfg stitch.Config, onProgress stitch.ProgressFunc, opts ...stitch.RunOption) (*stitch.Result, error)
}

// StitchInput contains the input parameters for a stitch job.
type StitchInput struct {
	// Clips are the clip URLs in script order.
	Clips []string
	// Config holds pause, room tone and sample rate settings.
	Config stitch.Config
	// PushToS3 indicates whether to upload the finished recording to S3.
	PushToS3 bool
}

// StitchOutput contains the result of a stitch job.
type StitchOutput struct {
	// JobID is the unique identifier for the job.
	JobID string
	// Status is the final job status.
	Status Status
	// OutputPath is the local path to the recording.
	OutputPath string
	// AudioURL is the S3 URL of the recording (if pushed to S3).
	AudioURL string
	// DurationSeconds is the length of the recording.
	DurationSeconds float64
	// Error contains any error message if processing failed.
	Error string
}

// StitchService runs stitch jobs and keeps their state in a Repository.
// Finished recordings are published to local storage by the stitcher and
// optionally pushed to S3.
type StitchService struct {
	repo     Repository
	stitcher Stitcher
	store    storage.Storage
	logger   *slog.Logger
	timeout  time.Duration
}

// ServiceOption is a function that configures a StitchService.
type ServiceOption func(*StitchService)

// WithJobTimeout bounds the run time of a single job. Zero disables it.
func WithJobTimeout(d time.Duration) ServiceOption {
	return func(s *StitchService) {
		s.timeout = d
	}
}

// NewStitchService creates a new StitchService.
func NewStitchService(repo Repository, stitcher Stitcher, store storage.Storage, logger *slog.Logger, opts ...ServiceOption) *StitchService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &StitchService{
		repo:     repo,
		stitcher: stitcher,
		store:    store,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob validates input and persists a new job in IN_QUEUE status.
func (s *StitchService) CreateJob(ctx context.Context, input StitchInput) (*Job, error) {
	if err := input.Config.Validate(); err != nil {
		return nil, err
	}

	job := New()
	job.Clips = append([]string(nil), input.Clips...)
	job.Config = input.Config
	job.PushToS3 = input.PushToS3
	job.Total = len(input.Clips)

	s.logger.Info("creating new job",
		slog.String("job_id", job.ID),
		slog.Int("clips", len(input.Clips)),
		slog.Int("pause_ms", input.Config.PauseDurationMs),
		slog.Bool("push_to_s3", input.PushToS3),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return job, nil
}

// GetJob retrieves a job by ID.
func (s *StitchService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns all known jobs.
func (s *StitchService) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// Process creates a job and runs it to completion.
func (s *StitchService) Process(ctx context.Context, input StitchInput) (*StitchOutput, error) {
	job, err := s.CreateJob(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.ProcessExistingJob(ctx, job.ID)
}

// ProcessExistingJob runs a previously created job. Progress is saved to the
// repository as it arrives. The returned error is the stitch error, if any;
// the job itself records the failure.
func (s *StitchService) ProcessExistingJob(ctx context.Context, jobID string) (*StitchOutput, error) {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := job.Start(); err != nil {
		return nil, fmt.Errorf("start job %s: %w", jobID, err)
	}
	s.save(ctx, job)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	onProgress := func(p stitch.Progress) {
		job.ApplyProgress(p)
		s.save(ctx, job)
	}

	res, err := s.stitcher.Stitch(ctx, clip.FromURLs(job.Clips), job.Config, onProgress, stitch.PublishAs(job.ID))
	if err != nil {
		s.finishWithError(ctx, job, err)
		return s.output(job), err
	}

	var audioURL string
	if job.PushToS3 {
		audioURL, err = s.store.UploadToS3(ctx, storage.ResultKey(job.ID), bytes.NewReader(res.WAV))
		if err != nil {
			err = fmt.Errorf("push to S3: %w", err)
			if cerr := s.store.CleanupTemp(context.WithoutCancel(ctx), []string{res.Handle}); cerr != nil {
				s.logger.Warn("failed to remove unpushed recording",
					slog.String("job_id", job.ID),
					slog.String("path", res.Handle),
					slog.String("error", cerr.Error()),
				)
			}
			s.finishWithError(ctx, job, err)
			return s.output(job), err
		}
	}

	if err := job.Complete(res.Handle, audioURL, res.Frames, res.DurationSeconds); err != nil {
		return nil, fmt.Errorf("complete job %s: %w", jobID, err)
	}
	s.save(ctx, job)

	s.logger.Info("job completed",
		slog.String("job_id", job.ID),
		slog.String("output", res.Handle),
		slog.Bool("pushed_to_s3", audioURL != ""),
		slog.Float64("duration_seconds", res.DurationSeconds),
	)
	return s.output(job), nil
}

// OpenAudio opens the finished recording of a job. The caller must close
// the reader.
func (s *StitchService) OpenAudio(ctx context.Context, id string) (io.ReadCloser, *Job, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != StatusCompleted {
		return nil, job, ErrAudioNotReady
	}
	if job.OutputPath == "" {
		return nil, job, ErrAudioDeleted
	}

	rc, err := s.store.LoadTemp(ctx, job.OutputPath)
	if err != nil {
		return nil, job, fmt.Errorf("open audio for %s: %w", id, err)
	}
	return rc, job, nil
}

// DeleteJob removes a finished job and its local recording. Objects already
// pushed to S3 are left in place.
func (s *StitchService) DeleteJob(ctx context.Context, id string) error {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !job.IsTerminal() {
		return ErrJobActive
	}

	if job.OutputPath != "" {
		if err := s.store.CleanupTemp(ctx, []string{job.OutputPath}); err != nil {
			return fmt.Errorf("delete audio for %s: %w", id, err)
		}
		job.ClearOutput()
	}

	s.logger.Info("job deleted", slog.String("job_id", id))
	return s.repo.Delete(ctx, id)
}

func (s *StitchService) finishWithError(ctx context.Context, job *Job, err error) {
	failedClip := -1
	var se *stitch.StageError
	if errors.As(err, &se) {
		failedClip = se.Clip
	}

	var terr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		terr = job.Timeout(err.Error())
	case errors.Is(err, context.Canceled):
		terr = job.Cancel(err.Error())
	default:
		terr = job.Fail(err.Error(), failedClip)
	}
	if terr != nil {
		s.logger.Error("failed to record job failure",
			slog.String("job_id", job.ID),
			slog.String("error", terr.Error()),
		)
	}
	s.save(ctx, job)

	s.logger.Error("job failed",
		slog.String("job_id", job.ID),
		slog.String("status", string(job.GetStatus())),
		slog.Int("failed_clip", failedClip),
		slog.String("error", err.Error()),
	)
}

// save persists job state. It runs without the job's deadline so that a
// timed-out job can still record its final state.
func (s *StitchService) save(ctx context.Context, job *Job) {
	if err := s.repo.Save(context.WithoutCancel(ctx), job); err != nil {
		s.logger.Warn("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *StitchService) output(job *Job) *StitchOutput {
	c := job.Clone()
	return &StitchOutput{
		JobID:           c.ID,
		Status:          c.Status,
		OutputPath:      c.OutputPath,
		AudioURL:        c.AudioURL,
		DurationSeconds: c.DurationSeconds,
		Error:           c.Error,
	}
}

// Package job provides the Job aggregate for managing stitch jobs submitted
// over the HTTP API. It includes the Job entity with its state machine and
// the repository interfaces for persistence.
package job

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/maauso/tableread/internal/job/id"
	"github.com/maauso/tableread/internal/stitch"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job is waiting for the stitcher.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the job is being stitched.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the job finished successfully.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the job encountered an error during execution.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was cancelled before it finished.
	StatusCancelled Status = "CANCELLED"
	// StatusTimedOut indicates the job ran past its deadline.
	StatusTimedOut Status = "TIMED_OUT"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled, StatusTimedOut},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
	StatusTimedOut:  {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	return slices.Contains(validTransitions[from], to)
}

// IsTerminal returns true if no further transitions are possible.
func (s Status) IsTerminal() bool {
	allowed, ok := validTransitions[s]
	return ok && len(allowed) == 0
}

// Job represents a stitch request and its progress.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Clips are the clip URLs in script order.
	Clips []string
	// Config holds the pacing and output settings of the stitch.
	Config stitch.Config
	// PushToS3 indicates whether to upload the result to S3.
	PushToS3 bool

	// Stage is the pipeline stage of the latest progress event.
	Stage stitch.Stage
	// Current and Total count work within Stage.
	Current int
	Total   int
	// Message is the latest human-readable progress message.
	Message string
	// Progress is the percentage of completion (0-100).
	Progress int

	// Error contains any error message if the job failed.
	Error string
	// FailedClip is the index of the clip that caused a failure, or -1.
	FailedClip int

	// OutputPath is the local path to the finished recording.
	OutputPath string
	// AudioURL is the S3 URL if PushToS3 was true.
	AudioURL string
	// DurationSeconds is the length of the finished recording.
	DurationSeconds float64
	// Frames is the number of samples in the finished recording.
	Frames int

	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New() *Job {
	return NewWithID(id.Generate())
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
// Useful for testing or when ID needs to be externally generated.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:         jobID,
		Status:     StatusInQueue,
		Config:     stitch.DefaultConfig(),
		FailedClip: -1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete records the finished recording and transitions to COMPLETED.
func (j *Job) Complete(outputPath, audioURL string, frames int, seconds float64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.OutputPath = outputPath
	j.AudioURL = audioURL
	j.Frames = frames
	j.DurationSeconds = seconds
	j.Progress = 100
	return nil
}

// Fail transitions the job to FAILED with an error message. clip is the
// index of the offending clip, or -1.
func (j *Job) Fail(errMsg string, clip int) error {
	return j.finish(StatusFailed, errMsg, clip)
}

// Cancel transitions the job to CANCELLED.
func (j *Job) Cancel(errMsg string) error {
	return j.finish(StatusCancelled, errMsg, -1)
}

// Timeout transitions the job to TIMED_OUT.
func (j *Job) Timeout(errMsg string) error {
	return j.finish(StatusTimedOut, errMsg, -1)
}

func (j *Job) finish(status Status, errMsg string, clip int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(status); err != nil {
		return err
	}
	j.Error = errMsg
	j.FailedClip = clip
	return nil
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// ApplyProgress records a progress event. Percent never moves backwards.
func (j *Job) ApplyProgress(p stitch.Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Stage = p.Stage
	j.Current = p.Current
	j.Total = p.Total
	j.Message = p.Message
	j.Progress = max(j.Progress, min(p.Percent(), 100))
	j.UpdatedAt = time.Now()
}

// ClearOutput forgets the output path and URL after the file is deleted.
func (j *Job) ClearOutput() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputPath = ""
	j.AudioURL = ""
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	return j.GetStatus().IsTerminal()
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:              j.ID,
		Status:          j.Status,
		Clips:           slices.Clone(j.Clips),
		Config:          j.Config,
		PushToS3:        j.PushToS3,
		Stage:           j.Stage,
		Current:         j.Current,
		Total:           j.Total,
		Message:         j.Message,
		Progress:        j.Progress,
		Error:           j.Error,
		FailedClip:      j.FailedClip,
		OutputPath:      j.OutputPath,
		AudioURL:        j.AudioURL,
		DurationSeconds: j.DurationSeconds,
		Frames:          j.Frames,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
	}
}

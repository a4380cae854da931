package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when a stitch job cannot be found by ID.
var ErrJobNotFound = errors.New("job: stitch job not found")

// Repository stores stitch jobs. StitchService saves a job on every state
// change and progress event, so implementations must tolerate frequent
// overwrites of the same ID.
type Repository interface {
	// Save inserts or replaces the job with job.ID. Implementations keep
	// their own copy; later mutations of job are not visible until the
	// next Save.
	Save(ctx context.Context, job *Job) error

	// FindByID returns a copy of the job, or ErrJobNotFound.
	FindByID(ctx context.Context, id string) (*Job, error)

	// List returns every job ordered oldest first by CreatedAt, with ties
	// broken by ID, so listings are stable between calls.
	List(ctx context.Context) ([]*Job, error)

	// Delete removes the job, or returns ErrJobNotFound.
	Delete(ctx context.Context, id string) error
}

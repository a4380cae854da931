package stitch

import (
	"context"
	"errors"
	"fmt"

	"github.com/maauso/tableread/internal/clip"
)

// ErrResource matches every *ResourceError.
var ErrResource = errors.New("stitch: resource failure")

// ResourceError reports a failure to acquire or release the decoding session.
type ResourceError struct {
	Op  string
	Err error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("stitch: %s: %v", e.Op, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// Is matches ErrResource.
func (e *ResourceError) Is(target error) bool { return target == ErrResource }

// StageError is returned for every failed stitch. Clip is the index of the
// clip involved, or -1 when the failure is not tied to a clip.
type StageError struct {
	Stage Stage
	Clip  int
	Err   error
}

func (e *StageError) Error() string {
	if e.Clip >= 0 {
		return fmt.Sprintf("stitch: %s failed at clip %d: %v", e.Stage, e.Clip, e.Err)
	}
	return fmt.Sprintf("stitch: %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageError(stage Stage, err error) *StageError {
	se := &StageError{Stage: stage, Clip: -1, Err: err}
	var fe *clip.FetchError
	var de *clip.DecodeError
	switch {
	case errors.As(err, &fe):
		se.Clip = fe.Index
	case errors.As(err, &de):
		se.Clip = de.Index
	}
	return se
}

// Outcome labels a finished stitch for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "failed"
	}
}

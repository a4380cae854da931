package clip

import (
	"errors"
	"fmt"
)

// Static errors for clip loading.
var (
	// ErrFetch matches every *FetchError.
	ErrFetch = errors.New("clip: fetch failed")
	// ErrDecode matches every *DecodeError.
	ErrDecode = errors.New("clip: decode failed")
	// ErrEmptySource is returned for a source with neither URL nor data.
	ErrEmptySource = errors.New("clip: source has no URL or data")
	// ErrUnsupportedScheme is returned for URL schemes the fetcher cannot read.
	ErrUnsupportedScheme = errors.New("clip: unsupported source scheme")
	// ErrObjectStoreNotConfigured is returned for s3:// sources without S3 access.
	ErrObjectStoreNotConfigured = errors.New("clip: object store is not configured")
	// ErrTooLarge is returned when a clip exceeds the fetcher's size limit.
	ErrTooLarge = errors.New("clip: source exceeds size limit")
)

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("clip: unexpected HTTP status %s", e.Status)
}

// FetchError reports a clip that could not be retrieved.
type FetchError struct {
	Source     string
	Index      int
	StatusCode int // zero unless the server answered
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("clip %d (%s): fetch failed with status %d: %v", e.Index, e.Source, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("clip %d (%s): fetch failed: %v", e.Index, e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is matches ErrFetch.
func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// DecodeError reports clip bytes that could not be decoded as audio.
type DecodeError struct {
	Source string
	Index  int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("clip %d (%s): decode failed: %v", e.Index, e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is matches ErrDecode.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

func newFetchError(src Source, index int, err error) *FetchError {
	fe := &FetchError{Source: src.String(), Index: index, Err: err}
	var se *StatusError
	if errors.As(err, &se) {
		fe.StatusCode = se.StatusCode
	}
	return fe
}

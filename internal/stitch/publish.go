package stitch

import (
	"context"
	"encoding/base64"
	"time"
)

// Publisher turns an encoded recording into a playable handle such as a
// file path or URL. storage.LocalStorage satisfies it.
type Publisher interface {
	Publish(ctx context.Context, name string, wav []byte) (handle string, err error)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, name string, wav []byte) (string, error)

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, name string, wav []byte) (string, error) {
	return f(ctx, name, wav)
}

// DataURI returns wav as a base64 data URI. It is the handle used when no
// Publisher is configured.
func DataURI(wav []byte) string {
	return "data:audio/wav;base64," + base64.StdEncoding.EncodeToString(wav)
}

// Observer receives timing information about stitches. metrics.Metrics
// satisfies it.
type Observer interface {
	StageCompleted(stage string, d time.Duration)
	StitchFinished(outcome string, clips int, d time.Duration, outputSeconds float64)
}

type nopObserver struct{}

func (nopObserver) StageCompleted(string, time.Duration) {}
func (nopObserver) StitchFinished(string, int, time.Duration, float64) {}

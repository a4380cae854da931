package clip

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/tableread/internal/audio"
)

// Loader fetches and decodes clips, returning them in input order.
type Loader struct {
	fetcher     Fetcher
	concurrency int
	logger      *slog.Logger
}

// LoaderOption is a function that configures a Loader.
type LoaderOption func(*Loader)

// WithConcurrency bounds the number of clips fetched at once. Values below
// one mean one.
func WithConcurrency(n int) LoaderOption {
	return func(l *Loader) {
		l.concurrency = max(n, 1)
	}
}

// WithLoaderLogger sets the logger.
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader creates a Loader. By default clips are fetched one at a time.
func NewLoader(fetcher Fetcher, opts ...LoaderOption) *Loader {
	l := &Loader{
		fetcher:     fetcher,
		concurrency: 1,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fetches and decodes every source. The result has one entry per source
// in the same order regardless of completion order. onLoaded, if set, is
// called after each clip with a strictly increasing done count.
//
// The first failure aborts the remaining work and is returned as a
// *FetchError or *DecodeError; partial results are discarded.
func (l *Loader) Load(ctx context.Context, sources []Source, dec audio.Decoder, onLoaded func(done, total int)) ([]audio.Decoded, error) {
	total := len(sources)
	out := make([]audio.Decoded, total)
	if total == 0 {
		return out, nil
	}

	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)

	for i, src := range sources {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			decoded, err := l.loadOne(gctx, i, src, dec)
			if err != nil {
				return err
			}
			out[i] = decoded

			mu.Lock()
			done++
			if onLoaded != nil {
				onLoaded(done, total)
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	// a parent cancellation can stop the loop before any goroutine fails
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("clip: load cancelled: %w", err)
	}
	return out, nil
}

func (l *Loader) loadOne(ctx context.Context, index int, src Source, dec audio.Decoder) (audio.Decoded, error) {
	data, err := l.fetcher.Fetch(ctx, src)
	if err != nil {
		l.logger.Warn("clip fetch failed",
			slog.Int("index", index),
			slog.String("source", src.String()),
			slog.String("error", err.Error()),
		)
		return audio.Decoded{}, newFetchError(src, index, err)
	}

	decoded, err := dec.Decode(ctx, data)
	if err != nil {
		l.logger.Warn("clip decode failed",
			slog.Int("index", index),
			slog.String("source", src.String()),
			slog.String("error", err.Error()),
		)
		return audio.Decoded{}, &DecodeError{Source: src.String(), Index: index, Err: err}
	}

	l.logger.Debug("clip loaded",
		slog.Int("index", index),
		slog.Int("channels", decoded.NumChannels()),
		slog.Int("sample_rate", decoded.SampleRate),
		slog.Int("frames", decoded.Frames()),
	)
	return decoded, nil
}

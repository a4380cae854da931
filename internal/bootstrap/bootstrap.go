// Package bootstrap provides dependency initialization for the table read
// stitcher.
package bootstrap

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/maauso/tableread/internal/audio"
	"github.com/maauso/tableread/internal/clip"
	"github.com/maauso/tableread/internal/config"
	"github.com/maauso/tableread/internal/job"
	"github.com/maauso/tableread/internal/metrics"
	"github.com/maauso/tableread/internal/stitch"
	"github.com/maauso/tableread/internal/storage"
)

// ServerSchemes are the clip URL schemes accepted over HTTP.
var ServerSchemes = []string{"http", "https", "s3"}

// PipelineOptions controls how NewPipeline wires the stitcher.
type PipelineOptions struct {
	// Schemes limits clip URLs. "s3" is dropped unless S3 is configured.
	Schemes []string
	// PublishToStore publishes results to the store's results directory.
	PublishToStore bool
	// Stitch holds extra stitcher options.
	Stitch []stitch.Option
}

// Pipeline holds the components a stitch needs.
type Pipeline struct {
	Store    storage.Storage
	Fetcher  *clip.SourceFetcher
	Stitcher *stitch.Stitcher
	// Schemes are the clip URL schemes the fetcher accepts.
	Schemes []string
}

// NewPipeline wires storage, fetching and decoding into a Stitcher.
func NewPipeline(cfg *config.Config, logger *slog.Logger, opts PipelineOptions) (*Pipeline, error) {
	store, objects, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	schemes := slices.Clone(opts.Schemes)
	fetchOpts := []clip.FetcherOption{
		clip.WithTimeout(cfg.FetchTimeout),
		clip.WithLogger(logger),
	}
	if objects != nil {
		fetchOpts = append(fetchOpts, clip.WithObjectStore(objects))
	} else {
		schemes = slices.DeleteFunc(schemes, func(s string) bool { return s == "s3" })
	}
	fetchOpts = append(fetchOpts, clip.WithAllowedSchemes(schemes...))
	fetcher := clip.NewFetcher(fetchOpts...)

	loader := clip.NewLoader(fetcher,
		clip.WithConcurrency(cfg.MaxConcurrentFetches),
		clip.WithLoaderLogger(logger),
	)

	// Without ffmpeg only PCM WAV clips can be decoded
	var transcoder audio.Transcoder
	ffmpeg := audio.NewFFmpegTranscoder(cfg.FFmpegPath)
	if ffmpeg.Available() {
		transcoder = ffmpeg
	} else {
		logger.Warn("ffmpeg not found, only WAV clips are supported",
			slog.String("ffmpeg_path", cfg.FFmpegPath),
		)
	}
	decoders := audio.NewDecoders(store, transcoder, logger)

	stitchOpts := []stitch.Option{stitch.WithLogger(logger)}
	if opts.PublishToStore {
		stitchOpts = append(stitchOpts, stitch.WithPublisher(store))
	}
	stitchOpts = append(stitchOpts, opts.Stitch...)

	return &Pipeline{
		Store:    store,
		Fetcher:  fetcher,
		Stitcher: stitch.New(loader, decoders, stitchOpts...),
		Schemes:  schemes,
	}, nil
}

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Pipeline      *Pipeline
	StitchService *job.StitchService
	Metrics       *metrics.Metrics
	Registry      *prometheus.Registry
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	// Initialize metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	pipeline, err := NewPipeline(cfg, logger, PipelineOptions{
		Schemes:        ServerSchemes,
		PublishToStore: true,
		Stitch:         []stitch.Option{stitch.WithObserver(m)},
	})
	if err != nil {
		return nil, err
	}

	// Initialize job repository
	repo := job.NewMemoryRepository()

	svc := job.NewStitchService(
		repo,
		pipeline.Stitcher,
		pipeline.Store,
		logger,
		job.WithJobTimeout(cfg.JobTimeout),
	)

	return &Dependencies{
		Pipeline:      pipeline,
		StitchService: svc,
		Metrics:       m,
		Registry:      reg,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
// The object store is nil when S3 is not configured.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, clip.ObjectStore, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil, nil
}

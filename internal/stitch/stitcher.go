// Package stitch assembles independently recorded dialogue clips into one
// continuous, paced recording with a bed of room tone.
//
// A stitch runs four stages in order: clips are loaded and decoded, each
// clip is downmixed to mono and resampled to the output rate, the clips are
// joined with silent pauses and mixed over pink-noise room tone, and the
// result is encoded as 16-bit PCM WAV.
package stitch

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/maauso/tableread/internal/audio"
	"github.com/maauso/tableread/internal/clip"
)

// ClipLoader loads clips in input order. *clip.Loader satisfies it.
type ClipLoader interface {
	Load(ctx context.Context, sources []clip.Source, dec audio.Decoder, onLoaded func(done, total int)) ([]audio.Decoded, error)
}

// Result is a finished stitch.
type Result struct {
	// Name identifies the recording to the publisher.
	Name string
	// WAV is the encoded recording.
	WAV []byte
	// Handle is the publisher's handle, or a data URI without a publisher.
	Handle string
	// Frames is the number of samples in the recording.
	Frames int
	// SampleRate is the output sample rate.
	SampleRate int
	// DurationSeconds is Frames / SampleRate.
	DurationSeconds float64
}

// Stitcher runs stitches one at a time. It is safe for concurrent use;
// overlapping calls wait their turn.
type Stitcher struct {
	loader    ClipLoader
	opener    audio.SessionOpener
	publisher Publisher
	observer  Observer
	newRand   func() audio.RandomSource
	logger    *slog.Logger

	slot chan struct{}
}

// Option is a function that configures a Stitcher.
type Option func(*Stitcher)

// WithPublisher sets the publisher for finished recordings.
func WithPublisher(p Publisher) Option {
	return func(s *Stitcher) {
		s.publisher = p
	}
}

// WithObserver sets the timing observer.
func WithObserver(o Observer) Option {
	return func(s *Stitcher) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithRandomSource sets the factory for the room tone's random source. It
// is called once per stitch.
func WithRandomSource(newRand func() audio.RandomSource) Option {
	return func(s *Stitcher) {
		s.newRand = newRand
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Stitcher) {
		s.logger = l
	}
}

// New creates a Stitcher that loads clips with loader and decodes them in
// sessions opened from opener.
func New(loader ClipLoader, opener audio.SessionOpener, opts ...Option) *Stitcher {
	s := &Stitcher{
		loader:   loader,
		opener:   opener,
		observer: nopObserver{},
		newRand:  defaultRandomSource,
		logger:   slog.Default(),
		slot:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultRandomSource() audio.RandomSource {
	return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
}

// RunOption adjusts a single call to Stitch.
type RunOption func(*run)

// PublishAs sets the name the recording is published under. By default a
// random "stitch-<uuid>" name is used.
func PublishAs(name string) RunOption {
	return func(r *run) {
		r.name = name
	}
}

type run struct {
	name       string
	cfg        Config
	onProgress ProgressFunc
	stage      Stage
}

func (r *run) emit(stage Stage, current, total int, msg string) {
	r.stage = stage
	if r.onProgress != nil {
		r.onProgress(Progress{Stage: stage, Current: current, Total: total, Message: msg})
	}
}

// Stitch loads sources, joins them with cfg.PauseDurationMs of silence,
// mixes in room tone and encodes the result. onProgress may be nil.
//
// Zero sources produce an empty recording, not an error. Every failure is
// returned as a *StageError; the decoding session is always released.
func (s *Stitcher) Stitch(ctx context.Context, sources []clip.Source, cfg Config, onProgress ProgressFunc, opts ...RunOption) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &StageError{Stage: StageLoading, Clip: -1, Err: err}
	}

	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, &StageError{Stage: StageLoading, Clip: -1, Err: ctx.Err()}
	}
	defer func() { <-s.slot }()

	r := &run{cfg: cfg, onProgress: onProgress, stage: StageLoading}
	for _, opt := range opts {
		opt(r)
	}
	if r.name == "" {
		r.name = "stitch-" + uuid.NewString()
	}

	start := time.Now()
	s.logger.Info("stitch started",
		slog.String("name", r.name),
		slog.Int("clips", len(sources)),
		slog.Int("pause_ms", cfg.PauseDurationMs),
		slog.Int("sample_rate", cfg.SampleRate),
	)

	res, err := s.run(ctx, r, sources)

	elapsed := time.Since(start)
	var seconds float64
	if res != nil {
		seconds = res.DurationSeconds
	}
	s.observer.StitchFinished(Outcome(err), len(sources), elapsed, seconds)

	if err != nil {
		s.logger.Error("stitch failed",
			slog.String("name", r.name),
			slog.String("stage", string(r.stage)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.logger.Info("stitch completed",
		slog.String("name", r.name),
		slog.Int("frames", res.Frames),
		slog.Float64("duration_seconds", res.DurationSeconds),
		slog.Duration("elapsed", elapsed),
	)
	return res, nil
}

func (s *Stitcher) run(ctx context.Context, r *run, sources []clip.Source) (res *Result, err error) {
	if err := ctx.Err(); err != nil {
		return nil, stageError(StageLoading, err)
	}
	sess, err := s.opener.Open(ctx)
	if err != nil {
		return nil, stageError(StageLoading, &ResourceError{Op: "open decoding session", Err: err})
	}
	defer func() {
		cerr := sess.Close()
		if cerr == nil {
			return
		}
		if err != nil {
			s.logger.Warn("failed to release decoding session",
				slog.String("name", r.name),
				slog.String("error", cerr.Error()),
			)
			return
		}
		res = nil
		err = stageError(r.stage, &ResourceError{Op: "release decoding session", Err: cerr})
	}()

	decoded, err := s.load(ctx, r, sources, sess)
	if err != nil {
		return nil, err
	}

	clips, err := s.process(ctx, r, decoded)
	if err != nil {
		return nil, err
	}

	mixed, err := s.mix(ctx, r, clips)
	if err != nil {
		return nil, err
	}

	return s.export(ctx, r, mixed)
}

func (s *Stitcher) load(ctx context.Context, r *run, sources []clip.Source, dec audio.Decoder) ([]audio.Decoded, error) {
	if err := ctx.Err(); err != nil {
		return nil, stageError(StageLoading, err)
	}
	start := time.Now()
	n := len(sources)

	r.emit(StageLoading, 0, n, fmt.Sprintf("Loading %d clips...", n))
	decoded, err := s.loader.Load(ctx, sources, dec, func(done, total int) {
		r.emit(StageLoading, done, total, fmt.Sprintf("Loaded clip %d of %d", done, total))
	})
	if err != nil {
		return nil, stageError(StageLoading, err)
	}

	s.observer.StageCompleted(string(StageLoading), time.Since(start))
	return decoded, nil
}

func (s *Stitcher) process(ctx context.Context, r *run, decoded []audio.Decoded) ([]audio.Buffer, error) {
	start := time.Now()
	n := len(decoded)

	r.emit(StageProcessing, 0, n, "Normalizing clips...")
	out := make([]audio.Buffer, n)
	for i, d := range decoded {
		if err := ctx.Err(); err != nil {
			return nil, stageError(StageProcessing, err)
		}
		out[i] = audio.Resample(audio.ToMono(d), r.cfg.SampleRate)
		r.emit(StageProcessing, i+1, n, fmt.Sprintf("Processed clip %d of %d", i+1, n))
	}

	s.observer.StageCompleted(string(StageProcessing), time.Since(start))
	return out, nil
}

func (s *Stitcher) mix(ctx context.Context, r *run, clips []audio.Buffer) (audio.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return audio.Buffer{}, stageError(StageMixing, err)
	}
	start := time.Now()
	rate := r.cfg.SampleRate

	r.emit(StageMixing, 0, 1, "Mixing dialogue with room tone...")
	dialogue, err := audio.Concatenate(clips, audio.Silence(r.cfg.PauseDurationMs, rate))
	if err != nil {
		return audio.Buffer{}, stageError(StageMixing, err)
	}

	tone := audio.RoomTone(s.newRand(), dialogue.Frames(), rate)
	mixed, err := audio.Mix(dialogue, tone, r.cfg.RoomToneVolume)
	if err != nil {
		return audio.Buffer{}, stageError(StageMixing, err)
	}

	s.observer.StageCompleted(string(StageMixing), time.Since(start))
	return mixed, nil
}

func (s *Stitcher) export(ctx context.Context, r *run, mixed audio.Buffer) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, stageError(StageExporting, err)
	}
	start := time.Now()
	r.stage = StageExporting

	wav := audio.EncodeWAV(mixed)
	var handle string
	if s.publisher != nil {
		h, err := s.publisher.Publish(ctx, r.name, wav)
		if err != nil {
			return nil, stageError(StageExporting, fmt.Errorf("publish: %w", err))
		}
		handle = h
	} else {
		handle = DataURI(wav)
	}

	r.emit(StageExporting, 1, 1, "Complete!")
	s.observer.StageCompleted(string(StageExporting), time.Since(start))

	return &Result{
		Name:            r.name,
		WAV:             wav,
		Handle:          handle,
		Frames:          mixed.Frames(),
		SampleRate:      mixed.SampleRate,
		DurationSeconds: mixed.Seconds(),
	}, nil
}

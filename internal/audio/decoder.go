package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Static errors for decoding sessions.
var (
	// ErrSessionClosed is returned when a closed session is used.
	ErrSessionClosed = errors.New("audio: decoding session closed")
	// ErrScratchRequired is returned when transcoding is enabled without scratch storage.
	ErrScratchRequired = errors.New("audio: scratch storage is required for transcoding")
)

// Decoder decodes one encoded clip into PCM.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (Decoded, error)
}

// Session is a decoding context owned by a single stitch invocation.
// Close releases every resource the session acquired.
type Session interface {
	Decoder
	Close() error
}

// SessionOpener opens decoding sessions.
type SessionOpener interface {
	Open(ctx context.Context) (Session, error)
}

// Scratch is the temporary file storage a session transcodes through.
// storage.LocalStorage satisfies it.
type Scratch interface {
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)
	CleanupTemp(ctx context.Context, paths []string) error
}

// Transcoder converts an audio file on disk into a PCM WAV file.
type Transcoder interface {
	ToWAV(ctx context.Context, inputPath, outputPath string) error
}

// Decoders opens decoding sessions. WAV input is decoded natively; any other
// input is transcoded through scratch storage when a Transcoder is set.
type Decoders struct {
	scratch    Scratch
	transcoder Transcoder
	logger     *slog.Logger
}

// NewDecoders creates a session opener. transcoder may be nil, in which case
// only integer PCM WAV input is accepted.
func NewDecoders(scratch Scratch, transcoder Transcoder, logger *slog.Logger) *Decoders {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoders{
		scratch:    scratch,
		transcoder: transcoder,
		logger:     logger,
	}
}

// Open starts a new decoding session.
func (d *Decoders) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("audio: open session: %w", err)
	}
	if d.transcoder != nil && d.scratch == nil {
		return nil, ErrScratchRequired
	}
	return &session{parent: d}, nil
}

// session tracks the scratch files created while decoding so Close can
// remove them.
type session struct {
	parent *Decoders

	mu     sync.Mutex
	temps  []string
	closed bool
}

// Decode implements Decoder.
func (s *session) Decode(ctx context.Context, data []byte) (Decoded, error) {
	if s.isClosed() {
		return Decoded{}, ErrSessionClosed
	}
	if len(data) == 0 {
		return Decoded{}, fmt.Errorf("%w: empty input", ErrInvalidWAV)
	}

	if IsWAV(data) {
		dec, err := DecodeWAV(data)
		if err == nil || !errors.Is(err, ErrUnsupportedFormat) || s.parent.transcoder == nil {
			return dec, err
		}
	} else if s.parent.transcoder == nil {
		return Decoded{}, fmt.Errorf("%w: not a WAV stream and no transcoder configured", ErrUnsupportedFormat)
	}

	return s.transcode(ctx, data)
}

func (s *session) transcode(ctx context.Context, data []byte) (Decoded, error) {
	scratch := s.parent.scratch

	in, err := scratch.SaveTemp(ctx, "clip", bytes.NewReader(data))
	if err != nil {
		return Decoded{}, fmt.Errorf("audio: stage clip for transcoding: %w", err)
	}
	out := in + ".wav"
	if err := s.track(in, out); err != nil {
		_ = scratch.CleanupTemp(context.WithoutCancel(ctx), []string{in})
		return Decoded{}, err
	}

	if err := s.parent.transcoder.ToWAV(ctx, in, out); err != nil {
		return Decoded{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	rc, err := scratch.LoadTemp(ctx, out)
	if err != nil {
		return Decoded{}, fmt.Errorf("audio: load transcoded clip: %w", err)
	}
	defer func() { _ = rc.Close() }()

	wavData, err := io.ReadAll(rc)
	if err != nil {
		return Decoded{}, fmt.Errorf("audio: read transcoded clip: %w", err)
	}

	s.parent.logger.Debug("clip transcoded",
		slog.Int("input_bytes", len(data)),
		slog.Int("wav_bytes", len(wavData)),
	)

	return DecodeWAV(wavData)
}

func (s *session) track(paths ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.temps = append(s.temps, paths...)
	return nil
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close removes every scratch file the session created. Closing twice is a no-op.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	temps := s.temps
	s.temps = nil
	s.mu.Unlock()

	if len(temps) == 0 || s.parent.scratch == nil {
		return nil
	}
	if err := s.parent.scratch.CleanupTemp(context.Background(), temps); err != nil {
		return fmt.Errorf("audio: release session: %w", err)
	}
	return nil
}

// Verify interface implementation at compile time.
var (
	_ SessionOpener = (*Decoders)(nil)
	_ Session       = (*session)(nil)
)

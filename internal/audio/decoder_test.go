package audio

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dirScratch is a minimal Scratch backed by a test directory.
type dirScratch struct {
	dir string

	mu      sync.Mutex
	saved   []string
	cleaned []string
	failRm  bool
}

func (s *dirScratch) SaveTemp(_ context.Context, name string, data io.Reader) (string, error) {
	f, err := os.CreateTemp(s.dir, name+"_*")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, data); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.saved = append(s.saved, f.Name())
	s.mu.Unlock()
	return f.Name(), nil
}

func (s *dirScratch) LoadTemp(_ context.Context, path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (s *dirScratch) CleanupTemp(_ context.Context, paths []string) error {
	s.mu.Lock()
	s.cleaned = append(s.cleaned, paths...)
	s.mu.Unlock()
	if s.failRm {
		return errors.New("disk on fire")
	}
	for _, p := range paths {
		_ = os.Remove(p)
	}
	return nil
}

// fakeTranscoder writes a fixed WAV stream to the output path.
type fakeTranscoder struct {
	out   []byte
	err   error
	calls int
}

func (f *fakeTranscoder) ToWAV(_ context.Context, inputPath, outputPath string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	if _, err := os.Stat(inputPath); err != nil {
		return err
	}
	return os.WriteFile(outputPath, f.out, 0o600)
}

func TestSession_DecodesWAVNatively(t *testing.T) {
	tr := &fakeTranscoder{}
	dec := NewDecoders(&dirScratch{dir: t.TempDir()}, tr, nil)

	s, err := dec.Open(context.Background())
	require.NoError(t, err)
	defer s.Close()

	d, err := s.Decode(context.Background(), pcm16WAV(1, 16000, []int16{0, 16384}))
	require.NoError(t, err)
	assert.Equal(t, 16000, d.SampleRate)
	assert.Equal(t, 2, d.Frames())
	assert.Zero(t, tr.calls)
}

func TestSession_TranscodesOtherFormats(t *testing.T) {
	scratch := &dirScratch{dir: t.TempDir()}
	tr := &fakeTranscoder{out: pcm16WAV(2, 22050, []int16{100, 200, 300, 400})}
	dec := NewDecoders(scratch, tr, nil)

	s, err := dec.Open(context.Background())
	require.NoError(t, err)

	d, err := s.Decode(context.Background(), []byte("OggS fake vorbis payload"))
	require.NoError(t, err)
	assert.Equal(t, 1, tr.calls)
	assert.Equal(t, 2, d.NumChannels())
	assert.Equal(t, 22050, d.SampleRate)

	require.NoError(t, s.Close())

	// Both the staged input and the transcoded output are released.
	require.Len(t, scratch.saved, 1)
	assert.ElementsMatch(t, []string{scratch.saved[0], scratch.saved[0] + ".wav"}, scratch.cleaned)
	for _, p := range scratch.cleaned {
		_, statErr := os.Stat(p)
		assert.True(t, os.IsNotExist(statErr), "expected %s to be removed", filepath.Base(p))
	}
}

func TestSession_TranscodesExtensibleFloatWAV(t *testing.T) {
	tr := &fakeTranscoder{out: pcm16WAV(1, 48000, []int16{0, 16384})}
	dec := NewDecoders(&dirScratch{dir: t.TempDir()}, tr, nil)

	s, err := dec.Open(context.Background())
	require.NoError(t, err)
	defer s.Close()

	d, err := s.Decode(context.Background(), extensibleWAV(3, 1, 48000, 32, make([]byte, 8)))
	require.NoError(t, err)
	assert.Equal(t, 1, tr.calls)
	assert.InDeltaSlice(t, []float64{0, 0.5}, d.Channels[0], 1e-9)
}

func TestSession_TranscoderFailureIsUnsupported(t *testing.T) {
	tr := &fakeTranscoder{err: errors.New("invalid data found when processing input")}
	dec := NewDecoders(&dirScratch{dir: t.TempDir()}, tr, nil)

	s, err := dec.Open(context.Background())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Decode(context.Background(), []byte("garbage"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestSession_WithoutTranscoderRejectsNonWAV(t *testing.T) {
	dec := NewDecoders(nil, nil, nil)

	s, err := dec.Open(context.Background())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Decode(context.Background(), []byte("ID3 mp3 data"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = s.Decode(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidWAV)
}

func TestSession_UseAfterClose(t *testing.T) {
	dec := NewDecoders(nil, nil, nil)
	s, err := dec.Open(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "second close is a no-op")

	_, err = s.Decode(context.Background(), pcm16WAV(1, 8000, []int16{1}))
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_CloseReportsCleanupFailure(t *testing.T) {
	scratch := &dirScratch{dir: t.TempDir(), failRm: true}
	tr := &fakeTranscoder{out: pcm16WAV(1, 8000, []int16{1, 2})}
	dec := NewDecoders(scratch, tr, nil)

	s, err := dec.Open(context.Background())
	require.NoError(t, err)
	_, err = s.Decode(context.Background(), []byte("not wav"))
	require.NoError(t, err)

	assert.Error(t, s.Close())
}

func TestDecoders_Open(t *testing.T) {
	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := NewDecoders(nil, nil, nil).Open(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("transcoder without scratch", func(t *testing.T) {
		_, err := NewDecoders(nil, &fakeTranscoder{}, nil).Open(context.Background())
		assert.ErrorIs(t, err, ErrScratchRequired)
	})
}

func TestNewFFmpegTranscoder_DefaultPath(t *testing.T) {
	tr := NewFFmpegTranscoder("")
	assert.Equal(t, "ffmpeg", tr.ffmpegPath)

	tr = NewFFmpegTranscoder("/custom/path/ffmpeg")
	assert.Equal(t, "/custom/path/ffmpeg", tr.ffmpegPath)
}

func TestFFmpegTranscoder_MissingInput(t *testing.T) {
	tr := NewFFmpegTranscoder("")
	err := tr.ToWAV(context.Background(), "/nonexistent/clip.webm", filepath.Join(t.TempDir(), "out.wav"))
	assert.Error(t, err)
}

// checkFFmpeg skips test if ffmpeg is not available.
func checkFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
}

func TestSession_FFmpegFLAC(t *testing.T) {
	checkFFmpeg(t)

	dir := t.TempDir()
	flac := filepath.Join(dir, "tone.flac")
	cmd := exec.Command("ffmpeg", "-y",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=0.5:sample_rate=48000",
		"-ac", "2",
		flac,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test FLAC: %v: %s", err, out)
	}
	data, err := os.ReadFile(flac)
	require.NoError(t, err)

	dec := NewDecoders(&dirScratch{dir: dir}, NewFFmpegTranscoder(""), nil)
	s, err := dec.Open(context.Background())
	require.NoError(t, err)
	defer s.Close()

	d, err := s.Decode(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, 48000, d.SampleRate)
	assert.Equal(t, 2, d.NumChannels())
	assert.InDelta(t, 24000, d.Frames(), 1200)
}

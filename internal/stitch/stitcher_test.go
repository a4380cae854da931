package stitch

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/tableread/internal/audio"
	"github.com/maauso/tableread/internal/clip"
)

// toneWAV encodes a quiet sine of the given length as mono 16-bit WAV.
func toneWAV(frames, rate int) []byte {
	samples := make([]float64, frames)
	for i := range samples {
		samples[i] = 0.25 * math.Sin(2*math.Pi*440*float64(i)/float64(rate))
	}
	return audio.EncodeWAV(audio.Buffer{Samples: samples, SampleRate: rate})
}

// trackingOpener wraps the native decoder and records session lifecycle.
type trackingOpener struct {
	mu       sync.Mutex
	opened   int
	closed   int
	closeErr error
}

type trackingSession struct {
	audio.Session
	parent *trackingOpener
}

func (o *trackingOpener) Open(ctx context.Context) (audio.Session, error) {
	sess, err := audio.NewDecoders(nil, nil, nil).Open(ctx)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.opened++
	o.mu.Unlock()
	return &trackingSession{Session: sess, parent: o}, nil
}

func (s *trackingSession) Close() error {
	_ = s.Session.Close()
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	s.parent.closed++
	return s.parent.closeErr
}

func (o *trackingOpener) counts() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened, o.closed
}

type recorder struct {
	events []Progress
}

func (r *recorder) record(p Progress) { r.events = append(r.events, p) }

func (r *recorder) stages() []Stage {
	var out []Stage
	for _, e := range r.events {
		if len(out) == 0 || out[len(out)-1] != e.Stage {
			out = append(out, e.Stage)
		}
	}
	return out
}

type fakeObserver struct {
	mu       sync.Mutex
	stages   []string
	outcomes []string
}

func (o *fakeObserver) StageCompleted(stage string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
}

func (o *fakeObserver) StitchFinished(outcome string, _ int, _ time.Duration, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func seeded(seed uint64) func() audio.RandomSource {
	return func() audio.RandomSource { return rand.New(rand.NewPCG(seed, seed)) }
}

func newTestStitcher(opener audio.SessionOpener, opts ...Option) *Stitcher {
	opts = append([]Option{WithRandomSource(seeded(7))}, opts...)
	return New(clip.NewLoader(clip.NewFetcher()), opener, opts...)
}

func TestStitch_TwoClipsWithPause(t *testing.T) {
	opener := &trackingOpener{}
	s := newTestStitcher(opener)

	sources := []clip.Source{
		clip.FromBytes("one-second", toneWAV(44100, 44100)),
		clip.FromBytes("two-seconds", toneWAV(88200, 44100)),
	}

	res, err := s.Stitch(context.Background(), sources, DefaultConfig(), nil)
	require.NoError(t, err)

	// 44100 + round(0.75*44100) + 88200
	assert.Equal(t, 165375, res.Frames)
	assert.InDelta(t, 3.75, res.DurationSeconds, 1e-9)
	assert.Equal(t, 44100, res.SampleRate)
	assert.Len(t, res.WAV, audio.WAVHeaderSize+165375*2)

	decoded, err := audio.DecodeWAV(res.WAV)
	require.NoError(t, err)
	assert.Equal(t, 165375, decoded.Frames())
	assert.Equal(t, 1, decoded.NumChannels())
	assert.Equal(t, 44100, decoded.SampleRate)

	opened, closed := opener.counts()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)
}

func TestStitch_SingleClipHasNoPause(t *testing.T) {
	s := newTestStitcher(&trackingOpener{})

	res, err := s.Stitch(context.Background(), []clip.Source{clip.FromBytes("only", toneWAV(44100, 44100))}, DefaultConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, 44100, res.Frames)
	assert.InDelta(t, 1.0, res.DurationSeconds, 1e-9)
}

func TestStitch_ResamplesMixedRates(t *testing.T) {
	s := newTestStitcher(&trackingOpener{})

	sources := []clip.Source{
		clip.FromBytes("low", toneWAV(22050, 22050)),
		clip.FromBytes("native", toneWAV(44100, 44100)),
	}
	cfg := DefaultConfig()
	cfg.PauseDurationMs = 0

	res, err := s.Stitch(context.Background(), sources, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 88200, res.Frames)
}

func TestStitch_NoClips(t *testing.T) {
	rec := &recorder{}
	s := newTestStitcher(&trackingOpener{})

	res, err := s.Stitch(context.Background(), nil, DefaultConfig(), rec.record)
	require.NoError(t, err)
	assert.Len(t, res.WAV, audio.WAVHeaderSize)
	assert.Equal(t, 0, res.Frames)
	assert.Zero(t, res.DurationSeconds)
	assert.Equal(t, []Stage{StageLoading, StageProcessing, StageMixing, StageExporting}, rec.stages())
}

func TestStitch_ProgressSequence(t *testing.T) {
	rec := &recorder{}
	s := newTestStitcher(&trackingOpener{})

	sources := []clip.Source{
		clip.FromBytes("a", toneWAV(100, 44100)),
		clip.FromBytes("b", toneWAV(200, 44100)),
	}
	_, err := s.Stitch(context.Background(), sources, DefaultConfig(), rec.record)
	require.NoError(t, err)

	type step struct {
		stage    Stage
		cur, tot int
	}
	var got []step
	for _, e := range rec.events {
		got = append(got, step{e.Stage, e.Current, e.Total})
	}
	assert.Equal(t, []step{
		{StageLoading, 0, 2},
		{StageLoading, 1, 2},
		{StageLoading, 2, 2},
		{StageProcessing, 0, 2},
		{StageProcessing, 1, 2},
		{StageProcessing, 2, 2},
		{StageMixing, 0, 1},
		{StageExporting, 1, 1},
	}, got)
	assert.Equal(t, "Complete!", rec.events[len(rec.events)-1].Message)

	last := -1
	for _, e := range rec.events {
		assert.GreaterOrEqual(t, e.Percent(), last)
		last = e.Percent()
	}
	assert.Equal(t, 100, last)
}

func TestStitch_FetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.wav" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(toneWAV(100, 44100))
	}))
	defer server.Close()

	opener := &trackingOpener{}
	obs := &fakeObserver{}
	rec := &recorder{}
	s := newTestStitcher(opener, WithObserver(obs))

	sources := clip.FromURLs([]string{server.URL + "/ok.wav", server.URL + "/missing.wav"})
	res, err := s.Stitch(context.Background(), sources, DefaultConfig(), rec.record)
	require.Error(t, err)
	assert.Nil(t, res)

	assert.ErrorIs(t, err, clip.ErrFetch)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageLoading, se.Stage)
	assert.Equal(t, 1, se.Clip)

	var fe *clip.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)

	for _, e := range rec.events {
		assert.NotEqual(t, StageMixing, e.Stage)
		assert.NotEqual(t, StageExporting, e.Stage)
	}

	_, closed := opener.counts()
	assert.Equal(t, 1, closed, "decoding session must be released")
	assert.Equal(t, []string{"failed"}, obs.outcomes)
	assert.Empty(t, obs.stages)
}

func TestStitch_DecodeFailure(t *testing.T) {
	opener := &trackingOpener{}
	s := newTestStitcher(opener)

	sources := []clip.Source{
		clip.FromBytes("good", toneWAV(100, 44100)),
		clip.FromBytes("garbage", []byte("definitely not audio")),
	}
	_, err := s.Stitch(context.Background(), sources, DefaultConfig(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, clip.ErrDecode)
	assert.ErrorIs(t, err, audio.ErrUnsupportedFormat)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, se.Clip)

	_, closed := opener.counts()
	assert.Equal(t, 1, closed)
}

func TestStitch_SessionCloseFailure(t *testing.T) {
	opener := &trackingOpener{closeErr: errors.New("scratch dir busy")}
	s := newTestStitcher(opener)

	res, err := s.Stitch(context.Background(), []clip.Source{clip.FromBytes("a", toneWAV(100, 44100))}, DefaultConfig(), nil)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrResource)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageExporting, se.Stage)
	assert.Contains(t, err.Error(), "scratch dir busy")
}

func TestStitch_CancelledBeforeStart(t *testing.T) {
	opener := &trackingOpener{}
	s := newTestStitcher(opener)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Stitch(ctx, []clip.Source{clip.FromBytes("a", toneWAV(100, 44100))}, DefaultConfig(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "cancelled", Outcome(err))

	opened, _ := opener.counts()
	assert.Zero(t, opened)
}

func TestStitch_CancelledDuringProcessing(t *testing.T) {
	opener := &trackingOpener{}
	s := newTestStitcher(opener)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	onProgress := func(p Progress) {
		rec.record(p)
		if p.Stage == StageProcessing && p.Current == 1 {
			cancel()
		}
	}

	sources := []clip.Source{
		clip.FromBytes("a", toneWAV(100, 44100)),
		clip.FromBytes("b", toneWAV(100, 44100)),
	}
	_, err := s.Stitch(ctx, sources, DefaultConfig(), onProgress)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageProcessing, se.Stage)
	assert.NotContains(t, rec.stages(), StageMixing)

	_, closed := opener.counts()
	assert.Equal(t, 1, closed)
}

// blockingLoader holds the first Load call until release is closed.
type blockingLoader struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (l *blockingLoader) Load(ctx context.Context, sources []clip.Source, _ audio.Decoder, _ func(int, int)) ([]audio.Decoded, error) {
	l.once.Do(func() { close(l.started) })
	select {
	case <-l.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return make([]audio.Decoded, len(sources)), nil
}

func TestStitch_OneAtATime(t *testing.T) {
	loader := &blockingLoader{started: make(chan struct{}), release: make(chan struct{})}
	s := New(loader, &trackingOpener{}, WithRandomSource(seeded(1)))

	firstDone := make(chan error, 1)
	go func() {
		_, err := s.Stitch(context.Background(), nil, DefaultConfig(), nil)
		firstDone <- err
	}()
	<-loader.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.Stitch(ctx, nil, DefaultConfig(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(loader.release)
	require.NoError(t, <-firstDone)

	_, err = s.Stitch(context.Background(), nil, DefaultConfig(), nil)
	assert.NoError(t, err)
}

func TestStitch_DeterministicWithSeed(t *testing.T) {
	sources := []clip.Source{clip.FromBytes("a", toneWAV(2000, 44100))}

	first, err := newTestStitcher(&trackingOpener{}).Stitch(context.Background(), sources, DefaultConfig(), nil)
	require.NoError(t, err)
	second, err := newTestStitcher(&trackingOpener{}).Stitch(context.Background(), sources, DefaultConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, first.WAV, second.WAV)

	other, err := New(clip.NewLoader(clip.NewFetcher()), &trackingOpener{}, WithRandomSource(seeded(99))).
		Stitch(context.Background(), sources, DefaultConfig(), nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.WAV, other.WAV)
}

func TestStitch_Publisher(t *testing.T) {
	sources := []clip.Source{clip.FromBytes("a", toneWAV(100, 44100))}

	t.Run("handle from publisher", func(t *testing.T) {
		var gotName string
		var gotLen int
		pub := PublisherFunc(func(_ context.Context, name string, wav []byte) (string, error) {
			gotName, gotLen = name, len(wav)
			return "/results/" + name + ".wav", nil
		})
		s := newTestStitcher(&trackingOpener{}, WithPublisher(pub))

		res, err := s.Stitch(context.Background(), sources, DefaultConfig(), nil, PublishAs("scene-1"))
		require.NoError(t, err)
		assert.Equal(t, "scene-1", gotName)
		assert.Equal(t, len(res.WAV), gotLen)
		assert.Equal(t, "/results/scene-1.wav", res.Handle)
		assert.Equal(t, "scene-1", res.Name)
	})

	t.Run("data uri without publisher", func(t *testing.T) {
		res, err := newTestStitcher(&trackingOpener{}).Stitch(context.Background(), sources, DefaultConfig(), nil)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(res.Handle, "data:audio/wav;base64,UklGR"))
		assert.True(t, strings.HasPrefix(res.Name, "stitch-"))
	})

	t.Run("publish failure", func(t *testing.T) {
		rec := &recorder{}
		pub := PublisherFunc(func(context.Context, string, []byte) (string, error) {
			return "", errors.New("disk full")
		})
		s := newTestStitcher(&trackingOpener{}, WithPublisher(pub))

		_, err := s.Stitch(context.Background(), sources, DefaultConfig(), rec.record)
		var se *StageError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, StageExporting, se.Stage)
		for _, e := range rec.events {
			assert.NotEqual(t, StageExporting, e.Stage)
		}
	})
}

func TestStitch_ObserverSeesEveryStage(t *testing.T) {
	obs := &fakeObserver{}
	s := newTestStitcher(&trackingOpener{}, WithObserver(obs))

	_, err := s.Stitch(context.Background(), []clip.Source{clip.FromBytes("a", toneWAV(100, 44100))}, DefaultConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"loading", "processing", "mixing", "exporting"}, obs.stages)
	assert.Equal(t, []string{"success"}, obs.outcomes)
}

func TestStitch_InvalidConfig(t *testing.T) {
	s := newTestStitcher(&trackingOpener{})

	_, err := s.Stitch(context.Background(), nil, Config{SampleRate: 0, RoomToneVolume: 0.1}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

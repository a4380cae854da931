package audio

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constSource returns the same value on every draw.
type constSource float64

func (c constSource) Float64() float64 { return float64(c) }

func TestSilence(t *testing.T) {
	tests := []struct {
		ms, rate, want int
	}{
		{750, 44100, 33075},
		{0, 44100, 0},
		{1000, 48000, 48000},
		{1, 44100, 44},   // 44.1 rounds down
		{10, 22050, 221}, // 220.5 rounds half away from zero
		{-5, 44100, 0},
	}

	for _, tt := range tests {
		s := Silence(tt.ms, tt.rate)
		assert.Equal(t, tt.want, s.Frames(), "ms=%d rate=%d", tt.ms, tt.rate)
		assert.Equal(t, tt.rate, s.SampleRate)
		for _, v := range s.Samples {
			if v != 0 {
				t.Fatalf("silence contains non-zero sample %v", v)
			}
		}
	}
}

func TestRoomTone_Length(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, frames := range []int{0, 1, 100, 44100} {
		tone := RoomTone(rng, frames, 44100)
		assert.Equal(t, frames, tone.Frames())
		assert.Equal(t, 44100, tone.SampleRate)
	}
}

func TestRoomTone_FirstSampleMatchesFilter(t *testing.T) {
	// Draw 0.75 -> white = 0.5. With zero state the first pink value is the
	// sum of all white coefficients except b6 (still zero).
	tone := RoomTone(constSource(0.75), 2, 44100)

	white := 0.5
	pink0 := white * (0.0555179 + 0.0750759 + 0.1538520 + 0.3104856 + 0.5329522 - 0.0168980 + 0.5362)
	assert.InDelta(t, pink0*0.01, tone.Samples[0], 1e-12)

	b0 := 0.99886*white*0.0555179 + white*0.0555179
	b1 := 0.99332*white*0.0750759 + white*0.0750759
	b2 := 0.96900*white*0.1538520 + white*0.1538520
	b3 := 0.86650*white*0.3104856 + white*0.3104856
	b4 := 0.55000*white*0.5329522 + white*0.5329522
	b5 := -0.7616*(-white*0.0168980) - white*0.0168980
	b6 := white * 0.115926
	pink1 := b0 + b1 + b2 + b3 + b4 + b5 + b6 + white*0.5362
	assert.InDelta(t, pink1*0.01, tone.Samples[1], 1e-12)
}

func TestRoomTone_SeededIsDeterministic(t *testing.T) {
	a := RoomTone(rand.New(rand.NewPCG(42, 7)), 1000, 44100)
	b := RoomTone(rand.New(rand.NewPCG(42, 7)), 1000, 44100)
	c := RoomTone(rand.New(rand.NewPCG(43, 7)), 1000, 44100)

	assert.Equal(t, a.Samples, b.Samples)
	assert.NotEqual(t, a.Samples, c.Samples)
}

func TestRoomTone_IsLowAmplitude(t *testing.T) {
	tone := RoomTone(rand.New(rand.NewPCG(9, 9)), 44100*5, 44100)

	var peak float64
	for _, v := range tone.Samples {
		peak = math.Max(peak, math.Abs(v))
	}
	assert.Less(t, peak, 0.25)
	assert.Greater(t, peak, 0.0)
}

func TestRoomToneDuration(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))

	tone := RoomToneDuration(rng, 3.75, 44100)
	require.Equal(t, 165375, tone.Frames())

	empty := RoomToneDuration(rng, 0, 44100)
	assert.Equal(t, 0, empty.Frames())
}

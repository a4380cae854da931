package audio

import (
	"math"
)

// roomToneGain attenuates the raw pink noise to a subtle ambience level.
// The perceptual level is applied later by the mixer's volume.
const roomToneGain = 0.01

// RandomSource supplies uniform values in [0, 1). *math/rand/v2.Rand
// satisfies it, so tests can inject a seeded generator.
type RandomSource interface {
	Float64() float64
}

// SilenceFrames returns the frame count of a pause of durationMs at rate,
// rounded to the nearest frame.
func SilenceFrames(durationMs, rate int) int {
	if durationMs <= 0 || rate <= 0 {
		return 0
	}
	return int(math.Round(float64(durationMs) / 1000 * float64(rate)))
}

// Silence returns a zero-filled buffer of durationMs at rate.
func Silence(durationMs, rate int) Buffer {
	return Buffer{
		Samples:    make([]float64, SilenceFrames(durationMs, rate)),
		SampleRate: rate,
	}
}

// RoomTone generates frames samples of low-amplitude pink noise using the
// Voss-McCartney filter approximation.
func RoomTone(rng RandomSource, frames, rate int) Buffer {
	if frames < 0 {
		frames = 0
	}
	out := make([]float64, frames)

	var b0, b1, b2, b3, b4, b5, b6 float64
	for i := range out {
		white := rng.Float64()*2 - 1

		b0 = 0.99886*b0 + white*0.0555179
		b1 = 0.99332*b1 + white*0.0750759
		b2 = 0.96900*b2 + white*0.1538520
		b3 = 0.86650*b3 + white*0.3104856
		b4 = 0.55000*b4 + white*0.5329522
		b5 = -0.7616*b5 - white*0.0168980
		pink := b0 + b1 + b2 + b3 + b4 + b5 + b6 + white*0.5362
		b6 = white * 0.115926

		out[i] = pink * roomToneGain
	}
	return Buffer{Samples: out, SampleRate: rate}
}

// RoomToneDuration generates room tone lasting seconds at rate.
func RoomToneDuration(rng RandomSource, seconds float64, rate int) Buffer {
	if seconds <= 0 || rate <= 0 {
		return Buffer{Samples: []float64{}, SampleRate: rate}
	}
	return RoomTone(rng, int(math.Round(seconds*float64(rate))), rate)
}

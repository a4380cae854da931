package audio

import (
	"errors"
	"fmt"
)

// Static errors for sequencing and mixing.
var (
	// ErrRateMismatch is returned when buffers of different sample rates are combined.
	ErrRateMismatch = errors.New("audio: sample rate mismatch")
	// ErrLengthMismatch is returned when mixing buffers of different lengths.
	ErrLengthMismatch = errors.New("audio: buffer length mismatch")
)

// ConcatenatedFrames returns the output length of Concatenate for clips of the
// given lengths separated by silenceFrames.
func ConcatenatedFrames(clipFrames []int, silenceFrames int) int {
	total := 0
	for i, n := range clipFrames {
		total += n
		if i < len(clipFrames)-1 {
			total += silenceFrames
		}
	}
	return total
}

// Concatenate joins clips in order with silence between consecutive clips.
// No silence follows the final clip. All clips must share the silence
// buffer's sample rate.
func Concatenate(clips []Buffer, silence Buffer) (Buffer, error) {
	lengths := make([]int, len(clips))
	for i, c := range clips {
		if c.SampleRate != silence.SampleRate {
			return Buffer{}, fmt.Errorf("%w: clip %d is %d Hz, want %d Hz",
				ErrRateMismatch, i, c.SampleRate, silence.SampleRate)
		}
		lengths[i] = c.Frames()
	}

	out := make([]float64, ConcatenatedFrames(lengths, silence.Frames()))
	offset := 0
	for i, c := range clips {
		offset += copy(out[offset:], c.Samples)
		if i < len(clips)-1 {
			// gap samples are already zero
			offset += silence.Frames()
		}
	}

	return Buffer{Samples: out, SampleRate: silence.SampleRate}, nil
}

// Mix adds tone scaled by volume onto dialogue and hard-clamps every sample
// to [-1, 1]. Both buffers must have identical length and rate.
func Mix(dialogue, tone Buffer, volume float64) (Buffer, error) {
	if dialogue.Frames() != tone.Frames() {
		return Buffer{}, fmt.Errorf("%w: dialogue has %d frames, room tone %d",
			ErrLengthMismatch, dialogue.Frames(), tone.Frames())
	}
	if dialogue.SampleRate != tone.SampleRate {
		return Buffer{}, fmt.Errorf("%w: dialogue %d Hz, room tone %d Hz",
			ErrRateMismatch, dialogue.SampleRate, tone.SampleRate)
	}

	out := make([]float64, dialogue.Frames())
	for i, d := range dialogue.Samples {
		out[i] = clamp(d + tone.Samples[i]*volume)
	}
	return Buffer{Samples: out, SampleRate: dialogue.SampleRate}, nil
}

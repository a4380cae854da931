// Package audio implements the signal-processing stages of the stitching
// pipeline: decoding, channel normalization, resampling, silence and room-tone
// synthesis, sequencing, mixing and WAV encoding.
//
// All stages after ToMono and Resample operate on Buffer, a mono sequence of
// float64 samples in [-1, 1] at a single sample rate.
package audio

import "time"

// DefaultSampleRate is the canonical output rate in Hz.
const DefaultSampleRate = 44100

// BitDepth is the bit depth of every encoded container. It is not configurable.
const BitDepth = 16

// Decoded is the output of a decoder: one slice of samples per channel, all of
// equal length, at the source sample rate.
type Decoded struct {
	// Channels holds the per-channel samples, normalized to [-1, 1].
	Channels [][]float64
	// SampleRate is the source sample rate in Hz.
	SampleRate int
}

// NumChannels returns the number of channels.
func (d Decoded) NumChannels() int {
	return len(d.Channels)
}

// Frames returns the number of sample frames per channel.
func (d Decoded) Frames() int {
	if len(d.Channels) == 0 {
		return 0
	}
	return len(d.Channels[0])
}

// Buffer is the canonical in-pipeline representation: mono float samples
// tagged with their sample rate.
type Buffer struct {
	Samples    []float64
	SampleRate int
}

// Frames returns the number of samples in the buffer.
func (b Buffer) Frames() int {
	return len(b.Samples)
}

// Seconds returns the buffer length in seconds.
func (b Buffer) Seconds() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// Duration returns the buffer length as a time.Duration.
func (b Buffer) Duration() time.Duration {
	return time.Duration(b.Seconds() * float64(time.Second))
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

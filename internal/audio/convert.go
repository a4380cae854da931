package audio

import (
	"math"
)

// ToMono downmixes a decoded buffer to a single channel by averaging all
// channels at each frame. Single-channel input is returned without copying.
func ToMono(d Decoded) Buffer {
	switch len(d.Channels) {
	case 0:
		return Buffer{Samples: []float64{}, SampleRate: d.SampleRate}
	case 1:
		return Buffer{Samples: d.Channels[0], SampleRate: d.SampleRate}
	}

	frames := d.Frames()
	n := float64(len(d.Channels))
	out := make([]float64, frames)
	for i := range frames {
		var sum float64
		for _, ch := range d.Channels {
			sum += ch[i]
		}
		out[i] = sum / n
	}
	return Buffer{Samples: out, SampleRate: d.SampleRate}
}

// Resample converts a mono buffer to targetRate using linear interpolation.
// If the rates already match, b is returned unchanged.
//
// With ratio = src/target the output holds floor(len/ratio) samples. Output
// sample i reads source position i*ratio; the right-hand neighbour is clamped
// to the last source sample at the tail.
func Resample(b Buffer, targetRate int) Buffer {
	if b.SampleRate == targetRate || targetRate <= 0 || b.SampleRate <= 0 {
		return b
	}

	ratio := float64(b.SampleRate) / float64(targetRate)
	n := int(math.Floor(float64(len(b.Samples)) / ratio))
	out := make([]float64, n)
	src := b.Samples

	for i := range n {
		pos := float64(i) * ratio
		k := int(math.Floor(pos))
		frac := pos - float64(k)
		if k >= len(src) {
			k = len(src) - 1
		}
		if k+1 < len(src) {
			out[i] = src[k]*(1-frac) + src[k+1]*frac
		} else {
			out[i] = src[k]
		}
	}
	return Buffer{Samples: out, SampleRate: targetRate}
}

package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/go-audio/wav"
)

// WAVHeaderSize is the size of the canonical PCM WAV header written by EncodeWAV.
const WAVHeaderSize = 44

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// Static errors for WAV handling.
var (
	// ErrInvalidWAV is returned when data is not a readable RIFF/WAVE stream.
	ErrInvalidWAV = errors.New("audio: invalid WAV data")
	// ErrUnsupportedFormat is returned for encodings the native decoder cannot read.
	ErrUnsupportedFormat = errors.New("audio: unsupported audio format")
)

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WAVE"
}

// DecodeWAV decodes an integer PCM WAV stream into per-channel float samples.
// Float and compressed WAV encodings, including WAVE_FORMAT_EXTENSIBLE with a
// non-PCM subformat, return ErrUnsupportedFormat. A stream with an empty data
// chunk decodes to zero frames.
func DecodeWAV(data []byte) (Decoded, error) {
	if !IsWAV(data) {
		return Decoded{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	info, err := scanWAV(data)
	if err != nil {
		return Decoded{}, err
	}
	if info.format != wavFormatPCM {
		return Decoded{}, fmt.Errorf("%w: WAV format code %#x", ErrUnsupportedFormat, info.format)
	}
	if info.channels < 1 || info.bitDepth < 8 || info.bitDepth > 32 {
		return Decoded{}, fmt.Errorf("%w: %d channels at %d bits", ErrUnsupportedFormat, info.channels, info.bitDepth)
	}
	if info.dataSize == 0 {
		empty := make([][]float64, info.channels)
		for c := range empty {
			empty[c] = []float64{}
		}
		return Decoded{Channels: empty, SampleRate: info.sampleRate}, nil
	}

	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		if err := d.Err(); err != nil {
			return Decoded{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}
		return Decoded{}, fmt.Errorf("%w: malformed fmt chunk", ErrInvalidWAV)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: read PCM: %v", ErrInvalidWAV, err)
	}

	channels := int(d.NumChans)
	bitDepth := int(d.BitDepth)
	if buf.SourceBitDepth > 0 {
		bitDepth = buf.SourceBitDepth
	}
	if channels < 1 || bitDepth < 8 || bitDepth > 32 {
		return Decoded{}, fmt.Errorf("%w: %d channels at %d bits", ErrUnsupportedFormat, channels, bitDepth)
	}

	frames := len(buf.Data) / channels
	out := make([][]float64, channels)
	for c := range out {
		out[c] = make([]float64, frames)
	}

	scale := float64(int64(1) << (bitDepth - 1))
	for i := range frames {
		for c := range channels {
			out[c][i] = clamp(float64(signedSample(buf.Data[i*channels+c], bitDepth)) / scale)
		}
	}

	return Decoded{Channels: out, SampleRate: int(d.SampleRate)}, nil
}

// wavInfo is the subset of the fmt and data chunks DecodeWAV checks before
// handing the stream to go-audio.
type wavInfo struct {
	// format is the effective format code; for WAVE_FORMAT_EXTENSIBLE it is
	// the subformat.
	format     int
	channels   int
	sampleRate int
	bitDepth   int
	dataSize   int
	hasData    bool
}

// scanWAV walks the RIFF chunks of data. go-audio drops the extensible fmt
// extension, so the subformat is read here.
func scanWAV(data []byte) (wavInfo, error) {
	le := binary.LittleEndian
	var (
		info   wavInfo
		hasFmt bool
	)

	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(le.Uint32(data[off+4 : off+8]))
		body := data[off+8 : min(off+8+size, len(data))]

		switch id {
		case "fmt ":
			if len(body) < 16 {
				return wavInfo{}, fmt.Errorf("%w: fmt chunk is %d bytes", ErrInvalidWAV, len(body))
			}
			info.format = int(le.Uint16(body[0:2]))
			info.channels = int(le.Uint16(body[2:4]))
			info.sampleRate = int(le.Uint32(body[4:8]))
			info.bitDepth = int(le.Uint16(body[14:16]))
			if info.format == wavFormatExtensible {
				// cbSize(2) validBits(2) channelMask(4), then the subformat GUID
				if len(body) < 26 {
					return wavInfo{}, fmt.Errorf("%w: truncated extensible fmt chunk", ErrInvalidWAV)
				}
				info.format = int(le.Uint16(body[24:26]))
			}
			hasFmt = true
		case "data":
			info.dataSize = len(body)
			info.hasData = true
		}
		if info.hasData && hasFmt {
			break
		}
		off += 8 + size + size&1
	}

	if !hasFmt {
		return wavInfo{}, fmt.Errorf("%w: missing fmt chunk", ErrInvalidWAV)
	}
	if !info.hasData {
		return wavInfo{}, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
	}
	return info, nil
}

// signedSample maps a raw PCM integer onto a signed range centred on zero.
// 8-bit WAV samples are unsigned; wider samples are two's complement.
func signedSample(v, bitDepth int) int {
	switch {
	case bitDepth == 8:
		return v - 128
	case bitDepth <= 16:
		return int(int16(v))
	case bitDepth <= 24:
		v &= 0xFFFFFF
		if v >= 1<<23 {
			v -= 1 << 24
		}
		return v
	default:
		return int(int32(v))
	}
}

// SampleToInt16 converts a float sample to signed 16-bit PCM. The sample is
// clamped to [-1, 1]; negative values scale by 32768, the rest by 32767.
func SampleToInt16(s float64) int16 {
	s = clamp(s)
	if s < 0 {
		return int16(s * 0x8000)
	}
	return int16(s * 0x7FFF)
}

// EncodeWAV serializes a mono buffer as a 16-bit PCM WAV file with a 44-byte
// header followed by little-endian samples.
func EncodeWAV(b Buffer) []byte {
	const (
		numChannels   = 1
		bytesPerFrame = numChannels * BitDepth / 8
	)

	dataSize := b.Frames() * bytesPerFrame
	out := make([]byte, WAVHeaderSize+dataSize)
	le := binary.LittleEndian

	copy(out[0:4], "RIFF")
	le.PutUint32(out[4:8], uint32(WAVHeaderSize+dataSize-8))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	le.PutUint32(out[16:20], 16) // fmt chunk size
	le.PutUint16(out[20:22], wavFormatPCM)
	le.PutUint16(out[22:24], numChannels)
	le.PutUint32(out[24:28], uint32(b.SampleRate))
	le.PutUint32(out[28:32], uint32(b.SampleRate*bytesPerFrame))
	le.PutUint16(out[32:34], bytesPerFrame)
	le.PutUint16(out[34:36], BitDepth)
	copy(out[36:40], "data")
	le.PutUint32(out[40:44], uint32(dataSize))

	off := WAVHeaderSize
	for _, s := range b.Samples {
		le.PutUint16(out[off:], uint16(SampleToInt16(s)))
		off += bytesPerFrame
	}
	return out
}

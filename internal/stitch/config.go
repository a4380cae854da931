package stitch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/tableread/internal/audio"
)

// Default pipeline settings.
const (
	DefaultPauseDurationMs = 750
	DefaultRoomToneVolume  = 0.08
	DefaultSampleRate      = audio.DefaultSampleRate
)

// ErrInvalidConfig is returned when a Config fails validation.
var ErrInvalidConfig = errors.New("stitch: invalid config")

// Config controls pacing, ambience and output rate of a stitch.
// The output bit depth is always audio.BitDepth.
type Config struct {
	// PauseDurationMs is the silence inserted between consecutive clips,
	// at most one minute.
	PauseDurationMs int `json:"pause_duration_ms" validate:"gte=0,lte=60000"`
	// RoomToneVolume scales the room tone before it is mixed in.
	RoomToneVolume float64 `json:"room_tone_volume" validate:"gte=0,lte=1"`
	// SampleRate is the output rate every clip is resampled to, at most
	// 384 kHz.
	SampleRate int `json:"sample_rate" validate:"gt=0,lte=384000"`
}

// DefaultConfig returns a 750 ms pause, 0.08 room tone and 44.1 kHz output.
func DefaultConfig() Config {
	return Config{
		PauseDurationMs: DefaultPauseDurationMs,
		RoomToneVolume:  DefaultRoomToneVolume,
		SampleRate:      DefaultSampleRate,
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

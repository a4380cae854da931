package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
)

// FFmpegTranscoder converts arbitrary audio files to 16-bit PCM WAV using the
// ffmpeg CLI. Channel layout and sample rate are preserved so that channel
// normalization and resampling stay inside the pipeline.
type FFmpegTranscoder struct {
	ffmpegPath string
}

// NewFFmpegTranscoder creates a new FFmpegTranscoder.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpegTranscoder(ffmpegPath string) *FFmpegTranscoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegTranscoder{ffmpegPath: ffmpegPath}
}

// Available reports whether the ffmpeg binary can be found.
func (t *FFmpegTranscoder) Available() bool {
	_, err := exec.LookPath(t.ffmpegPath)
	return err == nil
}

// ToWAV transcodes inputPath into outputPath as pcm_s16le WAV.
func (t *FFmpegTranscoder) ToWAV(ctx context.Context, inputPath, outputPath string) error {
	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", inputPath)
	}

	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-f", "wav",
		outputPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg error: %w, stderr: %s", err, stderr.String())
	}

	return nil
}

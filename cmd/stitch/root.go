package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	"github.com/maauso/tableread/internal/audio"
	"github.com/maauso/tableread/internal/bootstrap"
	"github.com/maauso/tableread/internal/clip"
	"github.com/maauso/tableread/internal/config"
	"github.com/maauso/tableread/internal/stitch"
)

// cliSchemes are the clip sources the command reads. Bare paths resolve to
// "file".
var cliSchemes = []string{"file", "http", "https", "s3"}

type stitchFlags struct {
	output         string
	pauseMs        int
	roomToneVolume float64
	sampleRate     int
	concurrency    int
	seed           uint64
}

func newRootCommand(env envconfig.Lookuper) *cobra.Command {
	var flags stitchFlags

	cmd := &cobra.Command{
		Use:           "stitch [flags] CLIP...",
		Short:         "Join dialogue clips into one recording with pauses and room tone",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWith(cmd.Context(), env)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runStitch(cmd, cfg, flags, args)
		},
	}

	defaults := stitch.DefaultConfig()
	cmd.Flags().StringVarP(&flags.output, "output", "o", "tableread.wav", "Path of the WAV file to write")
	cmd.Flags().IntVar(&flags.pauseMs, "pause-ms", defaults.PauseDurationMs, "Silence between clips in milliseconds")
	cmd.Flags().Float64Var(&flags.roomToneVolume, "room-tone-volume", defaults.RoomToneVolume, "Room tone level from 0 to 1")
	cmd.Flags().IntVar(&flags.sampleRate, "sample-rate", defaults.SampleRate, "Output sample rate in Hz")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "Clips fetched in parallel (default MAX_CONCURRENT_FETCHES)")
	cmd.Flags().Uint64Var(&flags.seed, "seed", 0, "Seed for reproducible room tone (0 picks a random seed)")

	return cmd
}

func runStitch(cmd *cobra.Command, cfg *config.Config, flags stitchFlags, args []string) error {
	logger := cfg.NewLoggerTo(cmd.ErrOrStderr())

	// Flags win over env defaults only when set explicitly
	pipelineCfg := cfg.PipelineConfig()
	if cmd.Flags().Changed("pause-ms") {
		pipelineCfg.PauseDurationMs = flags.pauseMs
	}
	if cmd.Flags().Changed("room-tone-volume") {
		pipelineCfg.RoomToneVolume = flags.roomToneVolume
	}
	if cmd.Flags().Changed("sample-rate") {
		pipelineCfg.SampleRate = flags.sampleRate
	}
	if flags.concurrency > 0 {
		cfg.MaxConcurrentFetches = flags.concurrency
	}

	outPath, err := filepath.Abs(flags.output)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	opts := []stitch.Option{stitch.WithPublisher(fileWriter(outPath))}
	if flags.seed != 0 {
		seed := flags.seed
		opts = append(opts, stitch.WithRandomSource(func() audio.RandomSource {
			return rand.New(rand.NewPCG(seed, seed))
		}))
	}

	pipeline, err := bootstrap.NewPipeline(cfg, logger, bootstrap.PipelineOptions{
		Schemes: cliSchemes,
		Stitch:  opts,
	})
	if err != nil {
		return fmt.Errorf("initialize pipeline: %w", err)
	}

	sources := clip.FromURLs(args)
	for i, src := range sources {
		if !pipeline.Fetcher.Allows(src) {
			return fmt.Errorf("clip %d (%s): %w", i, src, clip.ErrUnsupportedScheme)
		}
	}

	progress := progressPrinter(cmd.ErrOrStderr())
	res, err := pipeline.Stitcher.Stitch(cmd.Context(), sources, pipelineCfg, progress)
	if err != nil {
		var se *stitch.StageError
		if errors.As(err, &se) && errors.Is(se.Err, context.Canceled) {
			return context.Canceled
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%.2fs, %d Hz)\n", res.Handle, res.DurationSeconds, res.SampleRate)
	return nil
}

// fileWriter publishes the recording to path through a temporary file in
// the same directory.
func fileWriter(path string) stitch.PublisherFunc {
	return func(ctx context.Context, _ string, wav []byte) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("create output dir: %w", err)
		}
		tmp := path + ".part"
		if err := os.WriteFile(tmp, wav, 0o644); err != nil {
			_ = os.Remove(tmp)
			return "", fmt.Errorf("write output: %w", err)
		}
		if err := os.Rename(tmp, path); err != nil {
			_ = os.Remove(tmp)
			return "", fmt.Errorf("write output: %w", err)
		}
		return path, nil
	}
}

func progressPrinter(w io.Writer) stitch.ProgressFunc {
	return func(p stitch.Progress) {
		fmt.Fprintf(w, "%3d%% [%s] %d/%d %s\n", p.Percent(), p.Stage, p.Current, p.Total, p.Message)
	}
}

// Command sonora-play is a small CLI demo for the engine: it opens the
// default audio output, plays a WAV file through the player's mixer
// graph, and optionally re-triggers the same audio as a sampler voice
// so both the file-streaming and generator-driven playback paths get
// exercised from one binary.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/intuitionamiga/sonora"
	"github.com/intuitionamiga/sonora/player"
	"github.com/intuitionamiga/sonora/sampler"
	srcpkg "github.com/intuitionamiga/sonora/source"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "sonora-play",
		Usage: "play a WAV file through the sonora mixer graph",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "path to a PCM16 or float32 WAV file",
				Required: true,
			},
			&cli.Float64Flag{
				Name:  "volume",
				Value: 1.0,
				Usage: "initial linear gain, 0..",
			},
			&cli.Float64Flag{
				Name:  "pan",
				Value: 0,
				Usage: "initial stereo pan, -1 (left) to 1 (right)",
			},
			&cli.IntFlag{
				Name:  "note",
				Value: -1,
				Usage: "if set, also trigger the file as a sampler voice at this MIDI note",
			},
			&cli.DurationFlag{
				Name:  "run-for",
				Value: 5 * time.Second,
				Usage: "how long to let playback run before exiting",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("sonora-play failed", "error", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	f, err := os.Open(c.String("file"))
	if err != nil {
		return fmt.Errorf("opening %s: %w", c.String("file"), err)
	}
	defer f.Close()

	wav, err := srcpkg.OpenWAV(f)
	if err != nil {
		return fmt.Errorf("decoding wav: %w", err)
	}

	output, err := newOutput(wav.SampleRate(), 2)
	if err != nil {
		return fmt.Errorf("opening audio output: %w", err)
	}

	p, err := player.New(output)
	if err != nil {
		return fmt.Errorf("creating player: %w", err)
	}
	defer p.Close()

	opts := player.DefaultPlaybackOptions()
	opts.Volume = c.Float64("volume")
	opts.Pan = c.Float64("pan")

	// PlayFile parses its own WAV header, so it needs a fresh reader
	// rather than the one already consumed decoding SampleRate() above.
	playbackFile, err := os.Open(c.String("file"))
	if err != nil {
		return fmt.Errorf("reopening %s for playback: %w", c.String("file"), err)
	}
	defer playbackFile.Close()

	fh, err := p.PlayFile(playbackFile, opts)
	if err != nil {
		return fmt.Errorf("playing file: %w", err)
	}
	slog.Info("playing file", "path", c.String("file"), "volume", opts.Volume, "pan", opts.Pan)

	if note := c.Int("note"); note >= 0 {
		samples, channels, err := decodeWAVFile(c.String("file"))
		if err != nil {
			return fmt.Errorf("decoding sample buffer: %w", err)
		}
		voice := sampler.New(8, wav.SampleRate(), 2)
		voice.SetSampleBuffer(samples, channels)
		gh, err := p.AddGenerator(voice, nil)
		if err != nil {
			return fmt.Errorf("adding generator: %w", err)
		}
		gh.NoteOn(note, 1.0)
		slog.Info("triggered sampler note", "note", note)
	}

	p.Start()
	defer p.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runFor := c.Duration("run-for")
	timer := time.NewTimer(runFor)
	defer timer.Stop()

	for {
		select {
		case <-sigCh:
			slog.Info("interrupted")
			return nil
		case <-timer.C:
			slog.Info("run-for elapsed, stopping")
			return nil
		case ev, ok := <-p.Events():
			if !ok {
				return nil
			}
			switch ev.Kind {
			case player.EventStopped:
				slog.Info("source stopped", "name", ev.Name, "exhausted", ev.Exhausted)
				if ev.ID == fh.ID() {
					return nil
				}
			case player.EventPosition:
				slog.Debug("position", "name", ev.Name, "position", ev.Position)
			}
		}
	}
}

// decodeWAVFile fully decodes path into an interleaved float32 buffer,
// for feeding sampler.Sampler.SetSampleBuffer (which needs the whole
// sample in memory rather than a streaming Source).
func decodeWAVFile(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	wav, err := srcpkg.OpenWAV(f)
	if err != nil {
		return nil, 0, err
	}

	const blockFrames = 4096
	channels := wav.ChannelCount()
	var all []float32
	block := make([]float32, blockFrames*channels)
	for {
		n, err := wav.Write(block, sonora.SourceTime{})
		if err != nil {
			return nil, 0, err
		}
		all = append(all, block[:n*channels]...)
		if wav.IsExhausted() || n == 0 {
			break
		}
	}
	return all, channels, nil
}

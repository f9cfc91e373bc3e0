// Command audioplay decodes an audio file and plays it through the engine
// graph: buffer source -> gain -> stereo panner -> destination.
//
// Examples:
//
//	audioplay track.wav
//	audioplay --gain 0.5 --pan -0.3 track.mp3
//	audioplay --loop --rate 1.2 loop.ogg
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-audio/decode"
	"github.com/cwbudde/algo-audio/engine"
)

var (
	flagGain       float32
	flagPan        float32
	flagRate       float32
	flagLoop       bool
	flagSampleRate float64
)

func main() {
	root := &cobra.Command{
		Use:   "audioplay <file>",
		Short: "Decode an audio file and play it through the audio graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return play(args[0])
		},
		SilenceUsage: true,
	}

	root.Flags().Float32Var(&flagGain, "gain", 1, "linear output gain")
	root.Flags().Float32Var(&flagPan, "pan", 0, "stereo pan position in [-1, 1]")
	root.Flags().Float32Var(&flagRate, "rate", 1, "playback rate")
	root.Flags().BoolVar(&flagLoop, "loop", false, "loop the file until interrupted")
	root.Flags().Float64Var(&flagSampleRate, "sample-rate", 44100, "context sample rate")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func play(path string) error {
	buf, err := decode.DecodeFile(path, flagSampleRate)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	ctx, err := engine.NewContext(engine.WithSampleRate(flagSampleRate))
	if err != nil {
		return err
	}
	defer ctx.Close()

	src, err := ctx.CreateBufferSource(&engine.BufferSourceOptions{
		Buffer:       buf,
		Loop:         flagLoop,
		PlaybackRate: flagRate,
	})
	if err != nil {
		return err
	}
	gain, err := ctx.CreateGain(&engine.GainOptions{Gain: flagGain})
	if err != nil {
		return err
	}
	panner, err := ctx.CreateStereoPanner(&engine.StereoPannerOptions{Pan: flagPan})
	if err != nil {
		return err
	}

	if err := src.Connect(gain); err != nil {
		return err
	}
	if err := gain.Connect(panner); err != nil {
		return err
	}
	if err := panner.Connect(ctx.Destination()); err != nil {
		return err
	}

	done := make(chan struct{})
	src.OnEnded(func() { close(done) })

	if err := ctx.Resume(); err != nil {
		return err
	}
	if err := src.Start(0); err != nil {
		return err
	}

	duration := time.Duration(buf.Duration()/float64(flagRate)*float64(time.Second)) + time.Second
	fmt.Printf("playing %s (%.1fs at %.0f Hz)\n", path, buf.Duration(), buf.SampleRate())

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	if flagLoop {
		<-interrupt
		return nil
	}
	select {
	case <-done:
	case <-interrupt:
	case <-time.After(duration):
	}
	return nil
}

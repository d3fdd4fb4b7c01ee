package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/prateekmedia/flacreframe/internal/reframe"
)

var (
	flagDump      bool
	flagDoCRC     bool
	flagIndexSecs float64
	flagSeek      float64
)

var rootCmd = &cobra.Command{
	Use:   "flacreframe [file]",
	Short: "Reframe a FLAC file (or stdin) into access units",
	Long:  "Parses a FLAC file, confirming frame boundaries with resync-tolerant scanning, and prints a summary of every emitted access unit.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  run,
}

func init() {
	rootCmd.Flags().BoolVar(&flagDump, "dump", false, "print decoder config and per-frame CTS/duration/offset")
	rootCmd.Flags().BoolVar(&flagDoCRC, "docrc", false, "validate every frame's CRC-16 body")
	rootCmd.Flags().Float64Var(&flagIndexSecs, "index", 1.0, "seek index granularity in seconds (0 disables)")
	rootCmd.Flags().Float64Var(&flagSeek, "seek", 0, "start playback at this many seconds into the file, via the seek index (file input only)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	var data []byte
	var err error
	var fileSize uint64
	isFile := false

	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		fileSize = uint64(len(data))
		isFile = true
	} else {
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
	}

	if mime, score := reframe.Probe(data); score != reframe.ProbeSupported {
		return fmt.Errorf("probe: unrecognized input (mime=%q)", mime)
	}

	rf := reframe.New(reframe.Options{
		IndexSeconds: flagIndexSecs,
		DoCRC:        flagDoCRC,
		IsFile:       isFile,
	}, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	if isFile {
		rf.SetFileSize(fileSize)
	}

	if flagSeek > 0 && isFile {
		ix, _, err := reframe.BuildIndex(data, flagIndexSecs)
		if err != nil {
			return fmt.Errorf("build index: %w", err)
		}
		rf.SetIndex(ix)
	}

	outs, err := rf.Process(reframe.Packet{Data: data})
	if err != nil {
		return fmt.Errorf("process: %w", err)
	}

	if flagSeek > 0 && isFile {
		seekTo, wantSeek := rf.HandlePlay(flagSeek)
		if wantSeek {
			fmt.Fprintf(cmd.OutOrStdout(), "seek: requested %.3fs, resuming at byte offset %d\n", flagSeek, seekTo)
			seekOuts, err := rf.Process(reframe.Packet{Data: data[seekTo:]})
			if err != nil {
				return fmt.Errorf("process after seek: %w", err)
			}
			outs = seekOuts
		}
	}

	flushOuts, err := rf.Flush()
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	outs = append(outs, flushOuts...)

	out := cmd.OutOrStdout()

	var totalSamples uint64
	for i, o := range outs {
		totalSamples += o.Duration
		if flagDump {
			if o.ConfigChanged {
				fmt.Fprintf(out, "decoder_config: %d bytes, sample_rate=%d channels=%d bps=%d\n",
					len(o.DecoderConfig), o.SampleRate, o.Channels, o.BitsPerSample)
			}
			fmt.Fprintf(out, "frame[%d] cts=%d duration=%d bytes=%d", i, o.CTS, o.Duration, len(o.Data))
			if o.HasByteOffset {
				fmt.Fprintf(out, " offset=%d", o.ByteOffset)
			}
			fmt.Fprintln(out)
		}
	}

	fmt.Fprintf(out, "frames: %d\n", len(outs))
	fmt.Fprintf(out, "samples: %d\n", totalSamples)
	if sampleRate, channels, bitsPerSample, _ := rf.StreamInfo(); sampleRate > 0 {
		fmt.Fprintf(out, "sample_rate: %d\n", sampleRate)
		fmt.Fprintf(out, "channels: %d\n", channels)
		fmt.Fprintf(out, "bits_per_sample: %d\n", bitsPerSample)
	}

	return nil
}

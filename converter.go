package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	ffmpeg_go "github.com/u2takey/ffmpeg-go"
)

// Sample rate whisper models are trained on.
const whisperSampleRate = 16000

type Converter struct {
	// ffmpeg binary to run, "ffmpeg" from PATH if empty.
	bin string
}

var converter Converter

// ConvertToWAV16k transcodes any audio ffmpeg understands into a 16 kHz mono
// signed 16-bit WAV file at outPath.
func (c *Converter) ConvertToWAV16k(ctx context.Context, inPath, outPath string) error {
	slog.Debug("converting to wav", "in", inPath, "out", outPath)

	args := ffmpeg_go.KwArgs{"format": "wav", "c:a": "pcm_s16le", "ac": 1, "ar": whisperSampleRate}
	ffCmd := ffmpeg_go.Input(inPath).Output(outPath, args).OverWriteOutput().Compile()

	// Running through our own Cmd so ffmpeg gets killed with the context.
	bin := ffCmd.Args[0]
	if c.bin != "" {
		bin = c.bin
	}
	cmd := NewCommand(ctx, bin, ffCmd.Args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(outPath)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("error converting to wav: %w: %s", err, lastLines(stderr.String(), 3))
	}
	return nil
}

// ConvertToPCM16k returns the audio file as 16 kHz mono float32 samples in
// [-1, 1]. Common containers are decoded natively, everything else goes
// through ffmpeg.
func (c *Converter) ConvertToPCM16k(ctx context.Context, filePath string) ([]float32, error) {
	samples, err := decodeAudioFile(filePath)
	if err == nil {
		return samples, nil
	}
	if !errors.Is(err, errUnsupportedFormat) {
		slog.Debug("native decode failed, falling back to ffmpeg", "file", filePath, "error", err)
	}

	wavPath := fileNameWithoutExt(filePath) + "-16k.wav"
	defer os.Remove(wavPath)
	if err := c.ConvertToWAV16k(ctx, filePath, wavPath); err != nil {
		return nil, err
	}

	f, err := os.Open(wavPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeWAV(f)
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

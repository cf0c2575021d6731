//go:build opus

package main

import (
	"errors"
	"fmt"
	"io"

	popus "github.com/pekim/opus"
)

// Opus always decodes at 48 kHz.
const opusSampleRate = 48000

func decodeOggOpus(r io.ReadSeeker) ([]float32, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("can't open ogg opus: %w", err)
	}
	defer dec.Destroy()

	channels := dec.ChannelCount()
	if channels <= 0 {
		channels = 1
	}

	var x []float32
	buf := make([]int16, opusSampleRate/2*channels)
	for {
		n, err := dec.Read(buf) // n is samples per channel
		for _, v := range buf[:n*channels] {
			x = append(x, float32(v)/32768)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("can't decode ogg opus: %w", err)
		}
	}
	if len(x) == 0 {
		return nil, errors.New("empty ogg opus stream")
	}
	return toMono16k(x, channels, opusSampleRate), nil
}

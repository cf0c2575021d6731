//go:build !opus

package main

import (
	"errors"
	"io"
)

// Without libopusfile Opus streams are left to ffmpeg.
func decodeOggOpus(io.ReadSeeker) ([]float32, error) {
	return nil, errors.New("built without opus support")
}

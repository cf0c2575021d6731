//go:build !whisper

package main

import (
	"context"
	"errors"
)

// Without the bindings the external whisper.cpp binary is the default.
const defaultEngine = engineCLI

var errNoWhisper = errors.New("built without whisper.cpp, rebuild with -tags whisper or use another engine")

type WhisperTranscriber struct{}

func NewWhisperTranscriber(string, int) (*WhisperTranscriber, error) {
	return nil, errNoWhisper
}

func (t *WhisperTranscriber) Close() error { return nil }

func (t *WhisperTranscriber) Transcribe(context.Context, string, ReqParamsSTT) ([]TranscriptSegment, error) {
	return nil, &TranscriptionError{Engine: string(engineWhisper), Err: errNoWhisper}
}

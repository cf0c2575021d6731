package main

import (
	"context"
	"fmt"
	"strings"
)

// TranscriptSegment is a contiguous span of recognized speech. Start and End
// are in seconds from the beginning of the audio.
type TranscriptSegment struct {
	Start float64
	End   float64
	Text  string
}

// Transcriber turns a local audio file into segments ordered by start time.
// Implementations return a *TranscriptionError on failure.
type Transcriber interface {
	Transcribe(ctx context.Context, filePath string, reqParams ReqParamsSTT) ([]TranscriptSegment, error)
}

type engineType string

const (
	engineWhisper engineType = "whisper"
	engineCLI     engineType = "cli"
	engineOpenAI  engineType = "openai"
)

var engineTypes = []engineType{engineWhisper, engineCLI, engineOpenAI}

// Model tiers, from faster and less accurate to slower and more accurate.
var modelTypes = []string{
	"tiny", "tiny.en",
	"base", "base.en",
	"small", "small.en",
	"medium", "medium.en",
	"large",
}

func newTranscriber(p paramsType) (Transcriber, error) {
	switch engineType(p.Engine) {
	case engineWhisper:
		t, err := NewWhisperTranscriber(p.modelFilePath(), p.Threads)
		if err != nil {
			return nil, err
		}
		return t, nil
	case engineCLI:
		if p.STTBin == "" {
			return nil, fmt.Errorf("stt bin not set, set STT_BIN or -stt-bin to the whisper.cpp cli binary")
		}
		return NewCLITranscriber(p.STTBin, p.modelFilePath(), p.Threads), nil
	case engineOpenAI:
		if p.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai api key not set")
		}
		return NewOpenAITranscriber(p.OpenAIAPIKey, p.OpenAIBaseURL), nil
	}

	var names []string
	for _, e := range engineTypes {
		names = append(names, string(e))
	}
	return nil, fmt.Errorf("unknown engine %q (supported: %s)", p.Engine, strings.Join(names, ", "))
}

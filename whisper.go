//go:build whisper

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

const defaultEngine = engineWhisper

// WhisperTranscriber runs a whisper.cpp model loaded once at startup.
type WhisperTranscriber struct {
	// The model holds a single whisper context, inference calls must not
	// overlap.
	mutex   sync.Mutex
	model   whisper.Model
	threads uint
}

func NewWhisperTranscriber(modelPath string, threads int) (*WhisperTranscriber, error) {
	slog.Info("loading whisper model", "path", modelPath)
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("can't load whisper model %s: %w", modelPath, err)
	}
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	return &WhisperTranscriber{model: m, threads: uint(threads)}, nil
}

func (t *WhisperTranscriber) Close() error {
	return t.model.Close()
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, filePath string, reqParams ReqParamsSTT) ([]TranscriptSegment, error) {
	segments, err := t.transcribe(ctx, filePath, reqParams)
	if err != nil {
		return nil, &TranscriptionError{Engine: string(engineWhisper), Err: err}
	}
	return segments, nil
}

func (t *WhisperTranscriber) transcribe(ctx context.Context, filePath string, reqParams ReqParamsSTT) ([]TranscriptSegment, error) {
	samples, err := converter.ConvertToPCM16k(ctx, filePath)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, errors.New("no audio samples")
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	wctx, err := t.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}
	if t.model.IsMultilingual() {
		lang := reqParams.Language
		if lang == "" {
			lang = "auto"
		}
		if err := wctx.SetLanguage(lang); err != nil {
			return nil, fmt.Errorf("set language %s: %w", lang, err)
		}
		wctx.SetTranslate(reqParams.Translate)
	}
	wctx.SetThreads(t.threads)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("process: %w", err)
	}

	var segments []TranscriptSegment
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("next segment: %w", err)
		}
		segments = append(segments, TranscriptSegment{
			Start: s.Start.Seconds(),
			End:   s.End.Seconds(),
			Text:  s.Text,
		})
	}
	return segments, nil
}

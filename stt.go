package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"regexp"
	"strconv"
)

// CLITranscriber runs an external whisper.cpp cli binary for every request.
type CLITranscriber struct {
	bin       string
	modelPath string
	threads   int
}

func NewCLITranscriber(bin, modelPath string, threads int) *CLITranscriber {
	return &CLITranscriber{bin: bin, modelPath: modelPath, threads: threads}
}

var sttProgressRegex = regexp.MustCompile(`progress\s*=\s*(\d+)%`)

type whisperCLIOutput struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func (t *CLITranscriber) Transcribe(ctx context.Context, filePath string, reqParams ReqParamsSTT) ([]TranscriptSegment, error) {
	segments, err := t.transcribe(ctx, filePath, reqParams)
	if err != nil {
		return nil, &TranscriptionError{Engine: string(engineCLI), Err: err}
	}
	return segments, nil
}

func (t *CLITranscriber) transcribe(ctx context.Context, filePath string, reqParams ReqParamsSTT) ([]TranscriptSegment, error) {
	inFilePath := fileNameWithoutExt(filePath) + "-stt.wav"
	outFileBase := fileNameWithoutExt(filePath) + "-stt"
	outFilePath := outFileBase + ".json"
	defer os.Remove(inFilePath)
	defer os.Remove(outFilePath)

	if err := converter.ConvertToWAV16k(ctx, filePath, inFilePath); err != nil {
		return nil, err
	}

	args := []string{"-m", t.modelPath, "-f", inFilePath, "-oj", "-of", outFileBase, "-pp"}
	if reqParams.Language != "" {
		args = append(args, "-l", reqParams.Language)
	} else {
		args = append(args, "-l", "auto")
	}
	if reqParams.Translate {
		args = append(args, "-tr")
	}
	if t.threads > 0 {
		args = append(args, "-t", strconv.Itoa(t.threads))
	}
	cmd := NewCommand(ctx, t.bin, args...)
	cmd.Dir = path.Dir(t.bin)

	var lastLine string
	canceled, err := cmd.RunAndProcessOutput(func(line string) {
		if match := sttProgressRegex.FindStringSubmatch(line); len(match) > 1 {
			slog.Debug("stt progress", "file", filePath, "percent", match[1])
			return
		}
		lastLine = line
	})
	if canceled {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("STT error: %w: %s", err, lastLine)
	}

	return readWhisperCLIOutput(outFilePath)
}

func readWhisperCLIOutput(outFilePath string) ([]TranscriptSegment, error) {
	data, err := os.ReadFile(outFilePath)
	if err != nil {
		return nil, fmt.Errorf("can't read stt output file: %w", err)
	}
	var out whisperCLIOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("can't parse stt output file: %w", err)
	}

	segments := make([]TranscriptSegment, 0, len(out.Transcription))
	for _, s := range out.Transcription {
		segments = append(segments, TranscriptSegment{
			Start: float64(s.Offsets.From) / 1000,
			End:   float64(s.Offsets.To) / 1000,
			Text:  s.Text,
		})
	}
	return segments, nil
}

package main

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAITranscriber sends the file to the OpenAI Whisper API.
type OpenAITranscriber struct {
	client *openai.Client
}

// NewOpenAITranscriber talks to baseURL if set, which is useful for self-hosted
// OpenAI compatible servers.
func NewOpenAITranscriber(apiKey, baseURL string) *OpenAITranscriber {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAITranscriber{client: openai.NewClientWithConfig(config)}
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, filePath string, reqParams ReqParamsSTT) ([]TranscriptSegment, error) {
	req := openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: filePath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	}

	var resp openai.AudioResponse
	var err error
	if reqParams.Translate {
		resp, err = t.client.CreateTranslation(ctx, req)
	} else {
		req.Language = reqParams.Language
		resp, err = t.client.CreateTranscription(ctx, req)
	}
	if err != nil {
		return nil, &TranscriptionError{Engine: string(engineOpenAI), Err: err}
	}

	segments := make([]TranscriptSegment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segments = append(segments, TranscriptSegment{Start: s.Start, End: s.End, Text: s.Text})
	}
	return segments, nil
}

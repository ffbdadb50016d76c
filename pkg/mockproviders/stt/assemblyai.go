package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lumina-project/vad-bridge/pkg/mockproviders"
)

// AssemblyAISTT transcribes one fully-buffered utterance via AssemblyAI's
// upload -> submit -> poll flow.
type AssemblyAISTT struct {
	apiKey string
}

func NewAssemblyAISTT(apiKey string) *AssemblyAISTT {
	return &AssemblyAISTT{apiKey: apiKey}
}

func (s *AssemblyAISTT) Name() string {
	return "assemblyai-stt"
}

// pollInterval governs how often Transcribe checks transcript status; it is
// independent of mockproviders.RequestTimeout, which bounds each individual
// HTTP call made inside the poll loop, not the loop itself.
const pollInterval = 500 * time.Millisecond

func (s *AssemblyAISTT) Transcribe(ctx context.Context, audioPCM []byte, lang mockproviders.Language) (string, error) {
	uploadURL, err := s.upload(ctx, audioPCM)
	if err != nil {
		return "", fmt.Errorf("%s: upload: %w", s.Name(), err)
	}

	transcriptID, err := s.submit(ctx, uploadURL, lang)
	if err != nil {
		return "", fmt.Errorf("%s: submit: %w", s.Name(), err)
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(pollInterval):
			text, status, err := s.getTranscript(ctx, transcriptID)
			if err != nil {
				return "", fmt.Errorf("%s: poll: %w", s.Name(), err)
			}
			switch status {
			case "completed":
				return text, nil
			case "error":
				return "", fmt.Errorf("%s: transcription failed", s.Name())
			}
		}
	}
}

func (s *AssemblyAISTT) upload(ctx context.Context, audioPCM []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.assemblyai.com/v2/upload", bytes.NewReader(audioPCM))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", s.apiKey)

	resp, err := mockproviders.Client.Do(req)
	if err != nil {
		return "", err
	}

	var result struct {
		UploadURL string `json:"upload_url"`
	}
	if err := mockproviders.DecodeOrError(s.Name(), resp, &result); err != nil {
		return "", err
	}
	return result.UploadURL, nil
}

func (s *AssemblyAISTT) submit(ctx context.Context, uploadURL string, lang mockproviders.Language) (string, error) {
	payload := map[string]interface{}{
		"audio_url": uploadURL,
	}
	if lang != "" {
		payload["language_code"] = string(lang)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.assemblyai.com/v2/transcript", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := mockproviders.Client.Do(req)
	if err != nil {
		return "", err
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := mockproviders.DecodeOrError(s.Name(), resp, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

func (s *AssemblyAISTT) getTranscript(ctx context.Context, id string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.assemblyai.com/v2/transcript/"+id, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", s.apiKey)

	resp, err := mockproviders.Client.Do(req)
	if err != nil {
		return "", "", err
	}

	var result struct {
		Status string `json:"status"`
		Text   string `json:"text"`
	}
	if err := mockproviders.DecodeOrError(s.Name(), resp, &result); err != nil {
		return "", "", err
	}
	return result.Text, result.Status, nil
}

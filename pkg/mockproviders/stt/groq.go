package stt

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/lumina-project/vad-bridge/pkg/audio"
	"github.com/lumina-project/vad-bridge/pkg/mockproviders"
)

// GroqSTT wraps raw PCM in a WAV container (Groq's Whisper endpoint expects
// a file, not a raw stream) and uploads it as multipart form data.
type GroqSTT struct {
	apiKey     string
	url        string
	model      string
	sampleRate int
}

func NewGroqSTT(apiKey string, model string) *GroqSTT {
	if model == "" {
		model = "whisper-large-v3-turbo"
	}
	return &GroqSTT{
		apiKey:     apiKey,
		url:        "https://api.groq.com/openai/v1/audio/transcriptions",
		model:      model,
		sampleRate: mockproviders.DefaultSampleRate,
	}
}

// SetSampleRate overrides the rate the WAV header claims, for callers that
// capture at something other than the Bridge's fixed rate.
func (s *GroqSTT) SetSampleRate(rate int) {
	s.sampleRate = rate
}

func (s *GroqSTT) Transcribe(ctx context.Context, audioPCM []byte, lang mockproviders.Language) (string, error) {
	wavData := audio.NewWavBuffer(audioPCM, s.sampleRate)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", s.model); err != nil {
		return "", err
	}
	if lang != "" {
		if err := writer.WriteField("language", string(lang)); err != nil {
			return "", err
		}
	}

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, bytes.NewReader(wavData)); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := mockproviders.Client.Do(req)
	if err != nil {
		return "", err
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := mockproviders.DecodeOrError(s.Name(), resp, &result); err != nil {
		return "", err
	}
	return result.Text, nil
}

func (s *GroqSTT) Name() string {
	return "groq-stt"
}

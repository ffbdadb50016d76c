package mockproviders

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultSampleRate is the PCM sample rate every audio segment handed to a
// provider was captured at. The Bridge's Classifier fixes capture to this
// rate (see pkg/classifier.SampleRate); STT clients that wrap raw PCM into a
// WAV container default to it rather than guessing a rate of their own.
const DefaultSampleRate = 16000

// RequestTimeout bounds a single provider HTTP call. The mock backend runs
// each utterance through STT -> LLM -> TTS in its own runPipeline goroutine
// (cmd/mockbackend), so without a bound a provider call that hangs would
// leave that goroutine, and the reply to its utterance, stuck.
const RequestTimeout = 15 * time.Second

// Client is the HTTP client every provider shares, in place of
// http.DefaultClient's unbounded timeout.
var Client = &http.Client{Timeout: RequestTimeout}

// DecodeOrError reads resp's body as JSON into out on a 200 response, or
// formats a provider-tagged error from the raw body otherwise. It always
// closes resp.Body.
func DecodeOrError(provider string, resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: status %d: %s", provider, resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

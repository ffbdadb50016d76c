// Package mockproviders adapts cloud STT/LLM/TTS clients into the
// satellite reference backend (cmd/mockbackend) that exercises the Bridge's
// Backend Channel end-to-end in development and tests.
package mockproviders

import "context"

// Voice selects a synthesised-speech voice for a TTS provider.
type Voice string

const (
	VoiceF1 Voice = "F1"
	VoiceF2 Voice = "F2"
	VoiceM1 Voice = "M1"
	VoiceM2 Voice = "M2"
)

// Language selects a recognition/synthesis/generation locale.
type Language string

const (
	LanguageEn Language = "en"
	LanguageEs Language = "es"
	LanguageFr Language = "fr"
	LanguageDe Language = "de"
	LanguageJa Language = "ja"
	LanguageZh Language = "zh"
)

// Message is one turn in the canned-reply LLM stage's short conversation
// context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DefaultSystemPrompt is injected by an LLMProvider when the caller's
// message list carries no system turn of its own. Replies here are
// eventually spoken aloud by a TTSProvider, so the prompt asks for short,
// speakable sentences rather than the longer structured output a
// text-only chat UI could tolerate.
const DefaultSystemPrompt = "You are a voice assistant speaking through a text-to-speech voice. " +
	"Reply in one or two short, conversational sentences with no markdown, lists, or headings."

// STTProvider transcribes one fully-buffered speech segment — the mock
// backend's counterpart of a SentMirror entry — into text.
type STTProvider interface {
	Transcribe(ctx context.Context, audioPCM []byte, lang Language) (string, error)
	Name() string
}

// LLMProvider generates a short reply from the recognized text so the TTS
// stage has something to synthesize.
type LLMProvider interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	Name() string
}

// TTSProvider synthesizes a reply into PCM, either buffered or streamed in
// chunks as they become available.
type TTSProvider interface {
	Synthesize(ctx context.Context, text string, voice Voice, lang Language) ([]byte, error)
	StreamSynthesize(ctx context.Context, text string, voice Voice, lang Language, onChunk func([]byte) error) error
	Name() string
}

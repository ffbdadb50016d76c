// Command mockbackend is a reference backend process for development and
// integration testing: it listens on the three sockets a Bridge dials and
// runs a small real STT → LLM → TTS pipeline behind them, built from the
// adapted provider packages under pkg/mockproviders.
//
// It is satellite tooling, not part of the Bridge's CORE — see SPEC_FULL.md
// §3 and §5.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lumina-project/vad-bridge/pkg/backend"
	"github.com/lumina-project/vad-bridge/pkg/mockproviders"
	"github.com/lumina-project/vad-bridge/pkg/mockproviders/llm"
	"github.com/lumina-project/vad-bridge/pkg/mockproviders/stt"
	"github.com/lumina-project/vad-bridge/pkg/mockproviders/tts"
)

// idleFlushTimeout is how long the upstream reader waits without receiving
// new audio before treating whatever has accumulated as one complete
// utterance and running it through the pipeline.
const idleFlushTimeout = 500 * time.Millisecond

func main() {
	_ = godotenv.Load()

	upstreamAddr := flag.String("upstream", backend.DefaultUpstreamAddress, "upstream audio+control listen address")
	recognizerAddr := flag.String("recognizer", backend.DefaultRecognizerAddress, "recognizer downstream listen address")
	synthAddr := flag.String("synth", backend.DefaultSynthAddress, "synthesised-audio downstream listen address")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	srv := &backendServer{
		log:        log,
		sttClient:  selectSTT(log),
		llmClient:  selectLLM(log),
		ttsClient:  tts.NewLokutorTTS(os.Getenv("LOKUTOR_API_KEY")),
		recognizer: make(chan net.Conn, 1),
		synth:      make(chan net.Conn, 1),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go srv.serveRecognizer(ctx, *recognizerAddr)
	go srv.serveSynth(ctx, *synthAddr)
	srv.serveUpstream(ctx, *upstreamAddr)
}

func selectSTT(log *slog.Logger) mockproviders.STTProvider {
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		log.Info("using groq STT")
		return stt.NewGroqSTT(key, "whisper-large-v3")
	}
	log.Info("GROQ_API_KEY not set, using OpenAI STT with OPENAI_API_KEY (calls fail if it is empty)")
	return stt.NewOpenAISTT(os.Getenv("OPENAI_API_KEY"), "whisper-1")
}

func selectLLM(log *slog.Logger) mockproviders.LLMProvider {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		log.Info("using anthropic LLM")
		return llm.NewAnthropicLLM(key, "claude-3-5-haiku-20241022")
	}
	log.Info("ANTHROPIC_API_KEY not set, using OpenAI LLM with OPENAI_API_KEY (calls fail if it is empty)")
	return llm.NewOpenAILLM(os.Getenv("OPENAI_API_KEY"), "gpt-4o-mini")
}

type backendServer struct {
	log *slog.Logger

	sttClient mockproviders.STTProvider
	llmClient mockproviders.LLMProvider
	ttsClient mockproviders.TTSProvider

	recognizerMu sync.Mutex
	recognizer   chan net.Conn
	synthMu      sync.Mutex
	synth        chan net.Conn
}

func (s *backendServer) serveUpstream(ctx context.Context, addr string) {
	ln, err := net.Listen(networkFor(addr), addr)
	if err != nil {
		s.log.Error("upstream listen failed", "addr", addr, "error", err)
		return
	}
	defer ln.Close()
	s.log.Info("upstream listening", "addr", addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("upstream accept failed", "error", err)
			continue
		}
		go s.handleUpstream(ctx, conn)
	}
}

func (s *backendServer) handleUpstream(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	var pending []byte
	idle := time.NewTimer(idleFlushTimeout)
	defer idle.Stop()

	frames := make(chan []byte)
	errs := make(chan error, 1)
	go readUpstreamFrames(conn, frames, errs)

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errs:
			if err != io.EOF {
				s.log.Debug("upstream connection closed", "error", err)
			}
			if len(pending) > 0 {
				s.runPipeline(ctx, pending)
			}
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			pending = append(pending, frame...)
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(idleFlushTimeout)
		case <-idle.C:
			if len(pending) > 0 {
				segment := pending
				pending = nil
				go s.runPipeline(ctx, segment)
			}
			idle.Reset(idleFlushTimeout)
		}
	}
}

// readUpstreamFrames decodes the Backend Channel's upstream wire format:
// an audio segment is a u32 LE sample count followed by that many LE int16
// samples; a control frame (sentinel 0xFFFFFFFF) is read and dropped —
// the mock backend has no use for silence heartbeats.
func readUpstreamFrames(conn net.Conn, frames chan<- []byte, errs chan<- error) {
	defer close(frames)
	var lengthBuf [4]byte
	for {
		if _, err := io.ReadFull(conn, lengthBuf[:]); err != nil {
			errs <- err
			return
		}
		length := binary.LittleEndian.Uint32(lengthBuf[:])
		if length == 0xFFFFFFFF {
			// Control frame: one type byte + type-specific payload. Only
			// type 0x01 (silence, u64 ms) is defined; read and discard it.
			ctrl := make([]byte, 9)
			if _, err := io.ReadFull(conn, ctrl); err != nil {
				errs <- err
				return
			}
			continue
		}
		payload := make([]byte, int(length)*2)
		if _, err := io.ReadFull(conn, payload); err != nil {
			errs <- err
			return
		}
		frames <- payload
	}
}

func (s *backendServer) runPipeline(ctx context.Context, pcm []byte) {
	text, err := s.sttClient.Transcribe(ctx, pcm, mockproviders.LanguageEn)
	if err != nil {
		s.log.Warn("transcription failed", "error", err)
		return
	}
	if text == "" {
		return
	}
	s.writeRecognizerMessage(text, true)

	reply, err := s.llmClient.Complete(ctx, []mockproviders.Message{
		{Role: "user", Content: text},
	})
	if err != nil {
		s.log.Warn("llm completion failed", "error", err)
		return
	}

	err = s.ttsClient.StreamSynthesize(ctx, reply, mockproviders.VoiceF1, mockproviders.LanguageEn, func(chunk []byte) error {
		return s.writeSynthChunk(chunk)
	})
	if err != nil {
		s.log.Warn("speech synthesis failed", "error", err)
	}
}

func (s *backendServer) serveRecognizer(ctx context.Context, addr string) {
	s.acceptSingleton(ctx, addr, &s.recognizerMu, s.recognizer, "recognizer")
}

func (s *backendServer) serveSynth(ctx context.Context, addr string) {
	s.acceptSingleton(ctx, addr, &s.synthMu, s.synth, "synth")
}

// acceptSingleton accepts connections on addr and replaces whatever
// connection is currently held in slot, so the most recent Bridge
// reconnect always wins.
func (s *backendServer) acceptSingleton(ctx context.Context, addr string, mu *sync.Mutex, slot chan net.Conn, name string) {
	ln, err := net.Listen(networkFor(addr), addr)
	if err != nil {
		s.log.Error(name+" listen failed", "addr", addr, "error", err)
		return
	}
	defer ln.Close()
	s.log.Info(name+" listening", "addr", addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		mu.Lock()
		select {
		case old := <-slot:
			old.Close()
		default:
		}
		slot <- conn
		mu.Unlock()
	}
}

func (s *backendServer) writeRecognizerMessage(text string, isFinal bool) {
	select {
	case conn := <-s.recognizer:
		line := fmt.Sprintf("{\"text\":%q,\"is_final\":%t}\n", text, isFinal)
		if _, err := conn.Write([]byte(line)); err != nil {
			s.log.Warn("recognizer write failed", "error", err)
			conn.Close()
			return
		}
		s.recognizer <- conn
	default:
		s.log.Debug("no recognizer downstream connected, dropping message")
	}
}

func (s *backendServer) writeSynthChunk(chunk []byte) error {
	select {
	case conn := <-s.synth:
		var lengthBuf [4]byte
		binary.LittleEndian.PutUint32(lengthBuf[:], uint32(len(chunk)))
		if _, err := conn.Write(lengthBuf[:]); err != nil {
			conn.Close()
			return err
		}
		if _, err := conn.Write(chunk); err != nil {
			conn.Close()
			return err
		}
		s.synth <- conn
		return nil
	default:
		return fmt.Errorf("mockbackend: no synth downstream connected")
	}
}

func networkFor(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return "tcp"
	}
	return "unix"
}

// Command bridge is the executable entry point for the Command Surface: it
// owns the microphone/speaker device via malgo, feeds captured audio
// through pkg/bridge.Bridge, and plays back whatever the backend
// synthesizes.
package main

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/joho/godotenv"

	"github.com/lumina-project/vad-bridge/pkg/bridge"
	"github.com/lumina-project/vad-bridge/pkg/classifier"
	"github.com/lumina-project/vad-bridge/pkg/dialog"
)

const frameSamples = 320 // 20ms at 16kHz, matching classifier.SampleRate

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("note: no .env file found, using system environment variables")
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	player := &playbackBuffer{}
	sink := &consoleSink{log: log, player: player}

	cfg := bridge.DefaultConfig()
	br, err := bridge.New(cfg, sink, &slogAdapter{log: log})
	if err != nil {
		log.Error("failed to construct bridge", "error", err)
		os.Exit(1)
	}
	defer br.Close()

	br.StartSTTResultListener()
	br.StartTTSAudioListener()

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Error("malgo init failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = mctx.Uninit() }()

	var frameBuf []float32
	var rmsMu sync.Mutex
	var lastRMS float64

	onSamples := func(pOutput, pInput []byte, frameCount uint32) {
		if pInput != nil {
			samples := bytesToFloat32(pInput)

			var sum float64
			for _, f := range samples {
				sum += float64(f) * float64(f)
			}
			rms := math.Sqrt(sum / float64(len(samples)))
			rmsMu.Lock()
			lastRMS = rms
			rmsMu.Unlock()

			frameBuf = append(frameBuf, samples...)
			for len(frameBuf) >= frameSamples {
				frame := frameBuf[:frameSamples]
				frameBuf = frameBuf[frameSamples:]
				if _, err := br.ProcessAudioFrame(frame); err != nil {
					log.Debug("process_audio_frame failed", "error", err)
				}
			}
		}
		if pOutput != nil {
			player.fill(pOutput)
		}
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = classifier.SampleRate
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
	})
	if err != nil {
		log.Error("malgo device init failed", "error", err)
		os.Exit(1)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		log.Error("malgo device start failed", "error", err)
		os.Exit(1)
	}

	player.onPlaybackStateChange = func(playing bool) {
		if playing {
			br.AudioPlaybackStarted()
		} else {
			br.AudioPlaybackEnded()
		}
	}

	go func() {
		for {
			rmsMu.Lock()
			level := lastRMS
			rmsMu.Unlock()
			dots := int(level * 500)
			if dots > 40 {
				dots = 40
			}
			meter := ""
			for i := 0; i < dots; i++ {
				meter += "|"
			}
			fmt.Printf("\r[MIC %-40s] state=%-16s rms=%.5f", meter, br.GetVADState(), level)
			time.Sleep(100 * time.Millisecond)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Println("\nshutting down...")
}

// bytesToFloat32 converts little-endian 16-bit PCM bytes to float32
// samples in [-1, 1].
func bytesToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		sample := int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
		out[i] = float32(sample) / 32768.0
	}
	return out
}

// playbackBuffer is a FIFO of synthesized PCM bytes drained by the malgo
// output callback, reporting playback start/end transitions as it
// transitions between empty and non-empty.
type playbackBuffer struct {
	mu                    sync.Mutex
	bytes                 []byte
	playing               bool
	onPlaybackStateChange func(playing bool)
}

func (p *playbackBuffer) push(chunk []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bytes = append(p.bytes, chunk...)
	if !p.playing {
		p.playing = true
		if p.onPlaybackStateChange != nil {
			p.onPlaybackStateChange(true)
		}
	}
}

func (p *playbackBuffer) fill(out []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := copy(out, p.bytes)
	p.bytes = p.bytes[n:]
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	if len(p.bytes) == 0 && p.playing {
		p.playing = false
		if p.onPlaybackStateChange != nil {
			p.onPlaybackStateChange(false)
		}
	}
}

// consoleSink implements bridge.Sink, printing UI-bus events to the
// console and feeding synthesized audio into the playback buffer.
type consoleSink struct {
	log    *slog.Logger
	player *playbackBuffer
}

func (c *consoleSink) StateChanged(state dialog.State) {
	fmt.Printf("\r\033[K[state] %s\n", state)
}

func (c *consoleSink) Silence(silenceMs uint64) {
	c.log.Debug("silence tick", "silence_ms", silenceMs)
}

func (c *consoleSink) VadEvent(edge string) {
	if edge != "Processing" {
		fmt.Printf("\r\033[K[vad] %s\n", edge)
	}
}

func (c *consoleSink) SttResult(text string, isFinal bool) {
	if text == "" {
		return
	}
	fmt.Printf("\r\033[K[stt] %s (final=%t)\n", text, isFinal)
}

func (c *consoleSink) BackendAudioData(dataB64, format string) {
	chunk, err := base64.StdEncoding.DecodeString(dataB64)
	if err != nil {
		c.log.Warn("malformed backend-audio-data event", "error", err)
		return
	}
	c.player.push(chunk)
}

// slogAdapter backs pkg/logging.Logger with log/slog.
type slogAdapter struct {
	log *slog.Logger
}

func (s *slogAdapter) Debug(msg string, args ...interface{}) { s.log.Debug(msg, args...) }
func (s *slogAdapter) Info(msg string, args ...interface{})  { s.log.Info(msg, args...) }
func (s *slogAdapter) Warn(msg string, args ...interface{})  { s.log.Warn(msg, args...) }
func (s *slogAdapter) Error(msg string, args ...interface{}) { s.log.Error(msg, args...) }

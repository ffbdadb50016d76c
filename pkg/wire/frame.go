// Package wire implements the length-prefixed framing protocol shared
// between the Backend Channel and the backend process it talks to.
//
// An audio segment frame is:
//
//	u32 LE length | length × i16 LE samples
//
// A control frame uses the sentinel length 0xFFFFFFFF to distinguish itself
// from an audio segment, followed by a one-byte message type and a
// type-specific payload:
//
//	u32 LE 0xFFFFFFFF | u8 type | payload
package wire

import (
	"encoding/binary"
	"fmt"
)

// ControlSentinel is the reserved length value that marks a control frame.
const ControlSentinel uint32 = 0xFFFFFFFF

// Control message types.
const (
	TypeSilence byte = 0x01
)

// EncodeAudio builds one atomic wire buffer for an audio segment: a 4-byte
// LE length followed by the LE 16-bit samples. The caller must write the
// returned buffer in a single call so the length prefix and payload never
// interleave with another segment's bytes on the wire.
func EncodeAudio(samples []int16) []byte {
	buf := make([]byte, 4+len(samples)*2)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(samples)))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[4+2*i:6+2*i], uint16(s))
	}
	return buf
}

// EncodeSilence builds a control frame reporting silence_ms milliseconds of
// continuous silence.
func EncodeSilence(silenceMs uint64) []byte {
	buf := make([]byte, 4+1+8)
	binary.LittleEndian.PutUint32(buf[0:4], ControlSentinel)
	buf[4] = TypeSilence
	binary.LittleEndian.PutUint64(buf[5:13], silenceMs)
	return buf
}

// DecodeSamples reinterprets a raw audio payload (without its length
// prefix) as little-endian int16 samples.
func DecodeSamples(payload []byte) ([]int16, error) {
	if len(payload)%2 != 0 {
		return nil, fmt.Errorf("wire: odd-length audio payload (%d bytes)", len(payload))
	}
	samples := make([]int16, len(payload)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(payload[2*i : 2*i+2]))
	}
	return samples, nil
}

// IsControlLength reports whether a decoded length prefix marks a control
// frame rather than an audio segment.
func IsControlLength(length uint32) bool {
	return length == ControlSentinel
}

package backend

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/lumina-project/vad-bridge/pkg/wire"
)

func listenUnix(t *testing.T) (net.Listener, string) {
	t.Helper()
	addr := filepath.Join(t.TempDir(), "test.sock")
	ln, err := net.Listen("unix", addr)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return ln, addr
}

func TestUpstreamConn_WriteAudio_RoundTrip(t *testing.T) {
	ln, addr := listenUnix(t)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		n, _ := io.ReadFull(conn, buf[:14])
		received <- buf[:n]
	}()

	u := NewUpstreamConn(addr, nil)
	defer u.Close()

	samples := []int16{10, 20, 30, 40, 50}
	if err := u.WriteAudio(samples); err != nil {
		t.Fatalf("WriteAudio: %v", err)
	}

	select {
	case got := <-received:
		want := wire.EncodeAudio(samples)
		if string(got) != string(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to receive data")
	}
}

func TestUpstreamConn_WriteSilence_ControlFrame(t *testing.T) {
	ln, addr := listenUnix(t)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 13)
		io.ReadFull(conn, buf)
		received <- buf
	}()

	u := NewUpstreamConn(addr, nil)
	defer u.Close()

	if err := u.WriteSilence(250); err != nil {
		t.Fatalf("WriteSilence: %v", err)
	}

	select {
	case got := <-received:
		length := binary.LittleEndian.Uint32(got[0:4])
		if !wire.IsControlLength(length) {
			t.Error("expected control sentinel")
		}
		if got[4] != wire.TypeSilence {
			t.Errorf("expected silence type, got 0x%02x", got[4])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to receive data")
	}
}

func TestUpstreamConn_ReconnectThrottled(t *testing.T) {
	u := NewUpstreamConn(filepath.Join(t.TempDir(), "nonexistent.sock"), nil)
	defer u.Close()

	if err := u.WriteAudio([]int16{1}); err == nil {
		t.Fatal("expected first write to a nonexistent socket to fail")
	}
	err := u.WriteAudio([]int16{1})
	if err != ErrReconnectThrottled {
		t.Errorf("expected ErrReconnectThrottled on immediate retry, got %v", err)
	}
}

func TestRecognizerReader_DeliversMessages(t *testing.T) {
	ln, addr := listenUnix(t)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("{\"text\":\"hello\",\"is_final\":false}\n"))
		conn.Write([]byte("not json\n"))
		conn.Write([]byte("{\"text\":\"world\",\"is_final\":true}\n"))
	}()

	r := NewRecognizerReader(addr, nil)
	msgs := make(chan RecognizerMessage, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx, func(m RecognizerMessage) { msgs <- m })

	first := waitMsg(t, msgs)
	if first.Text != "hello" || first.IsFinal {
		t.Errorf("unexpected first message: %+v", first)
	}
	second := waitMsg(t, msgs)
	if second.Text != "world" || !second.IsFinal {
		t.Errorf("unexpected second message: %+v", second)
	}
}

func waitMsg(t *testing.T, ch chan RecognizerMessage) RecognizerMessage {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return RecognizerMessage{}
	}
}

func TestSynthReader_DeliversChunks(t *testing.T) {
	ln, addr := listenUnix(t)
	defer ln.Close()

	chunk := []byte{1, 2, 3, 4}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(chunk)))
		conn.Write(lenBuf[:])
		conn.Write(chunk)
	}()

	s := NewSynthReader(addr, nil)
	chunks := make(chan []byte, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, func(c []byte) { chunks <- c })

	select {
	case got := <-chunks:
		if string(got) != string(chunk) {
			t.Errorf("got %v, want %v", got, chunk)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chunk")
	}
}

package quic

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zsiec/bonecast/internal/certs"
	"github.com/zsiec/bonecast/internal/transport"
)

var (
	_ transport.Receiver = (*Receiver)(nil)
	_ transport.Sender   = (*Sender)(nil)
)

func listen(t *testing.T) (*Receiver, *certs.CertInfo) {
	t.Helper()
	cert, err := certs.Generate(time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	r, err := Listen("127.0.0.1:0", cert, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r, cert
}

func TestDatagramsThenEndOfStream(t *testing.T) {
	t.Parallel()

	r, cert := listen(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := Dial(ctx, r.LocalAddr().String(), cert.FingerprintBase64())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	payloads := [][]byte{[]byte("hello"), bytes.Repeat([]byte{7}, transport.MaxPayload)}
	for _, p := range payloads {
		if err := s.Send(ctx, p); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	buf := make([]byte, transport.MaxPayload)
	for i, want := range payloads {
		n, err := r.Receive(ctx, buf)
		if err != nil {
			t.Fatalf("Receive %d: %v", i, err)
		}
		if !bytes.Equal(buf[:n], want) {
			t.Errorf("datagram %d: got %d bytes, want %d", i, n, len(want))
		}
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := r.Receive(ctx, buf); !errors.Is(err, transport.ErrEndOfStream) {
		t.Errorf("after sender close: err = %v, want ErrEndOfStream", err)
	}
	if err := s.Send(ctx, []byte("late")); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("Send after Close: err = %v, want ErrClosed", err)
	}
}

func TestReceiveTimeoutBeforeConnect(t *testing.T) {
	t.Parallel()

	r, _ := listen(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := r.Receive(ctx, make([]byte, 16)); !errors.Is(err, transport.ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}

func TestDialRejectsWrongFingerprint(t *testing.T) {
	t.Parallel()

	r, _ := listen(t)
	other, err := certs.Generate(time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	// Accept in the background so the handshake can run.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = r.Receive(ctx, make([]byte, 16))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := Dial(ctx, r.LocalAddr().String(), other.FingerprintBase64()); err == nil {
		t.Fatal("Dial should fail when the fingerprint does not match")
	}
}

func TestSendTooLarge(t *testing.T) {
	t.Parallel()

	r, cert := listen(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Dial(ctx, r.LocalAddr().String(), cert.FingerprintBase64())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer s.Close()
	if err := s.Send(ctx, make([]byte, transport.MaxPayload+1)); !errors.Is(err, transport.ErrPayloadTooLarge) {
		t.Errorf("err = %v, want ErrPayloadTooLarge", err)
	}
}

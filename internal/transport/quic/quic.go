// Package quic carries session datagrams as unreliable QUIC DATAGRAM frames
// (RFC 9221). The connection is encrypted with a self-signed certificate;
// the client may pin its fingerprint.
package quic

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/zsiec/bonecast/internal/certs"
	"github.com/zsiec/bonecast/internal/transport"
)

// ALPN is the application protocol negotiated on every connection.
const ALPN = "bonecast"

// initialPacketSize leaves room for a full transport.MaxPayload datagram
// plus QUIC framing before path MTU discovery completes.
const initialPacketSize = 1452

// lingerOnClose gives queued datagrams time to leave before the sender
// closes the connection.
const lingerOnClose = 50 * time.Millisecond

func quicConfig() *quic.Config {
	return &quic.Config{
		EnableDatagrams:   true,
		InitialPacketSize: initialPacketSize,
		MaxIdleTimeout:    30 * time.Second,
	}
}

// Receiver accepts one publishing connection and reads its datagrams.
type Receiver struct {
	log *slog.Logger
	ln  *quic.Listener

	mu     sync.Mutex
	conn   quic.Connection
	closed bool
}

// Listen binds a QUIC listener on addr using cert. If log is nil,
// slog.Default() is used.
func Listen(addr string, cert *certs.CertInfo, log *slog.Logger) (*Receiver, error) {
	if log == nil {
		log = slog.Default()
	}
	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert.TLSCert},
		NextProtos:   []string{ALPN},
	}
	ln, err := quic.ListenAddr(addr, tlsConf, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("quic: listen %s: %w", addr, err)
	}
	r := &Receiver{
		log: log.With("component", "quic-receiver"),
		ln:  ln,
	}
	r.log.Info("listening", "addr", ln.Addr().String(), "fingerprint", cert.FingerprintBase64())
	return r, nil
}

// Receive waits for the publisher to connect if it has not yet, then reads
// one datagram into buf. A publisher that closes its connection ends the
// stream.
func (r *Receiver) Receive(ctx context.Context, buf []byte) (int, error) {
	conn, err := r.connection(ctx)
	if err != nil {
		return 0, err
	}
	d, err := conn.ReceiveDatagram(ctx)
	if err != nil {
		return 0, r.mapError(ctx, err)
	}
	return copy(buf, d), nil
}

func (r *Receiver) connection(ctx context.Context) (quic.Connection, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, transport.ErrClosed
	}
	if r.conn != nil {
		conn := r.conn
		r.mu.Unlock()
		return conn, nil
	}
	r.mu.Unlock()

	conn, err := r.ln.Accept(ctx)
	if err != nil {
		return nil, r.mapError(ctx, err)
	}
	r.log.Info("publisher connected", "remote", conn.RemoteAddr().String())

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		_ = conn.CloseWithError(0, "receiver closed")
		return nil, transport.ErrClosed
	}
	r.conn = conn
	return conn, nil
}

func (r *Receiver) mapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return transport.ContextError(ctx)
	}
	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) && appErr.Remote {
		return transport.ErrEndOfStream
	}
	var idle *quic.IdleTimeoutError
	if errors.As(err, &idle) {
		return transport.ErrEndOfStream
	}
	if errors.Is(err, quic.ErrServerClosed) || r.isClosed() {
		return transport.ErrClosed
	}
	return fmt.Errorf("quic: receive: %w", err)
}

func (r *Receiver) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// LocalAddr returns the bound UDP address.
func (r *Receiver) LocalAddr() net.Addr { return r.ln.Addr() }

// Close closes the publisher connection, if any, and the listener.
func (r *Receiver) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	conn := r.conn
	r.mu.Unlock()

	if conn != nil {
		_ = conn.CloseWithError(0, "receiver closed")
	}
	return r.ln.Close()
}

// Sender is a client connection that sends datagrams.
type Sender struct {
	conn quic.Connection

	mu     sync.Mutex
	closed bool
}

// Dial connects to a Receiver at addr. A non-empty fingerprint (base64
// SHA-256 of the receiver's certificate) is required to match.
func Dial(ctx context.Context, addr, fingerprint string) (*Sender, error) {
	verify, err := certs.PinnedVerifier(fingerprint)
	if err != nil {
		return nil, err
	}
	tlsConf := &tls.Config{
		// Self-signed; trust comes from the optional fingerprint pin.
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: verify,
		NextProtos:            []string{ALPN},
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("quic: dial %s: %w", addr, err)
	}
	if !conn.ConnectionState().SupportsDatagrams {
		_ = conn.CloseWithError(1, "datagrams unsupported")
		return nil, fmt.Errorf("quic: %s does not support datagrams", addr)
	}
	return &Sender{conn: conn}, nil
}

// Send queues p as one DATAGRAM frame.
func (s *Sender) Send(ctx context.Context, p []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	if len(p) > transport.MaxPayload {
		return transport.ErrPayloadTooLarge
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.conn.SendDatagram(p); err != nil {
		return fmt.Errorf("quic: send: %w", err)
	}
	return nil
}

// Close closes the connection, which the receiver sees as end of stream.
func (s *Sender) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	time.Sleep(lingerOnClose)
	return s.conn.CloseWithError(0, "end of stream")
}

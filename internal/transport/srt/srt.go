// Package srt carries session datagrams over SRT in live mode. Each SRT
// message is one datagram. SRT cannot send an empty message, so the
// sender signals end of stream by closing the connection.
package srt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/bonecast/internal/transport"
)

// latencyNs is the SRT latency setting in nanoseconds (120ms).
const latencyNs = 120_000_000

// dialTimeout bounds Dial when the context has no deadline.
const dialTimeout = 10 * time.Second

// StreamID is sent by Dial and required by Listen.
const StreamID = "bonecast/publish"

// queueDepth is the number of datagrams buffered between the socket and
// Receive.
const queueDepth = 256

type messageReader interface {
	Read([]byte) (int, error)
	Close() error
}

type srtConn struct{ c *srtgo.Conn }

func (s srtConn) Read(p []byte) (int, error) { return s.c.Read(p) }

func (s srtConn) Close() error {
	s.c.Close()
	return nil
}

// Receiver accepts a single SRT publisher and queues its messages.
type Receiver struct {
	log   *slog.Logger
	addr  net.Addr
	close func()

	msgs   chan []byte
	failed chan struct{}

	mu   sync.Mutex
	conn messageReader
	err  error
}

// Listen binds an SRT listener on addr. Only the first caller presenting
// StreamID is admitted. If log is nil, slog.Default() is used.
func Listen(addr string, log *slog.Logger) (*Receiver, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("srt: resolve %s: %w", addr, err)
	}

	cfg := srtgo.DefaultConfig()
	cfg.Latency = latencyNs
	l, err := srtgo.Listen(addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("srt: listen %s: %w", addr, err)
	}

	r := newReceiver(udpAddr, log)
	r.close = func() { l.Close() }

	var claimed atomic.Bool
	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		if req.StreamID != StreamID || !claimed.CompareAndSwap(false, true) {
			return srtgo.RejPeer
		}
		return 0
	})
	r.log.Info("listening", "addr", addr)

	go func() {
		conn, err := l.Accept()
		if err != nil {
			r.fail(err)
			return
		}
		r.log.Info("publisher connected", "remote", conn.RemoteAddr())
		r.pump(srtConn{conn})
	}()
	return r, nil
}

func newReceiver(addr net.Addr, log *slog.Logger) *Receiver {
	if log == nil {
		log = slog.Default()
	}
	return &Receiver{
		log:    log.With("component", "srt-receiver"),
		addr:   addr,
		close:  func() {},
		msgs:   make(chan []byte, queueDepth),
		failed: make(chan struct{}),
	}
}

// pump copies messages from conn into the queue until conn fails.
func (r *Receiver) pump(conn messageReader) {
	r.mu.Lock()
	if r.err != nil {
		r.mu.Unlock()
		conn.Close()
		return
	}
	r.conn = conn
	r.mu.Unlock()

	buf := make([]byte, transport.MaxPayload)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = transport.ErrEndOfStream
			}
			r.fail(err)
			return
		}
		msg := make([]byte, n)
		copy(msg, buf[:n])
		select {
		case r.msgs <- msg:
		case <-r.failed:
			return
		}
	}
}

// fail records the first terminal error.
func (r *Receiver) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	r.err = err
	close(r.failed)
}

// Receive returns the next queued message. Messages that arrived before the
// connection ended are delivered before the terminal error.
func (r *Receiver) Receive(ctx context.Context, buf []byte) (int, error) {
	select {
	case msg := <-r.msgs:
		return copy(buf, msg), nil
	case <-r.failed:
		select {
		case msg := <-r.msgs:
			return copy(buf, msg), nil
		default:
		}
		r.mu.Lock()
		err := r.err
		r.mu.Unlock()
		if errors.Is(err, transport.ErrEndOfStream) || errors.Is(err, transport.ErrClosed) {
			return 0, err
		}
		return 0, fmt.Errorf("srt: receive: %w", err)
	case <-ctx.Done():
		return 0, transport.ContextError(ctx)
	}
}

// LocalAddr returns the address the listener was bound to.
func (r *Receiver) LocalAddr() net.Addr { return r.addr }

// Close stops the listener and any publisher connection.
func (r *Receiver) Close() error {
	r.fail(transport.ErrClosed)
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	r.close()
	return nil
}

// Sender is an SRT caller connection.
type Sender struct {
	conn *srtgo.Conn

	mu     sync.Mutex
	closed bool
}

// Dial connects to a Receiver at addr. The dial is abandoned when ctx is
// done or after dialTimeout.
func Dial(ctx context.Context, addr string) (*Sender, error) {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = latencyNs
	cfg.StreamID = StreamID

	type dialResult struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := srtgo.Dial(addr, cfg)
		ch <- dialResult{conn, err}
	}()

	timer := time.NewTimer(dialTimeout)
	defer timer.Stop()

	abandon := func() {
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("srt: dial %s: %w", addr, res.err)
		}
		return &Sender{conn: res.conn}, nil
	case <-timer.C:
		abandon()
		return nil, fmt.Errorf("srt: dial %s timed out after %s", addr, dialTimeout)
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	}
}

// Send writes p as one SRT message. An empty p is dropped; Close ends the
// stream instead.
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
	if len(p) == 0 {
		return nil
	}
	if _, err := s.conn.Write(p); err != nil {
		return fmt.Errorf("srt: write: %w", err)
	}
	return nil
}

// Close closes the connection; the receiver sees end of stream.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.conn.Close()
	return nil
}

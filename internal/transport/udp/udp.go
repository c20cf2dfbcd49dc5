// Package udp implements the session transport over plain UDP datagrams.
package udp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/zsiec/bonecast/internal/transport"
)

// Receiver is a bound UDP socket.
type Receiver struct {
	log  *slog.Logger
	conn *net.UDPConn

	mu     sync.Mutex
	closed bool
}

// Listen binds a UDP socket on addr. Port 0 picks an ephemeral port.
// If log is nil, slog.Default() is used.
func Listen(addr string, log *slog.Logger) (*Receiver, error) {
	if log == nil {
		log = slog.Default()
	}
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udp: resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("udp: listen %s: %w", addr, err)
	}
	r := &Receiver{
		log:  log.With("component", "udp-receiver"),
		conn: conn,
	}
	r.log.Info("listening", "addr", conn.LocalAddr().String())
	return r, nil
}

// Receive reads one datagram into buf.
func (r *Receiver) Receive(ctx context.Context, buf []byte) (int, error) {
	if r.isClosed() {
		return 0, transport.ErrClosed
	}
	if ctx.Err() != nil {
		return 0, transport.ContextError(ctx)
	}

	deadline, _ := ctx.Deadline()
	if err := r.conn.SetReadDeadline(deadline); err != nil {
		return 0, fmt.Errorf("udp: set deadline: %w", err)
	}

	// Cancellation expires the deadline. The callback must have finished
	// before returning, or it could cut short the next Receive.
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = r.conn.SetReadDeadline(time.Now())
		close(interrupted)
	})
	n, _, err := r.conn.ReadFromUDP(buf)
	if !stop() {
		<-interrupted
	}
	if err != nil {
		if ctx.Err() != nil {
			return 0, transport.ContextError(ctx)
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return 0, transport.ErrTimeout
		}
		if errors.Is(err, net.ErrClosed) {
			return 0, transport.ErrClosed
		}
		return 0, fmt.Errorf("udp: read: %w", err)
	}
	return n, nil
}

// LocalAddr returns the bound address.
func (r *Receiver) LocalAddr() net.Addr { return r.conn.LocalAddr() }

// Close releases the socket. It is safe to call more than once.
func (r *Receiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.conn.Close()
}

func (r *Receiver) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Sender is a connected UDP socket.
type Sender struct {
	conn *net.UDPConn

	mu     sync.Mutex
	closed bool
}

// Dial connects a UDP socket to addr.
func Dial(addr string) (*Sender, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udp: resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("udp: dial %s: %w", addr, err)
	}
	return &Sender{conn: conn}, nil
}

// Send writes p as one datagram.
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

	deadline, _ := ctx.Deadline()
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("udp: set deadline: %w", err)
	}
	if _, err := s.conn.Write(p); err != nil {
		return fmt.Errorf("udp: write: %w", err)
	}
	return nil
}

// Close releases the socket. It is safe to call more than once.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

// Package transport defines the datagram sender and receiver used by the
// streaming sessions. Delivery is best effort: datagrams may be lost,
// duplicated or reordered, and nothing is retransmitted.
//
// Implementations live in the udp, quic and srt subpackages.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// MaxPayload is the largest datagram a session sends. It fits seven
// 188-byte transport stream cells and stays under common path MTUs.
const MaxPayload = 1316

var (
	// ErrTimeout is returned by Receive when the context deadline passes
	// before a datagram arrives.
	ErrTimeout = errors.New("transport: receive timeout")
	// ErrEndOfStream is returned by Receive when a connection-oriented peer
	// closes its side.
	ErrEndOfStream = errors.New("transport: end of stream")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("transport: closed")
	// ErrPayloadTooLarge is returned by Send for datagrams over MaxPayload.
	ErrPayloadTooLarge = errors.New("transport: payload exceeds maximum datagram size")
)

// Sender transmits datagrams to one remote endpoint. A zero-length
// datagram is valid and is sent as is.
type Sender interface {
	Send(ctx context.Context, p []byte) error
	Close() error
}

// Receiver reads datagrams from a bound endpoint. Receive blocks until a
// datagram arrives, the context deadline passes (ErrTimeout), or the context
// is cancelled (ctx.Err()). It returns the number of bytes copied into buf;
// zero means the peer sent an empty datagram.
type Receiver interface {
	Receive(ctx context.Context, buf []byte) (int, error)
	LocalAddr() net.Addr
	Close() error
}

// Kind names a transport implementation.
type Kind string

const (
	KindUDP  Kind = "udp"
	KindQUIC Kind = "quic"
	KindSRT  Kind = "srt"
)

// ErrUnknownKind is returned by ParseKind.
var ErrUnknownKind = errors.New("transport: unknown kind")

// ParseKind accepts "udp", "quic" or "srt", case-insensitively. An empty
// string selects UDP.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindUDP, nil
	case KindUDP, KindQUIC, KindSRT:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// ContextError maps a context failure to the transport error it stands for:
// a passed deadline is a timeout, everything else is returned unchanged.
func ContextError(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

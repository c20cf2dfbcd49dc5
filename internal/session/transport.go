package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zsiec/bonecast/internal/certs"
	"github.com/zsiec/bonecast/internal/config"
	"github.com/zsiec/bonecast/internal/transport"
	"github.com/zsiec/bonecast/internal/transport/quic"
	"github.com/zsiec/bonecast/internal/transport/srt"
	"github.com/zsiec/bonecast/internal/transport/udp"
)

// DefaultBinder opens the receiver named by cfg.Transport on cfg.Addr().
// QUIC listeners get a fresh self-signed certificate whose fingerprint is
// logged for the sender to pin.
func DefaultBinder(_ context.Context, cfg config.Config, log *slog.Logger) (transport.Receiver, error) {
	switch cfg.Transport {
	case transport.KindUDP, "":
		return udp.Listen(cfg.Addr(), log)
	case transport.KindQUIC:
		cert, err := certs.Generate(0, cfg.Host)
		if err != nil {
			return nil, err
		}
		return quic.Listen(cfg.Addr(), cert, log)
	case transport.KindSRT:
		return srt.Listen(cfg.Addr(), log)
	default:
		return nil, fmt.Errorf("%w: %q", transport.ErrUnknownKind, cfg.Transport)
	}
}

// DefaultDialer opens the sender named by cfg.Transport towards cfg.Addr().
func DefaultDialer(ctx context.Context, cfg config.Config) (transport.Sender, error) {
	switch cfg.Transport {
	case transport.KindUDP, "":
		return udp.Dial(cfg.Addr())
	case transport.KindQUIC:
		return quic.Dial(ctx, cfg.Addr(), cfg.QUICFingerprint)
	case transport.KindSRT:
		return srt.Dial(ctx, cfg.Addr())
	default:
		return nil, fmt.Errorf("%w: %q", transport.ErrUnknownKind, cfg.Transport)
	}
}

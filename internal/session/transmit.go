package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zsiec/bonecast/internal/anim"
	"github.com/zsiec/bonecast/internal/config"
	"github.com/zsiec/bonecast/internal/markers"
)

// BeginTransmit starts sending the source scene and returns at once. It
// fails with ErrBusy, opening nothing, when the session is not idle.
func (s *Session) BeginTransmit(ctx context.Context) (*Task, error) {
	return s.begin(ctx, RoleTransmitting, s.transmit)
}

func (s *Session) transmit(ctx context.Context, t *Task, log *slog.Logger) error {
	if err := requirePath(config.KeySourceFile, s.cfg.SourceFile); err != nil {
		return err
	}
	scene, err := s.store.Load(s.cfg.SourceFile)
	if err != nil {
		return err
	}
	skel, err := markers.FindSkeleton(scene)
	if err != nil {
		return fmt.Errorf("%s: %w", s.cfg.SourceFile, err)
	}

	set, err := s.conv.ToMarkers(scene, skel, markers.Options{Space: s.space(), Mode: markers.ModeBake})
	if err != nil {
		return fmt.Errorf("mark up %s: %w", scene.Node(skel).Name, err)
	}
	unrolled := anim.UnrollRotations(scene, set)
	log.Debug("marker set ready", "skeleton", scene.Node(skel).Name,
		"markers", len(scene.Children(set)), "unrolled_keys", unrolled)

	sender, err := s.dial(ctx, s.cfg)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.cfg.Addr(), err)
	}
	defer sender.Close()
	s.info(t.id, RoleTransmitting, "transmitting to "+s.cfg.Addr())

	st, err := s.codec.Encode(ctx, scene, set, sender)
	t.transmit = TransmitStats{Packets: st.Packets, Bytes: st.Bytes, Keys: st.Keys}
	if err != nil {
		return err
	}
	log.Info("transmit complete", "packets", st.Packets, "bytes", st.Bytes, "keys", st.Keys)
	return nil
}

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/bonecast/internal/anim"
	"github.com/zsiec/bonecast/internal/config"
	"github.com/zsiec/bonecast/internal/jointmap"
	"github.com/zsiec/bonecast/internal/markers"
	"github.com/zsiec/bonecast/internal/transport"
)

// BeginListen binds the receiver and starts collecting datagrams, then
// returns at once. It fails with ErrBusy, binding nothing, when the session
// is not idle.
//
// The first datagram is awaited until ctx is done or, when configured,
// START_TIMEOUT passes, which fails the listen with ErrStartTimeout. Every
// later datagram must arrive within RECEIVE_TIMEOUT; a quiet period that
// long, an empty datagram, or a closing peer ends the stream.
func (s *Session) BeginListen(ctx context.Context) (*Task, error) {
	return s.begin(ctx, RoleListening, s.listen)
}

type receiveTarget struct {
	scene  *anim.Scene
	skel   string
	set    anim.NodeID
	joints jointmap.Map
}

func (s *Session) loadBaseModel() (receiveTarget, error) {
	if err := requirePath(config.KeyBaseModelFile, s.cfg.BaseModelFile); err != nil {
		return receiveTarget{}, err
	}
	if err := requirePath(config.KeyExportFile, s.cfg.ExportFile); err != nil {
		return receiveTarget{}, err
	}
	scene, err := s.store.Load(s.cfg.BaseModelFile)
	if err != nil {
		return receiveTarget{}, err
	}
	skel, err := markers.FindSkeleton(scene)
	if err != nil {
		return receiveTarget{}, fmt.Errorf("%s: %w", s.cfg.BaseModelFile, err)
	}
	name := scene.Node(skel).Name
	set := scene.FindTopLevel(anim.AttrMarkerSet, name+markers.SetSuffix)
	if set == anim.InvalidNode {
		if set, err = markers.FindMarkerSet(scene); err != nil {
			return receiveTarget{}, fmt.Errorf("%s: %w", s.cfg.BaseModelFile, err)
		}
	}
	return receiveTarget{
		scene:  scene,
		skel:   name,
		set:    set,
		joints: jointmap.Build(scene, set),
	}, nil
}

func (s *Session) listen(ctx context.Context, t *Task, log *slog.Logger) error {
	target, err := s.loadBaseModel()
	if err != nil {
		return err
	}

	rcv, err := s.bind(ctx, s.cfg, s.root)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.cfg.Addr(), err)
	}
	defer rcv.Close()
	s.info(t.id, RoleListening, "listening on "+rcv.LocalAddr().String())

	var (
		g    errgroup.Group
		seen = make(map[uint32]struct{})
	)
	decode := func(pkt []byte) func() error {
		return func() error {
			return guard(func() error {
				s.decodeMu.Lock()
				defer s.decodeMu.Unlock()

				st, err := s.codec.Decode(target.scene, target.joints, pkt)
				if err != nil {
					t.rx.decodeErrors.Add(1)
					log.Warn("dropping malformed packet", "bytes", len(pkt), "error", err)
					return nil
				}
				if _, dup := seen[st.Seq]; dup {
					t.rx.duplicates.Add(1)
				}
				seen[st.Seq] = struct{}{}
				t.rx.keysApplied.Add(int64(st.Applied))
				t.rx.unknownJoints.Add(int64(st.Unknown))
				return nil
			})
		}
	}

	loopErr := s.receiveLoop(ctx, rcv, t, log, func(pkt []byte) { g.Go(decode(pkt)) })
	t.rx.stop()
	// Every scheduled decode finishes before the scene is read.
	if err := g.Wait(); err != nil {
		return err
	}
	if loopErr != nil {
		return loopErr
	}

	st := t.rx.snapshot()
	log.Info("stream ended", "datagrams", st.Datagrams, "bytes", st.Bytes,
		"keys", st.KeysApplied, "decode_errors", st.DecodeErrors,
		"unknown_joints", st.UnknownJoints, "duplicates", st.Duplicates)
	s.info(t.id, RoleListening, fmt.Sprintf("received %d packets", st.Datagrams))

	if _, err := s.conv.FromMarkers(target.scene, target.set, target.skel, markers.Options{Space: s.space()}); err != nil {
		return fmt.Errorf("rebuild %s: %w", target.skel, err)
	}
	if err := s.store.Save(target.scene, s.cfg.ExportFile, s.cfg.ExportFormat); err != nil {
		return err
	}
	s.info(t.id, RoleListening, "exported "+s.cfg.ExportFile)
	return nil
}

// receiveLoop reads datagrams until the stream ends and hands a private
// copy of each to schedule. It returns nil on a normal end of stream.
func (s *Session) receiveLoop(ctx context.Context, rcv transport.Receiver, t *Task, log *slog.Logger, schedule func([]byte)) error {
	first := true
	for {
		rctx, cancel := s.receiveContext(ctx, first)
		s.bufMu.Lock()
		n, err := rcv.Receive(rctx, s.rxBuf)
		var pkt []byte
		if err == nil && n > 0 {
			pkt = make([]byte, n)
			copy(pkt, s.rxBuf[:n])
			t.rx.recordDatagram(n)
		}
		s.bufMu.Unlock()
		cancel()

		switch {
		case errors.Is(err, transport.ErrTimeout):
			if first {
				return fmt.Errorf("%w (%v)", ErrStartTimeout, s.cfg.StartTimeout)
			}
			log.Debug("receive timeout, end of stream", "timeout", s.cfg.ReceiveTimeout)
			return nil
		case errors.Is(err, transport.ErrEndOfStream):
			log.Debug("peer closed, end of stream")
			return nil
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("receive: %w", err)
		case n == 0:
			log.Debug("end marker received")
			return nil
		}

		if first {
			s.info(t.id, RoleListening, "receiving")
			first = false
		}
		schedule(pkt)
	}
}

func (s *Session) receiveContext(ctx context.Context, first bool) (context.Context, context.CancelFunc) {
	switch {
	case !first:
		return context.WithTimeout(ctx, s.cfg.ReceiveTimeout)
	case s.cfg.StartTimeout > 0:
		return context.WithTimeout(ctx, s.cfg.StartTimeout)
	default:
		return context.WithCancel(ctx)
	}
}

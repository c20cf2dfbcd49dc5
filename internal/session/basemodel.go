package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zsiec/bonecast/internal/config"
	"github.com/zsiec/bonecast/internal/markers"
	"github.com/zsiec/bonecast/internal/scenefile"
)

// CreateBaseModel writes the receiver's base model: the source scene plus
// a marker set whose channels exist but hold no keys. It runs
// synchronously and fails with ErrBusy while a transmit or listen runs.
func (s *Session) CreateBaseModel(ctx context.Context) error {
	if err := s.acquire(RoleBuilding); err != nil {
		s.reporter.Report(Report{Role: RoleBuilding, Level: slog.LevelWarn, Message: "request refused", Err: err})
		return err
	}
	t := newTask(RoleBuilding)
	err := guard(func() error { return s.buildBaseModel(ctx) })
	s.release()
	s.finish(t.id, RoleBuilding, err)
	return err
}

func (s *Session) buildBaseModel(ctx context.Context) error {
	if err := requirePath(config.KeySourceFile, s.cfg.SourceFile); err != nil {
		return err
	}
	if err := requirePath(config.KeyBaseModelFile, s.cfg.BaseModelFile); err != nil {
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
	if _, err := s.conv.ToMarkers(scene, skel, markers.Options{Space: s.space(), Mode: markers.ModeStructure}); err != nil {
		return fmt.Errorf("mark up %s: %w", scene.Node(skel).Name, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.store.Save(scene, s.cfg.BaseModelFile, scenefile.FormatFromPath(s.cfg.BaseModelFile))
}

// Package session runs the transmit and receive workflows of the skeleton
// streaming protocol and guarantees that a process is never transmitting
// and listening at the same time.
//
// A transmit flattens the first skeleton of the source scene into a marker
// set and sends its keys as datagrams. A listen loads a base model holding
// the same marker set with empty curves, applies every datagram that
// arrives until the stream goes quiet, rebuilds the skeleton, and saves it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/zsiec/bonecast/internal/anim"
	"github.com/zsiec/bonecast/internal/config"
	"github.com/zsiec/bonecast/internal/jointmap"
	"github.com/zsiec/bonecast/internal/keyframe"
	"github.com/zsiec/bonecast/internal/markers"
	"github.com/zsiec/bonecast/internal/scenefile"
	"github.com/zsiec/bonecast/internal/transport"
)

// Role is what a session is currently doing.
type Role int32

const (
	RoleIdle Role = iota
	RoleTransmitting
	RoleListening
	RoleBuilding
)

func (r Role) String() string {
	switch r {
	case RoleIdle:
		return "idle"
	case RoleTransmitting:
		return "transmitting"
	case RoleListening:
		return "listening"
	case RoleBuilding:
		return "building"
	default:
		return fmt.Sprintf("role(%d)", int32(r))
	}
}

var (
	// ErrBusy is returned when an operation is requested while another
	// one holds the session.
	ErrBusy = errors.New("session: busy")
	// ErrNotConfigured is returned when a required file path is empty.
	ErrNotConfigured = errors.New("session: setting not configured")
	// ErrStartTimeout is returned by a listen when no datagram arrived
	// within START_TIMEOUT. Nothing is exported.
	ErrStartTimeout = errors.New("session: no datagram before start timeout")

	ErrNoSkeleton  = markers.ErrNoSkeleton
	ErrNoMarkerSet = markers.ErrNoMarkerSet
)

// MarkerConverter turns a skeleton into a marker set and back.
type MarkerConverter interface {
	ToMarkers(scene *anim.Scene, skel anim.NodeID, opts markers.Options) (anim.NodeID, error)
	FromMarkers(scene *anim.Scene, set anim.NodeID, target string, opts markers.Options) (anim.NodeID, error)
}

// KeyframeCodec sends a marker set's keys and applies received packets.
type KeyframeCodec interface {
	Encode(ctx context.Context, scene *anim.Scene, set anim.NodeID, s transport.Sender) (keyframe.EncodeStats, error)
	Decode(scene *anim.Scene, m jointmap.Map, p []byte) (keyframe.DecodeStats, error)
}

// SceneStore loads and saves scene files.
type SceneStore interface {
	Load(path string) (*anim.Scene, error)
	Save(scene *anim.Scene, path string, format scenefile.Format) error
}

// Binder opens the receiving endpoint for a listen.
type Binder func(ctx context.Context, cfg config.Config, log *slog.Logger) (transport.Receiver, error)

// Dialer opens the sending endpoint for a transmit.
type Dialer func(ctx context.Context, cfg config.Config) (transport.Sender, error)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(log *slog.Logger) Option { return func(s *Session) { s.log = log } }

// WithReporter sets the status sink. The default logs through the session
// logger.
func WithReporter(r Reporter) Option { return func(s *Session) { s.reporter = r } }

// WithConverter replaces the marker converter.
func WithConverter(c MarkerConverter) Option { return func(s *Session) { s.conv = c } }

// WithCodec replaces the keyframe codec.
func WithCodec(c KeyframeCodec) Option { return func(s *Session) { s.codec = c } }

// WithStore replaces the scene store.
func WithStore(st SceneStore) Option { return func(s *Session) { s.store = st } }

// WithBinder replaces how listen endpoints are opened.
func WithBinder(b Binder) Option { return func(s *Session) { s.bind = b } }

// WithDialer replaces how transmit endpoints are opened.
func WithDialer(d Dialer) Option { return func(s *Session) { s.dial = d } }

// Session owns the role gate and the collaborators of both workflows.
type Session struct {
	cfg      config.Config
	root     *slog.Logger
	log      *slog.Logger
	reporter Reporter
	conv     MarkerConverter
	codec    KeyframeCodec
	store    SceneStore
	bind     Binder
	dial     Dialer

	mu   sync.Mutex
	role Role
	wg   sync.WaitGroup

	// rxBuf is the shared receive buffer, overwritten by every receive.
	bufMu sync.Mutex
	rxBuf []byte
	// decodeMu serializes every write to the receive scene.
	decodeMu sync.Mutex
}

// New creates an idle session.
func New(cfg config.Config, opts ...Option) *Session {
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = config.DefaultReceiveTimeout
	}
	s := &Session{cfg: cfg}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.root = s.log
	s.log = s.log.With("component", "session")
	if s.reporter == nil {
		s.reporter = logReporter{log: s.log}
	}
	if s.conv == nil {
		s.conv = markers.Converter{}
	}
	if s.codec == nil {
		s.codec = keyframe.New(keyframe.Options{
			Interval:  cfg.SendInterval,
			EndMarker: cfg.SendEndMarker,
		}, s.root)
	}
	if s.store == nil {
		s.store = scenefile.Store{}
	}
	if s.bind == nil {
		s.bind = DefaultBinder
	}
	if s.dial == nil {
		s.dial = DefaultDialer
	}
	s.rxBuf = make([]byte, transport.MaxPayload)
	return s
}

// Config returns the session configuration.
func (s *Session) Config() config.Config { return s.cfg }

// Role returns the current role.
func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

func (s *Session) acquire(r Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.role != RoleIdle {
		return fmt.Errorf("%w: %s", ErrBusy, s.role)
	}
	s.role = r
	return nil
}

func (s *Session) release() {
	s.mu.Lock()
	s.role = RoleIdle
	s.mu.Unlock()
}

// Close waits for any running workflow to finish.
func (s *Session) Close() error {
	s.wg.Wait()
	return nil
}

type workflow func(ctx context.Context, t *Task, log *slog.Logger) error

// begin claims role and runs fn on its own goroutine. The role is reset
// before the task reports done, whatever fn does.
func (s *Session) begin(ctx context.Context, role Role, fn workflow) (*Task, error) {
	if err := s.acquire(role); err != nil {
		s.reporter.Report(Report{Role: role, Level: slog.LevelWarn, Message: "request refused", Err: err})
		return nil, err
	}
	t := newTask(role)
	log := s.log.With("op", t.id, "role", role.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := guard(func() error { return fn(ctx, t, log) })
		s.release()
		s.finish(t.id, role, err)
		t.finish(err)
	}()
	return t, nil
}

func (s *Session) finish(op string, role Role, err error) {
	if err != nil {
		s.reporter.Report(Report{Op: op, Role: role, Level: slog.LevelError, Message: role.String() + " failed", Err: err})
		return
	}
	s.reporter.Report(Report{Op: op, Role: role, Level: slog.LevelInfo, Message: role.String() + " finished"})
}

func (s *Session) info(op string, role Role, msg string) {
	s.reporter.Report(Report{Op: op, Role: role, Level: slog.LevelInfo, Message: msg})
}

// guard runs fn and converts a panic into a *TaskPanicError.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TaskPanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

func requirePath(key, path string) error {
	if path == "" {
		return fmt.Errorf("%w: %s", ErrNotConfigured, key)
	}
	return nil
}

func (s *Session) space() markers.Space {
	return markers.SpaceFor(s.cfg.GlobalTransform)
}

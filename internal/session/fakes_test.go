package session

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zsiec/bonecast/internal/anim"
	"github.com/zsiec/bonecast/internal/anim/synth"
	"github.com/zsiec/bonecast/internal/config"
	"github.com/zsiec/bonecast/internal/jointmap"
	"github.com/zsiec/bonecast/internal/keyframe"
	"github.com/zsiec/bonecast/internal/scenefile"
	"github.com/zsiec/bonecast/internal/transport"
)

// memStore keeps encoded scene files in memory.
type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemStore() *memStore { return &memStore{files: make(map[string][]byte)} }

func (m *memStore) Load(path string) (*anim.Scene, error) {
	m.mu.Lock()
	data, ok := m.files[path]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("load %s: %w", path, os.ErrNotExist)
	}
	return scenefile.Decode(data, scenefile.FormatFromPath(path))
}

func (m *memStore) Save(scene *anim.Scene, path string, format scenefile.Format) error {
	data, err := scenefile.Encode(scene, format)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = data
	return nil
}

func (m *memStore) has(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok
}

// pipe is an in-memory datagram link.
type pipe struct {
	ch chan []byte
}

func newPipe() *pipe { return &pipe{ch: make(chan []byte, 4096)} }

func (p *pipe) Send(ctx context.Context, b []byte) error {
	select {
	case p.ch <- slices.Clone(b):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipe) Receive(ctx context.Context, buf []byte) (int, error) {
	select {
	case b := <-p.ch:
		return copy(buf, b), nil
	case <-ctx.Done():
		return 0, transport.ContextError(ctx)
	}
}

func (p *pipe) LocalAddr() net.Addr { return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)} }
func (p *pipe) Close() error        { return nil }

// shuffler holds every datagram until Close, then delivers them in reverse
// order with the first one repeated at the end.
type shuffler struct {
	out  *pipe
	held [][]byte
}

func (s *shuffler) Send(_ context.Context, b []byte) error {
	if len(b) > 0 {
		s.held = append(s.held, slices.Clone(b))
	}
	return nil
}

func (s *shuffler) Close() error {
	for i := len(s.held) - 1; i >= 0; i-- {
		s.out.ch <- s.held[i]
	}
	if len(s.held) > 0 {
		s.out.ch <- s.held[0]
	}
	return nil
}

type counter struct{ n atomic.Int32 }

func (c *counter) binder(r transport.Receiver) Binder {
	return func(context.Context, config.Config, *slog.Logger) (transport.Receiver, error) {
		c.n.Add(1)
		return r, nil
	}
}

func (c *counter) dialer(s transport.Sender) Dialer {
	return func(context.Context, config.Config) (transport.Sender, error) {
		c.n.Add(1)
		return s, nil
	}
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []Report
}

func (r *recordingReporter) Report(rep Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
}

func (r *recordingReporter) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []error
	for _, rep := range r.reports {
		if rep.Err != nil {
			out = append(out, rep.Err)
		}
	}
	return out
}

type panicCodec struct{}

func (panicCodec) Encode(context.Context, *anim.Scene, anim.NodeID, transport.Sender) (keyframe.EncodeStats, error) {
	panic("encode exploded")
}

func (panicCodec) Decode(*anim.Scene, jointmap.Map, []byte) (keyframe.DecodeStats, error) {
	panic("decode exploded")
}

const (
	sourcePath = "source.json"
	basePath   = "base.yaml"
	exportPath = "export.json"
)

func testConfig(global bool) config.Config {
	cfg := config.Default()
	cfg.GlobalTransform = global
	cfg.SourceFile = sourcePath
	cfg.BaseModelFile = basePath
	cfg.ExportFile = exportPath
	cfg.ReceiveTimeout = 100 * time.Millisecond
	cfg.SendInterval = 0
	return cfg
}

var fixtureOpts = synth.Options{Joints: 7, Keys: 24, Props: true}

// fixtures writes the source scene and builds the base model from it.
func fixtures(t *testing.T, global bool) *memStore {
	t.Helper()
	store := newMemStore()
	if err := store.Save(synth.Skeleton(fixtureOpts), sourcePath, scenefile.FormatJSON); err != nil {
		t.Fatal(err)
	}
	s := New(testConfig(global), WithStore(store))
	if err := s.CreateBaseModel(context.Background()); err != nil {
		t.Fatalf("CreateBaseModel: %v", err)
	}
	return store
}

// fixturePackets returns the datagrams a transmit of the fixture produces.
func fixturePackets(t *testing.T, global bool) [][]byte {
	t.Helper()
	store := fixtures(t, global)
	link := newPipe()
	s := New(testConfig(global), WithStore(store), WithDialer((&counter{}).dialer(link)))
	task, err := s.BeginTransmit(context.Background())
	if err != nil {
		t.Fatalf("BeginTransmit: %v", err)
	}
	if err := task.Wait(); err != nil {
		t.Fatalf("transmit: %v", err)
	}
	var pkts [][]byte
	for len(link.ch) > 0 {
		pkts = append(pkts, <-link.ch)
	}
	return pkts
}

// checkExport compares the exported skeleton with the source animation at
// every source key time.
func checkExport(t *testing.T, store *memStore) {
	t.Helper()
	src, err := store.Load(sourcePath)
	if err != nil {
		t.Fatal(err)
	}
	got, err := store.Load(exportPath)
	if err != nil {
		t.Fatalf("load export: %v", err)
	}
	srcSkel := src.FirstTopLevel(anim.AttrSkeleton)
	gotSkel := got.FirstTopLevel(anim.AttrSkeleton)
	times := src.KeyTimes(srcSkel)

	for _, j := range src.Subtree(srcSkel) {
		want := src.Node(j)
		id := got.FindInSubtree(gotSkel, want.Name)
		if id == anim.InvalidNode {
			t.Fatalf("joint %s missing from export", want.Name)
		}
		have := got.Node(id)
		for _, at := range times {
			if d := have.Rotation.Value(at).Sub(want.Rotation.Value(at)); abs(d) > 1e-9 {
				t.Fatalf("%s rotation at %v: got %v, want %v", want.Name, at, have.Rotation.Value(at), want.Rotation.Value(at))
			}
			if d := have.Translation.Value(at).Sub(want.Translation.Value(at)); abs(d) > 1e-6 {
				t.Fatalf("%s translation at %v: got %v, want %v", want.Name, at, have.Translation.Value(at), want.Translation.Value(at))
			}
		}
	}
}

func abs(v anim.Vec3) float64 {
	s := 0.0
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if c < 0 {
			c = -c
		}
		s += c
	}
	return s
}

package anim

import (
	"math"
	"slices"
	"testing"
	"time"
)

func TestCurveInsertKeepsOrderAndReplaces(t *testing.T) {
	t.Parallel()

	c := NewCurve(
		Key{Time: 30 * time.Millisecond, Value: 3},
		Key{Time: 10 * time.Millisecond, Value: 1},
		Key{Time: 20 * time.Millisecond, Value: 2},
	)
	if c.Len() != 3 {
		t.Fatalf("Len: got %d, want 3", c.Len())
	}
	for i := 1; i < c.Len(); i++ {
		if c.Key(i-1).Time >= c.Key(i).Time {
			t.Fatalf("keys not sorted at %d: %v", i, c.Keys())
		}
	}

	if replaced := c.Insert(Key{Time: 20 * time.Millisecond, Value: 9}); !replaced {
		t.Error("Insert at existing time should report a replacement")
	}
	if c.Len() != 3 {
		t.Errorf("Len after replace: got %d, want 3", c.Len())
	}
	if got := c.Key(1).Value; got != 9 {
		t.Errorf("replaced value: got %v, want 9", got)
	}
}

func TestCurveInsertIsOrderIndependent(t *testing.T) {
	t.Parallel()

	keys := []Key{
		{Time: 0, Value: 0, Interp: InterpLinear},
		{Time: 10 * time.Millisecond, Value: 1, Interp: InterpLinear},
		{Time: 20 * time.Millisecond, Value: 4, Interp: InterpCubic},
		{Time: 30 * time.Millisecond, Value: 9, Interp: InterpCubic},
	}
	want := NewCurve(keys...).Keys()

	perms := [][]int{{3, 2, 1, 0}, {1, 3, 0, 2}, {2, 0, 3, 1}}
	for _, p := range perms {
		c := &Curve{}
		for _, i := range p {
			c.Insert(keys[i])
		}
		if got := c.Keys(); !slices.Equal(got, want) {
			t.Errorf("permutation %v: got %v, want %v", p, got, want)
		}
	}
}

func TestCurveRemoveAt(t *testing.T) {
	t.Parallel()

	c := NewCurve(Key{Time: 0, Value: 1}, Key{Time: 1, Value: 2}, Key{Time: 2, Value: 3})
	c.RemoveAt(1)
	if c.Len() != 2 {
		t.Fatalf("Len: got %d, want 2", c.Len())
	}
	if c.Key(1).Value != 3 {
		t.Errorf("Key(1): got %v, want 3", c.Key(1).Value)
	}
}

func TestCurveEvaluate(t *testing.T) {
	t.Parallel()

	ms := time.Millisecond
	tests := []struct {
		name   string
		interp Interpolation
		at     time.Duration
		want   float64
	}{
		{name: "before first", interp: InterpLinear, at: -5 * ms, want: 0},
		{name: "on key", interp: InterpLinear, at: 10 * ms, want: 10},
		{name: "linear midpoint", interp: InterpLinear, at: 5 * ms, want: 5},
		{name: "constant holds", interp: InterpConstant, at: 5 * ms, want: 0},
		{name: "after last", interp: InterpLinear, at: 50 * ms, want: 20},
		{name: "cubic on straight line", interp: InterpCubic, at: 15 * ms, want: 15},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := NewCurve(
				Key{Time: 0, Value: 0, Interp: tc.interp},
				Key{Time: 10 * ms, Value: 10, Interp: tc.interp},
				Key{Time: 20 * ms, Value: 20, Interp: tc.interp},
			)
			if got := c.Evaluate(tc.at, -1); math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("Evaluate(%v) = %v, want %v", tc.at, got, tc.want)
			}
		})
	}

	if got := (&Curve{}).Evaluate(0, 7); got != 7 {
		t.Errorf("empty curve: got %v, want fallback 7", got)
	}
}

func TestChannelAnimatedWithEmptyCurves(t *testing.T) {
	t.Parallel()

	var ch Channel
	if ch.Animated() {
		t.Fatal("zero channel should be static")
	}
	ch.Animate()
	if !ch.Animated() {
		t.Fatal("Animate should mark the channel animated")
	}
	if ch.KeyCount() != 0 {
		t.Errorf("KeyCount: got %d, want 0", ch.KeyCount())
	}

	st := ch.Structure()
	if !st.Animated() {
		t.Error("Structure should keep the animated state")
	}
}

func TestSceneSubtreePreorder(t *testing.T) {
	t.Parallel()

	s := NewScene("test")
	a := s.Add(RootID, "a", AttrSkeleton)
	b := s.Add(a, "b", AttrSkeleton)
	c := s.Add(a, "c", AttrSkeleton)
	d := s.Add(b, "d", AttrSkeleton)
	s.Add(RootID, "other", AttrNull)

	got := s.Subtree(a)
	want := []NodeID{a, b, d, c}
	if !slices.Equal(got, want) {
		t.Errorf("Subtree: got %v, want %v", got, want)
	}
	if s.Parent(d) != b {
		t.Errorf("Parent(d): got %d, want %d", s.Parent(d), b)
	}
	if s.FirstTopLevel(AttrSkeleton) != a {
		t.Errorf("FirstTopLevel: got %d, want %d", s.FirstTopLevel(AttrSkeleton), a)
	}
	if s.FindTopLevel(AttrNull, "other") == InvalidNode {
		t.Error("FindTopLevel should find the null node")
	}
	if s.FindInSubtree(a, "other") != InvalidNode {
		t.Error("FindInSubtree should not escape its root")
	}
}

func TestSceneAddInvalidParentPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("expected panic for invalid parent")
		}
	}()
	NewScene("x").Add(42, "orphan", AttrNull)
}

func TestUnrollRotations(t *testing.T) {
	t.Parallel()

	s := NewScene("unroll")
	j := s.Add(RootID, "joint", AttrSkeleton)
	child := s.Add(j, "child", AttrSkeleton)
	s.Node(j).Rotation.SetCurves(
		NewCurve(Key{Time: 0, Value: 170}, Key{Time: 1, Value: -175}, Key{Time: 2, Value: -160}),
		nil, nil,
	)
	s.Node(child).Rotation.SetCurves(
		NewCurve(Key{Time: 0, Value: 0}, Key{Time: 1, Value: 350}),
		nil, nil,
	)

	changed := UnrollRotations(s, j)
	if changed != 3 {
		t.Errorf("changed: got %d, want 3", changed)
	}

	x := s.Node(j).Rotation.Curve(X)
	want := []float64{170, 185, 200}
	for i, w := range want {
		if got := x.Key(i).Value; math.Abs(got-w) > 1e-9 {
			t.Errorf("joint key %d: got %v, want %v", i, got, w)
		}
	}
	if got := s.Node(child).Rotation.Curve(X).Key(1).Value; math.Abs(got+10) > 1e-9 {
		t.Errorf("child key 1: got %v, want -10", got)
	}
}

func TestEulerXYZInverse(t *testing.T) {
	t.Parallel()

	r := EulerXYZ(Vec3{X: 30, Y: -45, Z: 60})
	v := Vec3{X: 1, Y: 2, Z: 3}
	back := r.Transpose().Apply(r.Apply(v))
	if d := back.Sub(v); math.Abs(d.X)+math.Abs(d.Y)+math.Abs(d.Z) > 1e-9 {
		t.Errorf("R^T R v: got %v, want %v", back, v)
	}

	z90 := EulerXYZ(Vec3{Z: 90}).Apply(Vec3{X: 1})
	if math.Abs(z90.X) > 1e-9 || math.Abs(z90.Y-1) > 1e-9 {
		t.Errorf("Z 90 applied to X axis: got %v, want {0 1 0}", z90)
	}
}

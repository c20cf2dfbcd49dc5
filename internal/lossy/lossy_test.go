package lossy

import (
	"math/rand/v2"
	"testing"

	"github.com/zsiec/bonecast/internal/anim"
	"github.com/zsiec/bonecast/internal/anim/synth"
)

func TestDropKeysKeepsFirstKey(t *testing.T) {
	t.Parallel()

	scene := synth.Skeleton(synth.Options{Joints: 5, Keys: 40})
	skel := scene.FirstTopLevel(anim.AttrSkeleton)

	first := map[anim.NodeID]anim.Key{}
	for _, id := range scene.Subtree(skel) {
		first[id] = scene.Node(id).Rotation.Curve(anim.X).Key(0)
	}

	st := DropKeys(scene, skel, Options{Threshold: 10, Rand: rand.New(rand.NewPCG(1, 2))})

	for _, id := range scene.Subtree(skel) {
		n := scene.Node(id)
		for _, c := range []anim.Component{anim.X, anim.Y, anim.Z} {
			if got := n.Rotation.Curve(c).Len(); got != 1 {
				t.Errorf("%s rotation %d: got %d keys, want 1", n.Name, c, got)
			}
		}
		if got := n.Rotation.Curve(anim.X).Key(0); got != first[id] {
			t.Errorf("%s: first key changed: got %v, want %v", n.Name, got, first[id])
		}
	}
	// 5 rotation channels plus the root translation, 39 candidates each.
	if want := 6 * 39; st.Examined != want || st.Removed != want {
		t.Errorf("stats: got %+v, want %d examined and removed", st, want)
	}
	if st.Retained() != 0 {
		t.Errorf("Retained: got %v, want 0", st.Retained())
	}
}

func TestDropKeysStatistics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		threshold int
		want      float64
	}{
		{threshold: 0, want: 1},
		{threshold: DefaultThreshold, want: 0.1},
		{threshold: 5, want: 0.5},
		{threshold: 1, want: 0.9},
	}
	for _, tc := range tests {
		scene := synth.Skeleton(synth.Options{Joints: 15, Keys: 200})
		skel := scene.FirstTopLevel(anim.AttrSkeleton)
		st := DropKeys(scene, skel, Options{Threshold: tc.threshold, Rand: rand.New(rand.NewPCG(7, 7))})

		if got := st.Retained(); got < tc.want-0.05 || got > tc.want+0.05 {
			t.Errorf("threshold %d: retained %v, want about %v", tc.threshold, got, tc.want)
		}

		// Component curves of a channel stay in step.
		for _, id := range scene.Subtree(skel) {
			r := &scene.Node(id).Rotation
			if r.Curve(anim.X).Len() != r.Curve(anim.Z).Len() {
				t.Fatalf("threshold %d: component curves diverged", tc.threshold)
			}
		}
	}
}

func TestDropKeysZeroThresholdKeepsEverything(t *testing.T) {
	t.Parallel()

	scene := synth.Skeleton(synth.Options{Joints: 4, Keys: 30})
	skel := scene.FirstTopLevel(anim.AttrSkeleton)
	st := DropKeys(scene, skel, Options{Rand: rand.New(rand.NewPCG(3, 3))})
	if st.Removed != 0 || st.Examined == 0 {
		t.Errorf("stats: got %+v, want examined keys and none removed", st)
	}
	for _, id := range scene.Subtree(skel) {
		if got := scene.Node(id).Rotation.KeyCount(); got != 30 {
			t.Errorf("%s: got %d rotation keys, want 30", scene.Node(id).Name, got)
		}
	}
}

func TestDropKeysSkipsShortCurves(t *testing.T) {
	t.Parallel()

	scene := anim.NewScene("short")
	j := scene.Add(anim.RootID, "j", anim.AttrSkeleton)
	scene.Node(j).Rotation.SetCurves(anim.NewCurve(anim.Key{Value: 1}), nil, nil)
	scene.Node(j).Translation.Animate()

	st := DropKeys(scene, j, Options{Threshold: 10})
	if st.Examined != 0 || st.Removed != 0 {
		t.Errorf("stats: got %+v, want zero", st)
	}
	if scene.Node(j).Rotation.Curve(anim.X).Len() != 1 {
		t.Error("single-key curve must be left alone")
	}
}

func TestDropKeysDeterministic(t *testing.T) {
	t.Parallel()

	run := func() Stats {
		scene := synth.Skeleton(synth.Options{Keys: 50})
		return DropKeys(scene, scene.FirstTopLevel(anim.AttrSkeleton), Options{Threshold: DefaultThreshold, Rand: rand.New(rand.NewPCG(42, 0))})
	}
	if a, b := run(), run(); a != b {
		t.Errorf("same seed gave %+v and %+v", a, b)
	}
}

package jointmap

import (
	"testing"

	"github.com/zsiec/bonecast/internal/anim"
)

func TestBuild(t *testing.T) {
	t.Parallel()

	scene := anim.NewScene("map")
	set := scene.Add(anim.RootID, "Hips_markers", anim.AttrMarkerSet)
	ids := []anim.JointID{2, 7, 9, 3, 5}
	nodes := make([]anim.NodeID, len(ids))
	for i, id := range ids {
		nodes[i] = scene.Add(set, "m", anim.AttrMarker)
		scene.Node(nodes[i]).CustomID = id
	}
	scene.Node(nodes[0]).Translation.Animate()
	scene.Node(nodes[3]).Translation.Animate()

	m := Build(scene, set)
	if m.Len() != 6 {
		t.Fatalf("Len: got %d, want 6", m.Len())
	}
	for i, id := range ids {
		got, ok := m.Lookup(id)
		if !ok || got != nodes[i] {
			t.Errorf("Lookup(%d): got %d, %v; want %d", id, got, ok, nodes[i])
		}
	}
	if got, _ := m.Lookup(anim.TranslationID); got != nodes[3] {
		t.Errorf("translation slot: got %d, want last animated marker %d", got, nodes[3])
	}
	if _, ok := m.Lookup(42); ok {
		t.Error("Lookup(42) should miss")
	}
}

func TestBuildWithoutCarrier(t *testing.T) {
	t.Parallel()

	scene := anim.NewScene("static")
	set := scene.Add(anim.RootID, "set", anim.AttrMarkerSet)
	m1 := scene.Add(set, "a", anim.AttrMarker)
	scene.Node(m1).CustomID = 1
	scene.Add(set, "unnumbered", anim.AttrMarker)

	m := Build(scene, set)
	if m.Len() != 1 {
		t.Errorf("Len: got %d, want 1", m.Len())
	}
	if _, ok := m.Lookup(anim.TranslationID); ok {
		t.Error("no marker has animated translation, slot should be empty")
	}
}

// Package jointmap resolves wire joint IDs to marker nodes of a scene.
package jointmap

import (
	"github.com/zsiec/bonecast/internal/anim"
	"github.com/zsiec/bonecast/internal/markers"
)

// Map is a read-only lookup from joint ID to marker node. It is safe for
// concurrent readers once built.
type Map struct {
	nodes map[anim.JointID]anim.NodeID
}

// Build records every child of set under its custom ID. Markers without an
// ID are skipped. The translation carrier (see markers.TranslationCarrier)
// is additionally registered under anim.TranslationID, so one node can
// occupy two slots.
func Build(scene *anim.Scene, set anim.NodeID) Map {
	children := scene.Children(set)
	m := Map{nodes: make(map[anim.JointID]anim.NodeID, len(children)+1)}
	for _, c := range children {
		if id := scene.Node(c).CustomID; id != anim.NoJointID {
			m.nodes[id] = c
		}
	}
	if carrier := markers.TranslationCarrier(scene, set); carrier != anim.InvalidNode {
		m.nodes[anim.TranslationID] = carrier
	}
	return m
}

// Lookup returns the node registered for id.
func (m Map) Lookup(id anim.JointID) (anim.NodeID, bool) {
	n, ok := m.nodes[id]
	return n, ok
}

// Len returns the number of registered IDs, counting the translation slot.
func (m Map) Len() int { return len(m.nodes) }

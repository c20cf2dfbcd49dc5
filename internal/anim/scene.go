// Package anim holds the in-memory animation scene shared by the marker
// converter, the keyframe codec, and the session workflows. A Scene is an
// arena of nodes addressed by NodeID; hierarchy is expressed as parent and
// child index lists so that tree walks are plain iteration and no node is
// owned by two structures at once.
package anim

import (
	"fmt"
	"math"
	"time"
)

// NodeID indexes a node within its Scene.
type NodeID int

// RootID is the implicit scene root created by NewScene. Its children are
// the scene's top-level nodes.
const RootID NodeID = 0

// InvalidNode is returned by lookups that find nothing.
const InvalidNode NodeID = -1

// JointID is the small stable integer that identifies a marker track on
// the wire.
type JointID int16

const (
	// NoJointID marks a node whose custom ID was never assigned.
	NoJointID JointID = -1
	// TranslationID is the reserved slot for the marker that carries the
	// root translation curves.
	TranslationID JointID = math.MaxInt16
)

// Attribute is the node attribute type.
type Attribute uint8

const (
	AttrNull Attribute = iota
	AttrSkeleton
	AttrMarkerSet
	AttrMarker
)

var attributeNames = [...]string{
	AttrNull:      "null",
	AttrSkeleton:  "skeleton",
	AttrMarkerSet: "marker-set",
	AttrMarker:    "marker",
}

func (a Attribute) String() string {
	if int(a) < len(attributeNames) {
		return attributeNames[a]
	}
	return fmt.Sprintf("attribute(%d)", uint8(a))
}

// ParseAttribute is the inverse of Attribute.String.
func ParseAttribute(s string) (Attribute, error) {
	for i, name := range attributeNames {
		if name == s {
			return Attribute(i), nil
		}
	}
	return AttrNull, fmt.Errorf("anim: unknown attribute %q", s)
}

// Node is a single scene node. Link names the skeleton joint a marker
// stands for; it is empty on every other node.
type Node struct {
	Name        string
	Attr        Attribute
	CustomID    JointID
	Link        string
	Translation Channel
	Rotation    Channel

	parent   NodeID
	children []NodeID
}

// Channel returns the node's channel of the given kind.
func (n *Node) Channel(kind ChannelKind) *Channel {
	if kind == KindRotation {
		return &n.Rotation
	}
	return &n.Translation
}

// Scene is an arena of nodes rooted at RootID.
type Scene struct {
	Name  string
	nodes []*Node
}

// NewScene creates a scene containing only its root node.
func NewScene(name string) *Scene {
	return &Scene{
		Name: name,
		nodes: []*Node{{
			Name:     "root",
			CustomID: NoJointID,
			parent:   InvalidNode,
		}},
	}
}

// Add appends a node under parent and returns its ID. It panics if parent
// does not exist, since that can only come from a programming error.
func (s *Scene) Add(parent NodeID, name string, attr Attribute) NodeID {
	if !s.Valid(parent) {
		panic(fmt.Sprintf("anim: add %q under invalid parent %d", name, parent))
	}
	id := NodeID(len(s.nodes))
	s.nodes = append(s.nodes, &Node{
		Name:     name,
		Attr:     attr,
		CustomID: NoJointID,
		parent:   parent,
	})
	p := s.nodes[parent]
	p.children = append(p.children, id)
	return id
}

// Valid reports whether id addresses a node of s.
func (s *Scene) Valid(id NodeID) bool {
	return id >= 0 && int(id) < len(s.nodes)
}

// Len returns the number of nodes including the root.
func (s *Scene) Len() int {
	return len(s.nodes)
}

// Node returns the node for id, or nil.
func (s *Scene) Node(id NodeID) *Node {
	if !s.Valid(id) {
		return nil
	}
	return s.nodes[id]
}

// Parent returns the parent of id, or InvalidNode for the root.
func (s *Scene) Parent(id NodeID) NodeID {
	if !s.Valid(id) {
		return InvalidNode
	}
	return s.nodes[id].parent
}

// Children returns the child list of id. The slice is owned by the scene
// and must not be modified.
func (s *Scene) Children(id NodeID) []NodeID {
	if !s.Valid(id) {
		return nil
	}
	return s.nodes[id].children
}

// TopLevel returns the children of the scene root.
func (s *Scene) TopLevel() []NodeID {
	return s.Children(RootID)
}

// Subtree returns root and all of its descendants in depth-first preorder,
// children visited in insertion order.
func (s *Scene) Subtree(root NodeID) []NodeID {
	if !s.Valid(root) {
		return nil
	}
	var out []NodeID
	stack := []NodeID{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, id)
		kids := s.nodes[id].children
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
	return out
}

// FirstTopLevel returns the first top-level node with the given attribute.
func (s *Scene) FirstTopLevel(attr Attribute) NodeID {
	for _, id := range s.TopLevel() {
		if s.nodes[id].Attr == attr {
			return id
		}
	}
	return InvalidNode
}

// FindTopLevel returns the top-level node with the given attribute and
// name.
func (s *Scene) FindTopLevel(attr Attribute, name string) NodeID {
	for _, id := range s.TopLevel() {
		n := s.nodes[id]
		if n.Attr == attr && n.Name == name {
			return id
		}
	}
	return InvalidNode
}

// FindInSubtree returns the first node under root (inclusive) with name.
func (s *Scene) FindInSubtree(root NodeID, name string) NodeID {
	for _, id := range s.Subtree(root) {
		if s.nodes[id].Name == name {
			return id
		}
	}
	return InvalidNode
}

// KeyTimes returns the sorted union of every key time on every animated
// channel in the subtree rooted at root.
func (s *Scene) KeyTimes(root NodeID) []time.Duration {
	set := make(map[time.Duration]struct{})
	for _, id := range s.Subtree(root) {
		n := s.nodes[id]
		n.Translation.collectTimes(set)
		n.Rotation.collectTimes(set)
	}
	return sortedTimes(set)
}

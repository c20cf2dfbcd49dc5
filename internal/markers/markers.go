// Package markers converts a skeleton hierarchy into a flat marker set,
// one independent track per joint, and rebuilds the skeleton from such a
// set. Each marker keeps a stable custom ID so that a set produced on the
// sending side and a set loaded from a base model on the receiving side
// agree on the wire identity of every track.
package markers

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/zsiec/bonecast/internal/anim"
)

// SetSuffix is appended to the skeleton name to name its marker set.
const SetSuffix = "_markers"

// Sentinel errors for marker conversion.
var (
	ErrNoSkeleton      = errors.New("markers: no skeleton found")
	ErrNoMarkerSet     = errors.New("markers: no marker set found")
	ErrUnknownSkeleton = errors.New("markers: target skeleton not found")
	ErrSetExists       = errors.New("markers: marker set already exists")
)

// Space chooses which transform the marker translation tracks hold.
type Space uint8

const (
	// SpaceLocal copies each joint's local translation.
	SpaceLocal Space = iota
	// SpaceGlobal bakes each joint's world position.
	SpaceGlobal
)

// SpaceFor maps the global-transformation setting to a Space.
func SpaceFor(global bool) Space {
	if global {
		return SpaceGlobal
	}
	return SpaceLocal
}

func (s Space) String() string {
	if s == SpaceGlobal {
		return "global"
	}
	return "local"
}

// Mode chooses whether marker curves receive keys.
type Mode uint8

const (
	// ModeBake fills marker curves with the skeleton's keys.
	ModeBake Mode = iota
	// ModeStructure creates the markers and their channels with no keys,
	// which is what a receiver's base model needs.
	ModeStructure
)

// Options configures a conversion.
type Options struct {
	Space Space
	Mode  Mode
}

// Converter is the reference skeleton/marker converter.
type Converter struct{}

// FindSkeleton returns the first top-level skeleton root in scene.
func FindSkeleton(scene *anim.Scene) (anim.NodeID, error) {
	id := scene.FirstTopLevel(anim.AttrSkeleton)
	if id == anim.InvalidNode {
		return anim.InvalidNode, ErrNoSkeleton
	}
	return id, nil
}

// FindMarkerSet returns the first top-level marker set in scene.
func FindMarkerSet(scene *anim.Scene) (anim.NodeID, error) {
	id := scene.FirstTopLevel(anim.AttrMarkerSet)
	if id == anim.InvalidNode {
		return anim.InvalidNode, ErrNoMarkerSet
	}
	return id, nil
}

// TranslationCarrier returns the marker whose translation channel is
// animated. When several are, the last one in child order wins. It
// returns InvalidNode when none is.
func TranslationCarrier(scene *anim.Scene, set anim.NodeID) anim.NodeID {
	carrier := anim.InvalidNode
	for _, id := range scene.Children(set) {
		if scene.Node(id).Translation.Animated() {
			carrier = id
		}
	}
	return carrier
}

// ToMarkers adds a marker set for the skeleton rooted at skel to scene and
// returns it. Markers are numbered 1..N in depth-first joint order.
func (Converter) ToMarkers(scene *anim.Scene, skel anim.NodeID, opts Options) (anim.NodeID, error) {
	root := scene.Node(skel)
	if root == nil || root.Attr != anim.AttrSkeleton {
		return anim.InvalidNode, fmt.Errorf("%w: node %d", ErrNoSkeleton, skel)
	}
	setName := root.Name + SetSuffix
	if scene.FindTopLevel(anim.AttrMarkerSet, setName) != anim.InvalidNode {
		return anim.InvalidNode, fmt.Errorf("%w: %s", ErrSetExists, setName)
	}

	joints := scene.Subtree(skel)
	if len(joints) > math.MaxInt16-1 {
		return anim.InvalidNode, fmt.Errorf("markers: %d joints exceed the joint ID range", len(joints))
	}

	var world map[anim.NodeID][]anim.Vec3
	var times []time.Duration
	if opts.Space == SpaceGlobal {
		times = scene.KeyTimes(skel)
		world = worldPositions(scene, joints, times)
	}

	set := scene.Add(anim.RootID, setName, anim.AttrMarkerSet)
	scene.Node(set).Link = root.Name

	for i, j := range joints {
		jn := scene.Node(j)
		m := scene.Add(set, jn.Name, anim.AttrMarker)
		mn := scene.Node(m)
		mn.CustomID = anim.JointID(i + 1)
		mn.Link = jn.Name
		mn.Rotation = jn.Rotation.Clone()

		if opts.Space == SpaceGlobal {
			mn.Translation = bakeTrack(times, world[j])
		} else {
			mn.Translation = jn.Translation.Clone()
		}

		if opts.Mode == ModeStructure {
			mn.Rotation = mn.Rotation.Structure()
			mn.Translation = mn.Translation.Structure()
		}
	}
	return set, nil
}

// FromMarkers writes the marker tracks of set back onto the joints of the
// top-level skeleton named target and returns that skeleton. Joints with
// no matching marker keep their current channels.
func (Converter) FromMarkers(scene *anim.Scene, set anim.NodeID, target string, opts Options) (anim.NodeID, error) {
	sn := scene.Node(set)
	if sn == nil || sn.Attr != anim.AttrMarkerSet {
		return anim.InvalidNode, fmt.Errorf("%w: node %d", ErrNoMarkerSet, set)
	}
	skel := scene.FindTopLevel(anim.AttrSkeleton, target)
	if skel == anim.InvalidNode {
		return anim.InvalidNode, fmt.Errorf("%w: %q", ErrUnknownSkeleton, target)
	}

	byLink := make(map[string]anim.NodeID, len(scene.Children(set)))
	for _, m := range scene.Children(set) {
		byLink[scene.Node(m).Link] = m
	}

	joints := scene.Subtree(skel)
	for _, j := range joints {
		m, ok := byLink[scene.Node(j).Name]
		if !ok {
			continue
		}
		scene.Node(j).Rotation = scene.Node(m).Rotation.Clone()
		if opts.Space == SpaceLocal {
			scene.Node(j).Translation = scene.Node(m).Translation.Clone()
		}
	}

	if opts.Space == SpaceGlobal {
		localizeTranslations(scene, joints, byLink, scene.KeyTimes(set))
	}
	return skel, nil
}

// worldPositions evaluates the world position of every joint at each time.
// joints must be in preorder so parents are computed before children. With
// no times the rest pose at zero is used.
func worldPositions(scene *anim.Scene, joints []anim.NodeID, times []time.Duration) map[anim.NodeID][]anim.Vec3 {
	samples := times
	if len(samples) == 0 {
		samples = []time.Duration{0}
	}
	pos := make(map[anim.NodeID][]anim.Vec3, len(joints))
	rot := make(map[anim.NodeID][]anim.Mat3, len(joints))

	for _, j := range joints {
		n := scene.Node(j)
		parent := scene.Parent(j)
		pp, pr := pos[parent], rot[parent]
		p := make([]anim.Vec3, len(samples))
		r := make([]anim.Mat3, len(samples))
		for k, t := range samples {
			parentPos, parentRot := anim.Vec3{}, anim.Identity()
			if pp != nil {
				parentPos, parentRot = pp[k], pr[k]
			}
			p[k] = parentPos.Add(parentRot.Apply(n.Translation.Value(t)))
			r[k] = parentRot.Mul(anim.EulerXYZ(n.Rotation.Value(t)))
		}
		pos[j], rot[j] = p, r
	}
	return pos
}

// localizeTranslations converts world-space marker positions back into
// local joint translations using the already restored local rotations.
func localizeTranslations(scene *anim.Scene, joints []anim.NodeID, byLink map[string]anim.NodeID, times []time.Duration) {
	samples := times
	if len(samples) == 0 {
		samples = []time.Duration{0}
	}
	pos := make(map[anim.NodeID][]anim.Vec3, len(joints))
	rot := make(map[anim.NodeID][]anim.Mat3, len(joints))

	for _, j := range joints {
		n := scene.Node(j)
		parent := scene.Parent(j)
		pp, pr := pos[parent], rot[parent]
		m, hasMarker := byLink[n.Name]

		p := make([]anim.Vec3, len(samples))
		r := make([]anim.Mat3, len(samples))
		local := make([]anim.Vec3, len(samples))
		for k, t := range samples {
			parentPos, parentRot := anim.Vec3{}, anim.Identity()
			if pp != nil {
				parentPos, parentRot = pp[k], pr[k]
			}
			if hasMarker {
				p[k] = scene.Node(m).Translation.Value(t)
				local[k] = parentRot.Transpose().Apply(p[k].Sub(parentPos))
			} else {
				local[k] = n.Translation.Value(t)
				p[k] = parentPos.Add(parentRot.Apply(local[k]))
			}
			r[k] = parentRot.Mul(anim.EulerXYZ(n.Rotation.Value(t)))
		}
		pos[j], rot[j] = p, r

		if hasMarker {
			n.Translation = bakeTrack(times, local)
		}
	}
}

// bakeTrack turns per-time samples into a channel. Samples that never move
// become a static channel.
func bakeTrack(times []time.Duration, samples []anim.Vec3) anim.Channel {
	var ch anim.Channel
	if len(samples) == 0 {
		return ch
	}
	ch.Default = samples[0]
	if len(times) == 0 || constant(samples) {
		return ch
	}
	curves := ch.Animate()
	for k, t := range times {
		v := samples[k]
		for c, cv := range curves {
			cv.Insert(anim.Key{Time: t, Value: v.Component(anim.Component(c)), Interp: anim.InterpLinear})
		}
	}
	return ch
}

const bakeEpsilon = 1e-9

func constant(samples []anim.Vec3) bool {
	first := samples[0]
	for _, v := range samples[1:] {
		d := v.Sub(first)
		if math.Abs(d.X) > bakeEpsilon || math.Abs(d.Y) > bakeEpsilon || math.Abs(d.Z) > bakeEpsilon {
			return false
		}
	}
	return true
}

// Package synth generates deterministic skeleton animations for tests,
// demos, and the gen-skeleton tool.
package synth

import (
	"fmt"
	"math"
	"time"

	"github.com/zsiec/bonecast/internal/anim"
)

// Options controls the generated skeleton.
type Options struct {
	Name   string        // skeleton root name, default "Hips"
	Joints int           // total joint count including the root, default 5
	Keys   int           // keys per animated curve, default 10
	Step   time.Duration // time between keys, default 33ms
	// Props adds a non-skeleton top-level node before the skeleton so
	// callers can check that only the skeleton is picked up.
	Props bool
}

func (o *Options) defaults() {
	if o.Name == "" {
		o.Name = "Hips"
	}
	if o.Joints <= 0 {
		o.Joints = 5
	}
	if o.Keys <= 0 {
		o.Keys = 10
	}
	if o.Step <= 0 {
		o.Step = 33 * time.Millisecond
	}
}

// Skeleton builds a scene holding one animated skeleton. Joint i has parent
// (i-1)/2, giving a small branching hierarchy. The root translates and
// every joint rotates; non-root joints carry a static bone offset.
func Skeleton(opts Options) *anim.Scene {
	opts.defaults()

	s := anim.NewScene(opts.Name + "-take")
	if opts.Props {
		cam := s.Add(anim.RootID, "Camera", anim.AttrNull)
		s.Node(cam).Translation.Default = anim.Vec3{Z: 300}
	}

	ids := make([]anim.NodeID, opts.Joints)
	for i := range opts.Joints {
		parent := anim.RootID
		name := opts.Name
		if i > 0 {
			parent = ids[(i-1)/2]
			name = fmt.Sprintf("%s_j%d", opts.Name, i)
		}
		ids[i] = s.Add(parent, name, anim.AttrSkeleton)
		n := s.Node(ids[i])

		if i == 0 {
			n.Translation.SetCurves(
				curve(opts, anim.InterpLinear, func(k int) float64 { return float64(k) * 2.5 }),
				curve(opts, anim.InterpLinear, func(k int) float64 { return 90 + 3*math.Sin(float64(k)/2) }),
				curve(opts, anim.InterpLinear, func(k int) float64 { return float64(k) * -1.25 }),
			)
		} else {
			n.Translation.Default = anim.Vec3{X: float64(i%3) * 4, Y: 12, Z: float64(i%2) * -3}
		}

		phase := float64(i)
		n.Rotation.SetCurves(
			curve(opts, anim.InterpCubic, func(k int) float64 { return 20 * math.Sin(float64(k)/3+phase) }),
			curve(opts, anim.InterpCubic, func(k int) float64 { return 15 * math.Cos(float64(k)/4+phase) }),
			curve(opts, anim.InterpCubic, func(k int) float64 { return 5 * float64(k%4) }),
		)
	}
	return s
}

func curve(opts Options, interp anim.Interpolation, value func(k int) float64) *anim.Curve {
	c := &anim.Curve{}
	for k := range opts.Keys {
		c.Insert(anim.Key{
			Time:   time.Duration(k) * opts.Step,
			Value:  value(k),
			Interp: interp,
		})
	}
	return c
}

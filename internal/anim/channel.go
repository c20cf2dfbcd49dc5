package anim

import (
	"fmt"
	"time"
)

// ChannelKind names one of the two per-node transform channels.
type ChannelKind uint8

const (
	KindTranslation ChannelKind = iota
	KindRotation
)

func (k ChannelKind) String() string {
	switch k {
	case KindTranslation:
		return "translation"
	case KindRotation:
		return "rotation"
	default:
		return fmt.Sprintf("channel(%d)", uint8(k))
	}
}

// Component indexes X, Y, or Z within a channel.
type Component uint8

const (
	X Component = iota
	Y
	Z
)

// Channel is a three-component transform channel. It always has a static
// Default value and is animated when its curve triple exists. A channel
// with present but empty curves still counts as animated.
type Channel struct {
	Default Vec3
	curves  *[3]*Curve
}

// Animated reports whether the channel has curves.
func (c *Channel) Animated() bool {
	return c.curves != nil
}

// Animate creates empty curves if the channel has none and returns them.
func (c *Channel) Animate() [3]*Curve {
	if c.curves == nil {
		c.curves = &[3]*Curve{{}, {}, {}}
	}
	return *c.curves
}

// Curve returns one component curve, or nil when the channel is static.
func (c *Channel) Curve(comp Component) *Curve {
	if c.curves == nil || comp > Z {
		return nil
	}
	return c.curves[comp]
}

// SetCurves replaces the curve triple. Nil arguments become empty curves.
func (c *Channel) SetCurves(x, y, z *Curve) {
	for _, p := range []**Curve{&x, &y, &z} {
		if *p == nil {
			*p = &Curve{}
		}
	}
	c.curves = &[3]*Curve{x, y, z}
}

// MakeStatic drops the curves, keeping Default.
func (c *Channel) MakeStatic() {
	c.curves = nil
}

// ClearKeys empties every curve but keeps the channel animated.
func (c *Channel) ClearKeys() {
	if c.curves == nil {
		return
	}
	for _, cv := range c.curves {
		cv.Clear()
	}
}

// KeyCount returns the key count of the X curve, or 0 when static.
func (c *Channel) KeyCount() int {
	if c.curves == nil {
		return 0
	}
	return c.curves[X].Len()
}

// Value evaluates the channel at t.
func (c *Channel) Value(t time.Duration) Vec3 {
	if c.curves == nil {
		return c.Default
	}
	return Vec3{
		X: c.curves[X].Evaluate(t, c.Default.X),
		Y: c.curves[Y].Evaluate(t, c.Default.Y),
		Z: c.curves[Z].Evaluate(t, c.Default.Z),
	}
}

// Clone returns a deep copy.
func (c *Channel) Clone() Channel {
	out := Channel{Default: c.Default}
	if c.curves != nil {
		out.curves = &[3]*Curve{c.curves[X].Clone(), c.curves[Y].Clone(), c.curves[Z].Clone()}
	}
	return out
}

// Structure returns a copy with the same animated state but no keys.
func (c *Channel) Structure() Channel {
	out := Channel{Default: c.Default}
	if c.curves != nil {
		out.Animate()
	}
	return out
}

func (c *Channel) collectTimes(set map[time.Duration]struct{}) {
	if c.curves == nil {
		return
	}
	for _, cv := range c.curves {
		for _, k := range cv.keys {
			set[k.Time] = struct{}{}
		}
	}
}

// KeyTimes returns the sorted union of key times across the three curves.
func (c *Channel) KeyTimes() []time.Duration {
	set := make(map[time.Duration]struct{})
	c.collectTimes(set)
	return sortedTimes(set)
}

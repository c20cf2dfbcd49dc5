package anim

import (
	"fmt"
	"slices"
	"sort"
	"time"
)

// Interpolation selects how a curve is evaluated between a key and the
// next one.
type Interpolation uint8

const (
	InterpConstant Interpolation = iota
	InterpLinear
	InterpCubic
)

var interpolationNames = [...]string{
	InterpConstant: "constant",
	InterpLinear:   "linear",
	InterpCubic:    "cubic",
}

func (i Interpolation) String() string {
	if int(i) < len(interpolationNames) {
		return interpolationNames[i]
	}
	return fmt.Sprintf("interpolation(%d)", uint8(i))
}

// ParseInterpolation is the inverse of Interpolation.String.
func ParseInterpolation(s string) (Interpolation, error) {
	for i, name := range interpolationNames {
		if name == s {
			return Interpolation(i), nil
		}
	}
	return InterpConstant, fmt.Errorf("anim: unknown interpolation %q", s)
}

// Key is one keyframe sample.
type Key struct {
	Time   time.Duration
	Value  float64
	Interp Interpolation
}

// Curve is a time-ordered list of keys. At most one key exists per time.
type Curve struct {
	keys []Key
}

// NewCurve builds a curve from keys in any order.
func NewCurve(keys ...Key) *Curve {
	c := &Curve{}
	for _, k := range keys {
		c.Insert(k)
	}
	return c
}

// Len returns the key count.
func (c *Curve) Len() int {
	return len(c.keys)
}

// Key returns the key at index i.
func (c *Curve) Key(i int) Key {
	return c.keys[i]
}

// Keys returns a copy of all keys.
func (c *Curve) Keys() []Key {
	return slices.Clone(c.keys)
}

// Find returns the index of the key at exactly t.
func (c *Curve) Find(t time.Duration) (int, bool) {
	i := sort.Search(len(c.keys), func(i int) bool { return c.keys[i].Time >= t })
	return i, i < len(c.keys) && c.keys[i].Time == t
}

// Insert adds k, replacing any key already at k.Time. It reports whether
// a key was replaced. Applying the same key twice leaves one key.
func (c *Curve) Insert(k Key) bool {
	i, found := c.Find(k.Time)
	if found {
		c.keys[i] = k
		return true
	}
	c.keys = slices.Insert(c.keys, i, k)
	return false
}

// RemoveAt deletes the key at index i.
func (c *Curve) RemoveAt(i int) {
	c.keys = slices.Delete(c.keys, i, i+1)
}

// SetValue overwrites the value of the key at index i.
func (c *Curve) SetValue(i int, v float64) {
	c.keys[i].Value = v
}

// Clear removes every key, leaving the curve present but empty.
func (c *Curve) Clear() {
	c.keys = c.keys[:0]
}

// Clone returns a deep copy.
func (c *Curve) Clone() *Curve {
	return &Curve{keys: slices.Clone(c.keys)}
}

// Evaluate samples the curve at t. Before the first key and after the last
// one the curve holds the end value. An empty curve evaluates to fallback.
func (c *Curve) Evaluate(t time.Duration, fallback float64) float64 {
	n := len(c.keys)
	if n == 0 {
		return fallback
	}
	if t <= c.keys[0].Time {
		return c.keys[0].Value
	}
	if t >= c.keys[n-1].Time {
		return c.keys[n-1].Value
	}

	i, found := c.Find(t)
	if found {
		return c.keys[i].Value
	}
	k0, k1 := c.keys[i-1], c.keys[i]
	u := float64(t-k0.Time) / float64(k1.Time-k0.Time)

	switch k0.Interp {
	case InterpConstant:
		return k0.Value
	case InterpCubic:
		// Catmull-Rom tangents from the neighbouring keys, clamped at the ends.
		prev, next := k0, k1
		if i-2 >= 0 {
			prev = c.keys[i-2]
		}
		if i+1 < n {
			next = c.keys[i+1]
		}
		m0 := tangent(prev, k1) * float64(k1.Time-k0.Time)
		m1 := tangent(k0, next) * float64(k1.Time-k0.Time)
		return hermite(k0.Value, k1.Value, m0, m1, u)
	default:
		return k0.Value + (k1.Value-k0.Value)*u
	}
}

func tangent(a, b Key) float64 {
	if b.Time == a.Time {
		return 0
	}
	return (b.Value - a.Value) / float64(b.Time-a.Time)
}

func hermite(p0, p1, m0, m1, u float64) float64 {
	u2 := u * u
	u3 := u2 * u
	return (2*u3-3*u2+1)*p0 + (u3-2*u2+u)*m0 + (-2*u3+3*u2)*p1 + (u3-u2)*m1
}

func sortedTimes(set map[time.Duration]struct{}) []time.Duration {
	out := make([]time.Duration, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

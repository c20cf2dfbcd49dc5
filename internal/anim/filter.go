package anim

import "math"

// UnrollRotations removes Euler discontinuities from every animated
// rotation curve in the subtree rooted at root. Each key is shifted by a
// whole number of turns so that it lies within 180 degrees of the key
// before it. Nodes are filtered independently, so the walk order has no
// effect on the result. It returns the number of keys that changed.
func UnrollRotations(s *Scene, root NodeID) int {
	changed := 0
	for _, id := range s.Subtree(root) {
		ch := &s.nodes[id].Rotation
		if !ch.Animated() {
			continue
		}
		for _, cv := range ch.Animate() {
			changed += unrollCurve(cv)
		}
	}
	return changed
}

func unrollCurve(c *Curve) int {
	changed := 0
	for i := 1; i < len(c.keys); i++ {
		prev := c.keys[i-1].Value
		d := c.keys[i].Value - prev
		if math.Abs(d) <= 180 {
			continue
		}
		c.keys[i].Value -= 360 * math.Round(d/360)
		changed++
	}
	return changed
}

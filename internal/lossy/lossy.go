// Package lossy simulates packet loss by deleting keyframes from a scene
// before it is sent.
package lossy

import (
	"math/rand/v2"

	"github.com/zsiec/bonecast/internal/anim"
)

// DefaultThreshold drops roughly nine keys in ten. It is the CLI default;
// the zero Options drop nothing.
const DefaultThreshold = 9

// Options configures DropKeys.
type Options struct {
	// Threshold out of 10: a key is dropped when a draw in [0,10) falls
	// below it. Zero or less drops nothing; 10 or more drops every
	// candidate.
	Threshold int
	// Rand is the random source. Nil seeds a fresh one.
	Rand *rand.Rand
}

// Stats reports what DropKeys did.
type Stats struct {
	Examined int
	Removed  int
}

// Retained returns the fraction of examined keys that survived.
func (s Stats) Retained() float64 {
	if s.Examined == 0 {
		return 1
	}
	return float64(s.Examined-s.Removed) / float64(s.Examined)
}

// DropKeys walks every node under root and thins its translation and
// rotation curves. Each channel is handled on its own: for every key index
// j >= 1 of the X curve one draw decides whether index j is removed from
// all three component curves. The first key of every curve survives.
func DropKeys(scene *anim.Scene, root anim.NodeID, opts Options) Stats {
	threshold := opts.Threshold
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	var st Stats
	for _, id := range scene.Subtree(root) {
		n := scene.Node(id)
		dropChannel(&n.Translation, threshold, rng, &st)
		dropChannel(&n.Rotation, threshold, rng, &st)
	}
	return st
}

func dropChannel(ch *anim.Channel, threshold int, rng *rand.Rand, st *Stats) {
	if !ch.Animated() {
		return
	}
	curves := ch.Animate()
	n := curves[anim.X].Len()
	if n <= 1 {
		return
	}

	drop := make([]int, 0, n)
	for j := 1; j < n; j++ {
		st.Examined++
		if rng.IntN(10) < threshold {
			drop = append(drop, j)
		}
	}
	for i := len(drop) - 1; i >= 0; i-- {
		j := drop[i]
		for _, c := range curves {
			if j < c.Len() {
				c.RemoveAt(j)
			}
		}
		st.Removed++
	}
}

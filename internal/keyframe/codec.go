// Package keyframe serializes marker-set animation curves into datagrams
// and applies received datagrams back onto a scene.
//
// Every wire entry is self-addressed by (joint ID, channel, time), so
// packets can be applied in any order, more than once, or not at all.
package keyframe

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/zsiec/bonecast/internal/anim"
	"github.com/zsiec/bonecast/internal/jointmap"
	"github.com/zsiec/bonecast/internal/markers"
	"github.com/zsiec/bonecast/internal/transport"
)

// Options configures the sending side of a Codec.
type Options struct {
	// Interval paces consecutive packets. Zero sends as fast as possible.
	Interval time.Duration
	// EndMarker sends a zero-length datagram after the last packet.
	EndMarker bool
}

// Codec is the reference keyframe codec. Decode is not safe for
// concurrent use on the same scene; callers serialize it.
type Codec struct {
	opts Options
	log  *slog.Logger
}

// New creates a codec. If log is nil, slog.Default() is used.
func New(opts Options, log *slog.Logger) *Codec {
	if log == nil {
		log = slog.Default()
	}
	return &Codec{opts: opts, log: log.With("component", "codec")}
}

// EncodeStats summarizes one Encode call.
type EncodeStats struct {
	Packets int
	Bytes   int
	Keys    int
}

// DecodeStats summarizes one Decode call.
type DecodeStats struct {
	Seq      uint32
	Entries  int
	Applied  int
	Replaced int
	Unknown  int
}

// Entries flattens the curves of every marker in set into wire entries
// ordered by key time. The translation carrier's translation keys are
// addressed with anim.TranslationID; everything else uses the marker's own
// ID. Markers without an ID are skipped.
func Entries(scene *anim.Scene, set anim.NodeID) []Entry {
	carrier := markers.TranslationCarrier(scene, set)

	var out []Entry
	for _, m := range scene.Children(set) {
		n := scene.Node(m)
		if n.CustomID == anim.NoJointID {
			continue
		}
		for _, kind := range []anim.ChannelKind{anim.KindTranslation, anim.KindRotation} {
			ch := n.Channel(kind)
			if !ch.Animated() {
				continue
			}
			id := n.CustomID
			if kind == anim.KindTranslation && m == carrier {
				id = anim.TranslationID
			}
			for _, comp := range []anim.Component{anim.X, anim.Y, anim.Z} {
				for _, k := range ch.Curve(comp).Keys() {
					out = append(out, Entry{Joint: id, Kind: kind, Component: comp, Key: k})
				}
			}
		}
	}
	slices.SortStableFunc(out, func(a, b Entry) int { return cmp.Compare(a.Key.Time, b.Key.Time) })
	return out
}

// Packetize splits entries into datagrams of at most MaxEntries each,
// numbering them from zero.
func Packetize(entries []Entry) [][]byte {
	var pkts [][]byte
	for seq := 0; len(entries) > 0; seq++ {
		n := min(len(entries), MaxEntries)
		p := make([]byte, 0, HeaderSize+n*EntrySize)
		p = appendHeader(p, Header{Seq: uint32(seq), Count: uint16(n)})
		for _, e := range entries[:n] {
			p = appendEntry(p, e)
		}
		pkts = append(pkts, p)
		entries = entries[n:]
	}
	return pkts
}

// Encode sends every key of the marker set over s.
func (c *Codec) Encode(ctx context.Context, scene *anim.Scene, set anim.NodeID, s transport.Sender) (EncodeStats, error) {
	entries := Entries(scene, set)
	pkts := Packetize(entries)
	stats := EncodeStats{Keys: len(entries)}

	var tick <-chan time.Time
	if c.opts.Interval > 0 {
		t := time.NewTicker(c.opts.Interval)
		defer t.Stop()
		tick = t.C
	}

	for i, p := range pkts {
		if i > 0 && tick != nil {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-tick:
			}
		}
		if err := s.Send(ctx, p); err != nil {
			return stats, fmt.Errorf("keyframe: send packet %d: %w", i, err)
		}
		stats.Packets++
		stats.Bytes += len(p)
	}

	if c.opts.EndMarker {
		if err := s.Send(ctx, nil); err != nil {
			return stats, fmt.Errorf("keyframe: send end marker: %w", err)
		}
	}
	c.log.Debug("encoded", "packets", stats.Packets, "bytes", stats.Bytes, "keys", stats.Keys)
	return stats, nil
}

// Decode applies the entries of packet p to scene. A channel that is not yet
// animated is animated on first use. Entries for IDs missing from m are
// counted and skipped. A malformed packet changes nothing.
func (c *Codec) Decode(scene *anim.Scene, m jointmap.Map, p []byte) (DecodeStats, error) {
	h, entries, err := ParsePacket(p)
	if err != nil {
		return DecodeStats{}, err
	}
	stats := DecodeStats{Seq: h.Seq, Entries: len(entries)}
	for _, e := range entries {
		id, ok := m.Lookup(e.Joint)
		if !ok {
			stats.Unknown++
			continue
		}
		ch := scene.Node(id).Channel(e.Kind)
		curves := ch.Animate()
		if curves[e.Component].Insert(e.Key) {
			stats.Replaced++
		}
		stats.Applied++
	}
	return stats, nil
}

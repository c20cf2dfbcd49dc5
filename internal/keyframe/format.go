package keyframe

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/zsiec/bonecast/internal/anim"
	"github.com/zsiec/bonecast/internal/transport"
)

// Wire layout, all fields big-endian:
//
//	header [2B magic "KF"][1B version][1B flags][4B seq][2B count]
//	entry  [2B joint id][1B channel][1B interp][8B time ns][8B value]
//
// channel 0-2 is translation X/Y/Z, 3-5 is rotation X/Y/Z.
const (
	Magic   uint16 = 0x4B46 // "KF"
	Version byte   = 1

	HeaderSize = 10
	EntrySize  = 20

	// MaxEntries is the number of entries that fit in one datagram.
	MaxEntries = (transport.MaxPayload - HeaderSize) / EntrySize
)

// Entry is one keyframe addressed to a joint channel component.
type Entry struct {
	Joint     anim.JointID
	Kind      anim.ChannelKind
	Component anim.Component
	Key       anim.Key
}

func channelByte(kind anim.ChannelKind, comp anim.Component) byte {
	return byte(kind)*3 + byte(comp)
}

// Header is the fixed packet prefix.
type Header struct {
	Flags byte
	Seq   uint32
	Count uint16
}

func appendHeader(b []byte, h Header) []byte {
	b = binary.BigEndian.AppendUint16(b, Magic)
	b = append(b, Version, h.Flags)
	b = binary.BigEndian.AppendUint32(b, h.Seq)
	return binary.BigEndian.AppendUint16(b, h.Count)
}

func appendEntry(b []byte, e Entry) []byte {
	b = binary.BigEndian.AppendUint16(b, uint16(e.Joint))
	b = append(b, channelByte(e.Kind, e.Component), byte(e.Key.Interp))
	b = binary.BigEndian.AppendUint64(b, uint64(e.Key.Time.Nanoseconds()))
	return binary.BigEndian.AppendUint64(b, math.Float64bits(e.Key.Value))
}

// ParseHeader validates and decodes the packet header.
func ParseHeader(p []byte) (Header, error) {
	if len(p) < HeaderSize {
		return Header{}, &PacketError{Field: "header", Err: ErrTruncated}
	}
	if binary.BigEndian.Uint16(p[0:2]) != Magic {
		return Header{}, &PacketError{Field: "magic", Err: ErrBadMagic}
	}
	if p[2] != Version {
		return Header{}, &PacketError{Field: "version", Err: ErrVersion}
	}
	return Header{
		Flags: p[3],
		Seq:   binary.BigEndian.Uint32(p[4:8]),
		Count: binary.BigEndian.Uint16(p[8:10]),
	}, nil
}

// ParsePacket decodes a whole packet. Either every entry is valid or an
// error is returned and no entries are.
func ParsePacket(p []byte) (Header, []Entry, error) {
	h, err := ParseHeader(p)
	if err != nil {
		return h, nil, err
	}
	need := HeaderSize + int(h.Count)*EntrySize
	switch {
	case len(p) < need:
		return h, nil, &PacketError{Field: "entries", Err: ErrTruncated}
	case len(p) > need:
		return h, nil, &PacketError{Field: "entries", Err: ErrTrailing}
	}

	entries := make([]Entry, h.Count)
	for i := range entries {
		b := p[HeaderSize+i*EntrySize:]
		ch := b[2]
		if ch > 5 {
			return h, nil, &PacketError{Field: "channel", Err: ErrChannel}
		}
		interp := anim.Interpolation(b[3])
		if interp > anim.InterpCubic {
			return h, nil, &PacketError{Field: "interp", Err: ErrInterp}
		}
		entries[i] = Entry{
			Joint:     anim.JointID(binary.BigEndian.Uint16(b[0:2])),
			Kind:      anim.ChannelKind(ch / 3),
			Component: anim.Component(ch % 3),
			Key: anim.Key{
				Time:   time.Duration(binary.BigEndian.Uint64(b[4:12])),
				Value:  math.Float64frombits(binary.BigEndian.Uint64(b[12:20])),
				Interp: interp,
			},
		}
	}
	return h, entries, nil
}

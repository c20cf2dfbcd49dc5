package keyframe

import (
	"errors"
	"fmt"
)

// Sentinel errors for packet decoding.
var (
	ErrBadMagic  = errors.New("keyframe: bad magic")
	ErrVersion   = errors.New("keyframe: unsupported version")
	ErrTruncated = errors.New("keyframe: truncated packet")
	ErrTrailing  = errors.New("keyframe: trailing bytes after entries")
	ErrChannel   = errors.New("keyframe: invalid channel")
	ErrInterp    = errors.New("keyframe: invalid interpolation")
)

// PacketError records which part of a packet failed to parse.
type PacketError struct {
	Field string
	Err   error
}

func (e *PacketError) Error() string {
	return fmt.Sprintf("keyframe: parse %s: %v", e.Field, e.Err)
}

func (e *PacketError) Unwrap() error {
	return e.Err
}

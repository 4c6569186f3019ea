package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// segments is the cursor over one frame's tab-separated payload. Every
// in-flight decode owns its own cursor, so two decodes can never trample
// each other's position.
type segments struct {
	buf string
	pos int
	num int // ordinal of the segment last returned, -1 before the first
}

func newSegments(payload string) *segments {
	return &segments{buf: payload, num: -1}
}

// next returns the next tab-delimited field and advances the cursor past
// its trailing separator. ok is false once the cursor is at or past the
// end of the payload.
func (s *segments) next() (field string, ok bool) {
	if s.pos >= len(s.buf) {
		return "", false
	}
	s.num++
	sep := strings.IndexByte(s.buf[s.pos:], Separator)
	if sep < 0 {
		field = s.buf[s.pos:]
		s.pos = len(s.buf)
		return field, true
	}
	field = s.buf[s.pos : s.pos+sep]
	s.pos += sep + 1
	return field, true
}

// truncate drops the payload tail past n bytes. Used to strip the
// checksum suffix once it has been verified, so the last field of the
// final segment parses clean.
func (s *segments) truncate(n int) {
	if n < len(s.buf) {
		s.buf = s.buf[:n]
	}
}

// Typed field readers for the category decoders. A missing segment aborts
// the category's decode; fields already decoded are discarded by the
// caller.

func (s *segments) nextField() (string, error) {
	f, ok := s.next()
	if !ok {
		return "", fmt.Errorf("%w: no segment %d", ErrSegmentMissing, s.num+1)
	}
	return f, nil
}

func (s *segments) nextInt() (int64, error) {
	f, err := s.nextField()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(f, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("segment %d: %v", s.num, err)
	}
	return v, nil
}

func (s *segments) nextUint32() (uint32, error) {
	f, err := s.nextField()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(f, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("segment %d: %v", s.num, err)
	}
	return uint32(v), nil
}

func (s *segments) nextFloat() (float64, error) {
	f, err := s.nextField()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(f, 64)
	if err != nil {
		return 0, fmt.Errorf("segment %d: %v", s.num, err)
	}
	return v, nil
}

func (s *segments) nextBool() (bool, error) {
	v, err := s.nextInt()
	return v != 0, err
}

package editor

import (
	"errors"
	"fmt"
	"unicode/utf16"
)

// ErrInvalidRange is returned for highlight ranges that do not fit their text.
var ErrInvalidRange = errors.New("invalid highlight range")

// HighlightRange marks a span of text for emphasis.
//
// Offsets count UTF-16 code units, the unit browsers index strings in, and the
// range is half-open: Start is the first selected unit, End is one past the last.
type HighlightRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of code units covered.
func (r HighlightRange) Len() int {
	return r.End - r.Start
}

// Validate checks the range against a text of the given length in UTF-16 units.
func (r HighlightRange) Validate(length int) error {
	switch {
	case r.Start < 0 || r.End < 0:
		return fmt.Errorf("%w: negative offset in [%d, %d)", ErrInvalidRange, r.Start, r.End)
	case r.Start > r.End:
		return fmt.Errorf("%w: start %d after end %d", ErrInvalidRange, r.Start, r.End)
	case r.End > length:
		return fmt.Errorf("%w: end %d beyond length %d", ErrInvalidRange, r.End, length)
	}
	return nil
}

// Slice returns the part of s the range selects.
func (r HighlightRange) Slice(s string) (string, error) {
	units := utf16.Encode([]rune(s))
	if err := r.Validate(len(units)); err != nil {
		return "", err
	}
	return string(utf16.Decode(units[r.Start:r.End])), nil
}

// Len16 returns the length of s in UTF-16 code units.
func Len16(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// byteOffset converts a UTF-16 offset into a byte index into s.
func byteOffset(s string, offset int) (int, error) {
	if offset < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrInvalidRange, offset)
	}
	units := 0
	for i, r := range s {
		if units == offset {
			return i, nil
		}
		units += utf16.RuneLen(r)
		if units > offset {
			return 0, fmt.Errorf("%w: offset %d splits a character", ErrInvalidRange, offset)
		}
	}
	if units == offset {
		return len(s), nil
	}
	return 0, fmt.Errorf("%w: offset %d beyond length %d", ErrInvalidRange, offset, units)
}

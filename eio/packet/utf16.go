package packet

import "unicode/utf8"

// utf16Len returns how many UTF-16 code units r occupies: 1 normally, 2 for
// a character outside the basic multilingual plane (a surrogate pair).
func utf16Len(r rune) int {
	if r > 0xFFFF {
		return 2
	}
	return 1
}

// Utf16Count returns the length of s as the Engine.IO V3 protocol counts it:
// in UTF-16 code units, not bytes or runes. The V3 polling payload format
// frames each packet as "<charCount>:<packet>" where charCount is this
// count (spec.md §4.1), grounded on the teacher's parsers/engine/utils
// utf16 helpers.
func Utf16Count(b []byte) int {
	n := 0
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		n += utf16Len(r)
		b = b[size:]
	}
	return n
}

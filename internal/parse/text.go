package parse

import "strings"

// LineStart returns the offset of the first byte of the line containing off.
func LineStart(src []byte, off int) int {
	if off > len(src) {
		off = len(src)
	}
	for off > 0 && src[off-1] != '\n' {
		off--
	}
	return off
}

// LineEnd returns the offset of the newline ending the line containing off,
// or len(src) on the last line.
func LineEnd(src []byte, off int) int {
	for off < len(src) && src[off] != '\n' {
		off++
	}
	return off
}

// NextLine returns the offset of the first byte after the line containing off.
func NextLine(src []byte, off int) int {
	end := LineEnd(src, off)
	if end < len(src) {
		return end + 1
	}
	return end
}

// Indent returns the leading whitespace of the line starting at lineStart.
func Indent(src []byte, lineStart int) string {
	end := lineStart
	for end < len(src) && (src[end] == ' ' || src[end] == '\t') {
		end++
	}
	return string(src[lineStart:end])
}

// Blank reports whether src[from:to] holds only spaces and tabs.
func Blank(src []byte, from, to int) bool {
	return strings.TrimLeft(string(src[from:to]), " \t\r") == ""
}

// LineOf returns the 1-based line number of off.
func LineOf(src []byte, off int) int {
	if off > len(src) {
		off = len(src)
	}
	return strings.Count(string(src[:off]), "\n") + 1
}

// NormalizeRef canonicalizes a class or member reference for comparison:
// case-insensitive and without a leading namespace separator.
func NormalizeRef(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, `\/`)
	s = strings.TrimSuffix(s, "()")
	return strings.ToLower(s)
}

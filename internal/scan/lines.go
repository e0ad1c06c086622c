// Package scan analyzes raw python source text without parsing it. Every
// function here must keep working on code that is half typed and would be
// rejected by a parser.
package scan

import (
	"sort"
	"strings"
)

// Lines gives 1-based line access to a source buffer.
type Lines struct {
	src    string
	starts []int
}

// NewLines indexes src. A trailing newline yields a final empty line.
func NewLines(src string) *Lines {
	starts := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &Lines{src: src, starts: starts}
}

// Source returns the indexed text.
func (l *Lines) Source() string { return l.src }

// Len returns the number of lines.
func (l *Lines) Len() int { return len(l.starts) }

// Line returns line n without its newline. Out of range lines are empty.
func (l *Lines) Line(n int) string {
	if n < 1 || n > len(l.starts) {
		return ""
	}
	return l.src[l.starts[n-1]:l.LineEnd(n)]
}

// LineStart returns the offset of the first character of line n.
func (l *Lines) LineStart(n int) int {
	if n < 1 {
		return 0
	}
	if n > len(l.starts) {
		return len(l.src)
	}
	return l.starts[n-1]
}

// LineEnd returns the offset of the newline ending line n, or len(src).
func (l *Lines) LineEnd(n int) int {
	if n < 1 {
		return 0
	}
	if n >= len(l.starts) {
		return len(l.src)
	}
	return l.starts[n] - 1
}

// LineForOffset returns the 1-based line containing offset.
func (l *Lines) LineForOffset(offset int) int {
	return sort.Search(len(l.starts), func(i int) bool { return l.starts[i] > offset })
}

// Indent counts leading whitespace of line n, a tab counting as eight.
func (l *Lines) Indent(n int) int {
	return Indent(l.Line(n))
}

// Indent counts the leading whitespace of line, a tab counting as eight.
func Indent(line string) int {
	indent := 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case ' ':
			indent++
		case '\t':
			indent += 8
		default:
			return indent
		}
	}
	return indent
}

// IsBlankOrComment reports whether line holds no code.
func IsBlankOrComment(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed == "" || strings.HasPrefix(trimmed, "#")
}

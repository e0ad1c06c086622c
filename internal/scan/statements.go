package scan

import (
	"regexp"
	"strings"
)

var blockStartPattern = regexp.MustCompile(`^\s*(def|class|if|else|elif|try|except|for|while|with)[\s:(]`)

// BlockStart approximates the first line of the block holding lineno by
// scanning backwards for a block-opening keyword at an indentation no deeper
// than lineno's. An "if" or "for" that sits inside brackets belongs to a
// comprehension and is not an anchor.
func BlockStart(lines *Lines, lineno int) int {
	target := lines.Indent(lineno)
	for i := lineno; i > 0; i-- {
		line := lines.Line(i)
		if !blockStartPattern.MatchString(line) || Indent(line) > target {
			continue
		}
		stripped := strings.TrimLeft(line, " \t")
		if i > 1 && (strings.HasPrefix(stripped, "if") || strings.HasPrefix(stripped, "for")) {
			if closesEnclosingBracket(lines, i) {
				continue
			}
		}
		return i
	}
	return 1
}

// closesEnclosingBracket reports whether the few lines starting at i close
// a bracket that was opened before line i.
func closesEnclosingBracket(lines *Lines, i int) bool {
	depth := 0
	for j := i; j < min(i+5, lines.Len()+1); j++ {
		for _, c := range []byte(lines.Line(j)) {
			if c == '#' {
				break
			}
			switch c {
			case '(', '[':
				depth++
			case ')', ']':
				depth--
			}
			if depth < 0 {
				return true
			}
		}
	}
	return false
}

// StatementRangeFinder finds the logical statement holding a line and the
// block that follows it. Brackets, backslash continuations and string
// literals that span lines are tracked so the statement start is the first
// physical line of the statement.
type StatementRangeFinder struct {
	lines  *Lines
	lineno int

	inString     string
	openParens   []int
	continuation bool

	start    int
	blockEnd int
}

// NewStatementRangeFinder creates a finder for the statement on lineno.
func NewStatementRangeFinder(lines *Lines, lineno int) *StatementRangeFinder {
	return &StatementRangeFinder{lines: lines, lineno: lineno}
}

// Analyze scans from the approximated block start down to the target line.
func (f *StatementRangeFinder) Analyze() {
	f.inString = ""
	f.openParens = f.openParens[:0]
	f.continuation = false

	last := BlockStart(f.lines, f.lineno)
	for n := last; n <= f.lineno; n++ {
		if !f.continuation && len(f.openParens) == 0 && f.inString == "" {
			last = n
		}
		f.analyzeLine(n)
	}
	f.start = last

	indent := f.lines.Indent(last)
	end := f.lineno
	for i := f.lineno + 1; i <= f.lines.Len(); i++ {
		line := f.lines.Line(i)
		if IsBlankOrComment(line) {
			continue
		}
		if Indent(line) < indent {
			break
		}
		end = i
	}
	f.blockEnd = end
}

func (f *StatementRangeFinder) analyzeLine(n int) {
	line := f.lines.Line(n)
	for i := 0; i < len(line); i++ {
		c := line[i]
		if isQuote(c) {
			switch {
			case f.inString == "":
				f.inString = string(c)
				if triple := strings.Repeat(string(c), 3); strings.HasPrefix(line[i:], triple) {
					f.inString = triple
					i += 2
				}
			case strings.HasPrefix(line[i:], f.inString) && !escaped(line, i):
				i += len(f.inString) - 1
				f.inString = ""
			}
			continue
		}
		if f.inString != "" {
			if c == '\\' {
				i++
			}
			continue
		}
		if c == '#' {
			break
		}
		if isOpener(c) {
			f.openParens = append(f.openParens, n)
		}
		if isCloser(c) && len(f.openParens) > 0 {
			f.openParens = f.openParens[:len(f.openParens)-1]
		}
	}
	f.continuation = strings.HasSuffix(strings.TrimRight(line, " \t\r"), "\\")
	if len(f.inString) == 1 && !f.continuation {
		// Unterminated single quoted strings end with their line.
		f.inString = ""
	}
}

func escaped(line string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && line[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

// StatementStart returns the first line of the logical statement.
func (f *StatementRangeFinder) StatementStart() int { return f.start }

// BlockEnd returns the last code line, inclusive, of the run of lines from
// the target line on that are indented at least as deep as the statement.
// Blank and comment lines past the target neither end the run nor become
// its end. The next code line after BlockEnd is the first that dedents.
func (f *StatementRangeFinder) BlockEnd() int { return f.blockEnd }

// InsideBrackets reports whether the target line ends inside an open bracket.
func (f *StatementRangeFinder) InsideBrackets() bool { return len(f.openParens) > 0 }

// InsideString reports whether the target line ends inside a string literal.
func (f *StatementRangeFinder) InsideString() bool { return f.inString != "" }

// StatementAt returns the text of the logical statement holding offset,
// from its first physical line up to offset's line.
func StatementAt(lines *Lines, offset int) string {
	lineno := lines.LineForOffset(offset)
	f := NewStatementRangeFinder(lines, lineno)
	f.Analyze()
	return lines.Source()[lines.LineStart(f.StatementStart()):lines.LineEnd(lineno)]
}

// IsImportStatement reports whether offset lies in an import or from-import
// statement.
func IsImportStatement(lines *Lines, offset int) bool {
	stmt := strings.TrimSpace(StatementAt(lines, offset))
	return strings.HasPrefix(stmt, "import ") || strings.HasPrefix(stmt, "from ")
}

// FromStatementAt splits a from-import statement holding offset. module is
// the text between "from" and "import"; inModule reports whether offset is
// within the module part. ok is false if the statement is not a
// from-import.
func FromStatementAt(lines *Lines, offset int) (module string, inModule bool, ok bool) {
	lineno := lines.LineForOffset(offset)
	f := NewStatementRangeFinder(lines, lineno)
	f.Analyze()
	start := lines.LineStart(f.StatementStart())
	stmtEnd := lines.LineEnd(f.BlockEnd())
	text := lines.Source()[start:stmtEnd]
	trimmed := strings.TrimLeft(text, " \t")
	if !strings.HasPrefix(trimmed, "from") || len(trimmed) < 5 || !isSpace(trimmed[4]) && trimmed[4] != '.' {
		return "", false, false
	}
	lead := len(text) - len(trimmed)
	idx := importKeyword.FindStringIndex(trimmed)
	if idx == nil {
		return strings.TrimSpace(trimmed[4:]), true, true
	}
	module = strings.TrimSpace(trimmed[4:idx[0]])
	return module, offset < start+lead+idx[0], true
}

var importKeyword = regexp.MustCompile(`\simport[\s(\\]`)

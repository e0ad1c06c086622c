package scan

import "strings"

// WordFinder locates identifiers and dotted primaries in raw source text.
// Offsets are byte offsets into the source.
type WordFinder struct {
	src   string
	lines *Lines
}

// NewWordFinder wraps src.
func NewWordFinder(src string) *WordFinder {
	return &WordFinder{src: src}
}

// WordFinderFor wraps the source of lines, reusing its line index.
func WordFinderFor(lines *Lines) *WordFinder {
	return &WordFinder{src: lines.Source(), lines: lines}
}

func (w *WordFinder) lineIndex() *Lines {
	if w.lines == nil {
		w.lines = NewLines(w.src)
	}
	return w.lines
}

func isIDChar(c byte) bool {
	return c == '_' || c >= 0x80 ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isQuote(c byte) bool { return c == '\'' || c == '"' }

func isCloser(c byte) bool { return c == ')' || c == ']' || c == '}' }

func isOpener(c byte) bool { return c == '(' || c == '[' || c == '{' }

// IsIdentifierChar reports whether c can appear in a python identifier.
func IsIdentifierChar(c byte) bool { return isIDChar(c) }

// WordStart returns the offset of the first character of the word that
// contains offset.
func (w *WordFinder) WordStart(offset int) int {
	cur := min(offset, len(w.src)-1)
	for cur >= 0 && isIDChar(w.src[cur]) {
		cur--
	}
	return cur + 1
}

// WordEnd returns the offset just past the word that contains offset.
func (w *WordFinder) WordEnd(offset int) int {
	cur := max(offset, 0)
	for cur < len(w.src) && isIDChar(w.src[cur]) {
		cur++
	}
	return cur
}

// WordAt returns the word containing offset, or "".
func (w *WordFinder) WordAt(offset int) string {
	if offset < 0 || offset >= len(w.src) || !isIDChar(w.src[offset]) {
		return ""
	}
	return w.src[w.WordStart(offset):w.WordEnd(offset)]
}

func (w *WordFinder) lastNonSpace(offset int) int {
	for offset >= 0 && isSpace(w.src[offset]) {
		offset--
	}
	return offset
}

func (w *WordFinder) stringStart(offset int) int {
	q := w.src[offset]
	triple := strings.Repeat(string(q), 3)
	if offset >= 2 && w.src[offset-2:offset+1] == triple {
		if i := strings.LastIndex(w.src[:offset-2], triple); i >= 0 {
			return i
		}
		return offset - 2
	}
	if i := strings.LastIndexByte(w.src[:offset], q); i >= 0 {
		return i
	}
	return offset
}

func (w *WordFinder) parensStart(offset int) int {
	depth := 0
	for i := offset; i >= 0; i-- {
		c := w.src[i]
		switch {
		case isCloser(c):
			depth++
		case isOpener(c):
			depth--
		}
		if depth == 0 {
			return i
		}
	}
	return 0
}

// atomStart finds the start of the atom ending at offset: a word, a string
// literal, or a bracket group together with the callee or subscripted value
// it is attached to. String and bracket contents are skipped as a unit.
func (w *WordFinder) atomStart(offset int) int {
	old := offset
	if isSpace(w.src[offset]) {
		offset = w.lastNonSpace(offset)
		if offset < 0 {
			return old
		}
	}
	c := w.src[offset]
	switch {
	case isQuote(c):
		return w.stringStart(offset)
	case isCloser(c):
		start := w.parensStart(offset)
		if start > 0 && (isIDChar(w.src[start-1]) || isCloser(w.src[start-1])) {
			return w.atomStart(start - 1)
		}
		return start
	case isIDChar(c):
		return w.WordStart(offset)
	}
	return old
}

// PrimaryStart extends the atom ending at offset backwards across '.'
// attribute chains and returns where the whole primary begins.
func (w *WordFinder) PrimaryStart(offset int) int {
	if offset < 0 || offset >= len(w.src) {
		return max(0, min(offset, len(w.src)))
	}
	cur := offset + 1
	if w.src[offset] != '.' {
		cur = w.atomStart(offset)
	}
	for cur > 0 {
		dot := w.lastNonSpace(cur - 1)
		if dot < 0 || w.src[dot] != '.' {
			break
		}
		prev := w.lastNonSpace(dot - 1)
		if prev < 0 {
			break
		}
		start := w.atomStart(prev)
		first := w.src[start]
		if !isIDChar(first) && !isQuote(first) && !isOpener(first) {
			break
		}
		cur = start
	}
	return cur
}

// PrimaryAt returns the dotted primary expression that ends with the word
// containing offset, e.g. "self.items.append" for an offset on "append".
func (w *WordFinder) PrimaryAt(offset int) string {
	start, end := w.PrimaryRange(offset)
	return w.src[start:end]
}

// PrimaryRange is PrimaryAt returning offsets.
func (w *WordFinder) PrimaryRange(offset int) (int, int) {
	end := w.WordEnd(offset)
	if end == 0 {
		return 0, 0
	}
	return w.PrimaryStart(end - 1), end
}

// SplitStatementBefore splits the text before the cursor at offset into the
// expression to evaluate and the identifier being typed. For "os.pa" it
// returns ("os", "pa", offset of "pa"); for "os." it returns ("os", "", offset).
func (w *WordFinder) SplitStatementBefore(offset int) (prefix, partial string, partialStart int) {
	if offset <= 0 {
		return "", "", 0
	}
	offset = min(offset, len(w.src))
	end := offset - 1
	wordStart := w.atomStart(end)
	realStart := w.PrimaryStart(end)
	if strings.TrimSpace(w.src[wordStart:offset]) == "" {
		wordStart = end
	}
	if isSpace(w.src[end]) {
		wordStart = end
	}
	if strings.TrimSpace(w.src[realStart:wordStart]) == "" {
		realStart = wordStart
	}
	if realStart == wordStart && wordStart == end && !isIDChar(w.src[end]) {
		return "", "", offset
	}
	if realStart == wordStart {
		return "", w.src[wordStart:offset], wordStart
	}
	if w.src[end] == '.' {
		return strings.TrimSpace(w.src[realStart:end]), "", offset
	}
	lastDot := wordStart
	if w.src[wordStart] != '.' {
		lastDot = w.lastNonSpace(wordStart - 1)
	}
	lastChar := w.lastNonSpace(lastDot - 1)
	if isSpace(w.src[wordStart]) {
		wordStart = offset
	}
	return w.src[realStart : lastChar+1], w.src[wordStart:offset], wordStart
}

// IsFunctionCall reports whether the word at offset is followed by '('.
func (w *WordFinder) IsFunctionCall(offset int) bool {
	i := w.WordEnd(offset)
	for i < len(w.src) && (w.src[i] == ' ' || w.src[i] == '\t') {
		i++
	}
	return i < len(w.src) && w.src[i] == '('
}

// IsDefinitionName reports whether the word at offset is the name in a
// def or class header.
func (w *WordFinder) IsDefinitionName(offset int) bool {
	start := w.WordStart(offset)
	lineStart := strings.LastIndexByte(w.src[:start], '\n') + 1
	before := strings.Fields(w.src[lineStart:start])
	if len(before) == 0 {
		return false
	}
	last := before[len(before)-1]
	return last == "def" || last == "class"
}

// IsKeywordArgument reports whether the word at offset is a keyword in a
// call, like "key" in f(key=1). Defaulted parameters of a def header and
// assignment targets are not keywords.
func (w *WordFinder) IsKeywordArgument(offset int) bool {
	if !w.followedByAssign(w.WordEnd(offset)) {
		return false
	}
	start := w.WordStart(offset)
	j := w.lastNonSpace(start - 1)
	if j < 0 || (w.src[j] != '(' && w.src[j] != ',') {
		return false
	}
	open := w.innermostOpener(start)
	return open >= 0 && w.src[open] == '(' && w.isTrailer(open) && !w.isDefParen(open)
}

// IsAssignedHere reports whether the word at offset is a name bound by an
// assignment statement. That covers every name of an unpacking target like
// "x, y = pair", augmented assignments and annotated assignments.
func (w *WordFinder) IsAssignedHere(offset int) bool {
	word := w.WordAt(offset)
	if word == "" || keywords[word] {
		return false
	}
	start, end := w.WordStart(offset), w.WordEnd(offset)
	if j := w.lastNonSpace(start - 1); j >= 0 && w.src[j] == '.' {
		return false
	}
	open := w.innermostOpener(start)
	if open >= 0 && !w.isTargetGroup(open) {
		return false
	}
	i := w.skipBlanks(end)
	if i >= len(w.src) {
		return false
	}
	switch c := w.src[i]; {
	case c == ':':
		lineStart := strings.LastIndexByte(w.src[:start], '\n') + 1
		return open < 0 && strings.TrimSpace(w.src[lineStart:start]) == ""
	case c == '<' || c == '>':
		return i+2 < len(w.src) && w.src[i+1] == c && w.src[i+2] == '='
	case strings.IndexByte("+-*/%@&|^", c) >= 0:
		if i+1 < len(w.src) && w.src[i+1] == '=' {
			return true
		}
		if (c == '*' || c == '/') && i+2 < len(w.src) && w.src[i+1] == c && w.src[i+2] == '=' {
			return true
		}
		if c != '*' {
			return false
		}
	case c == '.' || c == '[' || c == '(':
		return false
	}
	// Walk the rest of the target list up to its '='.
	depth := 0
	for ; i < len(w.src); i++ {
		c := w.src[i]
		switch {
		case c == '=':
			return depth == 0 && open < 0 && w.followedByAssign(i)
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			if depth > 0 {
				depth--
				continue
			}
			if open < 0 {
				return false
			}
			open = w.innermostOpener(i + 1)
			if open >= 0 && !w.isTargetGroup(open) {
				return false
			}
		case c == ',' || c == '*' || c == ' ' || c == '\t' || isIDChar(c):
		case c == '\n' && (depth > 0 || open >= 0):
		default:
			return false
		}
	}
	return false
}

// IsFromStatementModule reports whether the word at offset lies in the
// module part of a from-import, like "path" in "from os.path import join".
func (w *WordFinder) IsFromStatementModule(offset int) bool {
	_, inModule, ok := FromStatementAt(w.lineIndex(), offset)
	return ok && inModule
}

// followedByAssign reports whether a plain '=' follows i, skipping blanks.
// '==' does not count.
func (w *WordFinder) followedByAssign(i int) bool {
	i = w.skipBlanks(i)
	if i >= len(w.src) || w.src[i] != '=' {
		return false
	}
	return i+1 >= len(w.src) || w.src[i+1] != '='
}

func (w *WordFinder) skipBlanks(i int) int {
	for i < len(w.src) && (w.src[i] == ' ' || w.src[i] == '\t') {
		i++
	}
	return i
}

// innermostOpener returns the offset of the innermost bracket still open
// at offset, or -1.
func (w *WordFinder) innermostOpener(offset int) int {
	depth := 0
	for i := min(offset, len(w.src)) - 1; i >= 0; i-- {
		c := w.src[i]
		switch {
		case isCloser(c):
			depth++
		case isOpener(c):
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}

// isTrailer reports whether the bracket at i calls or subscripts the
// expression before it, on the same line.
func (w *WordFinder) isTrailer(i int) bool {
	j := i - 1
	for j >= 0 && (w.src[j] == ' ' || w.src[j] == '\t') {
		j--
	}
	if j < 0 {
		return false
	}
	if isCloser(w.src[j]) || isQuote(w.src[j]) {
		return true
	}
	if !isIDChar(w.src[j]) {
		return false
	}
	return !keywords[w.src[w.WordStart(j):j+1]]
}

// isTargetGroup reports whether the bracket at i can group assignment
// targets, as in "(a, b) = pair" or "[a, b] = pair".
func (w *WordFinder) isTargetGroup(i int) bool {
	return w.src[i] != '{' && !w.isTrailer(i)
}

// isDefParen reports whether the '(' at i opens a def parameter list.
func (w *WordFinder) isDefParen(i int) bool {
	j := w.lastNonSpace(i - 1)
	if j < 0 || !isIDChar(w.src[j]) {
		return false
	}
	k := w.lastNonSpace(w.WordStart(j) - 1)
	return k >= 0 && w.WordAt(k) == "def"
}

var keywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true,
	"assert": true, "async": true, "await": true, "break": true, "class": true,
	"continue": true, "def": true, "del": true, "elif": true, "else": true,
	"except": true, "finally": true, "for": true, "from": true, "global": true,
	"if": true, "import": true, "in": true, "is": true, "lambda": true,
	"nonlocal": true, "not": true, "or": true, "pass": true, "raise": true,
	"return": true, "try": true, "while": true, "with": true, "yield": true,
}

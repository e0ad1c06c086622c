// Package pyast adapts the tree-sitter python grammar into the syntax trees
// the semantic model walks. Trees are only handed out for source that parses
// cleanly; anything else is a ParseError.
package pyast

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Node is a syntax tree node.
type Node = sitter.Node

// ParseError reports source that does not parse. Line and Column are 1-based
// and point at the first erroneous node.
type ParseError struct {
	Path   string
	Line   int
	Column int
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("pyast: syntax error in %s at line %d, column %d", e.Path, e.Line, e.Column)
	}
	return fmt.Sprintf("pyast: syntax error at line %d, column %d", e.Line, e.Column)
}

// Tree is a parsed module.
type Tree struct {
	tree *sitter.Tree
	src  []byte
}

// Root returns the module node.
func (t *Tree) Root() *Node { return t.tree.RootNode() }

// Source returns the parsed bytes.
func (t *Tree) Source() []byte { return t.src }

// Text returns the source text spanned by n.
func (t *Tree) Text(n *Node) string { return n.Content(t.src) }

// Close releases the tree. Nodes of a closed tree must not be used.
func (t *Tree) Close() { t.tree.Close() }

// Parse parses a python module.
func Parse(ctx context.Context, src []byte) (*Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("pyast: tree-sitter parse failed: %w", err)
	}
	root := tree.RootNode()
	if root.HasError() {
		bad := firstError(root)
		if bad == nil {
			bad = root
		}
		tree.Close()
		p := bad.StartPoint()
		return nil, &ParseError{Line: int(p.Row) + 1, Column: int(p.Column) + 1}
	}
	return &Tree{tree: tree, src: src}, nil
}

// ParseExpression parses a single expression, e.g. a dotted primary taken
// from an editor buffer, and returns it with the tree that owns it.
func ParseExpression(ctx context.Context, expr string) (*Tree, *Node, error) {
	expr = strings.TrimSpace(strings.ReplaceAll(expr, "\n", " "))
	if expr == "" {
		return nil, nil, &ParseError{Line: 1, Column: 1}
	}
	t, err := Parse(ctx, []byte(expr))
	if err != nil {
		return nil, nil, err
	}
	root := t.Root()
	if root.NamedChildCount() != 1 {
		t.Close()
		return nil, nil, &ParseError{Line: 1, Column: 1}
	}
	stmt := root.NamedChild(0)
	if stmt.Type() != "expression_statement" || stmt.NamedChildCount() != 1 {
		t.Close()
		return nil, nil, &ParseError{Line: 1, Column: 1}
	}
	node := stmt.NamedChild(0)
	if statementOnly[node.Type()] {
		t.Close()
		return nil, nil, &ParseError{Line: 1, Column: int(node.StartPoint().Column) + 1}
	}
	return t, node, nil
}

// statementOnly lists expression_statement children that are not
// expressions.
var statementOnly = map[string]bool{
	"assignment":           true,
	"augmented_assignment": true,
	"yield":                true,
}

func firstError(n *Node) *Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil || !child.HasError() && !child.IsMissing() {
			continue
		}
		if bad := firstError(child); bad != nil {
			return bad
		}
	}
	return nil
}

// Line returns the 1-based line where n starts.
func Line(n *Node) int { return int(n.StartPoint().Row) + 1 }

// EndLine returns the 1-based line where n ends.
func EndLine(n *Node) int {
	end := n.EndPoint()
	if end.Column == 0 && end.Row > n.StartPoint().Row {
		return int(end.Row)
	}
	return int(end.Row) + 1
}

// NamedChildren returns the named children of n.
func NamedChildren(n *Node) []*Node {
	count := int(n.NamedChildCount())
	out := make([]*Node, 0, count)
	for i := range count {
		out = append(out, n.NamedChild(i))
	}
	return out
}

// Children returns all children of n, anonymous tokens included.
func Children(n *Node) []*Node {
	count := int(n.ChildCount())
	out := make([]*Node, 0, count)
	for i := range count {
		out = append(out, n.Child(i))
	}
	return out
}

// Field returns the child stored under field name, or nil.
func Field(n *Node, name string) *Node {
	if n == nil {
		return nil
	}
	return n.ChildByFieldName(name)
}

// NodeKey identifies a node within one tree.
type NodeKey struct {
	Start, End uint32
	Type       string
}

// KeyOf returns the identity key of n.
func KeyOf(n *Node) NodeKey {
	return NodeKey{Start: n.StartByte(), End: n.EndByte(), Type: n.Type()}
}

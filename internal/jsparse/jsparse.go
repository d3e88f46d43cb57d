// Package jsparse inspects JavaScript and TypeScript modules with Tree-sitter.
// It answers the two questions the page planner asks of a module: which
// dynamic import() calls it makes, and whether it has a default export.
package jsparse

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Import is one dynamic import() call.
type Import struct {
	Specifier string // module specifier, unquoted
	ChunkName string // webpackChunkName annotation, if any
	Line      int    // 1-based
}

// Module is what Parse extracts from one source file.
type Module struct {
	DynamicImports []Import
	DefaultExport  bool
}

// SyntaxError points at the first unparseable region of a module.
type SyntaxError struct {
	Path   string
	Line   int
	Column int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d:%d: syntax error", e.Path, e.Line, e.Column)
}

var chunkNameComment = regexp.MustCompile(`webpackChunkName:\s*("(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*')`)

func languageFor(path string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".mts", ".cts":
		return typescript.GetLanguage()
	case ".tsx":
		return tsx.GetLanguage()
	default:
		return javascript.GetLanguage()
	}
}

// Parse parses src, choosing the grammar from path's extension.
func Parse(ctx context.Context, path string, src []byte) (*Module, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(languageFor(path))

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		if n := firstError(root); n != nil {
			p := n.StartPoint()
			return nil, &SyntaxError{Path: path, Line: int(p.Row) + 1, Column: int(p.Column) + 1}
		}
		return nil, &SyntaxError{Path: path, Line: 1, Column: 1}
	}

	m := &Module{}
	walk(root, src, m)
	return m, nil
}

// DynamicImports is a convenience wrapper for JavaScript source.
func DynamicImports(ctx context.Context, src []byte) ([]Import, error) {
	m, err := Parse(ctx, "module.js", src)
	if err != nil {
		return nil, err
	}
	return m.DynamicImports, nil
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := firstError(n.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

func walk(n *sitter.Node, src []byte, m *Module) {
	switch n.Type() {
	case "call_expression":
		if fn := n.ChildByFieldName("function"); fn != nil && fn.Type() == "import" {
			if imp, ok := dynamicImport(n, src); ok {
				m.DynamicImports = append(m.DynamicImports, imp)
			}
		}
	case "export_statement":
		if isDefaultExport(n, src) {
			m.DefaultExport = true
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		walk(n.NamedChild(i), src, m)
	}
}

func dynamicImport(call *sitter.Node, src []byte) (Import, bool) {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return Import{}, false
	}
	imp := Import{Line: int(call.StartPoint().Row) + 1}
	found := false
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		switch arg.Type() {
		case "comment":
			if m := chunkNameComment.FindStringSubmatch(arg.Content(src)); m != nil {
				imp.ChunkName = unquote(m[1])
			}
		case "string":
			if !found {
				imp.Specifier = unquote(arg.Content(src))
				found = true
			}
		}
	}
	return imp, found
}

func isDefaultExport(n *sitter.Node, src []byte) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "default":
			return true
		case "export_clause":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				spec := child.NamedChild(j)
				if alias := spec.ChildByFieldName("alias"); alias != nil && alias.Content(src) == "default" {
					return true
				}
			}
		}
	}
	return false
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		s = doubleQuoted(s[1 : len(s)-1])
	}
	if u, err := strconv.Unquote(s); err == nil {
		return u
	}
	return strings.Trim(s, "\"'`")
}

// doubleQuoted rewrites the body of a single-quoted JS string as a
// double-quoted one that strconv.Unquote accepts.
func doubleQuoted(body string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\\' && i+1 < len(body):
			if body[i+1] == '\'' {
				b.WriteByte('\'')
			} else {
				b.WriteByte(c)
				b.WriteByte(body[i+1])
			}
			i++
		case c == '"':
			b.WriteString(`\"`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

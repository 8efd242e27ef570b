// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package treesitter is the bundled pkg/plugin.LanguageParser implementation,
// backed by github.com/smacker/go-tree-sitter. One Parser per language
// handles Go, Python, JavaScript and TypeScript, each drawing from a pool
// of tree-sitter parsers for its language, since those are not safe for
// concurrent use.
package treesitter

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/coreace/ace/pkg/model"
	"github.com/coreace/ace/pkg/plugin"
)

// tree wraps a *sitter.Tree together with the source bytes it was parsed
// from (tree-sitter nodes are only meaningful relative to their source).
type tree struct {
	t       *sitter.Tree
	content []byte
	lang    string
}

func (t *tree) Close() {
	if t.t != nil {
		t.t.Close()
	}
}

// Parser implements pkg/plugin.LanguageParser for one grammar at a time;
// New constructs one per supported language, all sharing the process-wide
// parser pools.
type Parser struct {
	lang string
	pool *sync.Pool
}

var (
	poolInit sync.Once
	goPool   sync.Pool
	pyPool   sync.Pool
	jsPool   sync.Pool
	tsPool   sync.Pool
)

func initPools() {
	poolInit.Do(func() {
		goPool.New = func() any {
			p := sitter.NewParser()
			p.SetLanguage(golang.GetLanguage())
			return p
		}
		pyPool.New = func() any {
			p := sitter.NewParser()
			p.SetLanguage(python.GetLanguage())
			return p
		}
		jsPool.New = func() any {
			p := sitter.NewParser()
			p.SetLanguage(javascript.GetLanguage())
			return p
		}
		tsPool.New = func() any {
			p := sitter.NewParser()
			p.SetLanguage(typescript.GetLanguage())
			return p
		}
	})
}

// SupportedLanguages are the grammars bundled with this implementation.
var SupportedLanguages = []string{"go", "python", "javascript", "typescript"}

// New returns a LanguageParser for one of SupportedLanguages, or an error
// for anything else.
func New(language string) (*Parser, error) {
	initPools()
	var pool *sync.Pool
	switch language {
	case "go":
		pool = &goPool
	case "python":
		pool = &pyPool
	case "javascript":
		pool = &jsPool
	case "typescript":
		pool = &tsPool
	default:
		return nil, fmt.Errorf("treesitter: unsupported language %q", language)
	}
	return &Parser{lang: language, pool: pool}, nil
}

func (p *Parser) Language() string { return p.lang }

func (p *Parser) Parse(content []byte) (plugin.ParseTree, error) {
	parserObj := p.pool.Get()
	sp, ok := parserObj.(*sitter.Parser)
	if !ok {
		return nil, fmt.Errorf("treesitter: invalid parser from %s pool", p.lang)
	}
	defer p.pool.Put(sp)

	t, err := sp.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("treesitter: parse %s: %w", p.lang, err)
	}
	if t == nil || t.RootNode() == nil {
		return nil, fmt.Errorf("treesitter: parse %s: empty tree", p.lang)
	}
	if t.RootNode().HasError() {
		return nil, fmt.Errorf("treesitter: parse %s: syntax error", p.lang)
	}
	return &tree{t: t, content: content, lang: p.lang}, nil
}

// Reemit returns the original bytes the tree was parsed from: tree-sitter
// is a read-only parser here (no incremental editing API is used), so
// reemission is always byte-identical by construction.
func (p *Parser) Reemit(pt plugin.ParseTree) ([]byte, bool, error) {
	t, err := asTree(pt)
	if err != nil {
		return nil, false, err
	}
	return t.content, true, nil
}

// CanonicalHash hashes a canonicalized textual form of the tree: every
// node's type name, plus the literal text of each leaf token, with
// whitespace-only leaf tokens and comment nodes elided, walked in a fixed
// pre-order. Byte offsets are not part of the hashed form. This keeps
// inconsequential whitespace/comment edits from changing the hash while
// any structural change (added/removed/reordered/retyped node) does.
func (p *Parser) CanonicalHash(pt plugin.ParseTree) ([32]byte, error) {
	t, err := asTree(pt)
	if err != nil {
		return [32]byte{}, err
	}
	var buf bytes.Buffer
	walkCanonical(t.t.RootNode(), t.content, &buf)
	return sha256.Sum256(buf.Bytes()), nil
}

func isIgnorable(nodeType string) bool {
	switch nodeType {
	case "comment", "line_comment", "block_comment", "\n", " ":
		return true
	}
	return false
}

func walkCanonical(n *sitter.Node, content []byte, buf *bytes.Buffer) {
	if n == nil {
		return
	}
	nt := n.Type()
	if isIgnorable(nt) {
		return
	}
	if n.ChildCount() == 0 {
		// Leaf token: include its type and literal text (identifiers,
		// literals, operators) since those carry program meaning.
		buf.WriteString(nt)
		buf.WriteByte(':')
		buf.Write(content[n.StartByte():n.EndByte()])
		buf.WriteByte('\n')
		return
	}
	buf.WriteString(nt)
	buf.WriteByte('(')
	for i := 0; i < int(n.ChildCount()); i++ {
		walkCanonical(n.Child(i), content, buf)
	}
	buf.WriteByte(')')
}

// CountSymbols returns declared function/class/import counts via a single
// shallow walk, used by Guard layer 3.
func (p *Parser) CountSymbols(pt plugin.ParseTree) (model.ParseSymbolCounts, error) {
	t, err := asTree(pt)
	if err != nil {
		return model.ParseSymbolCounts{}, err
	}
	var counts model.ParseSymbolCounts
	walkCount(t.t.RootNode(), t.lang, &counts)
	return counts, nil
}

func walkCount(n *sitter.Node, lang string, counts *model.ParseSymbolCounts) {
	if n == nil {
		return
	}
	if functionNodeType(lang, n.Type()) {
		counts.Functions++
	}
	if classNodeType(lang, n.Type()) {
		counts.Classes++
	}
	if importNodeType(lang, n.Type()) {
		counts.Imports++
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		walkCount(n.Child(i), lang, counts)
	}
}

func functionNodeType(lang, nt string) bool {
	switch lang {
	case "go":
		return nt == "function_declaration" || nt == "method_declaration"
	case "python":
		return nt == "function_definition"
	case "javascript", "typescript":
		return nt == "function_declaration" || nt == "method_definition" || nt == "arrow_function"
	}
	return false
}

func classNodeType(lang, nt string) bool {
	switch lang {
	case "go":
		return nt == "type_spec"
	case "python":
		return nt == "class_definition"
	case "javascript", "typescript":
		return nt == "class_declaration"
	}
	return false
}

func importNodeType(lang, nt string) bool {
	switch lang {
	case "go":
		return nt == "import_spec"
	case "python":
		return nt == "import_statement" || nt == "import_from_statement"
	case "javascript", "typescript":
		return nt == "import_statement"
	}
	return false
}

// StructurallyEquivalent compares two trees' canonical hashes: identical
// canonicalized structure is exactly the definition of structural
// equivalence this package uses.
func (p *Parser) StructurallyEquivalent(a, b plugin.ParseTree) (bool, error) {
	ha, err := p.CanonicalHash(a)
	if err != nil {
		return false, err
	}
	hb, err := p.CanonicalHash(b)
	if err != nil {
		return false, err
	}
	return ha == hb, nil
}

// Imports returns import paths in source order.
func (p *Parser) Imports(pt plugin.ParseTree) ([]string, error) {
	t, err := asTree(pt)
	if err != nil {
		return nil, err
	}
	var out []string
	collectImports(t.t.RootNode(), t.lang, t.content, &out)
	return out, nil
}

func collectImports(n *sitter.Node, lang string, content []byte, out *[]string) {
	if n == nil {
		return
	}
	if importNodeType(lang, n.Type()) {
		path := importPathFromNode(n, lang, content)
		if path != "" {
			*out = append(*out, path)
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		collectImports(n.Child(i), lang, content, out)
	}
}

func importPathFromNode(n *sitter.Node, lang string, content []byte) string {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch c.Type() {
		case "interpreted_string_literal", "string", "string_literal":
			raw := string(content[c.StartByte():c.EndByte()])
			return trimQuotes(raw)
		case "dotted_name":
			return string(content[c.StartByte():c.EndByte()])
		}
	}
	return ""
}

func trimQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'' || first == '`') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// Symbols extracts RepoMap entries for one file: every function/method and
// top-level type/class declaration, each carrying the file's full sorted
// import list as its dependency set (a coarse but deterministic
// approximation — see DESIGN.md's "context bucketing" note for why a finer
// per-symbol dependency graph is not attempted here).
func (p *Parser) Symbols(filePath string, content []byte, pt plugin.ParseTree) ([]model.SymbolEntry, error) {
	t, err := asTree(pt)
	if err != nil {
		return nil, err
	}
	imports, err := p.Imports(pt)
	if err != nil {
		return nil, err
	}
	sortedDeps := append([]string(nil), imports...)
	sort.Strings(sortedDeps)

	var entries []model.SymbolEntry
	walkSymbols(t.t.RootNode(), t.lang, content, filePath, sortedDeps, &entries)
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].File != entries[j].File {
			return entries[i].File < entries[j].File
		}
		return entries[i].Line < entries[j].Line
	})
	return entries, nil
}

func walkSymbols(n *sitter.Node, lang string, content []byte, filePath string, deps []string, out *[]model.SymbolEntry) {
	if n == nil {
		return
	}
	nt := n.Type()
	if functionNodeType(lang, nt) {
		name := symbolName(n, lang, content)
		if name != "" {
			out = appendSymbol(out, name, model.SymbolFunction, filePath, n, deps)
		}
	} else if classNodeType(lang, nt) {
		name := symbolName(n, lang, content)
		if name != "" {
			out = appendSymbol(out, name, model.SymbolClass, filePath, n, deps)
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		walkSymbols(n.Child(i), lang, content, filePath, deps, out)
	}
}

func appendSymbol(out *[]model.SymbolEntry, name string, kind model.SymbolKind, filePath string, n *sitter.Node, deps []string) *[]model.SymbolEntry {
	*out = append(*out, model.SymbolEntry{
		Name:    name,
		Kind:    kind,
		File:    filePath,
		Line:    int(n.StartPoint().Row) + 1,
		EndLine: int(n.EndPoint().Row) + 1,
		Deps:    deps,
	})
	return out
}

func symbolName(n *sitter.Node, lang string, content []byte) string {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch c.Type() {
		case "identifier", "type_identifier", "field_identifier", "property_identifier":
			return string(content[c.StartByte():c.EndByte()])
		}
	}
	return ""
}

func asTree(pt plugin.ParseTree) (*tree, error) {
	t, ok := pt.(*tree)
	if !ok {
		return nil, fmt.Errorf("treesitter: unexpected parse tree type %T", pt)
	}
	return t, nil
}

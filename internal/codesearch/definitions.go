// Package codesearch answers "where is X defined" without a full index:
// it parses one file on demand with tree-sitter and walks the whole AST
// for definitions. Two grammars ship (Go and JavaScript); the
// read_definitions tool is the only consumer.
package codesearch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
)

// DefinitionLocation is one named symbol found in a source file.
type DefinitionLocation struct {
	Kind      string `json:"kind"` // "function", "method", "type", "class"
	Name      string `json:"name"`
	LineStart int    `json:"line_start"`
	LineEnd   int    `json:"line_end"`
}

// languageFor maps a file extension to its tree-sitter grammar; an
// unsupported extension is reported to the caller rather than guessed at.
func languageFor(path string) (*sitter.Language, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return golang.GetLanguage(), nil
	case ".js", ".jsx", ".mjs":
		return javascript.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("no tree-sitter grammar for %s", path)
	}
}

// FindDefinitions parses source and returns every function, method, type,
// and class definition it finds, at any nesting depth (class methods and
// definitions inside function bodies included), in document order.
func FindDefinitions(ctx context.Context, path string, source []byte) ([]DefinitionLocation, error) {
	lang, err := languageFor(path)
	if err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, fmt.Errorf("empty parse tree for %s", path)
	}

	var defs []DefinitionLocation
	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}
		if kind, ok := definitionKind(node.Type()); ok {
			name := ""
			if nameNode := node.ChildByFieldName("name"); nameNode != nil {
				name = nameNode.Content(source)
			}
			defs = append(defs, DefinitionLocation{
				Kind:      kind,
				Name:      name,
				LineStart: int(node.StartPoint().Row) + 1,
				LineEnd:   int(node.EndPoint().Row) + 1,
			})
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}
	walk(root)
	return defs, nil
}

func definitionKind(nodeType string) (string, bool) {
	switch nodeType {
	case "function_declaration":
		return "function", true
	case "method_declaration", "method_definition":
		return "method", true
	case "type_spec":
		return "type", true
	case "class_declaration":
		return "class", true
	default:
		return "", false
	}
}

package codesearch

import (
	"context"
	"testing"
)

func TestFindDefinitionsGo(t *testing.T) {
	src := []byte(`package sample

type Widget struct {
	Name string
}

func NewWidget(name string) *Widget {
	return &Widget{Name: name}
}

func (w *Widget) String() string {
	return w.Name
}
`)
	defs, err := FindDefinitions(context.Background(), "sample.go", src)
	if err != nil {
		t.Fatalf("FindDefinitions: %v", err)
	}

	byName := map[string]DefinitionLocation{}
	for _, d := range defs {
		byName[d.Name] = d
	}

	if d, ok := byName["Widget"]; !ok || d.Kind != "type" {
		t.Fatalf("want a type definition named Widget, got %+v (ok=%v)", d, ok)
	}
	if d, ok := byName["NewWidget"]; !ok || d.Kind != "function" {
		t.Fatalf("want a function definition named NewWidget, got %+v (ok=%v)", d, ok)
	}
	if d, ok := byName["String"]; !ok || d.Kind != "method" {
		t.Fatalf("want a method definition named String, got %+v (ok=%v)", d, ok)
	}
}

func TestFindDefinitionsUnsupportedExtension(t *testing.T) {
	_, err := FindDefinitions(context.Background(), "notes.txt", []byte("hello"))
	if err == nil {
		t.Fatal("want an error for an unsupported extension")
	}
}

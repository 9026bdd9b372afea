package pathspec

import "testing"

func TestParseBracketNormalisation(t *testing.T) {
	tmpl, err := Parse("/posts/[id]")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := tmpl.Canonical(); got != "/posts/:id" {
		t.Fatalf("expected canonical /posts/:id, got %q", got)
	}

	params, ok := tmpl.Match("/posts/42")
	if !ok {
		t.Fatalf("expected match")
	}
	if params["id"] != "42" {
		t.Fatalf("expected id=42, got %v", params)
	}
}

func TestParseCatchAll(t *testing.T) {
	tmpl, err := Parse("/files/[...path]")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	params, ok := tmpl.Match("/files/a/b/c")
	if !ok {
		t.Fatalf("expected match")
	}
	if params["path"] != "a/b/c" {
		t.Fatalf("expected path=a/b/c, got %v", params)
	}
}

func TestParseRejectsNonTerminalCatchAll(t *testing.T) {
	if _, err := Parse("/files/[...path]/extra"); err == nil {
		t.Fatalf("expected error for non-terminal catch-all")
	}
}

func TestParseRejectsDuplicateParamName(t *testing.T) {
	if _, err := Parse("/a/:x/b/:x"); err == nil {
		t.Fatalf("expected error for duplicate parameter name")
	}
}

func TestShapeCollision(t *testing.T) {
	a, err := Parse("/a/:x")
	if err != nil {
		t.Fatalf("parse a: %v", err)
	}
	b, err := Parse("/a/:y")
	if err != nil {
		t.Fatalf("parse b: %v", err)
	}
	if a.Shape() != b.Shape() {
		t.Fatalf("expected equal shapes, got %q and %q", a.Shape(), b.Shape())
	}
}

func TestCompileReproducesMatchedPath(t *testing.T) {
	tmpl, err := Parse("/bookmarks/:id")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	params, ok := tmpl.Match("/bookmarks/9")
	if !ok {
		t.Fatalf("expected match")
	}
	out, err := tmpl.Compile(params)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if out != "/bookmarks/9" {
		t.Fatalf("expected /bookmarks/9, got %q", out)
	}
}

func TestMatchMiss(t *testing.T) {
	tmpl, err := Parse("/posts/:id")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := tmpl.Match("/posts/1/comments"); ok {
		t.Fatalf("expected no match for extra segment")
	}
}

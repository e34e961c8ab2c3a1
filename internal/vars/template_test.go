package vars

import (
	"testing"

	"github.com/kestrelops/kestrel/internal/kestrelerr"
)

func TestRenderStringLiteralExpression(t *testing.T) {
	scope := map[string]any{"name": "web01"}
	out, err := RenderString("host={{ name }}", scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "host=web01" {
		t.Fatalf("got %q", out)
	}
}

func TestRenderStringPreservesTypeForWholeExpression(t *testing.T) {
	scope := map[string]any{"items": []any{"a", "b"}}
	out, err := RenderString("{{ items }}", scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	list, ok := out.([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("expected native slice preserved, got %#v", out)
	}
}

func TestRenderUndefinedVariableClassified(t *testing.T) {
	_, err := RenderString("{{ missing }}", map[string]any{})
	if err == nil {
		t.Fatal("expected error for undefined variable")
	}
	if kestrelerr.ClassOf(err) != kestrelerr.ClassTemplate {
		t.Fatalf("expected ClassTemplate, got %v", kestrelerr.ClassOf(err))
	}
}

func TestRenderDefaultFilterSuppressesUndefined(t *testing.T) {
	out, err := RenderString("{{ missing | default('fallback') }}", map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "fallback" {
		t.Fatalf("got %q", out)
	}
}

func TestRenderPipeFilterChain(t *testing.T) {
	out, err := RenderString("{{ name | upper }}", map[string]any{"name": "web01"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "WEB01" {
		t.Fatalf("got %q", out)
	}
}

func TestRenderJoinFilter(t *testing.T) {
	out, err := RenderString("{{ tags | join(',') }}", map[string]any{"tags": []any{"a", "b", "c"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "a,b,c" {
		t.Fatalf("got %q", out)
	}
}

func TestRenderSyntaxError(t *testing.T) {
	_, err := RenderString("{{ name | }}", map[string]any{"name": "x"})
	if err == nil {
		t.Fatal("expected syntax error")
	}
	if kestrelerr.ClassOf(err) != kestrelerr.ClassTemplate {
		t.Fatalf("expected ClassTemplate, got %v", kestrelerr.ClassOf(err))
	}
}

func TestRenderAnyWalksNestedStructures(t *testing.T) {
	scope := map[string]any{"port": 8080}
	params := map[string]any{
		"nested": map[string]any{"listen": "0.0.0.0:{{ port }}"},
		"list":   []any{"{{ port }}", "static"},
		"plain":  "untouched",
	}
	out, err := RenderAny(params, scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := out.(map[string]any)
	if m["nested"].(map[string]any)["listen"] != "0.0.0.0:8080" {
		t.Fatalf("unexpected nested render: %#v", m["nested"])
	}
	if m["plain"] != "untouched" {
		t.Fatalf("expected untemplated string unchanged, got %v", m["plain"])
	}
}

func TestRenderNoExpressionReturnsLiteral(t *testing.T) {
	out, err := RenderString("plain text", map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "plain text" {
		t.Fatalf("got %q", out)
	}
}

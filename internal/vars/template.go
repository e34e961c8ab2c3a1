package vars

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dop251/goja"
	"github.com/kestrelops/kestrel/internal/kestrelerr"
)

// exprPattern matches a single {{ ... }} expression block.
var exprPattern = regexp.MustCompile(`\{\{(.*?)\}\}`)

// identPattern extracts candidate bare identifiers from an expression so
// every name the expression touches can be pre-seeded into the JS runtime
// as either its scope value or an explicit `undefined`, turning a missing
// variable into a value (classifiable after the fact) instead of a raw
// goja ReferenceError.
var identPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

var reservedWords = map[string]bool{
	"true": true, "false": true, "null": true, "undefined": true,
	"and": true, "or": true, "not": true, "in": true, "if": true, "else": true,
	"default": true, "lower": true, "upper": true, "join": true, "bool": true, "int": true, "length": true,
}

// Render evaluates a single Jinja-style expression (the text between
// `{{` and `}}`) against scope and returns the resulting Go value. A bare
// "undefined" result (an unguarded reference to a missing variable) is
// returned as a ClassTemplate error.
func Render(expr string, scope map[string]any) (any, error) {
	expr = strings.TrimSpace(expr)
	jsExpr, err := translatePipes(expr)
	if err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassTemplate, fmt.Errorf("template syntax: %w", err))
	}

	vm := goja.New()
	installBuiltins(vm)

	for _, name := range identPattern.FindAllString(expr, -1) {
		if reservedWords[name] {
			continue
		}
		if v, ok := lookupDotted(scope, name); ok {
			vm.Set(name, v)
		} else if _, already := scope[name]; !already {
			vm.Set(name, goja.Undefined())
		}
	}
	for k, v := range scope {
		if !reservedWords[k] {
			vm.Set(k, v)
		}
	}

	val, err := vm.RunString(jsExpr)
	if err != nil {
		if _, isSyntax := err.(*goja.CompilerSyntaxError); isSyntax {
			return nil, kestrelerr.New(kestrelerr.ClassTemplate, fmt.Errorf("template syntax: %w", err))
		}
		return nil, kestrelerr.New(kestrelerr.ClassTemplate, fmt.Errorf("template runtime: %w", err))
	}
	if val == nil || goja.IsUndefined(val) {
		return nil, kestrelerr.Newf(kestrelerr.ClassTemplate, "undefined variable in expression %q", expr)
	}
	return val.Export(), nil
}

// lookupDotted looks name up as one top-level key of scope; it does not
// split or walk dotted paths.
func lookupDotted(scope map[string]any, name string) (any, bool) {
	v, ok := scope[name]
	return v, ok
}

// RenderString renders every {{ }} block in a template string. When the
// entire trimmed template is exactly one expression block, the native
// (non-stringified) value is returned so typed parameters (lists, maps,
// bools) survive templating, matching the "rendering is lazy" and
// type-preserving behaviour real playbooks depend on.
func RenderString(tmpl string, scope map[string]any) (any, error) {
	trimmed := strings.TrimSpace(tmpl)
	if m := exprPattern.FindStringSubmatch(trimmed); m != nil && m[0] == trimmed {
		return Render(m[1], scope)
	}

	var sb strings.Builder
	last := 0
	var firstErr error
	for _, loc := range exprPattern.FindAllStringSubmatchIndex(tmpl, -1) {
		sb.WriteString(tmpl[last:loc[0]])
		expr := tmpl[loc[2]:loc[3]]
		val, err := Render(expr, scope)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sb.WriteString(stringify(val))
		last = loc[1]
	}
	sb.WriteString(tmpl[last:])
	if firstErr != nil {
		return nil, firstErr
	}
	return sb.String(), nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// RenderAny walks an arbitrary parameter value (string, []any, map[string]any)
// and renders every string leaf, used to render a task's whole parameter
// mapping just-in-time before dispatch (§4.2 "rendering is lazy").
func RenderAny(v any, scope map[string]any) (any, error) {
	switch t := v.(type) {
	case string:
		if !strings.Contains(t, "{{") {
			return t, nil
		}
		return RenderString(t, scope)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			rv, err := RenderAny(vv, scope)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			rv, err := RenderAny(vv, scope)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

// translatePipes rewrites Jinja's `expr | filter(args)` pipe chains into
// nested JS function calls `filter(expr, args)`, since `|` in JS is
// bitwise-or and would silently produce the wrong result otherwise. Pipes
// inside string literals or nested parens/brackets are left untouched.
func translatePipes(expr string) (string, error) {
	segments, err := splitTopLevel(expr, '|')
	if err != nil {
		return "", err
	}
	if len(segments) == 1 {
		return expr, nil
	}
	result := strings.TrimSpace(segments[0])
	for _, seg := range segments[1:] {
		seg = strings.TrimSpace(seg)
		name, args, hasArgs := strings.Cut(seg, "(")
		name = strings.TrimSpace(name)
		if name == "" {
			return "", fmt.Errorf("empty filter name in pipe chain")
		}
		if !hasArgs {
			result = fmt.Sprintf("%s(%s)", name, result)
			continue
		}
		args = strings.TrimSuffix(args, ")")
		args = strings.TrimSpace(args)
		if args == "" {
			result = fmt.Sprintf("%s(%s)", name, result)
		} else {
			result = fmt.Sprintf("%s(%s, %s)", name, result, args)
		}
	}
	return result, nil
}

// splitTopLevel splits s on sep, ignoring occurrences inside '...'/"..."
// string literals or (), [], {} nesting.
func splitTopLevel(s string, sep byte) ([]string, error) {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote && (i == 0 || s[i-1] != '\\') {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced brackets in expression")
			}
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated string literal")
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced brackets in expression")
	}
	parts = append(parts, s[start:])
	return parts, nil
}

func installBuiltins(vm *goja.Runtime) {
	vm.Set("default", func(value, fallback goja.Value) goja.Value {
		if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
			return fallback
		}
		return value
	})
	vm.Set("lower", func(s string) string { return strings.ToLower(s) })
	vm.Set("upper", func(s string) string { return strings.ToUpper(s) })
	vm.Set("length", func(v goja.Value) int {
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			return 0
		}
		exported := v.Export()
		switch t := exported.(type) {
		case string:
			return len(t)
		case []any:
			return len(t)
		case map[string]any:
			return len(t)
		default:
			return 0
		}
	})
	vm.Set("join", func(items []any, sep string) string {
		parts := make([]string, len(items))
		for i, it := range items {
			parts[i] = stringify(it)
		}
		return strings.Join(parts, sep)
	})
	vm.Set("bool", func(v goja.Value) bool {
		if v == nil {
			return false
		}
		return v.ToBoolean()
	})
	vm.Set("int", func(v goja.Value) int64 {
		if v == nil {
			return 0
		}
		return v.ToInteger()
	})
}

package module

import "testing"

func TestAssertPasses(t *testing.T) {
	m := &AssertModule{}
	res := m.Execute(map[string]any{
		"that":    []any{"{{ port == 8080 }}"},
		"__scope": map[string]any{"port": 8080},
	}, ExecContext{})
	if res.Failed {
		t.Fatalf("expected assertion to pass, got %+v", res)
	}
}

func TestAssertFails(t *testing.T) {
	m := &AssertModule{}
	res := m.Execute(map[string]any{
		"that":    []any{"{{ port == 9090 }}"},
		"__scope": map[string]any{"port": 8080},
	}, ExecContext{})
	if !res.Failed {
		t.Fatalf("expected assertion to fail, got %+v", res)
	}
}

func TestFailModuleDefaultMessage(t *testing.T) {
	m := &FailModule{}
	res := m.Execute(map[string]any{}, ExecContext{})
	if !res.Failed || res.Msg != "Failed as requested" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestDebugModuleMsg(t *testing.T) {
	m := &DebugModule{}
	res := m.Execute(map[string]any{"msg": "hello"}, ExecContext{})
	if res.Msg != "hello" || res.Changed {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestSetFactModuleEchoesFields(t *testing.T) {
	m := &SetFactModule{}
	res := m.Execute(map[string]any{"app_version": "1.2.3", "cacheable": true}, ExecContext{})
	if res.Data["app_version"] != "1.2.3" {
		t.Fatalf("unexpected data: %+v", res.Data)
	}
	if _, ok := res.Data["cacheable"]; ok {
		t.Fatalf("expected 'cacheable' excluded from facts: %+v", res.Data)
	}
}

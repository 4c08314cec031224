package registry

import (
	"testing"

	"github.com/drewcrawford/exfiltrate-sub000/internal/response"
)

func TestAddAndLookup(t *testing.T) {
	r := New()
	if err := r.Add(Entry{
		Name: "hello",
		Handler: HandlerFunc(func(Args) (response.Response, error) {
			return response.String("hi"), nil
		}),
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	e, ok := r.Lookup("hello")
	if !ok {
		t.Fatal("expected to find \"hello\"")
	}
	resp, err := e.Handler.Execute(nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.Text != "hi" {
		t.Fatalf("got %q, want %q", resp.Text, "hi")
	}

	if _, ok := r.Lookup("nope"); ok {
		t.Fatal("expected lookup miss for unregistered name")
	}
}

func TestAddDuplicateRejected(t *testing.T) {
	r := New()
	e := Entry{Name: "dup", Handler: HandlerFunc(func(Args) (response.Response, error) { return response.Response{}, nil })}
	if err := r.Add(e); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := r.Add(e); err == nil {
		t.Fatal("expected error registering a duplicate name")
	}
}

func TestListStableOrder(t *testing.T) {
	r := New()
	names := []string{"a", "b", "c"}
	for _, n := range names {
		if err := r.Add(Entry{Name: n, Handler: HandlerFunc(func(Args) (response.Response, error) { return response.Response{}, nil })}); err != nil {
			t.Fatalf("Add %s: %v", n, err)
		}
	}
	got := r.List()
	if len(got) != len(names) {
		t.Fatalf("got %d entries, want %d", len(got), len(names))
	}
	for i, n := range names {
		if got[i].Name != n {
			t.Fatalf("entry %d: got %q, want %q", i, got[i].Name, n)
		}
	}
}

func TestBuiltins(t *testing.T) {
	r := New()
	if err := RegisterBuiltins(r, true); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	for _, want := range []string{"help", "list", "terminate"} {
		if _, ok := r.Lookup(want); !ok {
			t.Errorf("expected builtin %q to be registered", want)
		}
	}
}

func TestBuiltinsWithoutTerminate(t *testing.T) {
	r := New()
	if err := RegisterBuiltins(r, false); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	if _, ok := r.Lookup("terminate"); ok {
		t.Fatal("terminate must not be registered when includeTerminate is false")
	}
}

func TestListBuiltin(t *testing.T) {
	r := New()
	if err := RegisterBuiltins(r, false); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	e, _ := r.Lookup("list")
	resp, err := e.Handler.Execute(nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if resp.Text == "" {
		t.Fatal("expected non-empty listing")
	}
}

func TestHelpBuiltinFindsByNamedArg(t *testing.T) {
	r := New()
	if err := RegisterBuiltins(r, false); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	e, _ := r.Lookup("help")
	resp, err := e.Handler.Execute(Args{"name": "list"})
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	if resp.Text == "" {
		t.Fatal("expected a non-empty description")
	}
}

func TestHelpBuiltinFallsBackToPositionalArg(t *testing.T) {
	r := New()
	if err := RegisterBuiltins(r, false); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	e, _ := r.Lookup("help")
	resp, err := e.Handler.Execute(Args{"0": "list"})
	if err != nil {
		t.Fatalf("help over the CLI channel's positional args: %v", err)
	}
	if resp.Text == "" {
		t.Fatal("expected a non-empty description")
	}
}

func TestPositionalCollectsInOrder(t *testing.T) {
	args := Args{"0": "echo", "1": "hi", "2": "there"}
	got := args.Positional()
	want := []string{"echo", "hi", "there"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestPositionalStopsAtGap(t *testing.T) {
	args := Args{"0": "a", "2": "c"}
	got := args.Positional()
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("got %v, want [a]", got)
	}
}

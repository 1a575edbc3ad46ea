package env

import (
	"strings"
	"testing"
)

func lookup(kvs []string, key string) (string, bool) {
	for _, kv := range kvs {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return v, true
		}
	}
	return "", false
}

func TestMergePrecedence(t *testing.T) {
	e := New()
	e.base = map[string]string{"PATH": "/usr/bin", "HOME": "/root"}
	e.Set("HOME", "/srv/app")
	e.Set("MODE", "global")

	out := e.Merge([]string{"MODE=service", "EXTRA=1"})

	if v, _ := lookup(out, "HOME"); v != "/srv/app" {
		t.Fatalf("global must override base: %q", v)
	}
	if v, _ := lookup(out, "MODE"); v != "service" {
		t.Fatalf("per-service must override global: %q", v)
	}
	if v, _ := lookup(out, "PATH"); v != "/usr/bin" {
		t.Fatalf("base lost: %q", v)
	}
	if _, ok := lookup(out, "EXTRA"); !ok {
		t.Fatal("per-service entry missing")
	}
}

func TestMergeExpandsVariables(t *testing.T) {
	e := New()
	e.base = map[string]string{}
	e.Set("PGHOST", "db.internal")
	out := e.Merge([]string{"DSN=postgres://${PGHOST}:5432/app"})
	if v, _ := lookup(out, "DSN"); v != "postgres://db.internal:5432/app" {
		t.Fatalf("expansion failed: %q", v)
	}
}

func TestMergeSortedDeterministic(t *testing.T) {
	e := New()
	e.base = map[string]string{"B": "2", "A": "1", "C": "3"}
	out := e.Merge(nil)
	for i := 1; i < len(out); i++ {
		if out[i-1] > out[i] {
			t.Fatalf("output not sorted: %v", out)
		}
	}
}

func TestSetAllIgnoresMalformed(t *testing.T) {
	e := New()
	e.base = map[string]string{}
	e.SetAll([]string{"GOOD=yes", "malformed-entry", "=nokey"})
	out := e.Merge(nil)
	if len(out) != 1 {
		t.Fatalf("expected single entry, got %v", out)
	}
	if v, _ := lookup(out, "GOOD"); v != "yes" {
		t.Fatalf("GOOD: %q", v)
	}
}

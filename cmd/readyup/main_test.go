package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBuildRootWiresSubcommands(t *testing.T) {
	root := buildRoot()
	want := map[string]bool{"run": false, "validate": false, "serve": false, "history": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("subcommand %s missing", name)
		}
	}
}

func TestExitErrorUnwraps(t *testing.T) {
	inner := errors.New("boom")
	err := &exitError{code: exitBadGraph, err: inner}
	if !errors.Is(err, inner) {
		t.Fatal("exitError must unwrap")
	}
	var ee *exitError
	if !errors.As(error(err), &ee) || ee.code != exitBadGraph {
		t.Fatalf("errors.As failed: %v", ee)
	}
}

func TestLoadSpecsAppliesGlobalEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "services.toml")
	content := `
env = ["PGHOST=db.internal"]

[[services]]
name = "db"
max_wait = "5s"
env = ["PGPORT=5432"]

[services.probe]
type = "command"
command = "pg_isready -h ${PGHOST} -p ${PGPORT}"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, specs, err := loadSpecs(path)
	if err != nil {
		t.Fatalf("loadSpecs: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("specs: %+v", specs)
	}
	var host, port bool
	for _, kv := range specs[0].Env {
		switch kv {
		case "PGHOST=db.internal":
			host = true
		case "PGPORT=5432":
			port = true
		}
	}
	if !host || !port {
		t.Fatalf("merged env missing entries: %v", specs[0].Env)
	}
	if specs[0].MaxWait != 5*time.Second {
		t.Fatalf("max_wait: %v", specs[0].MaxWait)
	}
}

func TestLoadSpecsRequiresConfig(t *testing.T) {
	if _, _, err := loadSpecs(""); err == nil {
		t.Fatal("missing --config must error")
	}
}

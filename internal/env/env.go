package env

import (
	"os"
	"sort"
	"strings"
)

// Env composes the environment handed to command probes, crash checks
// and log tail commands. It is built once per run and never mutated
// mid-run; per-service entries are applied on top at merge time.
type Env struct {
	global map[string]string
	base   map[string]string // cached OS environment
}

func New() *Env {
	return &Env{global: make(map[string]string)}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	base := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			base[k] = v
		}
	}
	e.base = base
}

// Set sets a global variable K=V.
func (e *Env) Set(k, v string) {
	if k != "" {
		e.global[k] = v
	}
}

// SetAll applies a slice of "K=V" entries as globals.
func (e *Env) SetAll(kvs []string) {
	for _, kv := range kvs {
		if k, v, ok := strings.Cut(kv, "="); ok {
			e.Set(k, v)
		}
	}
}

// Merge composes the final environment: the cached OS base (when
// FromOS was called), then globals, then perService overrides, with
// simple ${VAR} expansion against the composed map (no recursion).
// Output is sorted for determinism.
func (e *Env) Merge(perService []string) []string {
	m := make(map[string]string, len(e.base)+len(e.global)+len(perService))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.global {
		m[k] = v
	}
	for _, kv := range perService {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			m[k] = v
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out
}

func expand(s string, m map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	for k, v := range m {
		s = strings.ReplaceAll(s, "${"+k+"}", v)
	}
	return s
}

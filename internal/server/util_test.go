package server

import "testing"

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{
		"":       "",
		"/":      "",
		"api":    "/api",
		"/api":   "/api",
		"/api/":  "/api",
		" /v1/ ": "/v1",
	}
	for in, want := range cases {
		if got := sanitizeBase(in); got != want {
			t.Fatalf("sanitizeBase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsSafeName(t *testing.T) {
	for _, ok := range []string{"db", "api-1", "svc_2", "a.b.c"} {
		if !isSafeName(ok) {
			t.Fatalf("%q should be safe", ok)
		}
	}
	for _, bad := range []string{"", "..", "a/b", "a\\b", "a b", "x..y", "svc!"} {
		if isSafeName(bad) {
			t.Fatalf("%q should be rejected", bad)
		}
	}
}

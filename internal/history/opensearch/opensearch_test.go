package opensearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/loykin/readyup/internal/history"
)

func TestSinkSendPostsDocument(t *testing.T) {
	var gotPath string
	var gotEvent history.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotEvent)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sink := New(srv.URL, "readiness-history")
	err := sink.Send(context.Background(), history.Event{
		Type:       history.EventTransition,
		OccurredAt: time.Now(),
		RunID:      "run-9",
		Service:    "cache",
		From:       "probing",
		To:         "ready",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/readiness-history/_doc" {
		t.Fatalf("path: %q", gotPath)
	}
	if gotEvent.RunID != "run-9" || gotEvent.Service != "cache" {
		t.Fatalf("document: %+v", gotEvent)
	}
}

func TestSinkSendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index closed", http.StatusForbidden)
	}))
	defer srv.Close()

	sink := New(srv.URL, "readiness-history")
	if err := sink.Send(context.Background(), history.Event{Type: history.EventTransition}); err == nil {
		t.Fatal("non-2xx must error")
	}
}

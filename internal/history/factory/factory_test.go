package factory

import (
	"path/filepath"
	"testing"

	"github.com/loykin/readyup/internal/history"
)

func TestNewSinkFromDSNSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	sink, err := NewSinkFromDSN("sqlite://" + path)
	if err != nil {
		t.Fatalf("NewSinkFromDSN: %v", err)
	}
	if s, ok := sink.(*history.SQLSink); ok {
		_ = s.Close()
	} else {
		t.Fatalf("expected SQL sink, got %T", sink)
	}
}

func TestNewSinkFromDSNOpenSearch(t *testing.T) {
	// OpenSearch sinks are lazy; construction never dials.
	sink, err := NewSinkFromDSN("opensearch://search.internal:9200/readiness")
	if err != nil {
		t.Fatalf("NewSinkFromDSN: %v", err)
	}
	if sink == nil {
		t.Fatal("nil sink")
	}
}

func TestNewSinkFromDSNErrors(t *testing.T) {
	if _, err := NewSinkFromDSN(""); err == nil {
		t.Fatal("empty DSN must error")
	}
	if _, err := NewSinkFromDSN("kafka://broker:9092"); err == nil {
		t.Fatal("unsupported scheme must error")
	}
}

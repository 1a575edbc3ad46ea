package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/readyup/internal/graph"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter() (*Registry, http.Handler) {
	reg := NewRegistry(slog.New(slog.NewTextHandler(&strings.Builder{}, nil)))
	return reg, NewRouter(reg, "/api").Handler()
}

func TestHealthz(t *testing.T) {
	_, h := newTestRouter()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestSubmitValidation(t *testing.T) {
	_, h := newTestRouter()

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", "{nope"},
		{"no services", `{"services": []}`},
		{"unsafe name", `{"services": [{"name": "../etc", "probe": {"type": "tcp", "address": "x:1"}}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			h.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status: %d body: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestSubmitAndFetchRun(t *testing.T) {
	reg, h := newTestRouter()

	body := `{"services": [
		{"name": "one", "max_wait": 2000000000, "poll_interval": 10000000,
		 "probe": {"type": "command", "command": "true"}}
	]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status: %d body: %s", w.Code, w.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.ID == "" {
		t.Fatalf("submit response: %s err=%v", w.Body.String(), err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	run, err := reg.Wait(ctx, resp.ID)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if run.Status != RunFinished {
		t.Fatalf("run status: %s (%s)", run.Status, run.Error)
	}
	if run.Report == nil || !run.Report.AllReady() {
		t.Fatalf("report: %+v", run.Report)
	}

	// The API view matches the registry view.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs/"+resp.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"finished"`) {
		t.Fatalf("body: %s", w.Body.String())
	}
}

func TestSubmitRejectedGraphBecomesFailedRun(t *testing.T) {
	reg, _ := newTestRouter()

	id := reg.Submit([]graph.Spec{
		{Name: "a", DependsOn: []string{"b"}, ProbeConfig: &graph.ProbeConfig{Type: "tcp", Address: "x:1"}},
		{Name: "b", DependsOn: []string{"a"}, ProbeConfig: &graph.ProbeConfig{Type: "tcp", Address: "x:1"}},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	run, err := reg.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if run.Status != RunFailed {
		t.Fatalf("status: %s", run.Status)
	}
	if !strings.Contains(run.Error, "cyclic") {
		t.Fatalf("error: %q", run.Error)
	}
}

func TestGetUnknownRun(t *testing.T) {
	_, h := newTestRouter()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs/ghost", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestCancelRun(t *testing.T) {
	reg, h := newTestRouter()
	id := reg.Submit([]graph.Spec{
		{
			Name:         "stuck",
			MaxWait:      time.Minute,
			PollInterval: 10 * time.Millisecond,
			ProbeConfig:  &graph.ProbeConfig{Type: "command", Command: "false"},
		},
	})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/runs/"+id, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("cancel status: %d", w.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	run, err := reg.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if run.Status != RunFinished {
		t.Fatalf("status: %s", run.Status)
	}
	if run.Report.AllReady() {
		t.Fatal("cancelled run must not be all-ready")
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/runs/ghost", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("cancel unknown status: %d", w.Code)
	}
}

func TestListRuns(t *testing.T) {
	reg, h := newTestRouter()
	first := reg.Submit([]graph.Spec{{
		Name: "a", MaxWait: time.Second, PollInterval: 10 * time.Millisecond,
		ProbeConfig: &graph.ProbeConfig{Type: "command", Command: "true"},
	}})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := reg.Wait(ctx, first); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	var runs []Run
	if err := json.Unmarshal(w.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != first {
		t.Fatalf("runs: %+v", runs)
	}
}

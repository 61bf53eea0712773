package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSignalStore struct {
	recent []domain.Signal
	err    error

	gotType  domain.SignalType
	gotLimit int
}

func (s *fakeSignalStore) Put(context.Context, domain.Signal, time.Duration) error { return nil }

func (s *fakeSignalStore) Get(context.Context, string) (domain.Signal, error) {
	return domain.Signal{}, domain.ErrNotFound
}

func (s *fakeSignalStore) Recent(_ context.Context, typ domain.SignalType, limit int) ([]domain.Signal, error) {
	s.gotType = typ
	s.gotLimit = limit
	return s.recent, s.err
}

func TestListRecentSignalsValidation(t *testing.T) {
	h := NewSignalsHandler(&fakeSignalStore{}, testLogger())

	cases := []struct {
		name   string
		target string
		status int
	}{
		{"missing type", "/api/signals", http.StatusBadRequest},
		{"unknown type", "/api/signals?type=gossip", http.StatusBadRequest},
		{"valid type", "/api/signals?type=steam", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ListRecent(rec, httptest.NewRequest(http.MethodGet, tc.target, nil))
			if rec.Code != tc.status {
				t.Errorf("status = %d, want %d", rec.Code, tc.status)
			}
		})
	}
}

func TestListRecentSignalsEmptyIsArray(t *testing.T) {
	h := NewSignalsHandler(&fakeSignalStore{}, testLogger())

	rec := httptest.NewRecorder()
	h.ListRecent(rec, httptest.NewRequest(http.MethodGet, "/api/signals?type=arb", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"signals":[]`) {
		t.Errorf("empty result must serialize as [], got %s", rec.Body.String())
	}
}

func TestListRecentSignalsLimitClamp(t *testing.T) {
	store := &fakeSignalStore{}
	h := NewSignalsHandler(store, testLogger())

	rec := httptest.NewRecorder()
	h.ListRecent(rec, httptest.NewRequest(http.MethodGet, "/api/signals?type=steam&limit=9999", nil))
	if store.gotLimit != 200 {
		t.Errorf("limit = %d, want clamp to 200", store.gotLimit)
	}
}

type fakeRecorder struct {
	err error
}

func (r *fakeRecorder) Record(_ context.Context, report domain.OutcomeReport) (domain.OutcomeReport, error) {
	if r.err != nil {
		return domain.OutcomeReport{}, r.err
	}
	report.Delta = 4
	return report, nil
}

func TestReportOutcome(t *testing.T) {
	h := NewOutcomesHandler(&fakeRecorder{}, testLogger())

	body := `{"signalId":"sig-1","nodeId":"node-1","outcome":"correct","confidence":42}`
	rec := httptest.NewRecorder()
	h.Report(rec, httptest.NewRequest(http.MethodPost, "/api/outcomes", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var graded domain.OutcomeReport
	if err := json.Unmarshal(rec.Body.Bytes(), &graded); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if graded.Delta != 4 {
		t.Errorf("delta = %d, want 4", graded.Delta)
	}
}

func TestReportOutcomeRejectsBadInput(t *testing.T) {
	h := NewOutcomesHandler(&fakeRecorder{}, testLogger())

	cases := []struct {
		name string
		body string
	}{
		{"missing ids", `{"outcome":"correct"}`},
		{"bad outcome", `{"signalId":"s","nodeId":"n","outcome":"maybe"}`},
		{"unknown field", `{"signalId":"s","nodeId":"n","outcome":"push","bogus":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Report(rec, httptest.NewRequest(http.MethodPost, "/api/outcomes", strings.NewReader(tc.body)))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestReportOutcomeUnknownNode(t *testing.T) {
	h := NewOutcomesHandler(&fakeRecorder{err: domain.ErrNotRegistered}, testLogger())

	body := `{"signalId":"sig-1","nodeId":"ghost","outcome":"correct"}`
	rec := httptest.NewRecorder()
	h.Report(rec, httptest.NewRequest(http.MethodPost, "/api/outcomes", strings.NewReader(body)))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

type fakeRegistry struct {
	nodes map[string]domain.Node
	beats []string
}

func (r *fakeRegistry) Register(_ context.Context, id string, w domain.Watching, agents map[string]bool) (domain.Node, error) {
	n := domain.Node{ID: id, Watching: w, Agents: agents, Reputation: domain.DefaultReputation}
	if r.nodes == nil {
		r.nodes = make(map[string]domain.Node)
	}
	r.nodes[id] = n
	return n, nil
}

func (r *fakeRegistry) Heartbeat(_ context.Context, id string, _ *domain.Watching) error {
	r.beats = append(r.beats, id)
	return nil
}

func (r *fakeRegistry) Node(_ context.Context, id string) (domain.Node, error) {
	n, ok := r.nodes[id]
	if !ok {
		return domain.Node{}, domain.ErrNotFound
	}
	return n, nil
}

func (r *fakeRegistry) TopNodes(context.Context, int) ([]domain.Node, error) { return nil, nil }

func (r *fakeRegistry) Stats(context.Context) (domain.NetworkStats, error) {
	return domain.NetworkStats{ActiveNodes: len(r.nodes)}, nil
}

func TestRegisterNode(t *testing.T) {
	h := NewNodesHandler(&fakeRegistry{}, testLogger())

	body := `{"id":"scout-7","watching":{"sports":["nba"],"books":["fanduel"]}}`
	rec := httptest.NewRecorder()
	h.Register(rec, httptest.NewRequest(http.MethodPost, "/api/nodes", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var node domain.Node
	if err := json.Unmarshal(rec.Body.Bytes(), &node); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if node.Reputation != domain.DefaultReputation {
		t.Errorf("reputation = %d, want %d", node.Reputation, domain.DefaultReputation)
	}
}

func TestRegisterNodeRequiresID(t *testing.T) {
	h := NewNodesHandler(&fakeRegistry{}, testLogger())

	rec := httptest.NewRecorder()
	h.Register(rec, httptest.NewRequest(http.MethodPost, "/api/nodes", strings.NewReader(`{"id":"  "}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHeartbeatUnknownNodeSucceeds(t *testing.T) {
	reg := &fakeRegistry{}
	h := NewNodesHandler(reg, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/nodes/ghost/heartbeat", nil)
	req.SetPathValue("id", "ghost")
	rec := httptest.NewRecorder()
	h.Heartbeat(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if len(reg.beats) != 1 || reg.beats[0] != "ghost" {
		t.Errorf("heartbeat calls = %v, want [ghost]", reg.beats)
	}
	if len(reg.nodes) != 0 {
		t.Errorf("heartbeat must not create a node record, got %d", len(reg.nodes))
	}
}

func TestGetNode(t *testing.T) {
	reg := &fakeRegistry{}
	_, _ = reg.Register(context.Background(), "scout-7", domain.Watching{Sports: []string{"nba"}}, nil)
	h := NewNodesHandler(reg, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/nodes/scout-7", nil)
	req.SetPathValue("id", "scout-7")
	rec := httptest.NewRecorder()
	h.Get(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/nodes/ghost", nil)
	req.SetPathValue("id", "ghost")
	rec = httptest.NewRecorder()
	h.Get(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing node status = %d, want 404", rec.Code)
	}
}

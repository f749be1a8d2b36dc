package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/abelbrown/newsdedup/internal/coord"
	"github.com/abelbrown/newsdedup/internal/dedup"
	"github.com/abelbrown/newsdedup/internal/oracle"
	"github.com/abelbrown/newsdedup/internal/otel"
	"github.com/abelbrown/newsdedup/internal/record"
	"github.com/abelbrown/newsdedup/internal/search"
)

type fakeRunner struct {
	outcome  coord.Outcome
	query    record.Query
	strategy dedup.Strategy
	calls    int
}

func (f *fakeRunner) Strategy() dedup.Strategy { return dedup.StrategyBatched }

func (f *fakeRunner) RunWith(ctx context.Context, q record.Query, strategy dedup.Strategy) coord.Outcome {
	f.calls++
	f.query = q
	f.strategy = strategy
	out := f.outcome
	out.Query = q
	out.Strategy = strategy
	return out
}

var (
	recA = record.New("日銀が利上げ", "日本銀行は…", "https://example.jp/a", "2024-05-01")
	recB = record.New("BOJ raises rates", "The Bank of Japan…", "https://example.com/b", "")
)

func postForm(t *testing.T, s *Server, form url.Values) (*httptest.ResponseRecorder, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	body, _ := io.ReadAll(rec.Body)
	return rec, string(body)
}

func TestIndexRendersEmptyForm(t *testing.T) {
	runner := &fakeRunner{}
	s := NewServer(runner, 0)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`name="search1"`, `name="search2"`, `name="search3"`, `value="3months"`, `value="batched" selected`} {
		if !strings.Contains(body, want) {
			t.Errorf("form missing %s", want)
		}
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if runner.calls != 0 {
		t.Error("GET should not search")
	}
}

func TestSearchRendersBothLists(t *testing.T) {
	runner := &fakeRunner{outcome: coord.Outcome{
		Expression: "日銀 利上げ when:3m",
		Raw:        []record.Record{recA, recB},
		Deduped:    []record.Record{recA},
	}}
	s := NewServer(runner, time.Second)

	rec, body := postForm(t, s, url.Values{
		"search1":  {" 日銀 "},
		"search2":  {"利上げ"},
		"period":   {"3months"},
		"strategy": {"pairwise-title"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, body)
	}
	if runner.query.Keywords != [3]string{"日銀", "利上げ", ""} || runner.query.Period != record.PeriodLast3Months {
		t.Errorf("query = %+v", runner.query)
	}
	if runner.strategy != dedup.StrategyPairwiseTitle {
		t.Errorf("strategy = %s", runner.strategy)
	}
	if strings.Count(body, "日銀が利上げ") != 2 || strings.Count(body, "BOJ raises rates") != 1 {
		t.Errorf("unexpected lists:\n%s", body)
	}
	if !strings.Contains(body, "Without duplicates (1)") {
		t.Error("missing dedup count")
	}
	if strings.Contains(body, "Deduplication unavailable") {
		t.Error("unexpected banner")
	}
}

func TestSearchDegradedDedup(t *testing.T) {
	runner := &fakeRunner{outcome: coord.Outcome{
		Expression: "a",
		Raw:        []record.Record{recA, recB},
		DedupErr:   fmt.Errorf("%w: expected 1 judgments, got 0", oracle.ErrOracleMismatch),
	}}
	_, body := postForm(t, NewServer(runner, 0), url.Values{"search1": {"a"}})

	if !strings.Contains(body, "Deduplication unavailable") {
		t.Errorf("missing banner:\n%s", body)
	}
	if !strings.Contains(body, "BOJ raises rates") {
		t.Error("raw results should still render")
	}
}

func TestSearchProviderFailure(t *testing.T) {
	runner := &fakeRunner{outcome: coord.Outcome{
		Expression: "a",
		Err:        fmt.Errorf("%w: cse: quota", search.ErrProviderFailure),
	}}
	_, body := postForm(t, NewServer(runner, 0), url.Values{"search1": {"a"}})

	if !strings.Contains(body, "Search failed") {
		t.Errorf("missing error:\n%s", body)
	}
	if strings.Contains(body, "Deduplication unavailable") {
		t.Error("dedup banner shown for a search failure")
	}
}

func TestSearchRejectsBadInput(t *testing.T) {
	runner := &fakeRunner{}
	s := NewServer(runner, 0)
	for _, form := range []url.Values{
		{"search1": {"a"}, "period": {"2weeks"}},
		{"search1": {"a"}, "strategy": {"cluster"}},
	} {
		rec, _ := postForm(t, s, form)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%v: status = %d, want 400", form, rec.Code)
		}
	}
	if runner.calls != 0 {
		t.Error("bad input should not reach the runner")
	}
}

func TestSearchBlankKeywords(t *testing.T) {
	runner := &fakeRunner{}
	rec, body := postForm(t, NewServer(runner, 0), url.Values{"search1": {""}, "period": {"6months"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(body, "Results (") {
		t.Error("blank query should not render result lists")
	}
}

func TestAPISearch(t *testing.T) {
	runner := &fakeRunner{outcome: coord.Outcome{
		Expression:  "a b",
		Raw:         []record.Record{recA, recB},
		Deduped:     []record.Record{recA},
		Groups:      []dedup.Group{{Representative: 0, Members: []int{0, 1}}},
		OracleCalls: 1,
	}}
	s := NewServer(runner, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/search?search1=a&search2=b", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp apiResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RequestID != "req-1" || resp.Strategy != "batched" {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Raw) != 2 || len(resp.Deduped) != 1 || resp.Raw[1].Date != record.UnknownDate {
		t.Errorf("lists = %+v / %+v", resp.Raw, resp.Deduped)
	}
	if len(resp.Groups) != 1 || resp.OracleCalls != 1 {
		t.Errorf("groups=%v calls=%d", resp.Groups, resp.OracleCalls)
	}
}

func TestAPISearchProviderFailure(t *testing.T) {
	runner := &fakeRunner{outcome: coord.Outcome{Err: errors.New("down")}}
	rec := httptest.NewRecorder()
	NewServer(runner, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?search1=a", nil))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := NewServer(&fakeRunner{}, 0)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("healthz = %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("metrics = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown path = %d, want 404", rec.Code)
	}
}

func TestDebugEvents(t *testing.T) {
	rb := otel.NewRingBuffer(8)
	for i := 1; i <= 3; i++ {
		rb.Push(otel.Event{Kind: otel.KindRequestComplete, RequestID: fmt.Sprintf("r%d", i)})
	}
	s := NewServer(&fakeRunner{}, 0)
	s.SetEvents(rb)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/events?n=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Events []otel.Event   `json:"events"`
		Stats  map[string]int `json:"stats"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Events) != 2 || resp.Events[1].RequestID != "r3" {
		t.Errorf("events = %+v", resp.Events)
	}
	if resp.Stats["request.complete"] != 3 {
		t.Errorf("stats = %v", resp.Stats)
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/events?n=x", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad n = %d, want 400", rec.Code)
	}
}

func TestDebugEventsWithoutBuffer(t *testing.T) {
	rec := httptest.NewRecorder()
	NewServer(&fakeRunner{}, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/events", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"events":[]`) {
		t.Errorf("events = %d %s", rec.Code, rec.Body.String())
	}
}

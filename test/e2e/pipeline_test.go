package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/abelbrown/newsdedup/internal/config"
	"github.com/abelbrown/newsdedup/internal/coord"
	"github.com/abelbrown/newsdedup/internal/otel"
	"github.com/abelbrown/newsdedup/internal/web"
)

// newStack wires the real config, coordinator and web server against the
// fake search and oracle backends.
func newStack(t *testing.T, strategy string) (*httptest.Server, func() int32) {
	t.Helper()
	cse := fakeCSE(t)
	llm, calls := fakeOracle(t)

	cfg := config.DefaultConfig()
	cfg.Search.Provider = "cse"
	cfg.Search.Endpoint = cse.URL
	cfg.Search.APIKey = "test-key"
	cfg.Search.EngineID = "test-cx"
	cfg.Search.PageSize = 3
	cfg.Dedup.Strategy = strategy
	cfg.Oracle.Provider = "openai"
	cfg.Oracle.Endpoint = llm.URL
	cfg.Oracle.APIKey = "test-oracle-key"
	cfg.Oracle.RatePerSecond = 1000
	cfg.Oracle.Timeout = 5 * time.Second
	cfg.Oracle.Backoff = time.Millisecond
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	c, err := coord.FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig() error: %v", err)
	}
	events := otel.NewNullLogger()
	ring := otel.NewRingBuffer(64)
	events.SetRingBuffer(ring)
	c.SetEvents(events)

	handler := web.NewServer(c, 30*time.Second)
	handler.SetEvents(ring)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		events.Close()
	})
	return srv, calls.Load
}

type apiResult struct {
	Expression  string `json:"expression"`
	Raw         []struct{ Title, Date string }
	Deduped     []struct{ Title, Date string }
	OracleCalls int    `json:"oracle_calls"`
	Error       string `json:"error"`
	DedupError  string `json:"dedup_error"`
}

func apiSearch(t *testing.T, srv *httptest.Server, params url.Values) apiResult {
	t.Helper()
	resp, err := http.Get(srv.URL + "/api/search?" + params.Encode())
	if err != nil {
		t.Fatalf("GET /api/search: %v", err)
	}
	defer resp.Body.Close()
	var out apiResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestPipelineStrategies(t *testing.T) {
	tests := []struct {
		strategy  string
		kept      int
		wantCalls int
	}{
		{"none", 6, 0},
		{"batched", 5, 1},
		{"pairwise-snippet", 5, 1 + 1 + 2 + 3 + 4},
		{"pairwise-title", 6, 1 + 2 + 3 + 4 + 5},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			srv, calls := newStack(t, tt.strategy)
			out := apiSearch(t, srv, url.Values{"search1": {"日銀"}, "search2": {"利上げ"}, "period": {"3months"}})

			if out.Error != "" || out.DedupError != "" {
				t.Fatalf("errors: %q / %q", out.Error, out.DedupError)
			}
			if len(out.Raw) != 6 {
				t.Fatalf("raw = %d records, want 6", len(out.Raw))
			}
			if len(out.Deduped) != tt.kept {
				t.Errorf("kept %d, want %d", len(out.Deduped), tt.kept)
			}
			if out.OracleCalls != tt.wantCalls || int(calls()) != tt.wantCalls {
				t.Errorf("oracle calls = %d (server saw %d), want %d", out.OracleCalls, calls(), tt.wantCalls)
			}
			if out.Raw[0].Date != "2024-03-19" || out.Raw[2].Date != "unknown" {
				t.Errorf("dates = %q, %q", out.Raw[0].Date, out.Raw[2].Date)
			}
			if tt.kept == 5 && out.Deduped[1].Title != fixtureStories[2].title {
				t.Errorf("second kept = %q, want the yen story", out.Deduped[1].Title)
			}
		})
	}
}

func TestPipelineHTMLForm(t *testing.T) {
	srv, _ := newStack(t, "batched")

	resp, err := http.PostForm(srv.URL+"/", url.Values{"search1": {"BOJ"}, "period": {"all"}})
	if err != nil {
		t.Fatalf("POST /: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	page := string(body)
	if !strings.Contains(page, "Results (6)") || !strings.Contains(page, "Without duplicates (5)") {
		t.Errorf("unexpected page:\n%s", page)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing request id")
	}
}

func TestPipelineBlankQuery(t *testing.T) {
	srv, calls := newStack(t, "batched")
	out := apiSearch(t, srv, url.Values{"period": {"6months"}})
	if out.Error != "" || len(out.Raw) != 0 || calls() != 0 {
		t.Errorf("blank query: %+v, oracle calls %d", out, calls())
	}
}

func TestPipelineEvents(t *testing.T) {
	srv, _ := newStack(t, "batched")

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/search?search1=BOJ", nil)
	req.Header.Set("X-Request-ID", "e2e-1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/search: %v", err)
	}
	resp.Body.Close()

	// Events drain asynchronously.
	deadline := time.Now().Add(5 * time.Second)
	for {
		var got struct {
			Events []otel.Event `json:"events"`
		}
		resp, err := http.Get(srv.URL + "/debug/events")
		if err != nil {
			t.Fatalf("GET /debug/events: %v", err)
		}
		err = json.NewDecoder(resp.Body).Decode(&got)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}

		var kinds []otel.EventKind
		for _, e := range got.Events {
			if e.RequestID == "e2e-1" {
				kinds = append(kinds, e.Kind)
			}
		}
		if len(kinds) == 3 {
			want := []otel.EventKind{otel.KindSearchComplete, otel.KindDedupComplete, otel.KindRequestComplete}
			for i := range want {
				if kinds[i] != want[i] {
					t.Errorf("kinds = %v, want %v", kinds, want)
				}
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("request events = %v, want 3", kinds)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

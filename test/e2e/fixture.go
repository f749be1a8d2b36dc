package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
)

// fixtureStories is what the fake search backend serves, three per page.
// The first two report the same event.
var fixtureStories = []struct{ title, snippet, date string }{
	{"BOJ raises rates for first time in 17 years", "The Bank of Japan ended negative rates on Tuesday.", "2024-03-19T10:00:00+09:00"},
	{"Japan central bank ends negative interest rates", "Tuesday's decision ended eight years of negative rates.", "2024-03-19T12:30:00+09:00"},
	{"Yen weakens after policy decision", "The yen fell against the dollar.", ""},
	{"Tokyo stocks close higher", "The Nikkei rose 0.7 percent.", "2024-03-20T15:00:00+09:00"},
	{"Wage talks deliver biggest raise in decades", "Rengo reported a 5.28 percent increase.", ""},
	{"Government bond yields edge up", "The 10-year JGB yield rose.", "2024-03-21T09:00:00+09:00"},
}

// fakeCSE serves the Custom Search JSON API shape.
func fakeCSE(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := 0
		fmt.Sscanf(r.URL.Query().Get("start"), "%d", &start)
		page := 0
		if start > 1 {
			page = 1
		}

		type item struct {
			Title   string         `json:"title"`
			Link    string         `json:"link"`
			Snippet string         `json:"snippet"`
			Pagemap map[string]any `json:"pagemap,omitempty"`
		}
		var items []item
		for i := page * 3; i < page*3+3 && i < len(fixtureStories); i++ {
			s := fixtureStories[i]
			it := item{Title: s.title, Link: fmt.Sprintf("https://example.com/%d", i), Snippet: s.snippet}
			if s.date != "" {
				it.Pagemap = map[string]any{"metatags": []map[string]string{{"article:published_time": s.date}}}
			}
			items = append(items, it)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"items": items})
	}))
	t.Cleanup(srv.Close)
	return srv
}

var pairLine = regexp.MustCompile(`(?m)^Pair \d+:`)

// fakeOracle serves the OpenAI chat completions shape. Batched prompts get
// "yes" for pair 1 only; pairwise prompts get "yes" when both texts mention
// negative rates.
func fakeOracle(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		prompt := req.Messages[len(req.Messages)-1].Content

		var answer string
		if n := len(pairLine.FindAllString(prompt, -1)); n > 0 {
			lines := make([]string, n)
			for i := range lines {
				verdict := "no"
				if i == 0 {
					verdict = "yes"
				}
				lines[i] = fmt.Sprintf("%d. %s", i+1, verdict)
			}
			answer = strings.Join(lines, "\n")
		} else {
			answer = "no"
			if strings.Count(strings.ToLower(prompt), "negative") >= 2 {
				answer = "yes"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model": "fake-model",
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": answer},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

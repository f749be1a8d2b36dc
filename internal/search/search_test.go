package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/abelbrown/newsdedup/internal/record"
)

const cseBody = `{
  "items": [
    {
      "title": "日銀が利上げを決定",
      "link": "https://example.jp/a",
      "snippet": "日本銀行は\n金融政策決定会合で…",
      "pagemap": {"metatags": [{"article:published_time": "2024-05-01T09:30:00+09:00"}]}
    },
    {
      "title": "Rate hike in Tokyo",
      "link": "https://example.com/b",
      "snippet": "The Bank of Japan raised rates."
    }
  ]
}`

func newTestCSE(url string) *GoogleCSE {
	return NewGoogleCSE("key-123", "cx-456",
		WithCSEEndpoint(url),
		WithCSELimiter(rate.NewLimiter(rate.Inf, 1)),
		WithCSEBackoffs(time.Millisecond, time.Millisecond),
	)
}

func TestGoogleCSESearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		want := map[string]string{
			"key":          "key-123",
			"cx":           "cx-456",
			"q":            "日銀 利上げ",
			"lr":           "lang_ja",
			"num":          "10",
			"start":        "11",
			"dateRestrict": "m3",
		}
		for k, v := range want {
			if got := q.Get(k); got != v {
				t.Errorf("param %s = %q, want %q", k, got, v)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(cseBody))
	}))
	defer server.Close()

	recs, err := newTestCSE(server.URL).Search(context.Background(), Request{
		Query:    "日銀 利上げ",
		Language: "ja",
		PageSize: 25,
		Offset:   11,
		Period:   record.PeriodLast3Months,
	})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].Date != "2024-05-01" {
		t.Errorf("date = %q, want 2024-05-01", recs[0].Date)
	}
	if recs[0].Snippet != "日本銀行は 金融政策決定会合で…" {
		t.Errorf("snippet = %q", recs[0].Snippet)
	}
	if recs[1].Date != record.UnknownDate {
		t.Errorf("missing date = %q, want %q", recs[1].Date, record.UnknownDate)
	}
}

func TestGoogleCSEOmitsDateRestrictForAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("dateRestrict") {
			t.Errorf("unexpected dateRestrict %q", r.URL.Query().Get("dateRestrict"))
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	recs, err := newTestCSE(server.URL).Search(context.Background(), Request{Query: "a", Offset: 1})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("got %d records from empty response", len(recs))
	}
}

func TestGoogleCSERetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(cseBody))
	}))
	defer server.Close()

	recs, err := newTestCSE(server.URL).Search(context.Background(), Request{Query: "a"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(recs) != 2 || calls.Load() != 3 {
		t.Errorf("records=%d calls=%d, want 2 records after 3 calls", len(recs), calls.Load())
	}
}

func TestGoogleCSEDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"API key not valid"}}`, http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := newTestCSE(server.URL).Search(context.Background(), Request{Query: "a"})
	if err == nil {
		t.Fatal("expected error for 400")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestGoogleCSEBlankQuerySkipsRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called for a blank query")
	}))
	defer server.Close()

	recs, err := newTestCSE(server.URL).Search(context.Background(), Request{Query: "  "})
	if err != nil || recs != nil {
		t.Errorf("Search(blank) = %v, %v", recs, err)
	}
}

const newsFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>"rate hike" - Google News</title>
    <item>
      <title>Article 1</title>
      <link>https://news.google.com/articles/1</link>
      <description>&lt;a href="https://example.com/1"&gt;Article 1&lt;/a&gt;&amp;nbsp;&lt;font&gt;Example&lt;/font&gt;</description>
      <pubDate>Mon, 01 Jan 2024 12:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Article 2</title>
      <link>https://news.google.com/articles/2</link>
      <description>Second</description>
      <pubDate>Tue, 02 Jan 2024 12:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Article 3</title>
      <link>https://news.google.com/articles/3</link>
      <description>Third</description>
    </item>
  </channel>
</rss>`

func TestGoogleNewsRSSSearch(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		q := r.URL.Query()
		if q.Get("q") != "rate hike when:3m" || q.Get("hl") != "ja" || q.Get("ceid") != "JP:ja" {
			t.Errorf("unexpected query %v", q)
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(newsFeed))
	}))
	defer server.Close()

	g := NewGoogleNewsRSS(server.URL, time.Second)
	recs, err := g.Search(context.Background(), Request{Query: "rate hike when:3m", Language: "ja", PageSize: 2, Offset: 1})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].Date != "2024-01-01" {
		t.Errorf("date = %q", recs[0].Date)
	}
	if recs[0].Snippet != "Article 1 Example" {
		t.Errorf("snippet = %q", recs[0].Snippet)
	}

	recs, err = g.Search(context.Background(), Request{Query: "rate hike when:3m", Language: "ja", PageSize: 2, Offset: 3})
	if err != nil {
		t.Fatalf("Search(offset 3) error: %v", err)
	}
	if len(recs) != 1 || recs[0].Title != "Article 3" || recs[0].Date != record.UnknownDate {
		t.Errorf("offset 3 = %+v", recs)
	}

	recs, err = g.Search(context.Background(), Request{Query: "rate hike when:3m", Language: "ja", PageSize: 2, Offset: 5})
	if err != nil || len(recs) != 0 {
		t.Errorf("past end = %v, %v", recs, err)
	}
	if hits.Load() != 1 {
		t.Errorf("feed downloaded %d times, want 1", hits.Load())
	}
}

func TestGoogleNewsRSSCollectFetchesOnce(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(newsFeed))
	}))
	defer server.Close()

	g := NewGoogleNewsRSS(server.URL, time.Second)
	recs, err := Collect(context.Background(), g, Request{Query: "rate hike", PageSize: 2, Offset: 1}, 2)
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	if len(recs) != 3 || recs[2].Title != "Article 3" {
		t.Errorf("records = %+v", recs)
	}
	if hits.Load() != 1 {
		t.Errorf("feed downloaded %d times, want 1", hits.Load())
	}

	if _, err := g.Search(context.Background(), Request{Query: "other", PageSize: 2, Offset: 1}); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 2 {
		t.Errorf("a new query should download again, hits = %d", hits.Load())
	}
}

func TestGoogleNewsRSSHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	if _, err := NewGoogleNewsRSS(server.URL, time.Second).Search(context.Background(), Request{Query: "a"}); err == nil {
		t.Error("expected error for 503")
	}
}

func TestProviderSyntax(t *testing.T) {
	q := record.NewQuery("a", "b", "", record.PeriodLast6Months)
	if got := q.Build(record.StyleJuxtaposed, NewGoogleNewsRSS("", 0).Syntax()); got != "a b when:6m" {
		t.Errorf("news expression = %q", got)
	}
	if got := q.Build(record.StyleJuxtaposed, NewGoogleCSE("k", "cx").Syntax()); got != "a b" {
		t.Errorf("cse expression = %q", got)
	}
}

// pagedProvider returns one record per page named after its offset. Earlier
// pages answer later so Collect must restore page order itself.
type pagedProvider struct {
	failOffset int
}

func (p *pagedProvider) Name() string          { return "paged" }
func (p *pagedProvider) Syntax() record.Syntax { return record.DefaultSyntax }

func (p *pagedProvider) Search(ctx context.Context, req Request) ([]record.Record, error) {
	time.Sleep(time.Duration(10-req.Offset/10) * time.Millisecond)
	if req.Offset == p.failOffset {
		return nil, errors.New("backend down")
	}
	return []record.Record{record.New(fmt.Sprintf("offset %d", req.Offset), "", "", "")}, nil
}

func TestCollectKeepsPageOrder(t *testing.T) {
	recs, err := Collect(context.Background(), &pagedProvider{}, Request{Query: "a", PageSize: 10}, 3)
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	want := []string{"offset 1", "offset 11", "offset 21"}
	if len(recs) != len(want) {
		t.Fatalf("got %d records, want %d", len(recs), len(want))
	}
	for i, w := range want {
		if recs[i].Title != w {
			t.Errorf("record %d = %q, want %q", i, recs[i].Title, w)
		}
	}
}

func TestCollectWrapsProviderFailure(t *testing.T) {
	_, err := Collect(context.Background(), &pagedProvider{failOffset: 11}, Request{Query: "a", PageSize: 10}, 2)
	if !errors.Is(err, ErrProviderFailure) {
		t.Fatalf("expected ErrProviderFailure, got %v", err)
	}
}

func TestSnippetTruncatesRunes(t *testing.T) {
	body := []byte(strings.Repeat("日", 250))
	got := snippet(body)
	if !utf8.ValidString(got) {
		t.Fatalf("snippet split a character: %q", got)
	}
	if want := strings.Repeat("日", 200) + "..."; got != want {
		t.Errorf("snippet length = %d runes, want 203", utf8.RuneCountInString(got))
	}
	if got := snippet([]byte("  short  ")); got != "short" {
		t.Errorf("snippet(short) = %q", got)
	}
}

package search

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/singleflight"

	"github.com/abelbrown/newsdedup/internal/record"
)

// DefaultNewsEndpoint is the Google News RSS search feed.
const DefaultNewsEndpoint = "https://news.google.com/rss/search"

// feedTTL bounds how long a fetched feed serves later pages of the same query.
const feedTTL = time.Minute

// GoogleNewsRSS searches the Google News RSS feed. It needs no credentials.
// The feed has no paging, so Offset and PageSize slice the single response;
// concurrent and follow-up page requests for one URL share one download.
type GoogleNewsRSS struct {
	endpoint string
	client   *http.Client

	flight singleflight.Group
	mu     sync.Mutex
	last   cachedFeed
}

type cachedFeed struct {
	url     string
	items   []*gofeed.Item
	fetched time.Time
}

// NewGoogleNewsRSS creates a client. An empty endpoint uses DefaultNewsEndpoint.
func NewGoogleNewsRSS(endpoint string, timeout time.Duration) *GoogleNewsRSS {
	if endpoint == "" {
		endpoint = DefaultNewsEndpoint
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GoogleNewsRSS{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

func (g *GoogleNewsRSS) Name() string { return "googlenews" }

// Syntax uses the "when:" operator, which Google News applies server side.
func (g *GoogleNewsRSS) Syntax() record.Syntax { return record.DefaultSyntax }

// Search fetches the feed and returns the requested window of it.
func (g *GoogleNewsRSS) Search(ctx context.Context, req Request) ([]record.Record, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	hl, gl, ceid := edition(req.Language)
	u := fmt.Sprintf("%s?q=%s&hl=%s&gl=%s&ceid=%s",
		g.endpoint,
		url.QueryEscape(req.Query),
		url.QueryEscape(hl),
		url.QueryEscape(gl),
		url.QueryEscape(ceid),
	)

	items, err := g.items(ctx, u)
	if err != nil {
		return nil, err
	}

	start := req.Offset - 1
	if start < 0 {
		start = 0
	}
	size := req.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	if start >= len(items) {
		return nil, nil
	}
	end := min(start+size, len(items))

	out := make([]record.Record, 0, end-start)
	for _, it := range items[start:end] {
		out = append(out, convertFeedItem(it))
	}
	return out, nil
}

// items returns the parsed feed at u, downloading it at most once per feedTTL.
func (g *GoogleNewsRSS) items(ctx context.Context, u string) ([]*gofeed.Item, error) {
	g.mu.Lock()
	last := g.last
	g.mu.Unlock()
	if last.url == u && time.Since(last.fetched) < feedTTL {
		return last.items, nil
	}

	v, err, _ := g.flight.Do(u, func() (any, error) {
		items, err := g.fetch(ctx, u)
		if err != nil {
			return nil, err
		}
		g.mu.Lock()
		g.last = cachedFeed{url: u, items: items, fetched: time.Now()}
		g.mu.Unlock()
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*gofeed.Item), nil
}

func (g *GoogleNewsRSS) fetch(ctx context.Context, u string) ([]*gofeed.Item, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", "newsdedup/1.0")
	httpReq.Header.Set("Accept", "application/rss+xml, application/xml;q=0.9, text/xml;q=0.8")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed.Items, nil
}

func convertFeedItem(it *gofeed.Item) record.Record {
	date := ""
	if it.PublishedParsed != nil {
		date = it.PublishedParsed.Format(time.DateOnly)
	} else if it.UpdatedParsed != nil {
		date = it.UpdatedParsed.Format(time.DateOnly)
	}
	return record.New(it.Title, stripTags(it.Description), it.Link, date)
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// stripTags turns the feed's HTML description into plain text.
func stripTags(s string) string {
	return strings.TrimSpace(html.UnescapeString(tagPattern.ReplaceAllString(s, " ")))
}

// edition maps a language hint to Google News hl/gl/ceid parameters.
func edition(lang string) (hl, gl, ceid string) {
	switch strings.ToLower(lang) {
	case "", "ja":
		return "ja", "JP", "JP:ja"
	case "en":
		return "en-US", "US", "US:en"
	case "de":
		return "de", "DE", "DE:de"
	case "fr":
		return "fr", "FR", "FR:fr"
	}
	region := strings.ToUpper(lang)
	return lang, region, region + ":" + lang
}

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/newsdedup/internal/logging"
	"github.com/abelbrown/newsdedup/internal/metrics"
	"github.com/abelbrown/newsdedup/internal/record"
)

// DefaultCSEEndpoint is the Custom Search JSON API.
const DefaultCSEEndpoint = "https://www.googleapis.com/customsearch/v1"

// GoogleCSE queries a Programmable Search Engine through the Custom Search JSON API.
type GoogleCSE struct {
	apiKey   string
	engineID string
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	backoffs []time.Duration
}

// CSEOption configures a GoogleCSE.
type CSEOption func(*GoogleCSE)

// WithCSEEndpoint points the client at another server (tests).
func WithCSEEndpoint(endpoint string) CSEOption {
	return func(c *GoogleCSE) { c.endpoint = endpoint }
}

// WithCSELimiter replaces the request limiter.
func WithCSELimiter(l *rate.Limiter) CSEOption {
	return func(c *GoogleCSE) { c.limiter = l }
}

// WithCSEBackoffs sets the waits between retries; its length is the retry count.
func WithCSEBackoffs(b ...time.Duration) CSEOption {
	return func(c *GoogleCSE) { c.backoffs = b }
}

// NewGoogleCSE creates a client for the given API key and search engine ID.
func NewGoogleCSE(apiKey, engineID string, opts ...CSEOption) *GoogleCSE {
	c := &GoogleCSE{
		apiKey:   apiKey,
		engineID: engineID,
		endpoint: DefaultCSEEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(rate.Every(200*time.Millisecond), 2),
		backoffs: []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *GoogleCSE) Name() string { return "cse" }

// Syntax appends nothing: the period is sent as dateRestrict instead.
func (c *GoogleCSE) Syntax() record.Syntax {
	return record.Syntax{}
}

// Search fetches one page. PageSize is capped at 10 by the API.
func (c *GoogleCSE) Search(ctx context.Context, req Request) ([]record.Record, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := c.doWithRetry(ctx, c.pageURL(req))
	if err != nil {
		return nil, err
	}

	var resp cseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	out := make([]record.Record, 0, len(resp.Items))
	for _, it := range resp.Items {
		out = append(out, record.New(it.Title, it.Snippet, it.Link, it.published()))
	}
	return out, nil
}

func (c *GoogleCSE) pageURL(req Request) string {
	num := req.PageSize
	if num <= 0 || num > DefaultPageSize {
		num = DefaultPageSize
	}
	start := req.Offset
	if start <= 0 {
		start = 1
	}

	v := url.Values{}
	v.Set("key", c.apiKey)
	v.Set("cx", c.engineID)
	v.Set("q", req.Query)
	v.Set("num", strconv.Itoa(num))
	v.Set("start", strconv.Itoa(start))
	if req.Language != "" {
		v.Set("lr", "lang_"+req.Language)
	}
	if m := req.Period.Months(); m > 0 {
		v.Set("dateRestrict", "m"+strconv.Itoa(m))
	}
	return c.endpoint + "?" + v.Encode()
}

// doWithRetry retries on 429 and 5xx with the configured backoffs, honoring
// Retry-After on 429 up to 30s.
func (c *GoogleCSE) doWithRetry(ctx context.Context, u string) ([]byte, error) {
	maxRetries := len(c.backoffs)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		delay := time.Duration(0)
		if attempt < maxRetries {
			delay = c.backoffs[attempt]
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			if err := c.wait(ctx, attempt, delay); err != nil {
				return nil, err
			}
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("read response: %w", readErr)
			if err := c.wait(ctx, attempt, delay); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("custom search error (status %d): %s", resp.StatusCode, snippet(body))
			if resp.StatusCode == http.StatusTooManyRequests {
				if ra := resp.Header.Get("Retry-After"); ra != "" {
					if seconds, parseErr := strconv.Atoi(ra); parseErr == nil && seconds > 0 {
						delay = min(time.Duration(seconds)*time.Second, 30*time.Second)
					}
				}
			}
			metrics.ProviderRequests.WithLabelValues(c.Name(), metrics.OutcomeRetry).Inc()
			logging.Debug("Custom search retry", "status", resp.StatusCode, "attempt", attempt+1, "delay", delay)
			if err := c.wait(ctx, attempt, delay); err != nil {
				return nil, err
			}
			continue
		}

		// 400, 401, 403: bad key, bad cx, quota exhausted for the day.
		return nil, fmt.Errorf("custom search error (status %d): %s", resp.StatusCode, snippet(body))
	}

	return nil, fmt.Errorf("custom search request failed after %d retries: %w", maxRetries, lastErr)
}

func (c *GoogleCSE) wait(ctx context.Context, attempt int, delay time.Duration) error {
	if attempt >= len(c.backoffs) {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if runes := []rune(s); len(runes) > 200 {
		s = string(runes[:200]) + "..."
	}
	return s
}

type cseResponse struct {
	Items []cseItem `json:"items"`
}

type cseItem struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Pagemap struct {
		Metatags []map[string]string `json:"metatags"`
	} `json:"pagemap"`
}

// published returns the article date from the page's Open Graph metadata, or "".
func (it cseItem) published() string {
	if len(it.Pagemap.Metatags) == 0 {
		return ""
	}
	tags := it.Pagemap.Metatags[0]
	for _, key := range []string{"article:published_time", "og:updated_time", "date"} {
		if v := strings.TrimSpace(tags[key]); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t.Format(time.DateOnly)
			}
			return v
		}
	}
	return ""
}

// Package search fetches raw news results for a query expression.
//
// A Provider returns one page of records. Collect assembles the fixed small
// fetch a request needs from several pages.
package search

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/newsdedup/internal/logging"
	"github.com/abelbrown/newsdedup/internal/metrics"
	"github.com/abelbrown/newsdedup/internal/record"
)

// ErrProviderFailure wraps every error a provider returns: unreachable
// backend, non-success status, or a body that could not be decoded.
var ErrProviderFailure = errors.New("result provider failure")

// DefaultPageSize is the largest page the Custom Search API serves.
const DefaultPageSize = 10

// DefaultPages is the number of pages fetched per request.
const DefaultPages = 2

// Request is one page request. Offset is 1-based, as the Custom Search API
// counts it.
type Request struct {
	Query    string
	Language string
	PageSize int
	Offset   int
	Period   record.Period
}

// Provider returns one page of results.
type Provider interface {
	Name() string
	// Syntax is the recency modifier this backend understands in a query.
	Syntax() record.Syntax
	Search(ctx context.Context, req Request) ([]record.Record, error)
}

// failure wraps err with ErrProviderFailure unless it already carries it.
func failure(provider string, err error) error {
	if errors.Is(err, ErrProviderFailure) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrProviderFailure, provider, err)
}

// Collect fetches pages consecutive pages starting at req.Offset and
// concatenates them in page order. Pages are fetched concurrently; any page
// failing fails the whole collection.
func Collect(ctx context.Context, p Provider, req Request, pages int) ([]record.Record, error) {
	if pages <= 0 {
		pages = DefaultPages
	}
	if req.PageSize <= 0 {
		req.PageSize = DefaultPageSize
	}
	if req.Offset <= 0 {
		req.Offset = 1
	}

	results := make([][]record.Record, pages)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < pages; i++ {
		page := req
		page.Offset = req.Offset + i*req.PageSize
		g.Go(func() error {
			recs, err := p.Search(gctx, page)
			if err != nil {
				metrics.ProviderRequests.WithLabelValues(p.Name(), metrics.OutcomeError).Inc()
				return failure(p.Name(), err)
			}
			metrics.ProviderRequests.WithLabelValues(p.Name(), metrics.OutcomeOK).Inc()
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logging.Warn("Search failed", "provider", p.Name(), "query", req.Query, "error", err)
		return nil, err
	}

	var out []record.Record
	for _, recs := range results {
		out = append(out, recs...)
	}
	logging.Debug("Search collected", "provider", p.Name(), "query", req.Query, "pages", pages, "records", len(out))
	return out, nil
}

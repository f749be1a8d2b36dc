package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/newsdedup/internal/brain"
	"github.com/abelbrown/newsdedup/internal/logging"
	"github.com/abelbrown/newsdedup/internal/metrics"
	"github.com/abelbrown/newsdedup/internal/record"
)

var _ Oracle = (*LLM)(nil)

// Options tunes the LLM oracle.
type Options struct {
	Timeout    time.Duration // per call, retries get a fresh deadline
	MaxRetries int           // retries after the first attempt, transient errors only
	Backoff    time.Duration // first retry delay, doubled per attempt
	MaxBackoff time.Duration
	Rate       rate.Limit // calls per second, shared by every request
	Burst      int
}

// DefaultOptions returns the tuning used when the config file is silent.
func DefaultOptions() Options {
	return Options{
		Timeout:    30 * time.Second,
		MaxRetries: 2,
		Backoff:    500 * time.Millisecond,
		MaxBackoff: 5 * time.Second,
		Rate:       rate.Every(500 * time.Millisecond),
		Burst:      1,
	}
}

// LLM is a comparator oracle backed by a brain.Provider.
// Safe for concurrent use; one instance per process.
type LLM struct {
	provider brain.Provider
	opts     Options
	limiter  *rate.Limiter
}

// NewLLM creates an oracle over provider. Zero-valued options fall back to defaults.
func NewLLM(provider brain.Provider, opts Options) *LLM {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = def.Backoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = def.MaxBackoff
	}
	if opts.Rate == 0 {
		opts.Rate = def.Rate
	}
	if opts.Burst <= 0 {
		opts.Burst = def.Burst
	}
	return &LLM{
		provider: provider,
		opts:     opts,
		limiter:  rate.NewLimiter(opts.Rate, opts.Burst),
	}
}

// JudgeSame asks whether texts a and b report the same event.
func (o *LLM) JudgeSame(ctx context.Context, a, b string) (bool, error) {
	content, err := o.generate(ctx, "pairwise", brain.Request{
		SystemPrompt: pairwiseSystemPrompt,
		UserPrompt:   pairwisePrompt(a, b),
		MaxTokens:    16,
	})
	if err != nil {
		return false, err
	}

	same, ok := parseVerdict(content)
	if !ok {
		metrics.OracleCalls.WithLabelValues("pairwise", metrics.OutcomeError).Inc()
		return false, fmt.Errorf("%w: unparseable reply %q", ErrOracleFailure, truncate(content, 80))
	}
	metrics.OracleCalls.WithLabelValues("pairwise", metrics.OutcomeOK).Inc()
	return same, nil
}

// JudgeAllPairs asks for every pair in one prompt. Fewer than two records
// need no call.
func (o *LLM) JudgeAllPairs(ctx context.Context, records []record.Record) ([]bool, error) {
	want := PairCount(len(records))
	if want == 0 {
		return []bool{}, nil
	}

	content, err := o.generate(ctx, "batched", brain.Request{
		SystemPrompt: batchedSystemPrompt,
		UserPrompt:   batchedPrompt(records),
		MaxTokens:    want*8 + 64,
	})
	if err != nil {
		return nil, err
	}

	judgments, err := ParseJudgments(content, want)
	if err != nil {
		metrics.OracleCalls.WithLabelValues("batched", metrics.OutcomeMismatch).Inc()
		logging.Error("Batched oracle reply misaligned", "records", len(records), "error", err)
		return nil, err
	}
	metrics.OracleCalls.WithLabelValues("batched", metrics.OutcomeOK).Inc()
	return judgments, nil
}

// generate runs one rate-limited, time-bounded call with bounded retry.
// Every error it returns wraps ErrOracleFailure.
func (o *LLM) generate(ctx context.Context, kind string, req brain.Request) (string, error) {
	backoff := o.opts.Backoff
	var lastErr error

	for attempt := 0; attempt <= o.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.OracleCalls.WithLabelValues(kind, metrics.OutcomeRetry).Inc()
			logging.Warn("Retrying oracle call", "kind", kind, "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %w", ErrOracleFailure, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > o.opts.MaxBackoff {
				backoff = o.opts.MaxBackoff
			}
		}

		if err := o.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: rate limiter: %w", ErrOracleFailure, err)
		}

		callCtx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
		start := time.Now()
		resp, err := o.provider.Generate(callCtx, req)
		cancel()

		if err == nil {
			logging.Debug("Oracle call complete",
				"kind", kind,
				"provider", o.provider.Name(),
				"model", resp.Model,
				"duration", time.Since(start).Round(time.Millisecond))
			return resp.Content, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if !retryable(err) {
			break
		}
	}

	metrics.OracleCalls.WithLabelValues(kind, metrics.OutcomeError).Inc()
	if ctx.Err() != nil {
		return "", fmt.Errorf("%w: %w", ErrOracleFailure, ctx.Err())
	}
	return "", fmt.Errorf("%w: %s call: %w", ErrOracleFailure, kind, lastErr)
}

// retryable is false only for definite client errors (bad key, bad request).
func retryable(err error) bool {
	var statusErr *brain.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// Package web serves the search form and its two result lists.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/abelbrown/newsdedup/internal/coord"
	"github.com/abelbrown/newsdedup/internal/dedup"
	"github.com/abelbrown/newsdedup/internal/logging"
	"github.com/abelbrown/newsdedup/internal/metrics"
	"github.com/abelbrown/newsdedup/internal/otel"
	"github.com/abelbrown/newsdedup/internal/record"
)

//go:embed templates/*.html
var templateFS embed.FS

var indexTmpl = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// Runner is the request pipeline; *coord.Coordinator implements it.
type Runner interface {
	Strategy() dedup.Strategy
	RunWith(ctx context.Context, q record.Query, strategy dedup.Strategy) coord.Outcome
}

// Server holds the HTTP handlers. It keeps no per-request state.
type Server struct {
	runner  Runner
	timeout time.Duration
	mux     *http.ServeMux
	events  *otel.RingBuffer
}

// NewServer creates a Server. timeout bounds one whole search request; zero
// means no bound beyond the client's own connection.
func NewServer(r Runner, timeout time.Duration) *Server {
	s := &Server{runner: r, timeout: timeout, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /{$}", s.handleSearch)
	s.mux.HandleFunc("GET /api/search", s.handleAPISearch)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", metrics.Handler())
	s.mux.HandleFunc("GET /debug/events", s.handleEvents)
	return s
}

// SetEvents exposes rb at /debug/events.
func (s *Server) SetEvents(rb *otel.RingBuffer) {
	s.events = rb
}

// ServeHTTP tags each request with an id and logs it.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", id)
	r = r.WithContext(otel.WithRequestID(r.Context(), id))

	start := time.Now()
	s.mux.ServeHTTP(w, r)
	logging.Debug("HTTP request", "request_id", id, "method", r.Method, "path", r.URL.Path, "duration", time.Since(start).Round(time.Millisecond))
}

// RequestID returns the id assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	return otel.RequestID(ctx)
}

type option struct {
	Value, Label string
	Selected     bool
}

type page struct {
	Keywords    [3]string
	Periods     []option
	Strategies  []option
	Searched    bool
	Expression  string
	Elapsed     string
	OracleCalls int
	Raw         []record.Record
	Deduped     []record.Record
	Error       string
	DedupError  string

	DedupAvailable bool
}

var periodLabels = map[record.Period]string{
	record.PeriodAll:          "All time",
	record.PeriodLast3Months:  "Last 3 months",
	record.PeriodLast6Months:  "Last 6 months",
	record.PeriodLast12Months: "Last 12 months",
}

func newPage(q record.Query, strategy dedup.Strategy) page {
	p := page{Keywords: q.Keywords}
	for _, per := range record.Periods() {
		p.Periods = append(p.Periods, option{Value: per.String(), Label: periodLabels[per], Selected: per == q.Period})
	}
	for _, st := range dedup.Strategies() {
		p.Strategies = append(p.Strategies, option{Value: string(st), Label: string(st), Selected: st == strategy})
	}
	return p
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, newPage(record.Query{}, s.runner.Strategy()))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form: "+err.Error(), http.StatusBadRequest)
		return
	}
	q, strategy, err := s.parseQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	out := s.run(r, q, strategy)
	p := newPage(q, strategy)
	p.Searched = out.Searched()
	p.Expression = out.Expression
	p.Elapsed = out.Elapsed.Round(time.Millisecond).String()
	p.OracleCalls = out.OracleCalls
	p.Raw = out.Raw
	p.Deduped = out.Deduped
	p.DedupAvailable = out.DedupAvailable()
	if out.Err != nil {
		p.Error = out.Err.Error()
	}
	if out.DedupErr != nil {
		p.DedupError = out.DedupErr.Error()
	}
	s.render(w, r, p)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, p); err != nil {
		logging.Error("Render failed", "request_id", RequestID(r.Context()), "error", err)
	}
}

// apiResponse is the JSON shape of /api/search.
type apiResponse struct {
	RequestID   string        `json:"request_id"`
	Expression  string        `json:"expression"`
	Strategy    string        `json:"strategy"`
	Raw         []apiRecord   `json:"raw"`
	Deduped     []apiRecord   `json:"deduped"`
	Groups      []dedup.Group `json:"groups,omitempty"`
	OracleCalls int           `json:"oracle_calls"`
	ElapsedMS   int64         `json:"elapsed_ms"`
	Error       string        `json:"error,omitempty"`
	DedupError  string        `json:"dedup_error,omitempty"`
}

type apiRecord struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
	Date    string `json:"date"`
}

func toAPI(recs []record.Record) []apiRecord {
	if recs == nil {
		return nil
	}
	out := make([]apiRecord, len(recs))
	for i, r := range recs {
		out[i] = apiRecord{Title: r.Title, Snippet: r.Snippet, URL: r.URL, Date: r.Date}
	}
	return out
}

func (s *Server) handleAPISearch(w http.ResponseWriter, r *http.Request) {
	q, strategy, err := s.parseQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	out := s.run(r, q, strategy)
	resp := apiResponse{
		RequestID:   RequestID(r.Context()),
		Expression:  out.Expression,
		Strategy:    string(out.Strategy),
		Raw:         toAPI(out.Raw),
		Deduped:     toAPI(out.Deduped),
		Groups:      out.Groups,
		OracleCalls: out.OracleCalls,
		ElapsedMS:   out.Elapsed.Milliseconds(),
	}
	status := http.StatusOK
	if out.Err != nil {
		resp.Error = out.Err.Error()
		status = http.StatusBadGateway
	}
	if out.DedupErr != nil {
		resp.DedupError = out.DedupErr.Error()
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type eventsResponse struct {
	Events []otel.Event           `json:"events"`
	Stats  map[otel.EventKind]int `json:"stats"`
}

// handleEvents returns the most recent request events, ?n= of them (default 50).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	n := 50
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "n must be a positive integer"})
			return
		}
		n = parsed
	}
	resp := eventsResponse{Events: []otel.Event{}, Stats: map[otel.EventKind]int{}}
	if s.events != nil {
		if evs := s.events.Last(n); evs != nil {
			resp.Events = evs
		}
		resp.Stats = s.events.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseQuery reads search1..3, period and strategy from the form or query string.
func (s *Server) parseQuery(r *http.Request) (record.Query, dedup.Strategy, error) {
	period, err := record.ParsePeriod(r.FormValue("period"))
	if err != nil {
		return record.Query{}, "", err
	}
	strategy := s.runner.Strategy()
	if v := r.FormValue("strategy"); v != "" {
		if strategy, err = dedup.ParseStrategy(v); err != nil {
			return record.Query{}, "", err
		}
	}
	q := record.NewQuery(r.FormValue("search1"), r.FormValue("search2"), r.FormValue("search3"), period)
	return q, strategy, nil
}

func (s *Server) run(r *http.Request, q record.Query, strategy dedup.Strategy) coord.Outcome {
	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	out := s.runner.RunWith(ctx, q, strategy)
	logging.Info("Search served",
		"request_id", RequestID(r.Context()),
		"expression", out.Expression,
		"strategy", strategy,
		"raw", len(out.Raw),
		"deduped", len(out.Deduped),
		"dedup_available", out.DedupAvailable())
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("Encode response failed", "error", err)
	}
}

// Package search wraps web search providers behind a single ranked-URL
// capability used by the source selector.
package search

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/replypilot/enrich-cli/internal/resilience"
	"github.com/replypilot/enrich-cli/pkg/jina"
	"github.com/replypilot/enrich-cli/pkg/serpapi"
)

// Searcher returns result URLs for query in rank order.
type Searcher interface {
	Search(ctx context.Context, query string) ([]string, error)
}

// SerpAPI searches Google through SerpAPI.
type SerpAPI struct {
	client serpapi.Client
	gl, hl string
	num    int
	policy resilience.Policy
}

// NewSerpAPI creates a SerpAPI searcher with the given locale.
func NewSerpAPI(client serpapi.Client, gl, hl string, num int, policy resilience.Policy) *SerpAPI {
	if policy.Retryable == nil {
		policy.Retryable = retryableSerp
	}
	return &SerpAPI{client: client, gl: gl, hl: hl, num: num, policy: policy}
}

func retryableSerp(err error) bool {
	var se *serpapi.StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return resilience.IsTransient(err)
}

// Search runs query and returns organic result links.
func (s *SerpAPI) Search(ctx context.Context, query string) ([]string, error) {
	resp, err := resilience.DoVal(ctx, s.policy, func(ctx context.Context) (*serpapi.SearchResponse, error) {
		return s.client.Search(ctx, serpapi.SearchRequest{Query: query, GL: s.gl, HL: s.hl, Num: s.num})
	})
	if err != nil {
		return nil, eris.Wrap(err, "search: serpapi")
	}
	return resp.Links(), nil
}

// Jina searches through the Jina search endpoint.
type Jina struct {
	client  jina.Client
	country string
}

// NewJina creates a Jina searcher. country is a two-letter gl code; empty
// means no country bias.
func NewJina(client jina.Client, country string) *Jina {
	return &Jina{client: client, country: country}
}

// Search runs query and returns result URLs.
func (j *Jina) Search(ctx context.Context, query string) ([]string, error) {
	var opts []jina.SearchOption
	if j.country != "" {
		opts = append(opts, jina.WithCountry(j.country))
	}
	resp, err := j.client.Search(ctx, query, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "search: jina")
	}
	out := make([]string, 0, len(resp.Data))
	for _, r := range resp.Data {
		if r.URL != "" {
			out = append(out, r.URL)
		}
	}
	return out, nil
}

// Filtered drops links on blocked domains (and their subdomains), document
// links ending in .pdf, unparseable links and duplicates.
type Filtered struct {
	next    Searcher
	blocked []string
}

// NewFiltered wraps next with a domain denylist.
func NewFiltered(next Searcher, blocked []string) *Filtered {
	norm := make([]string, 0, len(blocked))
	for _, d := range blocked {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			norm = append(norm, d)
		}
	}
	return &Filtered{next: next, blocked: norm}
}

// Search delegates and filters the results, preserving rank order.
func (f *Filtered) Search(ctx context.Context, query string) ([]string, error) {
	links, err := f.next.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(links))
	out := make([]string, 0, len(links))
	for _, l := range links {
		if seen[l] || !f.allowed(l) {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	if dropped := len(links) - len(out); dropped > 0 {
		zap.L().Debug("search: filtered results",
			zap.String("query", query),
			zap.Int("kept", len(out)),
			zap.Int("dropped", dropped),
		)
	}
	return out, nil
}

func (f *Filtered) allowed(link string) bool {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.HasSuffix(strings.ToLower(u.Path), ".pdf") {
		return false
	}
	return !IsBlockedHost(u.Hostname(), f.blocked)
}

// IsBlockedHost reports whether host equals or is a subdomain of any entry
// in blocked.
func IsBlockedHost(host string, blocked []string) bool {
	host = strings.ToLower(host)
	for _, d := range blocked {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// RateLimited paces calls to next and bounds each one with a timeout.
type RateLimited struct {
	next    Searcher
	limiter *rate.Limiter
	timeout time.Duration
}

// NewRateLimited allows perSec searches per second with a burst of one.
// perSec <= 0 disables pacing.
func NewRateLimited(next Searcher, perSec float64, timeout time.Duration) *RateLimited {
	limit := rate.Inf
	if perSec > 0 {
		limit = rate.Limit(perSec)
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, 1), timeout: timeout}
}

// Search waits for a token, then delegates under the per-call timeout.
func (r *RateLimited) Search(ctx context.Context, query string) ([]string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "search: rate limit wait")
	}
	return r.next.Search(ctx, query)
}

// Options selects and tunes a provider.
type Options struct {
	Provider       string // serpapi | jina
	BlockedDomains []string
	RatePerSec     float64
	Timeout        time.Duration
	GL, HL         string
	Num            int
	Retry          resilience.Policy
}

// New builds the full searcher stack: provider, then denylist filtering,
// then pacing.
func New(opts Options, serp serpapi.Client, jc jina.Client) (Searcher, error) {
	var base Searcher
	switch opts.Provider {
	case "", "serpapi":
		if serp == nil {
			return nil, eris.New("search: serpapi client is required")
		}
		base = NewSerpAPI(serp, opts.GL, opts.HL, opts.Num, opts.Retry)
	case "jina":
		if jc == nil {
			return nil, eris.New("search: jina client is required")
		}
		base = NewJina(jc, opts.GL)
	default:
		return nil, eris.Errorf("search: unknown provider %q", opts.Provider)
	}
	return NewRateLimited(NewFiltered(base, opts.BlockedDomains), opts.RatePerSec, opts.Timeout), nil
}

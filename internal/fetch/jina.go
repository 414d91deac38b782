package fetch

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/replypilot/enrich-cli/pkg/jina"
)

// circuitBreaker tracks consecutive failures to skip a flaky upstream.
type circuitBreaker struct {
	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	openUntil   time.Time
	threshold   int           // consecutive failures to trip
	window      time.Duration // failures must occur within this window
	cooldown    time.Duration // how long the circuit stays open
	now         func() time.Time
}

func newCircuitBreaker(threshold int, window, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

func (cb *circuitBreaker) isOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.now().Before(cb.openUntil)
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	now := cb.now()
	if now.Sub(cb.lastFailure) > cb.window {
		cb.failures = 0
	}
	cb.failures++
	cb.lastFailure = now
	if cb.failures >= cb.threshold {
		cb.openUntil = now.Add(cb.cooldown)
		zap.L().Warn("fetch: jina circuit breaker opened",
			zap.Int("failures", cb.failures),
			zap.Duration("cooldown", cb.cooldown),
		)
	}
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
}

// JinaFetcher reads pages through the Jina reader proxy. The proxy renders
// JavaScript on its side, which makes it the fallback for sites that wall
// off both the local browser and plain HTTP.
type JinaFetcher struct {
	client  jina.Client
	timeout time.Duration
	breaker *circuitBreaker
}

// NewJinaFetcher wraps a Jina client. Three failures within 30s open the
// circuit for 60s and the fetcher fails fast in that period.
func NewJinaFetcher(client jina.Client, timeout time.Duration) *JinaFetcher {
	return &JinaFetcher{
		client:  client,
		timeout: timeout,
		breaker: newCircuitBreaker(3, 30*time.Second, 60*time.Second),
	}
}

func (j *JinaFetcher) Name() string { return "jina" }

// Fetch reads targetURL via the proxy.
func (j *JinaFetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	if j.breaker.isOpen() {
		return nil, &FetchError{URL: targetURL, Kind: KindNavigation, Err: eris.New("jina: circuit breaker open")}
	}

	var opts []jina.ReadOption
	if j.timeout > 0 {
		opts = append(opts, jina.WithReadTimeout(j.timeout))
	}
	resp, err := j.client.Read(ctx, targetURL, opts...)
	if err != nil {
		j.breaker.recordFailure()
		var se *jina.StatusError
		if errors.As(err, &se) {
			return nil, &FetchError{URL: targetURL, Kind: KindStatus, StatusCode: se.StatusCode, Err: err}
		}
		return nil, failure(targetURL, KindNavigation, err)
	}

	if resp.Code != 0 && resp.Code != 200 {
		j.breaker.recordFailure()
		return nil, &FetchError{URL: targetURL, Kind: KindStatus, StatusCode: resp.Code}
	}
	content := strings.TrimSpace(resp.Data.Content)
	if looksChallenged(content) {
		j.breaker.recordFailure()
		return nil, &FetchError{URL: targetURL, Kind: KindBlocked, Err: eris.New("jina: challenge page")}
	}

	j.breaker.recordSuccess()
	page := &Page{
		URL:        targetURL,
		Title:      resp.Data.Title,
		Text:       content,
		Links:      jinaLinks(content, resp.Data.Links),
		StatusCode: 200,
		Source:     j.Name(),
	}
	return page, nil
}

var markdownLinkRe = regexp.MustCompile(`\]\((\S+?)(?:\s+"[^"]*")?\)`)

// jinaLinks returns links in document order taken from the markdown body,
// followed by any summary links the body did not mention.
func jinaLinks(content string, summary map[string]string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(href string) {
		href = resolveHref(nil, href)
		if href == "" || seen[href] {
			return
		}
		seen[href] = true
		out = append(out, href)
	}

	for _, m := range markdownLinkRe.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}

	rest := make([]string, 0, len(summary))
	for _, href := range summary {
		rest = append(rest, href)
	}
	sort.Strings(rest)
	for _, href := range rest {
		add(href)
	}
	return out
}

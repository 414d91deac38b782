package fetch

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html/charset"

	"github.com/replypilot/enrich-cli/internal/resilience"
)

const userAgent = "Mozilla/5.0 (compatible; ReplyPilotBot/1.0; +https://replypilot.app/bot)"

// HTTPFetcher fetches HTML with net/http and parses it with x/net/html. It
// cannot run scripts, so it loses to the browser on JS-heavy sites but costs
// nothing and never hangs on a popup.
type HTTPFetcher struct {
	client  *http.Client
	maxBody int64
	policy  resilience.Policy
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithMaxBodyKB caps how much of a response body is read.
func WithMaxBodyKB(kb int) HTTPOption {
	return func(f *HTTPFetcher) {
		if kb > 0 {
			f.maxBody = int64(kb) * 1024
		}
	}
}

// WithRetryPolicy sets the policy applied to transient failures.
func WithRetryPolicy(p resilience.Policy) HTTPOption {
	return func(f *HTTPFetcher) { f.policy = p }
}

// NewHTTPFetcher creates an HTTPFetcher whose requests give up after timeout.
func NewHTTPFetcher(timeout time.Duration, opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		maxBody: 2 << 20,
		policy:  resilience.DefaultPolicy("fetch_http"),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *HTTPFetcher) Name() string { return "http" }

// Fetch downloads targetURL, rejects anti-bot walls and error statuses, and
// returns the parsed page.
func (f *HTTPFetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	base, err := url.Parse(targetURL)
	if err != nil {
		return nil, &FetchError{URL: targetURL, Kind: KindNavigation, Err: eris.Wrap(err, "http: parse url")}
	}

	page, err := resilience.DoVal(ctx, f.policy, func(ctx context.Context) (*Page, error) {
		return f.fetchOnce(ctx, base)
	})
	if err != nil {
		return nil, failure(targetURL, KindNavigation, err)
	}
	return page, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, base *url.URL) (*Page, error) {
	targetURL := base.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "http: create request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "http: do request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return nil, eris.Wrap(err, "http: read body")
	}

	if bt := DetectBlock(resp.StatusCode, resp.Header, body); bt != BlockNone {
		return nil, &FetchError{URL: targetURL, Kind: KindBlocked, StatusCode: resp.StatusCode, Err: eris.Errorf("http: blocked (%s)", bt)}
	}
	if resp.StatusCode >= 400 {
		fe := &FetchError{URL: targetURL, Kind: KindStatus, StatusCode: resp.StatusCode}
		if resilience.IsTransientStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(fe, resp.StatusCode)
		}
		return nil, fe
	}

	// The final URL after redirects is the base for relative links.
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL
	}

	r, err := charset.NewReader(bytes.NewReader(body), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, eris.Wrap(err, "http: decode charset")
	}
	title, text, links, err := parseHTML(base, r)
	if err != nil {
		return nil, eris.Wrap(err, "http: parse html")
	}

	return &Page{
		URL:        targetURL,
		Title:      title,
		Text:       text,
		Links:      links,
		StatusCode: resp.StatusCode,
		Source:     f.Name(),
	}, nil
}

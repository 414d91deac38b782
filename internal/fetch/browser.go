package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BrowserConfig configures the headless Chromium fetcher.
type BrowserConfig struct {
	Bin               string
	Headless          bool
	NavigationTimeout time.Duration
}

// BrowserFetcher renders pages in headless Chromium via go-rod, dismisses
// overlays, then reads the rendered text and anchors. The browser is started
// on first use and shared; each fetch gets its own incognito context.
type BrowserFetcher struct {
	cfg       BrowserConfig
	dismisser *Dismisser

	launch  func() (controlURL string, kill func(), err error)
	connect func(controlURL string) (*rod.Browser, error)

	mu      sync.Mutex
	browser *rod.Browser
}

// NewBrowserFetcher creates a BrowserFetcher. Nothing is launched until the
// first Fetch.
func NewBrowserFetcher(cfg BrowserConfig, dismisser *Dismisser) *BrowserFetcher {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	b := &BrowserFetcher{cfg: cfg, dismisser: dismisser, connect: connectRod}
	b.launch = b.launchChromium
	return b
}

func (b *BrowserFetcher) Name() string { return "browser" }

func (b *BrowserFetcher) ensureStarted() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}

	controlURL, kill, err := b.launch()
	if err != nil {
		return nil, eris.Wrap(err, "browser: launch")
	}
	browser, err := b.connect(controlURL)
	if err != nil {
		kill()
		return nil, eris.Wrap(err, "browser: connect")
	}
	zap.L().Info("browser: started", zap.Bool("headless", b.cfg.Headless))
	b.browser = browser
	return browser, nil
}

func (b *BrowserFetcher) launchChromium() (string, func(), error) {
	l := launcher.New().Headless(b.cfg.Headless).NoSandbox(true)
	if b.cfg.Bin != "" {
		l = l.Bin(b.cfg.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return "", nil, err
	}
	return controlURL, l.Kill, nil
}

// connectRod attaches to a launched Chromium. The shared browser outlives
// any single request context.
func connectRod(controlURL string) (*rod.Browser, error) {
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, err
	}
	return browser, nil
}

// Close shuts the browser down if it was started.
func (b *BrowserFetcher) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}

const harvestJS = `() => ({
	title: document.title || "",
	text: document.body ? document.body.innerText : "",
	links: Array.from(document.querySelectorAll("a[href]")).map(a => a.href),
})`

type harvested struct {
	Title string   `json:"title"`
	Text  string   `json:"text"`
	Links []string `json:"links"`
}

// Fetch navigates to targetURL, waits for load, dismisses overlays and
// returns the rendered page.
func (b *BrowserFetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	browser, err := b.ensureStarted()
	if err != nil {
		return nil, &FetchError{URL: targetURL, Kind: KindNavigation, Err: err}
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, &FetchError{URL: targetURL, Kind: KindNavigation, Err: eris.Wrap(err, "browser: incognito")}
	}
	defer func() { _ = incognito.Close() }()

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, &FetchError{URL: targetURL, Kind: KindNavigation, Err: eris.Wrap(err, "browser: create page")}
	}
	page = page.Context(ctx)

	nav := page.Timeout(b.cfg.NavigationTimeout)
	var status int
	waitDocument := nav.EachEvent(documentStatus(page.FrameID, &status))
	if err := nav.Navigate(targetURL); err != nil {
		return nil, failure(targetURL, KindNavigation, eris.Wrap(err, "browser: navigate"))
	}
	waitDocument()
	if err := statusError(targetURL, status); err != nil {
		return nil, err
	}
	if status == 0 {
		status = http.StatusOK
	}
	if err := nav.WaitLoad(); err != nil {
		return nil, failure(targetURL, KindNavigation, eris.Wrap(err, "browser: wait load"))
	}

	if b.dismisser != nil {
		b.dismisser.Dismiss(ctx, rodClicker{page: page})
	}

	res, err := page.Evaluate(&rod.EvalOptions{JS: harvestJS, ByValue: true})
	if err != nil {
		return nil, failure(targetURL, KindNavigation, eris.Wrap(err, "browser: evaluate"))
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, &FetchError{URL: targetURL, Kind: KindNavigation, Err: eris.Wrap(err, "browser: encode result")}
	}
	var h harvested
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, &FetchError{URL: targetURL, Kind: KindNavigation, Err: eris.Wrap(err, "browser: decode result")}
	}

	text := collapse(h.Text)
	if looksChallenged(text) {
		return nil, &FetchError{URL: targetURL, Kind: KindBlocked, Err: eris.New("browser: challenge page")}
	}

	return &Page{
		URL:        targetURL,
		Title:      h.Title,
		Text:       text,
		Links:      dedupeLinks(h.Links),
		StatusCode: status,
		Source:     b.Name(),
	}, nil
}

// documentStatus records the HTTP status of the main frame's document
// response and stops listening once it has one. Subresources and iframes
// are ignored.
func documentStatus(frame proto.PageFrameID, status *int) func(*proto.NetworkResponseReceived) bool {
	return func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument || e.Response == nil {
			return false
		}
		if frame != "" && e.FrameID != frame {
			return false
		}
		*status = e.Response.Status
		return true
	}
}

// statusError reports a main document that came back with an error status.
func statusError(url string, status int) error {
	if status < 400 {
		return nil
	}
	return &FetchError{URL: url, Kind: KindStatus, StatusCode: status}
}

// rodClicker adapts a rod page to the Clicker used by the Dismisser.
type rodClicker struct {
	page *rod.Page
}

func (c rodClicker) Click(ctx context.Context, selector string) error {
	el, err := c.page.Context(ctx).Element(selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func dedupeLinks(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, l := range in {
		l = resolveHref(nil, l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

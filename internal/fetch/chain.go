package fetch

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Chain tries fetchers in priority order and returns the first success.
type Chain struct {
	fetchers []Fetcher
}

// NewChain creates a Chain. Nil fetchers are ignored so optional backends
// can be passed unconditionally.
func NewChain(fetchers ...Fetcher) *Chain {
	c := &Chain{}
	for _, f := range fetchers {
		if f != nil {
			c.fetchers = append(c.fetchers, f)
		}
	}
	return c
}

// Ordered arranges the available fetchers by name. Names without a fetcher
// are skipped.
func Ordered(order []string, available map[string]Fetcher) *Chain {
	fs := make([]Fetcher, 0, len(order))
	for _, name := range order {
		if f, ok := available[name]; ok && f != nil {
			fs = append(fs, f)
		}
	}
	return NewChain(fs...)
}

func (c *Chain) Name() string { return "chain" }

// Len reports how many fetchers are configured.
func (c *Chain) Len() int { return len(c.fetchers) }

// Fetch tries each fetcher for url. When all fail the last FetchError is
// returned; a cancelled ctx stops the chain early.
func (c *Chain) Fetch(ctx context.Context, url string) (*Page, error) {
	if len(c.fetchers) == 0 {
		return nil, &FetchError{URL: url, Kind: KindNavigation, Err: eris.New("fetch: no fetchers configured")}
	}

	var lastErr error
	for _, f := range c.fetchers {
		page, err := f.Fetch(ctx, url)
		if err == nil && page != nil {
			return page, nil
		}
		if err == nil {
			err = &FetchError{URL: url, Kind: KindNavigation, Err: eris.Errorf("fetch: %s returned no page", f.Name())}
		}
		zap.L().Debug("fetch: fetcher failed, trying next",
			zap.String("fetcher", f.Name()),
			zap.String("url", url),
			zap.Error(err),
		)
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, failure(url, KindNavigation, lastErr)
}

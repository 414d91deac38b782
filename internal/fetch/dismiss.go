package fetch

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DismissStrategy is one attempt at closing an overlay: a selector to click
// and how long to wait for it to appear.
type DismissStrategy struct {
	Selector string
	Timeout  time.Duration
}

// Clicker clicks the first element matching selector, waiting until ctx is
// done for it to show up.
type Clicker interface {
	Click(ctx context.Context, selector string) error
}

// Dismisser closes cookie banners and newsletter modals before links are
// harvested. It tries its strategies in order and stops at the first click
// that lands.
type Dismisser struct {
	strategies []DismissStrategy
}

// NewDismisser builds a Dismisser giving every selector the same timeout.
func NewDismisser(selectors []string, timeout time.Duration) *Dismisser {
	d := &Dismisser{strategies: make([]DismissStrategy, 0, len(selectors))}
	for _, s := range selectors {
		d.strategies = append(d.strategies, DismissStrategy{Selector: s, Timeout: timeout})
	}
	return d
}

// Strategies returns the configured strategies in order.
func (d *Dismisser) Strategies() []DismissStrategy {
	return d.strategies
}

// Dismiss runs the strategies against c. It returns the selector that was
// clicked and true, or "" and false when nothing could be dismissed. Failures
// are never errors: a page without a popup is the common case.
func (d *Dismisser) Dismiss(ctx context.Context, c Clicker) (string, bool) {
	for _, s := range d.strategies {
		if ctx.Err() != nil {
			return "", false
		}
		attemptCtx, cancel := context.WithTimeout(ctx, s.Timeout)
		err := c.Click(attemptCtx, s.Selector)
		cancel()
		if err == nil {
			zap.L().Debug("fetch: dismissed overlay", zap.String("selector", s.Selector))
			return s.Selector, true
		}
	}
	return "", false
}

// Package fetch retrieves a source page and reduces it to visible text plus
// outbound links. Fetchers are chained so a rendering browser, a plain HTTP
// client and the Jina reader proxy can back each other up.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Page is a fetched source reduced to what the extractors consume.
type Page struct {
	URL        string
	Title      string
	Text       string
	Links      []string // absolute hrefs in document order, mailto: and tel: included
	StatusCode int
	Source     string // name of the fetcher that produced it
}

// Fetcher retrieves a single URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
	Name() string
}

// ErrorKind classifies why a fetch failed.
type ErrorKind string

const (
	KindTimeout    ErrorKind = "timeout"
	KindNavigation ErrorKind = "navigation"
	KindStatus     ErrorKind = "status"
	KindBlocked    ErrorKind = "blocked"
)

// FetchError is returned by every Fetcher. A dead link and a live page that
// simply has nothing useful on it are different outcomes: the latter is a
// successful fetch.
type FetchError struct {
	URL        string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Kind == KindStatus:
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// failure wraps err as a FetchError, picking KindTimeout when a deadline
// expired and fallback otherwise.
func failure(url string, fallback ErrorKind, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	kind := fallback
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		kind = KindTimeout
	}
	return &FetchError{URL: url, Kind: kind, Err: err}
}

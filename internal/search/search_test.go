package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/replypilot/enrich-cli/internal/resilience"
	"github.com/replypilot/enrich-cli/pkg/jina"
	"github.com/replypilot/enrich-cli/pkg/serpapi"
)

type fakeSerp struct {
	responses []*serpapi.SearchResponse
	errs      []error
	reqs      []serpapi.SearchRequest
}

func (f *fakeSerp) Search(_ context.Context, req serpapi.SearchRequest) (*serpapi.SearchResponse, error) {
	i := len(f.reqs)
	f.reqs = append(f.reqs, req)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return nil, err
	}
	return f.responses[i], nil
}

func organic(links ...string) *serpapi.SearchResponse {
	resp := &serpapi.SearchResponse{}
	for i, l := range links {
		resp.OrganicResults = append(resp.OrganicResults, serpapi.OrganicResult{Position: i + 1, Link: l})
	}
	return resp
}

type staticSearcher struct {
	links []string
	err   error
	calls int
}

func (s *staticSearcher) Search(_ context.Context, _ string) ([]string, error) {
	s.calls++
	return s.links, s.err
}

func fastPolicy() resilience.Policy {
	p := resilience.DefaultPolicy("test")
	p.Initial = time.Millisecond
	p.Max = time.Millisecond
	return p
}

func TestSerpAPI_Search(t *testing.T) {
	fs := &fakeSerp{responses: []*serpapi.SearchResponse{organic("https://acme.test", "https://facebook.com/acme")}}
	s := NewSerpAPI(fs, "ca", "en", 10, fastPolicy())

	links, err := s.Search(context.Background(), "Acme Plumbing Halifax contact")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://acme.test", "https://facebook.com/acme"}, links)
	require.Len(t, fs.reqs, 1)
	assert.Equal(t, serpapi.SearchRequest{Query: "Acme Plumbing Halifax contact", GL: "ca", HL: "en", Num: 10}, fs.reqs[0])
}

func TestSerpAPI_RetriesRateLimit(t *testing.T) {
	fs := &fakeSerp{
		errs:      []error{&serpapi.StatusError{StatusCode: 429, Message: "slow down"}, nil},
		responses: []*serpapi.SearchResponse{nil, organic("https://acme.test")},
	}
	s := NewSerpAPI(fs, "", "", 0, fastPolicy())

	links, err := s.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://acme.test"}, links)
	assert.Len(t, fs.reqs, 2)
}

func TestSerpAPI_DoesNotRetryBadKey(t *testing.T) {
	fs := &fakeSerp{errs: []error{&serpapi.StatusError{StatusCode: 401, Message: "Invalid API key"}}}
	s := NewSerpAPI(fs, "", "", 0, fastPolicy())

	_, err := s.Search(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search: serpapi")
	assert.Len(t, fs.reqs, 1)
}

type fakeJina struct {
	resp *jina.SearchResponse
	err  error
}

func (f *fakeJina) Read(context.Context, string, ...jina.ReadOption) (*jina.ReadResponse, error) {
	return nil, errors.New("not used")
}

func (f *fakeJina) Search(context.Context, string, ...jina.SearchOption) (*jina.SearchResponse, error) {
	return f.resp, f.err
}

func TestJina_Search(t *testing.T) {
	fj := &fakeJina{resp: &jina.SearchResponse{Data: []jina.SearchResult{
		{URL: "https://acme.test"}, {URL: ""}, {URL: "https://instagram.com/acme"},
	}}}

	links, err := NewJina(fj, "ca").Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://acme.test", "https://instagram.com/acme"}, links)
}

func TestFiltered_DropsBlockedPDFAndDuplicates(t *testing.T) {
	next := &staticSearcher{links: []string{
		"https://www.google.com/maps/place/acme",
		"https://maps.google.com/?cid=1",
		"https://notgoogle.com/acme",
		"https://acme.test/menu.PDF",
		"https://acme.test/",
		"https://acme.test/",
		"not a url",
		"http://facebook.com/acme",
	}}

	links, err := NewFiltered(next, []string{"google.com"}).Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://notgoogle.com/acme",
		"https://acme.test/",
		"http://facebook.com/acme",
	}, links)
}

func TestFiltered_PropagatesError(t *testing.T) {
	next := &staticSearcher{err: errors.New("boom")}
	_, err := NewFiltered(next, nil).Search(context.Background(), "q")
	assert.EqualError(t, err, "boom")
}

func TestIsBlockedHost(t *testing.T) {
	blocked := []string{"google.com", "yelp.com"}
	assert.True(t, IsBlockedHost("google.com", blocked))
	assert.True(t, IsBlockedHost("WWW.Google.com", blocked))
	assert.True(t, IsBlockedHost("ca.yelp.com", blocked))
	assert.False(t, IsBlockedHost("googleplumbing.com", blocked))
}

func TestRateLimited_Paces(t *testing.T) {
	defer goleak.VerifyNone(t)

	next := &staticSearcher{links: []string{"https://acme.test"}}
	r := NewRateLimited(next, 20, time.Second)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := r.Search(context.Background(), "q")
		require.NoError(t, err)
	}
	// burst of one, then 50ms per token
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, 3, next.calls)
}

func TestRateLimited_CancelledWhileWaiting(t *testing.T) {
	defer goleak.VerifyNone(t)

	next := &staticSearcher{}
	r := NewRateLimited(next, 0.01, 0)
	_, err := r.Search(context.Background(), "q") // consumes the burst
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = r.Search(ctx, "q")
	require.Error(t, err)
	assert.Equal(t, 1, next.calls)
}

func TestNew_Providers(t *testing.T) {
	_, err := New(Options{Provider: "serpapi"}, &fakeSerp{}, nil)
	require.NoError(t, err)

	_, err = New(Options{Provider: "jina"}, nil, &fakeJina{})
	require.NoError(t, err)

	_, err = New(Options{Provider: "jina"}, &fakeSerp{}, nil)
	require.Error(t, err)

	_, err = New(Options{Provider: "bing"}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestNew_StackFilters(t *testing.T) {
	fs := &fakeSerp{responses: []*serpapi.SearchResponse{organic("https://google.com/x", "https://acme.test")}}
	s, err := New(Options{Provider: "serpapi", BlockedDomains: []string{"google.com"}, Retry: fastPolicy()}, fs, nil)
	require.NoError(t, err)

	links, err := s.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://acme.test"}, links)
}

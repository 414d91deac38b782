package serpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search.json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "google", q.Get("engine"))
		assert.Equal(t, "Acme Plumbing Toronto contact", q.Get("q"))
		assert.Equal(t, "ca", q.Get("gl"))
		assert.Equal(t, "en", q.Get("hl"))
		assert.Equal(t, "10", q.Get("num"))
		assert.Equal(t, "test-key", q.Get("api_key"))

		_, _ = w.Write([]byte(`{
			"search_metadata": {"id": "s1", "status": "Success"},
			"organic_results": [
				{"position": 1, "title": "Acme Plumbing", "link": "https://acmeplumbing.ca"},
				{"position": 2, "title": "Acme | Facebook", "link": "https://www.facebook.com/acmeplumbing"},
				{"position": 3, "title": "no link"}
			]
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.Search(context.Background(), SearchRequest{Query: "Acme Plumbing Toronto contact", GL: "ca", HL: "en", Num: 10})

	require.NoError(t, err)
	assert.Equal(t, []string{"https://acmeplumbing.ca", "https://www.facebook.com/acmeplumbing"}, resp.Links())
}

func TestSearch_NoResultsIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error": "Google hasn't returned any results for this query."}`))
	}))
	defer srv.Close()

	resp, err := NewClient("k", WithBaseURL(srv.URL)).Search(context.Background(), SearchRequest{Query: "zzz"})
	require.NoError(t, err)
	assert.Empty(t, resp.Links())
}

func TestSearch_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": "Your account has run out of searches."}`))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).Search(context.Background(), SearchRequest{Query: "acme"})
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.True(t, se.Retryable())
	assert.Contains(t, se.Message, "run out of searches")
}

func TestSearch_InBandError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error": "Invalid API key."}`))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).Search(context.Background(), SearchRequest{Query: "acme"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API key")
}

func TestStatusError_Retryable(t *testing.T) {
	assert.False(t, (&StatusError{StatusCode: 401}).Retryable())
	assert.True(t, (&StatusError{StatusCode: 503}).Retryable())
}

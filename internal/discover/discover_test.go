package discover

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/replypilot/enrich-cli/internal/store"
	"github.com/replypilot/enrich-cli/pkg/google"
	"github.com/replypilot/enrich-cli/pkg/google/mocks"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "discover.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func place(id, name string) google.Place {
	return google.Place{
		ID:                  id,
		DisplayName:         google.DisplayName{Text: name},
		FormattedAddress:    "1 King St W, Toronto, ON",
		WebsiteURI:          "https://" + id + ".example.com",
		GoogleMapsURI:       "https://maps.google.com/?cid=" + id,
		NationalPhoneNumber: "(416) 555-0100",
	}
}

func TestFromPlace(t *testing.T) {
	l := FromPlace("u1", place("p1", " Acme Plumbing "))
	assert.Equal(t, "u1", l.UserID)
	assert.Equal(t, "Acme Plumbing", l.Name)
	assert.Equal(t, "1 King St W, Toronto, ON", l.Location)
	assert.Equal(t, "https://p1.example.com", l.Website)
	assert.Equal(t, "(416) 555-0100", l.Phone)
	assert.Equal(t, "p1", l.PlacesID)
	assert.False(t, l.ContactComplete)
}

func TestRun_PaginatesAndSkipsDuplicates(t *testing.T) {
	st := newTestStore(t)
	places := mocks.NewMockClient(t)
	ctx := context.Background()

	places.On("TextSearch", mock.Anything, mock.MatchedBy(func(r google.TextSearchRequest) bool {
		return r.PageToken == ""
	})).Return(&google.TextSearchResponse{
		Places:        []google.Place{place("p1", "Acme"), place("p2", "Beta")},
		NextPageToken: "next",
	}, nil).Twice()
	places.On("TextSearch", mock.Anything, mock.MatchedBy(func(r google.TextSearchRequest) bool {
		return r.PageToken == "next"
	})).Return(&google.TextSearchResponse{
		Places: []google.Place{place("p3", "Gamma"), place("p4", "")},
	}, nil).Twice()

	im := NewImporter(st, places, 1000)

	res, err := im.Run(ctx, "u1", Request{Query: "plumbers in toronto", MaxResults: 10})
	require.NoError(t, err)
	assert.Len(t, res.Created, 3)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 1, res.Failed)

	again, err := im.Run(ctx, "u2", Request{Query: "plumbers in toronto", MaxResults: 10})
	require.NoError(t, err)
	assert.Empty(t, again.Created)
	assert.Equal(t, 3, again.Skipped)

	ls, err := st.ListLeads(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, ls, 3)
}

func TestRun_MaxResults(t *testing.T) {
	st := newTestStore(t)
	places := mocks.NewMockClient(t)
	places.On("TextSearch", mock.Anything, mock.Anything).Return(&google.TextSearchResponse{
		Places:        []google.Place{place("p1", "Acme"), place("p2", "Beta")},
		NextPageToken: "more",
	}, nil).Once()

	res, err := NewImporter(st, places, 1000).Run(context.Background(), "u1", Request{Query: "cafes", MaxResults: 1})
	require.NoError(t, err)
	assert.Len(t, res.Created, 1)
}

func TestRun_Errors(t *testing.T) {
	st := newTestStore(t)
	places := mocks.NewMockClient(t)
	im := NewImporter(st, places, 1000)

	_, err := im.Run(context.Background(), "u1", Request{Query: "  "})
	require.Error(t, err)

	places.On("TextSearch", mock.Anything, mock.Anything).Return(nil, errors.New("quota")).Once()
	_, err = im.Run(context.Background(), "u1", Request{Query: "cafes"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")
}

// Package discover imports leads from a Google Places text search.
package discover

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/replypilot/enrich-cli/internal/model"
	"github.com/replypilot/enrich-cli/internal/store"
	"github.com/replypilot/enrich-cli/pkg/google"
)

const (
	// maxPages bounds pagination to keep API cost predictable.
	maxPages = 3
	pageSize = 20
)

// Request describes one discovery run.
type Request struct {
	Query      string `json:"query"`
	RegionCode string `json:"regionCode,omitempty"`
	MaxResults int    `json:"maxResults,omitempty"`
}

// Result summarises a discovery run.
type Result struct {
	Created []model.Lead `json:"created"`
	Skipped int          `json:"skipped"`
	Failed  int          `json:"failed"`
}

// Importer turns Places results into leads.
type Importer struct {
	store   store.Store
	places  google.Client
	limiter *rate.Limiter
}

// NewImporter creates an Importer. ratePerSec <= 0 selects 10 requests/sec.
func NewImporter(st store.Store, places google.Client, ratePerSec float64) *Importer {
	if ratePerSec <= 0 {
		ratePerSec = 10
	}
	return &Importer{
		store:   st,
		places:  places,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
	}
}

// Run searches Places for req.Query and stores each new place as a lead owned
// by userID. Places already imported by anyone are skipped and counted.
func (im *Importer) Run(ctx context.Context, userID string, req Request) (*Result, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, eris.New("discover: query is required")
	}
	limit := req.MaxResults
	if limit <= 0 {
		limit = pageSize
	}
	log := zap.L().With(zap.String("user_id", userID), zap.String("query", query))

	res := &Result{}
	token := ""
	seen := 0
	for page := 0; page < maxPages && seen < limit; page++ {
		if err := im.limiter.Wait(ctx); err != nil {
			return res, eris.Wrap(err, "discover: rate limit")
		}
		resp, err := im.places.TextSearch(ctx, google.TextSearchRequest{
			TextQuery:  query,
			RegionCode: req.RegionCode,
			PageSize:   pageSize,
			PageToken:  token,
		})
		if err != nil {
			return res, eris.Wrapf(err, "discover: text search page %d", page+1)
		}

		for _, p := range resp.Places {
			if seen >= limit {
				break
			}
			seen++
			lead := FromPlace(userID, p)
			if lead.Name == "" {
				res.Failed++
				continue
			}
			err := im.store.CreateLead(ctx, lead)
			switch {
			case errors.Is(err, store.ErrDuplicatePlace):
				res.Skipped++
			case err != nil:
				log.Warn("discover: create lead failed", zap.String("places_id", p.ID), zap.Error(err))
				res.Failed++
			default:
				res.Created = append(res.Created, *lead)
			}
		}

		if resp.NextPageToken == "" {
			break
		}
		token = resp.NextPageToken
	}

	log.Info("discover: complete",
		zap.Int("created", len(res.Created)),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// FromPlace maps a Places result to a new lead.
func FromPlace(userID string, p google.Place) *model.Lead {
	l := &model.Lead{
		UserID:   userID,
		Name:     strings.TrimSpace(p.DisplayName.Text),
		Location: strings.TrimSpace(p.FormattedAddress),
		Website:  strings.TrimSpace(p.WebsiteURI),
		Phone:    strings.TrimSpace(p.NationalPhoneNumber),
		PlacesID: p.ID,
		MapsURI:  p.GoogleMapsURI,
	}
	l.ContactComplete = l.Contact().Complete()
	return l
}

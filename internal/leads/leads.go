// Package leads manages leads entered or edited by hand.
package leads

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/replypilot/enrich-cli/internal/model"
	"github.com/replypilot/enrich-cli/internal/store"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("leads: invalid input")

// Keywords decodes from either a JSON list or a comma separated string.
type Keywords []string

// UnmarshalJSON implements json.Unmarshaler.
func (k *Keywords) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*k = model.SplitKeywords(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return eris.Wrap(err, "leads: keywords must be a string or a list of strings")
	}
	*k = model.NormalizeKeywords(list)
	return nil
}

// NewLead is the input for Create.
type NewLead struct {
	Name     string   `json:"name"`
	Location string   `json:"location"`
	Website  string   `json:"website"`
	Phone    string   `json:"phone"`
	PlacesID string   `json:"placesId"`
	MapsURI  string   `json:"mapsUri"`
	Keywords Keywords `json:"keywords"`
}

// Patch lists the editable fields of a lead. Nil fields are left unchanged.
type Patch struct {
	Name        *string   `json:"name"`
	Location    *string   `json:"location"`
	Type        *string   `json:"type"`
	Description *string   `json:"description"`
	Keywords    *Keywords `json:"keywords"`
	Website     *string   `json:"website"`
	Email       *string   `json:"email"`
	Phone       *string   `json:"phone"`
	Facebook    *string   `json:"facebook"`
	Instagram   *string   `json:"instagram"`
	Tiktok      *string   `json:"tiktok"`
}

// Service implements lead CRUD on top of a Store.
type Service struct {
	store store.Store
}

// NewService creates a Service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Create validates and stores a new lead owned by userID. A PlacesID that
// any lead already carries fails with store.ErrDuplicatePlace.
func (s *Service) Create(ctx context.Context, userID string, in NewLead) (*model.Lead, error) {
	l := &model.Lead{
		UserID:   userID,
		Name:     strings.TrimSpace(in.Name),
		Location: strings.TrimSpace(in.Location),
		Website:  strings.TrimSpace(in.Website),
		Phone:    strings.TrimSpace(in.Phone),
		PlacesID: strings.TrimSpace(in.PlacesID),
		MapsURI:  strings.TrimSpace(in.MapsURI),
		Keywords: []string(in.Keywords),
	}
	if l.Name == "" {
		return nil, eris.Wrap(ErrInvalid, "name is required")
	}
	if l.Location == "" {
		return nil, eris.Wrap(ErrInvalid, "location is required")
	}
	Recompute(l, false)

	if err := s.store.CreateLead(ctx, l); err != nil {
		return nil, eris.Wrap(err, "leads: create")
	}
	zap.L().Info("leads: created", zap.String("lead_id", l.ID), zap.String("user_id", userID))
	return l, nil
}

// Get returns one lead with its sources.
func (s *Service) Get(ctx context.Context, userID, leadID string) (*model.Lead, error) {
	l, err := s.store.GetLead(ctx, userID, leadID)
	if err != nil {
		return nil, eris.Wrap(err, "leads: get")
	}
	if l.Sources, err = s.store.ListSources(ctx, l.ID); err != nil {
		return nil, eris.Wrap(err, "leads: list sources")
	}
	return l, nil
}

// List returns userID's leads, newest first, each with its sources.
func (s *Service) List(ctx context.Context, userID string) ([]model.Lead, error) {
	ls, err := s.store.ListLeads(ctx, userID)
	if err != nil {
		return nil, eris.Wrap(err, "leads: list")
	}
	for i := range ls {
		if ls[i].Sources, err = s.store.ListSources(ctx, ls[i].ID); err != nil {
			return nil, eris.Wrap(err, "leads: list sources")
		}
	}
	return ls, nil
}

// Update applies p to the lead and recomputes its completion flags. Only
// the fields set in p change; the rest keep whatever is stored when the
// write happens, including facts an enrichment saved meanwhile.
func (s *Service) Update(ctx context.Context, userID, leadID string, p Patch) (*model.Lead, error) {
	updated, err := s.store.UpdateLead(ctx, userID, leadID, func(l *model.Lead) error {
		return p.apply(l)
	})
	if err != nil {
		return nil, eris.Wrap(err, "leads: update")
	}
	if updated.Sources, err = s.store.ListSources(ctx, updated.ID); err != nil {
		return nil, eris.Wrap(err, "leads: list sources")
	}
	return updated, nil
}

// apply writes the set fields of p onto l and recomputes the flags.
func (p Patch) apply(l *model.Lead) error {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&l.Name, p.Name)
	set(&l.Location, p.Location)
	set(&l.Type, p.Type)
	set(&l.Description, p.Description)
	set(&l.Website, p.Website)
	set(&l.Email, p.Email)
	set(&l.Phone, p.Phone)
	set(&l.Facebook, p.Facebook)
	set(&l.Instagram, p.Instagram)
	set(&l.Tiktok, p.Tiktok)
	if p.Keywords != nil {
		l.Keywords = []string(*p.Keywords)
	}
	if l.Name == "" {
		return eris.Wrap(ErrInvalid, "name cannot be empty")
	}
	Recompute(l, p.Type != nil || p.Description != nil)
	return nil
}

// Delete removes the lead with its sources and log entries.
func (s *Service) Delete(ctx context.Context, userID, leadID string) error {
	if err := s.store.DeleteLead(ctx, userID, leadID); err != nil {
		return eris.Wrap(err, "leads: delete")
	}
	zap.L().Info("leads: deleted", zap.String("lead_id", leadID), zap.String("user_id", userID))
	return nil
}

// Recompute derives the completion flags after a manual edit. Contact and
// social flags follow field presence. Identity becomes complete when the
// edit touched identity and both type and description are filled; otherwise
// the stored verdict stands.
func Recompute(l *model.Lead, identityEdited bool) {
	l.ContactComplete = l.Contact().Complete()
	l.SocialComplete = l.SocialsComplete()
	if identityEdited && l.Type != "" && l.Description != "" {
		l.IdentityComplete = true
	}
}

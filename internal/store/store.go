package store

import (
	"context"
	"errors"

	"github.com/replypilot/enrich-cli/internal/model"
)

var (
	// ErrNotFound is returned when a lead does not exist or belongs to another user.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicateSource is returned when (lead, goal, url) is already recorded.
	ErrDuplicateSource = errors.New("store: source already recorded for goal")
	// ErrDuplicatePlace is returned when a lead with the same places id exists.
	ErrDuplicatePlace = errors.New("store: lead with places id already exists")
)

// Store defines the persistence interface for leads, their consumed
// sources, and the enrichment log.
type Store interface {
	// Leads
	CreateLead(ctx context.Context, lead *model.Lead) error
	GetLead(ctx context.Context, userID, leadID string) (*model.Lead, error)
	ListLeads(ctx context.Context, userID string) ([]model.Lead, error)
	// UpdateLead loads the lead, passes it to apply and writes the edited
	// row back in one transaction, so no concurrent write lands in between.
	// An error from apply aborts the update and is returned as is.
	UpdateLead(ctx context.Context, userID, leadID string, apply func(*model.Lead) error) (*model.Lead, error)
	// UpdateContact merges found into the stored contact facts (a non-empty
	// found value wins, nothing known is cleared) and recomputes the contact
	// and social flags from the merged row.
	UpdateContact(ctx context.Context, userID, leadID string, found model.ContactFacts) (*model.Lead, error)
	UpdateIdentity(ctx context.Context, userID, leadID string, id model.IdentityFacts, website string) (*model.Lead, error)
	DeleteLead(ctx context.Context, userID, leadID string) error

	// Sources
	ListSources(ctx context.Context, leadID string) ([]model.LeadSource, error)
	CreateSource(ctx context.Context, src *model.LeadSource) error

	// Enrichment log
	StartLog(ctx context.Context, entry *model.LogEntry) error
	FinishLog(ctx context.Context, logID string, status model.LogStatus, message string) error
	LatestLog(ctx context.Context, userID, leadID string, goal model.Goal) (*model.LogEntry, error)
	ListLogs(ctx context.Context, userID, leadID string, goal model.Goal) ([]model.LogEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// leadColumns is the column list shared by every lead read.
const leadColumns = `id, user_id, name, location, website, email, phone, facebook, instagram, tiktok,
	type, description, keywords, places_id, maps_uri,
	identity_complete, contact_complete, social_complete, created_at, updated_at`

const logColumns = `id, user_id, lead_id, goal, step, attempt, status, message, created_at, updated_at`

const sourceColumns = `id, lead_id, goal, url, type, created_at`

type scannable interface {
	Scan(dest ...any) error
}

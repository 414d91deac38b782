// Package extract turns a fetched page into facts about a lead: contact
// details by link pattern matching, identity by a language-model judgment.
package extract

import (
	"context"

	"github.com/replypilot/enrich-cli/internal/fetch"
	"github.com/replypilot/enrich-cli/internal/model"
)

// Result carries the facts produced by one extraction. Exactly one of the
// fields is set, matching the extractor's goal.
type Result struct {
	Contact  *model.ContactFacts
	Identity *model.IdentityFacts
}

// Extractor is the capability shared by every goal-specific extractor. An
// error means the page could not be judged at all; finding nothing useful is
// a successful, empty Result.
type Extractor interface {
	Goal() model.Goal
	Extract(ctx context.Context, page *fetch.Page, lead *model.Lead) (*Result, error)
}

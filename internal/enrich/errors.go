package enrich

import "errors"

var (
	// ErrLeadNotFound is the only error an enrichment returns to its caller:
	// the lead does not exist or belongs to someone else.
	ErrLeadNotFound = errors.New("enrich: lead not found")
	// ErrNoSearchResults means the fallback web search returned nothing
	// usable. It is a harder failure than exhaustion.
	ErrNoSearchResults = errors.New("enrich: search returned no results")
	// ErrUnsupportedGoal is returned for goals without a pipeline.
	ErrUnsupportedGoal = errors.New("enrich: unsupported goal")
)

package model

import "time"

// SourceType classifies where a candidate URL came from.
type SourceType string

const (
	// SourceWebsite is the lead's own recorded website.
	SourceWebsite SourceType = "WEBSITE"
	// SourceSearchWebsite is a search result whose host resembles the lead name.
	SourceSearchWebsite SourceType = "GCS_WEBSITE"
	// SourceSocial is a social network profile.
	SourceSocial SourceType = "SOCIAL"
)

// LeadSource records that a URL has been consumed by an enrichment goal.
// The triple (LeadID, Goal, URL) is unique.
type LeadSource struct {
	ID        string     `json:"id"`
	LeadID    string     `json:"leadId"`
	Goal      Goal       `json:"goal"`
	URL       string     `json:"url"`
	Type      SourceType `json:"type"`
	CreatedAt time.Time  `json:"createdAt"`
}

package model

import (
	"strings"
	"time"
)

// Goal names a category of facts an enrichment run tries to discover.
type Goal string

const (
	GoalIdentity Goal = "IDENTITY"
	GoalContact  Goal = "CONTACT"
	GoalSocial   Goal = "SOCIAL"
)

// ParseGoal accepts a goal name in any case.
func ParseGoal(s string) (Goal, bool) {
	switch Goal(strings.ToUpper(strings.TrimSpace(s))) {
	case GoalIdentity:
		return GoalIdentity, true
	case GoalContact:
		return GoalContact, true
	case GoalSocial:
		return GoalSocial, true
	}
	return "", false
}

// Lead is a business record owned by a user.
type Lead struct {
	ID          string   `json:"id"`
	UserID      string   `json:"userId"`
	Name        string   `json:"name"`
	Location    string   `json:"location"`
	Website     string   `json:"website,omitempty"`
	Email       string   `json:"email,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Facebook    string   `json:"facebook,omitempty"`
	Instagram   string   `json:"instagram,omitempty"`
	Tiktok      string   `json:"tiktok,omitempty"`
	Type        string   `json:"type,omitempty"`
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords"`
	PlacesID    string   `json:"placesId,omitempty"`
	MapsURI     string   `json:"mapsUri,omitempty"`

	IdentityComplete bool `json:"identityComplete"`
	ContactComplete  bool `json:"contactComplete"`
	SocialComplete   bool `json:"socialComplete"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Sources []LeadSource `json:"sources,omitempty"`
}

// Contact returns the lead's current contact facts.
func (l *Lead) Contact() ContactFacts {
	return ContactFacts{
		Phone:     l.Phone,
		Email:     l.Email,
		Facebook:  l.Facebook,
		Instagram: l.Instagram,
		Tiktok:    l.Tiktok,
	}
}

// SocialsComplete reports whether all three social profiles are known.
func (l *Lead) SocialsComplete() bool {
	return l.Contact().SocialsComplete()
}

// Field returns the stored value of a named contact or social field.
func (l *Lead) Field(name string) string {
	switch name {
	case "website":
		return l.Website
	case "email":
		return l.Email
	case "phone":
		return l.Phone
	case "facebook":
		return l.Facebook
	case "instagram":
		return l.Instagram
	case "tiktok":
		return l.Tiktok
	}
	return ""
}

// NormalizeKeywords trims, drops empties, and de-duplicates case-insensitively
// while keeping first-seen order.
func NormalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, k := range in {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		key := strings.ToLower(k)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, k)
	}
	return out
}

// SplitKeywords parses a comma separated keyword string.
func SplitKeywords(s string) []string {
	return NormalizeKeywords(strings.Split(s, ","))
}

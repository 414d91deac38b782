package extract

import (
	"context"
	"net/url"
	"strings"

	"github.com/replypilot/enrich-cli/internal/fetch"
	"github.com/replypilot/enrich-cli/internal/model"
)

// Social network hosts recognised in links, keyed by the lead field they fill.
const (
	FacebookDomain  = "facebook.com"
	InstagramDomain = "instagram.com"
	TiktokDomain    = "tiktok.com"
)

// ContactExtractor harvests mailto:, tel: and social profile links.
type ContactExtractor struct{}

// NewContactExtractor returns a ContactExtractor.
func NewContactExtractor() *ContactExtractor { return &ContactExtractor{} }

func (*ContactExtractor) Goal() model.Goal { return model.GoalContact }

// Extract harvests the facts still unknown on lead from page's links.
func (*ContactExtractor) Extract(_ context.Context, page *fetch.Page, lead *model.Lead) (*Result, error) {
	var known model.ContactFacts
	if lead != nil {
		known = lead.Contact()
	}
	var links []string
	if page != nil {
		links = page.Links
	}
	found := HarvestContact(links, known)
	return &Result{Contact: &found}, nil
}

// HarvestContact scans links in order and fills each contact fact that is
// empty in known. The first matching link wins for every field. Scanning
// stops as soon as known and found together cover all five facts. Only newly
// found facts are returned.
func HarvestContact(links []string, known model.ContactFacts) model.ContactFacts {
	var found model.ContactFacts
	for _, link := range links {
		if model.MergeContact(known, found).Complete() {
			break
		}
		lower := strings.ToLower(link)

		switch {
		case strings.HasPrefix(lower, "mailto:"):
			if known.Email == "" && found.Email == "" {
				found.Email = cleanEmail(link)
			}
		case strings.HasPrefix(lower, "tel:"):
			if known.Phone == "" && found.Phone == "" {
				found.Phone = cleanPhone(link)
			}
		default:
			switch SocialField(link) {
			case "facebook":
				if known.Facebook == "" && found.Facebook == "" {
					found.Facebook = link
				}
			case "instagram":
				if known.Instagram == "" && found.Instagram == "" {
					found.Instagram = link
				}
			case "tiktok":
				if known.Tiktok == "" && found.Tiktok == "" {
					found.Tiktok = link
				}
			}
		}
	}
	return found
}

// SocialField returns the lead field ("facebook", "instagram" or "tiktok")
// that link is a profile for, or "" when it is not a social link.
func SocialField(link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	match := func(domain string) bool {
		return host == domain || strings.HasSuffix(host, "."+domain)
	}
	switch {
	case match(FacebookDomain):
		return "facebook"
	case match(InstagramDomain):
		return "instagram"
	case match(TiktokDomain):
		return "tiktok"
	}
	return ""
}

func cleanEmail(link string) string {
	addr := link[len("mailto:"):]
	if i := strings.IndexByte(addr, '?'); i >= 0 {
		addr = addr[:i]
	}
	if dec, err := url.PathUnescape(addr); err == nil {
		addr = dec
	}
	return strings.ToLower(strings.TrimSpace(addr))
}

func cleanPhone(link string) string {
	num := link[len("tel:"):]
	if dec, err := url.PathUnescape(num); err == nil {
		num = dec
	}
	return strings.TrimSpace(num)
}

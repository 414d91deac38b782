package model

// ContactFacts holds the five contact attributes of a lead.
// An empty string means the fact is unknown.
type ContactFacts struct {
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Facebook  string `json:"facebook"`
	Instagram string `json:"instagram"`
	Tiktok    string `json:"tiktok"`
}

// Complete reports whether every contact attribute is known.
func (c ContactFacts) Complete() bool {
	return c.Phone != "" && c.Email != "" && c.Facebook != "" && c.Instagram != "" && c.Tiktok != ""
}

// SocialsComplete reports whether all three social profiles are known.
func (c ContactFacts) SocialsComplete() bool {
	return c.Facebook != "" && c.Instagram != "" && c.Tiktok != ""
}

// Missing lists the names of unknown attributes.
func (c ContactFacts) Missing() []string {
	var out []string
	if c.Phone == "" {
		out = append(out, "phone")
	}
	if c.Email == "" {
		out = append(out, "email")
	}
	if c.Facebook == "" {
		out = append(out, "facebook")
	}
	if c.Instagram == "" {
		out = append(out, "instagram")
	}
	if c.Tiktok == "" {
		out = append(out, "tiktok")
	}
	return out
}

// MergeContact overlays extracted facts on existing ones. Each field takes
// the extracted value when present and otherwise keeps the existing value,
// so a known fact is never cleared.
func MergeContact(existing, extracted ContactFacts) ContactFacts {
	pick := func(next, cur string) string {
		if next != "" {
			return next
		}
		return cur
	}
	return ContactFacts{
		Phone:     pick(extracted.Phone, existing.Phone),
		Email:     pick(extracted.Email, existing.Email),
		Facebook:  pick(extracted.Facebook, existing.Facebook),
		Instagram: pick(extracted.Instagram, existing.Instagram),
		Tiktok:    pick(extracted.Tiktok, existing.Tiktok),
	}
}

// IdentityFacts is the judged identity of a business.
type IdentityFacts struct {
	Completed   bool     `json:"completed"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Reason      string   `json:"reason"`
}

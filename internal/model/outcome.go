package model

// Eval is the verdict of an enrichment invocation.
type Eval struct {
	Completed bool   `json:"completed"`
	Reason    string `json:"reason"`
}

// Outcome is what an enrichment invocation returns to its caller. Lead holds
// the post-update record when Updated is true and the unchanged record
// otherwise; it is nil when the lead could not be loaded.
type Outcome struct {
	Lead    *Lead `json:"lead"`
	Updated bool  `json:"updated"`
	Eval    Eval  `json:"eval"`
}

// Failed builds a negative outcome around the current lead.
func Failed(lead *Lead, reason string) *Outcome {
	return &Outcome{Lead: lead, Eval: Eval{Completed: false, Reason: reason}}
}

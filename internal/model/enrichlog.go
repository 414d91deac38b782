package model

import "time"

// Step is one stage of an enrichment invocation.
type Step string

const (
	StepGetLead      Step = "GET_LEAD"
	StepGetSource    Step = "GET_SOURCE"
	StepScrapeSource Step = "SCRAPE_SOURCE"
	StepEvaluateGPT  Step = "EVALUATE_GPT"
	StepPersist      Step = "PERSIST"
)

// LogStatus is the state of a logged step.
type LogStatus string

const (
	LogStarted LogStatus = "STARTED"
	LogSuccess LogStatus = "SUCCESS"
	LogError   LogStatus = "ERROR"
)

// Terminal reports whether the status can no longer change.
func (s LogStatus) Terminal() bool {
	return s == LogSuccess || s == LogError
}

// LogEntry is one row of the append-only enrichment log.
type LogEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	LeadID    string    `json:"leadId"`
	Goal      Goal      `json:"goal"`
	Step      Step      `json:"step"`
	Attempt   int       `json:"attempt"`
	Status    LogStatus `json:"status"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

package model

import "time"

// LedgerExport is the document served by the admin export endpoint.
type LedgerExport struct {
	GeneratedAt      time.Time                  `json:"generated_at" jsonschema_description:"When the snapshot was taken"`
	Threshold        int                        `json:"threshold" jsonschema_description:"Counted invitees needed to complete a mission"`
	Referrers        []ReferralRecord           `json:"referrers" jsonschema_description:"Every referrer record sorted by referrer key"`
	CompletionReport map[string]CompletionEntry `json:"completion_report" jsonschema_description:"Append-only completion entries keyed by referrer key"`
}

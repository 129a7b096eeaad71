package entities

import "strings"

// Outcome is the result of a decision put to the meeting
type Outcome string

const (
	OutcomeAdopted  Outcome = "adopted"
	OutcomeRejected Outcome = "rejected"
	OutcomeDeferred Outcome = "deferred"
)

// Decision is one entry of the decision log
type Decision struct {
	Text      string  `json:"text"`
	Proposer  string  `json:"proposer,omitempty"`
	Outcome   Outcome `json:"outcome"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// ParseOutcome normalizes free-form vote results. Anything unrecognized is deferred.
func ParseOutcome(raw string) Outcome {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "":
		return OutcomeDeferred
	case strings.Contains(s, "reject"), strings.Contains(s, "rejet"),
		strings.Contains(s, "refus"), strings.Contains(s, "declined"),
		strings.Contains(s, "not adopt"), strings.Contains(s, "non adopt"):
		return OutcomeRejected
	case strings.Contains(s, "adopt"), strings.Contains(s, "approv"),
		strings.Contains(s, "accept"), strings.Contains(s, "unanim"), strings.Contains(s, "passed"):
		return OutcomeAdopted
	default:
		return OutcomeDeferred
	}
}

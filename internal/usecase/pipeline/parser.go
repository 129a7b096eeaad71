package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/johnquangdev/meeting-minutes/internal/domain/entities"
)

// Parser turns LLM responses into structured stage outputs
type Parser struct{}

// NewParser creates a new Parser instance
func NewParser() *Parser {
	return &Parser{}
}

// ParseSpeakerMapping parses a {"SPEAKER_00": "Name"} object. Only labels in known
// (when non-empty) and non-empty string names are kept.
func (p *Parser) ParseSpeakerMapping(response string, known []string) (entities.SpeakerMapping, error) {
	jsonString, err := extractJSON(response)
	if err != nil {
		return nil, err
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(jsonString), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse speaker mapping: %w", err)
	}

	allowed := make(map[string]bool, len(known))
	for _, k := range known {
		allowed[k] = true
	}

	mapping := make(entities.SpeakerMapping)
	for label, v := range raw {
		name, ok := v.(string)
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		label = strings.TrimSpace(label)
		if name == "" || name == label {
			continue
		}
		if len(allowed) > 0 && !allowed[label] {
			continue
		}
		mapping[label] = name
	}
	return mapping, nil
}

type rawDecision struct {
	Text        string `json:"text"`
	Title       string `json:"title"`
	Titre       string `json:"titre"`
	Description string `json:"description"`
	Proposer    string `json:"proposer"`
	ProposedBy  string `json:"proposed_by"`
	Outcome     string `json:"outcome"`
	Vote        string `json:"vote"`
	Timestamp   string `json:"timestamp"`
}

// ParseDecisions parses a {"decisions": [...]} object. The original field names of
// the French minutes format (titre, vote) are accepted too.
func (p *Parser) ParseDecisions(response string) ([]entities.Decision, error) {
	jsonString, err := extractJSON(response)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Decisions []rawDecision `json:"decisions"`
	}
	if err := json.Unmarshal([]byte(jsonString), &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse decisions: %w", err)
	}

	decisions := make([]entities.Decision, 0, len(envelope.Decisions))
	for _, r := range envelope.Decisions {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			title := firstNonEmpty(r.Title, r.Titre)
			switch {
			case title != "" && r.Description != "":
				text = title + ": " + strings.TrimSpace(r.Description)
			default:
				text = firstNonEmpty(title, r.Description)
			}
		}
		if text == "" {
			continue
		}

		decisions = append(decisions, entities.Decision{
			Text:      text,
			Proposer:  firstNonEmpty(r.Proposer, r.ProposedBy),
			Outcome:   entities.ParseOutcome(firstNonEmpty(r.Outcome, r.Vote)),
			Timestamp: strings.TrimSpace(r.Timestamp),
		})
	}
	return decisions, nil
}

// extractJSON returns the substring from the first '{' to the last '}'.
// Markdown code fences around it are ignored that way.
func extractJSON(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in response")
	}
	return s[start : end+1], nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnquangdev/meeting-minutes/internal/domain/entities"
)

func TestParseSpeakerMapping(t *testing.T) {
	p := NewParser()

	mapping, err := p.ParseSpeakerMapping("Here you go:\n```json\n{\"SPEAKER_00\": \"Alice\", \"SPEAKER_01\": \"\", \"SPEAKER_09\": \"Mallory\", \"SPEAKER_02\": 3}\n```",
		[]string{"SPEAKER_00", "SPEAKER_01", "SPEAKER_02"})

	require.NoError(t, err)
	assert.Equal(t, entities.SpeakerMapping{"SPEAKER_00": "Alice"}, mapping)
}

func TestParseSpeakerMappingUnparseable(t *testing.T) {
	p := NewParser()

	_, err := p.ParseSpeakerMapping("no idea who is speaking", nil)
	require.Error(t, err)

	_, err = p.ParseSpeakerMapping("{not json}", nil)
	require.Error(t, err)
}

func TestParseDecisions(t *testing.T) {
	p := NewParser()

	decisions, err := p.ParseDecisions(`{"decisions": [
		{"text": "Approve the 2024 budget", "proposer": "Alice", "outcome": "Adopted unanimously", "timestamp": "00:12:30"},
		{"titre": "Nouveau parking", "description": "extension du parking", "vote": "rejeté"},
		{"title": "Move the meeting", "outcome": "postponed"},
		{"text": "   "}
	]}`)

	require.NoError(t, err)
	require.Len(t, decisions, 3)
	assert.Equal(t, entities.Decision{Text: "Approve the 2024 budget", Proposer: "Alice", Outcome: entities.OutcomeAdopted, Timestamp: "00:12:30"}, decisions[0])
	assert.Equal(t, "Nouveau parking: extension du parking", decisions[1].Text)
	assert.Equal(t, entities.OutcomeRejected, decisions[1].Outcome)
	assert.Equal(t, entities.OutcomeDeferred, decisions[2].Outcome)
}

func TestParseDecisionsEmpty(t *testing.T) {
	decisions, err := NewParser().ParseDecisions(`{"decisions": []}`)
	require.NoError(t, err)
	assert.Empty(t, decisions)
}

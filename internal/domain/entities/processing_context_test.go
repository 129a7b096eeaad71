package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestStageOrder(t *testing.T) {
	assert.Equal(t, StageNormalizing, StageUploaded.Next())
	assert.Equal(t, StageDone, StageRendering.Next())
	assert.Equal(t, StageDone, StageDone.Next())
	assert.Equal(t, StageFailed, StageFailed.Next())

	assert.True(t, CanTransition(StageDiarizing, StageTranscribing))
	assert.False(t, CanTransition(StageDiarizing, StageMappingSpeakers), "stages cannot be skipped")
	assert.False(t, CanTransition(StageTranscribing, StageDiarizing), "stages never go backwards")
	assert.True(t, CanTransition(StageDiarizing, StageFailed))
	assert.False(t, CanTransition(StageUploaded, StageFailed))
	assert.False(t, CanTransition(StageDone, StageFailed))
	assert.False(t, CanTransition(StageFailed, StageDone))
}

func TestAdvanceWalksHappyPath(t *testing.T) {
	pc := NewProcessingContext("recordings/x/source.wav", "source.wav", ContextDocuments{})
	now := time.Now()

	var visited []Stage
	for !pc.Stage.IsTerminal() {
		pc.BeginStage(now)
		require.NoError(t, pc.Advance(now))
		visited = append(visited, pc.Stage)
	}

	assert.Equal(t, Stages()[1:], visited)
	assert.NotNil(t, pc.CompletedAt)
	for _, st := range Stages() {
		assert.Equal(t, StageStatusCompleted, pc.StageRecords[st].Status, st)
	}
	assert.Error(t, pc.Advance(now))
}

func TestFailRecordsStageAndReason(t *testing.T) {
	pc := NewProcessingContext("o", "f", ContextDocuments{})
	now := time.Now()
	require.NoError(t, pc.Advance(now))
	require.NoError(t, pc.Advance(now))
	require.Equal(t, StageDiarizing, pc.Stage)

	pc.MarkWaiting("timeout", "diarization did not finish in time", now)
	assert.Equal(t, StageDiarizing, pc.Stage)
	assert.Equal(t, StageStatusWaiting, pc.StageRecords[StageDiarizing].Status)

	require.NoError(t, pc.Fail("failure", "bad audio", now))
	assert.Equal(t, StageFailed, pc.Stage)
	assert.Equal(t, StageDiarizing, pc.FailedStage)
	assert.Equal(t, "bad audio", pc.FailureReason)
	assert.Len(t, pc.ErrorHistory, 2)
	assert.Error(t, pc.Fail("failure", "again", now))
}

func TestCloneIsDeep(t *testing.T) {
	pc := NewProcessingContext("o", "f", ContextDocuments{})
	pc.DiarizationSegments = []Segment{{Start: 0, End: 1, SpeakerLabel: "SPEAKER_00"}}
	pc.SpeakerMapping = SpeakerMapping{"SPEAKER_00": "Alice"}
	pc.Documents = datatypes.NewJSONType(map[string]string{"a.txt": "documents/a.txt"})

	c := pc.Clone()
	c.DiarizationSegments[0].SpeakerLabel = "SPEAKER_09"
	c.SpeakerMapping["SPEAKER_00"] = "Bob"
	c.Documents.Data()["b.txt"] = "documents/b.txt"
	c.StageRecords[StageUploaded] = StageRecord{Status: StageStatusFailed}

	assert.Equal(t, "SPEAKER_00", pc.DiarizationSegments[0].SpeakerLabel)
	assert.Equal(t, "Alice", pc.SpeakerMapping["SPEAKER_00"])
	assert.Len(t, pc.DocumentObjects(), 1)
	assert.Equal(t, StageStatusCompleted, pc.StageRecords[StageUploaded].Status)
}

func TestMeetingDateFallback(t *testing.T) {
	pc := NewProcessingContext("o", "f", ContextDocuments{MeetingDate: "2024-03-15"})
	assert.Equal(t, "20240315", pc.MeetingDate().Format("20060102"))

	pc.Inputs.MeetingDate = "15/03/2024"
	assert.Equal(t, pc.CreatedAt, pc.MeetingDate())
}

func TestSpeakerMappingResolve(t *testing.T) {
	m := SpeakerMapping{"SPEAKER_00": "Alice", "SPEAKER_02": "  "}
	assert.Equal(t, "Alice", m.Resolve("SPEAKER_00"))
	assert.Equal(t, "SPEAKER_01", m.Resolve("SPEAKER_01"))
	assert.Equal(t, "SPEAKER_02", m.Resolve("SPEAKER_02"))
	assert.Equal(t, "SPEAKER_03", SpeakerMapping(nil).Resolve("SPEAKER_03"))
}

func TestParseOutcome(t *testing.T) {
	assert.Equal(t, OutcomeAdopted, ParseOutcome("Adopté à l'unanimité"))
	assert.Equal(t, OutcomeAdopted, ParseOutcome("approved"))
	assert.Equal(t, OutcomeRejected, ParseOutcome("Rejeté"))
	assert.Equal(t, OutcomeRejected, ParseOutcome("not adopted"))
	assert.Equal(t, OutcomeDeferred, ParseOutcome("reporté"))
	assert.Equal(t, OutcomeDeferred, ParseOutcome(""))
}

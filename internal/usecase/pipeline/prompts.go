package pipeline

import (
	"fmt"
	"strings"

	"github.com/johnquangdev/meeting-minutes/internal/domain/entities"
)

const systemPrompt = "You are a meticulous meeting secretary. You work only from the transcript and documents you are given and never invent names, facts or decisions."

// meetingHeader renders the chair and date context shared by every prompt
func meetingHeader(pc *entities.ProcessingContext) string {
	var b strings.Builder
	b.WriteString("Meeting date: ")
	b.WriteString(pc.MeetingDate().Format(entities.MeetingDateLayout))
	b.WriteByte('\n')
	if chair := strings.TrimSpace(pc.Inputs.Chair); chair != "" {
		b.WriteString("Chair: ")
		b.WriteString(chair)
		b.WriteByte('\n')
	}
	return b.String()
}

func section(title, body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	return fmt.Sprintf("\n=== %s ===\n%s\n", title, body)
}

func speakerMappingPrompt(pc *entities.ProcessingContext, labels []string, transcript string) string {
	var b strings.Builder
	b.WriteString(meetingHeader(pc))
	b.WriteString(`
Identify the real name of each diarization speaker label from how people address each other,
introduce themselves, and the participant list if one is provided.

Respond with ONLY a JSON object mapping labels to names, for example:
{"SPEAKER_00": "Alice Martin", "SPEAKER_01": "Bob Durand"}
Omit a label when its speaker cannot be identified with confidence.
`)
	b.WriteString("\nSpeaker labels: ")
	b.WriteString(strings.Join(labels, ", "))
	b.WriteByte('\n')
	b.WriteString(section("PARTICIPANT LIST", pc.Inputs.ParticipantList))
	b.WriteString(section("TRANSCRIPT", transcript))
	return b.String()
}

func reportPrompt(pc *entities.ProcessingContext, chunk TranscriptChunk, total int) string {
	var b strings.Builder
	b.WriteString(meetingHeader(pc))
	b.WriteString(`
Write the pre-report (condensed minutes) of this meeting: for each agenda item, a short
neutral summary of the discussion, the positions expressed and their authors, and the
conclusion reached. Use plain prose with one heading per item. Do not add a preamble.
`)
	if total > 1 {
		fmt.Fprintf(&b, "\nThis is part %d of %d of the transcript (%s - %s); cover only this part.\n",
			chunk.Index+1, total, FormatTimestamp(chunk.Start), FormatTimestamp(chunk.End))
	}
	b.WriteString(section("AGENDA", pc.Inputs.Agenda))
	b.WriteString(section("TRANSCRIPT", chunk.Text))
	return b.String()
}

func decisionsPrompt(pc *entities.ProcessingContext, chunk TranscriptChunk, total int) string {
	var b strings.Builder
	b.WriteString(meetingHeader(pc))
	b.WriteString(`
List every decision put to the meeting. For each one give the decision text, who proposed
it (if stated), its outcome (adopted, rejected or deferred) and the transcript timestamp
(HH:MM:SS) where it was decided. Use the vote record, when provided, to settle outcomes.

Respond with ONLY a JSON object:
{"decisions": [{"text": "...", "proposer": "...", "outcome": "adopted", "timestamp": "00:12:30"}]}
Respond with {"decisions": []} when there are none.
`)
	if total > 1 {
		fmt.Fprintf(&b, "\nThis is part %d of %d of the transcript (%s - %s).\n",
			chunk.Index+1, total, FormatTimestamp(chunk.Start), FormatTimestamp(chunk.End))
	}
	b.WriteString(section("VOTE RECORD", pc.Inputs.VoteRecord))
	b.WriteString(section("TRANSCRIPT", chunk.Text))
	return b.String()
}

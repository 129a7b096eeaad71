package presenter

import (
	"path"
	"sort"

	"github.com/johnquangdev/meeting-minutes/internal/adapter/dto/job"
	"github.com/johnquangdev/meeting-minutes/internal/domain/entities"
	"github.com/johnquangdev/meeting-minutes/internal/usecase/pipeline"
)

// ToJobResponse converts a processing context to JobResponse. links maps a
// document name to its download URL; documents without a link are listed without one.
func ToJobResponse(pc *entities.ProcessingContext, links map[string]string) *job.JobResponse {
	if pc == nil {
		return nil
	}

	response := &job.JobResponse{
		ID:             pc.ID.String(),
		SourceFilename: pc.SourceFilename,
		Stage:          string(pc.Stage),
		FailedStage:    string(pc.FailedStage),
		FailureReason:  pc.FailureReason,
		Chair:          pc.Inputs.Chair,
		MeetingDate:    pc.Inputs.MeetingDate,
		Resumes:        pc.Resumes,
		Stages:         make([]job.StageResponse, 0, len(pc.StageRecords)),
		SegmentCount:   len(pc.DiarizationSegments),
		DecisionCount:  len(pc.Decisions),
		Documents:      ToDocumentResponses(pc.Documents.Data(), links),
		CreatedAt:      pc.CreatedAt,
		UpdatedAt:      pc.UpdatedAt,
		CompletedAt:    pc.CompletedAt,
	}

	// Happy path order, skipping stages never entered
	for _, stage := range entities.Stages() {
		rec, ok := pc.StageRecords[stage]
		if !ok {
			continue
		}
		response.Stages = append(response.Stages, job.StageResponse{
			Stage:       string(stage),
			Status:      string(rec.Status),
			Attempts:    rec.Attempts,
			ErrorKind:   rec.ErrorKind,
			Error:       rec.Error,
			EnteredAt:   rec.EnteredAt,
			CompletedAt: rec.CompletedAt,
		})
	}

	return response
}

// ToDocumentResponses lists documents sorted by name
func ToDocumentResponses(docs map[string]string, links map[string]string) []job.DocumentResponse {
	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]job.DocumentResponse, 0, len(names))
	for _, name := range names {
		out = append(out, job.DocumentResponse{
			Name:        name,
			Filename:    path.Base(docs[name]),
			DownloadURL: links[name],
		})
	}
	return out
}

// ToJobListResponse converts the job history
func ToJobListResponse(contexts []entities.ProcessingContext) *job.JobListResponse {
	jobs := make([]job.JobSummaryResponse, len(contexts))
	for i, pc := range contexts {
		jobs[i] = job.JobSummaryResponse{
			ID:             pc.ID.String(),
			SourceFilename: pc.SourceFilename,
			Stage:          string(pc.Stage),
			FailureReason:  pc.FailureReason,
			MeetingDate:    pc.Inputs.MeetingDate,
			CreatedAt:      pc.CreatedAt,
			CompletedAt:    pc.CompletedAt,
		}
	}
	return &job.JobListResponse{
		Jobs:  jobs,
		Count: len(jobs),
	}
}

// ToTranscriptResponse converts an assembled transcript
func ToTranscriptResponse(jobID string, segments []entities.AnnotatedSegment) *job.TranscriptResponse {
	out := make([]job.TranscriptSegmentResponse, len(segments))
	for i, seg := range segments {
		out[i] = job.TranscriptSegmentResponse{
			Speaker:      seg.Speaker,
			SpeakerLabel: seg.SpeakerLabel,
			Start:        seg.Start,
			End:          seg.End,
			Timestamp:    pipeline.FormatTimestamp(seg.Start),
			Text:         seg.Text,
		}
	}
	return &job.TranscriptResponse{
		JobID:    jobID,
		Segments: out,
		Text:     pipeline.FormatTranscript(segments),
	}
}

package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// MeetingDateLayout is the accepted meeting date format
const MeetingDateLayout = "2006-01-02"

// ContextDocuments are the optional documents supplied with an upload
type ContextDocuments struct {
	ParticipantList string `json:"participant_list,omitempty"`
	VoteRecord      string `json:"vote_record,omitempty"`
	Agenda          string `json:"agenda,omitempty"`
	Chair           string `json:"chair,omitempty"`
	MeetingDate     string `json:"meeting_date,omitempty"` // YYYY-MM-DD
}

// ProcessingContext is the durable record of one recording's pipeline progress
type ProcessingContext struct {
	ID             uuid.UUID        `json:"id" gorm:"type:uuid;primary_key"`
	SourceObject   string           `json:"source_object" gorm:"type:text;not null"`
	SourceFilename string           `json:"source_filename" gorm:"type:varchar(255)"`
	Inputs         ContextDocuments `json:"inputs" gorm:"type:jsonb;serializer:json"`

	// Pipeline position
	Stage          Stage                 `json:"stage" gorm:"type:varchar(32);not null;index"`
	StageRecords   map[Stage]StageRecord `json:"stage_records" gorm:"type:jsonb;serializer:json"`
	StageEnteredAt time.Time             `json:"stage_entered_at"`
	FailedStage    Stage                 `json:"failed_stage,omitempty" gorm:"type:varchar(32)"`
	FailureReason  string                `json:"failure_reason,omitempty" gorm:"type:text"`
	ErrorHistory   []StageError          `json:"error_history,omitempty" gorm:"type:jsonb;serializer:json"`
	Resumes        int                   `json:"resumes" gorm:"type:integer;default:0"`

	// Stage outputs
	AudioURL            string                                `json:"audio_url,omitempty" gorm:"type:text"`
	NormalizedObject    string                                `json:"normalized_object,omitempty" gorm:"type:text"`
	DiarizationJobID    string                                `json:"diarization_job_id,omitempty" gorm:"type:varchar(255);index"`
	DiarizationSegments []Segment                             `json:"diarization_segments,omitempty" gorm:"type:jsonb;serializer:json"`
	TranscribedSegments []TranscribedSegment                  `json:"transcribed_segments,omitempty" gorm:"type:jsonb;serializer:json"`
	SpeakerMapping      SpeakerMapping                        `json:"speaker_mapping,omitempty" gorm:"type:jsonb;serializer:json"`
	PreReport           string                                `json:"pre_report,omitempty" gorm:"type:text"`
	Decisions           []Decision                            `json:"decisions,omitempty" gorm:"type:jsonb;serializer:json"`
	Documents           datatypes.JSONType[map[string]string] `json:"documents" gorm:"type:jsonb"`

	// Single active run marker
	ActiveRunID    string     `json:"-" gorm:"type:varchar(64);index"`
	LeaseExpiresAt *time.Time `json:"-"`

	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TableName specifies the table name for GORM
func (ProcessingContext) TableName() string {
	return "processing_contexts"
}

// NewProcessingContext creates a context in UPLOADED for an accepted upload
func NewProcessingContext(sourceObject, sourceFilename string, inputs ContextDocuments) *ProcessingContext {
	now := time.Now().UTC()
	return &ProcessingContext{
		ID:             uuid.New(),
		SourceObject:   sourceObject,
		SourceFilename: sourceFilename,
		Inputs:         inputs,
		Stage:          StageUploaded,
		StageRecords: map[Stage]StageRecord{
			StageUploaded: {Status: StageStatusCompleted, EnteredAt: &now, CompletedAt: &now},
		},
		StageEnteredAt: now,
		Documents:      datatypes.NewJSONType(map[string]string{}),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Clone returns a deep copy. Stages work on a clone so that a failed stage leaves
// the committed context untouched.
func (pc *ProcessingContext) Clone() *ProcessingContext {
	c := *pc

	c.StageRecords = make(map[Stage]StageRecord, len(pc.StageRecords))
	for k, v := range pc.StageRecords {
		c.StageRecords[k] = v
	}
	c.ErrorHistory = append([]StageError(nil), pc.ErrorHistory...)
	c.DiarizationSegments = append([]Segment(nil), pc.DiarizationSegments...)
	c.TranscribedSegments = append([]TranscribedSegment(nil), pc.TranscribedSegments...)
	c.Decisions = append([]Decision(nil), pc.Decisions...)

	if pc.SpeakerMapping != nil {
		c.SpeakerMapping = make(SpeakerMapping, len(pc.SpeakerMapping))
		for k, v := range pc.SpeakerMapping {
			c.SpeakerMapping[k] = v
		}
	}

	docs := make(map[string]string)
	for k, v := range pc.Documents.Data() {
		docs[k] = v
	}
	c.Documents = datatypes.NewJSONType(docs)

	if pc.LeaseExpiresAt != nil {
		t := *pc.LeaseExpiresAt
		c.LeaseExpiresAt = &t
	}
	if pc.CompletedAt != nil {
		t := *pc.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// BeginStage marks the current stage as running and counts the attempt
func (pc *ProcessingContext) BeginStage(now time.Time) {
	rec := pc.StageRecords[pc.Stage]
	rec.Status = StageStatusRunning
	rec.Attempts++
	rec.ErrorKind = ""
	rec.Error = ""
	if rec.EnteredAt == nil {
		rec.EnteredAt = &now
	}
	pc.setRecord(pc.Stage, rec)
	pc.UpdatedAt = now
}

// Advance completes the current stage and moves to the next one
func (pc *ProcessingContext) Advance(now time.Time) error {
	next := pc.Stage.Next()
	if !CanTransition(pc.Stage, next) {
		return fmt.Errorf("invalid transition %s -> %s", pc.Stage, next)
	}

	rec := pc.StageRecords[pc.Stage]
	rec.Status = StageStatusCompleted
	rec.CompletedAt = &now
	pc.setRecord(pc.Stage, rec)

	pc.Stage = next
	pc.StageEnteredAt = now
	pc.UpdatedAt = now

	if next == StageDone {
		pc.setRecord(next, StageRecord{Status: StageStatusCompleted, EnteredAt: &now, CompletedAt: &now})
		pc.CompletedAt = &now
		return nil
	}
	pc.setRecord(next, StageRecord{Status: StageStatusPending, EnteredAt: &now})
	return nil
}

// MarkWaiting leaves the context in its stage, resumable later
func (pc *ProcessingContext) MarkWaiting(kind, reason string, now time.Time) {
	rec := pc.StageRecords[pc.Stage]
	rec.Status = StageStatusWaiting
	rec.ErrorKind = kind
	rec.Error = reason
	pc.setRecord(pc.Stage, rec)
	pc.appendError(kind, reason, now)
	pc.UpdatedAt = now
}

// Fail moves the context to FAILED, remembering the failing stage
func (pc *ProcessingContext) Fail(kind, reason string, now time.Time) error {
	if !CanTransition(pc.Stage, StageFailed) {
		return fmt.Errorf("invalid transition %s -> %s", pc.Stage, StageFailed)
	}

	rec := pc.StageRecords[pc.Stage]
	rec.Status = StageStatusFailed
	rec.ErrorKind = kind
	rec.Error = reason
	rec.CompletedAt = &now
	pc.setRecord(pc.Stage, rec)
	pc.appendError(kind, reason, now)

	pc.FailedStage = pc.Stage
	pc.FailureReason = reason
	pc.Stage = StageFailed
	pc.StageEnteredAt = now
	pc.CompletedAt = &now
	pc.UpdatedAt = now
	return nil
}

// MeetingDate returns the supplied meeting date, falling back to the creation date
func (pc *ProcessingContext) MeetingDate() time.Time {
	if pc.Inputs.MeetingDate != "" {
		if t, err := time.Parse(MeetingDateLayout, pc.Inputs.MeetingDate); err == nil {
			return t
		}
	}
	return pc.CreatedAt
}

// DocumentObjects returns rendered document names mapped to object keys
func (pc *ProcessingContext) DocumentObjects() map[string]string {
	docs := pc.Documents.Data()
	if docs == nil {
		return map[string]string{}
	}
	return docs
}

func (pc *ProcessingContext) setRecord(stage Stage, rec StageRecord) {
	if pc.StageRecords == nil {
		pc.StageRecords = make(map[Stage]StageRecord)
	}
	pc.StageRecords[stage] = rec
}

func (pc *ProcessingContext) appendError(kind, reason string, now time.Time) {
	pc.ErrorHistory = append(pc.ErrorHistory, StageError{
		Stage:      pc.Stage,
		Kind:       kind,
		Reason:     reason,
		OccurredAt: now,
	})
}

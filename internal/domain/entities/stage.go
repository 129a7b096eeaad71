package entities

import "time"

// Stage is one step of the processing pipeline
type Stage string

const (
	StageUploaded            Stage = "UPLOADED"
	StageNormalizing         Stage = "NORMALIZING"
	StageDiarizing           Stage = "DIARIZING"
	StageTranscribing        Stage = "TRANSCRIBING"
	StageMappingSpeakers     Stage = "MAPPING_SPEAKERS"
	StageDraftingReport      Stage = "DRAFTING_REPORT"
	StageExtractingDecisions Stage = "EXTRACTING_DECISIONS"
	StageRendering           Stage = "RENDERING"
	StageDone                Stage = "DONE"
	StageFailed              Stage = "FAILED"
)

// stageOrder is the happy path; FAILED is reachable from any non-terminal stage
var stageOrder = []Stage{
	StageUploaded,
	StageNormalizing,
	StageDiarizing,
	StageTranscribing,
	StageMappingSpeakers,
	StageDraftingReport,
	StageExtractingDecisions,
	StageRendering,
	StageDone,
}

// Stages returns the ordered happy path
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// Index returns the position of s on the happy path, or -1
func (s Stage) Index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Next returns the stage following s, or s itself when terminal
func (s Stage) Next() Stage {
	i := s.Index()
	if i < 0 || i == len(stageOrder)-1 {
		return s
	}
	return stageOrder[i+1]
}

// IsValid reports whether s is a known stage
func (s Stage) IsValid() bool {
	return s == StageFailed || s.Index() >= 0
}

// IsTerminal reports whether no further processing happens from s
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}

// Executes reports whether s has work to run (everything but UPLOADED and terminal stages)
func (s Stage) Executes() bool {
	return s.IsValid() && !s.IsTerminal() && s != StageUploaded
}

// CanTransition checks the monotonic transition rule
func CanTransition(from, to Stage) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StageFailed {
		return from.Executes()
	}
	return from.Next() == to && from != to
}

// StageStatus is the status of a single stage within a run
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusWaiting   StageStatus = "waiting" // remote job still running, resumable
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
)

// StageRecord tracks one stage's progress for auditing
type StageRecord struct {
	Status      StageStatus `json:"status"`
	Attempts    int         `json:"attempts"`
	ErrorKind   string      `json:"error_kind,omitempty"`
	Error       string      `json:"error,omitempty"`
	EnteredAt   *time.Time  `json:"entered_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// StageError is one entry of a context's error history
type StageError struct {
	Stage      Stage     `json:"stage"`
	Kind       string    `json:"kind"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

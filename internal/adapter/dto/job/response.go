package job

import "time"

// UploadJobResponse is returned when an upload is accepted
type UploadJobResponse struct {
	JobID string `json:"job_id"`
	Stage string `json:"stage"`
}

// StageResponse is the audit record of one stage
type StageResponse struct {
	Stage       string     `json:"stage"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	Error       string     `json:"error,omitempty"`
	EnteredAt   *time.Time `json:"entered_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// DocumentResponse describes one rendered document
type DocumentResponse struct {
	Name        string `json:"name"`
	Filename    string `json:"filename"`
	DownloadURL string `json:"download_url,omitempty"`
}

// JobResponse represents the full status of a job
type JobResponse struct {
	ID             string             `json:"id"`
	SourceFilename string             `json:"source_filename"`
	Stage          string             `json:"stage"`
	FailedStage    string             `json:"failed_stage,omitempty"`
	FailureReason  string             `json:"failure_reason,omitempty"`
	Chair          string             `json:"chair,omitempty"`
	MeetingDate    string             `json:"meeting_date,omitempty"`
	Resumes        int                `json:"resumes"`
	Stages         []StageResponse    `json:"stages"`
	SegmentCount   int                `json:"segment_count"`
	DecisionCount  int                `json:"decision_count"`
	Documents      []DocumentResponse `json:"documents"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
}

// JobSummaryResponse is one row of the job history
type JobSummaryResponse struct {
	ID             string     `json:"id"`
	SourceFilename string     `json:"source_filename"`
	Stage          string     `json:"stage"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	MeetingDate    string     `json:"meeting_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// JobListResponse represents the job history
type JobListResponse struct {
	Jobs  []JobSummaryResponse `json:"jobs"`
	Count int                  `json:"count"`
}

// TranscriptSegmentResponse is one attributed utterance
type TranscriptSegmentResponse struct {
	Speaker      string  `json:"speaker"`
	SpeakerLabel string  `json:"speaker_label"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Timestamp    string  `json:"timestamp"`
	Text         string  `json:"text"`
}

// TranscriptResponse represents the assembled transcript of a job
type TranscriptResponse struct {
	JobID    string                      `json:"job_id"`
	Segments []TranscriptSegmentResponse `json:"segments"`
	Text     string                      `json:"text"`
}

package job

// UploadJobRequest represents the form fields sent alongside the audio file.
// Context documents may be sent as text fields or as plain-text file parts of
// the same name.
type UploadJobRequest struct {
	Chair       string `form:"chair" validate:"max=255"`
	MeetingDate string `form:"meeting_date" validate:"omitempty,datetime=2006-01-02"`
}

// ListJobsRequest represents query parameters for the job history
type ListJobsRequest struct {
	Limit int `query:"limit" validate:"min=1,max=200"`
}

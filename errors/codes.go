package errors

// ErrorCode identifies an application error class in API responses
type ErrorCode int32

const (
	ErrorCode_HTTP_OK          ErrorCode = 200
	ErrorCode_INTERNAL         ErrorCode = 1000
	ErrorCode_INVALID_ARGUMENT ErrorCode = 1001
	ErrorCode_INVALID_PAYLOAD  ErrorCode = 1003

	ErrorCode_UPLOAD_MISSING_AUDIO       ErrorCode = 2000
	ErrorCode_UPLOAD_UNSUPPORTED_FORMAT  ErrorCode = 2001
	ErrorCode_UPLOAD_TOO_LARGE           ErrorCode = 2002
	ErrorCode_JOB_NOT_FOUND              ErrorCode = 2100
	ErrorCode_JOB_ALREADY_RUNNING        ErrorCode = 2101
	ErrorCode_JOB_TERMINAL               ErrorCode = 2102
	ErrorCode_TRANSCRIPT_NOT_READY       ErrorCode = 2103
	ErrorCode_DOWNLOAD_INVALID_TOKEN     ErrorCode = 2200
	ErrorCode_DOCUMENT_NOT_FOUND         ErrorCode = 2201
	ErrorCode_INTEGRATION_STORAGE_FAILED ErrorCode = 3000
	ErrorCode_DB_QUERY_FAILED            ErrorCode = 3100
)

var errorCodeNames = map[ErrorCode]string{
	ErrorCode_HTTP_OK:                    "HTTP_OK",
	ErrorCode_INTERNAL:                   "INTERNAL",
	ErrorCode_INVALID_ARGUMENT:           "INVALID_ARGUMENT",
	ErrorCode_INVALID_PAYLOAD:            "INVALID_PAYLOAD",
	ErrorCode_UPLOAD_MISSING_AUDIO:       "UPLOAD_MISSING_AUDIO",
	ErrorCode_UPLOAD_UNSUPPORTED_FORMAT:  "UPLOAD_UNSUPPORTED_FORMAT",
	ErrorCode_UPLOAD_TOO_LARGE:           "UPLOAD_TOO_LARGE",
	ErrorCode_JOB_NOT_FOUND:              "JOB_NOT_FOUND",
	ErrorCode_JOB_ALREADY_RUNNING:        "JOB_ALREADY_RUNNING",
	ErrorCode_JOB_TERMINAL:               "JOB_TERMINAL",
	ErrorCode_TRANSCRIPT_NOT_READY:       "TRANSCRIPT_NOT_READY",
	ErrorCode_DOWNLOAD_INVALID_TOKEN:     "DOWNLOAD_INVALID_TOKEN",
	ErrorCode_DOCUMENT_NOT_FOUND:         "DOCUMENT_NOT_FOUND",
	ErrorCode_INTEGRATION_STORAGE_FAILED: "INTEGRATION_STORAGE_FAILED",
	ErrorCode_DB_QUERY_FAILED:            "DB_QUERY_FAILED",
}

// String returns the symbolic name of the code
func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

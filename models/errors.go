package models

import "fmt"

// Error codes used across the fetch and media pipelines.
const (
	ErrCodeNoTransport = "NO_TRANSPORT"
	ErrCodeHTTPStatus  = "HTTP_STATUS"
	ErrCodeTransport   = "TRANSPORT_FAILED"
	ErrCodeParse       = "PARSE_FAILED"
	ErrCodeUpload      = "UPLOAD_FAILED"
	ErrCodeStorage     = "STORAGE_FAILED"
	ErrCodeInternal    = "INTERNAL_ERROR"
)

// CrawlError is the internal error type carrying an error code and, for
// HTTP status errors, the status. It implements the error interface and
// supports error wrapping via Unwrap.
type CrawlError struct {
	Code       string
	Message    string
	StatusCode int   // set only for ErrCodeHTTPStatus
	Err        error // wrapped original error
}

func (e *CrawlError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CrawlError) Unwrap() error {
	return e.Err
}

// NewCrawlError creates a new CrawlError.
func NewCrawlError(code, message string, err error) *CrawlError {
	return &CrawlError{Code: code, Message: message, Err: err}
}

// NewStatusError creates a CrawlError for a non-2xx HTTP response.
func NewStatusError(status int, url string) *CrawlError {
	return &CrawlError{
		Code:       ErrCodeHTTPStatus,
		Message:    fmt.Sprintf("HTTP %d for %s", status, url),
		StatusCode: status,
	}
}

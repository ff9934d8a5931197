package domain

import "errors"

// API error categories. Errors returned by the ade client match one of these via errors.Is.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrDocumentParse  = errors.New("document parse failed")
	ErrExtraction     = errors.New("extraction failed")
	ErrRateLimited    = errors.New("rate limited")
)

var (
	ErrNotFound            = errors.New("resource not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrJobNotFound         = errors.New("job not found")
	ErrJobNotCompleted     = errors.New("job has not completed")
	ErrJobNotRetryable     = errors.New("only failed jobs can be retried")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file exceeds maximum allowed size")
	ErrUploadFailed        = errors.New("file upload to storage failed")
	ErrInvalidSchema       = errors.New("invalid extraction schema")
	ErrInvalidRequest      = errors.New("invalid request")
)

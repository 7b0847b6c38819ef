package domain

import "errors"

// Failure classes surfaced by the try-on pipeline. Callers match them with errors.Is;
// the wrapping error names the path, task or URL involved.
var (
	ErrInputNotFound     = errors.New("input image not found")
	ErrSubmission        = errors.New("task submission rejected")
	ErrTaskNotFound      = errors.New("task not found")
	ErrRemoteTaskFailed  = errors.New("remote task failed")
	ErrMalformedResponse = errors.New("malformed provider response")
	ErrPollTimeout       = errors.New("task polling timeout")
	ErrDownload          = errors.New("result download failed")
	ErrProvider          = errors.New("provider error")
	ErrCancelled         = errors.New("generation cancelled")

	// ErrStatusUnsupported is returned when the active provider has no task concept
	ErrStatusUnsupported = errors.New("status check not supported by provider")

	// ErrNotFound is returned by repositories for missing records
	ErrNotFound = errors.New("record not found")
)

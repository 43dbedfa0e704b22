package services

import (
	"errors"
	"fmt"
)

// ErrBusy is returned when a component is asked to start while its previous
// invocation is still outstanding.
var ErrBusy = errors.New("operation already in progress")

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

// SessionError means a conversation could not be started.
type SessionError struct{ Err error }

func (e *SessionError) Error() string { return fmt.Sprintf("could not start conversation: %v", e.Err) }
func (e *SessionError) Unwrap() error { return e.Err }

// ExchangeError means an analyze request failed; history is unchanged.
type ExchangeError struct{ Err error }

func (e *ExchangeError) Error() string { return fmt.Sprintf("analysis failed: %v", e.Err) }
func (e *ExchangeError) Unwrap() error { return e.Err }

// UploadError means a batch was rejected; no document was recorded.
type UploadError struct {
	Files int
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload of %d file(s) failed: %v", e.Files, e.Err)
}
func (e *UploadError) Unwrap() error { return e.Err }

// ArtifactError means the systems map could not be fetched or decoded for
// display.
type ArtifactError struct {
	Ref string
	Err error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("systems map unavailable (%s): %v", e.Ref, e.Err)
}
func (e *ArtifactError) Unwrap() error { return e.Err }

// ExportStage names the export step that failed.
type ExportStage string

const (
	StageFetch  ExportStage = "fetch"
	StageDecode ExportStage = "decode"
	StageWrite  ExportStage = "write"
	StageSource ExportStage = "source"
)

// ExportError means a diagram could not be saved.
type ExportError struct {
	Stage ExportStage
	Err   error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export failed at %s: %v", e.Stage, e.Err)
}
func (e *ExportError) Unwrap() error { return e.Err }

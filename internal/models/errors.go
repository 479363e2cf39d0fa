package models

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType int

const (
	ErrUsage ErrorType = iota
	ErrResolution
	ErrCollision
	ErrArchiveFormat
	ErrTool
	ErrFileOp
	ErrBuild
	ErrSigning
	ErrIndex
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrUsage:
		return "Usage"
	case ErrResolution:
		return "Resolution"
	case ErrCollision:
		return "Collision"
	case ErrArchiveFormat:
		return "ArchiveFormat"
	case ErrTool:
		return "Tool"
	case ErrFileOp:
		return "FileOp"
	case ErrBuild:
		return "Build"
	case ErrSigning:
		return "Signing"
	case ErrIndex:
		return "Index"
	default:
		return "Unknown"
	}
}

// RpmciError represents an error raised by one pipeline stage
type RpmciError struct {
	Type  ErrorType
	Stage string
	Err   error
}

// Error implements the error interface
func (e *RpmciError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Stage, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.Type, e.Err)
}

// Unwrap returns the wrapped error
func (e *RpmciError) Unwrap() error {
	return e.Err
}

// NewError wraps err with a type and the stage that produced it
func NewError(t ErrorType, stage string, err error) *RpmciError {
	return &RpmciError{Type: t, Stage: stage, Err: err}
}

// IsType reports whether err wraps an *RpmciError of the given type
func IsType(err error, t ErrorType) bool {
	var e *RpmciError
	return errors.As(err, &e) && e.Type == t
}

package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrConnectionNotFound indicates a channel connection was not found by the given identifier.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrChannelNotFound indicates a business channel was not found by the given identifier.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrChannelAlreadyExists indicates the business already has a channel with that name.
	ErrChannelAlreadyExists = errors.New("channel already exists")

	// ErrInvalidID indicates an identifier the backend cannot store a record under.
	ErrInvalidID = errors.New("invalid identifier")
)

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for workflow errors.
func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// ConnectionError wraps connection-related errors with additional context.
type ConnectionError struct {
	Op           string
	ConnectionID string
	Err          error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s operation failed for connection %s: %v", e.Op, e.ConnectionID, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *ConnectionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewConnectionError creates a new connection error with context.
func NewConnectionError(op, connectionID string, err error) *ConnectionError {
	return &ConnectionError{
		Op:           op,
		ConnectionID: connectionID,
		Err:          err,
	}
}

// ChannelError wraps business channel errors with additional context.
type ChannelError struct {
	Op        string
	ChannelID string
	Err       error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("%s operation failed for channel %s: %v", e.Op, e.ChannelID, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

func (e *ChannelError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewChannelError creates a new channel error with context.
func NewChannelError(op, channelID string, err error) *ChannelError {
	return &ChannelError{
		Op:        op,
		ChannelID: channelID,
		Err:       err,
	}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsConnectionNotFound checks if an error indicates a connection was not found.
func IsConnectionNotFound(err error) bool {
	return errors.Is(err, ErrConnectionNotFound)
}

// IsChannelNotFound checks if an error indicates a channel was not found.
func IsChannelNotFound(err error) bool {
	return errors.Is(err, ErrChannelNotFound)
}

// IsChannelAlreadyExists checks if an error indicates a duplicate channel name.
func IsChannelAlreadyExists(err error) bool {
	return errors.Is(err, ErrChannelAlreadyExists)
}

// IsNotFound checks if an error indicates any missing record.
func IsNotFound(err error) bool {
	return IsWorkflowNotFound(err) || IsConnectionNotFound(err) || IsChannelNotFound(err)
}

// Package services provides the business logic for workflows, channel connections and
// routing, and the standardized error types of that layer.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/parley/pkg/builder"
	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrBusinessIDRequired   = errors.New("business ID is required")
	ErrWorkflowNameRequired = builder.ErrWorkflowNameRequired
	ErrInvalidTrigger       = errors.New("invalid workflow trigger")
	ErrInvalidWorkflow      = errors.New("invalid workflow")
	ErrActiveWithoutSteps   = errors.New("an active workflow must have steps")
	ErrWorkflowNil          = errors.New("workflow cannot be nil")

	ErrConnectionIDRequired     = errors.New("connection ID is required")
	ErrUnknownConnectionKind    = models.ErrUnknownConnectionKind
	ErrInvalidStatus            = errors.New("invalid connection status")
	ErrInvalidMode              = errors.New("invalid routing mode")
	ErrInvalidFallbackBehavior  = errors.New("invalid fallback behavior")
	ErrInvalidOutsideHours      = errors.New("invalid outside hours behavior")
	ErrInvalidWorkingHours      = errors.New("invalid working hours")
	ErrDefaultFlowNotFound      = errors.New("default flow does not exist in this business")
	ErrDefaultFlowInactive      = errors.New("default flow is not active")
	ErrDefaultFlowAgentMismatch = errors.New("default flow is bound to another agent")

	ErrChannelNameRequired = errors.New("channel name is required")
	ErrStepNotFound        = errors.New("step not found in workflow")

	// Business Logic Conflicts (409 Conflict).
	ErrConnectionKindMismatch     = errors.New("connection is registered with another kind")
	ErrConnectionBusinessMismatch = errors.New("connection belongs to another business")
	ErrChannelAlreadyExists       = persistence.ErrChannelAlreadyExists
	ErrNoEffectiveWorkflow        = errors.New("no active workflow is available for this connection")

	// Not Found (404).
	ErrWorkflowNotFound   = persistence.ErrWorkflowNotFound
	ErrConnectionNotFound = persistence.ErrConnectionNotFound
	ErrChannelNotFound    = persistence.ErrChannelNotFound
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	var issues models.ValidationIssues
	if errors.As(err, &issues) {
		return true
	}

	for _, target := range []error{
		ErrInvalidRequest,
		ErrBusinessIDRequired,
		ErrWorkflowNameRequired,
		ErrInvalidTrigger,
		ErrInvalidWorkflow,
		ErrActiveWithoutSteps,
		ErrWorkflowNil,
		ErrConnectionIDRequired,
		ErrUnknownConnectionKind,
		ErrInvalidStatus,
		ErrInvalidMode,
		ErrInvalidFallbackBehavior,
		ErrInvalidOutsideHours,
		ErrInvalidWorkingHours,
		ErrDefaultFlowNotFound,
		ErrDefaultFlowInactive,
		ErrDefaultFlowAgentMismatch,
		ErrChannelNameRequired,
		ErrStepNotFound,
		persistence.ErrInvalidID,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConnectionKindMismatch) ||
		errors.Is(err, ErrConnectionBusinessMismatch) ||
		errors.Is(err, ErrChannelAlreadyExists) ||
		errors.Is(err, ErrNoEffectiveWorkflow)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsNotFound(err)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationIssuesOf extracts the workflow graph violations carried by err, if any.
func ValidationIssuesOf(err error) models.ValidationIssues {
	var issues models.ValidationIssues
	if errors.As(err, &issues) {
		return issues
	}

	return nil
}

// Package web provides HTTP request and response types for the parley API.
package web

import (
	"time"

	"github.com/dukex/parley/pkg/builder"
	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/services"
	"github.com/dukex/parley/pkg/session"
)

// CreateWorkflowRequest represents the request body for creating a conversation workflow.
type CreateWorkflowRequest struct {
	Name            string                            `json:"name"                  validate:"required"`
	BusinessID      string                            `json:"businessId"            validate:"required"`
	AgentID         *string                           `json:"agentId,omitempty"`
	Trigger         models.Trigger                    `json:"trigger"               validate:"omitempty,oneof=conversation_opened first_message"`
	Active          bool                              `json:"active"`
	DefaultLanguage string                            `json:"defaultLanguage"`
	EntryStepID     string                            `json:"entryStepId,omitempty"`
	Steps           []*models.WorkflowStep            `json:"steps"`
	Translations    map[string]models.LanguageContent `json:"translations"`
}

// Workflow converts the request into a workflow ready to be created.
func (r CreateWorkflowRequest) Workflow() *models.ConversationWorkflow {
	return &models.ConversationWorkflow{
		Name:            r.Name,
		BusinessID:      r.BusinessID,
		AgentID:         r.AgentID,
		Trigger:         r.Trigger,
		Active:          r.Active,
		DefaultLanguage: r.DefaultLanguage,
		EntryStepID:     r.EntryStepID,
		Steps:           r.Steps,
		Translations:    r.Translations,
	}
}

// BuildWorkflowRequest represents the request body for building a workflow from the
// category template. When Channels is omitted the business's channel names are used.
type BuildWorkflowRequest struct {
	Name            string                      `json:"name"               validate:"required"`
	BusinessID      string                      `json:"businessId"         validate:"required"`
	AgentID         *string                     `json:"agentId,omitempty"`
	Trigger         models.Trigger              `json:"trigger"            validate:"omitempty,oneof=conversation_opened first_message"`
	Active          bool                        `json:"active"`
	DefaultLanguage string                      `json:"defaultLanguage"`
	Messages        map[string]builder.Messages `json:"messages"`
	Channels        []string                    `json:"channels"`
}

// Input converts the request into builder input.
func (r BuildWorkflowRequest) Input() builder.Input {
	return builder.Input{
		Name:            r.Name,
		BusinessID:      r.BusinessID,
		AgentID:         r.AgentID,
		Trigger:         r.Trigger,
		Active:          r.Active,
		DefaultLanguage: r.DefaultLanguage,
		Messages:        r.Messages,
		Channels:        r.Channels,
	}
}

// UpdateWorkflowRequest represents the request body for updating a workflow.
// Present fields replace the stored values wholesale.
type UpdateWorkflowRequest = services.UpdateWorkflowRequest

// DeleteWorkflowResponse is returned after a workflow is deleted.
type DeleteWorkflowResponse struct {
	ID string `json:"id"`
}

// UpdateRoutingRequest is the merge-patch body of a connection's routing.
type UpdateRoutingRequest = services.RoutingPatch

// UpdateStatusRequest represents the request body for changing a connection status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// DecideRequest asks which step follows a user's input.
type DecideRequest = services.DecideRequest

// CreateChannelRequest represents the request body for adding a business channel name.
type CreateChannelRequest struct {
	BusinessID string `json:"businessId" validate:"required"`
	Name       string `json:"name"       validate:"required"`
}

// OpenSessionRequest opens a realtime session for a user of a business.
type OpenSessionRequest struct {
	UserID     string `json:"userId"     validate:"required"`
	BusinessID string `json:"businessId" validate:"required"`
}

// SessionResponse describes an open session.
type SessionResponse struct {
	UserID     string    `json:"userId"`
	BusinessID string    `json:"businessId"`
	OpenedAt   time.Time `json:"openedAt"`
	Dropped    int64     `json:"dropped"`
}

func sessionResponse(s *session.Session) SessionResponse {
	return SessionResponse{
		UserID:     s.UserID,
		BusinessID: s.BusinessID,
		OpenedAt:   s.OpenedAt,
		Dropped:    s.Dropped(),
	}
}

// UpdatesResponse is one long-poll batch of session updates.
type UpdatesResponse struct {
	Updates []session.Update `json:"updates"`
	Dropped int64            `json:"dropped"`
}

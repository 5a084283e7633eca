// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/dukex/parley/pkg/models"
	"github.com/google/uuid"
)

// CreateTestWorkflow creates a small valid ConversationWorkflow that can be overridden:
// ask_topic branches on "billing" to send_billing and defaults to end.
func CreateTestWorkflow(overrides ...func(*models.ConversationWorkflow)) *models.ConversationWorkflow {
	workflow := &models.ConversationWorkflow{
		Name:            "Test Workflow",
		BusinessID:      "business-1",
		Trigger:         models.TriggerConversationOpened,
		Active:          true,
		DefaultLanguage: "en",
		Steps: []*models.WorkflowStep{
			{
				ID:                "ask_topic",
				Type:              models.StepTypeAskQuestion,
				Branches:          []models.Branch{{Value: "billing", NextStepID: "send_billing"}},
				DefaultNextStepID: models.StepEnd,
			},
			{
				ID:         "send_billing",
				Type:       models.StepTypeSendMessage,
				NextStepID: "tag_billing",
			},
			{
				ID:         "tag_billing",
				Type:       models.StepTypeUpdateTag,
				NextStepID: models.StepEnd,
				Config:     map[string]any{"tags": []any{"billing"}},
			},
		},
		Translations: map[string]models.LanguageContent{
			"en": {
				"ask_topic": {
					Message: "What can we help you with?",
					Options: []models.Option{{Value: "billing", Label: "Billing"}},
				},
				"send_billing": {Message: "Our billing team will reply shortly."},
				"tag_billing":  {},
			},
		},
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithWorkflowID sets the workflow id.
func WithWorkflowID(id string) func(*models.ConversationWorkflow) {
	return func(w *models.ConversationWorkflow) {
		w.ID = id
	}
}

// WithBusiness sets the owning business.
func WithBusiness(businessID string) func(*models.ConversationWorkflow) {
	return func(w *models.ConversationWorkflow) {
		w.BusinessID = businessID
	}
}

// WithAgent binds the workflow to an AI agent.
func WithAgent(agentID string) func(*models.ConversationWorkflow) {
	return func(w *models.ConversationWorkflow) {
		w.AgentID = &agentID
	}
}

// WithActive sets the active flag.
func WithActive(active bool) func(*models.ConversationWorkflow) {
	return func(w *models.ConversationWorkflow) {
		w.Active = active
	}
}

// WithName sets the workflow name.
func WithName(name string) func(*models.ConversationWorkflow) {
	return func(w *models.ConversationWorkflow) {
		w.Name = name
	}
}

// CreateTestUnipileConnection creates a Unipile connection with default routing.
func CreateTestUnipileConnection(overrides ...func(*models.UnipileConnection)) *models.UnipileConnection {
	conn := &models.UnipileConnection{
		ConnectionBase: models.ConnectionBase{
			ConnectionID: "unipile-" + uuid.New().String()[:8],
			BusinessID:   "business-1",
			Status:       models.ConnectionStatusActive,
			Routing:      models.DefaultRouting(),
		},
		Platform:    "instagram",
		AccountName: "acme.store",
	}

	for _, override := range overrides {
		override(conn)
	}

	return conn
}

// CreateTestWhatsAppConnection creates a WhatsApp Business connection with default routing.
func CreateTestWhatsAppConnection(overrides ...func(*models.WhatsAppBusinessConnection)) *models.WhatsAppBusinessConnection {
	conn := &models.WhatsAppBusinessConnection{
		ConnectionBase: models.ConnectionBase{
			ConnectionID: "waba-" + uuid.New().String()[:8],
			BusinessID:   "business-1",
			Status:       models.ConnectionStatusActive,
			Routing:      models.DefaultRouting(),
		},
		PhoneNumberID:      "1098765432",
		DisplayPhoneNumber: "+1 555 0100",
		WABAID:             "waba-42",
	}

	for _, override := range overrides {
		override(conn)
	}

	return conn
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

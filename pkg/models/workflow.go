// Package models defines the conversation workflow and channel connection domain models.
package models

import "time"

// Trigger determines when the execution engine starts walking a workflow for a conversation.
type Trigger string

const (
	TriggerConversationOpened Trigger = "conversation_opened"
	TriggerFirstMessage       Trigger = "first_message"
)

// Valid reports whether t is one of the known triggers.
func (t Trigger) Valid() bool {
	return t == TriggerConversationOpened || t == TriggerFirstMessage
}

// ConversationWorkflow is a named conversation script: a directed graph of steps with
// per-language display text.
type ConversationWorkflow struct {
	ID              string                     `json:"_id"`
	Name            string                     `json:"name"                  validate:"required"`
	BusinessID      string                     `json:"businessId"            validate:"required"`
	AgentID         *string                    `json:"agentId,omitempty"` // nil means human-only
	Trigger         Trigger                    `json:"trigger"               validate:"required,oneof=conversation_opened first_message"`
	Active          bool                       `json:"active"`
	DefaultLanguage string                     `json:"defaultLanguage"       validate:"required"`
	EntryStepID     string                     `json:"entryStepId,omitempty"`
	Steps           []*WorkflowStep            `json:"steps"`
	Translations    map[string]LanguageContent `json:"translations"`
	CreatedAt       time.Time                  `json:"createdAt"`
	UpdatedAt       time.Time                  `json:"updatedAt"`
}

// Entry returns the id of the step the engine starts from. Without an explicit entry the
// first step of the authoring order is used.
func (w *ConversationWorkflow) Entry() string {
	if w.EntryStepID != "" {
		return w.EntryStepID
	}

	if len(w.Steps) == 0 {
		return ""
	}

	return w.Steps[0].ID
}

// StepByID returns the step with the given id, or nil.
func (w *ConversationWorkflow) StepByID(id string) *WorkflowStep {
	for _, step := range w.Steps {
		if step.ID == id {
			return step
		}
	}

	return nil
}

// HumanOnly reports whether the workflow is not bound to an AI agent.
func (w *ConversationWorkflow) HumanOnly() bool {
	return w.AgentID == nil || *w.AgentID == ""
}

// Languages returns the language codes declared in the translations map.
func (w *ConversationWorkflow) Languages() []string {
	languages := make([]string, 0, len(w.Translations))
	for language := range w.Translations {
		languages = append(languages, language)
	}

	return languages
}

// LanguageContent is the display layer of one language, keyed by step id.
type LanguageContent map[string]StepContent

// StepContent holds the display text of one step. Options are only meaningful for
// ask_question steps.
type StepContent struct {
	Message string   `json:"message"`
	Options []Option `json:"options,omitempty"`
}

// Option is a labelled answer offered by an ask_question step.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// HasOption reports whether the content offers an option with the given value.
func (c StepContent) HasOption(value string) bool {
	for _, option := range c.Options {
		if option.Value == value {
			return true
		}
	}

	return false
}

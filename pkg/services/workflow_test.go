package services

import (
	"errors"
	"testing"

	"github.com/dukex/parley/pkg/builder"
	"github.com/dukex/parley/pkg/events"
	"github.com/dukex/parley/pkg/mocks"
	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewWorkflow(t *testing.T) {
	persistence := newFilePersistence(t)
	service := NewWorkflow(persistence, nil, discardLogger())

	assert.NotNil(t, service)
	assert.Equal(t, persistence, service.persistence)
}

func TestWorkflow_Create(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("events.WorkflowCreated")).Return(nil).Once()

	service := NewWorkflow(newFilePersistence(t), bus, discardLogger())

	workflow := testutil.CreateTestWorkflow(func(w *models.ConversationWorkflow) {
		w.Name = "  Support routing  "
		w.Trigger = ""
	})

	created, err := service.Create(t.Context(), workflow)
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Support routing", created.Name)
	assert.Equal(t, models.TriggerConversationOpened, created.Trigger)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	fetched, err := service.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Len(t, fetched.Steps, 3)

	bus.AssertExpectations(t)

	event := bus.Calls[0].Arguments.Get(2).(events.WorkflowCreated)
	assert.Equal(t, created.ID, event.WorkflowID)
	assert.Equal(t, "business-1", event.BusinessID)
}

func TestWorkflow_CreateValidation(t *testing.T) {
	service := NewWorkflow(newFilePersistence(t), nil, discardLogger())

	tests := []struct {
		name     string
		workflow *models.ConversationWorkflow
		target   error
	}{
		{"nil workflow", nil, ErrWorkflowNil},
		{"blank name", testutil.CreateTestWorkflow(testutil.WithName("   ")), ErrWorkflowNameRequired},
		{"missing business", testutil.CreateTestWorkflow(testutil.WithBusiness("")), ErrBusinessIDRequired},
		{"unknown trigger", testutil.CreateTestWorkflow(func(w *models.ConversationWorkflow) { w.Trigger = "on_tuesday" }), ErrInvalidTrigger},
		{"active without steps", testutil.CreateTestWorkflow(func(w *models.ConversationWorkflow) { w.Steps = nil }), ErrActiveWithoutSteps},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Create(t.Context(), tt.workflow)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
			assert.True(t, IsValidationError(err))
		})
	}

	t.Run("broken graph reports issues", func(t *testing.T) {
		workflow := testutil.CreateTestWorkflow(func(w *models.ConversationWorkflow) {
			w.Steps[1].NextStepID = "nowhere"
		})

		_, err := service.Create(t.Context(), workflow)
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
		assert.NotEmpty(t, ValidationIssuesOf(err))
	})

	t.Run("inactive draft without steps", func(t *testing.T) {
		draft := &models.ConversationWorkflow{Name: "Draft", BusinessID: "business-1"}

		created, err := service.Create(t.Context(), draft)
		require.NoError(t, err)
		assert.Empty(t, created.Steps)
		assert.Equal(t, "en", created.DefaultLanguage)
	})
}

func TestWorkflow_UpdateRoundTrip(t *testing.T) {
	service := NewWorkflow(newFilePersistence(t), nil, discardLogger())

	created, err := service.Create(t.Context(), testutil.CreateTestWorkflow())
	require.NoError(t, err)

	before, err := service.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)

	updated, err := service.Update(t.Context(), created.ID, UpdateWorkflowRequest{
		Steps:        &before.Steps,
		Translations: &before.Translations,
	})
	require.NoError(t, err)

	after, err := service.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)

	assert.False(t, after.UpdatedAt.Before(before.UpdatedAt))
	assert.Equal(t, updated.UpdatedAt, after.UpdatedAt)

	after.UpdatedAt = before.UpdatedAt
	assert.Equal(t, before, after)
}

func TestWorkflow_UpdateReplacesPresentFields(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.AnythingOfType("events.WorkflowCreated")).Return(nil)
	bus.On("Publish", mock.Anything, mock.Anything, mock.AnythingOfType("events.WorkflowUpdated")).Return(nil)

	service := NewWorkflow(newFilePersistence(t), bus, discardLogger())

	created, err := service.Create(t.Context(), testutil.CreateTestWorkflow())
	require.NoError(t, err)

	inactive := false
	trigger := models.TriggerFirstMessage
	translations := map[string]models.LanguageContent{
		"pt": {
			"ask_topic":    {Message: "Como podemos ajudar?", Options: []models.Option{{Value: "billing", Label: "Cobrança"}}},
			"send_billing": {Message: "Nossa equipe responderá em breve."},
			"tag_billing":  {},
		},
	}
	language := "pt"

	updated, err := service.Update(t.Context(), created.ID, UpdateWorkflowRequest{
		Active:          &inactive,
		Trigger:         &trigger,
		DefaultLanguage: &language,
		Translations:    &translations,
	})
	require.NoError(t, err)

	assert.False(t, updated.Active)
	assert.Equal(t, models.TriggerFirstMessage, updated.Trigger)
	assert.Equal(t, []string{"pt"}, updated.Languages())
	assert.Equal(t, created.Name, updated.Name)
	assert.Len(t, updated.Steps, 3)

	var event events.WorkflowUpdated

	for _, call := range bus.Calls {
		if e, ok := call.Arguments.Get(2).(events.WorkflowUpdated); ok {
			event = e
		}
	}

	assert.True(t, event.Deactivated)

	t.Run("invalid replacement keeps the stored record", func(t *testing.T) {
		english := "en"

		_, err := service.Update(t.Context(), created.ID, UpdateWorkflowRequest{DefaultLanguage: &english})
		require.Error(t, err)
		assert.True(t, IsValidationError(err))

		stored, err := service.FetchByID(t.Context(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, "pt", stored.DefaultLanguage)
	})

	t.Run("unknown workflow", func(t *testing.T) {
		_, err := service.Update(t.Context(), "missing", UpdateWorkflowRequest{})
		assert.True(t, IsNotFoundError(err))
	})
}

func TestWorkflow_Delete(t *testing.T) {
	service := NewWorkflow(newFilePersistence(t), nil, discardLogger())

	created, err := service.Create(t.Context(), testutil.CreateTestWorkflow())
	require.NoError(t, err)

	require.NoError(t, service.Delete(t.Context(), created.ID))

	_, err = service.FetchByID(t.Context(), created.ID)
	assert.True(t, IsNotFoundError(err))

	err = service.Delete(t.Context(), created.ID)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestWorkflow_PublishFailureDoesNotFailWrite(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	service := NewWorkflow(newFilePersistence(t), bus, discardLogger())

	created, err := service.Create(t.Context(), testutil.CreateTestWorkflow())
	require.NoError(t, err)
	require.NoError(t, service.Delete(t.Context(), created.ID))

	bus.AssertNumberOfCalls(t, "Publish", 2)
}

func TestWorkflow_List(t *testing.T) {
	service := NewWorkflow(newFilePersistence(t), nil, discardLogger())

	_, err := service.List(t.Context(), ListWorkflowsRequest{})
	assert.ErrorIs(t, err, ErrBusinessIDRequired)

	_, err = service.Create(t.Context(), testutil.CreateTestWorkflow(testutil.WithName("human")))
	require.NoError(t, err)
	_, err = service.Create(t.Context(), testutil.CreateTestWorkflow(testutil.WithName("agent"), testutil.WithAgent("agent-1")))
	require.NoError(t, err)
	_, err = service.Create(t.Context(), testutil.CreateTestWorkflow(testutil.WithName("paused"), testutil.WithActive(false)))
	require.NoError(t, err)
	_, err = service.Create(t.Context(), testutil.CreateTestWorkflow(testutil.WithName("elsewhere"), testutil.WithBusiness("business-2")))
	require.NoError(t, err)

	all, err := service.List(t.Context(), ListWorkflowsRequest{BusinessID: "business-1"})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	agent := "agent-1"

	scoped, err := service.List(t.Context(), ListWorkflowsRequest{BusinessID: "business-1", AgentID: &agent})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "agent", scoped[0].Name)

	active := true

	activeOnly, err := service.List(t.Context(), ListWorkflowsRequest{BusinessID: "business-1", Active: &active})
	require.NoError(t, err)
	assert.Len(t, activeOnly, 2)
}

func TestWorkflow_Build(t *testing.T) {
	persistence := newFilePersistence(t)
	channels := NewChannels(persistence, discardLogger())
	service := NewWorkflow(persistence, nil, discardLogger())

	_, err := channels.Create(t.Context(), "business-1", "sales")
	require.NoError(t, err)

	created, err := service.Build(t.Context(), builder.Input{
		Name:       "Category routing",
		BusinessID: "business-1",
		Active:     true,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.NotNil(t, created.StepByID(builder.ChannelStepID("sales")))

	_, err = service.Build(t.Context(), builder.Input{BusinessID: "business-1"})
	assert.ErrorIs(t, err, ErrWorkflowNameRequired)

	_, err = service.Build(t.Context(), builder.Input{Name: "dupes", BusinessID: "business-1", Channels: []string{"vip", "vip"}})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

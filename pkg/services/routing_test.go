package services

import (
	"testing"
	"time"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouting_EffectiveWorkflow(t *testing.T) {
	f := newRegistryFixture(t)
	routing := NewRouting(f.persistence, discardLogger())

	_, err := f.connections.Register(t.Context(), testutil.CreateTestUnipileConnection(func(c *models.UnipileConnection) {
		c.ConnectionID = "acc-1"
		c.AgentID = testutil.StringPtr("agent-1")
	}))
	require.NoError(t, err)

	effective, err := routing.EffectiveWorkflow(t.Context(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, SourceNone, effective.Source)
	assert.Nil(t, effective.Workflow)

	f.createWorkflow(t, testutil.WithName("other agent"), testutil.WithAgent("agent-2"))
	f.createWorkflow(t, testutil.WithName("paused"), testutil.WithActive(false))
	first := f.createWorkflow(t, testutil.WithName("first"))
	second := f.createWorkflow(t, testutil.WithName("second"), testutil.WithAgent("agent-1"))

	effective, err = routing.EffectiveWorkflow(t.Context(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, SourceFirstActive, effective.Source)
	assert.Equal(t, first.ID, effective.Workflow.ID)
	assert.Nil(t, effective.StaleDefaultFlowID)

	_, err = f.connections.UpdateRouting(t.Context(), "acc-1", RoutingPatch{DefaultFlowID: Some(second.ID)})
	require.NoError(t, err)

	effective, err = routing.EffectiveWorkflow(t.Context(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, SourceDefaultFlow, effective.Source)
	assert.Equal(t, second.ID, effective.Workflow.ID)

	t.Run("deleted default flow falls back to first active", func(t *testing.T) {
		require.NoError(t, f.workflows.Delete(t.Context(), second.ID))

		effective, err := routing.EffectiveWorkflow(t.Context(), "acc-1")
		require.NoError(t, err)
		assert.Equal(t, SourceFirstActive, effective.Source)
		assert.Equal(t, first.ID, effective.Workflow.ID)
		require.NotNil(t, effective.StaleDefaultFlowID)
		assert.Equal(t, second.ID, *effective.StaleDefaultFlowID)
	})

	_, err = routing.EffectiveWorkflow(t.Context(), "missing")
	assert.True(t, IsNotFoundError(err))
}

func TestRouting_Decide(t *testing.T) {
	f := newRegistryFixture(t)
	routing := NewRouting(f.persistence, discardLogger())
	workflow := f.createWorkflow(t)

	_, err := f.connections.Register(t.Context(), testutil.CreateTestUnipileConnection(func(c *models.UnipileConnection) {
		c.ConnectionID = "acc-1"
		c.Mode = models.ModeHumanOnly
		c.FallbackBehavior = models.FallbackRouteToAI
	}))
	require.NoError(t, err)

	decision, err := routing.Decide(t.Context(), "acc-1", DecideRequest{StepID: "ask_topic", Input: "billing"})
	require.NoError(t, err)
	assert.True(t, decision.Matched)
	assert.Equal(t, "send_billing", decision.NextStepID)
	assert.False(t, decision.End)
	assert.Equal(t, workflow.ID, decision.WorkflowID)
	assert.Empty(t, decision.Fallback)

	decision, err = routing.Decide(t.Context(), "acc-1", DecideRequest{StepID: "tag_billing"})
	require.NoError(t, err)
	assert.True(t, decision.End)

	t.Run("no match falls back per mode", func(t *testing.T) {
		noDefault := f.createWorkflow(t, func(w *models.ConversationWorkflow) {
			w.Steps[0].DefaultNextStepID = ""
		})

		_, err := f.connections.UpdateRouting(t.Context(), "acc-1", RoutingPatch{DefaultFlowID: Some(noDefault.ID)})
		require.NoError(t, err)

		decision, err := routing.Decide(t.Context(), "acc-1", DecideRequest{StepID: "ask_topic", Input: "Billing"})
		require.NoError(t, err)
		assert.False(t, decision.Matched)
		assert.Equal(t, models.FallbackAssignToHuman, decision.Fallback)
		assert.Equal(t, SourceDefaultFlow, decision.Source)

		aiOnly := models.ModeAIOnly
		_, err = f.connections.UpdateRouting(t.Context(), "acc-1", RoutingPatch{Mode: &aiOnly})
		require.NoError(t, err)

		decision, err = routing.Decide(t.Context(), "acc-1", DecideRequest{StepID: "ask_topic", Input: "sales"})
		require.NoError(t, err)
		assert.Equal(t, models.FallbackRouteToAI, decision.Fallback)
	})

	t.Run("outside working hours", func(t *testing.T) {
		away := models.OutsideHoursSendAwayMessage

		_, err := f.connections.UpdateRouting(t.Context(), "acc-1", RoutingPatch{
			WorkingHours: Some(models.WorkingHours{
				Timezone: "UTC",
				Days:     []models.DaySchedule{{Day: "monday", Open: "09:00", Close: "17:00"}},
			}),
			OutsideHoursBehavior: &away,
		})
		require.NoError(t, err)

		sunday := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

		decision, err := routing.Decide(t.Context(), "acc-1", DecideRequest{StepID: "ask_topic", Input: "billing", At: sunday})
		require.NoError(t, err)
		assert.True(t, decision.OutsideWorkingHours)
		assert.Equal(t, models.OutsideHoursSendAwayMessage, decision.OutsideHoursBehavior)

		monday := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

		decision, err = routing.Decide(t.Context(), "acc-1", DecideRequest{StepID: "ask_topic", Input: "billing", At: monday})
		require.NoError(t, err)
		assert.False(t, decision.OutsideWorkingHours)
	})

	_, err = routing.Decide(t.Context(), "acc-1", DecideRequest{StepID: "nope"})
	assert.ErrorIs(t, err, ErrStepNotFound)
}

func TestRouting_DecideWithoutWorkflow(t *testing.T) {
	f := newRegistryFixture(t)
	routing := NewRouting(f.persistence, discardLogger())

	_, err := f.connections.Register(t.Context(), testutil.CreateTestWhatsAppConnection(func(c *models.WhatsAppBusinessConnection) {
		c.ConnectionID = "waba-1"
	}))
	require.NoError(t, err)

	_, err = routing.Decide(t.Context(), "waba-1", DecideRequest{StepID: "ask_topic"})
	assert.ErrorIs(t, err, ErrNoEffectiveWorkflow)
	assert.True(t, IsConflictError(err))
}

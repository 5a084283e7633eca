package services

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/dukex/parley/pkg/mocks"
	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/persistence"
	"github.com/dukex/parley/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type registryFixture struct {
	persistence persistence.Persistence
	workflows   *Workflow
	connections *Connections
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()

	p := newFilePersistence(t)

	return &registryFixture{
		persistence: p,
		workflows:   NewWorkflow(p, nil, discardLogger()),
		connections: NewConnections(p, nil, discardLogger()),
	}
}

func (f *registryFixture) createWorkflow(t *testing.T, overrides ...func(*models.ConversationWorkflow)) *models.ConversationWorkflow {
	t.Helper()

	created, err := f.workflows.Create(t.Context(), testutil.CreateTestWorkflow(overrides...))
	require.NoError(t, err)

	return created
}

func TestConnections_RegisterDefaults(t *testing.T) {
	f := newRegistryFixture(t)

	conn := testutil.CreateTestUnipileConnection(func(c *models.UnipileConnection) {
		c.ConnectionID = "acc-1"
		c.Status = "Connected "
		c.Routing = models.Routing{}
	})

	record, err := f.connections.Register(t.Context(), conn)
	require.NoError(t, err)

	base := record.Base()
	assert.Equal(t, models.ConnectionStatusActive, base.Status)
	assert.Equal(t, models.ModeHybrid, base.Mode)
	assert.Equal(t, models.FallbackAssignToHuman, base.FallbackBehavior)
	assert.Nil(t, base.DefaultFlowID)
	assert.False(t, base.CreatedAt.IsZero())

	stored, err := f.connections.Get(t.Context(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionKindUnipile, stored.Kind())
	assert.Equal(t, "instagram", stored.Unipile.Platform)
}

func TestConnections_RegisterKeepsStatusWhenOmitted(t *testing.T) {
	f := newRegistryFixture(t)

	_, err := f.connections.Register(t.Context(), testutil.CreateTestUnipileConnection(func(c *models.UnipileConnection) {
		c.ConnectionID = "acc-1"
		c.Status = models.ConnectionStatusError
	}))
	require.NoError(t, err)

	record, err := f.connections.Register(t.Context(), testutil.CreateTestUnipileConnection(func(c *models.UnipileConnection) {
		c.ConnectionID = "acc-1"
		c.Status = " "
		c.AccountName = "acme.renamed"
	}))
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusError, record.Base().Status)
	assert.Equal(t, "acme.renamed", record.Unipile.AccountName)

	fresh, err := f.connections.Register(t.Context(), testutil.CreateTestUnipileConnection(func(c *models.UnipileConnection) {
		c.ConnectionID = "acc-2"
		c.Status = ""
	}))
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusPending, fresh.Base().Status)
}

func TestConnections_RegisterValidation(t *testing.T) {
	f := newRegistryFixture(t)

	_, err := f.connections.Register(t.Context(), testutil.CreateTestUnipileConnection(func(c *models.UnipileConnection) {
		c.ConnectionID = " "
	}))
	assert.ErrorIs(t, err, ErrConnectionIDRequired)

	_, err = f.connections.Register(t.Context(), testutil.CreateTestWhatsAppConnection(func(c *models.WhatsAppBusinessConnection) {
		c.BusinessID = ""
	}))
	assert.ErrorIs(t, err, ErrBusinessIDRequired)

	_, err = f.connections.Register(t.Context(), testutil.CreateTestWhatsAppConnection(func(c *models.WhatsAppBusinessConnection) {
		c.PhoneNumberID = ""
	}))
	assert.True(t, IsValidationError(err))

	_, err = f.connections.Register(t.Context(), testutil.CreateTestUnipileConnection(func(c *models.UnipileConnection) {
		c.Mode = "robots_only"
	}))
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestConnections_RegisterExisting(t *testing.T) {
	f := newRegistryFixture(t)
	workflow := f.createWorkflow(t)

	conn := testutil.CreateTestWhatsAppConnection(func(c *models.WhatsAppBusinessConnection) {
		c.ConnectionID = "waba-1"
	})

	_, err := f.connections.Register(t.Context(), conn)
	require.NoError(t, err)

	mode := models.ModeAIOnly

	_, err = f.connections.UpdateRouting(t.Context(), "waba-1", RoutingPatch{Mode: &mode, DefaultFlowID: Some(workflow.ID)})
	require.NoError(t, err)

	refreshed := testutil.CreateTestWhatsAppConnection(func(c *models.WhatsAppBusinessConnection) {
		c.ConnectionID = "waba-1"
		c.Status = "DISCONNECTED"
		c.DisplayPhoneNumber = "+1 555 0199"
	})

	record, err := f.connections.Register(t.Context(), refreshed)
	require.NoError(t, err)

	base := record.Base()
	assert.Equal(t, models.ConnectionStatusInactive, base.Status)
	assert.Equal(t, models.ModeAIOnly, base.Mode)
	require.NotNil(t, base.DefaultFlowID)
	assert.Equal(t, workflow.ID, *base.DefaultFlowID)
	assert.Equal(t, "+1 555 0199", record.WhatsAppBusiness.DisplayPhoneNumber)

	_, err = f.connections.Register(t.Context(), testutil.CreateTestUnipileConnection(func(c *models.UnipileConnection) {
		c.ConnectionID = "waba-1"
	}))
	assert.ErrorIs(t, err, ErrConnectionKindMismatch)
	assert.True(t, IsConflictError(err))

	_, err = f.connections.Register(t.Context(), testutil.CreateTestWhatsAppConnection(func(c *models.WhatsAppBusinessConnection) {
		c.ConnectionID = "waba-1"
		c.BusinessID = "business-2"
	}))
	assert.ErrorIs(t, err, ErrConnectionBusinessMismatch)
}

func TestConnections_UpdateRoutingMergePatch(t *testing.T) {
	f := newRegistryFixture(t)
	workflow := f.createWorkflow(t)

	_, err := f.connections.Register(t.Context(), testutil.CreateTestUnipileConnection(func(c *models.UnipileConnection) {
		c.ConnectionID = "acc-1"
	}))
	require.NoError(t, err)

	ticket := models.FallbackCreateTicket

	_, err = f.connections.UpdateRouting(t.Context(), "acc-1", RoutingPatch{
		FallbackBehavior: &ticket,
		DefaultFlowID:    Some(workflow.ID),
	})
	require.NoError(t, err)

	var patch RoutingPatch
	require.NoError(t, json.Unmarshal([]byte(`{"mode":"ai_only"}`), &patch))

	record, err := f.connections.UpdateRouting(t.Context(), "acc-1", patch)
	require.NoError(t, err)

	routing := record.Base().Routing
	assert.Equal(t, models.ModeAIOnly, routing.Mode)
	assert.Equal(t, models.FallbackCreateTicket, routing.FallbackBehavior)
	require.NotNil(t, routing.DefaultFlowID)
	assert.Equal(t, workflow.ID, *routing.DefaultFlowID)

	stored, err := f.connections.Get(t.Context(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, routing, stored.Base().Routing)

	t.Run("explicit null clears the default flow", func(t *testing.T) {
		var clear RoutingPatch
		require.NoError(t, json.Unmarshal([]byte(`{"defaultFlowId":null}`), &clear))
		require.True(t, clear.DefaultFlowID.Set)

		record, err := f.connections.UpdateRouting(t.Context(), "acc-1", clear)
		require.NoError(t, err)
		assert.Nil(t, record.Base().DefaultFlowID)
		assert.Equal(t, models.FallbackCreateTicket, record.Base().FallbackBehavior)
	})

	t.Run("working hours", func(t *testing.T) {
		var hours RoutingPatch
		require.NoError(t, json.Unmarshal([]byte(`{
			"workingHours": {"timezone": "Europe/Lisbon", "days": [{"day": "monday", "open": "09:00", "close": "17:00"}]},
			"outsideHoursBehavior": "send_away_message"
		}`), &hours))

		record, err := f.connections.UpdateRouting(t.Context(), "acc-1", hours)
		require.NoError(t, err)
		require.NotNil(t, record.Base().WorkingHours)
		assert.Equal(t, "Europe/Lisbon", record.Base().WorkingHours.Timezone)
		assert.Equal(t, models.OutsideHoursSendAwayMessage, record.Base().OutsideHoursBehavior)

		var bad RoutingPatch
		require.NoError(t, json.Unmarshal([]byte(`{"workingHours": {"timezone": "Europe/Lisbon", "days": [{"day": "caturday", "open": "09:00", "close": "17:00"}]}}`), &bad))

		_, err = f.connections.UpdateRouting(t.Context(), "acc-1", bad)
		assert.ErrorIs(t, err, ErrInvalidWorkingHours)
	})
}

func TestConnections_UpdateRoutingValidation(t *testing.T) {
	f := newRegistryFixture(t)
	inactive := f.createWorkflow(t, testutil.WithActive(false))
	foreign := f.createWorkflow(t, testutil.WithBusiness("business-2"))
	otherAgent := f.createWorkflow(t, testutil.WithAgent("agent-2"))

	_, err := f.connections.Register(t.Context(), testutil.CreateTestUnipileConnection(func(c *models.UnipileConnection) {
		c.ConnectionID = "acc-1"
		c.AgentID = testutil.StringPtr("agent-1")
	}))
	require.NoError(t, err)

	mode := models.Mode("robots_only")
	fallback := models.FallbackBehavior("shrug")

	tests := []struct {
		name   string
		patch  RoutingPatch
		target error
	}{
		{"unknown mode", RoutingPatch{Mode: &mode}, ErrInvalidMode},
		{"unknown fallback", RoutingPatch{FallbackBehavior: &fallback}, ErrInvalidFallbackBehavior},
		{"missing workflow", RoutingPatch{DefaultFlowID: Some("nope")}, ErrDefaultFlowNotFound},
		{"blank workflow id", RoutingPatch{DefaultFlowID: Some("")}, ErrDefaultFlowNotFound},
		{"inactive workflow", RoutingPatch{DefaultFlowID: Some(inactive.ID)}, ErrDefaultFlowInactive},
		{"other business", RoutingPatch{DefaultFlowID: Some(foreign.ID)}, ErrDefaultFlowNotFound},
		{"other agent", RoutingPatch{DefaultFlowID: Some(otherAgent.ID)}, ErrDefaultFlowAgentMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.connections.UpdateRouting(t.Context(), "acc-1", tt.patch)
			assert.ErrorIs(t, err, tt.target)
			assert.True(t, IsValidationError(err))
		})
	}

	stored, err := f.connections.Get(t.Context(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultRouting(), stored.Base().Routing)

	_, err = f.connections.UpdateRouting(t.Context(), "missing", RoutingPatch{Mode: &mode})
	assert.True(t, IsNotFoundError(err))
}

func TestConnections_UpdateRoutingPersistenceFailure(t *testing.T) {
	p := mocks.NewMockPersistence()
	record, err := models.NewConnectionRecord(testutil.CreateTestUnipileConnection(func(c *models.UnipileConnection) {
		c.ConnectionID = "acc-1"
	}))
	require.NoError(t, err)

	p.GetMockConnectionRepository().On("GetByID", mock.Anything, "acc-1").Return(record, nil)
	p.GetMockConnectionRepository().On("Save", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	service := NewConnections(p, nil, discardLogger())
	mode := models.ModeHumanOnly

	_, err = service.UpdateRouting(t.Context(), "acc-1", RoutingPatch{Mode: &mode})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, IsValidationError(err))
	assert.False(t, IsNotFoundError(err))
	assert.Equal(t, models.ModeHybrid, record.Base().Mode)

	p.GetMockWorkflowRepository().AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestConnections_UpdateStatus(t *testing.T) {
	f := newRegistryFixture(t)

	_, err := f.connections.Register(t.Context(), testutil.CreateTestUnipileConnection(func(c *models.UnipileConnection) {
		c.ConnectionID = "acc-1"
	}))
	require.NoError(t, err)

	record, err := f.connections.UpdateStatus(t.Context(), "acc-1", " Failed")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusError, record.Base().Status)
	assert.True(t, record.Base().Status.CanReconnect())

	record, err = f.connections.UpdateStatus(t.Context(), "acc-1", "Syncing")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatus("syncing"), record.Base().Status)

	_, err = f.connections.UpdateStatus(t.Context(), "acc-1", "  ")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestConnections_ListAndDelete(t *testing.T) {
	f := newRegistryFixture(t)

	for _, conn := range []models.RoutableConnection{
		testutil.CreateTestUnipileConnection(func(c *models.UnipileConnection) { c.AgentID = testutil.StringPtr("agent-1") }),
		testutil.CreateTestUnipileConnection(),
		testutil.CreateTestWhatsAppConnection(),
		testutil.CreateTestWhatsAppConnection(func(c *models.WhatsAppBusinessConnection) { c.BusinessID = "business-2" }),
	} {
		_, err := f.connections.Register(t.Context(), conn)
		require.NoError(t, err)
	}

	all, err := f.connections.List(t.Context(), ListConnectionsRequest{BusinessID: "business-1"})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	whatsapp, err := f.connections.List(t.Context(), ListConnectionsRequest{BusinessID: "business-1", Kind: models.ConnectionKindWhatsAppBusiness})
	require.NoError(t, err)
	assert.Len(t, whatsapp, 1)

	scoped, err := f.connections.List(t.Context(), ListConnectionsRequest{BusinessID: "business-1", AgentID: testutil.StringPtr("agent-1")})
	require.NoError(t, err)
	assert.Len(t, scoped, 1)

	_, err = f.connections.List(t.Context(), ListConnectionsRequest{BusinessID: "business-1", Kind: "telegram"})
	assert.True(t, IsValidationError(err))

	_, err = f.connections.List(t.Context(), ListConnectionsRequest{})
	assert.ErrorIs(t, err, ErrBusinessIDRequired)

	id := whatsapp[0].Base().ConnectionID
	require.NoError(t, f.connections.Delete(t.Context(), id))
	assert.True(t, IsNotFoundError(f.connections.Delete(t.Context(), id)))
}

func TestConnections_DeletedWorkflowLeavesReference(t *testing.T) {
	f := newRegistryFixture(t)
	referenced := f.createWorkflow(t)

	_, err := f.connections.Register(t.Context(), testutil.CreateTestUnipileConnection(func(c *models.UnipileConnection) {
		c.ConnectionID = "acc-1"
	}))
	require.NoError(t, err)

	_, err = f.connections.UpdateRouting(t.Context(), "acc-1", RoutingPatch{DefaultFlowID: Some(referenced.ID)})
	require.NoError(t, err)

	require.NoError(t, f.workflows.Delete(t.Context(), referenced.ID))

	stored, err := f.connections.Get(t.Context(), "acc-1")
	require.NoError(t, err)
	require.NotNil(t, stored.Base().DefaultFlowID)
	assert.Equal(t, referenced.ID, *stored.Base().DefaultFlowID)
}

func TestRoutingPatch_JSON(t *testing.T) {
	var omitted RoutingPatch
	require.NoError(t, json.Unmarshal([]byte(`{}`), &omitted))
	assert.True(t, omitted.Empty())
	assert.False(t, omitted.DefaultFlowID.Set)

	var set RoutingPatch
	require.NoError(t, json.Unmarshal([]byte(`{"defaultFlowId":"wf-1"}`), &set))
	assert.True(t, set.DefaultFlowID.Set)
	require.NotNil(t, set.DefaultFlowID.Value)
	assert.Equal(t, "wf-1", *set.DefaultFlowID.Value)

	encoded, err := json.Marshal(Null[string]())
	require.NoError(t, err)
	assert.JSONEq(t, `null`, string(encoded))
}

func TestRoutingPatch_EncodesOnlyPresentFields(t *testing.T) {
	aiOnly := models.ModeAIOnly

	tests := []struct {
		name     string
		patch    RoutingPatch
		expected string
	}{
		{"mode only", RoutingPatch{Mode: &aiOnly}, `{"mode":"ai_only"}`},
		{"explicit null", RoutingPatch{DefaultFlowID: Null[string]()}, `{"defaultFlowId":null}`},
		{"value", RoutingPatch{DefaultFlowID: Some("wf-1")}, `{"defaultFlowId":"wf-1"}`},
		{"empty", RoutingPatch{}, `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := json.Marshal(tt.patch)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(encoded))

			var decoded RoutingPatch
			require.NoError(t, json.Unmarshal(encoded, &decoded))
			assert.Equal(t, tt.patch.DefaultFlowID.Set, decoded.DefaultFlowID.Set)
			assert.False(t, decoded.WorkingHours.Set)
		})
	}
}

package events

import (
	"encoding/json"
	"testing"

	"github.com/dukex/parley/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvents_GetType(t *testing.T) {
	assert.Equal(t, WorkflowCreatedEvent, WorkflowCreated{}.GetType())
	assert.Equal(t, WorkflowUpdatedEvent, WorkflowUpdated{}.GetType())
	assert.Equal(t, WorkflowDeletedEvent, WorkflowDeleted{}.GetType())
	assert.Equal(t, ConnectionRegisteredEvent, ConnectionRegistered{}.GetType())
	assert.Equal(t, ConnectionRoutingUpdatedEvent, ConnectionRoutingUpdated{}.GetType())
	assert.Equal(t, ConnectionStatusChangedEvent, ConnectionStatusChanged{}.GetType())
	assert.Equal(t, ConnectionDeletedEvent, ConnectionDeleted{}.GetType())
	assert.Equal(t, DefaultFlowStaleEvent, DefaultFlowStale{}.GetType())
}

func TestConnectionRoutingUpdated_JSON(t *testing.T) {
	flowID := "wf-1"
	original := ConnectionRoutingUpdated{
		BaseEvent:    NewBaseEvent(ConnectionRoutingUpdatedEvent, "business-1"),
		ConnectionID: "conn-1",
		Routing: models.Routing{
			Mode:             models.ModeAIOnly,
			FallbackBehavior: models.FallbackRouteToAI,
			DefaultFlowID:    &flowID,
		},
		ChangedFields: []string{"mode"},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"connection.routing.updated"`)
	assert.Contains(t, string(data), `"business_id":"business-1"`)
	assert.Contains(t, string(data), `"defaultFlowId":"wf-1"`)

	var decoded ConnectionRoutingUpdated
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original.Routing, decoded.Routing)
	assert.Equal(t, "business-1", decoded.GetBusinessID())
	assert.NotEmpty(t, decoded.ID)
	assert.False(t, decoded.Timestamp.IsZero())
}

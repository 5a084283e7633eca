// Package events defines the domain events published when workflows and channel
// connections change.
package events

import (
	"time"

	"github.com/dukex/parley/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic is the single topic all domain events are published to.
const Topic = "parley.events"

const (
	EventMetadataKey      = "key"
	EventTypeMetadataKey  = "event_type"
	BusinessIDMetadataKey = "business_id"
)

const (
	WorkflowCreatedEvent EventType = "workflow.created"
	WorkflowUpdatedEvent EventType = "workflow.updated"
	WorkflowDeletedEvent EventType = "workflow.deleted"

	ConnectionRegisteredEvent     EventType = "connection.registered"
	ConnectionRoutingUpdatedEvent EventType = "connection.routing.updated"
	ConnectionStatusChangedEvent  EventType = "connection.status.changed"
	ConnectionDeletedEvent        EventType = "connection.deleted"
	DefaultFlowStaleEvent         EventType = "connection.default_flow.stale"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	BusinessID string    `json:"business_id"`
}

func (b BaseEvent) GetBusinessID() string {
	return b.BusinessID
}

func NewBaseEvent(eventType EventType, businessID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		BusinessID: businessID,
	}
}

type WorkflowCreated struct {
	BaseEvent

	WorkflowID string         `json:"workflow_id"`
	Name       string         `json:"name"`
	AgentID    *string        `json:"agent_id,omitempty"`
	Trigger    models.Trigger `json:"trigger"`
	Active     bool           `json:"active"`
}

func (w WorkflowCreated) GetType() EventType {
	return WorkflowCreatedEvent
}

type WorkflowUpdated struct {
	BaseEvent

	WorkflowID string `json:"workflow_id"`
	Name       string `json:"name"`
	Active     bool   `json:"active"`
	// Deactivated is set when the update switched the workflow from active to inactive.
	Deactivated bool `json:"deactivated,omitempty"`
}

func (w WorkflowUpdated) GetType() EventType {
	return WorkflowUpdatedEvent
}

type WorkflowDeleted struct {
	BaseEvent

	WorkflowID string `json:"workflow_id"`
}

func (w WorkflowDeleted) GetType() EventType {
	return WorkflowDeletedEvent
}

type ConnectionRegistered struct {
	BaseEvent

	ConnectionID string                  `json:"connection_id"`
	Kind         models.ConnectionKind   `json:"kind"`
	Status       models.ConnectionStatus `json:"status"`
}

func (c ConnectionRegistered) GetType() EventType {
	return ConnectionRegisteredEvent
}

type ConnectionRoutingUpdated struct {
	BaseEvent

	ConnectionID  string         `json:"connection_id"`
	Routing       models.Routing `json:"routing"`
	ChangedFields []string       `json:"changed_fields"`
}

func (c ConnectionRoutingUpdated) GetType() EventType {
	return ConnectionRoutingUpdatedEvent
}

type ConnectionStatusChanged struct {
	BaseEvent

	ConnectionID string                  `json:"connection_id"`
	Previous     models.ConnectionStatus `json:"previous"`
	Status       models.ConnectionStatus `json:"status"`
	CanReconnect bool                    `json:"can_reconnect"`
}

func (c ConnectionStatusChanged) GetType() EventType {
	return ConnectionStatusChangedEvent
}

type ConnectionDeleted struct {
	BaseEvent

	ConnectionID string `json:"connection_id"`
}

func (c ConnectionDeleted) GetType() EventType {
	return ConnectionDeletedEvent
}

// DefaultFlowStale reports a connection whose defaultFlowId no longer names an active
// workflow of its business.
type DefaultFlowStale struct {
	BaseEvent

	ConnectionID  string `json:"connection_id"`
	DefaultFlowID string `json:"default_flow_id"`
	Reason        string `json:"reason"`
}

func (d DefaultFlowStale) GetType() EventType {
	return DefaultFlowStaleEvent
}

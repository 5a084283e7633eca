// Package persistence provides the data storage abstraction layer for workflows, channel
// connections and business channels.
package persistence

import (
	"context"

	"github.com/dukex/parley/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ConnectionRepository() ConnectionRepository
	ChannelRepository() ChannelRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListWorkflowsOptions filters workflow listings. Results are always ordered by creation
// time, oldest first.
type ListWorkflowsOptions struct {
	BusinessID string
	AgentID    *string
	Active     *bool

	// IncludeUnbound widens an AgentID filter to workflows not bound to any agent.
	IncludeUnbound bool
}

// Matches reports whether workflow passes the filter.
func (o ListWorkflowsOptions) Matches(workflow *models.ConversationWorkflow) bool {
	if o.BusinessID != "" && workflow.BusinessID != o.BusinessID {
		return false
	}

	if o.Active != nil && workflow.Active != *o.Active {
		return false
	}

	if o.AgentID != nil {
		switch {
		case workflow.AgentID != nil && *workflow.AgentID == *o.AgentID:
		case o.IncludeUnbound && workflow.HumanOnly():
		default:
			return false
		}
	}

	return true
}

// WorkflowRepository stores conversation workflows. GetByID returns nil, nil when the
// workflow does not exist.
type WorkflowRepository interface {
	List(ctx context.Context, opts ListWorkflowsOptions) ([]*models.ConversationWorkflow, error)
	GetByID(ctx context.Context, id string) (*models.ConversationWorkflow, error)
	Save(ctx context.Context, workflow *models.ConversationWorkflow) error
	Delete(ctx context.Context, id string) error
}

// ListConnectionsOptions filters connection listings.
type ListConnectionsOptions struct {
	BusinessID string
	Kind       models.ConnectionKind
	AgentID    *string
}

// Matches reports whether record passes the filter.
func (o ListConnectionsOptions) Matches(record *models.ConnectionRecord) bool {
	base := record.Base()
	if base == nil {
		return false
	}

	if o.BusinessID != "" && base.BusinessID != o.BusinessID {
		return false
	}

	if o.Kind != "" && record.Kind() != o.Kind {
		return false
	}

	if o.AgentID != nil && (base.AgentID == nil || *base.AgentID != *o.AgentID) {
		return false
	}

	return true
}

// ConnectionRepository stores channel connections keyed by connection id. GetByID returns
// nil, nil when the connection does not exist. Save replaces the whole record in one write.
type ConnectionRepository interface {
	List(ctx context.Context, opts ListConnectionsOptions) ([]*models.ConnectionRecord, error)
	GetByID(ctx context.Context, connectionID string) (*models.ConnectionRecord, error)
	Save(ctx context.Context, record *models.ConnectionRecord) error
	Delete(ctx context.Context, connectionID string) error
}

// ChannelRepository stores business channel names. Save returns ErrChannelAlreadyExists
// when the business already has a channel with the same name.
type ChannelRepository interface {
	List(ctx context.Context, businessID string) ([]*models.BusinessChannel, error)
	GetByID(ctx context.Context, id string) (*models.BusinessChannel, error)
	Save(ctx context.Context, channel *models.BusinessChannel) error
	Delete(ctx context.Context, id string) error
}

package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/parley/pkg/eventbus"
	"github.com/dukex/parley/pkg/events"
	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/otelhelper"
	"github.com/dukex/parley/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
)

// Connections is the channel connection registry.
type Connections struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	validate    *validator.Validate
}

// NewConnections creates the connection registry service. publisher may be nil.
func NewConnections(persistence persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Connections {
	return &Connections{
		persistence: persistence,
		publisher:   publisher,
		logger:      logger.With("module", "connection_service"),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ListConnectionsRequest contains options for listing connections.
type ListConnectionsRequest struct {
	BusinessID string
	Kind       models.ConnectionKind
	// AgentID restricts the listing to connections bound to that agent.
	AgentID *string
}

func (c *Connections) List(ctx context.Context, req ListConnectionsRequest) ([]*models.ConnectionRecord, error) {
	businessID := strings.TrimSpace(req.BusinessID)
	if businessID == "" {
		return nil, ErrBusinessIDRequired
	}

	if req.Kind != "" && req.Kind != models.ConnectionKindUnipile && req.Kind != models.ConnectionKindWhatsAppBusiness {
		return nil, NewValidationError("List", "INVALID_KIND",
			fmt.Sprintf("invalid kind '%s', allowed: %s, %s", req.Kind, models.ConnectionKindUnipile, models.ConnectionKindWhatsAppBusiness),
			ErrUnknownConnectionKind)
	}

	records, err := c.persistence.ConnectionRepository().List(ctx, persistence.ListConnectionsOptions{
		BusinessID: businessID,
		Kind:       req.Kind,
		AgentID:    req.AgentID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	return records, nil
}

func (c *Connections) Get(ctx context.Context, connectionID string) (*models.ConnectionRecord, error) {
	record, err := c.persistence.ConnectionRepository().GetByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	if record == nil {
		return nil, persistence.NewConnectionError("Get", connectionID, ErrConnectionNotFound)
	}

	return record, nil
}

// Register stores a connection reported by a platform, or refreshes the platform fields of
// an existing one. Routing of an existing connection is kept; new connections start from
// models.DefaultRouting overlaid with whatever routing fields were supplied.
func (c *Connections) Register(ctx context.Context, conn models.RoutableConnection) (*models.ConnectionRecord, error) {
	ctx, span := otelhelper.StartSpan(ctx, "connection.register")
	defer span.End()

	if conn == nil {
		return nil, ErrInvalidRequest
	}

	record, err := models.NewConnectionRecord(conn)
	if err != nil {
		return nil, NewValidationError("Register", "INVALID_KIND", err.Error(), ErrUnknownConnectionKind)
	}

	base := record.Base()
	base.ConnectionID = strings.TrimSpace(base.ConnectionID)
	base.BusinessID = strings.TrimSpace(base.BusinessID)

	switch {
	case base.ConnectionID == "":
		return nil, ErrConnectionIDRequired
	case base.BusinessID == "":
		return nil, ErrBusinessIDRequired
	}

	span.SetAttributes(
		attribute.String(otelhelper.ConnectionIDKey, base.ConnectionID),
		attribute.String(otelhelper.ConnectionKind, string(record.Kind())),
	)

	err = c.validate.Struct(conn)
	if err != nil {
		return nil, NewValidationError("Register", "INVALID_CONNECTION", err.Error(), ErrInvalidRequest)
	}

	base.Status = models.NormalizeStatus(string(base.Status))

	existing, err := c.persistence.ConnectionRepository().GetByID(ctx, base.ConnectionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	now := time.Now().UTC()

	if existing != nil {
		if existing.Kind() != record.Kind() {
			return nil, &ServiceError{Op: "Register", Code: "KIND_MISMATCH",
				Message: fmt.Sprintf("connection %s is registered as %s", base.ConnectionID, existing.Kind()),
				Err:     ErrConnectionKindMismatch}
		}

		if existing.Base().BusinessID != base.BusinessID {
			return nil, &ServiceError{Op: "Register", Code: "BUSINESS_MISMATCH",
				Message: ErrConnectionBusinessMismatch.Error(), Err: ErrConnectionBusinessMismatch}
		}

		if base.Status == "" {
			base.Status = existing.Base().Status
		}

		base.Routing = existing.Base().Routing
		base.CreatedAt = existing.Base().CreatedAt
	} else {
		routing := overlayRouting(models.DefaultRouting(), base.Routing)

		err = c.validateRouting(ctx, base, routing)
		if err != nil {
			return nil, err
		}

		base.Routing = routing
		base.CreatedAt = now
	}

	if base.Status == "" {
		base.Status = models.ConnectionStatusPending
	}

	base.UpdatedAt = now

	err = c.persistence.ConnectionRepository().Save(ctx, record)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to register connection: %w", err)
	}

	c.logger.InfoContext(ctx, "Connection registered",
		"connection_id", base.ConnectionID,
		"business_id", base.BusinessID,
		"kind", record.Kind(),
		"status", base.Status,
		"created", existing == nil)

	publish(ctx, c.logger, c.publisher, base.ConnectionID, events.ConnectionRegistered{
		BaseEvent:    events.NewBaseEvent(events.ConnectionRegisteredEvent, base.BusinessID),
		ConnectionID: base.ConnectionID,
		Kind:         record.Kind(),
		Status:       base.Status,
	})

	return record, nil
}

// RoutingPatch is a merge-patch of a connection's routing. Omitted fields are left unchanged;
// DefaultFlowID and WorkingHours can be cleared with an explicit null. Encoding keeps that
// distinction: unset fields are omitted and Null encodes as null.
type RoutingPatch struct {
	Mode                 *models.Mode                  `json:"mode,omitempty"`
	FallbackBehavior     *models.FallbackBehavior      `json:"fallbackBehavior,omitempty"`
	DefaultFlowID        Optional[string]              `json:"defaultFlowId,omitzero"`
	WorkingHours         Optional[models.WorkingHours] `json:"workingHours,omitzero"`
	OutsideHoursBehavior *models.OutsideHoursBehavior  `json:"outsideHoursBehavior,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p RoutingPatch) Empty() bool {
	return p.Mode == nil && p.FallbackBehavior == nil && !p.DefaultFlowID.Set &&
		!p.WorkingHours.Set && p.OutsideHoursBehavior == nil
}

// UpdateRouting merges patch into the stored routing of a connection and persists the
// result in a single write. Only the patched fields are validated.
func (c *Connections) UpdateRouting(ctx context.Context, connectionID string, patch RoutingPatch) (*models.ConnectionRecord, error) {
	ctx, span := otelhelper.StartSpan(ctx, "connection.update_routing", attribute.String(otelhelper.ConnectionIDKey, connectionID))
	defer span.End()

	record, err := c.Get(ctx, connectionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if patch.Empty() {
		return record, nil
	}

	base := record.Base()
	routing := base.Routing
	changed := make([]string, 0, 5)

	if patch.Mode != nil {
		if !patch.Mode.Valid() {
			return nil, NewValidationError("UpdateRouting", "INVALID_MODE",
				fmt.Sprintf("invalid mode '%s', allowed: %s, %s, %s", *patch.Mode, models.ModeHumanOnly, models.ModeHybrid, models.ModeAIOnly),
				ErrInvalidMode)
		}

		routing.Mode = *patch.Mode
		changed = append(changed, "mode")
	}

	if patch.FallbackBehavior != nil {
		if !patch.FallbackBehavior.Valid() {
			return nil, NewValidationError("UpdateRouting", "INVALID_FALLBACK_BEHAVIOR",
				fmt.Sprintf("invalid fallback behavior '%s', allowed: %s, %s, %s", *patch.FallbackBehavior,
					models.FallbackRouteToAI, models.FallbackAssignToHuman, models.FallbackCreateTicket),
				ErrInvalidFallbackBehavior)
		}

		routing.FallbackBehavior = *patch.FallbackBehavior
		changed = append(changed, "fallbackBehavior")
	}

	if patch.DefaultFlowID.Set {
		if patch.DefaultFlowID.Value != nil {
			flowID := strings.TrimSpace(*patch.DefaultFlowID.Value)

			err = c.checkDefaultFlow(ctx, base, flowID)
			if err != nil {
				otelhelper.SetError(span, err)

				return nil, err
			}

			routing.DefaultFlowID = &flowID
		} else {
			routing.DefaultFlowID = nil
		}

		changed = append(changed, "defaultFlowId")
	}

	if patch.WorkingHours.Set {
		if patch.WorkingHours.Value != nil {
			err = c.validateWorkingHours(patch.WorkingHours.Value)
			if err != nil {
				return nil, err
			}
		}

		routing.WorkingHours = patch.WorkingHours.Value
		changed = append(changed, "workingHours")
	}

	if patch.OutsideHoursBehavior != nil {
		if !patch.OutsideHoursBehavior.Valid() {
			return nil, NewValidationError("UpdateRouting", "INVALID_OUTSIDE_HOURS_BEHAVIOR",
				fmt.Sprintf("invalid outside hours behavior '%s'", *patch.OutsideHoursBehavior),
				ErrInvalidOutsideHours)
		}

		routing.OutsideHoursBehavior = *patch.OutsideHoursBehavior
		changed = append(changed, "outsideHoursBehavior")
	}

	previous := base.Routing
	previousUpdatedAt := base.UpdatedAt

	base.Routing = routing
	base.UpdatedAt = time.Now().UTC()

	err = c.persistence.ConnectionRepository().Save(ctx, record)
	if err != nil {
		base.Routing = previous
		base.UpdatedAt = previousUpdatedAt

		otelhelper.SetError(span, err)

		return nil, &ServiceError{Op: "UpdateRouting", Code: "SAVE_FAILED", Message: "failed to save routing: " + err.Error(), Err: err}
	}

	span.SetAttributes(attribute.String(otelhelper.RoutingModeKey, string(routing.Mode)))

	c.logger.InfoContext(ctx, "Connection routing updated",
		"connection_id", connectionID,
		"business_id", base.BusinessID,
		"changed", changed)

	publish(ctx, c.logger, c.publisher, connectionID, events.ConnectionRoutingUpdated{
		BaseEvent:     events.NewBaseEvent(events.ConnectionRoutingUpdatedEvent, base.BusinessID),
		ConnectionID:  connectionID,
		Routing:       routing,
		ChangedFields: changed,
	})

	return record, nil
}

// UpdateStatus stores a platform-reported status after normalization.
func (c *Connections) UpdateStatus(ctx context.Context, connectionID, status string) (*models.ConnectionRecord, error) {
	normalized := models.NormalizeStatus(status)
	if normalized == "" {
		return nil, NewValidationError("UpdateStatus", "INVALID_STATUS", "status cannot be empty", ErrInvalidStatus)
	}

	record, err := c.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	base := record.Base()
	previous := base.Status

	if previous == normalized {
		return record, nil
	}

	base.Status = normalized
	base.UpdatedAt = time.Now().UTC()

	err = c.persistence.ConnectionRepository().Save(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to update connection status: %w", err)
	}

	c.logger.InfoContext(ctx, "Connection status changed",
		"connection_id", connectionID,
		"previous", previous,
		"status", normalized)

	publish(ctx, c.logger, c.publisher, connectionID, events.ConnectionStatusChanged{
		BaseEvent:    events.NewBaseEvent(events.ConnectionStatusChangedEvent, base.BusinessID),
		ConnectionID: connectionID,
		Previous:     previous,
		Status:       normalized,
		CanReconnect: normalized.CanReconnect(),
	})

	return record, nil
}

func (c *Connections) Delete(ctx context.Context, connectionID string) error {
	record, err := c.Get(ctx, connectionID)
	if err != nil {
		return err
	}

	err = c.persistence.ConnectionRepository().Delete(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}

	c.logger.InfoContext(ctx, "Connection deleted", "connection_id", connectionID)

	publish(ctx, c.logger, c.publisher, connectionID, events.ConnectionDeleted{
		BaseEvent:    events.NewBaseEvent(events.ConnectionDeletedEvent, record.Base().BusinessID),
		ConnectionID: connectionID,
	})

	return nil
}

func overlayRouting(routing, supplied models.Routing) models.Routing {
	if supplied.Mode != "" {
		routing.Mode = supplied.Mode
	}

	if supplied.FallbackBehavior != "" {
		routing.FallbackBehavior = supplied.FallbackBehavior
	}

	if supplied.DefaultFlowID != nil {
		routing.DefaultFlowID = supplied.DefaultFlowID
	}

	if supplied.WorkingHours != nil {
		routing.WorkingHours = supplied.WorkingHours
	}

	if supplied.OutsideHoursBehavior != "" {
		routing.OutsideHoursBehavior = supplied.OutsideHoursBehavior
	}

	return routing
}

func (c *Connections) validateRouting(ctx context.Context, base *models.ConnectionBase, routing models.Routing) error {
	switch {
	case !routing.Mode.Valid():
		return NewValidationError("validateRouting", "INVALID_MODE", fmt.Sprintf("invalid mode '%s'", routing.Mode), ErrInvalidMode)
	case !routing.FallbackBehavior.Valid():
		return NewValidationError("validateRouting", "INVALID_FALLBACK_BEHAVIOR",
			fmt.Sprintf("invalid fallback behavior '%s'", routing.FallbackBehavior), ErrInvalidFallbackBehavior)
	case routing.OutsideHoursBehavior != "" && !routing.OutsideHoursBehavior.Valid():
		return NewValidationError("validateRouting", "INVALID_OUTSIDE_HOURS_BEHAVIOR",
			fmt.Sprintf("invalid outside hours behavior '%s'", routing.OutsideHoursBehavior), ErrInvalidOutsideHours)
	}

	if routing.WorkingHours != nil {
		err := c.validateWorkingHours(routing.WorkingHours)
		if err != nil {
			return err
		}
	}

	if routing.DefaultFlowID != nil {
		return c.checkDefaultFlow(ctx, base, *routing.DefaultFlowID)
	}

	return nil
}

func (c *Connections) validateWorkingHours(hours *models.WorkingHours) error {
	err := c.validate.Struct(hours)
	if err != nil {
		return NewValidationError("validateWorkingHours", "INVALID_WORKING_HOURS", err.Error(), ErrInvalidWorkingHours)
	}

	return nil
}

// checkDefaultFlow requires flowID to name an active workflow of the connection's business
// that the connection's agent may run.
func (c *Connections) checkDefaultFlow(ctx context.Context, base *models.ConnectionBase, flowID string) error {
	if flowID == "" {
		return NewValidationError("checkDefaultFlow", "DEFAULT_FLOW_NOT_FOUND", "defaultFlowId cannot be empty, use null to clear it", ErrDefaultFlowNotFound)
	}

	workflow, err := c.persistence.WorkflowRepository().GetByID(ctx, flowID)
	if err != nil {
		return fmt.Errorf("failed to load default flow: %w", err)
	}

	if workflow == nil || workflow.BusinessID != base.BusinessID {
		return NewValidationError("checkDefaultFlow", "DEFAULT_FLOW_NOT_FOUND",
			fmt.Sprintf("workflow %s does not exist in business %s", flowID, base.BusinessID), ErrDefaultFlowNotFound)
	}

	if !workflow.Active {
		return NewValidationError("checkDefaultFlow", "DEFAULT_FLOW_INACTIVE",
			fmt.Sprintf("workflow %s is not active", flowID), ErrDefaultFlowInactive)
	}

	if !scopedTo(workflow, base.AgentID) {
		return NewValidationError("checkDefaultFlow", "DEFAULT_FLOW_AGENT_MISMATCH",
			fmt.Sprintf("workflow %s is bound to another agent", flowID), ErrDefaultFlowAgentMismatch)
	}

	return nil
}

// scopedTo reports whether a connection bound to agentID may run workflow. Unbound
// connections may run any workflow of their business.
func scopedTo(workflow *models.ConversationWorkflow, agentID *string) bool {
	if agentID == nil || workflow.AgentID == nil {
		return true
	}

	return *workflow.AgentID == *agentID
}

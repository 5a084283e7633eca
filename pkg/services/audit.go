package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/parley/pkg/eventbus"
	"github.com/dukex/parley/pkg/events"
	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/persistence"
	"github.com/robfig/cron/v3"
)

const DefaultAuditSchedule = "@every 15m"

// Reasons a default flow reference is stale.
const (
	StaleReasonDeleted         = "deleted"
	StaleReasonForeignBusiness = "foreign_business"
	StaleReasonInactive        = "inactive"
	StaleReasonAgentMismatch   = "agent_mismatch"
)

var ErrAuditorRunning = errors.New("auditor is already running")

// StaleReference is a connection whose defaultFlowId no longer names a runnable workflow.
type StaleReference struct {
	ConnectionID  string `json:"connectionId"`
	BusinessID    string `json:"businessId"`
	DefaultFlowID string `json:"defaultFlowId"`
	Reason        string `json:"reason"`
}

// Auditor reports stale defaultFlowId references. It never rewrites them; routing falls back
// to the first active workflow at resolution time.
type Auditor struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

func NewAuditor(persistence persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Auditor {
	return &Auditor{
		persistence: persistence,
		publisher:   publisher,
		logger:      logger.With("module", "stale_flow_auditor"),
	}
}

// Scan checks every connection with a defaultFlowId.
func (a *Auditor) Scan(ctx context.Context) ([]StaleReference, error) {
	records, err := a.persistence.ConnectionRepository().List(ctx, persistence.ListConnectionsOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	stale, err := a.check(ctx, records, "")
	if err != nil {
		return nil, err
	}

	a.logger.InfoContext(ctx, "Default flow audit finished", "connections", len(records), "stale", len(stale))

	return stale, nil
}

// CheckWorkflow checks the connections of a business that reference workflowID.
func (a *Auditor) CheckWorkflow(ctx context.Context, businessID, workflowID string) ([]StaleReference, error) {
	records, err := a.persistence.ConnectionRepository().List(ctx, persistence.ListConnectionsOptions{BusinessID: businessID})
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	return a.check(ctx, records, workflowID)
}

func (a *Auditor) check(ctx context.Context, records []*models.ConnectionRecord, onlyFlowID string) ([]StaleReference, error) {
	stale := make([]StaleReference, 0)
	workflows := make(map[string]*models.ConversationWorkflow)

	for _, record := range records {
		base := record.Base()
		if base == nil || base.DefaultFlowID == nil {
			continue
		}

		flowID := *base.DefaultFlowID
		if onlyFlowID != "" && flowID != onlyFlowID {
			continue
		}

		workflow, cached := workflows[flowID]
		if !cached {
			var err error

			workflow, err = a.persistence.WorkflowRepository().GetByID(ctx, flowID)
			if err != nil {
				return nil, fmt.Errorf("failed to load workflow %s: %w", flowID, err)
			}

			workflows[flowID] = workflow
		}

		reason := staleReason(workflow, base)
		if reason == "" {
			continue
		}

		reference := StaleReference{
			ConnectionID:  base.ConnectionID,
			BusinessID:    base.BusinessID,
			DefaultFlowID: flowID,
			Reason:        reason,
		}
		stale = append(stale, reference)

		a.report(ctx, reference)
	}

	return stale, nil
}

func (a *Auditor) report(ctx context.Context, reference StaleReference) {
	a.logger.WarnContext(ctx, "Connection references a stale default flow",
		"connection_id", reference.ConnectionID,
		"business_id", reference.BusinessID,
		"default_flow_id", reference.DefaultFlowID,
		"reason", reference.Reason)

	publish(ctx, a.logger, a.publisher, reference.ConnectionID, events.DefaultFlowStale{
		BaseEvent:     events.NewBaseEvent(events.DefaultFlowStaleEvent, reference.BusinessID),
		ConnectionID:  reference.ConnectionID,
		DefaultFlowID: reference.DefaultFlowID,
		Reason:        reference.Reason,
	})
}

func staleReason(workflow *models.ConversationWorkflow, base *models.ConnectionBase) string {
	switch {
	case workflow == nil:
		return StaleReasonDeleted
	case workflow.BusinessID != base.BusinessID:
		return StaleReasonForeignBusiness
	case !workflow.Active || len(workflow.Steps) == 0:
		return StaleReasonInactive
	case !scopedTo(workflow, base.AgentID):
		return StaleReasonAgentMismatch
	default:
		return ""
	}
}

// Start runs Scan on schedule until Stop is called or ctx is cancelled.
func (a *Auditor) Start(ctx context.Context, schedule string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cron != nil {
		return ErrAuditorRunning
	}

	if schedule == "" {
		schedule = DefaultAuditSchedule
	}

	scheduler := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	entryID, err := scheduler.AddFunc(schedule, func() {
		if _, err := a.Scan(ctx); err != nil {
			a.logger.ErrorContext(ctx, "Default flow audit failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid audit schedule '%s': %w", schedule, err)
	}

	scheduler.Start()
	a.cron = scheduler

	go func() {
		<-ctx.Done()
		a.Stop()
	}()

	a.logger.Info("Default flow auditor started", "schedule", schedule, "entry_id", entryID)

	return nil
}

// Stop halts the schedule and waits for a running scan to finish.
func (a *Auditor) Stop() {
	a.mu.Lock()
	scheduler := a.cron
	a.cron = nil
	a.mu.Unlock()

	if scheduler == nil {
		return
	}

	<-scheduler.Stop().Done()

	a.logger.Info("Default flow auditor stopped")
}

// RegisterHandlers checks references as soon as a workflow is deleted or deactivated.
// Handlers always acknowledge; failures are logged.
func (a *Auditor) RegisterHandlers(subscriber eventbus.EventSubscriber) error {
	err := subscriber.Handle(events.WorkflowDeletedEvent, func(ctx context.Context, event any) error {
		deleted, ok := event.(*events.WorkflowDeleted)
		if !ok {
			return nil
		}

		a.checkAfterEvent(ctx, deleted.BusinessID, deleted.WorkflowID)

		return nil
	})
	if err != nil {
		return err
	}

	return subscriber.Handle(events.WorkflowUpdatedEvent, func(ctx context.Context, event any) error {
		updated, ok := event.(*events.WorkflowUpdated)
		if !ok || !updated.Deactivated {
			return nil
		}

		a.checkAfterEvent(ctx, updated.BusinessID, updated.WorkflowID)

		return nil
	})
}

func (a *Auditor) checkAfterEvent(ctx context.Context, businessID, workflowID string) {
	_, err := a.CheckWorkflow(ctx, businessID, workflowID)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to check references of workflow",
			"workflow_id", workflowID,
			"business_id", businessID,
			"error", err)
	}
}

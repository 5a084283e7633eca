package client

import (
	"context"
	"slices"
	"sync"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/services"
)

// WorkflowStore caches the workflow list of one business and re-fetches it after every
// write. Each fetch takes a sequence number when it starts; a response is applied only when
// no later fetch has been applied already, so a slow stale response never overwrites a
// newer one.
type WorkflowStore struct {
	client     *Client
	businessID string

	mu        sync.Mutex
	issued    uint64
	applied   uint64
	workflows []*models.ConversationWorkflow
	lastErr   error
}

func NewWorkflowStore(client *Client, businessID string) *WorkflowStore {
	return &WorkflowStore{
		client:     client,
		businessID: businessID,
		workflows:  []*models.ConversationWorkflow{},
	}
}

// Workflows returns a snapshot of the cached list.
func (s *WorkflowStore) Workflows() []*models.ConversationWorkflow {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.workflows)
}

// Err returns the error of the last applied fetch.
func (s *WorkflowStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastErr
}

// Refresh fetches the list. It reports whether the response was applied.
func (s *WorkflowStore) Refresh(ctx context.Context) (bool, error) {
	seq := s.nextSequence()

	workflows, err := s.client.ListWorkflows(ctx, ListWorkflowsParams{BusinessID: s.businessID})

	return s.apply(seq, workflows, err), err
}

func (s *WorkflowStore) nextSequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.issued++

	return s.issued
}

func (s *WorkflowStore) apply(seq uint64, workflows []*models.ConversationWorkflow, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq <= s.applied {
		return false
	}

	s.applied = seq
	s.lastErr = err

	if err == nil {
		if workflows == nil {
			workflows = []*models.ConversationWorkflow{}
		}

		s.workflows = workflows
	}

	return true
}

func (s *WorkflowStore) Create(ctx context.Context, workflow *models.ConversationWorkflow) (*models.ConversationWorkflow, error) {
	if workflow != nil && workflow.BusinessID == "" {
		workflow.BusinessID = s.businessID
	}

	created, err := s.client.CreateWorkflow(ctx, workflow)
	if err != nil {
		return nil, err
	}

	_, _ = s.Refresh(ctx)

	return created, nil
}

func (s *WorkflowStore) Update(ctx context.Context, id string, req services.UpdateWorkflowRequest) (*models.ConversationWorkflow, error) {
	updated, err := s.client.UpdateWorkflow(ctx, id, req)
	if err != nil {
		return nil, err
	}

	_, _ = s.Refresh(ctx)

	return updated, nil
}

func (s *WorkflowStore) Delete(ctx context.Context, id string) error {
	if err := s.client.DeleteWorkflow(ctx, id); err != nil {
		return err
	}

	_, _ = s.Refresh(ctx)

	return nil
}

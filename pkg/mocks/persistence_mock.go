// Package mocks provides testify mocks for the persistence and event bus interfaces.
package mocks

import (
	"context"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) ([]*models.ConversationWorkflow, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ConversationWorkflow), args.Error(1)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.ConversationWorkflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ConversationWorkflow), args.Error(1)
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.ConversationWorkflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockConnectionRepository is a mock implementation of persistence.ConnectionRepository interface.
type MockConnectionRepository struct {
	mock.Mock
}

func (m *MockConnectionRepository) List(ctx context.Context, opts persistence.ListConnectionsOptions) ([]*models.ConnectionRecord, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ConnectionRecord), args.Error(1)
}

func (m *MockConnectionRepository) GetByID(ctx context.Context, connectionID string) (*models.ConnectionRecord, error) {
	args := m.Called(ctx, connectionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ConnectionRecord), args.Error(1)
}

func (m *MockConnectionRepository) Save(ctx context.Context, record *models.ConnectionRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockConnectionRepository) Delete(ctx context.Context, connectionID string) error {
	args := m.Called(ctx, connectionID)

	return args.Error(0)
}

// MockChannelRepository is a mock implementation of persistence.ChannelRepository interface.
type MockChannelRepository struct {
	mock.Mock
}

func (m *MockChannelRepository) List(ctx context.Context, businessID string) ([]*models.BusinessChannel, error) {
	args := m.Called(ctx, businessID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.BusinessChannel), args.Error(1)
}

func (m *MockChannelRepository) GetByID(ctx context.Context, id string) (*models.BusinessChannel, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.BusinessChannel), args.Error(1)
}

func (m *MockChannelRepository) Save(ctx context.Context, channel *models.BusinessChannel) error {
	args := m.Called(ctx, channel)

	return args.Error(0)
}

func (m *MockChannelRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	workflowRepo   *MockWorkflowRepository
	connectionRepo *MockConnectionRepository
	channelRepo    *MockChannelRepository
}

// NewMockPersistence creates a new MockPersistence with all mock repositories.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		workflowRepo:   &MockWorkflowRepository{},
		connectionRepo: &MockConnectionRepository{},
		channelRepo:    &MockChannelRepository{},
	}
}

// GetMockWorkflowRepository returns the underlying mock workflow repository for setting up expectations.
func (m *MockPersistence) GetMockWorkflowRepository() *MockWorkflowRepository {
	return m.workflowRepo
}

// GetMockConnectionRepository returns the underlying mock connection repository.
func (m *MockPersistence) GetMockConnectionRepository() *MockConnectionRepository {
	return m.connectionRepo
}

// GetMockChannelRepository returns the underlying mock channel repository.
func (m *MockPersistence) GetMockChannelRepository() *MockChannelRepository {
	return m.channelRepo
}

func (m *MockPersistence) WorkflowRepository() persistence.WorkflowRepository {
	return m.workflowRepo
}

func (m *MockPersistence) ConnectionRepository() persistence.ConnectionRepository {
	return m.connectionRepo
}

func (m *MockPersistence) ChannelRepository() persistence.ChannelRepository {
	return m.channelRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

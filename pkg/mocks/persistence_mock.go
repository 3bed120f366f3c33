package mocks

import (
	"context"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockJourneyRepository is a mock implementation of persistence.JourneyRepository interface.
type MockJourneyRepository struct {
	mock.Mock
}

func (m *MockJourneyRepository) SaveJourney(ctx context.Context, journey *models.Journey) error {
	args := m.Called(ctx, journey)

	return args.Error(0)
}

func (m *MockJourneyRepository) JourneyByID(ctx context.Context, id string) (*models.Journey, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Journey), args.Error(1)
}

func (m *MockJourneyRepository) SaveVersion(ctx context.Context, version *models.JourneyVersion) error {
	args := m.Called(ctx, version)

	return args.Error(0)
}

func (m *MockJourneyRepository) VersionByID(ctx context.Context, id string) (*models.JourneyVersion, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.JourneyVersion), args.Error(1)
}

func (m *MockJourneyRepository) PublishVersion(ctx context.Context, journeyID, versionID string, publishedAt time.Time) error {
	args := m.Called(ctx, journeyID, versionID, publishedAt)

	return args.Error(0)
}

func (m *MockJourneyRepository) StepByID(ctx context.Context, stepID string) (*models.JourneyStep, error) {
	args := m.Called(ctx, stepID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.JourneyStep), args.Error(1)
}

func (m *MockJourneyRepository) ConnectionsFrom(ctx context.Context, stepID string) ([]*models.StepConnection, error) {
	args := m.Called(ctx, stepID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.StepConnection), args.Error(1)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) CreateExecution(ctx context.Context, execution *models.JourneyExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.JourneyExecution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.JourneyExecution), args.Error(1)
}

func (m *MockExecutionRepository) SaveExecution(ctx context.Context, execution *models.JourneyExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) ActiveExecution(ctx context.Context, organizationID, journeyID, contactID string) (*models.JourneyExecution, error) {
	args := m.Called(ctx, organizationID, journeyID, contactID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.JourneyExecution), args.Error(1)
}

func (m *MockExecutionRepository) StaleExecutions(ctx context.Context, olderThan time.Time) ([]*models.JourneyExecution, error) {
	args := m.Called(ctx, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.JourneyExecution), args.Error(1)
}

func (m *MockExecutionRepository) CreateStepExecution(ctx context.Context, stepExecution *models.StepExecution) error {
	args := m.Called(ctx, stepExecution)

	return args.Error(0)
}

func (m *MockExecutionRepository) UpdateStepExecution(ctx context.Context, stepExecution *models.StepExecution) error {
	args := m.Called(ctx, stepExecution)

	return args.Error(0)
}

func (m *MockExecutionRepository) StepExecutions(ctx context.Context, executionID string) ([]*models.StepExecution, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.StepExecution), args.Error(1)
}

func (m *MockExecutionRepository) LogExecution(ctx context.Context, entry *models.ExecutionLog) error {
	args := m.Called(ctx, entry)

	return args.Error(0)
}

func (m *MockExecutionRepository) Logs(ctx context.Context, executionID string) ([]*models.ExecutionLog, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ExecutionLog), args.Error(1)
}

// MockTriggerRepository is a mock implementation of persistence.TriggerRepository interface.
type MockTriggerRepository struct {
	mock.Mock
}

func (m *MockTriggerRepository) SaveTrigger(ctx context.Context, trigger *models.JourneyTrigger) error {
	args := m.Called(ctx, trigger)

	return args.Error(0)
}

func (m *MockTriggerRepository) TriggersByType(ctx context.Context, organizationID string, triggerType models.TriggerType) ([]*models.JourneyTrigger, error) {
	args := m.Called(ctx, organizationID, triggerType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.JourneyTrigger), args.Error(1)
}

func (m *MockTriggerRepository) SegmentTriggers(ctx context.Context) ([]*models.JourneyTrigger, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.JourneyTrigger), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	Journeys   *MockJourneyRepository
	Executions *MockExecutionRepository
	Triggers   *MockTriggerRepository
}

// NewMockPersistence creates a new MockPersistence with all mock repositories.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Journeys:   &MockJourneyRepository{},
		Executions: &MockExecutionRepository{},
		Triggers:   &MockTriggerRepository{},
	}
}

func (m *MockPersistence) JourneyRepository() persistence.JourneyRepository {
	return m.Journeys
}

func (m *MockPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return m.Executions
}

func (m *MockPersistence) TriggerRepository() persistence.TriggerRepository {
	return m.Triggers
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

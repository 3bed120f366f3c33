package memory

import (
	"context"
	"sort"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
)

type executionRepository struct {
	p *Persistence
}

func (r *executionRepository) CreateExecution(_ context.Context, execution *models.JourneyExecution) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if execution.IsActive() && r.activeLocked(execution.OrganizationID, execution.JourneyID, execution.ContactID) != nil {
		return persistence.NewEntityError("CreateExecution", "execution", execution.ID, persistence.ErrActiveExecutionExists)
	}

	r.p.executions[execution.ID] = copyExecution(execution)

	return nil
}

func (r *executionRepository) ExecutionByID(_ context.Context, id string) (*models.JourneyExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	execution, ok := r.p.executions[id]
	if !ok {
		return nil, persistence.NewEntityError("ExecutionByID", "execution", id, persistence.ErrExecutionNotFound)
	}

	return copyExecution(execution), nil
}

func (r *executionRepository) SaveExecution(_ context.Context, execution *models.JourneyExecution) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	stored, ok := r.p.executions[execution.ID]
	if !ok {
		return persistence.NewEntityError("SaveExecution", "execution", execution.ID, persistence.ErrExecutionNotFound)
	}

	if !stored.IsActive() {
		return persistence.NewEntityError("SaveExecution", "execution", execution.ID, persistence.ErrExecutionNotActive)
	}

	r.p.executions[execution.ID] = copyExecution(execution)

	return nil
}

func (r *executionRepository) ActiveExecution(_ context.Context, organizationID, journeyID, contactID string) (*models.JourneyExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	execution := r.activeLocked(organizationID, journeyID, contactID)
	if execution == nil {
		return nil, persistence.NewEntityError("ActiveExecution", "execution", contactID, persistence.ErrExecutionNotFound)
	}

	return copyExecution(execution), nil
}

func (r *executionRepository) activeLocked(organizationID, journeyID, contactID string) *models.JourneyExecution {
	for _, execution := range r.p.executions {
		if execution.IsActive() &&
			execution.OrganizationID == organizationID &&
			execution.JourneyID == journeyID &&
			execution.ContactID == contactID {
			return execution
		}
	}

	return nil
}

func (r *executionRepository) StaleExecutions(_ context.Context, olderThan time.Time) ([]*models.JourneyExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var stale []*models.JourneyExecution

	for _, execution := range r.p.executions {
		if execution.IsActive() && execution.StartedAt.Before(olderThan) {
			stale = append(stale, copyExecution(execution))
		}
	}

	sort.Slice(stale, func(i, j int) bool {
		return stale[i].StartedAt.Before(stale[j].StartedAt)
	})

	return stale, nil
}

func (r *executionRepository) CreateStepExecution(_ context.Context, stepExecution *models.StepExecution) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.stepExecutions[stepExecution.ID] = copyStepExecution(stepExecution)

	return nil
}

func (r *executionRepository) UpdateStepExecution(_ context.Context, stepExecution *models.StepExecution) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.stepExecutions[stepExecution.ID]; !ok {
		return persistence.NewEntityError("UpdateStepExecution", "step execution", stepExecution.ID, persistence.ErrStepExecutionNotFound)
	}

	r.p.stepExecutions[stepExecution.ID] = copyStepExecution(stepExecution)

	return nil
}

func (r *executionRepository) StepExecutions(_ context.Context, executionID string) ([]*models.StepExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var result []*models.StepExecution

	for _, stepExecution := range r.p.stepExecutions {
		if stepExecution.ExecutionID == executionID {
			result = append(result, copyStepExecution(stepExecution))
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartedAt.Before(result[j].StartedAt)
	})

	return result, nil
}

func (r *executionRepository) LogExecution(_ context.Context, entry *models.ExecutionLog) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	c := *entry
	r.p.logs[entry.ExecutionID] = append(r.p.logs[entry.ExecutionID], &c)

	return nil
}

func (r *executionRepository) Logs(_ context.Context, executionID string) ([]*models.ExecutionLog, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	logs := make([]*models.ExecutionLog, 0, len(r.p.logs[executionID]))
	for _, entry := range r.p.logs[executionID] {
		c := *entry
		logs = append(logs, &c)
	}

	return logs, nil
}

// Package memory provides an in-process persistence implementation for tests and local development.
package memory

import (
	"context"
	"maps"
	"strings"
	"sync"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
)

// Persistence implements persistence.Persistence in memory. All repositories
// share one lock so multi-entity operations such as PublishVersion stay atomic.
type Persistence struct {
	mu sync.RWMutex

	journeys       map[string]*models.Journey
	versions       map[string]*models.JourneyVersion
	steps          map[string]*models.JourneyStep
	connections    map[string][]*models.StepConnection // keyed by from step
	triggers       map[string]*models.JourneyTrigger
	executions     map[string]*models.JourneyExecution
	stepExecutions map[string]*models.StepExecution
	logs           map[string][]*models.ExecutionLog // keyed by execution

	segmentMembers map[string][]string // keyed by organization:segment
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	return &Persistence{
		journeys:       make(map[string]*models.Journey),
		versions:       make(map[string]*models.JourneyVersion),
		steps:          make(map[string]*models.JourneyStep),
		connections:    make(map[string][]*models.StepConnection),
		triggers:       make(map[string]*models.JourneyTrigger),
		executions:     make(map[string]*models.JourneyExecution),
		stepExecutions: make(map[string]*models.StepExecution),
		logs:           make(map[string][]*models.ExecutionLog),
		segmentMembers: make(map[string][]string),
	}
}

func (p *Persistence) JourneyRepository() persistence.JourneyRepository {
	return &journeyRepository{p}
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return &executionRepository{p}
}

func (p *Persistence) TriggerRepository() persistence.TriggerRepository {
	return &triggerRepository{p}
}

// HealthCheck always succeeds for the in-memory store.
func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

// Close performs no cleanup for the in-memory store.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// SetSegmentMembers replaces the members of a segment, standing in for the
// segmentation service's membership output.
func (p *Persistence) SetSegmentMembers(organizationID, segmentID string, contactIDs []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.segmentMembers[segmentKey(organizationID, segmentID)] = append([]string(nil), contactIDs...)
}

// SegmentMembers returns the contacts currently in a segment.
func (p *Persistence) SegmentMembers(_ context.Context, organizationID, segmentID string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return append([]string(nil), p.segmentMembers[segmentKey(organizationID, segmentID)]...), nil
}

func segmentKey(organizationID, segmentID string) string {
	return strings.Join([]string{organizationID, segmentID}, ":")
}

func copyJourney(j *models.Journey) *models.Journey {
	c := *j

	return &c
}

func copyStep(s *models.JourneyStep) *models.JourneyStep {
	c := *s
	c.Config = maps.Clone(s.Config)

	return &c
}

func copyConnection(conn *models.StepConnection) *models.StepConnection {
	c := *conn

	return &c
}

func copyVersion(v *models.JourneyVersion) *models.JourneyVersion {
	c := *v
	c.Steps = make([]*models.JourneyStep, 0, len(v.Steps))
	c.Connections = make([]*models.StepConnection, 0, len(v.Connections))

	for _, step := range v.Steps {
		c.Steps = append(c.Steps, copyStep(step))
	}

	for _, conn := range v.Connections {
		c.Connections = append(c.Connections, copyConnection(conn))
	}

	return &c
}

func copyTrigger(t *models.JourneyTrigger) *models.JourneyTrigger {
	c := *t
	c.Config = maps.Clone(t.Config)

	return &c
}

func copyExecution(e *models.JourneyExecution) *models.JourneyExecution {
	c := *e

	return &c
}

func copyStepExecution(s *models.StepExecution) *models.StepExecution {
	c := *s
	c.Result = maps.Clone(s.Result)

	return &c
}

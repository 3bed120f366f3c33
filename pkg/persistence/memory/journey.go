package memory

import (
	"context"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
)

type journeyRepository struct {
	p *Persistence
}

func (r *journeyRepository) SaveJourney(_ context.Context, journey *models.Journey) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.journeys[journey.ID] = copyJourney(journey)

	return nil
}

func (r *journeyRepository) JourneyByID(_ context.Context, id string) (*models.Journey, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	journey, ok := r.p.journeys[id]
	if !ok {
		return nil, persistence.NewEntityError("JourneyByID", "journey", id, persistence.ErrJourneyNotFound)
	}

	return copyJourney(journey), nil
}

func (r *journeyRepository) SaveVersion(_ context.Context, version *models.JourneyVersion) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if existing, ok := r.p.versions[version.ID]; ok {
		if existing.IsImmutable() {
			return persistence.NewEntityError("SaveVersion", "version", version.ID, persistence.ErrVersionImmutable)
		}

		r.dropGraph(existing)
	}

	stored := copyVersion(version)
	models.SortConnections(stored.Connections)
	r.p.versions[version.ID] = stored

	for _, step := range stored.Steps {
		r.p.steps[step.ID] = step
	}

	for _, conn := range stored.Connections {
		r.p.connections[conn.FromStepID] = append(r.p.connections[conn.FromStepID], conn)
	}

	return nil
}

// dropGraph removes the step and connection indexes of a draft being replaced.
func (r *journeyRepository) dropGraph(version *models.JourneyVersion) {
	for _, step := range version.Steps {
		delete(r.p.steps, step.ID)
		delete(r.p.connections, step.ID)
	}
}

func (r *journeyRepository) VersionByID(_ context.Context, id string) (*models.JourneyVersion, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	version, ok := r.p.versions[id]
	if !ok {
		return nil, persistence.NewEntityError("VersionByID", "version", id, persistence.ErrVersionNotFound)
	}

	return copyVersion(version), nil
}

func (r *journeyRepository) PublishVersion(_ context.Context, journeyID, versionID string, publishedAt time.Time) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	journey, ok := r.p.journeys[journeyID]
	if !ok {
		return persistence.NewEntityError("PublishVersion", "journey", journeyID, persistence.ErrJourneyNotFound)
	}

	version, ok := r.p.versions[versionID]
	if !ok || version.JourneyID != journeyID {
		return persistence.NewEntityError("PublishVersion", "version", versionID, persistence.ErrVersionNotFound)
	}

	if version.IsImmutable() {
		return persistence.NewEntityError("PublishVersion", "version", versionID, persistence.ErrVersionImmutable)
	}

	if previous, ok := r.p.versions[journey.PublishedVersionID]; ok {
		previous.Status = models.VersionStatusSuperseded
	}

	version.Status = models.VersionStatusPublished
	version.PublishedAt = &publishedAt

	journey.PublishedVersionID = versionID
	journey.Status = models.JourneyStatusActive
	journey.UpdatedAt = publishedAt

	return nil
}

func (r *journeyRepository) StepByID(_ context.Context, stepID string) (*models.JourneyStep, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	step, ok := r.p.steps[stepID]
	if !ok {
		return nil, persistence.NewEntityError("StepByID", "step", stepID, persistence.ErrStepNotFound)
	}

	return copyStep(step), nil
}

func (r *journeyRepository) ConnectionsFrom(_ context.Context, stepID string) ([]*models.StepConnection, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	connections := make([]*models.StepConnection, 0, len(r.p.connections[stepID]))
	for _, conn := range r.p.connections[stepID] {
		connections = append(connections, copyConnection(conn))
	}

	return connections, nil
}

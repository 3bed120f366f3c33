package memory

import (
	"context"
	"sort"

	"github.com/dukex/journey/pkg/models"
)

type triggerRepository struct {
	p *Persistence
}

func (r *triggerRepository) SaveTrigger(_ context.Context, trigger *models.JourneyTrigger) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.triggers[trigger.ID] = copyTrigger(trigger)

	return nil
}

func (r *triggerRepository) TriggersByType(_ context.Context, organizationID string, triggerType models.TriggerType) ([]*models.JourneyTrigger, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.collect(func(trigger *models.JourneyTrigger) bool {
		return trigger.OrganizationID == organizationID && trigger.Type == triggerType
	}), nil
}

func (r *triggerRepository) SegmentTriggers(_ context.Context) ([]*models.JourneyTrigger, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.collect(func(trigger *models.JourneyTrigger) bool {
		return trigger.Type == models.TriggerTypeSegment
	}), nil
}

// collect returns enabled triggers of active journeys matching the filter.
func (r *triggerRepository) collect(filter func(*models.JourneyTrigger) bool) []*models.JourneyTrigger {
	var result []*models.JourneyTrigger

	for _, trigger := range r.p.triggers {
		if !trigger.Enabled || !filter(trigger) {
			continue
		}

		journey, ok := r.p.journeys[trigger.JourneyID]
		if !ok || !journey.IsActive() {
			continue
		}

		result = append(result, copyTrigger(trigger))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt) ||
			(result[i].CreatedAt.Equal(result[j].CreatedAt) && result[i].ID < result[j].ID)
	})

	return result
}

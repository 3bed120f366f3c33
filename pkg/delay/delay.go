// Package delay turns delay step configuration into a delivery delay and
// schedules the wake-up unit. It never waits in process.
package delay

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dukex/journey/pkg/eventbus"
	"github.com/dukex/journey/pkg/events"
	"github.com/spf13/cast"
)

const DefaultDuration = 1

// Unit is the time unit of a delay step.
type Unit string

const (
	Minutes Unit = "minutes"
	Hours   Unit = "hours"
	Days    Unit = "days"
)

// ParseUnit accepts plural and singular unit names; anything else is hours.
func ParseUnit(value any) Unit {
	switch strings.ToLower(strings.TrimSpace(cast.ToString(value))) {
	case "minutes", "minute":
		return Minutes
	case "days", "day":
		return Days
	default:
		return Hours
	}
}

func (u Unit) Duration() time.Duration {
	switch u {
	case Minutes:
		return time.Minute
	case Days:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// MaxDelay is the longest wait a single delay step can request.
const MaxDelay = 365 * 24 * time.Hour

// ComputeDelay reads duration and unit from a delay step config. A missing,
// non-numeric, non-finite or non-positive duration counts as 1. Longer waits
// are capped at MaxDelay.
func ComputeDelay(config map[string]any) time.Duration {
	wait := requested(config)
	if wait >= float64(MaxDelay) {
		return MaxDelay
	}

	return time.Duration(wait)
}

// ExceedsMax reports whether config asks for a wait longer than MaxDelay.
func ExceedsMax(config map[string]any) bool {
	return requested(config) > float64(MaxDelay)
}

// requested is the configured wait in nanoseconds, before capping.
func requested(config map[string]any) float64 {
	duration, err := cast.ToFloat64E(config["duration"])
	if err != nil || math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		duration = DefaultDuration
	}

	return duration * float64(ParseUnit(config["unit"]).Duration())
}

// Enqueuer delivers an event after a delay.
type Enqueuer interface {
	Enqueue(ctx context.Context, key string, event eventbus.Event, delay time.Duration) error
}

type Scheduler struct {
	queue Enqueuer
}

func NewScheduler(queue Enqueuer) *Scheduler {
	return &Scheduler{queue: queue}
}

// Schedule enqueues a DelayedWake for unit, delivered after delay.
func (s *Scheduler) Schedule(ctx context.Context, unit events.StepUnit, delay time.Duration) error {
	wake := events.DelayedWake{StepUnit: unit, DelayMs: delay.Milliseconds()}

	err := s.queue.Enqueue(ctx, unit.ExecutionID, wake, delay)
	if err != nil {
		return fmt.Errorf("failed to schedule wake of step %s: %w", unit.StepID, err)
	}

	return nil
}

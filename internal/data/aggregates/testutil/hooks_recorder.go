package testutil

import (
	"sync"
	"time"

	"github.com/yungbote/aggsync/internal/data/aggregates"
)

// HooksRecorder captures aggregate hook signals in tests.
type HooksRecorder struct {
	mu sync.Mutex

	Operations []OperationEvent
	Conflicts  []string
	Retries    []string
	Recomputes []RecomputeEvent
}

type RecomputeEvent struct {
	Definition string
	Outcome    string
}

type OperationEvent struct {
	Name     string
	Status   string
	Duration time.Duration
}

var _ aggregates.Hooks = (*HooksRecorder)(nil)

func (h *HooksRecorder) ObserveOperation(name, status string, dur time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Operations = append(h.Operations, OperationEvent{
		Name:     name,
		Status:   status,
		Duration: dur,
	})
}

func (h *HooksRecorder) IncConflict(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Conflicts = append(h.Conflicts, name)
}

func (h *HooksRecorder) IncRetry(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Retries = append(h.Retries, name)
}

func (h *HooksRecorder) ObserveRecompute(definition, outcome string, _ time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Recomputes = append(h.Recomputes, RecomputeEvent{Definition: definition, Outcome: outcome})
}

// CountRecomputes counts recomputations of definition, optionally filtered by outcome.
func (h *HooksRecorder) CountRecomputes(definition string, outcomes ...string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, ev := range h.Recomputes {
		if ev.Definition != definition {
			continue
		}
		if len(outcomes) == 0 {
			n++
			continue
		}
		for _, o := range outcomes {
			if ev.Outcome == o {
				n++
				break
			}
		}
	}
	return n
}

// Reset drops every recorded signal.
func (h *HooksRecorder) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Operations = nil
	h.Conflicts = nil
	h.Retries = nil
	h.Recomputes = nil
}

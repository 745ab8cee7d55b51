package coordinator

import (
	"time"

	"github.com/maxpert/topology/common"
	"github.com/maxpert/topology/telemetry"
)

// ApplyMetrics records telemetry for one Apply call.
type ApplyMetrics struct {
	startTime time.Time
}

// NewApplyMetrics starts timing an Apply call.
func NewApplyMetrics() *ApplyMetrics {
	return &ApplyMetrics{startTime: time.Now()}
}

// mutationLabel maps a mutation to the "type" label.
func mutationLabel(m common.Mutation) string {
	switch m.Type {
	case common.SetValue:
		return "set"
	case common.ClearRange:
		return "clear"
	}
	return "ignored"
}

// RecordMutation counts one mutation with result "ok" or "failed".
func (m *ApplyMetrics) RecordMutation(mut common.Mutation, result string) {
	telemetry.MutationsApplied.With(mutationLabel(mut), result).Inc()
	if mut.Type == common.ClearRange && result == "ok" {
		telemetry.ClearReplays.Inc()
	}
}

// RecordFailure records a failed Apply and returns err unchanged (pass-through).
func (m *ApplyMetrics) RecordFailure(err error) error {
	telemetry.ApplyDurationSeconds.Observe(time.Since(m.startTime).Seconds())
	return err
}

// RecordSuccess records a completed Apply.
func (m *ApplyMetrics) RecordSuccess() {
	telemetry.ApplyDurationSeconds.Observe(time.Since(m.startTime).Seconds())
}

// recordState publishes the validity gauge and canonical mode.
func recordState(valid bool, mode string) {
	if valid {
		telemetry.ConfigValid.Set(1)
	} else {
		telemetry.ConfigValid.Set(0)
	}
	telemetry.SetRedundancyMode(mode)
}

// recordTransition counts a validity flip.
func recordTransition(nowValid bool) {
	if nowValid {
		telemetry.ValidityTransitions.With("to_valid").Inc()
	} else {
		telemetry.ValidityTransitions.With("to_invalid").Inc()
	}
}

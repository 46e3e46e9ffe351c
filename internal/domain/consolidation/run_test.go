package consolidation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to RunStatus
		allowed  bool
	}{
		{RunStatusPending, RunStatusRunning, true},
		{RunStatusPending, RunStatusFailed, true},
		{RunStatusPending, RunStatusCompleted, false},
		{RunStatusRunning, RunStatusCompleted, true},
		{RunStatusRunning, RunStatusFailed, true},
		{RunStatusRunning, RunStatusPending, false},
		{RunStatusCompleted, RunStatusFailed, false},
		{RunStatusFailed, RunStatusRunning, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestConsolRunLifecycle(t *testing.T) {
	newRun := func() *ConsolRun {
		return NewConsolRun(uuid.New(), MustParsePeriod("2024-01"), RunScope{}, time.Now(), uuid.New())
	}

	t.Run("happy path", func(t *testing.T) {
		run := newRun()
		assert.Equal(t, RunStatusPending, run.Status)
		require.NoError(t, run.Start())
		assert.NotNil(t, run.StartedAt)
		require.NoError(t, run.Complete(RunStats{FactsWritten: 3}))
		assert.Equal(t, RunStatusCompleted, run.Status)
		assert.Equal(t, 3, run.Stats.FactsWritten)
		assert.NotNil(t, run.CompletedAt)
	})

	t.Run("failure captures the message", func(t *testing.T) {
		run := newRun()
		require.NoError(t, run.Start())
		require.NoError(t, run.Fail("boom"))
		assert.Equal(t, RunStatusFailed, run.Status)
		assert.Equal(t, "boom", run.ErrorMessage)
	})

	t.Run("terminal runs reject further transitions", func(t *testing.T) {
		run := newRun()
		require.NoError(t, run.Start())
		require.NoError(t, run.Complete(RunStats{}))
		assert.Error(t, run.Fail("late"))
		assert.Error(t, run.Start())
	})

	t.Run("completing a pending run is rejected", func(t *testing.T) {
		run := newRun()
		assert.Error(t, run.Complete(RunStats{}))
	})
}

package nodeagent

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestAgent() *Agent {
	return &Agent{steps: make(map[stepKey]*runningStep)}
}

func TestGetOrCreateStepIsIdempotent(t *testing.T) {
	a := newTestAgent()
	key := stepKey{jobID: 1, stepID: 0}

	st1 := a.getOrCreateStep(key)
	st2 := a.getOrCreateStep(key)
	require.Same(t, st1, st2)

	found, ok := a.lookupStep(key)
	require.True(t, ok)
	require.Same(t, st1, found)
}

func TestDropStepRemovesEntry(t *testing.T) {
	a := newTestAgent()
	key := stepKey{jobID: 1, stepID: 0}
	a.getOrCreateStep(key)
	a.dropStep(key)

	_, ok := a.lookupStep(key)
	require.False(t, ok)
}

func TestLookupStepMissingReturnsFalse(t *testing.T) {
	a := newTestAgent()
	_, ok := a.lookupStep(stepKey{jobID: 99, stepID: 1})
	require.False(t, ok)
}

func TestFreeCPUsSubtractsRunningTasks(t *testing.T) {
	a := newTestAgent()
	require.Equal(t, runtime.NumCPU(), a.freeCPUs())

	key := stepKey{jobID: 1, stepID: 0}
	st := a.getOrCreateStep(key)
	st.mu.Lock()
	st.tasks[0] = nil
	st.mu.Unlock()

	want := runtime.NumCPU() - 1
	if want < 0 {
		want = 0
	}
	require.Equal(t, want, a.freeCPUs())
}

func TestSetDrainingToggles(t *testing.T) {
	a := newTestAgent()
	require.False(t, a.isDraining())
	a.SetDraining(true)
	require.True(t, a.isDraining())
}

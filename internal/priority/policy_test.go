package priority

import (
	"testing"
	"time"

	"tezfolio/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTasksForTezosOrder(t *testing.T) {
	tasks := TasksFor(entity.ChainTezos)
	require.Len(t, tasks, 8)

	// Critical first, then strictly non-decreasing tiers.
	assert.Equal(t, CapBalance, tasks[0].Capability)
	assert.Equal(t, Critical, tasks[0].Priority)
	assert.Equal(t, CapDelegation, tasks[1].Capability)
	for i := 1; i < len(tasks); i++ {
		assert.GreaterOrEqual(t, tasks[i].Priority, tasks[i-1].Priority)
	}
	assert.Equal(t, Low, tasks[len(tasks)-1].Priority)
}

func TestTasksForEtherlinkHasNoLowTier(t *testing.T) {
	tasks := TasksFor(entity.ChainEtherlink)
	require.Len(t, tasks, 5)
	for _, task := range tasks {
		assert.NotEqual(t, Low, task.Priority, "capability %s", task.Capability)
	}
	// Delegation concepts do not exist on etherlink.
	for _, task := range tasks {
		assert.NotEqual(t, CapDelegation, task.Capability)
		assert.NotEqual(t, CapRewards, task.Capability)
		assert.NotEqual(t, CapDelegationDetails, task.Capability)
	}
}

func TestTasksForUnknownChain(t *testing.T) {
	assert.Nil(t, TasksFor(entity.ChainType("solana")))
}

func TestTierOf(t *testing.T) {
	p, ok := TierOf(entity.ChainTezos, CapRewards)
	require.True(t, ok)
	assert.Equal(t, Low, p)

	p, ok = TierOf(entity.ChainEtherlink, CapCounters)
	require.True(t, ok)
	assert.Equal(t, High, p)

	_, ok = TierOf(entity.ChainEtherlink, CapDelegation)
	assert.False(t, ok)

	_, ok = TierOf(entity.ChainType("solana"), CapBalance)
	assert.False(t, ok)
}

func TestShouldDefer(t *testing.T) {
	cases := []struct {
		priority Priority
		ctx      Context
		deferred bool
	}{
		{Critical, ContextList, false},
		{High, ContextList, true},
		{Medium, ContextList, true},
		{Low, ContextList, true},
		{Critical, ContextDetail, false},
		{High, ContextDetail, false},
		{Medium, ContextDetail, true},
		{Low, ContextDetail, true},
		{Critical, ContextBackground, false},
		{High, ContextBackground, false},
		{Medium, ContextBackground, false},
		{Low, ContextBackground, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.deferred, ShouldDefer(tc.priority, tc.ctx),
			"priority=%s context=%s", tc.priority, tc.ctx)
	}
}

func TestStaleTimeFor(t *testing.T) {
	// Dynamic data keeps the tier's base budget.
	assert.Equal(t, 30*time.Second, StaleTimeFor(Critical, CapBalance))
	assert.Equal(t, 2*time.Minute, StaleTimeFor(High, CapTokens))
	assert.Equal(t, 10*time.Minute, StaleTimeFor(Low, CapRewards))

	// History windows are near-immutable once complete.
	assert.Equal(t, 60*time.Minute, StaleTimeFor(Medium, CapHistory))

	// Static metadata stretches its tier budget.
	assert.Equal(t, 6*time.Minute, StaleTimeFor(High, CapDomain))
	assert.Equal(t, 30*time.Minute, StaleTimeFor(Low, CapDelegationDetails))
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, CategoryDynamic, CategoryOf(CapBalance))
	assert.Equal(t, CategoryStatic, CategoryOf(CapDomain))
	assert.Equal(t, CategoryHistory, CategoryOf(CapHistory))
	assert.Equal(t, CategoryDynamic, CategoryOf(CapSpotPrice))
}

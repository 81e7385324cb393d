package routetable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabili207/lorance/core/address"
	"github.com/kabili207/lorance/core/wire"
)

const (
	local    = address.Address(1)
	nodeA    = address.Address(2)
	nodeB    = address.Address(3)
	holdTime = 5 * time.Minute
)

func TestApplyAdvertised_InstallsNewEntry(t *testing.T) {
	tbl := New(local, DefaultLimits())
	now := time.Now()

	res := tbl.ApplyAdvertised(nodeA, wire.NetworkNode{Address: nodeB, Metric: 1, Role: address.RoleRouter}, nil, now, holdTime)
	assert.Equal(t, OutcomeInstalled, res.Outcome)
	assert.True(t, res.TopologyChange)

	entry, ok := tbl.Find(nodeB)
	require.True(t, ok)
	assert.Equal(t, nodeA, entry.Via)
	assert.EqualValues(t, 1, entry.Metric)
}

func TestApplyAdvertised_IgnoresSelf(t *testing.T) {
	tbl := New(local, DefaultLimits())
	res := tbl.ApplyAdvertised(nodeA, wire.NetworkNode{Address: local, Metric: 1}, nil, time.Now(), holdTime)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Equal(t, 0, tbl.Size())
}

func TestApplyAdvertised_RefreshesIdenticalAdvert(t *testing.T) {
	tbl := New(local, DefaultLimits())
	now := time.Now()
	tbl.ApplyAdvertised(nodeA, wire.NetworkNode{Address: nodeB, Metric: 2}, nil, now, holdTime)

	later := now.Add(time.Minute)
	res := tbl.ApplyAdvertised(nodeA, wire.NetworkNode{Address: nodeB, Metric: 2}, nil, later, holdTime)
	assert.Equal(t, OutcomeRefreshed, res.Outcome)
	assert.False(t, res.TopologyChange)

	entry, _ := tbl.Find(nodeB)
	assert.Equal(t, later.Add(holdTime), entry.Timeout)
}

func TestApplyAdvertised_HopCountOnly_ReplacesOnFewerHops(t *testing.T) {
	tbl := New(local, DefaultLimits())
	now := time.Now()
	tbl.ApplyAdvertised(nodeA, wire.NetworkNode{Address: nodeB, Metric: 5}, nil, now, holdTime)

	res := tbl.ApplyAdvertised(address.Address(9), wire.NetworkNode{Address: nodeB, Metric: 2}, nil, now, holdTime)
	assert.Equal(t, OutcomeReplaced, res.Outcome)
	assert.True(t, res.TopologyChange)

	entry, _ := tbl.Find(nodeB)
	assert.EqualValues(t, 2, entry.Metric)
}

func TestApplyAdvertised_HopCountOnly_RejectsWorseHops(t *testing.T) {
	tbl := New(local, DefaultLimits())
	now := time.Now()
	tbl.ApplyAdvertised(nodeA, wire.NetworkNode{Address: nodeB, Metric: 2}, nil, now, holdTime)

	res := tbl.ApplyAdvertised(address.Address(9), wire.NetworkNode{Address: nodeB, Metric: 5}, nil, now, holdTime)
	assert.Equal(t, OutcomeRejectedCost, res.Outcome)

	entry, _ := tbl.Find(nodeB)
	assert.EqualValues(t, 2, entry.Metric)
}

func TestApplyAdvertised_TableFullRejectsNewDestination(t *testing.T) {
	tbl := New(local, Limits{MaxSize: 1, HopMax: DefaultHopMax})
	now := time.Now()
	tbl.ApplyAdvertised(nodeA, wire.NetworkNode{Address: nodeB, Metric: 1}, nil, now, holdTime)

	res := tbl.ApplyAdvertised(nodeA, wire.NetworkNode{Address: address.Address(4), Metric: 1}, nil, now, holdTime)
	assert.Equal(t, OutcomeRejectedTableFull, res.Outcome)
	assert.Equal(t, 1, tbl.Size())
}

func TestApplyAdvertised_MetricClampedToHopMax(t *testing.T) {
	tbl := New(local, Limits{MaxSize: DefaultMaxSize, HopMax: 3})
	tbl.ApplyAdvertised(nodeA, wire.NetworkNode{Address: nodeB, Metric: 200}, nil, time.Now(), holdTime)

	entry, _ := tbl.Find(nodeB)
	assert.EqualValues(t, 3, entry.Metric)
}

func TestNextHop_BroadcastAlwaysResolves(t *testing.T) {
	tbl := New(local, DefaultLimits())
	assert.Equal(t, address.Broadcast, tbl.NextHop(address.Broadcast))
}

func TestNextHop_MissReturnsNone(t *testing.T) {
	tbl := New(local, DefaultLimits())
	assert.Equal(t, address.None, tbl.NextHop(nodeB))
}

func TestBestByRole_NilCostFnUsesHopCount(t *testing.T) {
	tbl := New(local, DefaultLimits())
	now := time.Now()
	tbl.ApplyAdvertised(nodeA, wire.NetworkNode{Address: address.Address(10), Metric: 3, Role: address.RoleGateway}, nil, now, holdTime)
	tbl.ApplyAdvertised(nodeA, wire.NetworkNode{Address: address.Address(11), Metric: 1, Role: address.RoleGateway}, nil, now, holdTime)

	best, ok := tbl.BestByRole(address.RoleGateway, nil)
	require.True(t, ok)
	assert.Equal(t, address.Address(11), best.Destination)
}

func TestBestByRole_NoMatchingRoleReturnsFalse(t *testing.T) {
	tbl := New(local, DefaultLimits())
	tbl.ApplyAdvertised(nodeA, wire.NetworkNode{Address: nodeB, Metric: 1, Role: address.RoleSensor}, nil, time.Now(), holdTime)

	_, ok := tbl.BestByRole(address.RoleGateway, nil)
	assert.False(t, ok)
}

func TestRemoveNeighborAndDependents(t *testing.T) {
	tbl := New(local, DefaultLimits())
	now := time.Now()
	tbl.ApplyAdvertised(nodeA, wire.NetworkNode{Address: nodeA, Metric: 1}, nil, now, holdTime)
	tbl.ApplyAdvertised(nodeA, wire.NetworkNode{Address: nodeB, Metric: 2}, nil, now, holdTime)

	removed := tbl.RemoveNeighborAndDependents(nodeA)
	assert.ElementsMatch(t, []address.Address{nodeA, nodeB}, removed)
	assert.Equal(t, 0, tbl.Size())
}

func TestSweep_RemovesExpiredEntries(t *testing.T) {
	tbl := New(local, DefaultLimits())
	now := time.Now()
	tbl.ApplyAdvertised(nodeA, wire.NetworkNode{Address: nodeB, Metric: 1}, nil, now, time.Second)

	removed := tbl.Sweep(now.Add(2 * time.Second))
	assert.Equal(t, []address.Address{nodeB}, removed)
	assert.Equal(t, 0, tbl.Size())
}

func TestGatewayLoads_OnlyIncludesGatewayRole(t *testing.T) {
	tbl := New(local, DefaultLimits())
	now := time.Now()
	tbl.ApplyAdvertised(nodeA, wire.NetworkNode{Address: address.Address(10), Metric: 1, Role: address.RoleGateway, GatewayLoad: 5}, nil, now, holdTime)
	tbl.ApplyAdvertised(nodeA, wire.NetworkNode{Address: address.Address(11), Metric: 1, Role: address.RoleSensor}, nil, now, holdTime)

	loads := tbl.GatewayLoads()
	assert.Equal(t, map[address.Address]uint8{10: 5}, loads)
}

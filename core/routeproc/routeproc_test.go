package routeproc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabili207/lorance/core/address"
	"github.com/kabili207/lorance/core/linkmetrics"
	"github.com/kabili207/lorance/core/routetable"
	"github.com/kabili207/lorance/core/stats"
	"github.com/kabili207/lorance/core/wire"
)

const local = address.Address(1)

type fakeNotifier struct {
	heardConsistent int
	resets          int
	lastReset       time.Time
}

func (f *fakeNotifier) HeardConsistent()       { f.heardConsistent++ }
func (f *fakeNotifier) Reset(now time.Time)    { f.resets++; f.lastReset = now }

type fakeHealth struct {
	observed []address.Address
}

func (f *fakeHealth) Observe(neighbor address.Address, now time.Time) {
	f.observed = append(f.observed, neighbor)
}

func newTestProcessor(mode Mode) (*Processor, *routetable.Table, *fakeNotifier, *fakeHealth, *stats.Counters) {
	table := routetable.New(local, routetable.DefaultLimits())
	notifier := &fakeNotifier{}
	health := &fakeHealth{}
	st := &stats.Counters{}
	p := New(Config{
		LocalAddress: local,
		Mode:         mode,
		Table:        table,
		Links:        linkmetrics.New(8),
		Trickle:      notifier,
		Topology:     notifier,
		Health:       health,
		Stats:        st,
	})
	return p, table, notifier, health, st
}

func TestOnHello_InstallsSenderAsImplicitOneHop(t *testing.T) {
	p, table, notifier, health, st := newTestProcessor(ModeHopCount)

	sender := address.Address(2)
	pkt := &wire.RoutePacket{SenderAddress: sender, SenderRole: address.RoleRouter}
	p.OnHello(pkt, -5, -60, time.Now())

	entry, ok := table.Find(sender)
	require.True(t, ok)
	assert.EqualValues(t, 1, entry.Metric)
	assert.Equal(t, sender, entry.Via)

	assert.Equal(t, 1, notifier.heardConsistent)
	assert.Equal(t, 1, notifier.resets, "a brand-new entry is a topology change")
	assert.Equal(t, []address.Address{sender}, health.observed)
	assert.EqualValues(t, 1, st.HellosRX.Load())
	assert.EqualValues(t, 1, st.RouteInstalls.Load())
}

func TestOnHello_AdvertisedNodesGetHopIncremented(t *testing.T) {
	p, table, _, _, _ := newTestProcessor(ModeHopCount)

	sender := address.Address(2)
	far := address.Address(3)
	pkt := &wire.RoutePacket{
		SenderAddress: sender,
		NodeList: []wire.NetworkNode{
			{Address: far, Metric: 2, Role: address.RoleRouter},
		},
	}
	p.OnHello(pkt, -5, -60, time.Now())

	entry, ok := table.Find(far)
	require.True(t, ok)
	assert.EqualValues(t, 3, entry.Metric, "sender-relative hop count must be incremented to receiver-relative")
	assert.Equal(t, sender, entry.Via)
}

func TestOnHello_RefreshDoesNotResetTopology(t *testing.T) {
	p, _, notifier, _, _ := newTestProcessor(ModeHopCount)

	sender := address.Address(2)
	pkt := &wire.RoutePacket{SenderAddress: sender}
	now := time.Now()
	p.OnHello(pkt, -5, -60, now)
	resetsAfterFirst := notifier.resets

	p.OnHello(pkt, -5, -60, now.Add(time.Second))
	assert.Equal(t, resetsAfterFirst, notifier.resets, "an identical re-advertisement is a refresh, not a topology change")
}

func TestOnHello_IgnoresSelfAddressInNodeList(t *testing.T) {
	p, table, _, _, _ := newTestProcessor(ModeHopCount)

	sender := address.Address(2)
	pkt := &wire.RoutePacket{
		SenderAddress: sender,
		NodeList:      []wire.NetworkNode{{Address: local, Metric: 1}},
	}
	p.OnHello(pkt, -5, -60, time.Now())

	_, ok := table.Find(local)
	assert.False(t, ok)
}

func TestActiveCostFn_NilOutsideCostMode(t *testing.T) {
	p, _, _, _, _ := newTestProcessor(ModeFlood)
	assert.Nil(t, p.activeCostFn())
}

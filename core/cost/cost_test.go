package cost

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kabili207/lorance/core/address"
	"github.com/kabili207/lorance/core/linkmetrics"
	"github.com/kabili207/lorance/core/wire"
)

type fakeLinks struct {
	snaps map[address.Address]linkmetrics.Snapshot
}

func (f fakeLinks) Get(via address.Address) linkmetrics.Snapshot {
	return f.snaps[via]
}

type fakeGateways struct {
	loads map[address.Address]uint8
}

func (f fakeGateways) GatewayLoads() map[address.Address]uint8 {
	return f.loads
}

func TestEvaluate_HigherHopsIncreasesCost(t *testing.T) {
	links := fakeLinks{snaps: map[address.Address]linkmetrics.Snapshot{
		1: {RSSI: -60, SNR: 5, ETX: 1.0, HasSample: true},
	}}
	fn := New(DefaultWeights(), links, fakeGateways{})

	low := fn.Evaluate(1, 1, 100)
	high := fn.Evaluate(5, 1, 100)
	assert.Less(t, low, high)
}

func TestEvaluate_WeakLinkAddsPenalty(t *testing.T) {
	w := DefaultWeights()
	strong := fakeLinks{snaps: map[address.Address]linkmetrics.Snapshot{
		1: {RSSI: -60, SNR: 5, ETX: 1.0},
	}}
	weak := fakeLinks{snaps: map[address.Address]linkmetrics.Snapshot{
		1: {RSSI: -130, SNR: 5, ETX: 1.0},
	}}

	strongCost := New(w, strong, fakeGateways{}).Evaluate(1, 1, 100)
	weakCost := New(w, weak, fakeGateways{}).Evaluate(1, 1, 100)
	// Besides the penalty, the weaker RSSI also raises the W2 term.
	rssiDelta := normalize(-60, rssiFloor, rssiCeil) - normalize(-130, rssiFloor, rssiCeil)
	assert.InDelta(t, w.WeakPenalty+w.W2*rssiDelta, weakCost-strongCost, 1e-9)
}

func TestEvaluate_HigherETXIncreasesCost(t *testing.T) {
	links := fakeLinks{snaps: map[address.Address]linkmetrics.Snapshot{
		1: {RSSI: -60, SNR: 5, ETX: 4.0},
	}}
	base := fakeLinks{snaps: map[address.Address]linkmetrics.Snapshot{
		1: {RSSI: -60, SNR: 5, ETX: 1.0},
	}}
	w := DefaultWeights()
	assert.Greater(t, New(w, links, fakeGateways{}).Evaluate(1, 1, 100),
		New(w, base, fakeGateways{}).Evaluate(1, 1, 100))
}

func TestEvaluate_GatewayBiasFavorsLighterLoad(t *testing.T) {
	links := fakeLinks{snaps: map[address.Address]linkmetrics.Snapshot{
		1: {RSSI: -60, SNR: 5, ETX: 1.0},
	}}
	gateways := fakeGateways{loads: map[address.Address]uint8{
		10: 200, // heavily loaded
		20: 10,  // lightly loaded
	}}
	w := DefaultWeights()
	fn := New(w, links, gateways)

	costHeavy := fn.Evaluate(1, 1, 10)
	costLight := fn.Evaluate(1, 1, 20)
	assert.Greater(t, costHeavy, costLight)
}

func TestEvaluate_UnknownGatewayLoadContributesNoBias(t *testing.T) {
	links := fakeLinks{snaps: map[address.Address]linkmetrics.Snapshot{
		1: {RSSI: -60, SNR: 5, ETX: 1.0},
	}}
	gateways := fakeGateways{loads: map[address.Address]uint8{
		10: wire.UnknownGatewayLoad,
	}}
	w := DefaultWeights()
	fn := New(w, links, gateways)

	withGW := fn.Evaluate(1, 1, 10)
	nonGW := fn.Evaluate(1, 1, 999) // not a gateway at all
	assert.Equal(t, nonGW, withGW)
}

func TestWorse(t *testing.T) {
	assert.True(t, Worse(5, 3))
	assert.True(t, Worse(3, 3))
	assert.False(t, Worse(2, 3))
	assert.True(t, Worse(math.NaN(), 1))
	assert.True(t, Worse(-1, 1))
	assert.False(t, Worse(1, math.NaN()))
}

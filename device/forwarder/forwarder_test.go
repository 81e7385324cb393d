package forwarder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabili207/lorance/core/address"
	"github.com/kabili207/lorance/core/linkmetrics"
	"github.com/kabili207/lorance/core/routeproc"
	"github.com/kabili207/lorance/core/routetable"
	"github.com/kabili207/lorance/core/stats"
	"github.com/kabili207/lorance/core/wire"
	"github.com/kabili207/lorance/device/dedupe"
	"github.com/kabili207/lorance/radio"
)

const (
	local = address.Address(1)
	peer  = address.Address(2)
	dst   = address.Address(3)
)

type fakeRadio struct {
	sent      [][]byte
	sendErr   error
	localAddr address.Address
}

func (r *fakeRadio) Send(ctx context.Context, kind radio.FrameKind, payload []byte) error {
	if r.sendErr != nil {
		return r.sendErr
	}
	r.sent = append(r.sent, payload)
	return nil
}
func (r *fakeRadio) Receive() <-chan radio.ReceivedFrame { return nil }
func (r *fakeRadio) Airtime() time.Duration              { return 0 }
func (r *fakeRadio) LocalAddress() address.Address       { return r.localAddr }

func newTestForwarder(mode routeproc.Mode) (*Forwarder, *routetable.Table, *fakeRadio, *stats.Counters) {
	table := routetable.New(local, routetable.DefaultLimits())
	r := &fakeRadio{localAddr: local}
	st := &stats.Counters{}
	f := New(Config{
		LocalAddress: local,
		Mode:         mode,
		Table:        table,
		Radio:        r,
		Stats:        st,
		Dedupe:       dedupe.New(),
	})
	return f, table, r, st
}

func TestSend_NoRouteReturnsError(t *testing.T) {
	f, _, _, st := newTestForwarder(routeproc.ModeCost)
	outcome, err := f.Send(context.Background(), dst, []byte("hi"))
	require.ErrorIs(t, err, ErrNoRoute)
	assert.Equal(t, OutcomeNoRoute, outcome)
	assert.EqualValues(t, 1, st.DroppedNoRoute.Load())
}

func TestSend_AcceptedWithRoute(t *testing.T) {
	f, table, r, st := newTestForwarder(routeproc.ModeCost)
	table.ApplyAdvertised(peer, wire.NetworkNode{Address: dst, Metric: 1}, nil, time.Now(), time.Minute)

	outcome, err := f.Send(context.Background(), dst, []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, outcome)
	assert.Len(t, r.sent, 1)
	assert.EqualValues(t, 1, st.DataTX.Load())
}

func TestSend_BackpressurePropagates(t *testing.T) {
	f, table, r, _ := newTestForwarder(routeproc.ModeCost)
	table.ApplyAdvertised(peer, wire.NetworkNode{Address: dst, Metric: 1}, nil, time.Now(), time.Minute)
	r.sendErr = errors.New("busy")

	outcome, err := f.Send(context.Background(), dst, []byte("hi"))
	require.Error(t, err)
	assert.Equal(t, OutcomeBackpressure, outcome)
}

func rxFrame(buf []byte) radio.ReceivedFrame {
	return radio.ReceivedFrame{
		Frame: radio.Frame{Kind: radio.FrameData, Payload: buf},
		From:  peer,
		RSSI:  -70,
		SNR:   8,
	}
}

func TestHandleInbound_DeliversLocalAddressedFrame(t *testing.T) {
	f, _, _, st := newTestForwarder(routeproc.ModeCost)
	pkt := &wire.DataPacket{Src: peer, Dst: local, Seq: 1, TTL: 3, AppPayload: []byte("payload")}
	buf, err := wire.EncodeData(pkt)
	require.NoError(t, err)

	var delivered *wire.DataPacket
	f.HandleInbound(context.Background(), rxFrame(buf), func(p *wire.DataPacket) { delivered = p })

	require.NotNil(t, delivered)
	assert.Equal(t, []byte("payload"), delivered.AppPayload)
	assert.EqualValues(t, 1, st.Delivered.Load())
}

func TestHandleInbound_MalformedDropped(t *testing.T) {
	f, _, _, st := newTestForwarder(routeproc.ModeCost)
	var called bool
	f.HandleInbound(context.Background(), rxFrame([]byte{1, 2}), func(*wire.DataPacket) { called = true })
	assert.False(t, called)
	assert.EqualValues(t, 1, st.DroppedMalformed.Load())
}

func TestHandleInbound_UnicastRelayDecrementsTTLAndForwards(t *testing.T) {
	f, table, r, st := newTestForwarder(routeproc.ModeCost)
	table.ApplyAdvertised(peer, wire.NetworkNode{Address: dst, Metric: 1}, nil, time.Now(), time.Minute)

	pkt := &wire.DataPacket{Src: peer, Dst: dst, Seq: 1, TTL: 2}
	buf, err := wire.EncodeData(pkt)
	require.NoError(t, err)

	f.HandleInbound(context.Background(), rxFrame(buf), func(*wire.DataPacket) {})
	require.Len(t, r.sent, 1)

	forwarded, err := wire.DecodeData(r.sent[0])
	require.NoError(t, err)
	assert.EqualValues(t, 1, forwarded.TTL, "TTL must be decremented before relay")
	assert.EqualValues(t, 1, st.Forwarded.Load())
}

func TestHandleInbound_UnicastRelayDropsOnTTLExpired(t *testing.T) {
	f, table, r, st := newTestForwarder(routeproc.ModeCost)
	table.ApplyAdvertised(peer, wire.NetworkNode{Address: dst, Metric: 1}, nil, time.Now(), time.Minute)

	pkt := &wire.DataPacket{Src: peer, Dst: dst, Seq: 1, TTL: 0}
	buf, err := wire.EncodeData(pkt)
	require.NoError(t, err)

	f.HandleInbound(context.Background(), rxFrame(buf), func(*wire.DataPacket) {})
	assert.Empty(t, r.sent)
	assert.EqualValues(t, 1, st.DroppedTTLExpired.Load())
}

func TestHandleInbound_UnicastRelayDropsOnNoRoute(t *testing.T) {
	f, _, r, st := newTestForwarder(routeproc.ModeCost)
	pkt := &wire.DataPacket{Src: peer, Dst: dst, Seq: 1, TTL: 3}
	buf, err := wire.EncodeData(pkt)
	require.NoError(t, err)

	f.HandleInbound(context.Background(), rxFrame(buf), func(*wire.DataPacket) {})
	assert.Empty(t, r.sent)
	assert.EqualValues(t, 1, st.DroppedNoRoute.Load())
}

func TestHandleInbound_BroadcastDedupedRegardlessOfMode(t *testing.T) {
	f, _, r, st := newTestForwarder(routeproc.ModeCost)
	pkt := &wire.DataPacket{Src: peer, Dst: address.Broadcast, Seq: 1, TTL: 3}
	buf, err := wire.EncodeData(pkt)
	require.NoError(t, err)

	delivered := 0
	deliver := func(*wire.DataPacket) { delivered++ }

	f.HandleInbound(context.Background(), rxFrame(buf), deliver)
	f.HandleInbound(context.Background(), rxFrame(buf), deliver)

	assert.Equal(t, 1, delivered, "second copy of the same broadcast must be deduped")
	assert.EqualValues(t, 1, st.DroppedDuplicate.Load())
	assert.Empty(t, r.sent, "ModeCost must never re-flood a broadcast")
}

func TestHandleInbound_BroadcastReFloodsOnlyInFloodMode(t *testing.T) {
	f, _, r, _ := newTestForwarder(routeproc.ModeFlood)
	pkt := &wire.DataPacket{Src: peer, Dst: address.Broadcast, Seq: 1, TTL: 3}
	buf, err := wire.EncodeData(pkt)
	require.NoError(t, err)

	f.HandleInbound(context.Background(), rxFrame(buf), func(*wire.DataPacket) {})
	require.Len(t, r.sent, 1)

	relayed, err := wire.DecodeData(r.sent[0])
	require.NoError(t, err)
	assert.EqualValues(t, 2, relayed.TTL)
}

func TestHandleInbound_FeedsLinkMetricsFromDataFrameSeq(t *testing.T) {
	f, _, _, _ := newTestForwarder(routeproc.ModeCost)
	links := linkmetrics.New(8)
	f.cfg.Links = links

	pkt := &wire.DataPacket{Src: peer, Dst: local, Seq: 1, TTL: 3}
	buf, err := wire.EncodeData(pkt)
	require.NoError(t, err)
	f.HandleInbound(context.Background(), rxFrame(buf), func(*wire.DataPacket) {})

	snap := links.Get(peer)
	require.True(t, snap.HasSample)
	assert.Equal(t, -70.0, snap.RSSI)
	assert.Equal(t, 1.0, snap.ETX)
}

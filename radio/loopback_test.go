package radio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabili207/lorance/core/address"
)

func drain(t *testing.T, l *Loopback) ReceivedFrame {
	t.Helper()
	select {
	case f := <-l.Receive():
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return ReceivedFrame{}
	}
}

func TestBus_BroadcastReachesOtherRegisteredNodes(t *testing.T) {
	bus := NewBus()
	a := bus.Register(1)
	b := bus.Register(2)

	require.NoError(t, a.Send(context.Background(), FrameHello, []byte("hi")))

	got := drain(t, b)
	assert.Equal(t, address.Address(1), got.From)
	assert.Equal(t, []byte("hi"), got.Payload)

	select {
	case <-a.Receive():
		t.Fatal("sender must not receive its own broadcast")
	default:
	}
}

func TestBus_UnlinkPreventsDelivery(t *testing.T) {
	bus := NewBus()
	a := bus.Register(1)
	b := bus.Register(2)
	bus.Unlink(1, 2)

	require.NoError(t, a.Send(context.Background(), FrameHello, []byte("hi")))

	select {
	case <-b.Receive():
		t.Fatal("unlinked node must not receive")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_SetLinkAppliesProfileToObserver(t *testing.T) {
	bus := NewBus()
	a := bus.Register(1)
	b := bus.Register(2)
	bus.SetLink(1, 2, LinkProfile{RSSI: -100, SNR: -3})

	require.NoError(t, a.Send(context.Background(), FrameData, []byte("x")))
	got := drain(t, b)
	assert.Equal(t, -100.0, got.RSSI)
	assert.EqualValues(t, -3, got.SNR)
}

func TestLoopback_AirtimeAccumulates(t *testing.T) {
	bus := NewBus()
	a := bus.Register(1)
	bus.Register(2)

	require.NoError(t, a.Send(context.Background(), FrameData, make([]byte, 100)))
	assert.Greater(t, a.Airtime(), time.Duration(0))
}

func TestBus_DeregisterClosesReceiveChannel(t *testing.T) {
	bus := NewBus()
	a := bus.Register(1)
	bus.Deregister(1)

	_, ok := <-a.Receive()
	assert.False(t, ok)
}

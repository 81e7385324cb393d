// Package wire implements the on-air codecs for the two frame kinds the
// routing core exchanges: the HELLO control frame (RoutePacket) carrying a
// sender's route digest, and the DATA frame carrying an application payload.
//
// All integers are little-endian and byte-packed with no padding, matching
// spec §6. This mirrors the teacher's core/codec package's approach of an
// explicit, manual LE codec rather than relying on compiler struct packing.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/kabili207/lorance/core/address"
)

const (
	// NetworkNodeSize is the wire size of one NetworkNode record.
	NetworkNodeSize = 5

	// HelloHeaderSize is the size of the fixed HELLO header, before the
	// node list.
	HelloHeaderSize = 5

	// MaxHelloNodes bounds the node list so a HELLO fits in one SF7 MTU
	// (>= 64 bytes payload gives headroom for up to ~12-13 nodes).
	MaxHelloNodes = 13

	// UnknownGatewayLoad is the sentinel meaning "no load information".
	UnknownGatewayLoad uint8 = 255
)

var (
	ErrPacketTooShort  = errors.New("hello packet too short")
	ErrTooManyNodes    = errors.New("hello node list exceeds MaxHelloNodes")
	ErrMalformedLength = errors.New("hello payload length does not match header")
)

// NetworkNode is one advertised destination in a HELLO's node list, or the
// rendered form of a RouteTable entry for serialization.
type NetworkNode struct {
	Address     address.Address
	Metric      uint8 // hop count, 1..HOP_MAX
	Role        address.Role
	GatewayLoad uint8 // 255 = unknown, 0..254 = packets/min load indicator
}

// RoutePacket is the HELLO control frame.
type RoutePacket struct {
	SenderAddress    address.Address
	SenderRole       address.Role
	SenderGatewayLoad uint8
	NodeList         []NetworkNode
}

// EncodeHello serializes a RoutePacket into its wire form. Returns
// ErrTooManyNodes if the node list would not fit in one MTU.
func EncodeHello(p *RoutePacket) ([]byte, error) {
	if len(p.NodeList) > MaxHelloNodes {
		return nil, fmt.Errorf("%w: got %d, max %d", ErrTooManyNodes, len(p.NodeList), MaxHelloNodes)
	}

	buf := make([]byte, HelloHeaderSize+len(p.NodeList)*NetworkNodeSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(p.SenderAddress))
	buf[2] = byte(p.SenderRole)
	buf[3] = p.SenderGatewayLoad
	buf[4] = byte(len(p.NodeList))

	off := HelloHeaderSize
	for _, n := range p.NodeList {
		encodeNetworkNode(buf[off:off+NetworkNodeSize], n)
		off += NetworkNodeSize
	}
	return buf, nil
}

// DecodeHello parses a wire HELLO frame. Malformed packets (too short, or a
// length that doesn't match nodeCount * NetworkNodeSize) return a non-nil
// error; the caller is expected to drop the frame and bump a Malformed
// counter per spec §4.2's failure semantics, without this package touching
// any counters itself (cmd/lorasim's receive loop bumps DroppedMalformed).
func DecodeHello(buf []byte) (*RoutePacket, error) {
	if len(buf) < HelloHeaderSize {
		return nil, ErrPacketTooShort
	}

	p := &RoutePacket{
		SenderAddress:     address.Address(binary.LittleEndian.Uint16(buf[0:2])),
		SenderRole:        address.Role(buf[2]),
		SenderGatewayLoad: buf[3],
	}
	nodeCount := int(buf[4])
	if nodeCount > MaxHelloNodes {
		return nil, ErrTooManyNodes
	}

	want := HelloHeaderSize + nodeCount*NetworkNodeSize
	if len(buf) != want {
		return nil, fmt.Errorf("%w: have %d bytes, want %d for %d nodes", ErrMalformedLength, len(buf), want, nodeCount)
	}

	p.NodeList = make([]NetworkNode, nodeCount)
	off := HelloHeaderSize
	for i := 0; i < nodeCount; i++ {
		p.NodeList[i] = decodeNetworkNode(buf[off : off+NetworkNodeSize])
		off += NetworkNodeSize
	}
	return p, nil
}

func encodeNetworkNode(buf []byte, n NetworkNode) {
	binary.LittleEndian.PutUint16(buf[0:2], uint16(n.Address))
	buf[2] = n.Metric
	buf[3] = byte(n.Role)
	buf[4] = n.GatewayLoad
}

func decodeNetworkNode(buf []byte) NetworkNode {
	return NetworkNode{
		Address:     address.Address(binary.LittleEndian.Uint16(buf[0:2])),
		Metric:      buf[2],
		Role:        address.Role(buf[3]),
		GatewayLoad: buf[4],
	}
}

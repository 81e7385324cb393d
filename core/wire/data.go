package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/kabili207/lorance/core/address"
)

// DataHeaderSize is the size of the fixed DATA frame header, before the
// opaque application payload.
const DataHeaderSize = 10

// MaxAppPayload bounds the application payload so a DATA frame stays within
// one radio MTU alongside the fixed header.
const MaxAppPayload = 174

var (
	ErrDataTooShort   = errors.New("data packet too short")
	ErrAppPayloadSize = errors.New("data packet appLen does not match remaining bytes")
	ErrPayloadTooLong = errors.New("application payload exceeds MaxAppPayload")
)

// DataPacket is the DATA frame carrying an opaque application payload above
// the radio header supplied by the RadioIO collaborator. The routing core
// never interprets AppPayload's contents (spec §9 Open Questions: the DATA
// header is a convention across firmwares, not a contract).
type DataPacket struct {
	Src        address.Address
	Dst        address.Address
	Seq        uint16
	TTL        uint8
	Type       uint8
	AppPayload []byte
}

// EncodeData serializes a DataPacket into its wire form.
func EncodeData(p *DataPacket) ([]byte, error) {
	if len(p.AppPayload) > MaxAppPayload {
		return nil, fmt.Errorf("%w: got %d, max %d", ErrPayloadTooLong, len(p.AppPayload), MaxAppPayload)
	}
	buf := make([]byte, DataHeaderSize+len(p.AppPayload))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(p.Src))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(p.Dst))
	binary.LittleEndian.PutUint16(buf[4:6], p.Seq)
	buf[6] = p.TTL
	buf[7] = p.Type
	binary.LittleEndian.PutUint16(buf[8:10], uint16(len(p.AppPayload)))
	copy(buf[10:], p.AppPayload)
	return buf, nil
}

// DecodeData parses a wire DATA frame.
func DecodeData(buf []byte) (*DataPacket, error) {
	if len(buf) < DataHeaderSize {
		return nil, ErrDataTooShort
	}
	appLen := binary.LittleEndian.Uint16(buf[8:10])
	if int(appLen) != len(buf)-DataHeaderSize {
		return nil, fmt.Errorf("%w: appLen=%d, remaining=%d", ErrAppPayloadSize, appLen, len(buf)-DataHeaderSize)
	}

	p := &DataPacket{
		Src:  address.Address(binary.LittleEndian.Uint16(buf[0:2])),
		Dst:  address.Address(binary.LittleEndian.Uint16(buf[2:4])),
		Seq:  binary.LittleEndian.Uint16(buf[4:6]),
		TTL:  buf[6],
		Type: buf[7],
	}
	if appLen > 0 {
		p.AppPayload = make([]byte, appLen)
		copy(p.AppPayload, buf[10:])
	}
	return p, nil
}

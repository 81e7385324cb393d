// Package telemetry defines the application record used by the validation
// suite's sensor nodes: {seqNum, srcAddr, timestamp, sensorValue, hopCount,
// pm1_0, pm2_5, pm10, lat, lon, gpsValid, sats}. It is a convention layered
// above the opaque DATA appPayload, not part of the routing core's contract
// — the core forwarder never parses it (spec §9 Open Questions).
//
// The per-field byte widths given in the spec (4+2+4+4+1+1+1+1+4+4+1+1) sum
// to 28, not the "fixed 26-byte blob" the spec also claims; this
// implementation follows the explicit field widths (Size = 28) rather than
// inventing a bit-packing scheme to force 26, and records the discrepancy
// here and in DESIGN.md's telemetry section rather than silently guessing
// at it.
package telemetry

import (
	"encoding/binary"
	"errors"
	"math"
)

// Size is the wire size of a Record, per the explicit field-width list.
const Size = 28

var ErrRecordSize = errors.New("telemetry record has the wrong length")

// Record is the sensor telemetry payload.
type Record struct {
	SeqNum      uint32
	SrcAddr     uint16
	Timestamp   uint32
	SensorValue float32
	HopCount    uint8
	PM1_0       uint8
	PM2_5       uint8
	PM10        uint8
	Lat         float32
	Lon         float32
	GPSValid    bool
	Sats        uint8
}

// Encode serializes a Record to its wire form.
func Encode(r Record) []byte {
	buf := make([]byte, Size)
	binary.LittleEndian.PutUint32(buf[0:4], r.SeqNum)
	binary.LittleEndian.PutUint16(buf[4:6], r.SrcAddr)
	binary.LittleEndian.PutUint32(buf[6:10], r.Timestamp)
	binary.LittleEndian.PutUint32(buf[10:14], math.Float32bits(r.SensorValue))
	buf[14] = r.HopCount
	buf[15] = r.PM1_0
	buf[16] = r.PM2_5
	buf[17] = r.PM10
	binary.LittleEndian.PutUint32(buf[18:22], math.Float32bits(r.Lat))
	binary.LittleEndian.PutUint32(buf[22:26], math.Float32bits(r.Lon))
	if r.GPSValid {
		buf[26] = 1
	}
	buf[27] = r.Sats
	return buf
}

// Decode parses a wire telemetry record.
func Decode(buf []byte) (Record, error) {
	if len(buf) != Size {
		return Record{}, ErrRecordSize
	}
	r := Record{
		SeqNum:      binary.LittleEndian.Uint32(buf[0:4]),
		SrcAddr:     binary.LittleEndian.Uint16(buf[4:6]),
		Timestamp:   binary.LittleEndian.Uint32(buf[6:10]),
		SensorValue: math.Float32frombits(binary.LittleEndian.Uint32(buf[10:14])),
		HopCount:    buf[14],
		PM1_0:       buf[15],
		PM2_5:       buf[16],
		PM10:        buf[17],
		Lat:         math.Float32frombits(binary.LittleEndian.Uint32(buf[18:22])),
		Lon:         math.Float32frombits(binary.LittleEndian.Uint32(buf[22:26])),
		GPSValid:    buf[26]&0x01 != 0,
		Sats:        buf[27],
	}
	return r, nil
}

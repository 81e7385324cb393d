// Package radio's serial endpoint implements RadioIO over a USB-serial link
// to a companion LoRa radio module (e.g. an RN2483/SX127x front end) — the
// "physical radio driver" collaborator named out-of-scope in spec §1,
// implemented here as the concrete (not mocked) adapter so the core can be
// driven against real hardware. Framing and checksumming follow the
// teacher's transport/serial and core/codec.RS232Frame conventions: a
// magic-prefixed, length-delimited, Fletcher-16-checksummed frame read off
// an io.Reader, generalized from MeshCore's bridge packet to one byte of
// FrameKind plus the routing core's own HELLO/DATA payload.
package radio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/kabili207/lorance/core/address"
)

const (
	// frameMagic starts every frame on the wire, mirroring the teacher's
	// BridgePacketMagic.
	frameMagic uint16 = 0xC03E

	// maxFramePayload bounds a single serial frame's payload.
	maxFramePayload = 256

	frameHeaderSize   = 2 + 2 + 1 // magic + length + kind
	frameChecksumSize = 2
	minFrameSize      = frameHeaderSize + frameChecksumSize

	readBufSize = 1024

	// DefaultBaudRate matches the teacher's MeshCore serial default.
	DefaultBaudRate = 115200
)

var (
	ErrFrameTooShort    = errors.New("serial frame too short")
	ErrInvalidMagic     = errors.New("serial frame invalid magic")
	ErrPayloadTooLarge  = errors.New("serial frame payload exceeds maximum size")
	ErrChecksumMismatch = errors.New("serial frame checksum mismatch")
)

// fletcher16 computes the Fletcher-16 checksum of data, matching the
// teacher's core/codec.Fletcher16 (itself matching MeshCore's
// BridgeBase.cpp implementation).
func fletcher16(data []byte) uint16 {
	var sum1, sum2 uint16
	for _, b := range data {
		sum1 = (sum1 + uint16(b)) % 255
		sum2 = (sum2 + sum1) % 255
	}
	return sum2<<8 | sum1
}

// encodeFrame serializes one radio frame: magic(2 BE) | length(2 BE) |
// kind(1) | payload | checksum(2 BE, over kind+payload).
func encodeFrame(kind FrameKind, payload []byte) ([]byte, error) {
	if len(payload) > maxFramePayload {
		return nil, ErrPayloadTooLarge
	}
	body := make([]byte, 1+len(payload))
	body[0] = byte(kind)
	copy(body[1:], payload)

	frame := make([]byte, frameHeaderSize+len(body)+frameChecksumSize)
	binary.BigEndian.PutUint16(frame[0:2], frameMagic)
	binary.BigEndian.PutUint16(frame[2:4], uint16(len(body)))
	copy(frame[4:4+len(body)], body)
	binary.BigEndian.PutUint16(frame[4+len(body):], fletcher16(body))
	return frame, nil
}

// decodeFrame extracts the first complete frame from data, returning the
// decoded frame, the remaining unconsumed bytes, and an error for a
// malformed or incomplete prefix. ErrFrameTooShort with a nil frame means
// "wait for more bytes"; on other errors remaining already omits the bad
// leading byte, so the caller resynchronizes by decoding remaining again.
func decodeFrame(data []byte) (kind FrameKind, payload []byte, remaining []byte, err error) {
	if len(data) < minFrameSize {
		return 0, nil, data, ErrFrameTooShort
	}
	if binary.BigEndian.Uint16(data[0:2]) != frameMagic {
		return 0, nil, data[1:], ErrInvalidMagic
	}
	bodyLen := int(binary.BigEndian.Uint16(data[2:4]))
	if bodyLen == 0 || bodyLen > maxFramePayload+1 {
		return 0, nil, data[1:], ErrPayloadTooLarge
	}
	total := 4 + bodyLen + frameChecksumSize
	if len(data) < total {
		return 0, nil, data, ErrFrameTooShort
	}
	body := data[4 : 4+bodyLen]
	wantSum := binary.BigEndian.Uint16(data[4+bodyLen : total])
	if fletcher16(body) != wantSum {
		return 0, nil, data[1:], fmt.Errorf("%w: body len %d", ErrChecksumMismatch, bodyLen)
	}
	return FrameKind(body[0]), append([]byte(nil), body[1:]...), data[total:], nil
}

// SerialConfig configures a Serial RadioIO endpoint.
type SerialConfig struct {
	Port         string
	BaudRate     int
	LocalAddress address.Address
	Logger       *slog.Logger
}

// Serial implements RadioIO over a USB-serial link to a companion radio
// module, using go.bug.st/serial exactly as the teacher's transport/serial
// does for its MeshCore bridge connection.
type Serial struct {
	cfg SerialConfig
	log *slog.Logger

	mu      sync.Mutex
	port    serial.Port
	airtime time.Duration
	cancel  context.CancelFunc

	rx  chan ReceivedFrame
	buf []byte
}

var _ RadioIO = (*Serial)(nil)

// NewSerial creates a Serial RadioIO endpoint. Call Start to open the port
// and begin reading frames.
func NewSerial(cfg SerialConfig) *Serial {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Serial{
		cfg: cfg,
		log: logger.WithGroup("serialradio"),
		rx:  make(chan ReceivedFrame, 64),
	}
}

// Start opens the serial port and begins the frame-read loop. It returns
// once the port is open; reading continues on a background goroutine until
// ctx is cancelled or Stop is called.
func (s *Serial) Start(ctx context.Context) error {
	if s.cfg.Port == "" {
		return errors.New("serial port is required")
	}
	mode := &serial.Mode{BaudRate: s.cfg.BaudRate}
	port, err := serial.Open(s.cfg.Port, mode)
	if err != nil {
		return fmt.Errorf("opening serial port: %w", err)
	}

	s.mu.Lock()
	s.port = port
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	go s.readLoop(ctx, port)
	return nil
}

// Stop closes the serial port and the receive channel.
func (s *Serial) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.port != nil {
		err := s.port.Close()
		s.port = nil
		close(s.rx)
		return err
	}
	return nil
}

func (s *Serial) readLoop(ctx context.Context, port serial.Port) {
	buf := make([]byte, readBufSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := port.Read(buf)
		if err != nil {
			s.log.Warn("serial read failed", "error", err)
			return
		}
		if n == 0 {
			continue
		}
		s.buf = append(s.buf, buf[:n]...)
		s.drainFrames()
	}
}

func (s *Serial) drainFrames() {
	for {
		kind, payload, remaining, err := decodeFrame(s.buf)
		s.buf = remaining
		if err == ErrFrameTooShort {
			return
		}
		if err != nil {
			// resynchronize past the bad leading byte and keep scanning
			continue
		}
		frame := ReceivedFrame{
			Frame: Frame{Kind: kind, Payload: payload},
			From:  address.None, // sender address lives inside the payload (HELLO/DATA header)
		}
		select {
		case s.rx <- frame:
		default:
			s.log.Warn("serial radio receive buffer full, dropping frame")
		}
	}
}

// Send writes an encoded frame to the serial port.
func (s *Serial) Send(ctx context.Context, kind FrameKind, payload []byte) error {
	frame, err := encodeFrame(kind, payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == nil {
		return &ErrBusy{Reason: "serial port not open"}
	}
	if _, err := port.Write(frame); err != nil {
		return &ErrBusy{Reason: err.Error()}
	}
	s.mu.Lock()
	s.airtime += airtimeEstimate(len(frame))
	s.mu.Unlock()
	return nil
}

// Receive returns the channel of decoded inbound frames.
func (s *Serial) Receive() <-chan ReceivedFrame { return s.rx }

// Airtime reports cumulative bytes-on-wire converted to the same rough
// time-on-air estimate Loopback uses.
func (s *Serial) Airtime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.airtime
}

// LocalAddress returns this endpoint's configured node address.
func (s *Serial) LocalAddress() address.Address { return s.cfg.LocalAddress }

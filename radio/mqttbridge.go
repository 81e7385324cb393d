// mqttbridge republishes HELLO/DATA frames over an IP backhaul, for a
// gateway node that also has internet connectivity — exactly the role MQTT
// plays in the teacher's transport/mqtt (bridging a radio-attached node
// onto IP), generalized here from base64-encoded chat packets to routing
// frames. It is a RadioIO-compatible bridge, not a replacement for an
// actual radio: a gateway typically pairs this with a Serial (or Loopback,
// in simulation) endpoint and republishes what it hears for off-mesh
// consumers while still participating in the mesh over the real radio.
package radio

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kabili207/lorance/core/address"
)

const mqttDefaultTopicPrefix = "lorance"

// MQTTConfig configures an MQTT bridge endpoint.
type MQTTConfig struct {
	Broker      string
	Username    string
	Password    string
	ClientID    string
	TopicPrefix string // default "lorance"
	MeshID      string
	LocalAddress address.Address
	Logger      *slog.Logger
}

// MQTTBridge implements RadioIO over an MQTT broker, using
// github.com/eclipse/paho.mqtt.golang exactly as the teacher's
// transport/mqtt does for its chat mesh bridge.
type MQTTBridge struct {
	cfg MQTTConfig
	log *slog.Logger

	mu        sync.Mutex
	client    paho.Client
	connected bool
	airtime   time.Duration

	rx chan ReceivedFrame
}

var _ RadioIO = (*MQTTBridge)(nil)

// NewMQTTBridge creates an MQTT bridge endpoint. Call Start to connect.
func NewMQTTBridge(cfg MQTTConfig) *MQTTBridge {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = mqttDefaultTopicPrefix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTBridge{
		cfg: cfg,
		log: logger.WithGroup("mqttbridge"),
		rx:  make(chan ReceivedFrame, 64),
	}
}

// Start connects to the broker and subscribes to this mesh's topic.
func (b *MQTTBridge) Start(ctx context.Context) error {
	if b.cfg.Broker == "" {
		return errors.New("broker URL is required")
	}
	if b.cfg.MeshID == "" {
		return errors.New("mesh ID is required")
	}

	clientID := b.cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("lorance-%x", rand.Uint64())
	}

	opts := paho.NewClientOptions().
		AddBroker(b.cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(60 * time.Second).
		SetCleanSession(true).
		SetOnConnectHandler(b.onConnected)

	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
	}
	if b.cfg.Password != "" {
		opts.SetPassword(b.cfg.Password)
	}

	b.mu.Lock()
	b.client = paho.NewClient(opts)
	client := b.client
	b.mu.Unlock()

	token := client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return errors.New("mqtt connection timeout")
	}
	return token.Error()
}

// Stop disconnects from the broker and closes the receive channel.
func (b *MQTTBridge) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		b.client.Disconnect(1000)
		b.connected = false
		close(b.rx)
	}
	return nil
}

func (b *MQTTBridge) topic() string {
	return b.cfg.TopicPrefix + "/" + b.cfg.MeshID
}

func (b *MQTTBridge) onConnected(c paho.Client) {
	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()
	c.Subscribe(b.topic(), 0, b.handleMessage)
	b.log.Debug("mqtt bridge subscribed", "topic", b.topic())
}

func (b *MQTTBridge) handleMessage(_ paho.Client, msg paho.Message) {
	raw, err := base64.StdEncoding.DecodeString(string(msg.Payload()))
	if err != nil || len(raw) < 1 {
		b.log.Debug("mqtt bridge dropped malformed message", "error", err)
		return
	}
	frame := ReceivedFrame{
		Frame: Frame{Kind: FrameKind(raw[0]), Payload: append([]byte(nil), raw[1:]...)},
		From:  address.None,
	}
	select {
	case b.rx <- frame:
	default:
		b.log.Warn("mqtt bridge receive buffer full, dropping frame")
	}
}

// Send publishes one frame (kind byte prefix + payload, base64-encoded)
// to the mesh's MQTT topic.
func (b *MQTTBridge) Send(ctx context.Context, kind FrameKind, payload []byte) error {
	b.mu.Lock()
	client := b.client
	connected := b.connected
	b.mu.Unlock()
	if !connected || client == nil {
		return &ErrBusy{Reason: "mqtt not connected"}
	}

	raw := make([]byte, 1+len(payload))
	raw[0] = byte(kind)
	copy(raw[1:], payload)
	encoded := base64.StdEncoding.EncodeToString(raw)

	token := client.Publish(b.topic(), 0, false, encoded)
	if !token.WaitTimeout(10 * time.Second) {
		return &ErrBusy{Reason: "mqtt publish timeout"}
	}
	if err := token.Error(); err != nil {
		return &ErrBusy{Reason: err.Error()}
	}

	b.mu.Lock()
	b.airtime += airtimeEstimate(len(raw))
	b.mu.Unlock()
	return nil
}

// Receive returns the channel of decoded inbound frames.
func (b *MQTTBridge) Receive() <-chan ReceivedFrame { return b.rx }

// Airtime reports a rough payload-size-derived estimate; an MQTT bridge has
// no real airtime, but this keeps the RadioIO contract uniform.
func (b *MQTTBridge) Airtime() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.airtime
}

// LocalAddress returns this endpoint's configured node address.
func (b *MQTTBridge) LocalAddress() address.Address { return b.cfg.LocalAddress }

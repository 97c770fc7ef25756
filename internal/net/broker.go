package net

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"warlane/server/internal/net/intake"
	"warlane/server/internal/sim"
	"warlane/server/internal/telemetry"
	"warlane/server/logging"
)

const (
	// At-most-once delivery both directions.
	brokerQoS = 0

	outboundBuffer       = 4096
	reconnectMaxInterval = 30 * time.Second
)

// BrokerConfig wires the adapter to a broker and a namespace.
type BrokerConfig struct {
	URL       string
	ClientID  string
	Namespace string
	// DefaultHero is the archetype spawned for first-seen players.
	DefaultHero string
	// MaxPlayers bounds the concurrent player count; zero means unlimited.
	MaxPlayers int
}

// Broker bridges the message bus and the simulation: inbound commands from
// `<ns>/+/send` into the command buffer, outbound event batches onto
// per-player and broadcast topics. It runs on its own goroutine and never
// touches components.
type Broker struct {
	cfg    BrokerConfig
	client mqtt.Client
	loop   *sim.Loop

	publisher logging.Publisher
	logger    telemetry.Logger
	metrics   *telemetry.Counters

	mu       sync.Mutex
	players  map[string]struct{}
	outbound chan brokerMessage
	done     chan struct{}
}

type brokerMessage struct {
	topic   string
	payload []byte
}

// NewBroker constructs the adapter; Connect dials.
func NewBroker(cfg BrokerConfig, loop *sim.Loop, publisher logging.Publisher, logger telemetry.Logger, metrics *telemetry.Counters) *Broker {
	if cfg.ClientID == "" {
		cfg.ClientID = "warlane-" + uuid.NewString()[:8]
	}
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	b := &Broker{
		cfg:       cfg,
		loop:      loop,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		players:   make(map[string]struct{}),
		outbound:  make(chan brokerMessage, outboundBuffer),
		done:      make(chan struct{}),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(reconnectMaxInterval).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Second).
		SetOrderMatters(true)
	opts.SetOnConnectHandler(b.onConnect)
	opts.SetConnectionLostHandler(b.onConnectionLost)
	b.client = mqtt.NewClient(opts)
	return b
}

// Connect dials the broker and starts the outbound pump. It blocks until the
// first connection attempt resolves or the context ends.
func (b *Broker) Connect(ctx context.Context) error {
	token := b.client.Connect()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-waitToken(token):
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("broker connect: %w", err)
	}
	go b.pump()
	return nil
}

func waitToken(token mqtt.Token) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()
	return done
}

// Close flushes nothing (at-most-once) and disconnects.
func (b *Broker) Close() {
	close(b.done)
	b.client.Disconnect(250)
}

// Players returns the ids seen on the inbound wildcard so far.
func (b *Broker) Players() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.players))
	for id := range b.players {
		out = append(out, id)
	}
	return out
}

func (b *Broker) onConnect(client mqtt.Client) {
	filter := b.cfg.Namespace + "/+/send"
	if token := client.Subscribe(filter, brokerQoS, b.onCommand); token.Wait() && token.Error() != nil {
		b.logger.Printf("broker subscribe %q failed: %v", filter, token.Error())
		return
	}
	b.publisher.Publish(context.Background(), logging.Event{
		Type:     logging.EventBrokerConnected,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  map[string]any{"filter": filter},
	})
}

func (b *Broker) onConnectionLost(_ mqtt.Client, err error) {
	if b.metrics != nil {
		b.metrics.RecordBrokerReconnect()
	}
	b.publisher.Publish(context.Background(), logging.Event{
		Type:     logging.EventBrokerDisconnect,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  map[string]any{"error": err.Error()},
	})
}

// onCommand handles one inbound publication. The player id comes from the
// topic's wildcard segment: <ns>/<player>/send.
func (b *Broker) onCommand(_ mqtt.Client, msg mqtt.Message) {
	playerID := playerFromTopic(msg.Topic())
	cmd, err := intake.Decode(msg.Payload(), playerID, time.Now())
	if err != nil {
		b.metrics.RecordCommand(false)
		b.sendError(playerID, err)
		return
	}

	b.mu.Lock()
	_, seen := b.players[cmd.PlayerID]
	if !seen {
		if b.cfg.MaxPlayers > 0 && len(b.players) >= b.cfg.MaxPlayers {
			b.mu.Unlock()
			b.sendError(cmd.PlayerID, fmt.Errorf("server full"))
			return
		}
		b.players[cmd.PlayerID] = struct{}{}
	}
	b.mu.Unlock()

	if !seen && b.cfg.DefaultHero != "" {
		b.loop.Submit(sim.Command{
			PlayerID: cmd.PlayerID,
			Type:     sim.CommandJoin,
			IssuedAt: cmd.IssuedAt,
			Join:     &sim.JoinCommand{Archetype: b.cfg.DefaultHero},
		})
	}
	if !b.loop.Submit(cmd) {
		b.sendError(cmd.PlayerID, fmt.Errorf("command queue saturated"))
	}
}

func playerFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 3 {
		return parts[len(parts)-2]
	}
	return ""
}

// PublishBatches queues the tick's outbound traffic: one batch per player
// plus the broadcast batch on <ns>/all.
func (b *Broker) PublishBatches(batches map[string]Batch, broadcast Batch) {
	for playerID, batch := range batches {
		if len(batch.Events) == 0 && batch.Vision == nil {
			continue
		}
		b.queue(fmt.Sprintf("%s/%s/recv", b.cfg.Namespace, playerID), batch)
	}
	if len(broadcast.Events) > 0 {
		b.queue(b.cfg.Namespace+"/all", broadcast)
	}
}

func (b *Broker) sendError(playerID string, err error) {
	if playerID == "" {
		return
	}
	b.queue(fmt.Sprintf("%s/%s/recv", b.cfg.Namespace, playerID), map[string]any{
		"type":  "error",
		"error": err.Error(),
	})
}

// queue stages a message for the pump, dropping the oldest queued message
// when the bounded buffer is full.
func (b *Broker) queue(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Printf("broker marshal for %s failed: %v", topic, err)
		return
	}
	msg := brokerMessage{topic: topic, payload: data}
	for {
		select {
		case b.outbound <- msg:
			return
		default:
		}
		select {
		case <-b.outbound: // drop oldest
			if b.metrics != nil {
				b.metrics.RecordBrokerDrop()
			}
		default:
		}
	}
}

func (b *Broker) pump() {
	for {
		select {
		case <-b.done:
			return
		case msg := <-b.outbound:
			if !b.client.IsConnectionOpen() {
				// Connection down: at-most-once traffic is droppable, and
				// the bounded queue already sheds the backlog.
				continue
			}
			token := b.client.Publish(msg.topic, brokerQoS, false, msg.payload)
			token.Wait()
			if err := token.Error(); err != nil {
				b.logger.Printf("broker publish %s failed: %v", msg.topic, err)
			} else if b.metrics != nil {
				b.metrics.RecordPublish(1)
			}
		}
	}
}

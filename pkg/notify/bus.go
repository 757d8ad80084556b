package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/overturetool/tempo-plotting-tool/internal/ids"
	"github.com/overturetool/tempo-plotting-tool/internal/logging"
	"github.com/overturetool/tempo-plotting-tool/pkg/protocol"
)

// TopicVariables carries VariableUpdate envelopes.
const TopicVariables = "tempo.variables"

const metadataVariable = "variable"

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("notify: bus closed")

// Deliverer sends an envelope to one connection.
// *server.ConnectionManager implements it.
type Deliverer interface {
	Send(ctx context.Context, connID string, env protocol.Envelope) error
}

// Bus fans variable updates out to subscribed connections.
type Bus struct {
	pubsub    *gochannel.GoChannel
	subs      *Subscriptions
	deliverer Deliverer
	logger    *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once
	closed    atomic.Bool

	published atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
}

// NewBus creates a bus delivering through d.
func NewBus(subs *Subscriptions, d Deliverer, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	if subs == nil {
		subs = NewSubscriptions()
	}
	logger = logger.With("component", "notify_bus")

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
		// Publish returns once the update was delivered, keeping step order.
		BlockPublishUntilSubscriberAck: true,
	}, logging.Watermill(logger))

	return &Bus{
		pubsub:    pubsub,
		subs:      subs,
		deliverer: d,
		logger:    logger,
		ready:     make(chan struct{}),
	}
}

// Subscriptions returns the subscription table.
func (b *Bus) Subscriptions() *Subscriptions {
	return b.subs
}

// Ready is closed once Run is consuming updates.
func (b *Bus) Ready() <-chan struct{} {
	return b.ready
}

// Publish queues update for delivery. Updates nobody subscribed to are
// skipped without touching the pub/sub.
func (b *Bus) Publish(ctx context.Context, update protocol.VariableUpdate) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if len(b.subs.Subscribers(update.Name)) == 0 {
		return nil
	}

	env, err := protocol.NewEnvelope(protocol.TypeVariableUpdate, update)
	if err != nil {
		return err
	}
	payload, err := protocol.Encode(env)
	if err != nil {
		return err
	}

	msg := message.NewMessage(ids.New(), payload)
	msg.Metadata.Set(metadataVariable, update.Name)
	msg.SetContext(ctx)

	if err := b.pubsub.Publish(TopicVariables, msg); err != nil {
		return fmt.Errorf("notify: publish %s: %w", update.Name, err)
	}
	b.published.Add(1)
	return nil
}

// Run consumes updates until ctx is done or the bus is closed.
func (b *Bus) Run(ctx context.Context) error {
	messages, err := b.pubsub.Subscribe(ctx, TopicVariables)
	if err != nil {
		return fmt.Errorf("notify: subscribe: %w", err)
	}
	b.readyOnce.Do(func() { close(b.ready) })
	b.logger.Info("notification bus running", "topic", TopicVariables)

	for msg := range messages {
		b.deliver(ctx, msg)
		msg.Ack()
	}
	return nil
}

func (b *Bus) deliver(ctx context.Context, msg *message.Message) {
	name := msg.Metadata.Get(metadataVariable)
	env, err := protocol.Decode(msg.Payload)
	if err != nil {
		b.logger.Warn("dropping undecodable update", "message_id", msg.UUID, "error", err)
		return
	}

	for _, connID := range b.subs.Subscribers(name) {
		if err := b.deliverer.Send(ctx, connID, env); err != nil {
			b.failed.Add(1)
			b.logger.Debug("update not delivered",
				"conn_id", connID,
				"variable", name,
				"error", err)
			continue
		}
		b.delivered.Add(1)
	}
}

// Close stops the bus. Run returns after its channel drains.
func (b *Bus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.pubsub.Close()
}

// Stats returns bus counters.
func (b *Bus) Stats() BusStats {
	return BusStats{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
		Failed:    b.failed.Load(),
	}
}

// BusStats contains bus counters.
type BusStats struct {
	Published uint64
	Delivered uint64
	Failed    uint64
}

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tphakala/soundbackend/internal/devices"
	"github.com/tphakala/soundbackend/internal/errors"
	"github.com/tphakala/soundbackend/internal/logger"
	"github.com/tphakala/soundbackend/internal/observability/metrics"
	"github.com/tphakala/soundbackend/internal/soundbackend"
)

// Event names under <topic>/events/.
const (
	EventBluetooth = "bluetooth"
	EventHeadset   = "headset"
	EventSco       = "sco"
	EventNoisy     = "noisy"
	EventProximity = "proximity"
)

// DefaultStatusInterval is how often Run publishes the engine status.
const DefaultStatusInterval = 10 * time.Second

// EventSink receives device events. *devices.Router implements it.
type EventSink interface {
	OnBluetoothHeadsetConnectStatusChange(connected bool)
	HandleHeadsetPlug(ev devices.HeadsetPlugEvent)
	HandleScoState(ev devices.ScoStateEvent)
	HandleNoisy(ctx context.Context)
	HandleProximity(near bool)
	Table() []devices.Availability
}

// StatusSource reports the engine status. *soundbackend.Backend implements it.
type StatusSource interface {
	Status() soundbackend.BackendStatus
}

// Bridge connects broker topics to the router and publishes engine status.
type Bridge struct {
	client   Client
	sink     EventSink
	status   StatusSource
	topic    string
	interval time.Duration
	log      logger.Logger
	metrics  *metrics.MQTTMetrics

	mu  sync.Mutex
	ctx context.Context
}

// NewBridge creates a bridge publishing under topic. A zero interval uses
// DefaultStatusInterval.
func NewBridge(client Client, sink EventSink, status StatusSource, topic string, interval time.Duration) *Bridge {
	if interval <= 0 {
		interval = DefaultStatusInterval
	}
	return &Bridge{
		client:   client,
		sink:     sink,
		status:   status,
		topic:    strings.Trim(topic, "/"),
		interval: interval,
		log:      GetLogger().Module("bridge"),
		ctx:      context.Background(),
	}
}

// SetMetrics records received events in m.
func (b *Bridge) SetMetrics(m *metrics.MQTTMetrics) {
	b.metrics = m
}

// EventTopic returns the topic an event is received on.
func (b *Bridge) EventTopic(event string) string {
	return b.topic + "/events/" + event
}

// StatusTopic returns the engine status topic.
func (b *Bridge) StatusTopic() string { return b.topic + "/status" }

// RoutesTopic returns the routing table topic.
func (b *Bridge) RoutesTopic() string { return b.topic + "/routes" }

// AvailabilityTopic returns the online/offline topic.
func (b *Bridge) AvailabilityTopic() string { return b.topic + "/availability" }

// Start subscribes to every event topic and announces the bridge online.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	for _, event := range []string{EventBluetooth, EventHeadset, EventSco, EventNoisy, EventProximity} {
		if err := b.client.Subscribe(b.EventTopic(event), b.onMessage); err != nil {
			return errors.New(err).
				Component("mqtt").
				Category(errors.CategoryMQTTConnection).
				Context("topic", b.EventTopic(event)).
				Build()
		}
	}
	if err := b.client.PublishWithRetain(ctx, b.AvailabilityTopic(), "online", true); err != nil {
		b.log.Warn("failed to publish availability", logger.Error(err))
	}
	return nil
}

// Run starts the bridge and publishes status every interval until ctx is
// done. The bridge is announced offline on return.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.Start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.publishAll(ctx)
	for {
		select {
		case <-ctx.Done():
			offline, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			_ = b.client.PublishWithRetain(offline, b.AvailabilityTopic(), "offline", true)
			cancel()
			return nil
		case <-ticker.C:
			b.publishAll(ctx)
		}
	}
}

func (b *Bridge) publishAll(ctx context.Context) {
	if !b.client.IsConnected() {
		return
	}
	if err := b.PublishStatus(ctx); err != nil {
		b.log.Debug("status publish failed", logger.Error(err))
	}
	if err := b.PublishRoutes(ctx); err != nil {
		b.log.Debug("routes publish failed", logger.Error(err))
	}
}

// PublishStatus publishes the engine status snapshot.
func (b *Bridge) PublishStatus(ctx context.Context) error {
	return b.publishJSON(ctx, b.StatusTopic(), b.status.Status())
}

// PublishRoutes publishes the routing table, retained.
func (b *Bridge) PublishRoutes(ctx context.Context) error {
	data, err := json.Marshal(b.sink.Table())
	if err != nil {
		return err
	}
	return b.client.PublishWithRetain(ctx, b.RoutesTopic(), string(data), true)
}

func (b *Bridge) publishJSON(ctx context.Context, topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}
	return b.client.Publish(ctx, topic, string(data))
}

func (b *Bridge) onMessage(topic string, payload []byte) {
	if err := b.HandleMessage(topic, payload); err != nil {
		b.log.Warn("dropping invalid event",
			logger.String("topic", topic),
			logger.Error(err))
		return
	}

	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()
	if err := b.PublishRoutes(ctx); err != nil {
		b.log.Debug("routes publish failed", logger.Error(err))
	}
}

// HandleMessage decodes an event payload and forwards it to the sink.
func (b *Bridge) HandleMessage(topic string, payload []byte) error {
	event, ok := strings.CutPrefix(topic, b.topic+"/events/")
	if !ok {
		return errors.Newf("unexpected topic %q", topic).
			Component("mqtt").
			Category(errors.CategoryValidation).
			Build()
	}
	err := b.handleEvent(event, payload)
	b.metrics.RecordEvent(event, err)
	return err
}

func (b *Bridge) handleEvent(event string, payload []byte) error {
	switch event {
	case EventBluetooth:
		var ev struct {
			Connected bool `json:"connected"`
		}
		if err := decode(payload, &ev); err != nil {
			return err
		}
		b.sink.OnBluetoothHeadsetConnectStatusChange(ev.Connected)
	case EventHeadset:
		var ev devices.HeadsetPlugEvent
		if err := decode(payload, &ev); err != nil {
			return err
		}
		b.sink.HandleHeadsetPlug(ev)
	case EventSco:
		var ev devices.ScoStateEvent
		if err := decode(payload, &ev); err != nil {
			return err
		}
		b.sink.HandleScoState(ev)
	case EventNoisy:
		b.mu.Lock()
		ctx := b.ctx
		b.mu.Unlock()
		b.sink.HandleNoisy(ctx)
	case EventProximity:
		var ev struct {
			Near bool `json:"near"`
		}
		if err := decode(payload, &ev); err != nil {
			return err
		}
		b.sink.HandleProximity(ev.Near)
	default:
		return errors.Newf("unknown event %q", event).
			Component("mqtt").
			Category(errors.CategoryValidation).
			Build()
	}

	b.log.Debug("event handled", logger.String("event", event))
	return nil
}

func decode(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// Package events publishes view transitions to Kafka.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/jonboulle/clockwork"

	"github.com/mohammed-shakir/civic-choropleth/internal/core/observability"
	"github.com/mohammed-shakir/civic-choropleth/internal/view"
)

const KindViewTransition = "view_transition"

type Event struct {
	Kind string     `json:"kind"`
	From view.State `json:"from"`
	To   view.State `json:"to"`
	TS   time.Time  `json:"ts"`
}

// Publisher queues events in memory and forwards them to an async producer.
// A full queue drops events rather than blocking the caller.
type Publisher struct {
	topic   string
	log     *slog.Logger
	prod    sarama.AsyncProducer
	events  chan Event
	stopped chan struct{}
	errDone chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewPublisher(brokers []string, topic string, queueSize int, logger *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("events: create async producer: %w", err)
	}
	return NewWithProducer(prod, topic, queueSize, logger), nil
}

// NewWithProducer wraps an existing producer; the publisher owns it from here on.
func NewWithProducer(prod sarama.AsyncProducer, topic string, queueSize int, logger *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		topic:   topic,
		log:     logger,
		prod:    prod,
		events:  make(chan Event, queueSize),
		stopped: make(chan struct{}),
		errDone: make(chan struct{}),
	}
	go p.pump()
	go p.drainErrors()
	return p
}

func (p *Publisher) pump() {
	defer close(p.stopped)
	for ev := range p.events {
		b, err := json.Marshal(ev)
		if err != nil {
			observability.IncEvent("marshal_error")
			p.log.Warn("events: marshal", "err", err)
			continue
		}
		msg := &sarama.ProducerMessage{Topic: p.topic, Value: sarama.ByteEncoder(b)}
		if ev.To.State != "" {
			msg.Key = sarama.StringEncoder(ev.To.State)
		}
		p.prod.Input() <- msg
		observability.IncEvent("sent")
	}
}

func (p *Publisher) drainErrors() {
	defer close(p.errDone)
	for err := range p.prod.Errors() {
		if err != nil {
			observability.IncEvent("failed")
			p.log.Warn("events: producer error", "err", err.Err, "topic", err.Msg.Topic)
		}
	}
}

// Publish enqueues ev and reports whether it was accepted.
func (p *Publisher) Publish(ev Event) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		observability.IncEvent("dropped")
		return false
	}
	select {
	case p.events <- ev:
		return true
	default:
		observability.IncEvent("dropped")
		return false
	}
}

// Listener adapts the publisher to view transitions.
func (p *Publisher) Listener(clock clockwork.Clock) view.Listener {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return func(prev, next view.State) {
		p.Publish(Event{Kind: KindViewTransition, From: prev, To: next, TS: clock.Now().UTC()})
	}
}

// Close flushes queued events and closes the producer. It is safe to call twice.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	<-p.stopped
	err := p.prod.Close()
	<-p.errDone
	if err != nil {
		return fmt.Errorf("events: close producer: %w", err)
	}
	return nil
}

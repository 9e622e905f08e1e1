package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	skafka "github.com/segmentio/kafka-go"
)

const (
	OrderCreated       = "order.created"
	OrderStatusChanged = "order.status_changed"
	OrderCancelled     = "order.cancelled"
	OrderPaid          = "order.paid"
)

// OrderEvent is the payload published for every order lifecycle change.
type OrderEvent struct {
	Type        string    `json:"type"`
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	UserID      string    `json:"userId"`
	Status      string    `json:"status"`
	PrevStatus  string    `json:"prevStatus,omitempty"`
	TotalPrice  float64   `json:"totalPrice"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// Writer defines the subset of segmentio kafka.Writer we need.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// Publisher is what handlers publish order events through.
type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
	Close() error
}

type KafkaProducer struct {
	writer Writer

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// backgroundRunner is implemented by publishers that track their own
// background sends so Close can drain them.
type backgroundRunner interface {
	runInBackground(fn func()) bool
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := &skafka.Writer{
		Addr:                   skafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &skafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}
	return &KafkaProducer{writer: w}
}

// NewKafkaProducerWithWriter allows injecting a test writer.
func NewKafkaProducerWithWriter(w Writer) *KafkaProducer {
	return &KafkaProducer{writer: w}
}

// Publish marshals the value to JSON and writes it keyed by key, so events of
// one order land on one partition in order.
func (p *KafkaProducer) Publish(ctx context.Context, key string, value interface{}) error {
	b, err := json.Marshal(value)
	if err != nil {
		log.Println("[EVENTS] [ERROR] marshal:", err)
		return err
	}
	msg := skafka.Message{Key: []byte(key), Value: b}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Println("[EVENTS] [ERROR] kafka write:", err)
		return err
	}
	return nil
}

// runInBackground starts fn unless the producer is closing.
func (p *KafkaProducer) runInBackground(fn func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		fn()
	}()
	return true
}

// Close stops accepting background sends, waits for the in-flight ones and
// then closes the writer.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.inflight.Wait()
	return p.writer.Close()
}

type noopPublisher struct{}

// NewNoopPublisher drops every event; used when no brokers are configured.
func NewNoopPublisher() Publisher { return noopPublisher{} }

func (noopPublisher) Publish(context.Context, string, interface{}) error { return nil }
func (noopPublisher) Close() error                                      { return nil }

// PublishOrderEvent sends an order event in the background so a slow broker
// never holds up the HTTP response. Failures are logged.
func PublishOrderEvent(p Publisher, event OrderEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	send := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.Publish(ctx, event.OrderID, event); err != nil {
			log.Printf("[EVENTS] [WARN] %s for order %s not published: %v", event.Type, event.OrderID, err)
		}
	}

	if runner, ok := p.(backgroundRunner); ok {
		if !runner.runInBackground(send) {
			log.Printf("[EVENTS] [WARN] %s for order %s dropped: publisher closed", event.Type, event.OrderID)
		}
		return
	}
	go send()
}

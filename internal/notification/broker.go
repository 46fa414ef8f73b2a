package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
)

const reconnectInterval = 10 * time.Second

var ErrPublisherClosed = errors.New("publisher is closed")

// AMQPPublisher publishes notifications to a RabbitMQ topic exchange with the
// routing key "notification.<type>"
type AMQPPublisher struct {
	url      string
	exchange string
	log      *slog.Logger

	mu           sync.Mutex
	conn         *amqp.Connection
	ch           *amqp.Channel
	reconnecting bool

	// done is closed by Close; reconnect attempts stop once it is
	done      chan struct{}
	closeOnce sync.Once
}

func NewAMQPPublisher(url, exchange string, log *slog.Logger) (*AMQPPublisher, error) {
	p := &AMQPPublisher{url: url, exchange: exchange, log: log, done: make(chan struct{})}
	if err := p.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	return p, nil
}

func (p *AMQPPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}

	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed() {
		conn.Close()
		return ErrPublisherClosed
	}
	p.conn = conn
	p.ch = ch
	return nil
}

func (p *AMQPPublisher) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *AMQPPublisher) Name() string { return "amqp" }

func (p *AMQPPublisher) Deliver(ctx context.Context, n Notification) error {
	if p.closed() {
		return ErrPublisherClosed
	}

	p.mu.Lock()
	conn, ch := p.conn, p.ch
	p.mu.Unlock()

	if conn == nil || conn.IsClosed() || ch == nil || ch.IsClosed() {
		go p.reconnect()
		return errors.New("rabbitmq connection is closed")
	}

	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	return ch.PublishWithContext(ctx, p.exchange, "notification."+string(n.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.ID.String(),
		Timestamp:    n.CreatedAt,
		Body:         body,
	})
}

func (p *AMQPPublisher) reconnect() {
	p.mu.Lock()
	if p.reconnecting {
		p.mu.Unlock()
		return
	}
	p.reconnecting = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.reconnecting = false
		p.mu.Unlock()
	}()

	t := time.NewTicker(reconnectInterval)
	defer t.Stop()

	for attempt := 1; attempt <= 6; attempt++ {
		select {
		case <-t.C:
		case <-p.done:
			return
		}

		err := p.connect()
		if err == nil {
			p.log.Info("rabbitmq reconnected", "attempt", attempt)
			return
		}
		if errors.Is(err, ErrPublisherClosed) {
			return
		}
		p.log.Warn("rabbitmq reconnect failed", "attempt", attempt)
	}
}

func (p *AMQPPublisher) Close() error {
	p.closeOnce.Do(func() { close(p.done) })

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil && !p.ch.IsClosed() {
		if err := p.ch.Close(); err != nil {
			return fmt.Errorf("close rabbitmq channel: %w", err)
		}
	}
	if p.conn != nil && !p.conn.IsClosed() {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}

// KafkaPublisher writes notifications to a topic keyed by recipient, so one
// user's notifications stay ordered within a partition
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w}
}

func (k *KafkaPublisher) Name() string { return "kafka" }

func (k *KafkaPublisher) Deliver(ctx context.Context, n Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(n.UserID.String()), Value: b})
}

func (k *KafkaPublisher) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

package eventqueue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/hookhub/relay/internal/models"
	"github.com/rabbitmq/amqp091-go"
)

type RabbitMQConfig struct {
	ServerURL string
	Exchange  string
	Queue     string
}

const (
	DefaultRabbitMQExchange = "relay"
	DefaultRabbitMQQueue    = "relay.delivery"
)

func (c *RabbitMQConfig) validate() error {
	if c.ServerURL == "" {
		return errors.New("RabbitMQ server URL is not set")
	}
	if c.Exchange == "" {
		return errors.New("RabbitMQ exchange is not set")
	}
	if c.Queue == "" {
		return errors.New("RabbitMQ queue is not set")
	}
	return nil
}

// RabbitMQQueue is a durable event buffer on a RabbitMQ topic exchange.
// Messages are acked on dequeue; the event store remains the source of
// truth, so a message lost between dequeue and completion is recovered by
// the startup scan.
type RabbitMQQueue struct {
	config *RabbitMQConfig

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

var _ Queue = (*RabbitMQQueue)(nil)

func NewRabbitMQQueue(config *RabbitMQConfig) *RabbitMQQueue {
	return &RabbitMQQueue{config: config}
}

func (q *RabbitMQQueue) Init(ctx context.Context) (func(), error) {
	conn, err := amqp091.Dial(q.config.ServerURL)
	if err != nil {
		return nil, err
	}
	if err := q.declareInfrastructure(conn); err != nil {
		conn.Close()
		return nil, err
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	q.mu.Lock()
	q.conn = conn
	q.channel = channel
	q.mu.Unlock()

	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.channel != nil {
			q.channel.Close()
			q.channel = nil
		}
		if q.conn != nil {
			q.conn.Close()
			q.conn = nil
		}
	}, nil
}

func (q *RabbitMQQueue) declareInfrastructure(conn *amqp091.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	err = ch.ExchangeDeclare(
		q.config.Exchange, // name
		"topic",           // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	)
	if err != nil {
		return err
	}
	queue, err := ch.QueueDeclare(
		q.config.Queue, // name
		true,           // durable
		false,          // delete when unused
		false,          // exclusive
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return err
	}
	return ch.QueueBind(
		queue.Name,        // queue name
		"",                // routing key
		q.config.Exchange, // exchange
		false,
		nil,
	)
}

func (q *RabbitMQQueue) Enqueue(ctx context.Context, event *models.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.channel == nil {
		return ErrQueueClosed
	}
	return q.channel.PublishWithContext(ctx,
		q.config.Exchange, // exchange
		"",                // routing key
		false,             // mandatory
		false,             // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    event.ID,
			Body:         body,
		},
	)
}

func (q *RabbitMQQueue) Dequeue(ctx context.Context) (*models.Event, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.channel == nil {
		return nil, false, ErrQueueClosed
	}

	delivery, ok, err := q.channel.Get(q.config.Queue, true)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	event := &models.Event{}
	if err := json.Unmarshal(delivery.Body, event); err != nil {
		return nil, false, err
	}
	return event, true, nil
}

func (q *RabbitMQQueue) IsEmpty(ctx context.Context) (bool, error) {
	size, err := q.Size(ctx)
	if err != nil {
		return false, err
	}
	return size == 0, nil
}

func (q *RabbitMQQueue) Size(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.channel == nil {
		return 0, ErrQueueClosed
	}

	queue, err := q.channel.QueueInspect(q.config.Queue)
	if err != nil {
		return 0, err
	}
	return int64(queue.Messages), nil
}

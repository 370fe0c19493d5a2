package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher sends events to RabbitMQ.  A connection is dialed per publish;
// reset emails are rare enough that a pooled channel is not worth its
// reconnect handling.
type Publisher struct {
	url string
	log *zap.SugaredLogger
}

func NewPublisher(url string, log *zap.SugaredLogger) *Publisher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Publisher{url: url, log: log}
}

// PublishEmailRequested publishes ev to the auth.email queue as a
// persistent JSON message.  Errors are logged and returned so the caller
// can decide whether to ignore them.
func (p *Publisher) PublishEmailRequested(ctx context.Context, ev EmailRequestedEvent) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Warnw("rabbitmq: dial failed", "error", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warnw("rabbitmq: channel open failed", "error", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Idempotent; durable so messages survive broker restarts.
	if _, err := declareEmailQueue(ch); err != nil {
		p.log.Warnw("rabbitmq: queue declare failed", "error", err)
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",             // default exchange
		EmailQueueName, // routing key = queue name
		false,          // mandatory
		false,          // immediate
		pub,
	); err != nil {
		p.log.Warnw("rabbitmq: publish failed", "error", err)
		return err
	}
	p.log.Debugw("email request published", "template", ev.Template, "user_id", ev.UserID)
	return nil
}

func declareEmailQueue(ch *amqp.Channel) (amqp.Queue, error) {
	return ch.QueueDeclare(
		EmailQueueName, // name
		true,           // durable
		false,          // autoDelete
		false,          // exclusive
		false,          // noWait
		nil,            // args
	)
}

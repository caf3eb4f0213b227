// Package mq publishes membership events for downstream consumers
// (gamification scoring, activity feeds). Delivery is best-effort: publish
// failures are logged, never surfaced to the presence path.
package mq

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hackhub/presence-service/internal/engine"

	"github.com/rabbitmq/amqp091-go"
)

type Publisher struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	queue   string
	log     *slog.Logger
}

// NewPublisher dials the broker and declares a durable queue.
func NewPublisher(url, queue string, log *slog.Logger) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if log == nil {
		log = slog.Default()
	}
	return &Publisher{conn: conn, channel: ch, queue: queue, log: log}, nil
}

// MembershipChanged publishes a join/leave event. Waits up to 5 seconds for
// the broker to accept it; otherwise the error is logged and the event lost.
func (p *Publisher) MembershipChanged(ev engine.FeedEvent) {
	raw, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("encode feed event failed", "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(
		ctx,
		"",
		p.queue,
		false,
		false,
		amqp091.Publishing{
			Body:        raw,
			ContentType: "application/json",
		},
	)
	if err != nil {
		p.log.Warn("publish feed event failed",
			"action", ev.Action, "room", ev.RoomID, "err", err)
	}
}

func (p *Publisher) Close() {
	_ = p.channel.Close()
	_ = p.conn.Close()
}

// Package service holds the shareable manager and the RabbitMQ publisher it
// uses to answer clients.
package service

import (
    "context"
    "encoding/json"
    "fmt"
    "log"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/shareables/internal/config"
    q "github.com/iliyamo/shareables/internal/queue"
)

// Publisher sends client responses and object events to RabbitMQ.  The
// connection is opened on first use and re-opened after a failure.
type Publisher struct {
    cfg  config.QueueConfig
    mu   sync.Mutex
    conn *amqp.Connection
    ch   *amqp.Channel
}

func NewPublisher(cfg config.QueueConfig) *Publisher {
    return &Publisher{cfg: cfg}
}

// Send publishes resp for client on the client exchange, routed by client id.
func (p *Publisher) Send(ctx context.Context, client string, resp q.Response) error {
    return p.publish(ctx, p.cfg.ClientExchange, client, q.ClientMessage{Client: client, Response: resp})
}

// PublishObjectCreated announces a newly stored object on the object queue.
func (p *Publisher) PublishObjectCreated(ctx context.Context, ev q.ObjectCreatedEvent) error {
    return p.publish(ctx, "", p.cfg.ObjectQueue, ev)
}

func (p *Publisher) publish(ctx context.Context, exchange, key string, payload any) error {
    body, err := json.Marshal(payload)
    if err != nil {
        log.Printf("rabbitmq: marshal event failed: %v", err)
        return err
    }
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }

    ctx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
    defer cancel()

    p.mu.Lock()
    defer p.mu.Unlock()
    ch, err := p.channel()
    if err != nil {
        log.Printf("rabbitmq: channel unavailable: %v", err)
        return err
    }
    if err := ch.PublishWithContext(ctx, exchange, key, false, false, pub); err != nil {
        log.Printf("rabbitmq: publish to %q/%q failed: %v", exchange, key, err)
        p.reset()
        return err
    }
    return nil
}

// channel returns the open channel, dialing and declaring topology when
// needed.  Callers hold p.mu.
func (p *Publisher) channel() (*amqp.Channel, error) {
    if p.ch != nil && !p.ch.IsClosed() {
        return p.ch, nil
    }
    p.reset()
    conn, err := amqp.Dial(p.cfg.URL)
    if err != nil {
        return nil, fmt.Errorf("dial: %w", err)
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return nil, fmt.Errorf("channel open: %w", err)
    }
    // Durable so messages survive broker restarts.
    if err := ch.ExchangeDeclare(p.cfg.ClientExchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
        _ = conn.Close()
        return nil, fmt.Errorf("exchange declare: %w", err)
    }
    if _, err := ch.QueueDeclare(p.cfg.ObjectQueue, true, false, false, false, nil); err != nil {
        _ = conn.Close()
        return nil, fmt.Errorf("queue declare: %w", err)
    }
    p.conn, p.ch = conn, ch
    return ch, nil
}

func (p *Publisher) reset() {
    if p.ch != nil {
        _ = p.ch.Close()
    }
    if p.conn != nil {
        _ = p.conn.Close()
    }
    p.conn, p.ch = nil, nil
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.reset()
    return nil
}

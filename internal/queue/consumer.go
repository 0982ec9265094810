package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/shareables/internal/config"
)

// ReserveHandler processes reservation requests.
type ReserveHandler interface {
    HandleReserve(ctx context.Context, ev ReserveEvent) error
}

// ObjectHandler reacts to object creation.
type ObjectHandler interface {
    ObjectCreated(ctx context.Context, ev ObjectCreatedEvent) error
}

// Consumer reads the reserve and object-created queues and dispatches each
// message.  Messages are acked once handled; failures are logged and
// rejected without requeue so a poison message cannot loop.
type Consumer struct {
    cfg      config.QueueConfig
    reserve  ReserveHandler
    objects  ObjectHandler
    dial     func(url string) (*amqp.Connection, error)
}

func NewConsumer(cfg config.QueueConfig, reserve ReserveHandler, objects ObjectHandler) *Consumer {
    return &Consumer{cfg: cfg, reserve: reserve, objects: objects, dial: amqp.Dial}
}

// Run connects to the broker and consumes until ctx is cancelled.  Lost
// connections are re-established with exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return ctx.Err()
        }
        conn, err := c.dial(c.cfg.URL)
        if err != nil {
            log.Printf("reserve-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.Printf("reserve-consumer: consume loop ended: %v; reconnecting", err)
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
        log.Printf("reserve-consumer: set QoS failed: %v", err)
    }

    reserveMsgs, err := declareAndConsume(ch, c.cfg.ReserveQueue)
    if err != nil {
        return err
    }
    objectMsgs, err := declareAndConsume(ch, c.cfg.ObjectQueue)
    if err != nil {
        return err
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-reserveMsgs:
            if !ok {
                return errors.New("reserve deliveries channel closed")
            }
            settle(d, c.handle(ctx, c.cfg.ReserveQueue, d.Body))
        case d, ok := <-objectMsgs:
            if !ok {
                return errors.New("object deliveries channel closed")
            }
            settle(d, c.handle(ctx, c.cfg.ObjectQueue, d.Body))
        }
    }
}

func declareAndConsume(ch *amqp.Channel, queue string) (<-chan amqp.Delivery, error) {
    if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
        return nil, fmt.Errorf("queue declare %s: %w", queue, err)
    }
    msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
    if err != nil {
        return nil, fmt.Errorf("queue consume %s: %w", queue, err)
    }
    return msgs, nil
}

func settle(d amqp.Delivery, err error) {
    if err != nil {
        log.Printf("reserve-consumer: handle message failed: %v", err)
        _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
        return
    }
    _ = d.Ack(false)
}

// handle decodes body according to the queue it came from and dispatches it.
func (c *Consumer) handle(ctx context.Context, queue string, body []byte) error {
    switch queue {
    case c.cfg.ReserveQueue:
        var ev ReserveEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return fmt.Errorf("%w: %v", ErrMalformed, err)
        }
        if err := ev.Validate(); err != nil {
            return err
        }
        return c.reserve.HandleReserve(ctx, ev)
    case c.cfg.ObjectQueue:
        var ev ObjectCreatedEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return fmt.Errorf("%w: %v", ErrMalformed, err)
        }
        if ev.Schema == "" {
            return &MissingFieldsError{Fields: []string{"schema"}}
        }
        return c.objects.ObjectCreated(ctx, ev)
    }
    return fmt.Errorf("no handler for queue %q", queue)
}

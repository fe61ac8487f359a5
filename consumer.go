package amqp091

import (
	"context"
	"sync"
)

// Consumer is a registered subscription to a queue. The receiver state
// machine pushes completed deliveries into the consumer's mailbox
// without blocking; callers drain it with Next.
type Consumer struct {
	tag   string
	queue string

	channelID uint16
	rpc       rpcHandle

	mu       sync.Mutex
	buf      []Delivery
	signal   chan struct{}
	done     chan struct{}
	closed   bool
	closeErr error
}

func newConsumer(tag, queue string, channelID uint16, rpc rpcHandle) *Consumer {
	return &Consumer{
		tag:       tag,
		queue:     queue,
		channelID: channelID,
		rpc:       rpc,
		signal:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Tag returns the consumer tag.
func (c *Consumer) Tag() string { return c.tag }

// Queue returns the queue this consumer subscribes to.
func (c *Consumer) Queue() string { return c.queue }

// push enqueues a delivery into the mailbox. It never blocks; the I/O
// loop calls it from dispatch.
func (c *Consumer) push(d Delivery) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.buf = append(c.buf, d)
	c.mu.Unlock()
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

// Next returns the next delivery, blocking until one arrives, the
// consumer terminates, or ctx is done. Buffered deliveries remain
// readable after termination.
func (c *Consumer) Next(ctx context.Context) (Delivery, error) {
	for {
		c.mu.Lock()
		if len(c.buf) > 0 {
			d := c.buf[0]
			c.buf = c.buf[1:]
			c.mu.Unlock()
			return d, nil
		}
		if c.closed {
			err := c.closeErr
			c.mu.Unlock()
			return Delivery{}, err
		}
		c.mu.Unlock()

		select {
		case <-c.signal:
		case <-c.done:
		case <-ctx.Done():
			return Delivery{}, ctx.Err()
		}
	}
}

// Cancel requests a basic.cancel for this consumer through the internal
// command bus. It returns immediately; the mailbox terminates once the
// cancel-ok round trip completes.
func (c *Consumer) Cancel() {
	c.rpc.cancelConsumer(c.channelID, c.tag)
}

// close terminates the mailbox. Subsequent Next calls observe err once
// the buffer drains.
func (c *Consumer) close(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = err
	c.mu.Unlock()
	close(c.done)
}

package messagequeue

import (
	"context"
	"sync"
)

type memoryMessage struct {
	body        []byte
	redelivered bool
}

// MemoryQueue is an in-process MessageQueue with the same redelivery rule as
// RabbitMQService. Queues are unbounded.
type MemoryQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queues map[string][]memoryMessage
	closed bool
}

func NewMemoryQueue() *MemoryQueue {
	q := &MemoryQueue{queues: make(map[string][]memoryMessage)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *MemoryQueue) Publish(ctx context.Context, queueName string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.push(queueName, memoryMessage{body: append([]byte(nil), body...)})
	return nil
}

func (q *MemoryQueue) push(queueName string, m memoryMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queues[queueName] = append(q.queues[queueName], m)
	q.cond.Broadcast()
}

// Len returns the number of messages waiting in queueName.
func (q *MemoryQueue) Len(queueName string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[queueName])
}

func (q *MemoryQueue) Consume(ctx context.Context, queueName string, handler Handler) error {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	for {
		m, err := q.next(ctx, queueName)
		if err != nil {
			return err
		}
		if m == nil {
			return nil
		}
		if err := handler(ctx, m.body); err != nil && !m.redelivered {
			q.push(queueName, memoryMessage{body: m.body, redelivered: true})
		}
	}
}

// next blocks for a message. It returns nil, nil once ctx is done.
func (q *MemoryQueue) next(ctx context.Context, queueName string) (*memoryMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.queues[queueName]) == 0 {
		if q.closed {
			return nil, ErrClosed
		}
		if ctx.Err() != nil {
			return nil, nil
		}
		q.cond.Wait()
	}
	if ctx.Err() != nil {
		return nil, nil
	}
	m := q.queues[queueName][0]
	q.queues[queueName] = q.queues[queueName][1:]
	return &m, nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	return nil
}

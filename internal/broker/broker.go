// Package broker provides an in-memory, topic-keyed, one-shot pub/sub bus.
// It is used to hold long-poll requests open until a room's state changes.
package broker

import (
	"context"
	"sync"
)

// Handler receives the payload of the publish it was registered for.
type Handler func(payload any)

// Subscription identifies a single Once registration so it can be removed.
type Subscription uint64

// Bus is a process-wide notification hub. Every handler fires at most once:
// Publish takes and clears the topic's handlers in one critical section, so a
// handler registered concurrently with a publish is either part of that
// publish or waits for the next one.
type Bus struct {
	mu     sync.Mutex
	next   Subscription
	topics map[string]map[Subscription]Handler
}

// New creates a ready-to-use Bus.
func New() *Bus {
	return &Bus{
		topics: make(map[string]map[Subscription]Handler),
	}
}

// DeviceTopic is the topic a room's playback device polls on.
func DeviceTopic(roomKey string) string {
	return "poll:" + roomKey
}

// ClientTopic is the topic clients wait on for queue state diffs.
func ClientTopic(roomKey string) string {
	return "client:" + roomKey
}

// Once registers h for the next Publish on topic. The handler is removed
// automatically after it fires.
func (b *Bus) Once(topic string, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	id := b.next
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[Subscription]Handler)
	}
	b.topics[topic][id] = h
	return id
}

// RemoveListener deregisters a pending handler. It reports false when the
// handler already fired or was removed before.
func (b *Bus) RemoveListener(topic string, sub Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	handlers, ok := b.topics[topic]
	if !ok {
		return false
	}
	if _, ok := handlers[sub]; !ok {
		return false
	}
	delete(handlers, sub)
	if len(handlers) == 0 {
		delete(b.topics, topic)
	}
	return true
}

// Publish invokes and deregisters every handler currently waiting on topic and
// returns how many were invoked. With no handlers the payload is dropped.
// Handlers run on the caller's goroutine after the lock is released.
func (b *Bus) Publish(topic string, payload any) int {
	b.mu.Lock()
	handlers := b.topics[topic]
	delete(b.topics, topic)
	b.mu.Unlock()

	for _, h := range handlers {
		h(payload)
	}
	return len(handlers)
}

// Listeners returns the number of handlers pending on topic.
func (b *Bus) Listeners(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

// Wait blocks until the next Publish on topic or until ctx is done. On
// cancellation the handler is deregistered and ctx.Err() is returned. A
// payload that is itself an error is returned as the error.
func (b *Bus) Wait(ctx context.Context, topic string) (any, error) {
	ch, sub := b.Register(topic)
	return b.Await(ctx, topic, sub, ch)
}

// Register is the first half of Wait. It is split out so callers can register
// while holding their own lock and block after releasing it.
func (b *Bus) Register(topic string) (<-chan any, Subscription) {
	ch := make(chan any, 1)
	sub := b.Once(topic, func(payload any) {
		ch <- payload
	})
	return ch, sub
}

// Await blocks on a channel obtained from Register.
func (b *Bus) Await(ctx context.Context, topic string, sub Subscription, ch <-chan any) (any, error) {
	select {
	case payload := <-ch:
		if err, ok := payload.(error); ok {
			return nil, err
		}
		return payload, nil
	case <-ctx.Done():
		b.RemoveListener(topic, sub)
		return nil, ctx.Err()
	}
}

package broker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestOnceAndPublish(t *testing.T) {
	b := New()
	got := make(chan any, 1)
	b.Once("poll:room1", func(p any) { got <- p })

	if n := b.Publish("poll:room1", "payload"); n != 1 {
		t.Fatalf("Publish() invoked %d handlers, want 1", n)
	}

	select {
	case p := <-got:
		if p != "payload" {
			t.Fatalf("payload = %v, want %q", p, "payload")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected handler to be invoked")
	}
}

func TestHandlerFiresOnlyOnce(t *testing.T) {
	b := New()
	var calls int32
	b.Once("client:room1", func(any) { atomic.AddInt32(&calls, 1) })

	b.Publish("client:room1", 1)
	if n := b.Publish("client:room1", 2); n != 0 {
		t.Fatalf("second Publish() invoked %d handlers, want 0", n)
	}

	if c := atomic.LoadInt32(&calls); c != 1 {
		t.Fatalf("handler called %d times, want 1", c)
	}
}

func TestRemoveListenerStopsDelivery(t *testing.T) {
	b := New()
	sub := b.Once("poll:room1", func(any) { t.Error("removed handler should not fire") })

	if !b.RemoveListener("poll:room1", sub) {
		t.Fatal("RemoveListener() = false, want true")
	}
	if b.RemoveListener("poll:room1", sub) {
		t.Fatal("second RemoveListener() = true, want false")
	}

	b.Publish("poll:room1", nil)
}

func TestRemoveListenerAfterFire(t *testing.T) {
	b := New()
	sub := b.Once("poll:room1", func(any) {})
	b.Publish("poll:room1", nil)

	if b.RemoveListener("poll:room1", sub) {
		t.Fatal("RemoveListener() after publish should report false")
	}
}

func TestPublishWithoutSubscribersIsDropped(t *testing.T) {
	b := New()
	b.Publish("poll:room1", "lost")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := b.Wait(ctx, "poll:room1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v, want deadline exceeded", err)
	}
}

func TestCrossTopicIsolation(t *testing.T) {
	b := New()
	b.Once("poll:room1", func(any) {})
	b.Once("poll:room2", func(any) { t.Error("room2 handler should not fire") })

	b.Publish("poll:room1", nil)

	if n := b.Listeners("poll:room2"); n != 1 {
		t.Fatalf("room2 listeners = %d, want 1", n)
	}
}

func TestRemoveLastListenerCleansUpTopic(t *testing.T) {
	b := New()
	sub := b.Once("poll:room1", func(any) {})
	b.RemoveListener("poll:room1", sub)

	b.mu.Lock()
	_, exists := b.topics["poll:room1"]
	b.mu.Unlock()

	if exists {
		t.Fatal("expected topic entry to be removed after last listener")
	}
}

func TestWaitReceivesPayload(t *testing.T) {
	b := New()
	done := make(chan any, 1)

	go func() {
		p, err := b.Wait(context.Background(), "client:room1")
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
		done <- p
	}()

	waitForListeners(t, b, "client:room1", 1)
	b.Publish("client:room1", 42)

	select {
	case p := <-done:
		if p != 42 {
			t.Fatalf("payload = %v, want 42", p)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was not resolved")
	}
}

func TestWaitCancellationDeregisters(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() {
		_, err := b.Wait(ctx, "poll:room1")
		errCh <- err
	}()

	waitForListeners(t, b, "poll:room1", 1)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Wait() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled waiter did not return")
	}

	if n := b.Listeners("poll:room1"); n != 0 {
		t.Fatalf("listeners after cancel = %d, want 0", n)
	}
}

func TestWaitReturnsPublishedError(t *testing.T) {
	b := New()
	closed := errors.New("room closed")
	errCh := make(chan error, 1)

	go func() {
		_, err := b.Wait(context.Background(), "poll:room1")
		errCh <- err
	}()

	waitForListeners(t, b, "poll:room1", 1)
	b.Publish("poll:room1", closed)

	if err := <-errCh; !errors.Is(err, closed) {
		t.Fatalf("Wait() error = %v, want %v", err, closed)
	}
}

func TestConcurrentOnceAndPublish(t *testing.T) {
	b := New()
	var delivered, registered int64
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			atomic.AddInt64(&registered, 1)
			b.Once("poll:room1", func(any) { atomic.AddInt64(&delivered, 1) })
		}()
		go func() {
			defer wg.Done()
			b.Publish("poll:room1", nil)
		}()
	}
	wg.Wait()

	// Whatever the interleaving, every handler is either delivered exactly
	// once or still pending.
	pending := int64(b.Listeners("poll:room1"))
	if delivered+pending != registered {
		t.Fatalf("delivered %d + pending %d != registered %d", delivered, pending, registered)
	}
}

func waitForListeners(t *testing.T, b *Bus, topic string, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for b.Listeners(topic) != n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d listeners on %s", n, topic)
		}
		time.Sleep(time.Millisecond)
	}
}

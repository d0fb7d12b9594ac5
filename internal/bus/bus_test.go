package bus

import (
	"testing"
	"time"
)

func TestPublish_FanOutToMultipleSubscribers(t *testing.T) {
	b := New()
	ch1 := b.Subscribe()
	ch2 := b.Subscribe()

	b.Publish(Event{Type: EventScanProgress, At: time.Now(), Payload: &ScanProgressPayload{Added: 1}})

	for _, ch := range []chan Event{ch1, ch2} {
		select {
		case evt := <-ch:
			if evt.Type != EventScanProgress {
				t.Fatalf("expected scan_progress, got %s", evt.Type)
			}
			if evt.ID == "" {
				t.Fatalf("expected auto-assigned id")
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	b := New()
	ch := b.Subscribe()
	b.Unsubscribe(ch)

	_, ok := <-ch
	if ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestPublish_NeverBlocksOnFullSubscriber(t *testing.T) {
	b := New()
	ch := b.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish(Event{Type: EventEncodingProgress})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a non-draining subscriber")
	}
	_ = ch
}

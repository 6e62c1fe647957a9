package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/p-n-ai/praxis/internal/notify"
	"github.com/p-n-ai/praxis/internal/platform/cache/cachetest"
)

func TestGateway_PublishBroadcasts(t *testing.T) {
	gw := notify.NewGateway()
	a, b := &notify.MockChannel{}, &notify.MockChannel{}
	gw.Register("a", a)
	gw.Register("b", b)

	n := notify.Notification{ID: "n1", Kind: notify.KindAnnouncement, Title: "Exam moved"}
	if err := gw.Publish(context.Background(), n); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(a.Sent()) != 1 || len(b.Sent()) != 1 {
		t.Errorf("sent = %d/%d, want 1/1", len(a.Sent()), len(b.Sent()))
	}
}

func TestGateway_PublishJoinsErrors(t *testing.T) {
	gw := notify.NewGateway()
	boom := errors.New("boom")
	ok := &notify.MockChannel{}
	gw.Register("broken", &notify.MockChannel{Err: boom})
	gw.Register("ok", ok)

	err := gw.Publish(context.Background(), notify.Notification{ID: "n1"})
	if !errors.Is(err, boom) {
		t.Fatalf("Publish() error = %v, want boom", err)
	}
	if len(ok.Sent()) != 1 {
		t.Error("healthy channel should still receive the notification")
	}
}

func TestHub_FanOutAndDedup(t *testing.T) {
	hub := notify.NewHub()
	ch1, cancel1 := hub.Subscribe(4)
	ch2, cancel2 := hub.Subscribe(4)
	defer cancel2()

	n := notify.Notification{ID: "a1", Title: "Hello"}
	_ = hub.Publish(context.Background(), n)
	_ = hub.Publish(context.Background(), n)

	for _, ch := range []<-chan notify.Notification{ch1, ch2} {
		select {
		case got := <-ch:
			if got.ID != "a1" {
				t.Errorf("got %q, want a1", got.ID)
			}
		default:
			t.Fatal("subscriber did not receive notification")
		}
		select {
		case dup := <-ch:
			t.Errorf("duplicate delivered: %+v", dup)
		default:
		}
	}

	cancel1()
	cancel1()
	if hub.Subscribers() != 1 {
		t.Errorf("Subscribers() = %d, want 1", hub.Subscribers())
	}
	if _, open := <-ch1; open {
		t.Error("canceled subscription should be closed")
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := notify.NewHub()
	_, cancel := hub.Subscribe(0)
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = hub.Publish(context.Background(), notify.Notification{ID: "x"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestRedisChannel_Relay(t *testing.T) {
	client := cachetest.NewClient(t)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	rc := notify.NewRedisChannel(client, "praxis:test")
	hub := notify.NewHub()
	sub, unsub := hub.Subscribe(1)
	defer unsub()

	relayDone := make(chan error, 1)
	go func() { relayDone <- rc.Relay(ctx, hub) }()

	// The relay subscribes asynchronously; publish until it is listening.
	deadline := time.After(10 * time.Second)
	for {
		if err := rc.Publish(ctx, notify.Notification{ID: "r1", Title: "Over Redis"}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		select {
		case got := <-sub:
			if got.Title != "Over Redis" {
				t.Errorf("Title = %q", got.Title)
			}
			cancel()
			if err := <-relayDone; err != nil {
				t.Errorf("Relay() error = %v", err)
			}
			return
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("relay never delivered")
		}
	}
}

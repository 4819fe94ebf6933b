package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestLocalNotifierRoundTrip(t *testing.T) {
	n := NewLocalNotifier()

	var got []string
	cancel, err := n.Subscribe(func(path string) { got = append(got, path) })
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := n.Publish(context.Background(), "committees/unep"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(got) != 1 || got[0] != "committees/unep" {
		t.Errorf("expected one delivery, got %v", got)
	}

	cancel()
	cancel() // idempotent
	if err := n.Publish(context.Background(), "committees/who"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("delivery after cancel: %v", got)
	}
}

func TestRedisNotifierRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	n, err := NewRedisNotifier("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisNotifier failed: %v", err)
	}
	defer n.Close()

	got := make(chan string, 1)
	cancel, err := n.Subscribe(func(path string) { got <- path })
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()

	if err := n.Publish(context.Background(), "committees/unep/blocs/alpha"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case path := <-got:
		if path != "committees/unep/blocs/alpha" {
			t.Errorf("unexpected path %q", path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pub/sub delivery")
	}
}

func TestRedisNotifierBadURL(t *testing.T) {
	if _, err := NewRedisNotifier("not-a-url"); err == nil {
		t.Error("expected error for malformed redis url")
	}
}

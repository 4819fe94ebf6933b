package docstore

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Notifier fans out "this path changed" signals to every subscribed process.
// Subscribers re-read the document from the backend, so delivery only needs
// to carry the path.
type Notifier interface {
	Publish(ctx context.Context, path string) error
	Subscribe(onChange func(path string)) (CancelFunc, error)
	Close() error
}

// LocalNotifier delivers change signals within a single process.
type LocalNotifier struct {
	mu   sync.Mutex
	subs map[int]func(string)
	next int
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[int]func(string))}
}

func (n *LocalNotifier) Publish(ctx context.Context, path string) error {
	n.mu.Lock()
	listeners := make([]func(string), 0, len(n.subs))
	for _, fn := range n.subs {
		listeners = append(listeners, fn)
	}
	n.mu.Unlock()

	for _, fn := range listeners {
		fn(path)
	}
	return nil
}

func (n *LocalNotifier) Subscribe(onChange func(path string)) (CancelFunc, error) {
	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = onChange
	n.mu.Unlock()
	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}, nil
}

func (n *LocalNotifier) Close() error { return nil }

// RedisNotifier bridges change signals across processes over a Redis pub/sub
// channel. Messages are plain document paths.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

const defaultChannel = "rostrum:docstore:changes"

func NewRedisNotifier(redisURL string) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisNotifier{client: client, channel: defaultChannel}, nil
}

// NewRedisNotifierWithClient creates a notifier from an existing client.
func NewRedisNotifierWithClient(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client, channel: defaultChannel}
}

func (n *RedisNotifier) Publish(ctx context.Context, path string) error {
	if err := n.client.Publish(ctx, n.channel, path).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

func (n *RedisNotifier) Subscribe(onChange func(path string)) (CancelFunc, error) {
	pubsub := n.client.Subscribe(context.Background(), n.channel)
	if _, err := pubsub.Receive(context.Background()); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to changes: %w", err)
	}

	go func() {
		for msg := range pubsub.Channel() {
			onChange(msg.Payload)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := pubsub.Close(); err != nil {
				log.Printf("docstore: close pubsub: %v", err)
			}
		})
	}, nil
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

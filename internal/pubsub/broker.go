package pubsub

import (
	"context"
	"sync"
)

// Subscriber receives items whose topic is in Topics. An empty topic set means all topics.
type Subscriber[T any] struct {
	ID     string
	Topics map[string]bool
	C      chan T
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSubscriber creates a subscriber with a buffered channel of bufferSize
func NewSubscriber[T any](id string, topics []string, bufferSize int) *Subscriber[T] {
	ctx, cancel := context.WithCancel(context.Background())

	return &Subscriber[T]{
		ID:     id,
		Topics: topicSet(topics),
		C:      make(chan T, bufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Subscriber[T]) Close() {
	s.cancel()
	close(s.C)
}

// Done is closed when the subscriber is closed by the broker.
func (s *Subscriber[T]) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *Subscriber[T]) IsInterestedIn(topic string) bool {
	return len(s.Topics) == 0 || s.Topics[topic]
}

// Broker fans items out to subscribers by topic. Publish never blocks: items are
// dropped when the broker queue or a subscriber buffer is full.
type Broker[T any] struct {
	topicOf     func(T) string
	subscribers map[string]*Subscriber[T]
	mu          sync.RWMutex
	queue       chan T
	stopChan    chan struct{}
	running     bool
	stopped     bool
	dropped     uint64
}

// NewBroker creates a new broker that routes messages by topicOf and queues up
// to queueSize of them for distribution
func NewBroker[T any](topicOf func(T) string, queueSize int) *Broker[T] {
	return &Broker[T]{
		topicOf:     topicOf,
		subscribers: make(map[string]*Subscriber[T]),
		queue:       make(chan T, queueSize),
		stopChan:    make(chan struct{}),
	}
}

func (b *Broker[T]) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = true
	b.mu.Unlock()

	go b.distribute(ctx)
	return nil
}

func (b *Broker[T]) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}

	b.stopped = true
	b.running = false
	close(b.stopChan)

	for id, subscriber := range b.subscribers {
		subscriber.Close()
		delete(b.subscribers, id)
	}
}

// Subscribe registers id for topics, replacing an earlier subscription with the same id.
func (b *Broker[T]) Subscribe(id string, topics []string, bufferSize int) *Subscriber[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, exists := b.subscribers[id]; exists {
		existing.Close()
	}

	subscriber := NewSubscriber[T](id, topics, bufferSize)
	if b.stopped {
		subscriber.Close()
		return subscriber
	}
	b.subscribers[id] = subscriber

	return subscriber
}

func (b *Broker[T]) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscriber, exists := b.subscribers[id]; exists {
		subscriber.Close()
		delete(b.subscribers, id)
	}
}

func (b *Broker[T]) Publish(item T) {
	select {
	case b.queue <- item:
	default:
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
	}
}

func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// SubscriberCountForTopic counts subscribers that receive topic, including those
// subscribed to every topic.
func (b *Broker[T]) SubscriberCountForTopic(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, subscriber := range b.subscribers {
		if subscriber.IsInterestedIn(topic) {
			count++
		}
	}
	return count
}

// ActiveTopics lists the topics some subscriber asked for explicitly.
func (b *Broker[T]) ActiveTopics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	set := make(map[string]bool)
	for _, subscriber := range b.subscribers {
		for topic := range subscriber.Topics {
			set[topic] = true
		}
	}

	topics := make([]string, 0, len(set))
	for topic := range set {
		topics = append(topics, topic)
	}
	return topics
}

type Stats struct {
	Running     bool   `json:"running"`
	Subscribers int    `json:"subscribers"`
	Queued      int    `json:"queued"`
	Dropped     uint64 `json:"dropped"`
}

func (b *Broker[T]) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return Stats{
		Running:     b.running,
		Subscribers: len(b.subscribers),
		Queued:      len(b.queue),
		Dropped:     b.dropped,
	}
}

func (b *Broker[T]) distribute(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopChan:
			return
		case item := <-b.queue:
			b.fanOut(item)
		}
	}
}

func (b *Broker[T]) fanOut(item T) {
	topic := b.topicOf(item)

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, subscriber := range b.subscribers {
		if !subscriber.IsInterestedIn(topic) {
			continue
		}
		select {
		case subscriber.C <- item:
		default:
			b.dropped++
		}
	}
}

func topicSet(topics []string) map[string]bool {
	set := make(map[string]bool, len(topics))
	for _, topic := range topics {
		if topic != "" {
			set[topic] = true
		}
	}
	return set
}

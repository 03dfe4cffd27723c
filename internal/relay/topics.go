package relay

import (
	"context"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// Publisher sends one message and waits for the server ack.
type Publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) error
}

// Topics hands out a Publisher per topic.
type Topics interface {
	Publisher(topic string) Publisher
}

type publisherSource interface {
	Publisher(name string) *gcppubsub.Publisher
}

// GCPTopics caches one ordered Pub/Sub publisher per topic.
type GCPTopics struct {
	source publisherSource
	mu     sync.Mutex
	byName map[string]*orderedPublisher
}

func NewGCPTopics(source publisherSource) *GCPTopics {
	return &GCPTopics{source: source, byName: map[string]*orderedPublisher{}}
}

func (t *GCPTopics) Publisher(topic string) Publisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.byName[topic]; ok {
		return p
	}
	raw := t.source.Publisher(topic)
	if raw == nil {
		return nil
	}
	raw.EnableMessageOrdering = true
	p := &orderedPublisher{pub: raw}
	t.byName[topic] = p
	return p
}

// Stop flushes and stops every publisher handed out so far.
func (t *GCPTopics) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, p := range t.byName {
		p.pub.Stop()
		delete(t.byName, name)
	}
}

type orderedPublisher struct {
	pub *gcppubsub.Publisher
}

func (p *orderedPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) error {
	if _, err := p.pub.Publish(ctx, msg).Get(ctx); err != nil {
		// a failed ordered publish pauses its key until resumed
		if msg.OrderingKey != "" {
			p.pub.ResumePublish(msg.OrderingKey)
		}
		return err
	}
	return nil
}

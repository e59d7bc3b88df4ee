package gateway

import (
	"context"
	"sync"
)

type MemBroker struct {
	mu     sync.RWMutex
	subs   map[string][]chan Message
	buffer int
}

func NewMemBroker() *MemBroker {
	return &MemBroker{subs: make(map[string][]chan Message), buffer: 4096}
}

func (b *MemBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	// fanout：慢订阅者直接丢
	msg := Message{Topic: topic, Payload: payload}
	for _, ch := range b.subs[topic] {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

func (b *MemBroker) Subscribe(ctx context.Context, topics []string) (<-chan Message, error) {
	ch := make(chan Message, b.buffer)
	b.mu.Lock()
	for _, t := range topics {
		b.subs[t] = append(b.subs[t], ch)
	}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(ch, topics)
	}()
	return ch, nil
}

// unsubscribe 先从订阅表摘掉再 close，publish 持读锁，不会写已关闭的 channel
func (b *MemBroker) unsubscribe(ch chan Message, topics []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		list := b.subs[t]
		for i, c := range list {
			if c == ch {
				list = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(b.subs, t)
		} else {
			b.subs[t] = list
		}
	}
	close(ch)
}

func (b *MemBroker) Close() error { return nil }

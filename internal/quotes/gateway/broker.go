package gateway

import "context"

type Message struct {
	Topic   string
	Payload []byte
}

// Broker ticker 扇出通道：单机用内存，多机用 NATS
type Broker interface {
	// Publish at-most-once
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe ctx 结束时取消订阅并关闭返回的 channel
	Subscribe(ctx context.Context, topics []string) (<-chan Message, error)
	Close() error
}

const topicPrefix = "ticker:"

// Topic 单个 symbol 的 topic，NATS 里对应 subject ticker.BTCUSDT
func Topic(symbol string) string { return topicPrefix + symbol }

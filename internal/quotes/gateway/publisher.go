package gateway

import (
	"context"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"tickerstream.com/internal/quotes/datasource/model"
	"tickerstream.com/internal/quotes/wsmetrics"
)

const sinkBroker = "broker"

// Publisher 把缓存里刚更新的 ticker 扇出到 broker。
// Offer 在读循环里调用，只入队不阻塞；队列满了直接丢，下一次更新会覆盖。
type Publisher struct {
	broker Broker
	queue  chan model.Ticker
	log    *zap.Logger
}

func NewPublisher(b Broker, queue int, log *zap.Logger) *Publisher {
	if queue <= 0 {
		queue = 4096
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{broker: b, queue: make(chan model.Ticker, queue), log: log.Named("publisher")}
}

func (p *Publisher) Offer(t model.Ticker) {
	select {
	case p.queue <- t:
	default:
		wsmetrics.SinkDroppedTotal.WithLabelValues(sinkBroker).Inc()
	}
}

// Run 直到 ctx 结束
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-p.queue:
			p.publish(ctx, t)
		}
	}
}

func (p *Publisher) publish(ctx context.Context, t model.Ticker) {
	payload, err := json.Marshal(t)
	if err != nil {
		wsmetrics.SinkErrorsTotal.WithLabelValues(sinkBroker).Inc()
		return
	}
	if err := p.broker.Publish(ctx, Topic(t.Symbol), payload); err != nil {
		wsmetrics.SinkErrorsTotal.WithLabelValues(sinkBroker).Inc()
		p.log.Warn("broker publish failed", zap.String("symbol", t.Symbol), zap.Error(err))
		return
	}
	wsmetrics.SinkWrittenTotal.WithLabelValues(sinkBroker).Inc()
}

// Subscribe 订阅若干 symbol，解码后交给 fn，直到 ctx 结束或 broker 关闭 channel
func Subscribe(ctx context.Context, b Broker, symbols []string, fn func(model.Ticker)) error {
	topics := make([]string, 0, len(symbols))
	for _, s := range symbols {
		topics = append(topics, Topic(s))
	}
	ch, err := b.Subscribe(ctx, topics)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var t model.Ticker
			if err := json.Unmarshal(m.Payload, &t); err != nil {
				continue
			}
			fn(t)
		}
	}
}

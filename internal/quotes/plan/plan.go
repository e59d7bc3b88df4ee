// Package plan 把请求的 symbol 列表转成具体的订阅方式（多路复用 or 全市场流）。
package plan

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

type Mode string

const (
	ModeMultiplexed  Mode = "multiplexed"
	ModeAggregateAll Mode = "aggregateAll"
)

const (
	DefaultBaseURL            = "wss://stream.binance.com:9443"
	DefaultCap                = 512
	DefaultAggregateThreshold = 200

	// AllMarketStream 全市场 mini ticker，一帧推送一个数组
	AllMarketStream = "!miniTicker@arr"
	streamSuffix    = "@miniTicker"

	timeUnitParam = "timeUnit=MICROSECOND"
)

type Options struct {
	BaseURL string // e.g. wss://stream.binance.com:9443
	// Cap 单连接最多编码多少个 stream 名（自己的安全上限，和交易所限制无关）
	Cap int
	// AggregateThreshold symbol 数超过它就切全市场流，必须 < Cap
	AggregateThreshold int
	// TimeUnit 为 MICROSECOND 时要求交易所推微秒时间戳
	TimeUnit string
}

func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.Cap == 0 {
		o.Cap = DefaultCap
	}
	if o.AggregateThreshold == 0 {
		o.AggregateThreshold = DefaultAggregateThreshold
	}
	return o
}

func (o Options) Validate() error {
	o = o.withDefaults()
	if o.Cap < 0 || o.AggregateThreshold < 0 {
		return errors.New("plan: cap and aggregate threshold must be positive")
	}
	if o.AggregateThreshold >= o.Cap {
		return fmt.Errorf("plan: aggregate threshold %d must be less than cap %d", o.AggregateThreshold, o.Cap)
	}
	return nil
}

type Plan struct {
	Mode      Mode
	Symbols   []string // 小写；aggregateAll 模式下不参与 URL
	Streams   []string
	URL       string
	Requested int
	Truncated bool
}

// StreamPath streams= 后面那一段
func (p Plan) StreamPath() string { return strings.Join(p.Streams, "/") }

// Build 先判断 T 再判断 C：T < C，所以超过 T 直接走全市场流，C 只是兜底
var ErrNoSymbols = errors.New("plan: no symbols to subscribe")

func Build(symbols []string, opt Options, log *zap.Logger) (Plan, error) {
	if err := opt.Validate(); err != nil {
		return Plan{}, err
	}
	p := build(symbols, opt.withDefaults(), log)
	if p.Requested == 0 {
		return Plan{}, ErrNoSymbols
	}
	return p, nil
}

func build(symbols []string, opt Options, log *zap.Logger) Plan {
	if log == nil {
		log = zap.NewNop()
	}

	lower := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			lower = append(lower, s)
		}
	}

	var p Plan
	if len(lower) > opt.AggregateThreshold {
		p = Plan{
			Mode:    ModeAggregateAll,
			Symbols: lower,
			Streams: []string{AllMarketStream},
		}
	} else {
		p = multiplexed(lower, opt.Cap)
		if p.Truncated {
			log.Warn("symbol list truncated to stream cap",
				zap.Int("requested", len(lower)),
				zap.Int("cap", opt.Cap),
			)
		}
	}
	p.Requested = len(lower)
	p.URL = buildURL(opt.BaseURL, p.Streams, opt.TimeUnit)
	return p
}

func multiplexed(symbols []string, limit int) Plan {
	p := Plan{Mode: ModeMultiplexed}
	if len(symbols) > limit {
		symbols = symbols[:limit]
		p.Truncated = true
	}
	p.Symbols = symbols
	p.Streams = make([]string, 0, len(symbols))
	for _, s := range symbols {
		p.Streams = append(p.Streams, s+streamSuffix)
	}
	return p
}

func buildURL(base string, streams []string, timeUnit string) string {
	u := strings.TrimRight(base, "/") + "/stream?streams=" + strings.Join(streams, "/")
	if isMicros(timeUnit) {
		u += "&" + timeUnitParam
	}
	return u
}

func isMicros(tu string) bool {
	switch strings.ToLower(strings.TrimSpace(tu)) {
	case "microsecond", "microseconds", "us", "µs":
		return true
	}
	return false
}

// ParseSymbols 解析逗号分隔的 symbol 配置，跳过空项
func ParseSymbols(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

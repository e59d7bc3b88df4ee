package binance

import (
	"bytes"
	"errors"

	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"

	"tickerstream.com/internal/quotes/datasource/model"
)

var (
	ErrEmptyFrame  = errors.New("binance: empty frame")
	ErrNotTicker   = errors.New("binance: not a miniTicker frame")
	ErrNoSymbol    = errors.New("binance: miniTicker without symbol")
	ErrUnknownKind = errors.New("binance: frame is neither object nor array")
)

const eventMiniTicker = "24hrMiniTicker"

type bnCombined struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// 字段名是交易所的缩写，必须原样保留
type bnMiniTicker struct {
	EventType   string          `json:"e"`
	EventTime   int64           `json:"E"`
	Symbol      string          `json:"s"`
	Close       decimal.Decimal `json:"c"`
	Open        decimal.Decimal `json:"o"`
	High        decimal.Decimal `json:"h"`
	Low         decimal.Decimal `json:"l"`
	BaseVolume  decimal.Decimal `json:"v"`
	QuoteVolume decimal.Decimal `json:"q"`
}

func (m bnMiniTicker) toModel() model.Ticker {
	return model.Ticker{
		Symbol:      m.Symbol,
		Close:       m.Close,
		Open:        m.Open,
		High:        m.High,
		Low:         m.Low,
		BaseVolume:  m.BaseVolume,
		QuoteVolume: m.QuoteVolume,
		EventTime:   m.EventTime,
	}
}

// ParseMiniTickers 解析一帧数据，支持三种形态：
//   - 单个 ticker 对象（raw stream）
//   - ticker 数组（!miniTicker@arr 全市场流）
//   - combined stream 包装 {"stream": "...", "data": <上面两种之一>}
func ParseMiniTickers(b []byte) ([]model.Ticker, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, ErrEmptyFrame
	}

	switch b[0] {
	case '[':
		return parseArray(b)
	case '{':
		var wrap bnCombined
		if err := json.Unmarshal(b, &wrap); err != nil {
			return nil, err
		}
		if wrap.Stream != "" && len(wrap.Data) > 0 {
			return ParseMiniTickers(wrap.Data)
		}
		t, err := parseObject(b)
		if err != nil {
			return nil, err
		}
		return []model.Ticker{t}, nil
	default:
		return nil, ErrUnknownKind
	}
}

func parseObject(b []byte) (model.Ticker, error) {
	var m bnMiniTicker
	if err := json.Unmarshal(b, &m); err != nil {
		return model.Ticker{}, err
	}
	// 订阅回执 {"result":null,"id":1} 之类
	if m.EventType != "" && m.EventType != eventMiniTicker {
		return model.Ticker{}, ErrNotTicker
	}
	if m.Symbol == "" {
		if m.EventType == "" {
			return model.Ticker{}, ErrNotTicker
		}
		return model.Ticker{}, ErrNoSymbol
	}
	return m.toModel(), nil
}

func parseArray(b []byte) ([]model.Ticker, error) {
	var arr []bnMiniTicker
	if err := json.Unmarshal(b, &arr); err != nil {
		return nil, err
	}
	out := make([]model.Ticker, 0, len(arr))
	for _, m := range arr {
		if m.Symbol == "" {
			continue
		}
		out = append(out, m.toModel())
	}
	return out, nil
}

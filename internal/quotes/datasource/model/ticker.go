package model

import "github.com/shopspring/decimal"

// Ticker: 统一后的 24h 滚动窗口 mini ticker（价格/成交量用 decimal，避免 float64 误差）
//
// 只保留每个 symbol 最近一次的值，没有显式时间戳字段：后写覆盖先写即可。
// EventTime 是交易所给的事件时间，只用于展示。
type Ticker struct {
	Symbol      string          `json:"symbol"`
	Close       decimal.Decimal `json:"close"`
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	BaseVolume  decimal.Decimal `json:"base_volume"`
	QuoteVolume decimal.Decimal `json:"quote_volume"`
	EventTime   int64           `json:"event_time,omitempty"`
}

// Change 最新价相对开盘价的涨跌幅（百分比），开盘价为 0 时返回 0
func (t Ticker) Change() decimal.Decimal {
	if t.Open.IsZero() {
		return decimal.Zero
	}
	return t.Close.Sub(t.Open).Div(t.Open).Mul(decimal.NewFromInt(100))
}

package telemetry

import (
	"bytes"
	"fmt"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"tickerstream.com/internal/quotes/conn"
	"tickerstream.com/internal/quotes/datasource/model"
	"tickerstream.com/internal/quotes/snapshot"
	"tickerstream.com/internal/quotes/wsmetrics"
)

const DefaultEvery = 30 * time.Second

// Source 报表只读的数据来源，conn.Manager 实现它
type Source interface {
	Stats() conn.Stats
	Health() conn.HealthView
	Cache() *snapshot.Cache
}

type Options struct {
	Every  time.Duration
	Table  bool // 每次报表附带按 symbol 排序的快照表
	Now    func() time.Time
	Logger *zap.Logger
}

// Report 一次报表的内容。age 为 -1 表示还没发生过
type Report struct {
	At             time.Time      `json:"at"`
	Stats          conn.Stats     `json:"stats"`
	SessionSeq     uint64         `json:"session_seq"`
	State          string         `json:"state"`
	CacheSize      int            `json:"cache_size"`
	LastMessageAge time.Duration  `json:"last_message_age"`
	LastPingAge    time.Duration  `json:"last_ping_age"`
	LastPongAge    time.Duration  `json:"last_pong_age"`
	Rows           []model.Ticker `json:"rows,omitempty"`
}

type Reporter struct {
	src Source
	opt Options
	log *zap.Logger
}

func New(src Source, opt Options) *Reporter {
	if opt.Every <= 0 {
		opt.Every = DefaultEvery
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	return &Reporter{src: src, opt: opt, log: opt.Logger.Named("telemetry")}
}

func (r *Reporter) Every() time.Duration { return r.opt.Every }

func age(now, at time.Time) time.Duration {
	if at.IsZero() {
		return -1
	}
	return now.Sub(at)
}

// Snapshot 采集一份报表，不修改任何连接状态
func (r *Reporter) Snapshot() Report {
	rep, _ := r.collect()
	return rep
}

func (r *Reporter) collect() (Report, conn.HealthView) {
	now := r.opt.Now()
	h := r.src.Health()
	cache := r.src.Cache()
	rep := Report{
		At:             now,
		Stats:          r.src.Stats(),
		SessionSeq:     h.Seq,
		State:          h.State.String(),
		CacheSize:      cache.Len(),
		LastMessageAge: age(now, h.LastMessage),
		LastPingAge:    age(now, h.LastPing),
		LastPongAge:    age(now, h.LastPong),
	}
	if r.opt.Table {
		rep.Rows = cache.List()
	}
	return rep, h
}

// Emit 采集一次、更新 gauge 并写日志
func (r *Reporter) Emit() Report {
	rep, h := r.collect()

	wsmetrics.CacheSize.Set(float64(rep.CacheSize))
	wsmetrics.ObserveAge(wsmetrics.LastMessageAge, rep.At, h.LastMessage)
	wsmetrics.ObserveAge(wsmetrics.LastPingAge, rep.At, h.LastPing)

	fields := []zap.Field{
		zap.Int("connects", rep.Stats.Connects),
		zap.Int("disconnects", rep.Stats.Disconnects),
		zap.Int("reconnect_attempts", rep.Stats.ReconnectAttempts),
		zap.Uint64("session_seq", rep.SessionSeq),
		zap.String("state", rep.State),
		zap.Int("cache_size", rep.CacheSize),
		zap.Duration("last_message_age", rep.LastMessageAge),
		zap.Duration("last_ping_age", rep.LastPingAge),
		zap.Duration("last_pong_age", rep.LastPongAge),
	}
	if r.opt.Table && len(rep.Rows) > 0 {
		fields = append(fields, zap.String("table", Table(rep.Rows)))
	}
	r.log.Info("telemetry", fields...)
	return rep
}

// Table 把快照渲染成对齐的文本表，行顺序就是输入顺序
func Table(rows []model.Ticker) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "SYMBOL\tCLOSE\tOPEN\tHIGH\tLOW\tCHANGE%\tBASE VOL\tQUOTE VOL\t")
	for _, t := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			t.Symbol,
			t.Close.String(), t.Open.String(), t.High.String(), t.Low.String(),
			t.Change().StringFixed(2),
			t.BaseVolume.String(), t.QuoteVolume.String(),
		)
	}
	_ = w.Flush()
	return buf.String()
}

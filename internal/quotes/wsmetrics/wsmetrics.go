package wsmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_upstream_session_state",
		Help: "Current upstream session state (0=idle 1=connecting 2=open 3=closed)",
	})
	ConnectTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_upstream_connect_total",
		Help: "Total upstream connection attempts",
	})
	OpenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_upstream_open_total",
		Help: "Total upstream sessions that reached open",
	})
	DisconnectTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_upstream_disconnect_total",
		Help: "Total upstream session closures, partitioned by phase (dial/open)",
	}, []string{"phase"})
	ReconnectAttempts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_upstream_reconnect_attempts",
		Help: "Consecutive reconnect attempts since the last successful open",
	})
	ReconnectDelay = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ws_upstream_reconnect_delay_seconds",
		Help:    "Scheduled reconnect delay",
		Buckets: []float64{1, 2, 4, 8, 15, 16},
	})
	ForfeitTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_upstream_forfeit_total",
		Help: "Runs forfeited because the disconnect budget was exhausted",
	})
	TerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_upstream_terminate_total",
		Help: "Forced session terminations, partitioned by reason",
	}, []string{"reason"}) // stalled / hard_reset

	FramesInTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_upstream_frames_in_total",
		Help: "Total data frames received",
	})
	BytesInTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_upstream_bytes_in_total",
		Help: "Total data bytes received",
	})
	TickersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_upstream_tickers_total",
		Help: "Total ticker updates applied to the snapshot cache",
	})
	ParseErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_upstream_parse_errors_total",
		Help: "Frames dropped because they could not be decoded",
	})

	PingRecvTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_upstream_ping_recv_total",
		Help: "Heartbeat pings received from the venue",
	})
	PongSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_upstream_pong_sent_total",
		Help: "Heartbeat pongs echoed back to the venue",
	})
	HeartbeatSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_upstream_heartbeat_sent_total",
		Help: "Unsolicited heartbeat pings sent to the venue",
	})
	HeartbeatErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_upstream_heartbeat_errors_total",
		Help: "Heartbeat write failures",
	}, []string{"kind"}) // ping / pong / rate_limited
	PongRecvTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_upstream_pong_recv_total",
		Help: "Heartbeat pongs received",
	})

	CacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ticker_cache_symbols",
		Help: "Number of symbols held in the snapshot cache",
	})
	LastMessageAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_upstream_last_message_age_seconds",
		Help: "Seconds since the last inbound data frame",
	})
	LastPingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_upstream_last_ping_age_seconds",
		Help: "Seconds since the last inbound heartbeat ping",
	})

	SinkWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticker_sink_written_total",
		Help: "Tickers written to a downstream sink",
	}, []string{"sink"}) // broker / redis
	SinkDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticker_sink_dropped_total",
		Help: "Tickers dropped because a sink queue was full",
	}, []string{"sink"})
	SinkErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticker_sink_errors_total",
		Help: "Downstream sink write failures",
	}, []string{"sink"})
)

func OnConnect() {
	ConnectTotal.Inc()
}

func OnOpen() {
	OpenTotal.Inc()
	ReconnectAttempts.Set(0)
}

func OnClose(opened bool) {
	phase := "dial"
	if opened {
		phase = "open"
	}
	DisconnectTotal.WithLabelValues(phase).Inc()
}

func OnReconnectScheduled(attempt int, delay time.Duration) {
	ReconnectAttempts.Set(float64(attempt))
	ReconnectDelay.Observe(delay.Seconds())
}

func OnFrame(bytes int, tickers int, err error) {
	FramesInTotal.Inc()
	BytesInTotal.Add(float64(bytes))
	if err != nil {
		ParseErrorsTotal.Inc()
		return
	}
	TickersTotal.Add(float64(tickers))
}

// ObserveAge 未发生过的事件不上报
func ObserveAge(g prometheus.Gauge, now, at time.Time) {
	if at.IsZero() {
		return
	}
	g.Set(now.Sub(at).Seconds())
}

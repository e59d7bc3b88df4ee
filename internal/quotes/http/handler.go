package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tickerstream.com/internal/quotes/conn"
	"tickerstream.com/internal/quotes/datasource/model"
	"tickerstream.com/internal/quotes/plan"
	"tickerstream.com/internal/quotes/telemetry"
	"tickerstream.com/pkg/common"
)

// Engine API 读取的引擎能力，lifecycle.Controller 实现它
type Engine interface {
	ID() string
	Plan() plan.Plan
	Stopping() bool
	Health() conn.HealthView
	Report() telemetry.Report
	Snapshot(symbol string) (model.Ticker, bool)
	Snapshots() []model.Ticker
}

type Handler struct {
	eng Engine
}

type healthResp struct {
	EngineID   string `json:"engine_id"`
	State      string `json:"state"`
	SessionSeq uint64 `json:"session_seq"`
	Stopping   bool   `json:"stopping"`
}

// Healthz 会话 open 且没在停机才算健康
func (h *Handler) Healthz(c *gin.Context) {
	v := h.eng.Health()
	resp := healthResp{
		EngineID:   h.eng.ID(),
		State:      v.State.String(),
		SessionSeq: v.Seq,
		Stopping:   h.eng.Stopping(),
	}
	if v.State != conn.StateOpen || resp.Stopping {
		common.FailWith(c, http.StatusServiceUnavailable, common.CodeUnavailable, "upstream not open", resp)
		return
	}
	common.Success(c, resp)
}

type statsResp struct {
	telemetry.Report
	EngineID  string    `json:"engine_id"`
	Mode      plan.Mode `json:"mode"`
	Streams   int       `json:"streams"`
	Truncated bool      `json:"truncated"`
}

func (h *Handler) Stats(c *gin.Context) {
	p := h.eng.Plan()
	common.Success(c, statsResp{
		Report:    h.eng.Report(),
		EngineID:  h.eng.ID(),
		Mode:      p.Mode,
		Streams:   len(p.Streams),
		Truncated: p.Truncated,
	})
}

// Tickers 全部快照，按 symbol 排序
func (h *Handler) Tickers(c *gin.Context) {
	common.Success(c, h.eng.Snapshots())
}

func (h *Handler) Ticker(c *gin.Context) {
	sym := strings.TrimSpace(c.Param("symbol"))
	t, ok := h.eng.Snapshot(sym)
	if !ok {
		common.Fail(c, http.StatusNotFound, common.CodeNotFound, "symbol not found")
		return
	}
	common.Success(c, t)
}

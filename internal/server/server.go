// Package server exposes the candle series over HTTP for chart frontends.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fundingchart/internal/domain"
	"fundingchart/internal/export"
	"fundingchart/internal/ports"
)

// ChartReader is the read surface the handlers need from the chart service.
// The interface lives on the consumer side.
type ChartReader interface {
	Snapshot() []domain.Candle
	CandleAt(openTime time.Time) (domain.Candle, bool)
	HistoryExhausted() bool
	OnViewportChange(from, to time.Time)
}

// CandleResponse is the JSON shape of a single colored candle.
type CandleResponse struct {
	OpenTime       int64   `json:"openTime"`
	CloseTime      int64   `json:"closeTime"`
	Open           float64 `json:"open"`
	High           float64 `json:"high"`
	Low            float64 `json:"low"`
	Close          float64 `json:"close"`
	SpotOpen       float64 `json:"spotOpen"`
	SpotHigh       float64 `json:"spotHigh"`
	SpotLow        float64 `json:"spotLow"`
	SpotClose      float64 `json:"spotClose"`
	Premium        float64 `json:"premium"`
	FundingRate8h  float64 `json:"fundingRate8h"`
	SentimentIndex int     `json:"sentimentIndex"`
	Color          string  `json:"color"`
}

// ViewportRequest reports the visible time range of the chart client.
type ViewportRequest struct {
	From int64 `json:"from" binding:"required"`
	To   int64 `json:"to" binding:"required"`
}

// ErrorResponse is the JSON shape of an error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler holds the HTTP handlers for the chart API.
type Handler struct {
	chart  ChartReader
	logger ports.Logger
	symbol string
}

// NewHandler creates the handler set for the given chart service.
func NewHandler(chart ChartReader, logger ports.Logger, symbol string) *Handler {
	return &Handler{chart: chart, logger: logger, symbol: symbol}
}

// Router builds the gin engine with all chart routes registered.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", h.Health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/candles", h.GetCandles)
		v1.GET("/candles/:openTime", h.GetCandle)
		v1.GET("/export.csv", h.ExportCSV)
		v1.POST("/viewport", h.PostViewport)
	}
	return r
}

// Health handles the service health check.
func (h *Handler) Health(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"status": "ok", "symbol": h.symbol})
}

// GetCandles returns the candle series, optionally restricted to open times
// in [from, to] (unix milliseconds).
//
// GET /api/v1/candles?from=1704067200000&to=1706745600000
func (h *Handler) GetCandles(c *gin.Context) {
	candles := h.chart.Snapshot()

	if fromStr := c.Query("from"); fromStr != "" {
		from, err := strconv.ParseInt(fromStr, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid 'from' parameter"})
			return
		}
		candles = filterFrom(candles, time.UnixMilli(from))
	}
	if toStr := c.Query("to"); toStr != "" {
		to, err := strconv.ParseInt(toStr, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid 'to' parameter"})
			return
		}
		candles = filterTo(candles, time.UnixMilli(to))
	}

	out := make([]CandleResponse, 0, len(candles))
	for _, x := range candles {
		out = append(out, toResponse(x))
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":           h.symbol,
		"historyExhausted": h.chart.HistoryExhausted(),
		"candles":          out,
	})
}

// GetCandle returns a single candle by its open time (unix milliseconds).
//
// GET /api/v1/candles/1704067200000
func (h *Handler) GetCandle(c *gin.Context) {
	ms, err := strconv.ParseInt(c.Param("openTime"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid open time"})
		return
	}

	candle, ok := h.chart.CandleAt(time.UnixMilli(ms))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "candle not found"})
		return
	}
	c.JSON(http.StatusOK, toResponse(candle))
}

// ExportCSV streams the full series as a CSV download.
func (h *Handler) ExportCSV(c *gin.Context) {
	candles := h.chart.Snapshot()

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="`+h.symbol+`_8h.csv"`)
	if err := export.WriteCandlesCSV(candles, c.Writer); err != nil {
		h.logger.Error(c.Request.Context(), err, "CSV export failed", map[string]interface{}{"candles": len(candles)})
	}
}

// PostViewport reports the client's visible range so older history can be
// loaded ahead of the left edge.
func (h *Handler) PostViewport(c *gin.Context) {
	var req ViewportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if req.To < req.From {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "'to' must not precede 'from'"})
		return
	}

	h.chart.OnViewportChange(time.UnixMilli(req.From), time.UnixMilli(req.To))
	c.JSON(http.StatusAccepted, gin.H{"historyExhausted": h.chart.HistoryExhausted()})
}

func toResponse(x domain.Candle) CandleResponse {
	return CandleResponse{
		OpenTime:       x.OpenTime.UnixMilli(),
		CloseTime:      x.CloseTime.UnixMilli(),
		Open:           x.Open,
		High:           x.High,
		Low:            x.Low,
		Close:          x.Close,
		SpotOpen:       x.SpotOpen,
		SpotHigh:       x.SpotHigh,
		SpotLow:        x.SpotLow,
		SpotClose:      x.SpotClose,
		Premium:        x.Premium(),
		FundingRate8h:  x.FundingRate8h,
		SentimentIndex: x.SentimentIndex,
		Color:          x.Color,
	}
}

func filterFrom(candles []domain.Candle, from time.Time) []domain.Candle {
	for i, c := range candles {
		if !c.OpenTime.Before(from) {
			return candles[i:]
		}
	}
	return nil
}

func filterTo(candles []domain.Candle, to time.Time) []domain.Candle {
	for i := len(candles) - 1; i >= 0; i-- {
		if !candles[i].OpenTime.After(to) {
			return candles[:i+1]
		}
	}
	return nil
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingchart/internal/domain"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockChart struct {
	candles   []domain.Candle
	exhausted bool

	viewportFrom time.Time
	viewportTo   time.Time
	viewportHits int
}

func (m *mockChart) Snapshot() []domain.Candle { return m.candles }

func (m *mockChart) CandleAt(openTime time.Time) (domain.Candle, bool) {
	for _, c := range m.candles {
		if c.OpenTime.Equal(openTime) {
			return c, true
		}
	}
	return domain.Candle{}, false
}

func (m *mockChart) HistoryExhausted() bool { return m.exhausted }

func (m *mockChart) OnViewportChange(from, to time.Time) {
	m.viewportFrom = from
	m.viewportTo = to
	m.viewportHits++
}

func testCandles(t0 time.Time, n int) []domain.Candle {
	candles := make([]domain.Candle, 0, n)
	for i := 0; i < n; i++ {
		open := t0.Add(time.Duration(i) * domain.CandleWidth)
		candles = append(candles, domain.Candle{
			OpenTime:       open,
			CloseTime:      open.Add(domain.CandleWidth),
			Open:           2000 + float64(i),
			High:           2100,
			Low:            1950,
			Close:          2050,
			SpotClose:      2048,
			FundingRate8h:  0.01,
			SentimentIndex: 1,
			Color:          "#ffd23f",
		})
	}
	return candles
}

func setup(chart *mockChart) *gin.Engine {
	return NewHandler(chart, &mockLogger{}, "ETHUSDT").Router()
}

func TestHealth(t *testing.T) {
	router := setup(&mockChart{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "ETHUSDT", resp["symbol"])
}

func TestGetCandles_FullSeries(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	chart := &mockChart{candles: testCandles(t0, 3), exhausted: true}
	router := setup(chart)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/candles", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Symbol           string           `json:"symbol"`
		HistoryExhausted bool             `json:"historyExhausted"`
		Candles          []CandleResponse `json:"candles"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ETHUSDT", resp.Symbol)
	assert.True(t, resp.HistoryExhausted)
	require.Len(t, resp.Candles, 3)
	assert.Equal(t, t0.UnixMilli(), resp.Candles[0].OpenTime)
	assert.Equal(t, "#ffd23f", resp.Candles[0].Color)
}

func TestGetCandles_RangeFilter(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	chart := &mockChart{candles: testCandles(t0, 4)}
	router := setup(chart)

	from := t0.Add(domain.CandleWidth).UnixMilli()
	to := t0.Add(2 * domain.CandleWidth).UnixMilli()

	w := httptest.NewRecorder()
	url := "/api/v1/candles?from=" + itoa(from) + "&to=" + itoa(to)
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Candles []CandleResponse `json:"candles"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Candles, 2)
	assert.Equal(t, from, resp.Candles[0].OpenTime)
	assert.Equal(t, to, resp.Candles[1].OpenTime)
}

func TestGetCandles_BadFrom(t *testing.T) {
	router := setup(&mockChart{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/candles?from=yesterday", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetCandle_ByOpenTime(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	chart := &mockChart{candles: testCandles(t0, 2)}
	router := setup(chart)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/candles/"+itoa(t0.UnixMilli()), nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp CandleResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, t0.UnixMilli(), resp.OpenTime)
	assert.Equal(t, 1, resp.SentimentIndex)
}

func TestGetCandle_NotFound(t *testing.T) {
	router := setup(&mockChart{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/candles/12345", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExportCSV(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	chart := &mockChart{candles: testCandles(t0, 2)}
	router := setup(chart)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/export.csv", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "ETHUSDT")

	lines := bytes.Count(w.Body.Bytes(), []byte{'\n'})
	assert.Equal(t, 3, lines) // header + 2 rows
}

func TestPostViewport(t *testing.T) {
	chart := &mockChart{}
	router := setup(chart)

	body := bytes.NewBufferString(`{"from": 1000, "to": 2000}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/viewport", body)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, chart.viewportHits)
	assert.Equal(t, time.UnixMilli(1000), chart.viewportFrom)
	assert.Equal(t, time.UnixMilli(2000), chart.viewportTo)
}

func TestPostViewport_InvertedRange(t *testing.T) {
	chart := &mockChart{}
	router := setup(chart)

	body := bytes.NewBufferString(`{"from": 2000, "to": 1000}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/viewport", body)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, chart.viewportHits)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

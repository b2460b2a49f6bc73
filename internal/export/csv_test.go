package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingchart/internal/domain"
)

func TestWriteCandlesCSV(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := []domain.Candle{
		{
			OpenTime:  t0,
			CloseTime: t0.Add(domain.CandleWidth),
			Open:      2000, High: 2100, Low: 1950, Close: 2050,
			SpotOpen: 1999, SpotHigh: 2098, SpotLow: 1948, SpotClose: 2048,
			FundingRate8h:  0.01,
			SentimentIndex: 1,
			Color:          "#ffd23f",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCandlesCSV(candles, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	header := records[0]
	assert.Equal(t, "open_time", header[0])
	assert.Equal(t, "premium_pct", header[10])
	assert.Equal(t, "color", header[13])

	row := records[1]
	assert.Equal(t, t0.Format(time.RFC3339), row[0])
	assert.Equal(t, "2000", row[2])
	assert.Equal(t, "2048", row[9])
	assert.Equal(t, "0.01", row[11])
	assert.Equal(t, "1", row[12])
	assert.Equal(t, "#ffd23f", row[13])
}

func TestWriteCandlesCSV_EmptySeries(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCandlesCSV(nil, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1) // header only
}

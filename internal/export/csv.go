package export

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"fundingchart/internal/domain"
)

// WriteCandlesCSV writes the candle series to w, one row per candle,
// oldest first.
func WriteCandlesCSV(candles []domain.Candle, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	// Write header
	writer.Write([]string{
		"open_time", "close_time",
		"futures_open", "futures_high", "futures_low", "futures_close",
		"spot_open", "spot_high", "spot_low", "spot_close",
		"premium_pct", "funding_rate_8h", "sentiment_index", "color",
	})

	for _, c := range candles {
		writer.Write([]string{
			c.OpenTime.Format(time.RFC3339),
			c.CloseTime.Format(time.RFC3339),
			formatFloat(c.Open),
			formatFloat(c.High),
			formatFloat(c.Low),
			formatFloat(c.Close),
			formatFloat(c.SpotOpen),
			formatFloat(c.SpotHigh),
			formatFloat(c.SpotLow),
			formatFloat(c.SpotClose),
			formatFloat(c.Premium()),
			formatFloat(c.FundingRate8h),
			strconv.Itoa(c.SentimentIndex),
			c.Color,
		})
	}
	return writer.Error()
}

// WriteCandlesCSVFile writes the candle series to a file at path.
func WriteCandlesCSVFile(candles []domain.Candle, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteCandlesCSV(candles, file)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

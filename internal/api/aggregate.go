package api

import "cryptoscreener/internal/model"

// aggregateCandles resamples ascending 1-minute candles into
// timeframeMinutes buckets by wall-clock alignment (bucket start =
// timestamp rounded down to a timeframeMinutes*60 boundary). Grounded on
// the teacher's marketdata/agg bucket-accumulation discipline (open =
// first tick in bucket, high/low = running extrema, close = last tick,
// volume = sum), applied here to whole candles instead of raw ticks.
func aggregateCandles(candles []model.Candle, timeframeMinutes int) []model.Candle {
	if timeframeMinutes <= 1 || len(candles) == 0 {
		return candles
	}

	bucketSeconds := int64(timeframeMinutes * 60)
	out := make([]model.Candle, 0, len(candles)/timeframeMinutes+1)

	var cur *model.Candle
	var bucketStart int64 = -1

	for _, c := range candles {
		start := c.Timestamp - (c.Timestamp % bucketSeconds)
		if start != bucketStart {
			if cur != nil {
				out = append(out, *cur)
			}
			bucketStart = start
			bucket := model.Candle{
				Symbol:    c.Symbol,
				Timestamp: start,
				Open:      c.Open,
				High:      c.High,
				Low:       c.Low,
				Close:     c.Close,
				Volume:    c.Volume,
			}
			cur = &bucket
			continue
		}

		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out
}

package indicators

import (
	"fmt"
	"math"

	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	rsiPeriod        = 14
	macdFastPeriod   = 12
	macdSlowPeriod   = 26
	macdSignalPeriod = 9
	srLookback       = 20
	volumePeriod     = 20
	minBars          = 30
)

// Analyzer computes TechnicalAnalysis snapshots
type Analyzer struct {
	logger zerolog.Logger
}

// NewAnalyzer creates a technical analyzer
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		logger: log.With().Str("component", "indicators").Logger(),
	}
}

// Analyze runs the full indicator suite over OHLCV bars ordered oldest first.
// Fewer than 30 bars is an error.
func (a *Analyzer) Analyze(symbol string, bars []Bar) (*TechnicalAnalysis, error) {
	if len(bars) < minBars {
		return nil, fmt.Errorf("insufficient data for %s: need %d bars, got %d", symbol, minBars, len(bars))
	}

	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
		volumes[i] = b.Volume
	}

	currentPrice := closes[len(closes)-1]

	rsi := CalculateRSI(closes, rsiPeriod)
	rsiSignal := ClassifyRSI(rsi)

	macdLine, signalLine, histogram := CalculateMACD(closes, macdFastPeriod, macdSlowPeriod, macdSignalPeriod)
	prevMACD, prevSignal, _ := CalculateMACD(closes[:len(closes)-1], macdFastPeriod, macdSlowPeriod, macdSignalPeriod)
	macdSignal := ClassifyMACD(macdLine, signalLine, prevMACD, prevSignal)

	support, resistance := SupportResistance(highs, lows, currentPrice, srLookback)

	volumeRatio, avgVolume := VolumeRatio(volumes, volumePeriod)
	volumeSignal := ClassifyVolume(volumeRatio)

	direction, strength := a.trendScore(closes, rsi, macdSignal, volumeSignal)

	analysis := &TechnicalAnalysis{
		Symbol:                  symbol,
		CurrentPrice:            currentPrice,
		Timestamp:               bars[len(bars)-1].Timestamp,
		RSI:                     rsi,
		RSISignal:               rsiSignal,
		MACDLine:                macdLine,
		MACDSignalLine:          signalLine,
		MACDHistogram:           histogram,
		MACDSignal:              macdSignal,
		SupportLevel:            support,
		ResistanceLevel:         resistance,
		DistanceToSupportPct:    round2((currentPrice - support) / currentPrice * 100),
		DistanceToResistancePct: round2((resistance - currentPrice) / currentPrice * 100),
		CurrentVolume:           volumes[len(volumes)-1],
		AvgVolume20d:            avgVolume,
		VolumeRatio:             volumeRatio,
		VolumeSignal:            volumeSignal,
		Trend:                   direction,
		TrendStrength:           strength,
		BullishScore:            strength,
	}

	a.logger.Debug().
		Str("symbol", symbol).
		Float64("rsi", rsi).
		Float64("macd", macdLine).
		Str("trend", string(direction)).
		Int("bullish_score", strength).
		Msg("Technical analysis complete")

	return analysis, nil
}

// CalculateRSI computes the Wilder-smoothed RSI over closing prices.
// Returns the neutral 50 when fewer than period+1 closes are available.
func CalculateRSI(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 50.0
	}

	rsiIndicator := momentum.NewRsiWithPeriod[float64](period)
	values := collect(rsiIndicator.Compute(feed(closes)))
	if len(values) == 0 {
		return 50.0
	}
	return round2(values[len(values)-1])
}

// CalculateMACD computes (macd_line, signal_line, histogram) with SMA-seeded
// EMAs. Below slow+signal closes the result is zeroed; when the MACD series is
// still shorter than the signal period only the line is reported.
func CalculateMACD(closes []float64, fast, slow, signal int) (float64, float64, float64) {
	if len(closes) < slow {
		return 0, 0, 0
	}

	emaFast := collect(trend.NewEmaWithPeriod[float64](fast).Compute(feed(closes)))
	emaSlow := collect(trend.NewEmaWithPeriod[float64](slow).Compute(feed(closes)))

	minLen := len(emaSlow)
	if len(emaFast) < minLen {
		minLen = len(emaFast)
	}
	if minLen == 0 {
		return 0, 0, 0
	}

	macdSeries := make([]float64, minLen)
	for i := 0; i < minLen; i++ {
		macdSeries[i] = emaFast[len(emaFast)-minLen+i] - emaSlow[len(emaSlow)-minLen+i]
	}

	if len(macdSeries) < signal {
		return round4(macdSeries[len(macdSeries)-1]), 0, 0
	}

	signalSeries := collect(trend.NewEmaWithPeriod[float64](signal).Compute(feed(macdSeries)))
	if len(signalSeries) == 0 {
		return round4(macdSeries[len(macdSeries)-1]), 0, 0
	}

	macdLine := round4(macdSeries[len(macdSeries)-1])
	signalLine := round4(signalSeries[len(signalSeries)-1])
	return macdLine, signalLine, round4(macdLine - signalLine)
}

// SupportResistance finds the nearest swing low below and swing high above
// the current price within the lookback window. A swing point must beat its
// two neighbors on each side; min/max of the window is the fallback.
func SupportResistance(highs, lows []float64, currentPrice float64, lookback int) (float64, float64) {
	if len(highs) < 5 || len(lows) < 5 {
		return round2(currentPrice * 0.95), round2(currentPrice * 1.05)
	}

	recentHighs := tail(highs, lookback)
	recentLows := tail(lows, lookback)

	var swingHighs, swingLows []float64
	for i := 2; i < len(recentHighs)-2; i++ {
		if recentHighs[i] > recentHighs[i-1] && recentHighs[i] > recentHighs[i-2] &&
			recentHighs[i] > recentHighs[i+1] && recentHighs[i] > recentHighs[i+2] {
			swingHighs = append(swingHighs, recentHighs[i])
		}
	}
	for i := 2; i < len(recentLows)-2; i++ {
		if recentLows[i] < recentLows[i-1] && recentLows[i] < recentLows[i-2] &&
			recentLows[i] < recentLows[i+1] && recentLows[i] < recentLows[i+2] {
			swingLows = append(swingLows, recentLows[i])
		}
	}

	support := math.Inf(-1)
	for _, s := range swingLows {
		if s < currentPrice && s > support {
			support = s
		}
	}
	if math.IsInf(support, -1) {
		support = minOf(recentLows)
	}

	resistance := math.Inf(1)
	for _, r := range swingHighs {
		if r > currentPrice && r < resistance {
			resistance = r
		}
	}
	if math.IsInf(resistance, 1) {
		resistance = maxOf(recentHighs)
	}

	return round2(support), round2(resistance)
}

// VolumeRatio compares the last bar's volume to the mean of the prior
// period bars. Returns (1.0, last) when the history is too short.
func VolumeRatio(volumes []float64, period int) (float64, float64) {
	if len(volumes) < period+1 {
		last := 0.0
		if len(volumes) > 0 {
			last = volumes[len(volumes)-1]
		}
		return 1.0, last
	}

	var sum float64
	for _, v := range volumes[len(volumes)-period-1 : len(volumes)-1] {
		sum += v
	}
	avg := sum / float64(period)
	if avg == 0 {
		return 1.0, 0
	}
	return round2(volumes[len(volumes)-1] / avg), math.Round(avg)
}

// ClassifyRSI maps an RSI value to its signal band
func ClassifyRSI(rsi float64) RSISignal {
	switch {
	case rsi < 30:
		return RSIOversold
	case rsi < 40:
		return RSIApproachingOversold
	case rsi > 70:
		return RSIOverbought
	case rsi > 60:
		return RSIApproachingOverbought
	default:
		return RSINeutral
	}
}

// ClassifyMACD maps line vs signal (with crossover detection from the
// previous bar's values) to a MACD signal
func ClassifyMACD(macdLine, signalLine, prevMACD, prevSignal float64) MACDSignal {
	if prevMACD <= prevSignal && macdLine > signalLine {
		return MACDBullishCrossover
	}
	if prevMACD >= prevSignal && macdLine < signalLine {
		return MACDBearishCrossover
	}

	diff := macdLine - signalLine
	switch {
	case math.Abs(diff) < 0.01:
		return MACDNeutral
	case diff > 0:
		return MACDBullish
	default:
		return MACDBearish
	}
}

// ClassifyVolume maps a volume ratio to its signal band
func ClassifyVolume(ratio float64) VolumeSignal {
	switch {
	case ratio > 2.0:
		return VolumeVeryHigh
	case ratio > 1.5:
		return VolumeHigh
	case ratio < 0.5:
		return VolumeVeryLow
	case ratio < 0.8:
		return VolumeLow
	default:
		return VolumeNormal
	}
}

// trendScore blends price trend (30%), RSI (30%) and MACD (40%), scaled by a
// volume multiplier, into a 0..100 strength plus a direction band
func (a *Analyzer) trendScore(closes []float64, rsi float64, macdSignal MACDSignal, volumeSignal VolumeSignal) (Trend, int) {
	if len(closes) < 20 {
		return TrendNeutral, 50
	}

	sma10 := mean(tail(closes, 10))
	sma20 := mean(tail(closes, 20))

	priceScore := 50.0
	switch {
	case sma10 > sma20*1.02:
		priceScore = 75
	case sma10 > sma20:
		priceScore = 60
	case sma10 < sma20*0.98:
		priceScore = 25
	case sma10 < sma20:
		priceScore = 40
	}

	// Oversold reads bullish, overbought bearish
	rsiScore := 50.0
	switch {
	case rsi < 30:
		rsiScore = 80
	case rsi < 40:
		rsiScore = 65
	case rsi > 70:
		rsiScore = 20
	case rsi > 60:
		rsiScore = 35
	}

	macdScore := 50.0
	switch macdSignal {
	case MACDBullishCrossover:
		macdScore = 90
	case MACDBullish:
		macdScore = 70
	case MACDBearish:
		macdScore = 30
	case MACDBearishCrossover:
		macdScore = 10
	}

	volMult := 1.0
	switch volumeSignal {
	case VolumeVeryHigh:
		volMult = 1.2
	case VolumeHigh:
		volMult = 1.1
	case VolumeLow:
		volMult = 0.9
	case VolumeVeryLow:
		volMult = 0.8
	}

	raw := (priceScore*0.3 + rsiScore*0.3 + macdScore*0.4) * volMult
	strength := int(math.Min(100, math.Max(0, raw)))

	var direction Trend
	switch {
	case strength >= 75:
		direction = TrendStrongBullish
	case strength >= 60:
		direction = TrendBullish
	case strength <= 25:
		direction = TrendStrongBearish
	case strength <= 40:
		direction = TrendBearish
	default:
		direction = TrendNeutral
	}

	return direction, strength
}

func feed(values []float64) chan float64 {
	c := make(chan float64, len(values))
	for _, v := range values {
		c <- v
	}
	close(c)
	return c
}

func collect(c <-chan float64) []float64 {
	var out []float64
	for v := range c {
		out = append(out, v)
	}
	return out
}

func tail(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

package smartmoney

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Provider fetches the raw smart-money inputs. Each method may fail
// independently; the aggregator degrades to neutral defaults.
type Provider interface {
	FetchVIX(ctx context.Context) (VIXData, error)
	FetchOptions(ctx context.Context, symbol string) (OptionsData, error)
	FetchVolumes(ctx context.Context, symbol string) ([]float64, error)
	FetchInsiderFilings(ctx context.Context, symbol string) (InsiderData, error)
	FetchFearGreed(ctx context.Context) (FearGreedData, error)
}

const (
	yahooChartURL   = "https://query1.finance.yahoo.com/v8/finance/chart"
	yahooOptionsURL = "https://query1.finance.yahoo.com/v7/finance/options"
	secEdgarURL     = "https://www.sec.gov/cgi-bin/browse-edgar"
	fearGreedURL    = "https://api.alternative.me/fng/?limit=1"
)

// HTTPProvider pulls from the free Yahoo Finance, SEC EDGAR and
// alternative.me endpoints
type HTTPProvider struct {
	client    *http.Client
	userAgent string
}

// NewHTTPProvider creates the default upstream provider
func NewHTTPProvider(timeout time.Duration, userAgent string) *HTTPProvider {
	return &HTTPProvider{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

func (p *HTTPProvider) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				ChartPreviousClose float64 `json:"chartPreviousClose"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Volume []float64 `json:"volume"`
					Close  []float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
	} `json:"chart"`
}

// FetchVIX reads the current VIX level from the Yahoo chart endpoint
func (p *HTTPProvider) FetchVIX(ctx context.Context) (VIXData, error) {
	endpoint := fmt.Sprintf("%s/%s?interval=1d&range=5d", yahooChartURL, url.PathEscape("^VIX"))

	var payload yahooChartResponse
	if err := p.getJSON(ctx, endpoint, &payload); err != nil {
		return VIXData{}, fmt.Errorf("vix fetch: %w", err)
	}
	if len(payload.Chart.Result) == 0 {
		return VIXData{}, fmt.Errorf("vix fetch: empty chart result")
	}

	meta := payload.Chart.Result[0].Meta
	vix := meta.RegularMarketPrice
	changePct := 0.0
	if meta.ChartPreviousClose > 0 {
		changePct = (vix - meta.ChartPreviousClose) / meta.ChartPreviousClose * 100
	}

	return VIXData{
		VIX:       vix,
		ChangePct: changePct,
		Regime:    VolatilityRegime(vix),
	}, nil
}

type yahooOptionsResponse struct {
	OptionChain struct {
		Result []struct {
			Quote struct {
				ImpliedVolatility float64 `json:"impliedVolatility"`
			} `json:"quote"`
			Options []struct {
				Calls []yahooContract `json:"calls"`
				Puts  []yahooContract `json:"puts"`
			} `json:"options"`
		} `json:"result"`
	} `json:"optionChain"`
}

type yahooContract struct {
	Volume       int64 `json:"volume"`
	OpenInterest int64 `json:"openInterest"`
}

// FetchOptions summarizes the nearest-expiry options chain
func (p *HTTPProvider) FetchOptions(ctx context.Context, symbol string) (OptionsData, error) {
	endpoint := fmt.Sprintf("%s/%s", yahooOptionsURL, url.PathEscape(symbol))

	var payload yahooOptionsResponse
	if err := p.getJSON(ctx, endpoint, &payload); err != nil {
		return OptionsData{}, fmt.Errorf("options fetch for %s: %w", symbol, err)
	}
	if len(payload.OptionChain.Result) == 0 || len(payload.OptionChain.Result[0].Options) == 0 {
		return OptionsData{}, fmt.Errorf("options fetch for %s: no chain data", symbol)
	}

	chain := payload.OptionChain.Result[0]
	calls := chain.Options[0].Calls
	puts := chain.Options[0].Puts

	var callVol, putVol, callOI, putOI int64
	unusual := 0
	for _, c := range calls {
		callVol += c.Volume
		callOI += c.OpenInterest
		if oi := c.OpenInterest; c.Volume > 5*maxInt64(oi, 1) {
			unusual++
		}
	}
	for _, q := range puts {
		putVol += q.Volume
		putOI += q.OpenInterest
		if oi := q.OpenInterest; q.Volume > 5*maxInt64(oi, 1) {
			unusual++
		}
	}

	pcr := 1.0
	if callVol > 0 {
		pcr = float64(putVol) / float64(callVol)
	}
	pcrOI := 1.0
	if callOI > 0 {
		pcrOI = float64(putOI) / float64(callOI)
	}

	return OptionsData{
		Symbol:               symbol,
		PutCallRatio:         pcr,
		PutCallOIRatio:       pcrOI,
		TotalCallVolume:      callVol,
		TotalPutVolume:       putVol,
		UnusualActivityCount: unusual,
		ImpliedVolatility:    chain.Quote.ImpliedVolatility,
		Sentiment:            OptionsSentiment(pcr),
	}, nil
}

// FetchVolumes returns the last five daily volumes, oldest first
func (p *HTTPProvider) FetchVolumes(ctx context.Context, symbol string) ([]float64, error) {
	endpoint := fmt.Sprintf("%s/%s?interval=1d&range=5d", yahooChartURL, url.PathEscape(symbol))

	var payload yahooChartResponse
	if err := p.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("volume fetch for %s: %w", symbol, err)
	}
	if len(payload.Chart.Result) == 0 || len(payload.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("volume fetch for %s: empty chart result", symbol)
	}

	raw := payload.Chart.Result[0].Indicators.Quote[0].Volume
	volumes := make([]float64, 0, len(raw))
	for _, v := range raw {
		if v > 0 {
			volumes = append(volumes, v)
		}
	}
	if len(volumes) == 0 {
		return nil, fmt.Errorf("volume fetch for %s: no volume data", symbol)
	}
	return volumes, nil
}

type edgarFeed struct {
	Entries []struct {
		Title string `xml:"title"`
	} `xml:"entry"`
}

// FetchInsiderFilings counts recent Form 4 acquisitions vs dispositions
func (p *HTTPProvider) FetchInsiderFilings(ctx context.Context, symbol string) (InsiderData, error) {
	endpoint := fmt.Sprintf("%s?action=getcompany&CIK=%s&type=4&owner=include&count=10&output=atom",
		secEdgarURL, url.QueryEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return InsiderData{}, fmt.Errorf("failed to build insider request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return InsiderData{}, fmt.Errorf("insider fetch for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return InsiderData{}, fmt.Errorf("insider fetch for %s: status %d", symbol, resp.StatusCode)
	}

	var feed edgarFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return InsiderData{}, fmt.Errorf("insider fetch for %s: decode: %w", symbol, err)
	}

	var buys, sells int
	for i, entry := range feed.Entries {
		if i >= 10 {
			break
		}
		title := strings.ToLower(entry.Title)
		switch {
		case strings.Contains(title, "acquisition"), strings.Contains(title, "purchase"):
			buys++
		case strings.Contains(title, "disposition"), strings.Contains(title, "sale"):
			sells++
		}
	}

	return BuildInsiderData(symbol, buys, sells, len(feed.Entries)), nil
}

type fearGreedResponse struct {
	Data []struct {
		Value          string `json:"value"`
		Classification string `json:"value_classification"`
	} `json:"data"`
}

// FetchFearGreed reads the alternative.me fear/greed gauge
func (p *HTTPProvider) FetchFearGreed(ctx context.Context) (FearGreedData, error) {
	var payload fearGreedResponse
	if err := p.getJSON(ctx, fearGreedURL, &payload); err != nil {
		return FearGreedData{}, fmt.Errorf("fear/greed fetch: %w", err)
	}
	if len(payload.Data) == 0 {
		return FearGreedData{}, fmt.Errorf("fear/greed fetch: empty payload")
	}

	var value int
	if _, err := fmt.Sscanf(payload.Data[0].Value, "%d", &value); err != nil {
		return FearGreedData{}, fmt.Errorf("fear/greed fetch: bad value %q", payload.Data[0].Value)
	}

	return FearGreedData{
		Index:           value,
		Classification:  payload.Data[0].Classification,
		MarketSentiment: SentimentFromFearGreed(value),
	}, nil
}

// OptionsSentiment bands a put/call volume ratio
func OptionsSentiment(putCallRatio float64) string {
	switch {
	case putCallRatio < 0.7:
		return "BULLISH"
	case putCallRatio > 1.3:
		return "BEARISH"
	default:
		return "NEUTRAL"
	}
}

// SentimentFromFearGreed bands a fear/greed index value
func SentimentFromFearGreed(value int) string {
	switch {
	case value > 55:
		return "BULLISH"
	case value < 45:
		return "BEARISH"
	default:
		return "NEUTRAL"
	}
}

// BuildInsiderData derives the sentiment labels from buy/sell counts
func BuildInsiderData(symbol string, buys, sells, filings int) InsiderData {
	activity := "NEUTRAL"
	if float64(buys) > float64(sells)*1.5 {
		activity = "BUYING"
	} else if float64(sells) > float64(buys)*1.5 {
		activity = "SELLING"
	}

	net := "NEUTRAL"
	if buys > sells {
		net = "BULLISH"
	} else if sells > buys {
		net = "BEARISH"
	}

	return InsiderData{
		Symbol:        symbol,
		Activity:      activity,
		BuyCount:      buys,
		SellCount:     sells,
		NetSentiment:  net,
		RecentFilings: filings,
	}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

package earnings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const finnhubBaseURL = "https://finnhub.io/api/v1"

// FinnhubProvider fetches the earnings calendar from the Finnhub REST API
type FinnhubProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewFinnhubProvider creates a Finnhub-backed earnings provider
func NewFinnhubProvider(apiKey string, timeout time.Duration) *FinnhubProvider {
	return &FinnhubProvider{
		apiKey:  apiKey,
		baseURL: finnhubBaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type finnhubCalendarResponse struct {
	EarningsCalendar []struct {
		Date        string  `json:"date"`
		Hour        string  `json:"hour"`
		EPSEstimate float64 `json:"epsEstimate"`
	} `json:"earningsCalendar"`
}

// NextEarnings returns the next scheduled announcement for a symbol
func (p *FinnhubProvider) NextEarnings(ctx context.Context, symbol string) (*Event, error) {
	endpoint := fmt.Sprintf("%s/calendar/earnings?symbol=%s&token=%s",
		p.baseURL, url.QueryEscape(symbol), url.QueryEscape(p.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build earnings request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("earnings request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("earnings API returned status %d", resp.StatusCode)
	}

	var payload finnhubCalendarResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode earnings response: %w", err)
	}

	if len(payload.EarningsCalendar) == 0 {
		return nil, nil
	}

	next := payload.EarningsCalendar[0]
	date, err := time.Parse("2006-01-02", next.Date)
	if err != nil {
		return nil, nil
	}

	return &Event{
		Symbol:      symbol,
		Date:        date,
		Hour:        next.Hour,
		Confirmed:   true,
		EPSEstimate: next.EPSEstimate,
	}, nil
}

// StaticProvider serves a fixed earnings schedule, used in tests and offline runs
type StaticProvider struct {
	Events map[string]Event
}

// NextEarnings returns the configured event for a symbol, nil when absent
func (p *StaticProvider) NextEarnings(_ context.Context, symbol string) (*Event, error) {
	if ev, ok := p.Events[symbol]; ok {
		return &ev, nil
	}
	return nil, nil
}

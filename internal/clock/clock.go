// Package clock classifies instants against the US equities trading session
package clock

import (
	"fmt"
	"time"
)

// Status describes whether and why the market is open or closed
type Status string

const (
	StatusOpen          Status = "OPEN"
	StatusClosedWeekend Status = "CLOSED_WEEKEND"
	StatusClosedHoliday Status = "CLOSED_HOLIDAY"
	StatusClosedBefore  Status = "CLOSED_BEFORE"
	StatusClosedAfter   Status = "CLOSED_AFTER"
)

// Window grades the quality of the current trading moment
type Window string

const (
	WindowOptimal      Window = "OPTIMAL"
	WindowAcceptable   Window = "ACCEPTABLE"
	WindowAvoidOpening Window = "AVOID_OPENING"
	WindowAvoidClosing Window = "AVOID_CLOSING"
	WindowClosed       Window = "MARKET_CLOSED"
)

// Session parameters for the regular NYSE/NASDAQ cash session
const (
	openHour    = 9
	openMinute  = 30
	closeHour   = 16
	closeMinute = 0

	avoidOpenMinutes  = 30
	avoidCloseMinutes = 15

	optimalStartHour = 10
	optimalEndHour   = 15
)

// holidays lists full-day US market closures. Early-close half days trade
// as normal sessions here; the close-window guard covers the risky tail.
var holidays = map[string]struct{}{
	// 2025
	"2025-01-01": {}, "2025-01-20": {}, "2025-02-17": {}, "2025-04-18": {},
	"2025-05-26": {}, "2025-06-19": {}, "2025-07-04": {}, "2025-09-01": {},
	"2025-11-27": {}, "2025-12-25": {},
	// 2026
	"2026-01-01": {}, "2026-01-19": {}, "2026-02-16": {}, "2026-04-03": {},
	"2026-05-25": {}, "2026-06-19": {}, "2026-07-03": {}, "2026-09-07": {},
	"2026-11-26": {}, "2026-12-25": {},
}

// Verdict is the clock's full classification of an instant
type Verdict struct {
	IsOpen            bool      `json:"is_open"`
	Status            Status    `json:"status"`
	Window            Window    `json:"window"`
	CanTrade          bool      `json:"can_trade"`
	MinutesSinceOpen  int       `json:"minutes_since_open"`
	MinutesUntilClose int       `json:"minutes_until_close"`
	NextOpen          time.Time `json:"next_open,omitempty"`
	Reason            string    `json:"reason"`
}

// Clock evaluates instants against one exchange session definition
type Clock struct {
	loc *time.Location
}

// New creates a clock for the given IANA timezone, usually America/New_York
func New(timezone string) (*Clock, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", timezone, err)
	}
	return &Clock{loc: loc}, nil
}

// Check classifies an instant. The caller's timezone is irrelevant since
// everything converts to exchange-local time first.
func (c *Clock) Check(at time.Time) Verdict {
	local := at.In(c.loc)

	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return c.closedVerdict(local, StatusClosedWeekend, "market closed for the weekend")
	}
	if c.isHoliday(local) {
		return c.closedVerdict(local, StatusClosedHoliday, "market closed for a holiday")
	}

	sessionOpen := time.Date(local.Year(), local.Month(), local.Day(), openHour, openMinute, 0, 0, c.loc)
	sessionClose := time.Date(local.Year(), local.Month(), local.Day(), closeHour, closeMinute, 0, 0, c.loc)

	if local.Before(sessionOpen) {
		return c.closedVerdict(local, StatusClosedBefore, "market has not opened yet")
	}
	if !local.Before(sessionClose) {
		return c.closedVerdict(local, StatusClosedAfter, "market closed for the day")
	}

	sinceOpen := int(local.Sub(sessionOpen).Minutes())
	untilClose := int(sessionClose.Sub(local).Minutes())

	v := Verdict{
		IsOpen:            true,
		Status:            StatusOpen,
		MinutesSinceOpen:  sinceOpen,
		MinutesUntilClose: untilClose,
	}

	switch {
	case sinceOpen < avoidOpenMinutes:
		v.Window = WindowAvoidOpening
		v.Reason = "opening volatility window"
	case untilClose <= avoidCloseMinutes:
		v.Window = WindowAvoidClosing
		v.Reason = "closing auction window"
	case local.Hour() >= optimalStartHour && local.Hour() < optimalEndHour,
		local.Hour() == optimalEndHour && local.Minute() == 0:
		v.Window = WindowOptimal
		v.CanTrade = true
		v.Reason = "optimal trading window"
	default:
		v.Window = WindowAcceptable
		v.CanTrade = true
		v.Reason = "acceptable trading window"
	}

	return v
}

// NextOpen returns the next session open at or after the given instant
func (c *Clock) NextOpen(at time.Time) time.Time {
	local := at.In(c.loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), openHour, openMinute, 0, 0, c.loc)
	if !local.Before(candidate) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	for !c.isTradingDay(candidate) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

func (c *Clock) isTradingDay(day time.Time) bool {
	if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		return false
	}
	return !c.isHoliday(day)
}

func (c *Clock) isHoliday(day time.Time) bool {
	_, ok := holidays[day.Format("2006-01-02")]
	return ok
}

func (c *Clock) closedVerdict(local time.Time, status Status, reason string) Verdict {
	return Verdict{
		IsOpen:   false,
		Status:   status,
		Window:   WindowClosed,
		CanTrade: false,
		NextOpen: c.NextOpen(local),
		Reason:   reason,
	}
}

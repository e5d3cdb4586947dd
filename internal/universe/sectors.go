package universe

import "strings"

// sectorMapping assigns each tracked symbol to a sector bucket used by the
// learning memory's per-sector statistics
var sectorMapping = map[string]string{
	// Technology
	"AAPL": "Technology", "MSFT": "Technology", "GOOGL": "Technology", "GOOG": "Technology",
	"META": "Technology", "NVDA": "Technology", "AMD": "Technology", "INTC": "Technology",
	"TSLA": "Technology", "AMZN": "Technology", "CRM": "Technology", "ORCL": "Technology",
	"ADBE": "Technology", "NOW": "Technology", "UBER": "Technology", "LYFT": "Technology",
	"NFLX": "Technology", "PYPL": "Technology", "SQ": "Technology", "SHOP": "Technology",
	"SNOW": "Technology", "PLTR": "Technology", "NET": "Technology", "DDOG": "Technology",
	"ZS": "Technology", "CRWD": "Technology", "PANW": "Technology", "OKTA": "Technology",
	"MDB": "Technology", "TEAM": "Technology", "TWLO": "Technology", "U": "Technology",
	"RBLX": "Technology", "COIN": "Technology", "HOOD": "Technology", "AFRM": "Technology",
	"SOFI": "Technology", "UPST": "Technology", "MELI": "Technology", "SE": "Technology",

	// Semiconductors
	"TSM": "Semiconductors", "ASML": "Semiconductors", "AVGO": "Semiconductors",
	"QCOM": "Semiconductors", "TXN": "Semiconductors", "MU": "Semiconductors",
	"LRCX": "Semiconductors", "KLAC": "Semiconductors", "AMAT": "Semiconductors",
	"MRVL": "Semiconductors", "ON": "Semiconductors", "ADI": "Semiconductors",

	// Finance
	"JPM": "Finance", "BAC": "Finance", "WFC": "Finance", "C": "Finance",
	"GS": "Finance", "MS": "Finance", "BLK": "Finance", "SCHW": "Finance",
	"V": "Finance", "MA": "Finance", "AXP": "Finance", "COF": "Finance",
	"USB": "Finance", "PNC": "Finance", "TFC": "Finance", "SPGI": "Finance", "MCO": "Finance",

	// Healthcare
	"JNJ": "Healthcare", "UNH": "Healthcare", "PFE": "Healthcare", "MRK": "Healthcare",
	"ABBV": "Healthcare", "LLY": "Healthcare", "TMO": "Healthcare", "ABT": "Healthcare",
	"DHR": "Healthcare", "BMY": "Healthcare", "AMGN": "Healthcare", "GILD": "Healthcare",
	"CVS": "Healthcare", "CI": "Healthcare", "HUM": "Healthcare", "ELV": "Healthcare",
	"ISRG": "Healthcare", "VRTX": "Healthcare", "REGN": "Healthcare", "BIIB": "Healthcare",
	"MRNA": "Healthcare", "ZTS": "Healthcare", "DXCM": "Healthcare", "IDXX": "Healthcare",

	// Consumer
	"WMT": "Consumer", "PG": "Consumer", "KO": "Consumer", "PEP": "Consumer",
	"COST": "Consumer", "HD": "Consumer", "NKE": "Consumer", "MCD": "Consumer",
	"SBUX": "Consumer", "TGT": "Consumer", "LOW": "Consumer", "TJX": "Consumer",
	"CMG": "Consumer", "YUM": "Consumer", "DG": "Consumer", "DLTR": "Consumer",
	"DPZ": "Consumer", "LULU": "Consumer", "ROST": "Consumer",

	// Energy
	"XOM": "Energy", "CVX": "Energy", "COP": "Energy", "SLB": "Energy",
	"EOG": "Energy", "PXD": "Energy", "OXY": "Energy", "MPC": "Energy",
	"VLO": "Energy", "PSX": "Energy", "HAL": "Energy", "BKR": "Energy",
	"DVN": "Energy", "FANG": "Energy", "HES": "Energy", "MRO": "Energy",

	// Industrial
	"BA": "Industrial", "CAT": "Industrial", "RTX": "Industrial", "UNP": "Industrial",
	"UPS": "Industrial", "FDX": "Industrial", "DE": "Industrial", "GE": "Industrial",
	"HON": "Industrial", "MMM": "Industrial", "LMT": "Industrial", "NOC": "Industrial",
	"GD": "Industrial", "WM": "Industrial", "RSG": "Industrial",

	// Communication
	"DIS": "Communication", "CMCSA": "Communication", "VZ": "Communication", "T": "Communication",
	"TMUS": "Communication", "CHTR": "Communication", "EA": "Communication",
	"TTWO": "Communication", "WBD": "Communication", "PARA": "Communication", "FOX": "Communication",

	// Real estate
	"PLD": "Real Estate", "AMT": "Real Estate", "CCI": "Real Estate", "EQIX": "Real Estate",
	"SPG": "Real Estate", "O": "Real Estate", "WELL": "Real Estate", "PSA": "Real Estate",
	"AVB": "Real Estate", "EQR": "Real Estate", "DLR": "Real Estate", "VTR": "Real Estate",

	// Utilities
	"NEE": "Utilities", "DUK": "Utilities", "SO": "Utilities", "D": "Utilities",
	"AEP": "Utilities", "EXC": "Utilities", "SRE": "Utilities", "XEL": "Utilities",

	// Materials
	"LIN": "Materials", "APD": "Materials", "SHW": "Materials", "FCX": "Materials",
	"NEM": "Materials", "NUE": "Materials", "DOW": "Materials", "DD": "Materials",
}

// SectorFor returns the sector bucket for a symbol, or "Unknown"
func SectorFor(symbol string) string {
	if sector, ok := sectorMapping[strings.ToUpper(symbol)]; ok {
		return sector
	}
	return "Unknown"
}

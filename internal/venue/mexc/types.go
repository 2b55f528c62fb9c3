package mexc

import "encoding/json"

// apiResponse is the envelope every contract API endpoint wraps its payload
// in.
type apiResponse struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// tickerData is one entry of /api/v1/contract/ticker.
type tickerData struct {
	Symbol    string  `json:"symbol"`
	LastPrice float64 `json:"lastPrice"`
	Timestamp int64   `json:"timestamp"` // milliseconds
}

// assetData is one entry of /api/v1/private/account/assets.
type assetData struct {
	Currency         string  `json:"currency"`
	AvailableBalance float64 `json:"availableBalance"`
	Equity           float64 `json:"equity"`
}

// positionData is one entry of /api/v1/private/position/open_positions.
type positionData struct {
	Symbol       string  `json:"symbol"`
	HoldVol      float64 `json:"holdVol"`
	PositionType int     `json:"positionType"` // 1 long, 2 short
	HoldAvgPrice float64 `json:"holdAvgPrice"`
}

// orderRequest is the body of /api/v1/private/order/submit.
type orderRequest struct {
	Symbol   string  `json:"symbol"`
	Vol      float64 `json:"vol"`
	Side     int     `json:"side"`
	Type     int     `json:"type"`
	OpenType int     `json:"openType"`
	Leverage int     `json:"leverage,omitempty"`
}

// Contract API numeric enums.
const (
	sideOpenLong   = 1
	sideCloseShort = 2
	sideOpenShort  = 3
	sideCloseLong  = 4

	orderTypeMarket = 5
	openTypeCross   = 2
)

package model

import "time"

// SecurityInfo is one entry of a provider's security list.
type SecurityInfo struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Industry string `json:"industry,omitempty"`
	Area     string `json:"area,omitempty"`
	Market   string `json:"market,omitempty"`
}

// Quote is a one-shot realtime snapshot.
type Quote struct {
	Code     string    `json:"code"`
	Name     string    `json:"name"`
	Price    float64   `json:"price"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	PreClose float64   `json:"pre_close"`
	Volume   float64   `json:"volume"`
	Amount   float64   `json:"amount"`
	PctChg   float64   `json:"pct_chg"`
	Time     time.Time `json:"time"`
}

// TradeStatus answers "what is the latest trading day as of today".
type TradeStatus struct {
	LatestTradeDate time.Time
	IsTradeDayToday bool
}

package models

import "strconv"

// RiskLevelLow is the only risk level the dashboard currently reports.
const RiskLevelLow = "LOW"

// KPIView is the card row derived from a snapshot.
type KPIView struct {
	Initializing    bool    `json:"initializing"`
	Sentiment       string  `json:"sentiment"`
	ActivePositions int     `json:"active_positions"`
	PnL             float64 `json:"pnl"`
	PnLLabel        string  `json:"pnl_label"`
	RiskLevel       string  `json:"risk_level"`
}

// NewKPIView computes the KPI cards. A nil snapshot yields an initializing view.
func NewKPIView(s *Snapshot) KPIView {
	if s == nil {
		return KPIView{Initializing: true, PnLLabel: "₹0", RiskLevel: RiskLevelLow}
	}
	v := KPIView{
		ActivePositions: s.ActivePositions(),
		PnL:             s.PnL(),
		RiskLevel:       RiskLevelLow,
	}
	if sent, ok := s.Sentiment(); ok {
		v.Sentiment = strconv.FormatFloat(sent, 'f', 2, 64)
	}
	v.PnLLabel = "₹" + strconv.FormatFloat(v.PnL, 'f', -1, 64)
	return v
}

package models

import "strings"

// DashboardView is the frame the trading engine broadcasts on every index bar.
// Every section is optional; widgets render a waiting state for what is missing.
type DashboardView struct {
	Timestamp int64   `json:"timestamp"`
	Symbol    string  `json:"symbol"`
	Spot      float64 `json:"spot"`
	Future    float64 `json:"future"`
	Basis     float64 `json:"basis"`
	PCR       float64 `json:"pcr"`
	OHLC      *OHLC   `json:"ohlc,omitempty"`

	WSSLatency      int64 `json:"wssLatency"`
	QuestDBWriteLag int64 `json:"questDbWriteLag"`

	AuctionProfile *AuctionProfile `json:"auctionProfile,omitempty"`

	Heavyweights  []Heavyweight `json:"heavyweights,omitempty"`
	WeightedDelta float64       `json:"weighted_delta"`

	OptionChain []OptionQuote `json:"optionChain,omitempty"`

	AuctionState string        `json:"auctionState,omitempty"`
	Alerts       []string      `json:"alerts,omitempty"`
	ScalpSignals []ScalpSignal `json:"scalpSignals,omitempty"`
	ActiveTrades []ActiveTrade `json:"active_trades,omitempty"`
	ClosedTrades []ClosedTrade `json:"closed_trades,omitempty"`

	// ThetaGuard is the remaining theta guard window in seconds.
	ThetaGuard float64 `json:"thetaGuard"`
}

type OHLC struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// AuctionProfile holds the value area high/low and point of control.
type AuctionProfile struct {
	VAH float64 `json:"vah"`
	VAL float64 `json:"val"`
	POC float64 `json:"poc"`
}

type Heavyweight struct {
	Name   string  `json:"name"`
	Delta  float64 `json:"delta"`
	Weight string  `json:"weight"`
	Price  float64 `json:"price"`
	Change float64 `json:"change"`
	QTP    int64   `json:"qtp"`
}

type OptionQuote struct {
	Strike          int     `json:"strike"`
	Type            string  `json:"type"` // CE or PE
	LTP             float64 `json:"ltp"`
	OIChangePercent float64 `json:"oiChangePercent"`
	Sentiment       string  `json:"sentiment"`
}

type ScalpSignal struct {
	Symbol     string  `json:"symbol"`
	Gate       string  `json:"gate"`
	Entry      float64 `json:"entry"`
	StopLoss   float64 `json:"sl"`
	TakeProfit float64 `json:"tp"`
	Status     string  `json:"status"`
}

type ActiveTrade struct {
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Entry     float64 `json:"entry"`
	LTP       float64 `json:"ltp"`
	Qty       int     `json:"qty"`
	PnL       float64 `json:"pnl"`
	EntryTime int64   `json:"entryTime"`
	Strategy  string  `json:"strategy,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

type ClosedTrade struct {
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Entry     float64 `json:"entry"`
	Exit      float64 `json:"exit"`
	PnL       float64 `json:"pnl"`
	EntryTime int64   `json:"entryTime"`
	ExitTime  int64   `json:"exitTime"`
	Strategy  string  `json:"strategy,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

// OpenPnL sums the unrealized PnL of the active trades.
func (v *DashboardView) OpenPnL() float64 {
	var total float64
	for _, trade := range v.ActiveTrades {
		total += trade.PnL
	}
	return total
}

// RealizedPnL sums the PnL of the closed trades.
func (v *DashboardView) RealizedPnL() float64 {
	var total float64
	for _, trade := range v.ClosedTrades {
		total += trade.PnL
	}
	return total
}

// Field returns one of the numeric header fields by its wire name.
func (v *DashboardView) Field(name string) (float64, bool) {
	switch name {
	case FieldSpot:
		return v.Spot, true
	case FieldFuture:
		return v.Future, true
	case FieldBasis:
		return v.Basis, true
	case FieldPCR:
		return v.PCR, true
	case FieldWeightedDelta:
		return v.WeightedDelta, true
	default:
		return 0, false
	}
}

// TradePnL computes the per-trade PnL the way the engine does: long when side is BUY,
// short otherwise.
func TradePnL(side string, entry, ltp float64, qty int) float64 {
	perUnit := entry - ltp
	if strings.EqualFold(strings.TrimSpace(side), "BUY") {
		perUnit = ltp - entry
	}
	return perUnit * float64(qty)
}

package domain

import "time"

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// OrderState is the order lifecycle: Pending -> Filled | Rejected | Expired.
type OrderState string

const (
	OrderPending  OrderState = "PENDING"
	OrderFilled   OrderState = "FILLED"
	OrderRejected OrderState = "REJECTED"
	OrderExpired  OrderState = "EXPIRED"
)

// Order is owned exclusively by the order simulator for its lifetime.
// A pending order may fill no earlier than EarliestFillBar (the bar
// immediately after the signal's decision bar) and expires after
// ExpiryBar if still pending.
type Order struct {
	ID              string     `json:"id"`
	SignalID        string     `json:"signal_id"`
	Symbol          string     `json:"symbol"`
	Side            Side       `json:"side"`
	Quantity        float64    `json:"quantity"`
	State           OrderState `json:"state"`
	EarliestFillBar int        `json:"earliest_fill_bar"`
	ExpiryBar       int        `json:"expiry_bar"`

	FillBar    int     `json:"fill_bar"`
	FillPrice  float64 `json:"fill_price"`
	Commission float64 `json:"commission"`
	Slippage   float64 `json:"slippage"`

	RejectReason string `json:"reject_reason,omitempty"`
}

// Position is an open simulated position, owned exclusively by the
// position manager of one run.
type Position struct {
	Symbol           string
	Side             Side
	Quantity         float64
	EntryPrice       float64
	EntryTime        time.Time
	EntryBar         int
	Stop             float64
	Target           float64
	RiskPerUnit      float64 // |entry - stop| at entry, fixed for R-multiple accounting
	Commission       float64 // cumulative
	Slippage         float64 // cumulative
	UnrealizedPnL    float64
	SignalID         string
	CampaignID       string
	CorrelationGroup string
}

// OpenRisk is the remaining dollar risk of the position: distance from
// entry to stop times quantity.
func (p *Position) OpenRisk() float64 {
	risk := p.EntryPrice - p.Stop
	if p.Side == SideShort {
		risk = p.Stop - p.EntryPrice
	}
	if risk < 0 {
		risk = 0
	}
	return risk * p.Quantity
}

// ExitReason explains why a position closed.
type ExitReason string

const (
	ExitStop      ExitReason = "STOP"
	ExitTarget    ExitReason = "TARGET"
	ExitTimeout   ExitReason = "TIMEOUT"
	ExitReversal  ExitReason = "SIGNAL_REVERSAL"
	ExitEndOfData ExitReason = "END_OF_DATA"
)

// Trade is the closed record of one completed position. Immutable once
// created; the sole input of the metrics facade.
type Trade struct {
	ID         string     `json:"id"`
	RunID      string     `json:"run_id"`
	SignalID   string     `json:"signal_id"`
	Symbol     string     `json:"symbol"`
	Side       Side       `json:"side"`
	Quantity   float64    `json:"quantity"`
	EntryPrice float64    `json:"entry_price"`
	EntryTime  time.Time  `json:"entry_time"`
	EntryBar   int        `json:"entry_bar"`
	ExitPrice  float64    `json:"exit_price"`
	ExitTime   time.Time  `json:"exit_time"`
	ExitBar    int        `json:"exit_bar"`
	PnL        float64    `json:"pnl"` // net of commission and slippage
	RMultiple  float64    `json:"r_multiple"`
	ExitReason ExitReason `json:"exit_reason"`
	Commission float64    `json:"commission"`
	Slippage   float64    `json:"slippage"`
	CampaignID string     `json:"campaign_id,omitempty"`
}

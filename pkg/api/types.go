package api

import (
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/openbook/pkg/core"
	"github.com/uhyunpark/openbook/pkg/core/book"
)

type PlaceOrderRequest struct {
	UserID      string           `json:"userId"`
	Instrument  string           `json:"instrument"`
	Side        core.Side        `json:"side"`
	Type        core.OrderType   `json:"type"`
	Price       decimal.Decimal  `json:"price"`
	Quantity    int64            `json:"quantity"`
	TimeInForce core.TimeInForce `json:"timeInForce"`
}

type PlaceOrderResponse struct {
	OrderID   string      `json:"orderId"`
	Status    core.Status `json:"status"`
	Duplicate bool        `json:"duplicate,omitempty"`
}

type CancelOrderResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// PriceLevel renders ticks as a client-facing decimal string.
type PriceLevel struct {
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
	Orders   int    `json:"orders"`
}

type DepthSnapshot struct {
	Type       string       `json:"type,omitempty"`
	Instrument string       `json:"instrument"`
	Bids       []PriceLevel `json:"bids"`
	Asks       []PriceLevel `json:"asks"`
	Spread     *string      `json:"spread"`
	Timestamp  int64        `json:"timestamp"`
}

type TradeRecord struct {
	Type       string `json:"type,omitempty"`
	TradeID    string `json:"tradeId"`
	Instrument string `json:"instrument"`
	Price      string `json:"price"`
	Quantity   int64  `json:"quantity"`
	Timestamp  int64  `json:"timestamp"`
}

type PositionInfo struct {
	Instrument   string `json:"instrument"`
	Quantity     int64  `json:"quantity"`
	AveragePrice string `json:"averagePrice"`
	RealizedPnL  string `json:"realizedPnL"`
	LastUpdated  int64  `json:"lastUpdated"`
}

type WSSubscribeRequest struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

func toDepthSnapshot(snap *book.Snapshot) DepthSnapshot {
	out := DepthSnapshot{
		Instrument: snap.Instrument,
		Bids:       toLevels(snap.Bids),
		Asks:       toLevels(snap.Asks),
		Timestamp:  snap.Timestamp,
	}
	if snap.Spread != nil {
		s := core.TicksToPrice(*snap.Spread).StringFixed(2)
		out.Spread = &s
	}
	return out
}

func toLevels(levels []book.Level) []PriceLevel {
	out := make([]PriceLevel, len(levels))
	for i, l := range levels {
		out[i] = PriceLevel{
			Price:    core.TicksToPrice(l.Price).StringFixed(2),
			Quantity: l.Quantity,
			Orders:   l.Orders,
		}
	}
	return out
}

func toTradeRecord(t *core.Trade) TradeRecord {
	return TradeRecord{
		TradeID:    t.ID,
		Instrument: t.Instrument,
		Price:      core.TicksToPrice(t.Price).StringFixed(2),
		Quantity:   t.Quantity,
		Timestamp:  t.Timestamp,
	}
}

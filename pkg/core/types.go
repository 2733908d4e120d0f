package core

import (
	"github.com/shopspring/decimal"
)

// Prices are stored as integer ticks; one tick is $0.01. Quantities are whole
// units. Timestamps are Unix milliseconds.

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

type OrderType string

const (
	Limit  OrderType = "LIMIT"
	Market OrderType = "MARKET"
)

type TimeInForce string

const (
	GTC TimeInForce = "GTC"
	Day TimeInForce = "DAY"
	IOC TimeInForce = "IOC"
)

type Status string

const (
	StatusPending         Status = "PENDING"
	StatusOpen            Status = "OPEN"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCancelled       Status = "CANCELLED"
	StatusExpired         Status = "EXPIRED"
)

// Terminal reports whether no further status or quantity mutation is permitted.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusExpired
}

type Order struct {
	ID                string      `json:"id"`
	UserID            string      `json:"userId"`
	Instrument        string      `json:"instrument"`
	Side              Side        `json:"side"`
	Type              OrderType   `json:"type"`
	Status            Status      `json:"status"`
	Price             int64       `json:"price"` // ticks; 0 for MARKET orders
	Quantity          int64       `json:"quantity"`
	RemainingQuantity int64       `json:"remainingQuantity"`
	Timestamp         int64       `json:"timestamp"`
	TimeInForce       TimeInForce `json:"timeInForce"`
	ExpiresAt         int64       `json:"expiresAt,omitempty"` // 0 = never
}

// Resting reports whether the order belongs in the book: a LIMIT order with
// quantity left and a non-terminal, admitted status.
func (o *Order) Resting() bool {
	return o.Type == Limit &&
		o.RemainingQuantity > 0 &&
		(o.Status == StatusOpen || o.Status == StatusPartiallyFilled)
}

// Trade is immutable once created. Price is the maker's price.
type Trade struct {
	ID          string `json:"id"`
	Instrument  string `json:"instrument"`
	Price       int64  `json:"price"`
	Quantity    int64  `json:"quantity"`
	BuyOrderID  string `json:"buyOrderId"`
	SellOrderID string `json:"sellOrderId"`
	Timestamp   int64  `json:"timestamp"`
}

// Position tracks per (user, instrument) inventory. Quantity is signed:
// positive long, negative short. Unrealized PnL is never stored; it belongs to
// whoever holds a mark price.
type Position struct {
	UserID       string `json:"userId"`
	Instrument   string `json:"instrument"`
	Quantity     int64  `json:"quantity"`
	AveragePrice int64  `json:"averagePrice"` // ticks, always >= 0
	RealizedPnL  int64  `json:"realizedPnL"`  // ticks * quantity units
	LastUpdated  int64  `json:"lastUpdated"`
}

// PlaceOrderInput is the shape of an order intent before admission. Price is a
// client-facing decimal; the gate converts it to ticks.
type PlaceOrderInput struct {
	UserID      string          `json:"userId"`
	Instrument  string          `json:"instrument"`
	Side        Side            `json:"side"`
	Type        OrderType       `json:"type"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity"`
	TimeInForce TimeInForce     `json:"timeInForce"`
}

// OrderAck is the synchronous answer to a placement.
type OrderAck struct {
	OrderID   string `json:"orderId"`
	Status    Status `json:"status"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// Store groups. The orderbook groups hold membership only; the order record in
// the orders group stays the single source of truth.
const (
	GroupOrders    = "orders"
	GroupTrades    = "trades"
	GroupPositions = "positions"
)

func BookGroup(instrument string, side Side) string {
	return "orderbook:" + instrument + ":" + string(side)
}

func PositionKey(userID, instrument string) string {
	return userID + ":" + instrument
}

var ticksPerUnit = decimal.NewFromInt(100)

// PriceToTicks converts a decimal price to ticks, rejecting values that are
// not exact multiples of the minimum tick.
func PriceToTicks(p decimal.Decimal) (int64, error) {
	scaled := p.Mul(ticksPerUnit)
	if !scaled.IsInteger() {
		return 0, &ValidationError{Field: "price", Reason: "price must be a multiple of 0.01"}
	}
	return scaled.IntPart(), nil
}

// TicksToPrice renders ticks as the client-facing decimal price.
func TicksToPrice(ticks int64) decimal.Decimal {
	return decimal.New(ticks, -2)
}

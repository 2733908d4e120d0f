// Package events defines the outbound domain-event boundary: topics, payload
// shapes, and the Sink capability. Delivery is at-least-once; ordering is only
// guaranteed within a topic by the underlying transport, so consumers must
// treat payloads as idempotent facts.
package events

import "context"

const (
	TopicOrderPlaced          = "order.placed"
	TopicOrderCancelled       = "order.cancelled"
	TopicTradeExecuted        = "trade.executed"
	TopicCancellationRecorded = "cancellation.recorded"
)

type OrderPlaced struct {
	OrderID    string `json:"orderId"`
	Instrument string `json:"instrument"`
}

type OrderCancelled struct {
	OrderID    string `json:"orderId"`
	Instrument string `json:"instrument"`
	Side       string `json:"side"`
}

type TradeExecuted struct {
	TradeID     string `json:"tradeId"`
	BuyOrderID  string `json:"buyOrderId"`
	SellOrderID string `json:"sellOrderId"`
	Instrument  string `json:"instrument"`
}

type CancellationRecorded struct {
	OrderID    string `json:"orderId"`
	Instrument string `json:"instrument"`
	Side       string `json:"side"`
}

// Sink publishes a domain event. Implementations must not block indefinitely.
type Sink interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Package match implements the price-time priority matching pass. Match is a
// pure function over the order structs it is handed: it mutates remaining
// quantities and produces trades, but never touches book membership or
// persistence. The caller decides what rests and what is removed.
package match

import (
	"github.com/google/uuid"

	"github.com/uhyunpark/openbook/pkg/core"
)

// Crosses reports whether the incoming order can trade against a resting
// maker. MARKET orders always cross.
func Crosses(incoming, maker *core.Order) bool {
	if incoming.Type == core.Market {
		return true
	}
	if incoming.Side == core.Buy {
		return incoming.Price >= maker.Price
	}
	return incoming.Price <= maker.Price
}

// Match walks the opposite side in priority order and trades until the
// incoming order is exhausted or the first maker fails the crossing test.
// Priority ordering guarantees no later maker can cross once one fails, so
// scanning stops there. Trade price is always the maker's price.
func Match(incoming *core.Order, resting []*core.Order, now int64) []*core.Trade {
	var trades []*core.Trade

	for _, maker := range resting {
		if incoming.RemainingQuantity == 0 {
			break
		}
		if !Crosses(incoming, maker) {
			break
		}

		qty := incoming.RemainingQuantity
		if maker.RemainingQuantity < qty {
			qty = maker.RemainingQuantity
		}

		trade := &core.Trade{
			ID:         uuid.NewString(),
			Instrument: incoming.Instrument,
			Price:      maker.Price,
			Quantity:   qty,
			Timestamp:  now,
		}
		if incoming.Side == core.Buy {
			trade.BuyOrderID = incoming.ID
			trade.SellOrderID = maker.ID
		} else {
			trade.BuyOrderID = maker.ID
			trade.SellOrderID = incoming.ID
		}
		trades = append(trades, trade)

		incoming.RemainingQuantity -= qty
		maker.RemainingQuantity -= qty
	}

	return trades
}

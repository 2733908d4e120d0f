// Package ledger keeps per (user, instrument) inventory and realized PnL.
// ApplyTradeLeg must be invoked exactly once per trade per counterparty;
// the orchestrator's per-instrument serialization guarantees that.
package ledger

import (
	"context"

	"github.com/uhyunpark/openbook/pkg/core"
	"github.com/uhyunpark/openbook/pkg/storage"
	"github.com/uhyunpark/openbook/pkg/util"
)

type Ledger struct {
	store storage.Store
	clock util.Clock
}

func New(store storage.Store, clock util.Clock) *Ledger {
	return &Ledger{store: store, clock: clock}
}

// ApplyTradeLeg applies one side of a trade to the counterparty's position.
// A buy leg adds +quantity, a sell leg -quantity. Increasing or opening a
// position recomputes the average cost; reducing, closing or flipping one
// realizes PnL on the closed portion at the old average cost.
func (l *Ledger) ApplyTradeLeg(ctx context.Context, t *core.Trade, side core.Side, userID string) (*core.Position, error) {
	key := core.PositionKey(userID, t.Instrument)

	pos := &core.Position{UserID: userID, Instrument: t.Instrument}
	if _, err := l.store.Get(ctx, core.GroupPositions, key, pos); err != nil {
		return nil, err
	}

	delta := t.Quantity
	if side == core.Sell {
		delta = -t.Quantity
	}

	old := pos.Quantity
	newQty := old + delta

	if old == 0 || sameSign(old, delta) {
		// opening or adding: weighted average cost
		if newQty != 0 {
			pos.AveragePrice = abs((old*pos.AveragePrice + delta*t.Price) / newQty)
		}
	} else {
		// reducing, closing or flipping: realize PnL on the closed portion
		closed := min64(abs(old), abs(delta))
		perUnit := t.Price - pos.AveragePrice // sell leg closing a long
		if old < 0 {
			perUnit = pos.AveragePrice - t.Price // buy leg closing a short
		}
		pos.RealizedPnL += closed * perUnit

		switch {
		case newQty == 0:
			pos.AveragePrice = 0
		case !sameSign(old, newQty):
			// flipped through zero: the surviving exposure was opened
			// by this trade
			pos.AveragePrice = t.Price
		}
	}

	pos.Quantity = newQty
	pos.LastUpdated = l.clock.Now().UnixMilli()

	if err := l.store.Set(ctx, core.GroupPositions, key, pos); err != nil {
		return nil, err
	}
	return pos, nil
}

// Get returns the position for (user, instrument), or a zero position when
// none exists yet.
func (l *Ledger) Get(ctx context.Context, userID, instrument string) (*core.Position, error) {
	pos := &core.Position{UserID: userID, Instrument: instrument}
	if _, err := l.store.Get(ctx, core.GroupPositions, core.PositionKey(userID, instrument), pos); err != nil {
		return nil, err
	}
	return pos, nil
}

func sameSign(a, b int64) bool {
	return (a > 0) == (b > 0)
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// Package book maintains the per (instrument, side) index of resting orders.
// The index holds membership only; order records in the orders group remain
// the single source of truth, so the book can always be rebuilt from them.
package book

import (
	"context"
	"fmt"
	"sort"

	"github.com/uhyunpark/openbook/pkg/core"
	"github.com/uhyunpark/openbook/pkg/storage"
)

type Book struct {
	store storage.Store
}

func New(store storage.Store) *Book {
	return &Book{store: store}
}

// entry is what the book group stores per resting order.
type entry struct {
	OrderID string `json:"orderId"`
}

// Add inserts a resting LIMIT order into its (instrument, side) collection.
func (b *Book) Add(ctx context.Context, o *core.Order) error {
	if !o.Resting() {
		return fmt.Errorf("order %s is not restable (type=%s status=%s remaining=%d)",
			o.ID, o.Type, o.Status, o.RemainingQuantity)
	}
	return b.store.Set(ctx, core.BookGroup(o.Instrument, o.Side), o.ID, entry{OrderID: o.ID})
}

// Remove is idempotent; removing an absent order is a no-op.
func (b *Book) Remove(ctx context.Context, orderID, instrument string, side core.Side) error {
	return b.store.Delete(ctx, core.BookGroup(instrument, side), orderID)
}

// Orders returns the resting orders for one side in matching priority:
// bids by price descending, asks by price ascending, ties by timestamp
// ascending. Entries whose order record is no longer resting are skipped.
func (b *Book) Orders(ctx context.Context, instrument string, side core.Side) ([]*core.Order, error) {
	var ids []string
	err := b.store.ScanGroup(ctx, core.BookGroup(instrument, side), func(key string, _ []byte) error {
		ids = append(ids, key)
		return nil
	})
	if err != nil {
		return nil, err
	}

	orders := make([]*core.Order, 0, len(ids))
	for _, id := range ids {
		var o core.Order
		found, err := b.store.Get(ctx, core.GroupOrders, id, &o)
		if err != nil {
			return nil, err
		}
		if !found || !o.Resting() {
			continue
		}
		orders = append(orders, &o)
	}

	SortByPriority(orders, side)
	return orders, nil
}

// SortByPriority orders a slice by price-time priority for the given side.
func SortByPriority(orders []*core.Order, side core.Side) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].Price != orders[j].Price {
			if side == core.Buy {
				return orders[i].Price > orders[j].Price
			}
			return orders[i].Price < orders[j].Price
		}
		return orders[i].Timestamp < orders[j].Timestamp
	})
}

// BestPrice returns the top-of-book price for one side.
func (b *Book) BestPrice(ctx context.Context, instrument string, side core.Side) (int64, bool, error) {
	orders, err := b.Orders(ctx, instrument, side)
	if err != nil {
		return 0, false, err
	}
	if len(orders) == 0 {
		return 0, false, nil
	}
	return orders[0].Price, true, nil
}

// Level is one aggregated price level of a depth snapshot.
type Level struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
	Orders   int   `json:"orders"`
}

// Snapshot is an aggregated view of both sides, at most depth levels each.
// Spread is nil when either side is empty.
type Snapshot struct {
	Instrument string  `json:"instrument"`
	Bids       []Level `json:"bids"`
	Asks       []Level `json:"asks"`
	Spread     *int64  `json:"spread"`
	Timestamp  int64   `json:"timestamp"`
}

// Depth aggregates resting orders by price level and computes the spread.
func (b *Book) Depth(ctx context.Context, instrument string, depth int, now int64) (*Snapshot, error) {
	bids, err := b.Orders(ctx, instrument, core.Buy)
	if err != nil {
		return nil, err
	}
	asks, err := b.Orders(ctx, instrument, core.Sell)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Instrument: instrument,
		Bids:       aggregate(bids, depth),
		Asks:       aggregate(asks, depth),
		Timestamp:  now,
	}
	if len(snap.Bids) > 0 && len(snap.Asks) > 0 {
		spread := snap.Asks[0].Price - snap.Bids[0].Price
		snap.Spread = &spread
	}
	return snap, nil
}

// aggregate assumes orders are already in priority order, so levels come out
// best-first.
func aggregate(orders []*core.Order, depth int) []Level {
	levels := make([]Level, 0, depth)
	for _, o := range orders {
		if n := len(levels); n > 0 && levels[n-1].Price == o.Price {
			levels[n-1].Quantity += o.RemainingQuantity
			levels[n-1].Orders++
			continue
		}
		if len(levels) == depth {
			break
		}
		levels = append(levels, Level{Price: o.Price, Quantity: o.RemainingQuantity, Orders: 1})
	}
	return levels
}

// Rebuild re-derives both sides of an instrument's index from the order set:
// scan all orders, keep resting LIMIT orders, rewrite membership. This is the
// deterministic recovery path after a crash.
func (b *Book) Rebuild(ctx context.Context, instrument string) error {
	for _, side := range []core.Side{core.Buy, core.Sell} {
		group := core.BookGroup(instrument, side)
		var stale []string
		err := b.store.ScanGroup(ctx, group, func(key string, _ []byte) error {
			stale = append(stale, key)
			return nil
		})
		if err != nil {
			return err
		}
		for _, id := range stale {
			if err := b.store.Delete(ctx, group, id); err != nil {
				return err
			}
		}
	}

	var ids []string
	err := b.store.ScanGroup(ctx, core.GroupOrders, func(key string, _ []byte) error {
		ids = append(ids, key)
		return nil
	})
	if err != nil {
		return err
	}
	for _, id := range ids {
		var o core.Order
		found, err := b.store.Get(ctx, core.GroupOrders, id, &o)
		if err != nil {
			return err
		}
		if !found || o.Instrument != instrument || !o.Resting() {
			continue
		}
		if err := b.Add(ctx, &o); err != nil {
			return err
		}
	}
	return nil
}

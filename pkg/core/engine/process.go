package engine

import (
	"context"

	"github.com/uhyunpark/openbook/pkg/core"
	"github.com/uhyunpark/openbook/pkg/core/lifecycle"
	"github.com/uhyunpark/openbook/pkg/core/match"
	"github.com/uhyunpark/openbook/pkg/events"
)

// processPlace is the matching unit of work, run on the instrument worker:
// OPEN transition, matching pass, trade + ledger persistence, book
// maintenance, final status. Any failure after the OPEN transition triggers a
// compensating CANCELLED transition; nothing is retried.
func (e *Engine) processPlace(ctx context.Context, orderID string) {
	var order core.Order
	found, err := e.store.Get(ctx, core.GroupOrders, orderID, &order)
	if err != nil {
		e.log.Errorw("order_load_failed", "order_id", orderID, "err", err)
		return
	}
	if !found {
		e.log.Errorw("order_not_found", "order_id", orderID)
		return
	}
	if order.Status != core.StatusPending {
		// already processed; the at-least-once transport redelivered
		return
	}

	if err := lifecycle.Transition(&order, core.StatusOpen); err != nil {
		e.log.Errorw("order_open_failed", "order_id", orderID, "err", err)
		return
	}
	if err := e.store.Set(ctx, core.GroupOrders, order.ID, &order); err != nil {
		e.log.Errorw("order_persist_failed", "order_id", orderID, "err", err)
		return
	}

	if err := e.runMatch(ctx, &order); err != nil {
		e.log.Errorw("order_processing_failed",
			"order_id", orderID, "instrument", order.Instrument, "err", err)
		e.compensate(ctx, orderID, "matching failed")
		return
	}

	e.publishDepth(ctx, order.Instrument)
	e.log.Infow("order_processed",
		"order_id", order.ID, "instrument", order.Instrument, "status", order.Status,
		"remaining", order.RemainingQuantity)
}

func (e *Engine) runMatch(ctx context.Context, order *core.Order) error {
	opposite, err := e.book.Orders(ctx, order.Instrument, order.Side.Opposite())
	if err != nil {
		return err
	}

	now := e.clock.Now().UnixMilli()
	trades := match.Match(order, opposite, now)

	byID := map[string]*core.Order{order.ID: order}
	for _, maker := range opposite {
		byID[maker.ID] = maker
	}

	touched := make(map[string]bool, len(trades))
	for _, t := range trades {
		if err := e.store.Set(ctx, core.GroupTrades, t.ID, t); err != nil {
			return err
		}

		buyer, seller := byID[t.BuyOrderID], byID[t.SellOrderID]
		if _, err := e.ledger.ApplyTradeLeg(ctx, t, core.Buy, buyer.UserID); err != nil {
			return err
		}
		if _, err := e.ledger.ApplyTradeLeg(ctx, t, core.Sell, seller.UserID); err != nil {
			return err
		}

		if err := e.sink.Publish(ctx, events.TopicTradeExecuted, events.TradeExecuted{
			TradeID:     t.ID,
			BuyOrderID:  t.BuyOrderID,
			SellOrderID: t.SellOrderID,
			Instrument:  t.Instrument,
		}); err != nil {
			return err
		}
		if e.feeds != nil {
			e.feeds.PublishTrade(t)
		}

		maker := seller
		if maker == order {
			maker = buyer
		}
		touched[maker.ID] = true

		e.log.Infow("trade_executed",
			"trade_id", t.ID, "instrument", t.Instrument,
			"price", t.Price, "quantity", t.Quantity,
			"buy_order_id", t.BuyOrderID, "sell_order_id", t.SellOrderID)
	}

	for _, maker := range opposite {
		if !touched[maker.ID] {
			continue
		}
		if err := lifecycle.Transition(maker, lifecycle.StatusForRemaining(maker)); err != nil {
			return err
		}
		if err := e.store.Set(ctx, core.GroupOrders, maker.ID, maker); err != nil {
			return err
		}
		if maker.RemainingQuantity == 0 {
			if err := e.book.Remove(ctx, maker.ID, maker.Instrument, maker.Side); err != nil {
				return err
			}
		}
	}

	if err := lifecycle.Transition(order, lifecycle.StatusForRemaining(order)); err != nil {
		return err
	}
	if err := e.store.Set(ctx, core.GroupOrders, order.ID, order); err != nil {
		return err
	}

	if order.Resting() {
		return e.rest(ctx, order)
	}
	return nil
}

// rest inserts the incoming order's remainder, unless doing so would cross
// the now-current opposite best. Matching already consumed every crossing
// maker, so a trip here means another writer raced us; refusing the insert
// keeps the no-cross invariant at the cost of a stranded (still cancellable)
// order, which is the safe side of that trade-off.
func (e *Engine) rest(ctx context.Context, order *core.Order) error {
	best, ok, err := e.book.BestPrice(ctx, order.Instrument, order.Side.Opposite())
	if err != nil {
		return err
	}
	if ok {
		crossed := (order.Side == core.Buy && best <= order.Price) ||
			(order.Side == core.Sell && best >= order.Price)
		if crossed {
			e.log.Errorw("crossed_book_refused",
				"order_id", order.ID, "instrument", order.Instrument,
				"side", order.Side, "price", order.Price, "opposite_best", best,
				"err", core.ErrCrossedBook)
			return nil
		}
	}
	if err := e.book.Add(ctx, order); err != nil {
		return err
	}
	e.log.Infow("order_rested",
		"order_id", order.ID, "instrument", order.Instrument,
		"side", order.Side, "price", order.Price, "remaining", order.RemainingQuantity)
	return nil
}

// processCancel commits a cancellation. Terminal orders are a no-op: the
// cancel lost a race against a fill or expiry, which is the deterministic
// outcome the state-checked transition provides.
func (e *Engine) processCancel(ctx context.Context, orderID string) {
	var order core.Order
	found, err := e.store.Get(ctx, core.GroupOrders, orderID, &order)
	if err != nil {
		e.log.Errorw("order_load_failed", "order_id", orderID, "err", err)
		return
	}
	if !found {
		e.log.Errorw("order_not_found", "order_id", orderID)
		return
	}
	if order.Status.Terminal() {
		e.log.Infow("cancel_noop_terminal", "order_id", orderID, "status", order.Status)
		return
	}

	if err := lifecycle.Transition(&order, core.StatusCancelled); err != nil {
		e.log.Errorw("cancel_transition_failed", "order_id", orderID, "err", err)
		return
	}
	if err := e.store.Set(ctx, core.GroupOrders, order.ID, &order); err != nil {
		e.log.Errorw("order_persist_failed", "order_id", orderID, "err", err)
		return
	}
	if err := e.book.Remove(ctx, order.ID, order.Instrument, order.Side); err != nil {
		e.log.Errorw("book_remove_failed", "order_id", orderID, "err", err)
		return
	}

	if err := e.sink.Publish(ctx, events.TopicCancellationRecorded, events.CancellationRecorded{
		OrderID: order.ID, Instrument: order.Instrument, Side: string(order.Side),
	}); err != nil {
		e.log.Errorw("publish_failed", "topic", events.TopicCancellationRecorded,
			"order_id", orderID, "err", err)
	}

	e.publishDepth(ctx, order.Instrument)
	e.log.Infow("order_cancelled", "order_id", order.ID, "instrument", order.Instrument, "side", order.Side)
}

// processExpire transitions a single overdue order to EXPIRED and evicts it.
func (e *Engine) processExpire(ctx context.Context, orderID string) {
	var order core.Order
	found, err := e.store.Get(ctx, core.GroupOrders, orderID, &order)
	if err != nil {
		e.log.Errorw("order_load_failed", "order_id", orderID, "err", err)
		return
	}
	if !found || order.Status.Terminal() {
		return
	}
	if order.ExpiresAt == 0 || order.ExpiresAt > e.clock.Now().UnixMilli() {
		return
	}

	if err := lifecycle.Transition(&order, core.StatusExpired); err != nil {
		// PENDING orders cannot expire; the next sweep retries after admission settles
		return
	}
	if err := e.store.Set(ctx, core.GroupOrders, order.ID, &order); err != nil {
		e.log.Errorw("order_persist_failed", "order_id", orderID, "err", err)
		return
	}
	if err := e.book.Remove(ctx, order.ID, order.Instrument, order.Side); err != nil {
		e.log.Errorw("book_remove_failed", "order_id", orderID, "err", err)
		return
	}

	e.publishDepth(ctx, order.Instrument)
	e.log.Infow("order_expired",
		"order_id", order.ID, "instrument", order.Instrument,
		"tif", order.TimeInForce, "expires_at", order.ExpiresAt)
}

// compensate rolls an in-flight order back to CANCELLED after a processing
// failure, so no reported failure leaves a non-terminal ambiguity. Skipped
// when the order already reached a terminal state (notably FILLED).
func (e *Engine) compensate(ctx context.Context, orderID, cause string) {
	var order core.Order
	found, err := e.store.Get(ctx, core.GroupOrders, orderID, &order)
	if err != nil || !found {
		e.log.Errorw("compensation_load_failed", "order_id", orderID, "err", err)
		return
	}
	if order.Status.Terminal() {
		return
	}
	if err := lifecycle.Transition(&order, core.StatusCancelled); err != nil {
		return
	}
	if err := e.store.Set(ctx, core.GroupOrders, order.ID, &order); err != nil {
		e.log.Errorw("compensation_persist_failed", "order_id", orderID, "err", err)
		return
	}
	if err := e.book.Remove(ctx, order.ID, order.Instrument, order.Side); err != nil {
		e.log.Errorw("book_remove_failed", "order_id", orderID, "err", err)
	}
	e.log.Warnw("order_compensated_cancelled", "order_id", orderID, "cause", cause)
}

func (e *Engine) publishDepth(ctx context.Context, instrument string) {
	if e.feeds == nil {
		return
	}
	snap, err := e.book.Depth(ctx, instrument, DepthLevels, e.clock.Now().UnixMilli())
	if err != nil {
		e.log.Errorw("depth_snapshot_failed", "instrument", instrument, "err", err)
		return
	}
	e.feeds.PublishDepth(snap)
}

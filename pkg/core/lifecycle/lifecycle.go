// Package lifecycle owns the order state machine, time-in-force expiry, and
// the admission gate applied before an order may enter matching.
package lifecycle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/uhyunpark/openbook/params"
	"github.com/uhyunpark/openbook/pkg/core"
	"github.com/uhyunpark/openbook/pkg/storage"
	"github.com/uhyunpark/openbook/pkg/util"
)

// Transition applies a forward-only status change. Terminal states are frozen:
// any attempt to leave one returns InvalidTransitionError, which callers on
// cancel/expire paths downgrade to a no-op. FILLED additionally requires the
// order to have no remaining quantity.
func Transition(o *core.Order, to core.Status) error {
	if o.Status == to {
		return nil
	}
	invalid := &core.InvalidTransitionError{OrderID: o.ID, From: o.Status, To: to}
	if o.Status.Terminal() {
		return invalid
	}

	switch to {
	case core.StatusOpen:
		if o.Status != core.StatusPending {
			return invalid
		}
	case core.StatusPartiallyFilled:
		if o.Status != core.StatusOpen {
			return invalid
		}
	case core.StatusFilled:
		if o.RemainingQuantity != 0 {
			return invalid
		}
	case core.StatusExpired:
		if o.Status != core.StatusOpen && o.Status != core.StatusPartiallyFilled {
			return invalid
		}
	case core.StatusCancelled:
		// any non-terminal state may be cancelled, including PENDING
		// (failed admission or compensating rollback)
	default:
		return invalid
	}

	o.Status = to
	return nil
}

// StatusForRemaining derives the post-matching status from remaining vs
// original quantity. It never overrides a terminal state.
func StatusForRemaining(o *core.Order) core.Status {
	if o.Status.Terminal() {
		return o.Status
	}
	switch {
	case o.RemainingQuantity == 0:
		return core.StatusFilled
	case o.RemainingQuantity < o.Quantity:
		return core.StatusPartiallyFilled
	default:
		return o.Status
	}
}

// Manager runs the admission gate and expiry policy against the store.
type Manager struct {
	store  storage.Store
	clock  util.Clock
	policy params.Matching
}

func NewManager(store storage.Store, clock util.Clock, policy params.Matching) *Manager {
	return &Manager{store: store, clock: clock, policy: policy}
}

// ExpiryFor derives the expiry instant for a time-in-force. GTC never
// expires. DAY expires at the daily cutoff, rolled to the next day when the
// order is created at or after it. IOC gets a short post-creation lifetime so
// the sweep kills any unfilled remainder.
func (m *Manager) ExpiryFor(tif core.TimeInForce, createdAt time.Time) int64 {
	switch tif {
	case core.Day:
		cutoff := time.Date(createdAt.Year(), createdAt.Month(), createdAt.Day(),
			m.policy.DayCutoffHour, 0, 0, 0, createdAt.Location())
		if !createdAt.Before(cutoff) {
			cutoff = cutoff.AddDate(0, 0, 1)
		}
		return cutoff.UnixMilli()
	case core.IOC:
		return createdAt.Add(m.policy.IOCExpiry).UnixMilli()
	default:
		return 0
	}
}

// Admit validates a placement and either returns a fresh PENDING order or,
// when an identical non-terminal order was created within the dedup window,
// the existing order (duplicate=true). The caller persists the result.
func (m *Manager) Admit(ctx context.Context, in core.PlaceOrderInput) (*core.Order, bool, error) {
	if in.UserID == "" {
		return nil, false, &core.ValidationError{Field: "userId", Reason: "required"}
	}
	if in.Instrument == "" {
		return nil, false, &core.ValidationError{Field: "instrument", Reason: "required"}
	}
	if in.Side != core.Buy && in.Side != core.Sell {
		return nil, false, &core.ValidationError{Field: "side", Reason: "must be BUY or SELL"}
	}
	if in.Type != core.Limit && in.Type != core.Market {
		return nil, false, &core.ValidationError{Field: "type", Reason: "must be LIMIT or MARKET"}
	}
	if in.Quantity <= 0 {
		return nil, false, &core.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if in.Quantity > m.policy.MaxOrderQuantity {
		return nil, false, &core.ValidationError{Field: "quantity", Reason: "exceeds maximum order size"}
	}

	tif := in.TimeInForce
	if tif == "" {
		tif = core.GTC
		if in.Type == core.Market {
			tif = core.IOC
		}
	}
	if tif != core.GTC && tif != core.Day && tif != core.IOC {
		return nil, false, &core.ValidationError{Field: "timeInForce", Reason: "must be GTC, DAY or IOC"}
	}
	// a MARKET remainder never rests, so without an expiry it would sit OPEN
	// forever and pin the user's open-order cap
	if in.Type == core.Market && tif != core.IOC {
		return nil, false, &core.ValidationError{Field: "timeInForce", Reason: "MARKET orders must be IOC"}
	}

	var priceTicks int64
	switch in.Type {
	case core.Limit:
		if in.Price.IsZero() {
			return nil, false, &core.ValidationError{Field: "price", Reason: "LIMIT orders must have a price"}
		}
		if in.Price.IsNegative() {
			return nil, false, &core.ValidationError{Field: "price", Reason: "must be positive"}
		}
		ticks, err := core.PriceToTicks(in.Price)
		if err != nil {
			return nil, false, err
		}
		priceTicks = ticks
		// division form so price*quantity cannot overflow past the cap;
		// quantity is already validated positive
		if priceTicks > m.policy.MaxOrderNotional/in.Quantity {
			return nil, false, &core.ValidationError{Field: "quantity", Reason: "order notional exceeds maximum"}
		}
	case core.Market:
		if !in.Price.IsZero() {
			return nil, false, &core.ValidationError{Field: "price", Reason: "MARKET orders cannot have a price"}
		}
	}

	now := m.clock.Now()
	dup, openCount, err := m.scanUserOrders(ctx, in, priceTicks, tif, now)
	if err != nil {
		return nil, false, err
	}
	if dup != nil {
		return dup, true, nil
	}
	if openCount >= m.policy.MaxOpenOrdersPerUser {
		return nil, false, &core.ValidationError{Field: "userId", Reason: "too many open orders"}
	}

	order := &core.Order{
		ID:                uuid.NewString(),
		UserID:            in.UserID,
		Instrument:        in.Instrument,
		Side:              in.Side,
		Type:              in.Type,
		Status:            core.StatusPending,
		Price:             priceTicks,
		Quantity:          in.Quantity,
		RemainingQuantity: in.Quantity,
		Timestamp:         now.UnixMilli(),
		TimeInForce:       tif,
		ExpiresAt:         m.ExpiryFor(tif, now),
	}
	return order, false, nil
}

// scanUserOrders makes one pass over the order set, counting the user's
// non-terminal orders and looking for a dedup hit: an exact match on (user,
// instrument, side, type, price, quantity) created within the window.
func (m *Manager) scanUserOrders(ctx context.Context, in core.PlaceOrderInput, priceTicks int64, tif core.TimeInForce, now time.Time) (*core.Order, int, error) {
	windowStart := now.Add(-m.policy.DedupWindow).UnixMilli()
	var dup *core.Order
	openCount := 0

	err := m.store.ScanGroup(ctx, core.GroupOrders, func(_ string, value []byte) error {
		var o core.Order
		if err := json.Unmarshal(value, &o); err != nil {
			return err
		}
		if o.UserID != in.UserID || o.Status.Terminal() {
			return nil
		}
		openCount++
		if dup == nil &&
			o.Instrument == in.Instrument &&
			o.Side == in.Side &&
			o.Type == in.Type &&
			o.Price == priceTicks &&
			o.Quantity == in.Quantity &&
			o.TimeInForce == tif &&
			o.Timestamp >= windowStart {
			cp := o
			dup = &cp
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return dup, openCount, nil
}

// Expired returns all non-terminal orders whose expiry has elapsed, for the
// sweep to transition and evict.
func (m *Manager) Expired(ctx context.Context, now time.Time) ([]*core.Order, error) {
	nowMs := now.UnixMilli()
	var out []*core.Order
	err := m.store.ScanGroup(ctx, core.GroupOrders, func(_ string, value []byte) error {
		var o core.Order
		if err := json.Unmarshal(value, &o); err != nil {
			return err
		}
		if o.ExpiresAt == 0 || o.ExpiresAt > nowMs {
			return nil
		}
		if o.Status != core.StatusOpen && o.Status != core.StatusPartiallyFilled {
			return nil
		}
		cp := o
		out = append(out, &cp)
		return nil
	})
	return out, err
}

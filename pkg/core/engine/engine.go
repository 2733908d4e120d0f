// Package engine composes the book, matcher, lifecycle manager and ledger
// into the event pipeline: place, cancel and expire-tick, each executed as an
// instrument-scoped unit of work.
//
// Serialization per instrument is the correctness backbone: every command for
// an instrument is handled by that instrument's single worker goroutine, so
// matching, book mutation and status transitions never interleave within an
// instrument. Unrelated instruments run fully in parallel.
package engine

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/uhyunpark/openbook/params"
	"github.com/uhyunpark/openbook/pkg/core"
	"github.com/uhyunpark/openbook/pkg/core/book"
	"github.com/uhyunpark/openbook/pkg/core/ledger"
	"github.com/uhyunpark/openbook/pkg/core/lifecycle"
	"github.com/uhyunpark/openbook/pkg/events"
	"github.com/uhyunpark/openbook/pkg/storage"
	"github.com/uhyunpark/openbook/pkg/util"
)

// DepthLevels is how many aggregated price levels a feed snapshot carries per side.
const DepthLevels = 10

// Feeds receives market-data updates for the broadcast layer. Optional.
type Feeds interface {
	PublishDepth(snap *book.Snapshot)
	PublishTrade(t *core.Trade)
}

type commandKind int

const (
	cmdPlace commandKind = iota
	cmdCancel
	cmdExpire
	cmdFlush
)

type command struct {
	kind    commandKind
	orderID string
	done    chan struct{}
}

type Engine struct {
	store  storage.Store
	sink   events.Sink
	book   *book.Book
	life   *lifecycle.Manager
	ledger *ledger.Ledger
	clock  util.Clock
	log    *zap.SugaredLogger
	feeds  Feeds

	queueDepth int

	mu      sync.Mutex
	workers map[string]chan command
	closed  bool
	wg      sync.WaitGroup
}

func New(store storage.Store, sink events.Sink, clock util.Clock, log *zap.SugaredLogger, policy params.Matching) *Engine {
	return &Engine{
		store:      store,
		sink:       sink,
		book:       book.New(store),
		life:       lifecycle.NewManager(store, clock, policy),
		ledger:     ledger.New(store, clock),
		clock:      clock,
		log:        log,
		queueDepth: policy.QueueDepth,
		workers:    make(map[string]chan command),
	}
}

// SetFeeds attaches the broadcast layer. Must be called before traffic starts.
func (e *Engine) SetFeeds(f Feeds) { e.feeds = f }

// Close stops all instrument workers after they drain their queues.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for _, ch := range e.workers {
		close(ch)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// PlaceOrder runs the admission gate, persists the PENDING order, announces
// it, and hands it to the instrument worker. The returned ack carries the
// existing order's identity when the placement is a deduplicated retry.
func (e *Engine) PlaceOrder(ctx context.Context, in core.PlaceOrderInput) (*core.OrderAck, error) {
	order, dup, err := e.life.Admit(ctx, in)
	if err != nil {
		if core.IsValidation(err) {
			return nil, err
		}
		return nil, &core.TransientError{Op: "admission", Err: err}
	}
	if dup {
		e.log.Infow("order_retry_deduplicated",
			"order_id", order.ID, "user_id", order.UserID, "instrument", order.Instrument)
		return &core.OrderAck{OrderID: order.ID, Status: order.Status, Duplicate: true}, nil
	}

	if err := e.store.Set(ctx, core.GroupOrders, order.ID, order); err != nil {
		return nil, &core.TransientError{Op: "persist order", Err: err}
	}
	if err := e.sink.Publish(ctx, events.TopicOrderPlaced, events.OrderPlaced{
		OrderID: order.ID, Instrument: order.Instrument,
	}); err != nil {
		e.compensate(ctx, order.ID, "publish order.placed failed")
		return nil, &core.TransientError{Op: "publish order.placed", Err: err}
	}

	e.log.Infow("order_admitted",
		"order_id", order.ID, "user_id", order.UserID, "instrument", order.Instrument,
		"side", order.Side, "type", order.Type, "price", order.Price,
		"quantity", order.Quantity, "tif", order.TimeInForce)

	e.enqueue(order.Instrument, command{kind: cmdPlace, orderID: order.ID})
	return &core.OrderAck{OrderID: order.ID, Status: order.Status}, nil
}

// CancelOrder validates the request and hands the cancellation to the
// instrument worker. Unknown ids and terminal orders are rejected here; a
// race that terminates the order after this check resolves to a no-op in the
// worker.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	var o core.Order
	found, err := e.store.Get(ctx, core.GroupOrders, orderID, &o)
	if err != nil {
		return &core.TransientError{Op: "load order", Err: err}
	}
	if !found {
		return &core.NotFoundError{Kind: "order", ID: orderID}
	}
	if o.Status.Terminal() {
		return &core.InvalidTransitionError{OrderID: orderID, From: o.Status, To: core.StatusCancelled}
	}

	if err := e.sink.Publish(ctx, events.TopicOrderCancelled, events.OrderCancelled{
		OrderID: orderID, Instrument: o.Instrument, Side: string(o.Side),
	}); err != nil {
		return &core.TransientError{Op: "publish order.cancelled", Err: err}
	}

	e.enqueue(o.Instrument, command{kind: cmdCancel, orderID: orderID})
	return nil
}

// ExpireSweep finds all non-terminal orders past their expiry and dispatches
// them to their instrument workers. Triggered by the external scheduler.
func (e *Engine) ExpireSweep(ctx context.Context) error {
	expired, err := e.life.Expired(ctx, e.clock.Now())
	if err != nil {
		return &core.TransientError{Op: "expiry scan", Err: err}
	}
	for _, o := range expired {
		e.enqueue(o.Instrument, command{kind: cmdExpire, orderID: o.ID})
	}
	if len(expired) > 0 {
		e.log.Infow("expiry_sweep", "expired_count", len(expired))
	}
	return nil
}

// Flush blocks until the instrument's worker has drained everything enqueued
// before the call.
func (e *Engine) Flush(instrument string) {
	done := make(chan struct{})
	e.enqueue(instrument, command{kind: cmdFlush, done: done})
	<-done
}

// Depth returns the aggregated feed snapshot for an instrument.
func (e *Engine) Depth(ctx context.Context, instrument string) (*book.Snapshot, error) {
	return e.book.Depth(ctx, instrument, DepthLevels, e.clock.Now().UnixMilli())
}

// Position returns the ledger entry for (user, instrument).
func (e *Engine) Position(ctx context.Context, userID, instrument string) (*core.Position, error) {
	return e.ledger.Get(ctx, userID, instrument)
}

// Positions returns every position held by a user.
func (e *Engine) Positions(ctx context.Context, userID string) ([]*core.Position, error) {
	var out []*core.Position
	err := e.store.ScanGroup(ctx, core.GroupPositions, func(_ string, value []byte) error {
		var p core.Position
		if err := json.Unmarshal(value, &p); err != nil {
			return err
		}
		if p.UserID == userID {
			cp := p
			out = append(out, &cp)
		}
		return nil
	})
	return out, err
}

// ReplayResult is the book rebuilt from the order set.
type ReplayResult struct {
	Instrument  string        `json:"instrument"`
	BuyOrders   []*core.Order `json:"buyOrders"`
	SellOrders  []*core.Order `json:"sellOrders"`
	TotalOrders int           `json:"totalOrders"`
	TotalTrades int           `json:"totalTrades"`
	ReplayedAt  int64         `json:"replayedAt"`
}

// Replay re-derives the book index from the persisted orders and reports the
// resulting resting set. This is the recovery/compliance path.
func (e *Engine) Replay(ctx context.Context, instrument string) (*ReplayResult, error) {
	if err := e.book.Rebuild(ctx, instrument); err != nil {
		return nil, &core.TransientError{Op: "rebuild book", Err: err}
	}
	buys, err := e.book.Orders(ctx, instrument, core.Buy)
	if err != nil {
		return nil, err
	}
	sells, err := e.book.Orders(ctx, instrument, core.Sell)
	if err != nil {
		return nil, err
	}

	res := &ReplayResult{
		Instrument: instrument,
		BuyOrders:  buys,
		SellOrders: sells,
		ReplayedAt: e.clock.Now().UnixMilli(),
	}
	err = e.store.ScanGroup(ctx, core.GroupOrders, func(_ string, value []byte) error {
		var o core.Order
		if err := json.Unmarshal(value, &o); err != nil {
			return err
		}
		if o.Instrument == instrument {
			res.TotalOrders++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = e.store.ScanGroup(ctx, core.GroupTrades, func(_ string, value []byte) error {
		var t core.Trade
		if err := json.Unmarshal(value, &t); err != nil {
			return err
		}
		if t.Instrument == instrument {
			res.TotalTrades++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// enqueue routes a command to the instrument's worker, creating it on first
// use. The send happens under the lock so Close cannot close the channel
// between the closed check and the send.
func (e *Engine) enqueue(instrument string, cmd command) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		if cmd.done != nil {
			close(cmd.done)
		}
		return
	}
	ch, ok := e.workers[instrument]
	if !ok {
		ch = make(chan command, e.queueDepth)
		e.workers[instrument] = ch
		e.wg.Add(1)
		go e.worker(instrument, ch)
	}
	ch <- cmd
}

func (e *Engine) worker(instrument string, ch chan command) {
	defer e.wg.Done()
	ctx := context.Background()
	for cmd := range ch {
		switch cmd.kind {
		case cmdPlace:
			e.processPlace(ctx, cmd.orderID)
		case cmdCancel:
			e.processCancel(ctx, cmd.orderID)
		case cmdExpire:
			e.processExpire(ctx, cmd.orderID)
		case cmdFlush:
		}
		if cmd.done != nil {
			close(cmd.done)
		}
	}
}

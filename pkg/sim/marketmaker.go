// Package sim generates synthetic trading traffic against the engine: a
// quoting market maker and a pool of random retail traders. Used for demos
// and load testing, never in production deployments.
package sim

import (
	"context"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/openbook/pkg/core"
	"github.com/uhyunpark/openbook/pkg/core/engine"
)

const (
	mmUserID = "market-maker"

	mmFairValueTicks  = 15000 // $150.00
	mmBaseSpreadTicks = 5     // $0.05
	mmMinSpreadTicks  = 2     // $0.02
	mmMaxSpreadTicks  = 20    // $0.20
	mmOrderSize       = 100
	mmMaxPosition     = 1000
	mmVolatilityScale = 0.1
)

// MarketMaker keeps a two-sided quote around fair value, widening the spread
// with simulated volatility and skewing both quotes against its inventory so
// the position mean-reverts.
type MarketMaker struct {
	engine     *engine.Engine
	instrument string
	interval   time.Duration
	log        *zap.SugaredLogger
	rng        *rand.Rand

	openQuotes []string
}

func NewMarketMaker(eng *engine.Engine, instrument string, interval time.Duration, log *zap.SugaredLogger) *MarketMaker {
	return &MarketMaker{
		engine:     eng,
		instrument: instrument,
		interval:   interval,
		log:        log,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run quotes on every tick until ctx is cancelled.
func (m *MarketMaker) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.log.Infow("market_maker_started", "instrument", m.instrument, "interval", m.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.quote(ctx)
		}
	}
}

func (m *MarketMaker) quote(ctx context.Context) {
	for _, id := range m.openQuotes {
		if err := m.engine.CancelOrder(ctx, id); err != nil && !core.IsInvalidTransition(err) && !core.IsNotFound(err) {
			m.log.Warnw("mm_cancel_failed", "order_id", id, "err", err)
		}
	}
	m.openQuotes = m.openQuotes[:0]

	pos, err := m.engine.Position(ctx, mmUserID, m.instrument)
	if err != nil {
		m.log.Warnw("mm_position_load_failed", "err", err)
		return
	}

	half := m.halfSpread()

	// shift both quotes away from the inventory side: long inventory lowers
	// the quotes to attract buyers, short inventory raises them
	skew := -pos.Quantity * mmBaseSpreadTicks / mmMaxPosition

	bid := mmFairValueTicks - half + skew
	ask := mmFairValueTicks + half + skew
	if ask-bid < mmMinSpreadTicks {
		ask = bid + mmMinSpreadTicks
	}

	if pos.Quantity < mmMaxPosition {
		m.place(ctx, core.Buy, bid)
	}
	if pos.Quantity > -mmMaxPosition {
		m.place(ctx, core.Sell, ask)
	}
}

func (m *MarketMaker) halfSpread() int64 {
	vol := 1 + m.rng.Float64()*mmVolatilityScale*10
	half := int64(float64(mmBaseSpreadTicks) * vol / 2)
	if half < mmMinSpreadTicks/2+1 {
		half = mmMinSpreadTicks/2 + 1
	}
	if half > mmMaxSpreadTicks/2 {
		half = mmMaxSpreadTicks / 2
	}
	return half
}

func (m *MarketMaker) place(ctx context.Context, side core.Side, priceTicks int64) {
	ack, err := m.engine.PlaceOrder(ctx, core.PlaceOrderInput{
		UserID:      mmUserID,
		Instrument:  m.instrument,
		Side:        side,
		Type:        core.Limit,
		Price:       decimal.New(priceTicks, -2),
		Quantity:    mmOrderSize,
		TimeInForce: core.Day,
	})
	if err != nil {
		m.log.Warnw("mm_quote_failed", "side", side, "price_ticks", priceTicks, "err", err)
		return
	}
	if !ack.Duplicate {
		m.openQuotes = append(m.openQuotes, ack.OrderID)
	}
}

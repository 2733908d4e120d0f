package sim

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/openbook/pkg/core"
	"github.com/uhyunpark/openbook/pkg/core/engine"
)

const (
	retailUserCount    = 5
	retailMinPriceTick = 14800 // $148.00
	retailMaxPriceTick = 15200 // $152.00
	retailMinQty       = 10
	retailMaxQty       = 200
)

// RetailFlow fires small bursts of randomized orders from a fixed pool of
// simulated users. About a tenth of the flow is MARKET; the rest is LIMIT
// spread across all three time-in-force values.
type RetailFlow struct {
	engine     *engine.Engine
	instrument string
	interval   time.Duration
	log        *zap.SugaredLogger
	rng        *rand.Rand
	users      []string
}

func NewRetailFlow(eng *engine.Engine, instrument string, interval time.Duration, log *zap.SugaredLogger) *RetailFlow {
	users := make([]string, retailUserCount)
	for i := range users {
		users[i] = fmt.Sprintf("trader%d", i+1)
	}
	return &RetailFlow{
		engine:     eng,
		instrument: instrument,
		interval:   interval,
		log:        log,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		users:      users,
	}
}

// Run submits a burst on every tick until ctx is cancelled.
func (f *RetailFlow) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.log.Infow("retail_flow_started", "instrument", f.instrument, "interval", f.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := f.rng.Intn(3) + 1
			for i := 0; i < n; i++ {
				f.submit(ctx)
			}
		}
	}
}

func (f *RetailFlow) submit(ctx context.Context) {
	in := core.PlaceOrderInput{
		UserID:     f.users[f.rng.Intn(len(f.users))],
		Instrument: f.instrument,
		Side:       core.Buy,
		Type:       core.Limit,
		Quantity:   int64(f.rng.Intn(retailMaxQty-retailMinQty+1) + retailMinQty),
	}
	if f.rng.Intn(2) == 1 {
		in.Side = core.Sell
	}

	if f.rng.Intn(10) == 0 {
		in.Type = core.Market
		in.TimeInForce = core.IOC
	} else {
		ticks := retailMinPriceTick + f.rng.Int63n(retailMaxPriceTick-retailMinPriceTick+1)
		in.Price = decimal.New(ticks, -2)
		switch f.rng.Intn(3) {
		case 0:
			in.TimeInForce = core.GTC
		case 1:
			in.TimeInForce = core.Day
		default:
			in.TimeInForce = core.IOC
		}
	}

	if _, err := f.engine.PlaceOrder(ctx, in); err != nil {
		// validation rejects are part of the simulated noise
		if !core.IsValidation(err) {
			f.log.Warnw("retail_order_failed", "user_id", in.UserID, "err", err)
		}
	}
}

package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/openbook/pkg/core"
)

func limitOrder(id string, side core.Side, price, qty int64) *core.Order {
	return &core.Order{
		ID:                id,
		UserID:            "u-" + id,
		Instrument:        "AAPL",
		Side:              side,
		Type:              core.Limit,
		Status:            core.StatusOpen,
		Price:             price,
		Quantity:          qty,
		RemainingQuantity: qty,
	}
}

func marketOrder(id string, side core.Side, qty int64) *core.Order {
	o := limitOrder(id, side, 0, qty)
	o.Type = core.Market
	return o
}

func TestCrosses(t *testing.T) {
	tests := []struct {
		name     string
		incoming *core.Order
		maker    *core.Order
		want     bool
	}{
		{"market buy always crosses", marketOrder("m", core.Buy, 10), limitOrder("a", core.Sell, 15100, 10), true},
		{"buy at ask crosses", limitOrder("b", core.Buy, 15000, 10), limitOrder("a", core.Sell, 15000, 10), true},
		{"buy above ask crosses", limitOrder("b", core.Buy, 15100, 10), limitOrder("a", core.Sell, 15000, 10), true},
		{"buy below ask does not cross", limitOrder("b", core.Buy, 14900, 10), limitOrder("a", core.Sell, 15000, 10), false},
		{"sell at bid crosses", limitOrder("s", core.Sell, 15000, 10), limitOrder("b", core.Buy, 15000, 10), true},
		{"sell above bid does not cross", limitOrder("s", core.Sell, 15100, 10), limitOrder("b", core.Buy, 15000, 10), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Crosses(tt.incoming, tt.maker))
		})
	}
}

func TestMatchFullFillAtMakerPrice(t *testing.T) {
	incoming := limitOrder("taker", core.Buy, 15100, 50)
	maker := limitOrder("maker", core.Sell, 15000, 50)

	trades := Match(incoming, []*core.Order{maker}, 1000)
	require.Len(t, trades, 1)

	tr := trades[0]
	assert.Equal(t, int64(15000), tr.Price, "maker price governs")
	assert.Equal(t, int64(50), tr.Quantity)
	assert.Equal(t, "taker", tr.BuyOrderID)
	assert.Equal(t, "maker", tr.SellOrderID)
	assert.Equal(t, int64(1000), tr.Timestamp)
	assert.NotEmpty(t, tr.ID)

	assert.Zero(t, incoming.RemainingQuantity)
	assert.Zero(t, maker.RemainingQuantity)
}

func TestMatchWalksPriceTimePriority(t *testing.T) {
	// resting asks already in priority order: price asc, time asc
	asks := []*core.Order{
		limitOrder("a1", core.Sell, 15000, 30),
		limitOrder("a2", core.Sell, 15000, 30),
		limitOrder("a3", core.Sell, 15100, 100),
	}
	incoming := limitOrder("taker", core.Buy, 15100, 80)

	trades := Match(incoming, asks, 1)
	require.Len(t, trades, 3)

	assert.Equal(t, "a1", trades[0].SellOrderID)
	assert.Equal(t, int64(30), trades[0].Quantity)
	assert.Equal(t, "a2", trades[1].SellOrderID)
	assert.Equal(t, int64(30), trades[1].Quantity)
	assert.Equal(t, "a3", trades[2].SellOrderID)
	assert.Equal(t, int64(20), trades[2].Quantity)
	assert.Equal(t, int64(15100), trades[2].Price)

	assert.Zero(t, incoming.RemainingQuantity)
	assert.Equal(t, int64(80), asks[2].RemainingQuantity)
}

func TestMatchStopsAtFirstNonCrossingMaker(t *testing.T) {
	asks := []*core.Order{
		limitOrder("a1", core.Sell, 15000, 10),
		limitOrder("a2", core.Sell, 15200, 10),
	}
	incoming := limitOrder("taker", core.Buy, 15100, 30)

	trades := Match(incoming, asks, 1)
	require.Len(t, trades, 1)
	assert.Equal(t, "a1", trades[0].SellOrderID)
	assert.Equal(t, int64(20), incoming.RemainingQuantity)
	assert.Equal(t, int64(10), asks[1].RemainingQuantity, "non-crossing maker untouched")
}

func TestMatchMarketOrderConsumesWholeSide(t *testing.T) {
	bids := []*core.Order{
		limitOrder("b1", core.Buy, 15100, 20),
		limitOrder("b2", core.Buy, 14900, 20),
	}
	incoming := marketOrder("taker", core.Sell, 100)

	trades := Match(incoming, bids, 1)
	require.Len(t, trades, 2)
	assert.Equal(t, int64(15100), trades[0].Price)
	assert.Equal(t, int64(14900), trades[1].Price)
	assert.Equal(t, "taker", trades[0].SellOrderID)
	assert.Equal(t, "b1", trades[0].BuyOrderID)

	// book exhausted, remainder stays with the incoming order
	assert.Equal(t, int64(60), incoming.RemainingQuantity)
}

func TestMatchEmptyBook(t *testing.T) {
	incoming := limitOrder("taker", core.Buy, 15000, 10)
	trades := Match(incoming, nil, 1)
	assert.Empty(t, trades)
	assert.Equal(t, int64(10), incoming.RemainingQuantity)
}

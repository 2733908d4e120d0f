package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/openbook/pkg/core"
	"github.com/uhyunpark/openbook/pkg/storage"
	"github.com/uhyunpark/openbook/pkg/util"
)

func newLedger(t *testing.T) (*Ledger, context.Context) {
	t.Helper()
	store := storage.NewMemoryStore()
	clock := util.NewFakeClock(time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC))
	return New(store, clock), context.Background()
}

func trade(price, qty int64) *core.Trade {
	return &core.Trade{ID: "t1", Instrument: "AAPL", Price: price, Quantity: qty}
}

func TestOpenLongPosition(t *testing.T) {
	l, ctx := newLedger(t)

	pos, err := l.ApplyTradeLeg(ctx, trade(15000, 10), core.Buy, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(10), pos.Quantity)
	assert.Equal(t, int64(15000), pos.AveragePrice)
	assert.Zero(t, pos.RealizedPnL)
	assert.NotZero(t, pos.LastUpdated)
}

func TestWeightedAverageOnAdd(t *testing.T) {
	l, ctx := newLedger(t)

	_, err := l.ApplyTradeLeg(ctx, trade(15000, 10), core.Buy, "alice")
	require.NoError(t, err)
	pos, err := l.ApplyTradeLeg(ctx, trade(15200, 10), core.Buy, "alice")
	require.NoError(t, err)

	assert.Equal(t, int64(20), pos.Quantity)
	assert.Equal(t, int64(15100), pos.AveragePrice)
	assert.Zero(t, pos.RealizedPnL)
}

func TestReduceRealizesKeepsAverage(t *testing.T) {
	l, ctx := newLedger(t)

	_, err := l.ApplyTradeLeg(ctx, trade(15000, 10), core.Buy, "alice")
	require.NoError(t, err)
	pos, err := l.ApplyTradeLeg(ctx, trade(15300, 4), core.Sell, "alice")
	require.NoError(t, err)

	assert.Equal(t, int64(6), pos.Quantity)
	assert.Equal(t, int64(15000), pos.AveragePrice, "reduction leaves entry cost")
	assert.Equal(t, int64(4*300), pos.RealizedPnL)
}

func TestCloseLongResetsAverage(t *testing.T) {
	l, ctx := newLedger(t)

	_, err := l.ApplyTradeLeg(ctx, trade(15000, 10), core.Buy, "alice")
	require.NoError(t, err)
	pos, err := l.ApplyTradeLeg(ctx, trade(14800, 10), core.Sell, "alice")
	require.NoError(t, err)

	assert.Zero(t, pos.Quantity)
	assert.Zero(t, pos.AveragePrice)
	assert.Equal(t, int64(10*-200), pos.RealizedPnL)
}

func TestShortSideRealization(t *testing.T) {
	l, ctx := newLedger(t)

	pos, err := l.ApplyTradeLeg(ctx, trade(15000, 10), core.Sell, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(-10), pos.Quantity)
	assert.Equal(t, int64(15000), pos.AveragePrice)

	// buying back below entry profits a short
	pos, err = l.ApplyTradeLeg(ctx, trade(14700, 6), core.Buy, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(-4), pos.Quantity)
	assert.Equal(t, int64(6*300), pos.RealizedPnL)
	assert.Equal(t, int64(15000), pos.AveragePrice)
}

func TestFlipThroughZero(t *testing.T) {
	l, ctx := newLedger(t)

	_, err := l.ApplyTradeLeg(ctx, trade(15000, 10), core.Buy, "alice")
	require.NoError(t, err)
	pos, err := l.ApplyTradeLeg(ctx, trade(15500, 15), core.Sell, "alice")
	require.NoError(t, err)

	assert.Equal(t, int64(-5), pos.Quantity, "long 10 flips to short 5")
	assert.Equal(t, int64(15500), pos.AveragePrice, "surviving exposure opened at the trade price")
	assert.Equal(t, int64(10*500), pos.RealizedPnL, "only the closed 10 realizes")
}

func TestBothLegsOfOneTrade(t *testing.T) {
	l, ctx := newLedger(t)
	tr := trade(15000, 10)

	buyPos, err := l.ApplyTradeLeg(ctx, tr, core.Buy, "alice")
	require.NoError(t, err)
	sellPos, err := l.ApplyTradeLeg(ctx, tr, core.Sell, "bob")
	require.NoError(t, err)

	assert.Equal(t, int64(10), buyPos.Quantity)
	assert.Equal(t, int64(-10), sellPos.Quantity)
	assert.Equal(t, buyPos.AveragePrice, sellPos.AveragePrice)
}

func TestGetUnknownPositionIsZero(t *testing.T) {
	l, ctx := newLedger(t)

	pos, err := l.Get(ctx, "nobody", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "nobody", pos.UserID)
	assert.Equal(t, "AAPL", pos.Instrument)
	assert.Zero(t, pos.Quantity)
	assert.Zero(t, pos.RealizedPnL)
}

func TestPositionsAreIsolatedByInstrument(t *testing.T) {
	l, ctx := newLedger(t)

	_, err := l.ApplyTradeLeg(ctx, trade(15000, 10), core.Buy, "alice")
	require.NoError(t, err)
	other := &core.Trade{ID: "t2", Instrument: "MSFT", Price: 40000, Quantity: 3}
	_, err = l.ApplyTradeLeg(ctx, other, core.Sell, "alice")
	require.NoError(t, err)

	aapl, err := l.Get(ctx, "alice", "AAPL")
	require.NoError(t, err)
	msft, err := l.Get(ctx, "alice", "MSFT")
	require.NoError(t, err)
	assert.Equal(t, int64(10), aapl.Quantity)
	assert.Equal(t, int64(-3), msft.Quantity)
}

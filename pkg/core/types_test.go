package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceToTicks(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"150.00", 15000, false},
		{"150.01", 15001, false},
		{"0.01", 1, false},
		{"150", 15000, false},
		{"150.005", 0, true},
		{"150.001", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := PriceToTicks(decimal.RequireFromString(tt.in))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTicksToPriceRoundTrip(t *testing.T) {
	for _, ticks := range []int64{0, 1, 99, 15000, 1_000_000} {
		p := TicksToPrice(ticks)
		back, err := PriceToTicks(p)
		require.NoError(t, err)
		assert.Equal(t, ticks, back)
	}
	assert.Equal(t, "150.00", TicksToPrice(15000).StringFixed(2))
}

func TestSideOpposite(t *testing.T) {
	assert.Equal(t, Sell, Buy.Opposite())
	assert.Equal(t, Buy, Sell.Opposite())
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{StatusFilled, StatusCancelled, StatusExpired} {
		assert.True(t, s.Terminal(), string(s))
	}
	for _, s := range []Status{StatusPending, StatusOpen, StatusPartiallyFilled} {
		assert.False(t, s.Terminal(), string(s))
	}
}

func TestOrderResting(t *testing.T) {
	o := &Order{Type: Limit, Status: StatusOpen, RemainingQuantity: 5}
	assert.True(t, o.Resting())

	market := &Order{Type: Market, Status: StatusOpen, RemainingQuantity: 5}
	assert.False(t, market.Resting())

	exhausted := &Order{Type: Limit, Status: StatusOpen, RemainingQuantity: 0}
	assert.False(t, exhausted.Resting())

	pending := &Order{Type: Limit, Status: StatusPending, RemainingQuantity: 5}
	assert.False(t, pending.Resting())
}

package book

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmarquez/updownbot/internal/domain"
)

func asks(pairs ...float64) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		levels = append(levels, domain.PriceLevel{Price: pairs[i], Size: pairs[i+1]})
	}
	return levels
}

func TestWalkBuySingleLevel(t *testing.T) {
	f := WalkBuy(asks(0.48, 20), 5)
	assert.True(t, f.Ok)
	assert.Equal(t, 0.48, f.Worst)
	assert.Equal(t, 0.48, f.Best)
	assert.InDelta(t, 0.48, f.VWAP, 1e-12)
	assert.InDelta(t, 2.40, f.Cost, 1e-12)
}

func TestWalkBuySweepsIntoDepth(t *testing.T) {
	// 5 shares at 0.48, the remaining 5 must come from 0.50.
	f := WalkBuy(asks(0.48, 5, 0.50, 20), 10)
	assert.True(t, f.Ok)
	assert.Equal(t, 0.50, f.Worst)
	assert.Equal(t, 0.48, f.Best)
	assert.InDelta(t, 0.49, f.VWAP, 1e-12)
}

func TestWalkBuyIlliquidBook(t *testing.T) {
	f := WalkBuy(asks(0.48, 3), 10)
	assert.False(t, f.Ok)

	price, filled := AchievablePrice(asks(0.48, 3), 10)
	assert.False(t, filled)
	assert.Equal(t, 0.48, price)
}

func TestWalkBuyEmptyBookAndZeroTarget(t *testing.T) {
	assert.False(t, WalkBuy(nil, 5).Ok)
	assert.False(t, WalkBuy(asks(0.48, 20), 0).Ok)
}

// The worst-case price is at least every level price consumed and is
// monotonically non-decreasing as the target quantity grows.
func TestAchievablePriceConservatism(t *testing.T) {
	book := asks(0.40, 2, 0.45, 3, 0.52, 10, 0.60, 50)

	var prev float64
	for _, target := range []float64{1, 2, 4, 5, 10, 15, 40, 65} {
		price, filled := AchievablePrice(book, target)
		assert.True(t, filled, "target %v should be coverable", target)
		assert.GreaterOrEqual(t, price, prev, "worst price must not decrease with size")
		prev = price

		f := WalkBuy(book, target)
		assert.LessOrEqual(t, f.VWAP, f.Worst)
		assert.GreaterOrEqual(t, f.Worst, f.Best)
	}
}

func TestWalkBuyExactBoundary(t *testing.T) {
	// Target exactly consumes the first level: worst stays at that level.
	f := WalkBuy(asks(0.48, 5, 0.55, 10), 5)
	assert.True(t, f.Ok)
	assert.Equal(t, 0.48, f.Worst)
}

package book

import "github.com/dmarquez/updownbot/internal/domain"

// Fill summarizes walking one side of a book for a target quantity.
type Fill struct {
	Worst  float64 // worst (highest, for a buy) price touched
	Best   float64 // top-of-book price
	VWAP   float64 // volume-weighted average over the consumed levels
	Cost   float64 // total cost of the consumed levels
	Filled float64 // quantity covered; equals the target when Ok
	Ok     bool    // false when the book exhausts below the target
}

// sizeEps absorbs float accumulation error when comparing filled
// quantity against the target.
const sizeEps = 1e-9

// WalkBuy walks ask levels in execution order (ascending price, as
// produced by PairBook.View) accumulating size until target is covered.
// The reported Worst price is deliberately conservative: it is the true
// cost if the order must sweep that deep into the book, not the
// top-of-book price. Ok is false when cumulative size at exhaustion is
// still below target; the side is then treated as illiquid and no trade
// is attempted.
func WalkBuy(asks []domain.PriceLevel, target float64) Fill {
	var f Fill
	if target <= 0 || len(asks) == 0 {
		return f
	}
	f.Best = asks[0].Price
	for _, lvl := range asks {
		if f.Filled+sizeEps >= target {
			break
		}
		take := lvl.Size
		if remaining := target - f.Filled; take > remaining {
			take = remaining
		}
		f.Cost += take * lvl.Price
		f.Filled += take
		f.Worst = lvl.Price
	}
	if f.Filled+sizeEps < target {
		return f
	}
	f.Ok = true
	if f.Filled > 0 {
		f.VWAP = f.Cost / f.Filled
	}
	return f
}

// AchievablePrice returns the worst-case price to buy target shares
// against ask levels sorted ascending, and whether the book covers the
// target at all.
func AchievablePrice(asks []domain.PriceLevel, target float64) (price float64, filled bool) {
	f := WalkBuy(asks, target)
	return f.Worst, f.Ok
}

// Package utils provides small helpers shared across components: ID
// generation, decimal arithmetic conveniences, and statistics used by
// Discovery's scoring pipeline.
package utils

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// GenerateID returns a short random hex identifier prefixed with the given tag.
func GenerateID(prefix string) string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(buf))
}

// ClampDecimal restricts v to the closed interval [min, max].
func ClampDecimal(v, min, max decimal.Decimal) decimal.Decimal {
	if v.LessThan(min) {
		return min
	}
	if v.GreaterThan(max) {
		return max
	}
	return v
}

// RoundUSD rounds a USD amount to 2 decimal places.
func RoundUSD(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// SafeRatio returns num/den, or fallback if den is zero or the ratio is not finite.
func SafeRatio(num, den, fallback decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return fallback
	}
	return num.Div(den)
}

// WinRate returns successful/total, or zero when total is zero.
func WinRate(successful, total int) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(successful)).Div(decimal.NewFromInt(int64(total)))
}

// ProfitFactor returns grossProfit/grossLoss, capped at a large sentinel when
// grossLoss is zero and grossProfit is positive, matching the conventional
// backtesting definition.
func ProfitFactor(grossProfit, grossLoss decimal.Decimal) decimal.Decimal {
	if grossLoss.IsZero() {
		if grossProfit.IsPositive() {
			return decimal.NewFromInt(999)
		}
		return decimal.Zero
	}
	return grossProfit.Div(grossLoss.Abs())
}

func meanDecimal(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

func stdDevDecimal(values []decimal.Decimal) decimal.Decimal {
	if len(values) < 2 {
		return decimal.Zero
	}
	mean := meanDecimal(values)
	sumSquares := decimal.Zero
	for _, v := range values {
		diff := v.Sub(mean)
		sumSquares = sumSquares.Add(diff.Mul(diff))
	}
	variance := sumSquares.Div(decimal.NewFromInt(int64(len(values) - 1)))
	return decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64()))
}

// SharpeRatio annualizes the mean of returns over their standard deviation
// against riskFreeRate, for periodsPerYear sampling periods.
func SharpeRatio(returns []decimal.Decimal, riskFreeRate decimal.Decimal, periodsPerYear int) decimal.Decimal {
	if len(returns) < 2 {
		return decimal.Zero
	}
	stdDev := stdDevDecimal(returns)
	if stdDev.IsZero() {
		return decimal.Zero
	}
	annualization := decimal.NewFromFloat(math.Sqrt(float64(periodsPerYear)))
	excessReturn := meanDecimal(returns).Sub(riskFreeRate.Div(decimal.NewFromInt(int64(periodsPerYear))))
	return excessReturn.Div(stdDev).Mul(annualization)
}

// MaxDrawdown returns the largest peak-to-trough fractional decline across
// an equity curve given in chronological order.
func MaxDrawdown(equity []decimal.Decimal) decimal.Decimal {
	if len(equity) < 2 {
		return decimal.Zero
	}
	maxDrawdown := decimal.Zero
	peak := equity[0]
	for _, v := range equity {
		if v.GreaterThan(peak) {
			peak = v
		}
		if peak.IsZero() {
			continue
		}
		drawdown := peak.Sub(v).Div(peak)
		if drawdown.GreaterThan(maxDrawdown) {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown
}

// Retry calls fn up to attempts times, sleeping backoff between attempts,
// and returns the first success or the last error. It respects ctx
// cancellation between attempts.
func Retry[T any](ctx context.Context, attempts int, backoff time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i := 0; i < attempts; i++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return zero, lastErr
}

// FIFOLeg is one side of a buy or sell used by FIFOMatch.
type FIFOLeg struct {
	Timestamp time.Time
	Amount    decimal.Decimal
	Price     decimal.Decimal
}

// FIFOMatch matches buy amounts against sell amounts in first-in-first-out
// order and returns the realised profit in USD, the number of completed
// round trips, and how many of those round trips closed profitably. Buys
// and sells must be pre-sorted by timestamp ascending.
func FIFOMatch(buys, sells []FIFOLeg) (realizedUSD decimal.Decimal, trades, wins int) {
	type lot struct {
		amount decimal.Decimal
		price  decimal.Decimal
		pnl    decimal.Decimal
	}
	var open []lot
	bi := 0
	realizedUSD = decimal.Zero

	for _, sell := range sells {
		for bi < len(buys) && buys[bi].Timestamp.Before(sell.Timestamp) {
			open = append(open, lot{amount: buys[bi].Amount, price: buys[bi].Price})
			bi++
		}
		remaining := sell.Amount
		for remaining.IsPositive() && len(open) > 0 {
			head := &open[0]
			matched := remaining
			if head.amount.LessThan(matched) {
				matched = head.amount
			}
			leg := matched.Mul(sell.Price.Sub(head.price))
			realizedUSD = realizedUSD.Add(leg)
			head.pnl = head.pnl.Add(leg)
			head.amount = head.amount.Sub(matched)
			remaining = remaining.Sub(matched)
			if head.amount.IsZero() {
				trades++
				if head.pnl.IsPositive() {
					wins++
				}
				open = open[1:]
			}
		}
	}
	return realizedUSD, trades, wins
}

// Package sizing converts risk parameters into a position size. Calculators
// are pure: the same params and price always yield the same size.
package sizing

import (
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

var (
	ErrUnknownMethod  = errors.New("unknown sizing method")
	ErrInvalidCapital = errors.New("capital must be positive")
	ErrInvalidPrice   = errors.New("price must be positive")
	ErrMissingInput   = errors.New("missing required sizing input")
	ErrNegativeEdge   = errors.New("kelly edge is not positive")
)

// Method selects the sizing formula by name.
type Method string

const (
	MethodFixedPercentage Method = "fixed_percentage"
	MethodKellyCriterion  Method = "kelly_criterion"
	MethodATRBased        Method = "atr_based"
)

// Params carries every input a method may need; each method validates the
// subset it requires.
type Params struct {
	Method  Method          `json:"method"`
	Capital decimal.Decimal `json:"capital"`

	// fixed_percentage
	RiskPercent decimal.Decimal `json:"riskPercent"`

	// kelly_criterion
	WinRate       decimal.Decimal `json:"winRate"`      // 0..1
	WinLossRatio  decimal.Decimal `json:"winLossRatio"` // average win / average loss
	KellyFraction decimal.Decimal `json:"kellyFraction"`

	// atr_based
	ATRValue      decimal.Decimal `json:"atrValue"`
	ATRMultiplier decimal.Decimal `json:"atrMultiplier"`
	RiskPerTrade  decimal.Decimal `json:"riskPerTrade"` // capital fraction risked per trade

	// bounds applied after the method result
	MinSize           decimal.Decimal `json:"minSize"`           // base units
	MaxSize           decimal.Decimal `json:"maxSize"`           // base units
	MaxCapitalPercent decimal.Decimal `json:"maxCapitalPercent"` // cap on committed notional
}

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Calculate returns the position size in base units for the given price.
// Each method produces a notional in quote currency; the notional is capped
// by MaxCapitalPercent, converted at price, then bounded by Min/MaxSize.
func Calculate(p Params, price decimal.Decimal) (decimal.Decimal, error) {
	if !p.Capital.IsPositive() {
		return decimal.Zero, ErrInvalidCapital
	}
	if !price.IsPositive() {
		return decimal.Zero, ErrInvalidPrice
	}

	var notional decimal.Decimal
	var err error
	switch p.Method {
	case MethodFixedPercentage:
		notional, err = fixedPercentage(p)
	case MethodKellyCriterion:
		notional, err = kellyCriterion(p)
	case MethodATRBased:
		notional, err = atrBased(p, price)
	default:
		return decimal.Zero, errors.Wrapf(ErrUnknownMethod, "%q", p.Method)
	}
	if err != nil {
		return decimal.Zero, err
	}

	if p.MaxCapitalPercent.IsPositive() {
		capNotional := p.Capital.Mul(p.MaxCapitalPercent).Div(hundred)
		if notional.GreaterThan(capNotional) {
			notional = capNotional
		}
	}

	size := notional.Div(price)
	if p.MaxSize.IsPositive() && size.GreaterThan(p.MaxSize) {
		size = p.MaxSize
	}
	if p.MinSize.IsPositive() && size.LessThan(p.MinSize) {
		size = p.MinSize
	}
	return size, nil
}

func fixedPercentage(p Params) (decimal.Decimal, error) {
	if !p.RiskPercent.IsPositive() {
		return decimal.Zero, errors.Wrap(ErrMissingInput, "riskPercent")
	}
	return p.Capital.Mul(p.RiskPercent).Div(hundred), nil
}

// kellyCriterion commits f* = winRate - (1-winRate)/winLossRatio of capital,
// scaled by the configured fractional multiplier to damp variance.
func kellyCriterion(p Params) (decimal.Decimal, error) {
	if !p.WinRate.IsPositive() || p.WinRate.GreaterThanOrEqual(one) {
		return decimal.Zero, errors.Wrap(ErrMissingInput, "winRate must be in (0, 1)")
	}
	if !p.WinLossRatio.IsPositive() {
		return decimal.Zero, errors.Wrap(ErrMissingInput, "winLossRatio")
	}
	fraction := p.KellyFraction
	if fraction.IsZero() {
		fraction = one
	}
	edge := p.WinRate.Sub(one.Sub(p.WinRate).Div(p.WinLossRatio))
	if !edge.IsPositive() {
		return decimal.Zero, ErrNegativeEdge
	}
	return p.Capital.Mul(edge).Mul(fraction), nil
}

// atrBased risks a fixed capital fraction against an ATR-sized stop distance.
func atrBased(p Params, price decimal.Decimal) (decimal.Decimal, error) {
	if !p.ATRValue.IsPositive() {
		return decimal.Zero, errors.Wrap(ErrMissingInput, "atrValue")
	}
	multiplier := p.ATRMultiplier
	if multiplier.IsZero() {
		multiplier = decimal.NewFromInt(2)
	}
	riskPerTrade := p.RiskPerTrade
	if riskPerTrade.IsZero() {
		riskPerTrade = decimal.RequireFromString("0.01")
	}
	stopDistance := p.ATRValue.Mul(multiplier)
	baseUnits := p.Capital.Mul(riskPerTrade).Div(stopDistance)
	return baseUnits.Mul(price), nil
}

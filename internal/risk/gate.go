// Package risk implements portfolio-wide admission control shared across
// strategy loops. Checks produce decision values, never errors, so the caller
// can route rejections to notification without breaking the loop.
package risk

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/persist"
	"main/internal/schema"
)

// Rejection codes produced by the built-in validators.
const (
	CodeDuplicateSignal   = "duplicate_signal"
	CodeMaxPositions      = "max_positions"
	CodeMaxSymbolExposure = "max_symbol_exposure"
	CodeMaxDrawdown       = "max_drawdown"
	CodeValidatorPanic    = "validator_panic"
)

// Rejection is the structured deny result of a risk check.
type Rejection struct {
	ID     string `json:"id"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

func reject(code, reason string) *Rejection {
	return &Rejection{ID: uuid.NewString(), Code: code, Reason: reason}
}

// Scope bounds one gate to an exchange/frame pair. Strategies sharing a scope
// share the same active-position set and limits.
type Scope struct {
	ExchangeName string
	FrameName    string
}

// Limits are the static portfolio limits enforced by the built-in validators.
// Zero values disable the corresponding check.
type Limits struct {
	MaxPositions       int             `json:"maxPositions"`
	MaxSymbolExposure  decimal.Decimal `json:"maxSymbolExposure"`  // notional per symbol
	MaxDrawdownPercent decimal.Decimal `json:"maxDrawdownPercent"` // cumulative realized loss
}

// ActivePosition is the gate's read-mostly projection of an open signal.
type ActivePosition struct {
	SignalID     string           `json:"signalId"`
	StrategyName string           `json:"strategyName"`
	ExchangeName string           `json:"exchangeName"`
	Symbol       string           `json:"symbol"`
	Direction    schema.Direction `json:"direction"`
	PriceOpen    decimal.Decimal  `json:"priceOpen"`
	Quantity     decimal.Decimal  `json:"quantity"`
	OpenedAt     time.Time        `json:"openedAt"`
}

// View is the state handed to validators under the gate lock.
type View struct {
	Positions []ActivePosition
	Limits    Limits
	Drawdown  decimal.Decimal // cumulative realized PnL percent, negative when losing
}

// Validator vets a candidate signal against the current view. A nil return
// allows the signal; the first rejection short-circuits the rest.
type Validator func(candidate *schema.Signal, view View) *Rejection

// Gate is the authoritative active-position set for one scope. All reads and
// mutations are serialized by one mutex, so two strategies can never both
// pass a max-positions check that only one should pass.
type Gate struct {
	scope  Scope
	limits Limits
	custom []Validator

	mu        sync.Mutex
	positions map[string]ActivePosition
	drawdown  decimal.Decimal
}

// NewGate creates a gate with the built-in validators plus any custom ones.
func NewGate(scope Scope, limits Limits, custom ...Validator) *Gate {
	return &Gate{
		scope:     scope,
		limits:    limits,
		custom:    custom,
		positions: make(map[string]ActivePosition),
	}
}

func positionKey(strategyName, exchangeName, symbol string) string {
	return strategyName + "." + exchangeName + "." + symbol
}

// Check runs every validator in order against the candidate. A nil result
// admits the signal. Check does not mutate the active set; use Admit when the
// decision must atomically claim a slot.
func (g *Gate) Check(candidate *schema.Signal) *Rejection {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.checkLocked(candidate)
}

// Admit checks the candidate and, when allowed, records it in the active set
// under the same lock. Two strategies racing for the last free slot can never
// both pass.
func (g *Gate) Admit(candidate *schema.Signal) *Rejection {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r := g.checkLocked(candidate); r != nil {
		return r
	}
	g.addLocked(candidate)
	return nil
}

func (g *Gate) checkLocked(candidate *schema.Signal) *Rejection {
	view := View{
		Positions: g.positionsLocked(),
		Limits:    g.limits,
		Drawdown:  g.drawdown,
	}

	validators := []Validator{
		g.duplicateSignal,
		maxPositions,
		maxSymbolExposure,
		maxDrawdown,
	}
	for _, v := range validators {
		if r := v(candidate, view); r != nil {
			return r
		}
	}
	for _, v := range g.custom {
		if r := runIsolated(v, candidate, view); r != nil {
			return r
		}
	}
	return nil
}

// runIsolated recovers a panicking user validator; a panic rejects the
// candidate rather than silently admitting it or halting the engine.
func runIsolated(v Validator, candidate *schema.Signal, view View) (result *Rejection) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("custom risk validator panic: %+v", r)
			result = reject(CodeValidatorPanic, "custom validator panicked")
		}
	}()
	return v(candidate, view)
}

// AddSignal records an opened signal in the active set.
func (g *Gate) AddSignal(sig *schema.Signal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addLocked(sig)
}

func (g *Gate) addLocked(sig *schema.Signal) {
	key := positionKey(sig.StrategyName, sig.ExchangeName, sig.Symbol)
	g.positions[key] = ActivePosition{
		SignalID:     sig.ID,
		StrategyName: sig.StrategyName,
		ExchangeName: sig.ExchangeName,
		Symbol:       sig.Symbol,
		Direction:    sig.Direction,
		PriceOpen:    sig.PriceOpen,
		Quantity:     sig.Quantity,
		OpenedAt:     sig.PendingAt,
	}
}

// RemoveSignal drops a signal from the active set on close or cancel and
// folds its realized PnL into the drawdown tally.
func (g *Gate) RemoveSignal(sig *schema.Signal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.positions, positionKey(sig.StrategyName, sig.ExchangeName, sig.Symbol))
	if sig.Status == schema.StatusClosed {
		g.drawdown = g.drawdown.Add(sig.PnLPercent)
	}
}

// Positions returns a copy of the current active set.
func (g *Gate) Positions() []ActivePosition {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.positionsLocked()
}

func (g *Gate) positionsLocked() []ActivePosition {
	out := make([]ActivePosition, 0, len(g.positions))
	for _, p := range g.positions {
		out = append(out, p)
	}
	return out
}

// Load rebuilds the active set from persisted records at startup. Backtests
// skip this: simulation has no cross-run state. Corrupt records were already
// quarantined by the store and only surface as skipped keys here.
func (g *Gate) Load(ctx context.Context, store persist.Store) error {
	keys, err := store.ListKeys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		rec, err := store.Read(ctx, key)
		if err != nil {
			logs.Warnf("risk load skipping record %s, err: %+v", key, err)
			continue
		}
		if rec.Signal.ExchangeName != g.scope.ExchangeName {
			continue
		}
		switch rec.Status {
		case schema.StatusOpened, schema.StatusActive:
			g.AddSignal(&rec.Signal)
		}
	}
	return nil
}

func (g *Gate) duplicateSignal(candidate *schema.Signal, _ View) *Rejection {
	key := positionKey(candidate.StrategyName, candidate.ExchangeName, candidate.Symbol)
	if _, ok := g.positions[key]; ok {
		return reject(CodeDuplicateSignal, "an open position already exists for "+key)
	}
	return nil
}

func maxPositions(_ *schema.Signal, view View) *Rejection {
	if view.Limits.MaxPositions <= 0 {
		return nil
	}
	if len(view.Positions) >= view.Limits.MaxPositions {
		return reject(CodeMaxPositions, "max concurrent positions reached")
	}
	return nil
}

func maxSymbolExposure(candidate *schema.Signal, view View) *Rejection {
	limit := view.Limits.MaxSymbolExposure
	if !limit.IsPositive() {
		return nil
	}
	exposure := candidate.PriceOpen.Mul(candidate.Quantity)
	for _, p := range view.Positions {
		if p.Symbol == candidate.Symbol {
			exposure = exposure.Add(p.PriceOpen.Mul(p.Quantity))
		}
	}
	if exposure.GreaterThan(limit) {
		return reject(CodeMaxSymbolExposure, "symbol exposure "+exposure.String()+" exceeds limit "+limit.String())
	}
	return nil
}

func maxDrawdown(_ *schema.Signal, view View) *Rejection {
	limit := view.Limits.MaxDrawdownPercent
	if !limit.IsPositive() {
		return nil
	}
	if view.Drawdown.IsNegative() && view.Drawdown.Neg().GreaterThanOrEqual(limit) {
		return reject(CodeMaxDrawdown, "portfolio drawdown "+view.Drawdown.String()+"% beyond limit")
	}
	return nil
}

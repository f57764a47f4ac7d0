// Package strategy ships the built-in entry strategies. Both work off the
// deviation of the latest close from the VWAP tick price; momentum follows
// the deviation, mean reversion fades it.
package strategy

import (
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/engine"
)

var (
	ErrUnknownType = errors.New("unknown strategy type")
	ErrBadSpec     = errors.New("bad strategy spec")
)

// Strategy type names accepted by Build.
const (
	TypeMomentum      = "momentum"
	TypeMeanReversion = "mean_reversion"
)

// Spec is the declarative form of a strategy, decoded from configuration.
type Spec struct {
	Name string `json:"name"`
	Type string `json:"type"`

	// DeviationPercent is the minimum |close - vwap| deviation, in percent
	// of vwap, before an entry triggers.
	DeviationPercent decimal.Decimal `json:"deviationPercent"`

	// TakeProfitPercent and StopLossPercent place the exit levels relative
	// to the entry price.
	TakeProfitPercent decimal.Decimal `json:"takeProfitPercent"`
	StopLossPercent   decimal.Decimal `json:"stopLossPercent"`

	// AllowShort enables short entries; off, only longs trigger.
	AllowShort bool `json:"allowShort"`
}

func (s Spec) validate() error {
	if s.Name == "" {
		return errors.Wrap(ErrBadSpec, "name is empty")
	}
	if !s.DeviationPercent.IsPositive() {
		return errors.Wrap(ErrBadSpec, "deviationPercent must be positive")
	}
	if !s.TakeProfitPercent.IsPositive() || !s.StopLossPercent.IsPositive() {
		return errors.Wrap(ErrBadSpec, "takeProfitPercent and stopLossPercent must be positive")
	}
	return nil
}

// Build constructs a strategy from its spec.
func Build(spec Spec) (engine.Strategy, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	switch spec.Type {
	case TypeMomentum:
		return &deviation{spec: spec, fade: false}, nil
	case TypeMeanReversion:
		return &deviation{spec: spec, fade: true}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownType, "%q", spec.Type)
	}
}

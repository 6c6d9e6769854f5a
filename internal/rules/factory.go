package rules

import (
	"fmt"
	"strings"
)

// Spec describes one detector instance as declared in configuration. Only the
// fields relevant to the declared type are consulted.
type Spec struct {
	Type    string  `yaml:"type"`
	Hour    int     `yaml:"hour"`
	Minute  int     `yaml:"minute"`
	Window  int     `yaml:"window"`
	Repeat  bool    `yaml:"repeat"`
	Percent float64 `yaml:"percent"`
	All     []Spec  `yaml:"all"`
}

// Build returns the detector matching the declared type.
func Build(spec Spec) (Rule, error) {
	switch strings.ToLower(strings.TrimSpace(spec.Type)) {
	case "time":
		if spec.Hour < 0 || spec.Hour > 23 || spec.Minute < 0 || spec.Minute > 59 {
			return nil, fmt.Errorf("time rule: bad time %d:%d", spec.Hour, spec.Minute)
		}
		return NewTimeTrigger(spec.Hour, spec.Minute), nil
	case "breakout":
		if spec.Window <= 0 {
			return nil, fmt.Errorf("breakout rule: window must be positive, got %d", spec.Window)
		}
		return NewBreakout(spec.Window, spec.Repeat), nil
	case "stop_loss":
		if spec.Percent <= 0 {
			return nil, fmt.Errorf("stop_loss rule: percent must be positive, got %f", spec.Percent)
		}
		return NewStopLoss(spec.Percent), nil
	case "stop_profit":
		if spec.Percent <= 0 {
			return nil, fmt.Errorf("stop_profit rule: percent must be positive, got %f", spec.Percent)
		}
		return NewStopProfit(spec.Percent), nil
	case "all":
		if len(spec.All) == 0 {
			return nil, fmt.Errorf("all rule: needs at least one child")
		}
		children, err := BuildAll(spec.All)
		if err != nil {
			return nil, err
		}
		return NewAllOf(children...), nil
	default:
		return nil, fmt.Errorf("unknown rule type %q", spec.Type)
	}
}

// BuildAll builds an ordered rule list from specs, preserving list order.
func BuildAll(specs []Spec) ([]Rule, error) {
	out := make([]Rule, 0, len(specs))
	for _, spec := range specs {
		rule, err := Build(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StrategyPreset binds a trading strategy name to its timeframe triple and
// the partial take-profit plan.
type StrategyPreset struct {
	Name string `yaml:"name"`

	// Timeframes drive the regime classifier: primary sets trend,
	// confirm sets momentum, filter sets volatility.
	Primary string `yaml:"primary"`
	Confirm string `yaml:"confirm"`
	Filter  string `yaml:"filter"`

	// CandleLimit is how many candles each timeframe fetch requests.
	CandleLimit int `yaml:"candle_limit"`

	PartialTP PartialTPPlan `yaml:"partial_tp"`
}

// PartialTPPlan describes the staged R-multiple take-profit ladder plus the
// far conditional tier placed with the initial protective orders.
type PartialTPPlan struct {
	// RMultiples are the trigger distances for stages 1..3, expressed as
	// multiples of the initial risk R = |entry - entry_stop_loss|.
	RMultiples [3]float64 `yaml:"r_multiples"`

	// Fractions of the remaining quantity closed at each stage.
	Fractions [3]float64 `yaml:"fractions"`

	// ExtremeR is the R-multiple of the take-profit leg registered at
	// open, independent of the staged ladder.
	ExtremeR float64 `yaml:"extreme_r"`
}

var defaultPlan = PartialTPPlan{
	RMultiples: [3]float64{1, 2, 3},
	Fractions:  [3]float64{0.33, 0.33, 0.34},
	ExtremeR:   5,
}

// Presets maps trading_strategy names to their timeframe and partial-TP
// configuration.
var Presets = map[string]StrategyPreset{
	"ultra-short": {
		Name:        "ultra-short",
		Primary:     "1m",
		Confirm:     "5m",
		Filter:      "15m",
		CandleLimit: 100,
		PartialTP: PartialTPPlan{
			RMultiples: [3]float64{0.8, 1.5, 2.5},
			Fractions:  [3]float64{0.4, 0.3, 0.3},
			ExtremeR:   4,
		},
	},
	"aggressive": {
		Name:        "aggressive",
		Primary:     "5m",
		Confirm:     "15m",
		Filter:      "1h",
		CandleLimit: 100,
		PartialTP:   defaultPlan,
	},
	"balanced": {
		Name:        "balanced",
		Primary:     "15m",
		Confirm:     "1h",
		Filter:      "4h",
		CandleLimit: 100,
		PartialTP:   defaultPlan,
	},
	"conservative": {
		Name:        "conservative",
		Primary:     "30m",
		Confirm:     "4h",
		Filter:      "1d",
		CandleLimit: 120,
		PartialTP: PartialTPPlan{
			RMultiples: [3]float64{1.5, 2.5, 4},
			Fractions:  [3]float64{0.33, 0.33, 0.34},
			ExtremeR:   6,
		},
	},
	"swing-trend": {
		Name:        "swing-trend",
		Primary:     "1h",
		Confirm:     "4h",
		Filter:      "1d",
		CandleLimit: 150,
		PartialTP: PartialTPPlan{
			RMultiples: [3]float64{1, 2.5, 4},
			Fractions:  [3]float64{0.25, 0.35, 0.4},
			ExtremeR:   6,
		},
	},
}

// ExportPreset writes a preset to a YAML file.
func ExportPreset(preset StrategyPreset, path string) error {
	data, err := yaml.Marshal(&preset)
	if err != nil {
		return fmt.Errorf("failed to marshal preset: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write preset file: %w", err)
	}
	return nil
}

// LoadPresetFile reads a preset override from a YAML file and registers it
// under its name, replacing any built-in of the same name.
func LoadPresetFile(path string) (StrategyPreset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return StrategyPreset{}, fmt.Errorf("failed to read preset file: %w", err)
	}
	var preset StrategyPreset
	if err := yaml.Unmarshal(data, &preset); err != nil {
		return StrategyPreset{}, fmt.Errorf("failed to parse preset file: %w", err)
	}
	if err := validatePreset(preset); err != nil {
		return StrategyPreset{}, err
	}
	Presets[preset.Name] = preset
	return preset, nil
}

func validatePreset(p StrategyPreset) error {
	if p.Name == "" {
		return fmt.Errorf("preset name is empty")
	}
	for _, tf := range []string{p.Primary, p.Confirm, p.Filter} {
		if !validInterval(tf) {
			return fmt.Errorf("preset %s: invalid interval %q", p.Name, tf)
		}
	}
	var total float64
	for i, f := range p.PartialTP.Fractions {
		if f <= 0 || f > 1 {
			return fmt.Errorf("preset %s: stage %d fraction %.2f out of (0,1]", p.Name, i+1, f)
		}
		total += f
	}
	if total > 1.0001 {
		return fmt.Errorf("preset %s: stage fractions sum to %.2f (>1)", p.Name, total)
	}
	for i := 1; i < len(p.PartialTP.RMultiples); i++ {
		if p.PartialTP.RMultiples[i] <= p.PartialTP.RMultiples[i-1] {
			return fmt.Errorf("preset %s: r_multiples must be strictly increasing", p.Name)
		}
	}
	return nil
}

func validInterval(tf string) bool {
	switch tf {
	case "1m", "3m", "5m", "15m", "30m", "1h", "4h", "1d":
		return true
	}
	return false
}

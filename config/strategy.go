package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"tradersim/internal/analyzer"
	"tradersim/internal/guardrail"
	"tradersim/internal/markethours"
)

// Strategy is the YAML trading strategy: free-text guidance for the
// advisor, hard guardrails, the trading schedule and named screens.
type Strategy struct {
	Guidance   string                       `yaml:"guidance"`
	Guardrails guardrail.Config             `yaml:"guardrails"`
	Schedule   markethours.Schedule         `yaml:"schedule"`
	Screens    map[string]analyzer.Criteria `yaml:"screens"`
}

// DefaultGuidance is the stock momentum and mean-reversion brief.
const DefaultGuidance = `I want a momentum + mean-reversion hybrid strategy for volatile small-cap stocks.

BUYING CRITERIA:
- Look for oversold bounces: RSI below 30 often signals panic selling and a potential bounce
- Buy momentum plays when a stock is above its 20-day SMA with positive daily change
- Favor high-conviction trades over many small positions

SELLING CRITERIA:
- Take profits at +15-20% gains
- Cut losses at -8 to -10%
- Trim or sell when RSI goes above 70-75 (overbought)
- Sell if a stock breaks below its 20-day SMA after we bought for momentum

RISK MANAGEMENT:
- Keep some cash reserve for new opportunities
- Don't chase stocks that have already moved 10%+ in a day
- Prefer stocks with higher trading volume for liquidity`

// DefaultStrategy returns the built-in strategy.
func DefaultStrategy() Strategy {
	return Strategy{
		Guidance:   DefaultGuidance,
		Guardrails: guardrail.DefaultConfig(),
		Schedule:   markethours.DefaultSchedule(),
		Screens:    map[string]analyzer.Criteria{},
	}
}

// LoadStrategy reads path over the defaults. An empty path returns the
// defaults. Unknown keys are an error.
func LoadStrategy(path string) (Strategy, error) {
	if path == "" {
		return DefaultStrategy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Strategy{}, fmt.Errorf("strategy: %w", err)
	}
	s, err := ParseStrategy(data)
	if err != nil {
		return Strategy{}, fmt.Errorf("strategy %s: %w", path, err)
	}
	return s, nil
}

// ParseStrategy decodes YAML over the defaults and validates the result.
func ParseStrategy(data []byte) (Strategy, error) {
	s := DefaultStrategy()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Strategy{}, err
	}
	screens := make(map[string]analyzer.Criteria, len(s.Screens))
	for name, c := range s.Screens {
		screens[strings.ToLower(name)] = c
	}
	s.Screens = screens
	if err := s.Validate(); err != nil {
		return Strategy{}, err
	}
	return s, nil
}

// Validate checks every section.
func (s Strategy) Validate() error {
	var errs []error
	if err := s.Guardrails.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("guardrails: %w", err))
	}
	if _, err := markethours.NewSession(s.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("schedule: %w", err))
	}
	for _, name := range s.ScreenNames() {
		if _, err := analyzer.NewScreen(name, s.Screens[name]); err != nil {
			errs = append(errs, fmt.Errorf("screen %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Session builds the trading session calendar.
func (s Strategy) Session() (*markethours.Session, error) {
	return markethours.NewSession(s.Schedule)
}

// Screen resolves name against the strategy screens, then the built-in
// presets.
func (s Strategy) Screen(name string) (*analyzer.Screen, error) {
	key := strings.ToLower(name)
	if c, ok := s.Screens[key]; ok {
		return analyzer.NewScreen(key, c)
	}
	return analyzer.Preset(key)
}

// ScreenNames lists the strategy screens, sorted.
func (s Strategy) ScreenNames() []string {
	names := make([]string, 0, len(s.Screens))
	for n := range s.Screens {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

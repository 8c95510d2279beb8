// Package config applies the spec §6 enumerated configuration keys onto
// typed structs. File parsing is an external collaborator's job (spec
// §1 Out of Scope) — Apply takes an already-decoded key/value map (as a
// CLI flag parser or file loader would hand it) and is built the way
// ninja0404-trades-ai's config loader applies viper defaults and
// mapstructure decoding, minus the file read.
package config

import (
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"execore/internal/obs"
)

// ExchangeConfig configures one venue adapter.
type ExchangeConfig struct {
	RESTEndpoint string `mapstructure:"rest_endpoint"`
	WSEndpoint   string `mapstructure:"ws_endpoint"`
	TimeoutMS    int    `mapstructure:"timeout_ms"`
}

// RiskConfig configures the risk engine's admission limits.
type RiskConfig struct {
	MaxOrderNotional    float64            `mapstructure:"max_order_notional"`
	MaxPositionNotional float64            `mapstructure:"max_position_notional"`
	MaxLeverage         float64            `mapstructure:"max_leverage"`
	MaxDrawdown         float64            `mapstructure:"max_drawdown"`
	MaxDailyLoss        float64            `mapstructure:"max_daily_loss"`
	SymbolLimits        map[string]float64 `mapstructure:"symbol_limits"`
}

// StrategyConfig configures one strategy's trading universe.
type StrategyConfig struct {
	Symbols []string `mapstructure:"symbols"`
	Venues  []string `mapstructure:"venues"`
}

// DispatcherConfig configures the event dispatcher.
type DispatcherConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

// Config is the fully decoded, typed configuration tree.
type Config struct {
	Exchanges  map[string]ExchangeConfig  `mapstructure:"exchanges"`
	Risk       RiskConfig                 `mapstructure:"risk"`
	Strategies map[string]StrategyConfig  `mapstructure:"strategies"`
	Dispatcher DispatcherConfig           `mapstructure:"dispatcher"`
}

var knownTopLevel = map[string]bool{
	"exchanges":  true,
	"risk":       true,
	"strategies": true,
	"dispatcher": true,
}

// Apply decodes values — a flat map keyed by dotted configuration paths
// exactly as spec §6 enumerates them, e.g. "exchanges.SIM.timeout_ms" —
// into a typed Config. Keys whose top-level segment isn't one of
// exchanges/risk/strategies/dispatcher are ignored with a logged
// warning rather than rejected. Venue names under exchanges keep the case
// they were given in; strategy names come back lower-cased.
func Apply(values map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	log := obs.NewLogger("config")
	for key, val := range values {
		if !knownTopLevel[topLevelSegment(key)] {
			log.Warnf("unknown configuration key %q ignored", key)
			continue
		}
		v.Set(key, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, err
	}
	// viper folds keys to lower case; put venue names back as given.
	for key := range values {
		parts := strings.SplitN(key, ".", 3)
		if len(parts) < 3 || parts[0] != "exchanges" {
			continue
		}
		lower := strings.ToLower(parts[1])
		if ex, ok := cfg.Exchanges[lower]; ok && lower != parts[1] {
			cfg.Exchanges[parts[1]] = ex
			delete(cfg.Exchanges, lower)
		}
	}
	return &cfg, nil
}

func topLevelSegment(key string) string {
	for i, r := range key {
		if r == '.' {
			return key[:i]
		}
	}
	return key
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dispatcher.buffer_size", 1024)
	v.SetDefault("risk.max_leverage", 1.0)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

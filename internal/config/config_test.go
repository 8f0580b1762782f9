package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Trading: TradingConfig{
			Symbols:   []string{"BTCUSDT"},
			Interval:  "1m",
			StartHour: 0,
			EndHour:   24,
		},
		Risk: RiskConfig{
			RiskPercent:        1.0,
			MaxDrawdownPercent: 20,
			ATRMultiplier:      1.5,
			StopLossFloor:      50,
			TakeProfitDefault:  100,
			MinVolume:          0.001,
			MaxVolume:          10,
			VolumeStep:         0.001,
			TickValue:          0.1,
			TickSize:           0.1,
		},
		Analysis: AnalysisConfig{
			Indicators: IndicatorsConfig{
				SMAPeriod:  20,
				EMAShort:   9,
				EMAMedium:  21,
				EMALong:    50,
				RSIPeriod:  14,
				ATRPeriod:  14,
				ADXPeriod:  14,
				MACDFast:   12,
				MACDSlow:   26,
				MACDSignal: 9,
				BBPeriod:   20,
			},
			Trend:   TrendConfig{ADXThreshold: 25},
			Pattern: PatternConfig{Lookback: 10},
			OrderFlow: OrderFlowConfig{
				Depth:              20,
				LiquidityThreshold: 10,
				ImbalanceThreshold: 2.0,
			},
		},
		Position: PositionConfig{
			TrailingDistance:    120,
			BreakevenActivation: 80,
			BreakevenOffset:     10,
			MinPriceChange:      5,
		},
	}
}

func TestValidateAccepts(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("валидная конфигурация отклонена: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"пустой список символов", func(c *Config) { c.Trading.Symbols = nil }},
		{"start_hour вне диапазона", func(c *Config) { c.Trading.StartHour = 24 }},
		{"end_hour вне диапазона", func(c *Config) { c.Trading.EndHour = 25 }},
		{"вывернутое торговое окно", func(c *Config) { c.Trading.StartHour = 23; c.Trading.EndHour = 1 }},
		{"пустое торговое окно", func(c *Config) { c.Trading.StartHour = 12; c.Trading.EndHour = 12 }},
		{"нулевой риск", func(c *Config) { c.Risk.RiskPercent = 0 }},
		{"избыточный риск", func(c *Config) { c.Risk.RiskPercent = 11 }},
		{"нулевая просадка", func(c *Config) { c.Risk.MaxDrawdownPercent = 0 }},
		{"избыточный множитель ATR", func(c *Config) { c.Risk.ATRMultiplier = 6 }},
		{"нулевой период ADX", func(c *Config) { c.Analysis.Indicators.ADXPeriod = 0 }},
		{"нулевой порог ADX", func(c *Config) { c.Analysis.Trend.ADXThreshold = 0 }},
		{"нулевая дистанция трейлинга", func(c *Config) { c.Position.TrailingDistance = 0 }},
		{"нулевая активация безубытка", func(c *Config) { c.Position.BreakevenActivation = 0 }},
		{"отрицательный отступ безубытка", func(c *Config) { c.Position.BreakevenOffset = -1 }},
		{"нулевой порог ликвидности", func(c *Config) { c.Analysis.OrderFlow.LiquidityThreshold = 0 }},
		{"порог дисбаланса не выше 1", func(c *Config) { c.Analysis.OrderFlow.ImbalanceThreshold = 1.0 }},
		{"EMA не возрастают", func(c *Config) { c.Analysis.Indicators.EMAMedium = 60 }},
	}

	for _, tc := range cases {
		cfg := validConfig()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: ожидалась ошибка валидации", tc.name)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
trading:
  symbols: ["BTCUSDT", "ETHUSDT"]
  interval: "1m"
  start_hour: 0
  end_hour: 24
risk:
  risk_percent: 1.0
  max_drawdown_percent: 20
  atr_multiplier: 1.5
  stop_loss_floor: 50
  take_profit_default: 100
  min_volume: 0.001
  max_volume: 10.0
  volume_step: 0.001
  tick_value: 0.1
  tick_size: 0.1
analysis:
  indicators:
    sma_period: 20
    ema_short: 9
    ema_medium: 21
    ema_long: 50
    rsi_period: 14
    atr_period: 14
    adx_period: 14
    macd_fast: 12
    macd_slow: 26
    macd_signal: 9
    bb_period: 20
  trend:
    adx_threshold: 25
  pattern:
    lookback: 10
  orderflow:
    depth: 20
    liquidity_threshold: 10
    imbalance_threshold: 2.0
position:
  trailing_distance: 120
  breakeven_activation: 80
  breakeven_offset: 10
  min_price_change: 5
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("не удалось записать файл: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("неожиданная ошибка загрузки: %v", err)
	}
	if len(cfg.Trading.Symbols) != 2 {
		t.Errorf("ожидалось 2 символа, получено %d", len(cfg.Trading.Symbols))
	}
	if cfg.Analysis.Indicators.EMALong != 50 {
		t.Errorf("ema_long = %d, ожидалось 50", cfg.Analysis.Indicators.EMALong)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("отсутствующий файл должен давать ошибку")
	}
}

func TestLoadInvalidRanges(t *testing.T) {
	content := `
trading:
  symbols: ["BTCUSDT"]
  end_hour: 24
risk:
  risk_percent: 50.0
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("не удалось записать файл: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("параметры вне диапазона должны отклоняться при загрузке")
	}
}

package config

import (
	"fmt"
	"os"

	"github.com/skalibog/btde/pkg/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Binance   BinanceConfig   `yaml:"binance"`
	Trading   TradingConfig   `yaml:"trading"`
	Risk      RiskConfig      `yaml:"risk"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Position  PositionConfig  `yaml:"position"`
	Execution ExecutionConfig `yaml:"execution"`
	Storage   StorageConfig   `yaml:"storage"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
}

// TradingConfig содержит настройки торговли
type TradingConfig struct {
	Symbols      []string `yaml:"symbols"`
	Interval     string   `yaml:"interval"`
	CycleSeconds int      `yaml:"cycle_seconds"`
	StartHour    int      `yaml:"start_hour"`
	EndHour      int      `yaml:"end_hour"`
}

// RiskConfig содержит параметры риска
type RiskConfig struct {
	RiskPercent        float64 `yaml:"risk_percent"`
	MaxDrawdownPercent float64 `yaml:"max_drawdown_percent"`
	ATRMultiplier      float64 `yaml:"atr_multiplier"`
	StopLossFloor      float64 `yaml:"stop_loss_floor"`
	TakeProfitDefault  float64 `yaml:"take_profit_default"`
	MinVolume          float64 `yaml:"min_volume"`
	MaxVolume          float64 `yaml:"max_volume"`
	VolumeStep         float64 `yaml:"volume_step"`
	TickValue          float64 `yaml:"tick_value"`
	TickSize           float64 `yaml:"tick_size"`
}

// AnalysisConfig содержит настройки аналитических модулей
type AnalysisConfig struct {
	Indicators IndicatorsConfig `yaml:"indicators"`
	Trend      TrendConfig      `yaml:"trend"`
	Pattern    PatternConfig    `yaml:"pattern"`
	OrderFlow  OrderFlowConfig  `yaml:"orderflow"`
	Sentiment  SentimentConfig  `yaml:"sentiment"`
	Weights    WeightsConfig    `yaml:"weights"`
	Signal     SignalConfig     `yaml:"signal"`
}

// IndicatorsConfig настройки расчета индикаторов
type IndicatorsConfig struct {
	SMAPeriod  int `yaml:"sma_period"`
	EMAShort   int `yaml:"ema_short"`
	EMAMedium  int `yaml:"ema_medium"`
	EMALong    int `yaml:"ema_long"`
	RSIPeriod  int `yaml:"rsi_period"`
	ATRPeriod  int `yaml:"atr_period"`
	ADXPeriod  int `yaml:"adx_period"`
	MACDFast   int `yaml:"macd_fast"`
	MACDSlow   int `yaml:"macd_slow"`
	MACDSignal int `yaml:"macd_signal"`
	BBPeriod   int `yaml:"bb_period"`
}

// TrendConfig настройки трендового компонента
type TrendConfig struct {
	ADXThreshold float64 `yaml:"adx_threshold"`
}

// PatternConfig настройки распознавания свечных паттернов
type PatternConfig struct {
	Lookback int `yaml:"lookback"`
}

// OrderFlowConfig настройки анализа стакана
type OrderFlowConfig struct {
	Depth              int     `yaml:"depth"`
	LiquidityThreshold float64 `yaml:"liquidity_threshold"`
	ImbalanceThreshold float64 `yaml:"imbalance_threshold"`
}

// SentimentConfig настройки сентимент-оракула
type SentimentConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Retries        int    `yaml:"retries"`
	BackoffMs      int    `yaml:"backoff_ms"`
}

// WeightsConfig веса компонентов композитного сигнала
type WeightsConfig struct {
	Sentiment float64 `yaml:"sentiment"`
	Technical float64 `yaml:"technical"`
	OrderFlow float64 `yaml:"orderflow"`
}

// SignalConfig пороговые значения решающей матрицы
type SignalConfig struct {
	ThresholdOpen      float64 `yaml:"threshold_open"`
	ThresholdClose     float64 `yaml:"threshold_close"`
	MinConfidenceOpen  float64 `yaml:"min_confidence_open"`
	MinConfidenceClose float64 `yaml:"min_confidence_close"`
}

// PositionConfig настройки сопровождения позиций
type PositionConfig struct {
	TrailingDistance    float64 `yaml:"trailing_distance"`
	BreakevenActivation float64 `yaml:"breakeven_activation"`
	BreakevenOffset     float64 `yaml:"breakeven_offset"`
	MinPriceChange      float64 `yaml:"min_price_change"`
}

// ExecutionConfig настройки выставления ордеров
type ExecutionConfig struct {
	OrderRetries int `yaml:"order_retries"`
	BackoffMs    int `yaml:"backoff_ms"`
}

// StorageConfig настройки хранения данных
type StorageConfig struct {
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// Load загружает конфигурацию из файла и проверяет ее.
// Ошибки конфигурации фатальны: торговля не начинается с невалидными параметрами.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("конфигурация невалидна: %w", err)
	}

	logger.Debug("Загружена конфигурация", zap.String("path", path))
	logger.Info("Загружена конфигурация", zap.Any("Symbols", config.Trading.Symbols))
	return &config, nil
}

// Validate проверяет диапазоны параметров конфигурации.
// Сообщение об ошибке называет параметр и допустимый диапазон.
func (c *Config) Validate() error {
	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("trading.symbols: требуется хотя бы один символ")
	}
	if c.Trading.StartHour < 0 || c.Trading.StartHour > 23 {
		return fmt.Errorf("trading.start_hour = %d: допустимый диапазон 0-23", c.Trading.StartHour)
	}
	if c.Trading.EndHour < 1 || c.Trading.EndHour > 24 {
		return fmt.Errorf("trading.end_hour = %d: допустимый диапазон 1-24", c.Trading.EndHour)
	}
	// Переход окна через полночь не поддерживается: вывернутое окно
	// молча запретило бы торговлю целиком
	if c.Trading.StartHour >= c.Trading.EndHour {
		return fmt.Errorf("trading.start_hour = %d, end_hour = %d: требуется start_hour < end_hour",
			c.Trading.StartHour, c.Trading.EndHour)
	}
	if c.Risk.RiskPercent < 0.1 || c.Risk.RiskPercent > 10.0 {
		return fmt.Errorf("risk.risk_percent = %.2f: допустимый диапазон 0.1-10.0", c.Risk.RiskPercent)
	}
	if c.Risk.MaxDrawdownPercent < 0.1 || c.Risk.MaxDrawdownPercent > 100.0 {
		return fmt.Errorf("risk.max_drawdown_percent = %.2f: допустимый диапазон 0.1-100.0", c.Risk.MaxDrawdownPercent)
	}
	if c.Risk.ATRMultiplier < 0.1 || c.Risk.ATRMultiplier > 5.0 {
		return fmt.Errorf("risk.atr_multiplier = %.2f: допустимый диапазон 0.1-5.0", c.Risk.ATRMultiplier)
	}
	if c.Analysis.Indicators.ADXPeriod <= 0 {
		return fmt.Errorf("analysis.indicators.adx_period = %d: должен быть > 0", c.Analysis.Indicators.ADXPeriod)
	}
	if c.Analysis.Trend.ADXThreshold < 0.1 || c.Analysis.Trend.ADXThreshold > 100.0 {
		return fmt.Errorf("analysis.trend.adx_threshold = %.2f: допустимый диапазон 0.1-100.0", c.Analysis.Trend.ADXThreshold)
	}
	if c.Position.TrailingDistance <= 0 {
		return fmt.Errorf("position.trailing_distance = %.2f: должна быть > 0", c.Position.TrailingDistance)
	}
	if c.Position.BreakevenActivation <= 0 {
		return fmt.Errorf("position.breakeven_activation = %.2f: должна быть > 0", c.Position.BreakevenActivation)
	}
	if c.Position.BreakevenOffset < 0 {
		return fmt.Errorf("position.breakeven_offset = %.2f: должен быть >= 0", c.Position.BreakevenOffset)
	}
	if c.Analysis.OrderFlow.LiquidityThreshold <= 0 {
		return fmt.Errorf("analysis.orderflow.liquidity_threshold = %.2f: должен быть > 0", c.Analysis.OrderFlow.LiquidityThreshold)
	}
	if c.Analysis.OrderFlow.ImbalanceThreshold <= 1.0 {
		return fmt.Errorf("analysis.orderflow.imbalance_threshold = %.2f: должен быть > 1.0", c.Analysis.OrderFlow.ImbalanceThreshold)
	}
	ind := c.Analysis.Indicators
	if ind.EMAShort <= 0 || ind.EMAShort >= ind.EMAMedium || ind.EMAMedium >= ind.EMALong {
		return fmt.Errorf("analysis.indicators: периоды EMA %d/%d/%d должны строго возрастать (short < medium < long)",
			ind.EMAShort, ind.EMAMedium, ind.EMALong)
	}
	return nil
}

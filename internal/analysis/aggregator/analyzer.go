package aggregator

import (
	"context"
	"time"

	"github.com/skalibog/btde/internal/analysis/indicators"
	"github.com/skalibog/btde/internal/analysis/orderflow"
	"github.com/skalibog/btde/internal/analysis/pattern"
	"github.com/skalibog/btde/internal/analysis/sentiment"
	"github.com/skalibog/btde/internal/config"
	"github.com/skalibog/btde/pkg/logger"
	"github.com/skalibog/btde/pkg/models"
	"go.uber.org/zap"
)

// Окно поиска дивергенций RSI/цены
const divergenceLookback = 14

// Границы нейтральной зоны RSI
const (
	rsiNeutralLow  = 40.0
	rsiNeutralHigh = 60.0
)

// Analyzer объединяет все аналитические компоненты в композитный сигнал
type Analyzer struct {
	config        config.AnalysisConfig
	indicatorEng  *indicators.Engine
	patternAnal   *pattern.Analyzer
	orderflowAnal *orderflow.Analyzer
	sentimentAnal *sentiment.Analyzer
}

// NewAnalyzer создает новый агрегатор сигналов
func NewAnalyzer(cfg config.AnalysisConfig) *Analyzer {
	return &Analyzer{
		config:        cfg,
		indicatorEng:  indicators.NewEngine(cfg.Indicators),
		patternAnal:   pattern.NewAnalyzer(cfg.Pattern),
		orderflowAnal: orderflow.NewAnalyzer(cfg.OrderFlow),
		sentimentAnal: sentiment.NewAnalyzer(cfg.Sentiment),
	}
}

// Analyze рассчитывает композитный сигнал для символа за один цикл.
// Каждый недоступный компонент деградирует до нейтрального значения
// с предупреждением в лог — отсутствие данных не останавливает торговлю.
func (a *Analyzer) Analyze(ctx context.Context, symbol string, candles []*models.Candle,
	book *models.OrderBook, events []models.EconomicEvent) *models.CompositeSignal {

	components := make([]models.SignalComponent, 0, 5)

	// Веса: сентимент 40%, технический блок 30% (тренд+паттерн+моментум),
	// поток заявок 30%
	techWeight := a.config.Weights.Technical / 3

	snapshot, err := a.indicatorEng.Snapshot(candles, 0)
	if err != nil {
		logger.Warn("Индикаторы недоступны, трендовый и моментум-компоненты нейтральны",
			zap.String("symbol", symbol), zap.Error(err))
		components = append(components,
			models.SignalComponent{Name: "trend", Value: 0, Weight: techWeight, Confidence: 0.2},
			models.SignalComponent{Name: "momentum", Value: 0, Weight: techWeight, Confidence: 0.2})
	} else {
		components = append(components, a.trendComponent(symbol, snapshot, techWeight))
		components = append(components, a.momentumComponent(symbol, snapshot, candles, techWeight))
	}

	components = append(components, a.patternComponent(symbol, candles, techWeight))
	components = append(components, a.orderflowComponent(symbol, book))
	components = append(components, a.sentimentComponent(ctx, symbol, events))

	// Композитная оценка: сумма value*weight*confidence, зажатая в [-1,1]
	var score, confSum, weightSum float64
	for _, c := range components {
		score += c.Value * c.Weight * c.Confidence
		confSum += c.Confidence * c.Weight
		weightSum += c.Weight
	}
	score = clamp(score, -1, 1)

	confidence := 0.0
	if weightSum > 0 {
		confidence = clamp(confSum/weightSum, 0, 1)
	}

	logger.Debug("AGGREGATOR: композитный сигнал рассчитан",
		zap.String("symbol", symbol),
		zap.Float64("score", score),
		zap.Float64("confidence", confidence))

	return &models.CompositeSignal{
		Symbol:     symbol,
		Timestamp:  time.Now(),
		Score:      score,
		Confidence: confidence,
		Components: components,
	}
}

// trendComponent оценивает тренд по выстроенности EMA и силе ADX
func (a *Analyzer) trendComponent(symbol string, snap *models.IndicatorSnapshot, weight float64) models.SignalComponent {
	component := models.SignalComponent{Name: "trend", Weight: weight, Confidence: 0.3}

	bullAligned := snap.EMAShort > snap.EMAMedium && snap.EMAMedium > snap.EMALong
	bearAligned := snap.EMAShort < snap.EMAMedium && snap.EMAMedium < snap.EMALong

	if !bullAligned && !bearAligned {
		logger.Debug("Тренд отклонен: EMA не выстроены",
			zap.String("symbol", symbol),
			zap.Float64("ema_short", snap.EMAShort),
			zap.Float64("ema_medium", snap.EMAMedium),
			zap.Float64("ema_long", snap.EMALong))
		return component
	}

	if snap.ADX < a.config.Trend.ADXThreshold {
		logger.Debug("Тренд отклонен: ADX ниже порога",
			zap.String("symbol", symbol),
			zap.Float64("adx", snap.ADX),
			zap.Float64("threshold", a.config.Trend.ADXThreshold))
		return component
	}

	if bullAligned && snap.PlusDI > snap.MinusDI {
		component.Value = 1
	} else if bearAligned && snap.MinusDI > snap.PlusDI {
		component.Value = -1
	} else {
		logger.Debug("Тренд отклонен: DI противоречит выстроенности EMA",
			zap.String("symbol", symbol),
			zap.Float64("plus_di", snap.PlusDI),
			zap.Float64("minus_di", snap.MinusDI))
		return component
	}

	component.Confidence = clamp(snap.ADX/(a.config.Trend.ADXThreshold*2), 0, 1)
	return component
}

// patternComponent переводит распознанный паттерн в направленное значение
func (a *Analyzer) patternComponent(symbol string, candles []*models.Candle, weight float64) models.SignalComponent {
	component := models.SignalComponent{Name: "pattern", Weight: weight, Confidence: 0.3}

	result := a.patternAnal.Analyze(candles)
	if result.Bullish {
		component.Value = 1
		component.Confidence = 0.7
		logger.Debug("Обнаружен бычий паттерн", zap.String("symbol", symbol), zap.String("pattern", result.Name))
	} else if result.Bearish {
		component.Value = -1
		component.Confidence = 0.7
		logger.Debug("Обнаружен медвежий паттерн", zap.String("symbol", symbol), zap.String("pattern", result.Name))
	}
	return component
}

// momentumComponent комбинирует RSI и MACD, включая поиск дивергенций
func (a *Analyzer) momentumComponent(symbol string, snap *models.IndicatorSnapshot,
	candles []*models.Candle, weight float64) models.SignalComponent {

	component := models.SignalComponent{Name: "momentum", Weight: weight, Confidence: 0.4}

	switch {
	case snap.RSI < rsiNeutralLow && snap.MACDHistogram > 0:
		component.Value = 1
		component.Confidence = 0.7
	case snap.RSI > rsiNeutralHigh && snap.MACDHistogram < 0:
		component.Value = -1
		component.Confidence = 0.7
	case snap.RSI >= rsiNeutralLow && snap.RSI <= rsiNeutralHigh:
		logger.Debug("Моментум отклонен: RSI в нейтральной зоне",
			zap.String("symbol", symbol),
			zap.Float64("rsi", snap.RSI),
			zap.Float64("zone_low", rsiNeutralLow),
			zap.Float64("zone_high", rsiNeutralHigh))
	}

	// Дивергенция RSI и цены сильнее простой комбинации уровней
	if div := a.detectDivergence(candles); div != 0 {
		component.Value = float64(div)
		component.Confidence = 0.8
		logger.Debug("Обнаружена дивергенция RSI/цены",
			zap.String("symbol", symbol),
			zap.Int("direction", div))
	}

	return component
}

// detectDivergence сравнивает текущие экстремумы цены и RSI с окном lookback.
// Возвращает +1 для бычьей дивергенции, -1 для медвежьей, 0 без дивергенции.
func (a *Analyzer) detectDivergence(candles []*models.Candle) int {
	rsiSeries, err := a.indicatorEng.RSISeries(candles)
	if err != nil || len(candles) < divergenceLookback+2 {
		return 0
	}

	last := len(candles) - 1
	start := last - divergenceLookback

	// Экстремумы окна без текущей свечи
	minIdx, maxIdx := start, start
	for i := start; i < last; i++ {
		if candles[i].Low < candles[minIdx].Low {
			minIdx = i
		}
		if candles[i].High > candles[maxIdx].High {
			maxIdx = i
		}
	}

	// Цена обновила минимум, а RSI нет — бычья дивергенция
	if candles[last].Low < candles[minIdx].Low && rsiSeries[last] > rsiSeries[minIdx] {
		return 1
	}
	// Цена обновила максимум, а RSI нет — медвежья дивергенция
	if candles[last].High > candles[maxIdx].High && rsiSeries[last] < rsiSeries[maxIdx] {
		return -1
	}
	return 0
}

// orderflowComponent переводит дисбаланс стакана в направленное значение
func (a *Analyzer) orderflowComponent(symbol string, book *models.OrderBook) models.SignalComponent {
	component := models.SignalComponent{
		Name:       "orderflow",
		Weight:     a.config.Weights.OrderFlow,
		Confidence: 0.4,
	}

	result := a.orderflowAnal.Analyze(book)
	component.Value = float64(result.Bias)
	if result.Bias != orderflow.BiasNeutral {
		component.Confidence = 0.7
	}
	return component
}

// sentimentComponent получает оценку сентимент-оракула
func (a *Analyzer) sentimentComponent(ctx context.Context, symbol string,
	events []models.EconomicEvent) models.SignalComponent {

	result := a.sentimentAnal.Analyze(ctx, events)
	logger.Debug("AGGREGATOR: сентимент получен",
		zap.String("symbol", symbol),
		zap.String("signal", string(result.Signal)),
		zap.String("source", string(result.Source)),
		zap.Float64("score", result.Score))

	return models.SignalComponent{
		Name:       "sentiment",
		Value:      result.Score,
		Weight:     a.config.Weights.Sentiment,
		Confidence: result.Confidence,
	}
}

// clamp зажимает значение в заданный диапазон
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

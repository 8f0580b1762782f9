package indicators

import (
	"errors"
	"fmt"

	"github.com/markcheno/go-talib"
	"github.com/skalibog/btde/internal/config"
	"github.com/skalibog/btde/pkg/models"
)

// ErrInsufficientData возвращается, когда истории свечей не хватает для расчета.
// Ошибка восстановимая: вызывающий подставляет нейтральные значения и продолжает цикл.
var ErrInsufficientData = errors.New("недостаточно данных для расчета индикаторов")

// Период ATR по умолчанию, если не задан в конфигурации
const defaultATRPeriod = 14

// Engine рассчитывает технические индикаторы по истории свечей.
// Чистый расчет: без состояния между вызовами и без побочных эффектов.
type Engine struct {
	config config.IndicatorsConfig
}

// NewEngine создает новый расчетчик индикаторов
func NewEngine(cfg config.IndicatorsConfig) *Engine {
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = defaultATRPeriod
	}
	return &Engine{
		config: cfg,
	}
}

// MinBars возвращает минимальное число свечей, необходимое для полного снимка
func (e *Engine) MinBars() int {
	min := e.config.EMALong
	if n := e.config.MACDSlow + e.config.MACDSignal; n > min {
		min = n
	}
	// ADX по Уайлдеру стабилизируется только после двойного периода
	if n := e.config.ADXPeriod * 2; n > min {
		min = n
	}
	if n := e.config.BBPeriod; n > min {
		min = n
	}
	if n := e.config.ATRPeriod + 1; n > min {
		min = n
	}
	if n := e.config.RSIPeriod + 1; n > min {
		min = n
	}
	return min + 1
}

// Snapshot рассчитывает полный снимок индикаторов по серии свечей.
// Свечи должны идти по возрастанию времени; shift=0 означает последнюю закрытую свечу,
// shift=1 — предыдущую и так далее.
func (e *Engine) Snapshot(candles []*models.Candle, shift int) (*models.IndicatorSnapshot, error) {
	if shift < 0 {
		return nil, fmt.Errorf("некорректный сдвиг %d", shift)
	}
	if len(candles) < e.MinBars()+shift {
		return nil, fmt.Errorf("%w: %d свечей, требуется %d",
			ErrInsufficientData, len(candles), e.MinBars()+shift)
	}

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	idx := len(candles) - 1 - shift

	sma := talib.Sma(closes, e.config.SMAPeriod)
	emaShort := talib.Ema(closes, e.config.EMAShort)
	emaMedium := talib.Ema(closes, e.config.EMAMedium)
	emaLong := talib.Ema(closes, e.config.EMALong)
	rsi := talib.Rsi(closes, e.config.RSIPeriod)
	atr := talib.Atr(highs, lows, closes, e.config.ATRPeriod)
	adx := talib.Adx(highs, lows, closes, e.config.ADXPeriod)
	plusDI := talib.PlusDI(highs, lows, closes, e.config.ADXPeriod)
	minusDI := talib.MinusDI(highs, lows, closes, e.config.ADXPeriod)
	macdMain, macdSignal, macdHist := talib.Macd(
		closes,
		e.config.MACDFast,
		e.config.MACDSlow,
		e.config.MACDSignal,
	)
	bbUpper, bbMiddle, bbLower := talib.BBands(closes, e.config.BBPeriod, 2.0, 2.0, 0)

	snapshot := &models.IndicatorSnapshot{
		SMA:           sma[idx],
		EMAShort:      emaShort[idx],
		EMAMedium:     emaMedium[idx],
		EMALong:       emaLong[idx],
		RSI:           rsi[idx],
		ATR:           atr[idx],
		ADX:           adx[idx],
		PlusDI:        plusDI[idx],
		MinusDI:       minusDI[idx],
		MACDMain:      macdMain[idx],
		MACDSignal:    macdSignal[idx],
		MACDHistogram: macdHist[idx],
		BBUpper:       bbUpper[idx],
		BBMiddle:      bbMiddle[idx],
		BBLower:       bbLower[idx],
	}

	return snapshot, nil
}

// RSISeries возвращает серию RSI для анализа дивергенций.
// Длина результата совпадает с длиной входной серии, начальные значения нулевые.
func (e *Engine) RSISeries(candles []*models.Candle) ([]float64, error) {
	if len(candles) < e.config.RSIPeriod+1 {
		return nil, fmt.Errorf("%w: %d свечей, требуется %d",
			ErrInsufficientData, len(candles), e.config.RSIPeriod+1)
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return talib.Rsi(closes, e.config.RSIPeriod), nil
}

// ATR рассчитывает только ATR с периодом по умолчанию.
// Используется расчетом стопов, когда полный снимок не нужен.
func (e *Engine) ATR(candles []*models.Candle) (float64, error) {
	if len(candles) < e.config.ATRPeriod+1 {
		return 0, fmt.Errorf("%w: %d свечей, требуется %d",
			ErrInsufficientData, len(candles), e.config.ATRPeriod+1)
	}
	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}
	atr := talib.Atr(highs, lows, closes, e.config.ATRPeriod)
	return atr[len(atr)-1], nil
}

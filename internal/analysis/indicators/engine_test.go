package indicators

import (
	"errors"
	"math"
	"testing"

	"github.com/skalibog/btde/internal/config"
	"github.com/skalibog/btde/pkg/models"
)

func testIndicatorsConfig() config.IndicatorsConfig {
	return config.IndicatorsConfig{
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
	}
}

// syntheticCandles строит серию с трендом и колебаниями, чтобы
// диапазоны high-low были ненулевыми
func syntheticCandles(n int) []*models.Candle {
	candles := make([]*models.Candle, 0, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price += 0.3 + 0.5*math.Sin(float64(i)/3)
		candles = append(candles, &models.Candle{
			Open:   price - 0.2,
			Close:  price,
			High:   price + 0.5,
			Low:    price - 0.6,
			Volume: 100,
		})
	}
	return candles
}

func TestMinBars(t *testing.T) {
	engine := NewEngine(testIndicatorsConfig())
	// Максимальный период — EMA 50, плюс одна свеча запаса
	if got := engine.MinBars(); got != 51 {
		t.Errorf("ожидалось 51 свеча минимум, получено %d", got)
	}
}

func TestSnapshotInsufficientData(t *testing.T) {
	engine := NewEngine(testIndicatorsConfig())
	_, err := engine.Snapshot(syntheticCandles(30), 0)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("ожидалась ErrInsufficientData, получено %v", err)
	}
}

func TestSnapshotNegativeShift(t *testing.T) {
	engine := NewEngine(testIndicatorsConfig())
	if _, err := engine.Snapshot(syntheticCandles(120), -1); err == nil {
		t.Error("отрицательный сдвиг должен давать ошибку")
	}
}

func TestSnapshotValues(t *testing.T) {
	engine := NewEngine(testIndicatorsConfig())
	candles := syntheticCandles(120)

	snap, err := engine.Snapshot(candles, 0)
	if err != nil {
		t.Fatalf("неожиданная ошибка снимка: %v", err)
	}

	// SMA последней свечи равна среднему последних 20 закрытий
	var sum float64
	for _, c := range candles[len(candles)-20:] {
		sum += c.Close
	}
	want := sum / 20
	if math.Abs(snap.SMA-want) > 1e-6 {
		t.Errorf("SMA %v не совпадает со средним закрытий %v", snap.SMA, want)
	}

	if snap.RSI < 0 || snap.RSI > 100 {
		t.Errorf("RSI %v вне диапазона [0,100]", snap.RSI)
	}
	if snap.ATR <= 0 {
		t.Errorf("ATR должен быть положительным, получено %v", snap.ATR)
	}
	if snap.ADX < 0 || snap.ADX > 100 {
		t.Errorf("ADX %v вне диапазона [0,100]", snap.ADX)
	}
	if !(snap.BBUpper > snap.BBMiddle && snap.BBMiddle > snap.BBLower) {
		t.Errorf("полосы Боллинджера нарушают порядок: %v / %v / %v",
			snap.BBUpper, snap.BBMiddle, snap.BBLower)
	}
}

func TestSnapshotShift(t *testing.T) {
	engine := NewEngine(testIndicatorsConfig())
	candles := syntheticCandles(120)

	full, err := engine.Snapshot(candles, 1)
	if err != nil {
		t.Fatalf("неожиданная ошибка снимка со сдвигом: %v", err)
	}
	truncated, err := engine.Snapshot(candles[:len(candles)-1], 0)
	if err != nil {
		t.Fatalf("неожиданная ошибка снимка усеченной серии: %v", err)
	}
	// Сдвиг на одну свечу эквивалентен усечению серии на одну свечу
	if math.Abs(full.SMA-truncated.SMA) > 1e-9 {
		t.Errorf("SMA со сдвигом %v и по усеченной серии %v расходятся", full.SMA, truncated.SMA)
	}
}

func TestRSISeries(t *testing.T) {
	engine := NewEngine(testIndicatorsConfig())
	candles := syntheticCandles(60)

	series, err := engine.RSISeries(candles)
	if err != nil {
		t.Fatalf("неожиданная ошибка серии RSI: %v", err)
	}
	if len(series) != len(candles) {
		t.Errorf("длина серии RSI %d не равна числу свечей %d", len(series), len(candles))
	}
	last := series[len(series)-1]
	if last < 0 || last > 100 {
		t.Errorf("RSI %v вне диапазона [0,100]", last)
	}

	if _, err := engine.RSISeries(syntheticCandles(5)); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("короткая серия должна давать ErrInsufficientData, получено %v", err)
	}
}

func TestATR(t *testing.T) {
	engine := NewEngine(testIndicatorsConfig())

	atr, err := engine.ATR(syntheticCandles(60))
	if err != nil {
		t.Fatalf("неожиданная ошибка ATR: %v", err)
	}
	if atr <= 0 {
		t.Errorf("ATR должен быть положительным, получено %v", atr)
	}

	if _, err := engine.ATR(syntheticCandles(10)); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("короткая серия должна давать ErrInsufficientData, получено %v", err)
	}
}

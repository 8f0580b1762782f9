package orderflow

import (
	"math"
	"testing"
	"time"

	"github.com/skalibog/btde/internal/config"
	"github.com/skalibog/btde/pkg/models"
)

func flowConfig() config.OrderFlowConfig {
	return config.OrderFlowConfig{
		Depth:              20,
		LiquidityThreshold: 10,
		ImbalanceThreshold: 2.0,
	}
}

func book(bids, asks []models.OrderBookLevel) *models.OrderBook {
	return &models.OrderBook{
		Symbol:    "BTCUSDT",
		Timestamp: time.Now(),
		Bids:      bids,
		Asks:      asks,
	}
}

func TestBuyImbalance(t *testing.T) {
	analyzer := NewAnalyzer(flowConfig())

	// Покупки 120 против продаж 40: отношение 3.0 выше 2.0*0.8 = 1.6
	result := analyzer.Analyze(book(
		[]models.OrderBookLevel{{Price: "100", Amount: "60"}, {Price: "99", Amount: "60"}},
		[]models.OrderBookLevel{{Price: "101", Amount: "20"}, {Price: "102", Amount: "20"}},
	))

	if result.Bias != BiasBuy {
		t.Errorf("ожидался BUY, получен %v", result.Bias)
	}
	if math.Abs(result.ImbalanceRatio-3.0) > 1e-9 {
		t.Errorf("ожидалось отношение 3.0, получено %v", result.ImbalanceRatio)
	}
}

func TestNeutralOnBalancedBook(t *testing.T) {
	analyzer := NewAnalyzer(flowConfig())

	// 55 против 50: отношение 1.1 в нейтральной зоне
	result := analyzer.Analyze(book(
		[]models.OrderBookLevel{{Price: "100", Amount: "55"}},
		[]models.OrderBookLevel{{Price: "101", Amount: "50"}},
	))

	if result.Bias != BiasNeutral {
		t.Errorf("ожидался NEUTRAL, получен %v", result.Bias)
	}
}

func TestSellImbalance(t *testing.T) {
	analyzer := NewAnalyzer(flowConfig())

	// 20 против 100: отношение 0.2 ниже 1/1.6 = 0.625
	result := analyzer.Analyze(book(
		[]models.OrderBookLevel{{Price: "100", Amount: "20"}},
		[]models.OrderBookLevel{{Price: "101", Amount: "100"}},
	))

	if result.Bias != BiasSell {
		t.Errorf("ожидался SELL, получен %v", result.Bias)
	}
}

func TestEmptyBookNeverFails(t *testing.T) {
	analyzer := NewAnalyzer(flowConfig())

	if result := analyzer.Analyze(book(nil, nil)); result.Bias != BiasNeutral {
		t.Errorf("пустой стакан: ожидался NEUTRAL, получен %v", result.Bias)
	}
	if result := analyzer.Analyze(nil); result.Bias != BiasNeutral {
		t.Errorf("отсутствующий стакан: ожидался NEUTRAL, получен %v", result.Bias)
	}
}

func TestUnreadableBookDegradesToNeutral(t *testing.T) {
	analyzer := NewAnalyzer(flowConfig())

	result := analyzer.Analyze(book(
		[]models.OrderBookLevel{{Price: "не число", Amount: "60"}},
		[]models.OrderBookLevel{{Price: "101", Amount: "20"}},
	))

	if result.Bias != BiasNeutral {
		t.Errorf("нечитаемый стакан: ожидался NEUTRAL, получен %v", result.Bias)
	}
}

func TestLowLiquidityNeutral(t *testing.T) {
	analyzer := NewAnalyzer(flowConfig())

	// Суммарный объем 6 ниже порога ликвидности 10
	result := analyzer.Analyze(book(
		[]models.OrderBookLevel{{Price: "100", Amount: "5"}},
		[]models.OrderBookLevel{{Price: "101", Amount: "1"}},
	))

	if result.Bias != BiasNeutral {
		t.Errorf("низкая ликвидность: ожидался NEUTRAL, получен %v", result.Bias)
	}
}

func TestNormalizationDampensSingleLargeOrder(t *testing.T) {
	analyzer := NewAnalyzer(flowConfig())

	// Одна крупная лимитка не меняет отношение сумм после нормализации
	// на средний размер заявки: отношение остается инвариантом
	result := analyzer.Analyze(book(
		[]models.OrderBookLevel{{Price: "100", Amount: "600"}},
		[]models.OrderBookLevel{{Price: "101", Amount: "100"}, {Price: "102", Amount: "100"}},
	))

	if math.Abs(result.ImbalanceRatio-3.0) > 1e-9 {
		t.Errorf("ожидалось отношение 3.0, получено %v", result.ImbalanceRatio)
	}
	if result.Bias != BiasBuy {
		t.Errorf("ожидался BUY, получен %v", result.Bias)
	}
}

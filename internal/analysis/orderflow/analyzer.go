package orderflow

import (
	"strconv"

	"github.com/skalibog/btde/internal/config"
	"github.com/skalibog/btde/pkg/logger"
	"github.com/skalibog/btde/pkg/models"
	"go.uber.org/zap"
)

// Bias направление дисбаланса стакана
type Bias int

const (
	BiasSell    Bias = -1
	BiasNeutral Bias = 0
	BiasBuy     Bias = 1
)

// Фактор снисходительности к настроенному порогу дисбаланса
const leniencyFactor = 0.8

// Нижняя граница знаменателя при расчете отношения объемов
const volumeFloor = 1e-9

// Result представляет результат анализа потока заявок
type Result struct {
	Bias           Bias
	ImbalanceRatio float64
	BuyVolume      float64
	SellVolume     float64
}

// Analyzer реализует анализатор дисбаланса стакана заявок
type Analyzer struct {
	config config.OrderFlowConfig
}

// NewAnalyzer создает новый анализатор потока заявок
func NewAnalyzer(cfg config.OrderFlowConfig) *Analyzer {
	return &Analyzer{
		config: cfg,
	}
}

// Analyze рассчитывает направленный сигнал по снимку стакана.
// Пустой или нечитаемый стакан дает нейтральный результат и никогда
// не блокирует вызывающий цикл.
func (a *Analyzer) Analyze(book *models.OrderBook) Result {
	if book == nil || (len(book.Bids) == 0 && len(book.Asks) == 0) {
		logger.Debug("Стакан пуст, поток заявок нейтрален")
		return Result{Bias: BiasNeutral, ImbalanceRatio: 1.0}
	}

	bids, ok := convertLevels(book.Bids)
	if !ok {
		logger.Warn("Нечитаемые уровни бидов, поток заявок нейтрален", zap.String("symbol", book.Symbol))
		return Result{Bias: BiasNeutral, ImbalanceRatio: 1.0}
	}
	asks, ok := convertLevels(book.Asks)
	if !ok {
		logger.Warn("Нечитаемые уровни асков, поток заявок нейтрален", zap.String("symbol", book.Symbol))
		return Result{Bias: BiasNeutral, ImbalanceRatio: 1.0}
	}

	// Средний размер заявки по всему снимку: нормализация гасит влияние
	// одной аномально крупной лимитки на сигнал
	var rawTotal float64
	for _, l := range bids {
		rawTotal += l.Amount
	}
	for _, l := range asks {
		rawTotal += l.Amount
	}
	count := float64(len(bids) + len(asks))
	if rawTotal <= 0 || count == 0 {
		return Result{Bias: BiasNeutral, ImbalanceRatio: 1.0}
	}
	meanOrderSize := rawTotal / count

	if rawTotal < a.config.LiquidityThreshold {
		logger.Debug("Ликвидность стакана ниже порога, поток заявок нейтрален",
			zap.String("symbol", book.Symbol),
			zap.Float64("total_volume", rawTotal),
			zap.Float64("threshold", a.config.LiquidityThreshold))
		return Result{Bias: BiasNeutral, ImbalanceRatio: 1.0}
	}

	var buyVolume, sellVolume float64
	for _, l := range bids {
		buyVolume += l.Amount / meanOrderSize
	}
	for _, l := range asks {
		sellVolume += l.Amount / meanOrderSize
	}

	if sellVolume < volumeFloor {
		sellVolume = volumeFloor
	}
	ratio := buyVolume / sellVolume

	result := Result{
		ImbalanceRatio: ratio,
		BuyVolume:      buyVolume,
		SellVolume:     sellVolume,
	}

	effective := a.config.ImbalanceThreshold * leniencyFactor
	switch {
	case ratio > effective:
		result.Bias = BiasBuy
	case ratio < 1/effective:
		result.Bias = BiasSell
	default:
		result.Bias = BiasNeutral
		logger.Debug("Дисбаланс стакана в нейтральной зоне",
			zap.String("symbol", book.Symbol),
			zap.Float64("ratio", ratio),
			zap.Float64("threshold", effective))
	}

	return result
}

// orderLevel представляет уровень с численными значениями
type orderLevel struct {
	Price  float64
	Amount float64
}

// convertLevels конвертирует строковые цены и объемы в числа
func convertLevels(levels []models.OrderBookLevel) ([]orderLevel, bool) {
	result := make([]orderLevel, 0, len(levels))
	for _, l := range levels {
		price, err := strconv.ParseFloat(l.Price, 64)
		if err != nil {
			return nil, false
		}
		amount, err := strconv.ParseFloat(l.Amount, 64)
		if err != nil {
			return nil, false
		}
		result = append(result, orderLevel{Price: price, Amount: amount})
	}
	return result, true
}

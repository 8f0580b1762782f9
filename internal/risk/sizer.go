package risk

import (
	"github.com/shopspring/decimal"
	"github.com/skalibog/btde/pkg/logger"
	"github.com/skalibog/btde/pkg/models"
	"go.uber.org/zap"
)

// Sizer конвертирует политику риска счета в торгуемый объем
// с учетом ограничений брокера
type Sizer struct{}

// NewSizer создает новый расчетчик объема
func NewSizer() *Sizer {
	return &Sizer{}
}

// Size рассчитывает объем позиции под заданную дистанцию стопа.
// Любое нарушение входных условий дает минимальный безопасный объем
// с записью причины в лог — расчет никогда не завершается ошибкой.
func (s *Sizer) Size(params models.RiskParameters, stopDistance float64) float64 {
	if stopDistance <= 0 {
		logger.Warn("Расчет объема отклонен: дистанция стопа не положительна",
			zap.Float64("stop_distance", stopDistance))
		return params.MinVolume
	}
	if params.AccountBalance <= 0 {
		logger.Warn("Расчет объема отклонен: баланс счета не положителен",
			zap.Float64("balance", params.AccountBalance))
		return params.MinVolume
	}
	if params.RiskPercent <= 0 || params.RiskPercent > 100 {
		logger.Warn("Расчет объема отклонен: процент риска вне диапазона (0,100]",
			zap.Float64("risk_percent", params.RiskPercent))
		return params.MinVolume
	}
	if params.TickValue <= 0 || params.TickSize <= 0 || params.VolumeStep <= 0 {
		logger.Warn("Расчет объема отклонен: невалидные свойства символа",
			zap.Float64("tick_value", params.TickValue),
			zap.Float64("tick_size", params.TickSize),
			zap.Float64("volume_step", params.VolumeStep))
		return params.MinVolume
	}

	riskAmount := params.AccountBalance * params.RiskPercent / 100
	pipValue := params.TickValue / params.TickSize
	rawLot := riskAmount / (stopDistance * pipValue)

	// Округление к ближайшему шагу объема без накопления погрешности float64
	step := decimal.NewFromFloat(params.VolumeStep)
	lot, _ := decimal.NewFromFloat(rawLot).
		Div(step).
		Round(0).
		Mul(step).
		Float64()

	if lot < params.MinVolume {
		logger.Debug("Объем поднят до минимального",
			zap.Float64("raw_lot", rawLot),
			zap.Float64("min_volume", params.MinVolume))
		return params.MinVolume
	}
	if lot > params.MaxVolume {
		logger.Debug("Объем ограничен максимальным",
			zap.Float64("raw_lot", rawLot),
			zap.Float64("max_volume", params.MaxVolume))
		return params.MaxVolume
	}

	return lot
}

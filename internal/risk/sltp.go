package risk

import (
	"github.com/skalibog/btde/internal/config"
	"github.com/skalibog/btde/pkg/logger"
	"github.com/skalibog/btde/pkg/models"
	"go.uber.org/zap"
)

// Соотношение тейк-профита к стоп-лоссу по умолчанию
const rewardRiskRatio = 2.0

// SLTPCalculator рассчитывает адаптивные к волатильности дистанции
// стоп-лосса и тейк-профита
type SLTPCalculator struct {
	config config.RiskConfig
}

// NewSLTPCalculator создает новый расчетчик уровней
func NewSLTPCalculator(cfg config.RiskConfig) *SLTPCalculator {
	return &SLTPCalculator{
		config: cfg,
	}
}

// Levels рассчитывает дистанции стопа и тейка по текущему ATR.
// Недоступный или неположительный ATR включает режим фиксированных
// дистанций — это документированная деградация, а не ошибка.
func (c *SLTPCalculator) Levels(atr float64) models.SLTPLevels {
	if atr <= 0 {
		logger.Warn("ATR недоступен, используются фиксированные дистанции",
			zap.Float64("atr", atr),
			zap.Float64("stop_loss", c.config.StopLossFloor),
			zap.Float64("take_profit", c.config.TakeProfitDefault))
		return models.SLTPLevels{
			StopLossDistance:   c.config.StopLossFloor,
			TakeProfitDistance: c.config.TakeProfitDefault,
		}
	}

	dynamicStop := atr * c.config.ATRMultiplier
	stopLoss := dynamicStop
	if stopLoss < c.config.StopLossFloor {
		logger.Debug("Динамический стоп поднят до минимальной дистанции",
			zap.Float64("dynamic", dynamicStop),
			zap.Float64("floor", c.config.StopLossFloor))
		stopLoss = c.config.StopLossFloor
	}

	return models.SLTPLevels{
		StopLossDistance:   stopLoss,
		TakeProfitDistance: stopLoss * rewardRiskRatio,
	}
}

package position

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/skalibog/btde/internal/config"
	"github.com/skalibog/btde/internal/exchange"
	"github.com/skalibog/btde/pkg/logger"
	"github.com/skalibog/btde/pkg/models"
	"go.uber.org/zap"
)

// Manager сопровождает открытые позиции: безубыток и трейлинг-стоп.
// Оба правила независимы и могут быть активны одновременно; стоп-лосс
// активной позиции никогда не двигается против держателя.
type Manager struct {
	config config.PositionConfig
	exec   exchange.ExecutionPort
}

// NewManager создает новый менеджер позиций
func NewManager(cfg config.PositionConfig, exec exchange.ExecutionPort) *Manager {
	return &Manager{
		config: cfg,
		exec:   exec,
	}
}

// Manage выполняет один проход сопровождения позиции по текущей цене.
// Вызывается раз за цикл; при неизменных цене и состоянии повторный
// вызов не порождает дополнительных модификаций.
func (m *Manager) Manage(ctx context.Context, pos *models.PositionState, currentPrice float64) error {
	if pos == nil || currentPrice <= 0 {
		return nil
	}

	candidate, rule := m.bestCandidate(pos, currentPrice)
	if rule == "" {
		return nil
	}

	if !improves(pos, candidate) {
		return nil
	}

	// Гистерезис: микроскопические сдвиги цены не должны порождать
	// поток модификаций ордера
	if pos.CurrentStopLoss > 0 && math.Abs(candidate-pos.CurrentStopLoss) <= m.config.MinPriceChange {
		logger.Debug("Перестановка стопа отклонена гистерезисом",
			zap.String("symbol", pos.Symbol),
			zap.Float64("candidate", candidate),
			zap.Float64("current", pos.CurrentStopLoss),
			zap.Float64("min_change", m.config.MinPriceChange))
		return nil
	}

	if err := m.exec.ModifyPosition(ctx, pos, candidate, pos.TakeProfit); err != nil {
		return fmt.Errorf("ошибка перестановки стопа (%s): %w", rule, err)
	}

	m.logModification(pos, candidate, rule)

	pos.CurrentStopLoss = candidate
	pos.LastModificationTime = time.Now()
	switch rule {
	case "breakeven":
		pos.BreakevenActive = true
	case "trailing":
		pos.TrailingActive = true
	}

	return nil
}

// bestCandidate выбирает лучший из кандидатов безубытка и трейлинга
func (m *Manager) bestCandidate(pos *models.PositionState, currentPrice float64) (float64, string) {
	var candidate float64
	var rule string

	// Безубыток: активируется при достаточном ходе в сторону позиции
	if be, ok := m.breakevenCandidate(pos, currentPrice); ok {
		candidate, rule = be, "breakeven"
	}

	// Трейлинг: стоп следует за ценой на фиксированной дистанции
	tr := m.trailingCandidate(pos, currentPrice)
	if rule == "" || better(pos.Side, tr, candidate) {
		candidate, rule = tr, "trailing"
	}

	return candidate, rule
}

// breakevenCandidate рассчитывает кандидата стопа по правилу безубытка
func (m *Manager) breakevenCandidate(pos *models.PositionState, currentPrice float64) (float64, bool) {
	var favorableMove float64
	if pos.Side == models.SideLong {
		favorableMove = currentPrice - pos.OpenPrice
	} else {
		favorableMove = pos.OpenPrice - currentPrice
	}

	if favorableMove < m.config.BreakevenActivation {
		return 0, false
	}

	if pos.Side == models.SideLong {
		return pos.OpenPrice + m.config.BreakevenOffset, true
	}
	return pos.OpenPrice - m.config.BreakevenOffset, true
}

// trailingCandidate рассчитывает кандидата стопа по правилу трейлинга
func (m *Manager) trailingCandidate(pos *models.PositionState, currentPrice float64) float64 {
	if pos.Side == models.SideLong {
		return currentPrice - m.config.TrailingDistance
	}
	return currentPrice + m.config.TrailingDistance
}

// improves проверяет инвариант монотонного улучшения защиты:
// новый стоп принимается, только если он строго лучше текущего
func improves(pos *models.PositionState, candidate float64) bool {
	if candidate <= 0 {
		return false
	}
	if pos.CurrentStopLoss == 0 {
		return true
	}
	return better(pos.Side, candidate, pos.CurrentStopLoss)
}

// better сравнивает два уровня стопа с точки зрения держателя позиции
func better(side models.Side, a, b float64) bool {
	if side == models.SideLong {
		return a > b
	}
	return a < b
}

// logModification пишет перестановку стопа в лог.
// Процент изменения считается только при известном предыдущем значении:
// на первом выставлении делитель отсутствует.
func (m *Manager) logModification(pos *models.PositionState, newSL float64, rule string) {
	if pos.CurrentStopLoss == 0 {
		logger.Info("Стоп-лосс выставлен впервые",
			zap.String("symbol", pos.Symbol),
			zap.String("side", string(pos.Side)),
			zap.String("rule", rule),
			zap.Float64("stop_loss", newSL))
		return
	}

	changePercent := math.Abs(newSL-pos.CurrentStopLoss) / pos.CurrentStopLoss * 100
	if changePercent > 1 {
		logger.Info("Стоп-лосс переставлен",
			zap.String("symbol", pos.Symbol),
			zap.String("side", string(pos.Side)),
			zap.String("rule", rule),
			zap.Float64("old", pos.CurrentStopLoss),
			zap.Float64("new", newSL),
			zap.Float64("change_percent", changePercent))
	} else {
		logger.Debug("Стоп-лосс переставлен",
			zap.String("symbol", pos.Symbol),
			zap.String("rule", rule),
			zap.Float64("new", newSL))
	}
}

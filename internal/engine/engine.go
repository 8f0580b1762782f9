package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"github.com/skalibog/btde/internal/analysis/aggregator"
	"github.com/skalibog/btde/internal/analysis/indicators"
	"github.com/skalibog/btde/internal/config"
	"github.com/skalibog/btde/internal/exchange"
	"github.com/skalibog/btde/internal/position"
	"github.com/skalibog/btde/internal/risk"
	"github.com/skalibog/btde/internal/storage"
	"github.com/skalibog/btde/pkg/logger"
	"github.com/skalibog/btde/pkg/models"
	"go.uber.org/zap"
)

// Запас свечей сверх минимума индикаторов при запросе истории
const candleLimit = 200

// SymbolContext хранит рабочее состояние одного символа между циклами.
// Никаких общих для процесса статиков: каждый символ владеет своим
// состоянием и передает его через цикл явно.
type SymbolContext struct {
	Positions     map[models.Side]*models.PositionState
	LastAction    models.Action
	LastCycleTime time.Time
}

// Engine оркестрирует один цикл оценки на символ: гейты, композитный
// сигнал, решающая матрица, расчет объема и уровней, сопровождение позиций
type Engine struct {
	config     *config.Config
	market     exchange.MarketDataPort
	exec       exchange.ExecutionPort
	store      storage.Storage
	aggregator *aggregator.Analyzer
	indicators *indicators.Engine
	sizer      *risk.Sizer
	sltp       *risk.SLTPCalculator
	posManager *position.Manager
	contexts   map[string]*SymbolContext

	// Подменяется в тестах гейта торговых часов
	now func() time.Time
}

// NewEngine создает новый решающий механизм
func NewEngine(cfg *config.Config, market exchange.MarketDataPort, exec exchange.ExecutionPort,
	store storage.Storage) *Engine {

	return &Engine{
		config:     cfg,
		market:     market,
		exec:       exec,
		store:      store,
		aggregator: aggregator.NewAnalyzer(cfg.Analysis),
		indicators: indicators.NewEngine(cfg.Analysis.Indicators),
		sizer:      risk.NewSizer(),
		sltp:       risk.NewSLTPCalculator(cfg.Risk),
		posManager: position.NewManager(cfg.Position, exec),
		contexts:   make(map[string]*SymbolContext),
		now:        time.Now,
	}
}

// RunCycle выполняет один цикл оценки для всех символов последовательно.
// События календаря общие для цикла; ошибки по одному символу не
// прерывают обработку остальных.
func (e *Engine) RunCycle(ctx context.Context, events []models.EconomicEvent) {
	for _, symbol := range e.config.Trading.Symbols {
		decision, err := e.evaluateSymbol(ctx, symbol, events)
		if err != nil {
			logger.Warn("Цикл по символу пропущен", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if decision != nil {
			e.persistDecision(ctx, decision)
		}
	}
}

// evaluateSymbol выполняет цикл оценки для одного символа
func (e *Engine) evaluateSymbol(ctx context.Context, symbol string, events []models.EconomicEvent) (*models.Decision, error) {
	// Гейт торговых часов: вне окна цикл завершается сразу
	if !e.withinTradingHours() {
		logger.Debug("Вне торговых часов, цикл пропущен",
			zap.String("symbol", symbol),
			zap.Int("start_hour", e.config.Trading.StartHour),
			zap.Int("end_hour", e.config.Trading.EndHour))
		return nil, nil
	}

	symCtx := e.symbolContext(symbol)

	account, err := e.market.GetAccountInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("данные счета недоступны: %w", err)
	}

	candles, err := e.loadCandles(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("свечи недоступны: %w", err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("пустая история свечей")
	}
	currentPrice := candles[len(candles)-1].Close

	// Сопровождение открытых позиций выполняется всегда,
	// независимо от просадки и решающей матрицы
	defer e.managePositions(ctx, symCtx, currentPrice)

	// Гейт просадки: при превышении порога новые входы запрещены,
	// существующие позиции продолжают сопровождаться
	drawdownHalt := e.drawdownExceeded(account)

	// Стакан деградирует до нейтрального сигнала внутри анализатора
	book, err := e.market.GetOrderBook(ctx, symbol, e.config.Analysis.OrderFlow.Depth)
	if err != nil {
		logger.Warn("Стакан недоступен, поток заявок нейтрален",
			zap.String("symbol", symbol), zap.Error(err))
		book = nil
	}

	signal := e.aggregator.Analyze(ctx, symbol, candles, book, events)

	decision := e.applyDecisionMatrix(symCtx, signal, drawdownHalt)
	decision.Symbol = symbol
	decision.Timestamp = e.now()
	decision.Components = componentValues(signal)

	switch decision.Action {
	case models.ActionOpenLong, models.ActionOpenShort:
		if err := e.openPosition(ctx, symCtx, decision, candles, account, currentPrice); err != nil {
			logger.Warn("Вход не выполнен, цикл пропущен",
				zap.String("symbol", symbol), zap.Error(err))
			decision.Action = models.ActionHold
			decision.Reason = fmt.Sprintf("вход отклонен: %v", err)
		}
	case models.ActionCloseLong:
		e.closePosition(ctx, symCtx, models.SideLong, decision)
	case models.ActionCloseShort:
		e.closePosition(ctx, symCtx, models.SideShort, decision)
	}

	symCtx.LastAction = decision.Action
	symCtx.LastCycleTime = e.now()

	return decision, nil
}

// loadCandles читает историю из кэша хранилища, который наполняет
// сборщик свечей; при недостатке данных в кэше обращается к бирже
func (e *Engine) loadCandles(ctx context.Context, symbol string) ([]*models.Candle, error) {
	if e.store != nil {
		candles, err := e.store.GetCandles(ctx, symbol, e.config.Trading.Interval, candleLimit)
		if err == nil && len(candles) >= e.indicators.MinBars() {
			return candles, nil
		}
		if err != nil {
			logger.Warn("Кэш свечей недоступен, чтение с биржи",
				zap.String("symbol", symbol), zap.Error(err))
		}
	}
	return e.market.GetCandles(ctx, symbol, e.config.Trading.Interval, candleLimit)
}

// withinTradingHours проверяет попадание в настроенное торговое окно
func (e *Engine) withinTradingHours() bool {
	hour := e.now().UTC().Hour()
	return hour >= e.config.Trading.StartHour && hour < e.config.Trading.EndHour
}

// drawdownExceeded проверяет просадку счета с предупреждением
// на 80% порога и алертом при превышении
func (e *Engine) drawdownExceeded(account *models.AccountInfo) bool {
	if account.Balance <= 0 {
		return false
	}
	drawdown := (account.Balance - account.Equity) / account.Balance * 100
	threshold := e.config.Risk.MaxDrawdownPercent

	if drawdown >= threshold {
		logger.Error("Просадка превысила порог, новые входы остановлены",
			zap.Float64("drawdown_percent", drawdown),
			zap.Float64("threshold", threshold))
		return true
	}
	if drawdown >= threshold*0.8 {
		logger.Warn("Просадка приближается к порогу",
			zap.Float64("drawdown_percent", drawdown),
			zap.Float64("threshold", threshold))
	}
	return false
}

// applyDecisionMatrix применяет позиционно-зависимую решающую матрицу
func (e *Engine) applyDecisionMatrix(symCtx *SymbolContext, signal *models.CompositeSignal,
	drawdownHalt bool) *models.Decision {

	cfg := e.config.Analysis.Signal
	decision := &models.Decision{
		Action:     models.ActionHold,
		Score:      signal.Score,
		Confidence: signal.Confidence,
	}

	long := symCtx.Positions[models.SideLong]
	short := symCtx.Positions[models.SideShort]

	// Закрытие существующей позиции при противоположном сигнале
	if long != nil && signal.Score <= -cfg.ThresholdClose && signal.Confidence >= cfg.MinConfidenceClose {
		decision.Action = models.ActionCloseLong
		decision.Reason = fmt.Sprintf("противоположный сигнал %.2f при уверенности %.2f", signal.Score, signal.Confidence)
		return decision
	}
	if short != nil && signal.Score >= cfg.ThresholdClose && signal.Confidence >= cfg.MinConfidenceClose {
		decision.Action = models.ActionCloseShort
		decision.Reason = fmt.Sprintf("противоположный сигнал %.2f при уверенности %.2f", signal.Score, signal.Confidence)
		return decision
	}

	// Открытие новой позиции
	if signal.Score >= cfg.ThresholdOpen || signal.Score <= -cfg.ThresholdOpen {
		if drawdownHalt {
			decision.Reason = "вход отклонен: просадка превысила порог"
			logger.Warn("Вход отклонен гейтом просадки", zap.String("symbol", signal.Symbol))
			return decision
		}
		if signal.Confidence < cfg.MinConfidenceOpen {
			decision.Reason = fmt.Sprintf("уверенность %.2f ниже порога %.2f", signal.Confidence, cfg.MinConfidenceOpen)
			logger.Debug("Вход отклонен: низкая уверенность",
				zap.String("symbol", signal.Symbol),
				zap.Float64("confidence", signal.Confidence),
				zap.Float64("threshold", cfg.MinConfidenceOpen))
			return decision
		}

		if signal.Score > 0 {
			// Не более одной активной позиции на ключ (символ, сторона)
			if long != nil {
				decision.Reason = "длинная позиция уже открыта"
				logger.Debug("Дубль входа отклонен", zap.String("symbol", signal.Symbol), zap.String("side", "LONG"))
				return decision
			}
			decision.Action = models.ActionOpenLong
		} else {
			if short != nil {
				decision.Reason = "короткая позиция уже открыта"
				logger.Debug("Дубль входа отклонен", zap.String("symbol", signal.Symbol), zap.String("side", "SHORT"))
				return decision
			}
			decision.Action = models.ActionOpenShort
		}
		decision.Reason = fmt.Sprintf("сигнал %.2f при уверенности %.2f", signal.Score, signal.Confidence)
		return decision
	}

	decision.Reason = fmt.Sprintf("сигнал %.2f в нейтральной зоне (порог %.2f)", signal.Score, cfg.ThresholdOpen)
	logger.Debug("Сигнал ниже порога входа",
		zap.String("symbol", signal.Symbol),
		zap.Float64("score", signal.Score),
		zap.Float64("threshold", cfg.ThresholdOpen))
	return decision
}

// openPosition рассчитывает объем и уровни, выставляет ордер
// с ограниченным числом повторов
func (e *Engine) openPosition(ctx context.Context, symCtx *SymbolContext, decision *models.Decision,
	candles []*models.Candle, account *models.AccountInfo, currentPrice float64) error {

	atr, err := e.indicators.ATR(candles)
	if err != nil {
		// ATR недоступен: расчетчик уровней перейдет на фиксированные дистанции
		logger.Warn("ATR недоступен для расчета уровней", zap.Error(err))
		atr = 0
	}

	levels := e.sltp.Levels(atr)

	params := models.RiskParameters{
		AccountBalance: account.Balance,
		RiskPercent:    e.config.Risk.RiskPercent,
		MinVolume:      e.config.Risk.MinVolume,
		MaxVolume:      e.config.Risk.MaxVolume,
		VolumeStep:     e.config.Risk.VolumeStep,
		TickValue:      e.config.Risk.TickValue,
		TickSize:       e.config.Risk.TickSize,
	}
	volume := e.sizer.Size(params, levels.StopLossDistance)

	side := models.SideLong
	stopLoss := currentPrice - levels.StopLossDistance
	takeProfit := currentPrice + levels.TakeProfitDistance
	if decision.Action == models.ActionOpenShort {
		side = models.SideShort
		stopLoss = currentPrice + levels.StopLossDistance
		takeProfit = currentPrice - levels.TakeProfitDistance
	}

	req := exchange.OrderRequest{
		Symbol:     decision.Symbol,
		Side:       side,
		Volume:     volume,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	}

	ticketID, err := e.placeWithRetry(ctx, req)
	if err != nil {
		return err
	}

	symCtx.Positions[side] = &models.PositionState{
		TicketID:        ticketID,
		Symbol:          decision.Symbol,
		Side:            side,
		OpenPrice:       currentPrice,
		Volume:          volume,
		CurrentStopLoss: stopLoss,
		TakeProfit:      takeProfit,
	}

	decision.Volume = volume
	decision.StopLoss = stopLoss
	decision.TakeProfit = takeProfit

	logger.Info("Позиция открыта",
		zap.String("symbol", decision.Symbol),
		zap.String("side", string(side)),
		zap.String("ticket", ticketID),
		zap.Float64("volume", volume),
		zap.Float64("stop_loss", stopLoss),
		zap.Float64("take_profit", takeProfit))

	return nil
}

// placeWithRetry выставляет ордер с ограниченным числом повторов
// и фиксированной паузой между ними.
// Непустой тикет вместе с ошибкой означает частичное исполнение: вход
// уже на бирже, отклонены только защитные ордера. Повторный рыночный
// вход в этом случае недопустим — восстанавливается только защита.
func (e *Engine) placeWithRetry(ctx context.Context, req exchange.OrderRequest) (string, error) {
	retries := e.config.Execution.OrderRetries
	if retries <= 0 {
		retries = 3
	}
	pause := time.Duration(e.config.Execution.BackoffMs) * time.Millisecond
	if pause <= 0 {
		pause = 500 * time.Millisecond
	}
	b := &backoff.Backoff{Min: pause, Max: pause, Factor: 1}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		ticketID, err := e.exec.PlaceOrder(ctx, req)
		if err == nil {
			return ticketID, nil
		}
		if ticketID != "" {
			logger.Warn("Вход исполнен, защитные ордера отклонены",
				zap.String("symbol", req.Symbol),
				zap.String("ticket", ticketID),
				zap.Error(err))
			e.restoreProtection(ctx, req, ticketID, b, retries)
			return ticketID, nil
		}
		lastErr = err
		logger.Warn("Ордер отклонен",
			zap.String("symbol", req.Symbol),
			zap.Int("attempt", attempt),
			zap.Int("retries", retries),
			zap.Error(err))

		if attempt < retries {
			select {
			case <-time.After(b.Duration()):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", fmt.Errorf("ордер отклонен после %d попыток: %w", retries, lastErr)
}

// restoreProtection повторно выставляет защитные ордера уже открытой
// позиции. Исчерпание попыток оставляет позицию без защиты — это
// алерт для оператора, но позиция сопровождается и закрывается штатно.
func (e *Engine) restoreProtection(ctx context.Context, req exchange.OrderRequest,
	ticketID string, b *backoff.Backoff, retries int) {

	pos := &models.PositionState{
		TicketID: ticketID,
		Symbol:   req.Symbol,
		Side:     req.Side,
		Volume:   req.Volume,
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		err := e.exec.ModifyPosition(ctx, pos, req.StopLoss, req.TakeProfit)
		if err == nil {
			logger.Info("Защитные ордера восстановлены",
				zap.String("symbol", req.Symbol),
				zap.String("ticket", ticketID))
			return
		}
		lastErr = err

		if attempt < retries {
			select {
			case <-time.After(b.Duration()):
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = retries
			}
		}
	}
	logger.Error("Позиция осталась без защитных ордеров",
		zap.String("symbol", req.Symbol),
		zap.String("ticket", ticketID),
		zap.Error(lastErr))
}

// closePosition закрывает позицию и освобождает ключ (символ, сторона)
func (e *Engine) closePosition(ctx context.Context, symCtx *SymbolContext, side models.Side,
	decision *models.Decision) {

	pos := symCtx.Positions[side]
	if pos == nil {
		return
	}

	if err := e.exec.ClosePosition(ctx, pos); err != nil {
		logger.Error("Ошибка закрытия позиции",
			zap.String("symbol", pos.Symbol),
			zap.String("ticket", pos.TicketID),
			zap.Error(err))
		return
	}

	delete(symCtx.Positions, side)
	logger.Info("Позиция закрыта",
		zap.String("symbol", pos.Symbol),
		zap.String("side", string(side)),
		zap.String("ticket", pos.TicketID),
		zap.String("reason", decision.Reason))
}

// managePositions выполняет проход сопровождения всех открытых позиций
func (e *Engine) managePositions(ctx context.Context, symCtx *SymbolContext, currentPrice float64) {
	for _, pos := range symCtx.Positions {
		if err := e.posManager.Manage(ctx, pos, currentPrice); err != nil {
			logger.Warn("Ошибка сопровождения позиции",
				zap.String("symbol", pos.Symbol),
				zap.String("ticket", pos.TicketID),
				zap.Error(err))
		}
	}
}

// symbolContext возвращает контекст символа, создавая его при первом обращении
func (e *Engine) symbolContext(symbol string) *SymbolContext {
	symCtx, ok := e.contexts[symbol]
	if !ok {
		symCtx = &SymbolContext{
			Positions: make(map[models.Side]*models.PositionState),
		}
		e.contexts[symbol] = symCtx
	}
	return symCtx
}

// persistDecision сохраняет решение в журнал аудита
func (e *Engine) persistDecision(ctx context.Context, decision *models.Decision) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveDecision(ctx, decision); err != nil {
		logger.Warn("Не удалось сохранить решение",
			zap.String("symbol", decision.Symbol),
			zap.Error(err))
	}
}

// componentValues собирает значения компонентов для журнала аудита
func componentValues(signal *models.CompositeSignal) map[string]float64 {
	values := make(map[string]float64, len(signal.Components))
	for _, c := range signal.Components {
		values[c.Name] = c.Value
	}
	return values
}

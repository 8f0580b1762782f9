package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/skalibog/btde/internal/config"
	"github.com/skalibog/btde/pkg/logger"
	"github.com/skalibog/btde/pkg/models"
	"go.uber.org/zap"
)

// Число попыток обращения к внешнему классификатору по умолчанию
const defaultRetries = 3

// Лексикон для резервной оценки сентимента по ключевым словам.
// Резервный путь сознательно проще модели: отрицания и идиомы
// ("bullish trap") он оценивает неверно, это принятое ограничение.
var (
	positiveWords = []string{
		"bullish", "rally", "surge", "gain", "growth", "beat",
		"strong", "optimism", "recovery", "upgrade", "buy", "support",
	}
	negativeWords = []string{
		"bearish", "crash", "drop", "fall", "decline", "miss",
		"weak", "fear", "recession", "downgrade", "sell", "crisis",
	}
)

// classifierResponse представляет ответ внешнего классификатора
type classifierResponse struct {
	Signal     string  `json:"signal"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	EventCount int     `json:"event_count"`
	Source     string  `json:"source"`
}

// Analyzer оборачивает внешний сентимент-классификатор.
// Контракт: всегда возвращает результат в ограниченное время и
// никогда не отдает ошибку вызывающему — при недоступности модели
// срабатывает резервная оценка по лексикону.
type Analyzer struct {
	config config.SentimentConfig
	client *http.Client
}

// NewAnalyzer создает новый сентимент-анализатор
func NewAnalyzer(cfg config.SentimentConfig) *Analyzer {
	if cfg.Retries <= 0 {
		cfg.Retries = defaultRetries
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 5
	}
	if cfg.BackoffMs <= 0 {
		cfg.BackoffMs = 500
	}
	return &Analyzer{
		config: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// Analyze возвращает сентимент-оценку по списку событий календаря.
// Основной путь — внешний классификатор с ограниченным числом повторов
// и фиксированной паузой; при исчерпании попыток включается резерв.
func (a *Analyzer) Analyze(ctx context.Context, events []models.EconomicEvent) *models.SentimentResult {
	b := &backoff.Backoff{
		Min:    time.Duration(a.config.BackoffMs) * time.Millisecond,
		Max:    time.Duration(a.config.BackoffMs) * time.Millisecond,
		Factor: 1,
	}

	var lastErr error
	for attempt := 1; attempt <= a.config.Retries; attempt++ {
		result, err := a.classify(ctx, events)
		if err == nil {
			result.Source = models.SentimentSourceAI
			return result
		}
		lastErr = err
		logger.Warn("Сентимент-классификатор недоступен",
			zap.Int("attempt", attempt),
			zap.Int("retries", a.config.Retries),
			zap.Error(err))

		if attempt < a.config.Retries {
			select {
			case <-time.After(b.Duration()):
			case <-ctx.Done():
				logger.Warn("Контекст цикла отменен, переход на резервную оценку", zap.Error(ctx.Err()))
				return a.fallback(events)
			}
		}
	}

	logger.Warn("Попытки классификатора исчерпаны, переход на резервную оценку",
		zap.Error(lastErr))
	return a.fallback(events)
}

// classify выполняет один запрос к внешнему классификатору
func (a *Analyzer) classify(ctx context.Context, events []models.EconomicEvent) (*models.SentimentResult, error) {
	// Пустой список — запрос оценки по собственному календарю сервиса;
	// контракт требует массив, а не null
	if events == nil {
		events = []models.EconomicEvent{}
	}
	payload, err := json.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации событий: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса к классификатору: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("классификатор вернул статус %d", resp.StatusCode)
	}

	var parsed classifierResponse
	decoder := json.NewDecoder(resp.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("ошибка разбора ответа классификатора: %w", err)
	}

	result, err := parsed.toResult()
	if err != nil {
		// Некорректный ответ отклоняется явно, а не подменяется нулями
		return nil, fmt.Errorf("невалидный ответ классификатора: %w", err)
	}
	return result, nil
}

// toResult валидирует ответ классификатора по схеме контракта
func (r *classifierResponse) toResult() (*models.SentimentResult, error) {
	signal := models.SentimentSignal(r.Signal)
	switch signal {
	case models.SentimentStrongBuy, models.SentimentBuy, models.SentimentNeutral,
		models.SentimentSell, models.SentimentStrongSell:
	default:
		return nil, fmt.Errorf("неизвестный сигнал %q", r.Signal)
	}
	if r.Score < -1 || r.Score > 1 {
		return nil, fmt.Errorf("score %.3f вне диапазона [-1,1]", r.Score)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return nil, fmt.Errorf("confidence %.3f вне диапазона [0,1]", r.Confidence)
	}
	return &models.SentimentResult{
		Signal:     signal,
		Score:      r.Score,
		Confidence: r.Confidence,
		Reasoning:  r.Reasoning,
		EventCount: r.EventCount,
	}, nil
}

// fallback оценивает сентимент подсчетом ключевых слов лексикона
func (a *Analyzer) fallback(events []models.EconomicEvent) *models.SentimentResult {
	var sb strings.Builder
	for _, e := range events {
		sb.WriteString(e.Description)
		sb.WriteString(" ")
	}
	text := strings.ToLower(sb.String())
	words := strings.Fields(text)

	if len(words) == 0 {
		return &models.SentimentResult{
			Signal:     models.SentimentNeutral,
			Score:      0,
			Confidence: 0.1,
			Reasoning:  "резервная оценка: нет текста событий",
			EventCount: len(events),
			Source:     models.SentimentSourceFallback,
		}
	}

	var posCount, negCount int
	for _, w := range words {
		for _, p := range positiveWords {
			if strings.Contains(w, p) {
				posCount++
				break
			}
		}
		for _, n := range negativeWords {
			if strings.Contains(w, n) {
				negCount++
				break
			}
		}
	}

	score := float64(posCount-negCount) / float64(len(words))
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}

	// Уверенность растет с плотностью совпавших слов, но резервная
	// оценка никогда не претендует на уверенность модели
	density := float64(posCount+negCount) / float64(len(words))
	confidence := 0.1 + density
	if confidence > 0.45 {
		confidence = 0.45
	}

	result := &models.SentimentResult{
		Signal:     signalFromScore(score),
		Score:      score,
		Confidence: confidence,
		Reasoning:  fmt.Sprintf("резервная оценка: %d позитивных, %d негативных слов из %d", posCount, negCount, len(words)),
		EventCount: len(events),
		Source:     models.SentimentSourceFallback,
	}

	logger.Info("Сентимент рассчитан резервным путем",
		zap.String("signal", string(result.Signal)),
		zap.Float64("score", result.Score),
		zap.Float64("confidence", result.Confidence))

	return result
}

// signalFromScore переводит численную оценку в категорию сигнала
func signalFromScore(score float64) models.SentimentSignal {
	switch {
	case score >= 0.5:
		return models.SentimentStrongBuy
	case score >= 0.15:
		return models.SentimentBuy
	case score <= -0.5:
		return models.SentimentStrongSell
	case score <= -0.15:
		return models.SentimentSell
	default:
		return models.SentimentNeutral
	}
}

package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/skalibog/btde/internal/config"
	"github.com/skalibog/btde/pkg/models"
)

// InfluxDBStorage реализует интерфейс Storage с использованием InfluxDB.
// Хранит кэш свечей для анализаторов и журнал решений для пост-анализа.
type InfluxDBStorage struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPI
	org      string
	bucket   string
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(cfg config.StorageConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(context.Background())
	if err != nil {
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	queryAPI := client.QueryAPI(cfg.Organization)
	writeAPI := client.WriteAPI(cfg.Organization, cfg.Bucket)

	return &InfluxDBStorage{
		client:   client,
		queryAPI: queryAPI,
		writeAPI: writeAPI,
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() {
	s.client.Close()
}

// SaveCandles сохраняет пачку свечей
func (s *InfluxDBStorage) SaveCandles(ctx context.Context, candles []*models.Candle) error {
	for _, candle := range candles {
		point := influxdb2.NewPoint(
			"candles",
			map[string]string{
				"symbol":   candle.Symbol,
				"interval": candle.Interval,
			},
			map[string]interface{}{
				"open":   candle.Open,
				"high":   candle.High,
				"low":    candle.Low,
				"close":  candle.Close,
				"volume": candle.Volume,
			},
			candle.OpenTime,
		)
		s.writeAPI.WritePoint(point)
	}

	s.writeAPI.Flush()
	return nil
}

// GetCandles получает последние свечи по возрастанию времени
func (s *InfluxDBStorage) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	// Формируем Flux-запрос
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "candles")
			|> filter(fn: (r) => r.symbol == "%s")
			|> filter(fn: (r) => r.interval == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
	`, s.bucket, symbol, interval, limit)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса свечей: %w", err)
	}

	// Обрабатываем результаты
	var candles []*models.Candle
	for result.Next() {
		record := result.Record()

		timestamp := record.Time()
		open, _ := record.ValueByKey("open").(float64)
		high, _ := record.ValueByKey("high").(float64)
		low, _ := record.ValueByKey("low").(float64)
		close, _ := record.ValueByKey("close").(float64)
		volume, _ := record.ValueByKey("volume").(float64)

		candle := &models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  timestamp,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    volume,
			CloseTime: timestamp.Add(getIntervalDuration(interval)),
		}

		candles = append(candles, candle)
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	// Анализаторы ожидают свечи по возрастанию времени
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].OpenTime.Before(candles[j].OpenTime)
	})

	return candles, nil
}

// SaveDecision сохраняет решение цикла в журнал аудита
func (s *InfluxDBStorage) SaveDecision(ctx context.Context, decision *models.Decision) error {
	fields := map[string]interface{}{
		"action":      string(decision.Action),
		"score":       decision.Score,
		"confidence":  decision.Confidence,
		"volume":      decision.Volume,
		"stop_loss":   decision.StopLoss,
		"take_profit": decision.TakeProfit,
		"reason":      decision.Reason,
		"components":  fmt.Sprintf("%v", decision.Components),
	}

	point := influxdb2.NewPoint(
		"decisions",
		map[string]string{
			"symbol": decision.Symbol,
		},
		fields,
		decision.Timestamp,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()

	return nil
}

// GetDecisionHistory получает историю решений по символу
func (s *InfluxDBStorage) GetDecisionHistory(ctx context.Context, symbol string, limit int) ([]*models.Decision, error) {
	// Формируем Flux-запрос
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "decisions")
			|> filter(fn: (r) => r.symbol == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
	`, s.bucket, symbol, limit)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса истории решений: %w", err)
	}

	var decisions []*models.Decision
	for result.Next() {
		record := result.Record()

		timestamp := record.Time()
		action, _ := record.ValueByKey("action").(string)
		score, _ := record.ValueByKey("score").(float64)
		confidence, _ := record.ValueByKey("confidence").(float64)
		volume, _ := record.ValueByKey("volume").(float64)
		stopLoss, _ := record.ValueByKey("stop_loss").(float64)
		takeProfit, _ := record.ValueByKey("take_profit").(float64)
		reason, _ := record.ValueByKey("reason").(string)

		decision := &models.Decision{
			Symbol:     symbol,
			Timestamp:  timestamp,
			Action:     models.Action(action),
			Score:      score,
			Confidence: confidence,
			Volume:     volume,
			StopLoss:   stopLoss,
			TakeProfit: takeProfit,
			Reason:     reason,
			Components: make(map[string]float64),
		}

		decisions = append(decisions, decision)
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	return decisions, nil
}

// getIntervalDuration переводит строковый интервал в длительность
func getIntervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// Storage интерфейс хранилища свечей и журнала решений
type Storage interface {
	SaveCandles(ctx context.Context, candles []*models.Candle) error
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error)
	SaveDecision(ctx context.Context, decision *models.Decision) error
	GetDecisionHistory(ctx context.Context, symbol string, limit int) ([]*models.Decision, error)
	Close()
}

package exchange

import (
	"context"
	"time"

	"github.com/skalibog/btde/internal/storage"
	"github.com/skalibog/btde/pkg/logger"
	"go.uber.org/zap"
)

// Число свечей, запрашиваемых при каждом обновлении кэша
const collectLimit = 200

// CandleCollector периодически переносит свечи с биржи в хранилище,
// чтобы журнал аудита хранил историю рядом с решениями
type CandleCollector struct {
	client   *BinanceClient
	store    storage.Storage
	symbols  []string
	interval string
}

// NewCandleCollector создает новый сборщик свечей
func NewCandleCollector(client *BinanceClient, store storage.Storage, symbols []string, interval string) *CandleCollector {
	return &CandleCollector{
		client:   client,
		store:    store,
		symbols:  symbols,
		interval: interval,
	}
}

// Start запускает цикл сбора до отмены контекста
func (c *CandleCollector) Start(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	c.collect(ctx)

	for {
		select {
		case <-ticker.C:
			c.collect(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// collect выполняет один проход сбора по всем символам
func (c *CandleCollector) collect(ctx context.Context) {
	for _, symbol := range c.symbols {
		candles, err := c.client.GetCandles(ctx, symbol, c.interval, collectLimit)
		if err != nil {
			logger.Warn("Не удалось получить свечи для кэша",
				zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if err := c.store.SaveCandles(ctx, candles); err != nil {
			logger.Warn("Не удалось сохранить свечи",
				zap.String("symbol", symbol), zap.Error(err))
		}
	}
}

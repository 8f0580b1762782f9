package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"github.com/skalibog/btde/internal/config"
	"github.com/skalibog/btde/pkg/models"
)

// BinanceClient клиент для взаимодействия с Binance Futures.
// Реализует порты рыночных данных и исполнения, чтобы решающее ядро
// не зависело от конкретной торговой площадки.
type BinanceClient struct {
	futures *futures.Client
}

// NewBinanceClient создает новый клиент Binance
func NewBinanceClient(cfg config.BinanceConfig) (*BinanceClient, error) {
	// Тестовая сеть включается пакетным флагом до создания клиента
	if cfg.Testnet {
		futures.UseTestnet = true
	}
	futuresClient := futures.NewClient(cfg.APIKey, cfg.APISecret)

	return &BinanceClient{
		futures: futuresClient,
	}, nil
}

// GetCandles получает исторические свечи по возрастанию времени
func (c *BinanceClient) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	klines, err := c.futures.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свечей: %w", err)
	}

	candles := make([]*models.Candle, len(klines))
	for i, k := range klines {
		open, err := strconv.ParseFloat(k.Open, 64)
		if err != nil {
			return nil, fmt.Errorf("ошибка парсинга цены открытия: %w", err)
		}
		high, err := strconv.ParseFloat(k.High, 64)
		if err != nil {
			return nil, fmt.Errorf("ошибка парсинга максимума: %w", err)
		}
		low, err := strconv.ParseFloat(k.Low, 64)
		if err != nil {
			return nil, fmt.Errorf("ошибка парсинга минимума: %w", err)
		}
		closePrice, err := strconv.ParseFloat(k.Close, 64)
		if err != nil {
			return nil, fmt.Errorf("ошибка парсинга цены закрытия: %w", err)
		}
		volume, err := strconv.ParseFloat(k.Volume, 64)
		if err != nil {
			return nil, fmt.Errorf("ошибка парсинга объема: %w", err)
		}

		candles[i] = &models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  time.Unix(k.OpenTime/1000, 0),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			CloseTime: time.Unix(k.CloseTime/1000, 0),
		}
	}

	return candles, nil
}

// GetOrderBook получает стакан заявок
func (c *BinanceClient) GetOrderBook(ctx context.Context, symbol string, limit int) (*models.OrderBook, error) {
	ob, err := c.futures.NewDepthService().
		Symbol(symbol).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения стакана: %w", err)
	}

	orderBook := &models.OrderBook{
		Symbol:    symbol,
		Timestamp: time.Now(),
		Bids:      make([]models.OrderBookLevel, len(ob.Bids)),
		Asks:      make([]models.OrderBookLevel, len(ob.Asks)),
	}

	for i, bid := range ob.Bids {
		orderBook.Bids[i] = models.OrderBookLevel{
			Price:  bid.Price,
			Amount: bid.Quantity,
		}
	}

	for i, ask := range ob.Asks {
		orderBook.Asks[i] = models.OrderBookLevel{
			Price:  ask.Price,
			Amount: ask.Quantity,
		}
	}

	return orderBook, nil
}

// GetAccountInfo получает баланс и эквити счета
func (c *BinanceClient) GetAccountInfo(ctx context.Context) (*models.AccountInfo, error) {
	account, err := c.futures.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения данных счета: %w", err)
	}

	balance, err := strconv.ParseFloat(account.TotalWalletBalance, 64)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга баланса: %w", err)
	}
	equity, err := strconv.ParseFloat(account.TotalMarginBalance, 64)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга эквити: %w", err)
	}

	return &models.AccountInfo{
		Balance: balance,
		Equity:  equity,
	}, nil
}

// PlaceOrder выставляет рыночный ордер с защитными уровнями.
// Возвращает идентификатор тикета открытой позиции.
func (c *BinanceClient) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	side := futures.SideTypeBuy
	protectSide := futures.SideTypeSell
	if req.Side == models.SideShort {
		side = futures.SideTypeSell
		protectSide = futures.SideTypeBuy
	}

	order, err := c.futures.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(formatFloat(req.Volume)).
		NewClientOrderID("btde-" + uuid.NewString()).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("ошибка выставления ордера: %w", err)
	}

	ticketID := strconv.FormatInt(order.OrderID, 10)

	// Защитные ордера на всю позицию; отказ по ним не отменяет вход,
	// но обязан попасть в лог вызывающего
	if req.StopLoss > 0 {
		_, err = c.futures.NewCreateOrderService().
			Symbol(req.Symbol).
			Side(protectSide).
			Type(futures.OrderTypeStopMarket).
			StopPrice(formatFloat(req.StopLoss)).
			ClosePosition(true).
			Do(ctx)
		if err != nil {
			return ticketID, fmt.Errorf("ошибка выставления стоп-лосса: %w", err)
		}
	}
	if req.TakeProfit > 0 {
		_, err = c.futures.NewCreateOrderService().
			Symbol(req.Symbol).
			Side(protectSide).
			Type(futures.OrderTypeTakeProfitMarket).
			StopPrice(formatFloat(req.TakeProfit)).
			ClosePosition(true).
			Do(ctx)
		if err != nil {
			return ticketID, fmt.Errorf("ошибка выставления тейк-профита: %w", err)
		}
	}

	return ticketID, nil
}

// ModifyPosition переставляет защитные уровни позиции
func (c *BinanceClient) ModifyPosition(ctx context.Context, pos *models.PositionState, stopLoss, takeProfit float64) error {
	err := c.futures.NewCancelAllOpenOrdersService().
		Symbol(pos.Symbol).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("ошибка отмены защитных ордеров: %w", err)
	}

	protectSide := futures.SideTypeSell
	if pos.Side == models.SideShort {
		protectSide = futures.SideTypeBuy
	}

	_, err = c.futures.NewCreateOrderService().
		Symbol(pos.Symbol).
		Side(protectSide).
		Type(futures.OrderTypeStopMarket).
		StopPrice(formatFloat(stopLoss)).
		ClosePosition(true).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("ошибка перестановки стоп-лосса: %w", err)
	}

	if takeProfit > 0 {
		_, err = c.futures.NewCreateOrderService().
			Symbol(pos.Symbol).
			Side(protectSide).
			Type(futures.OrderTypeTakeProfitMarket).
			StopPrice(formatFloat(takeProfit)).
			ClosePosition(true).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("ошибка перестановки тейк-профита: %w", err)
		}
	}

	return nil
}

// ClosePosition закрывает позицию встречным рыночным ордером
func (c *BinanceClient) ClosePosition(ctx context.Context, pos *models.PositionState) error {
	side := futures.SideTypeSell
	if pos.Side == models.SideShort {
		side = futures.SideTypeBuy
	}

	_, err := c.futures.NewCreateOrderService().
		Symbol(pos.Symbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(formatFloat(pos.Volume)).
		ReduceOnly(true).
		NewClientOrderID("btde-close-" + uuid.NewString()).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("ошибка закрытия позиции: %w", err)
	}

	return nil
}

// formatFloat форматирует число для API биржи
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// MarketDataPort порт рыночных данных: решающее ядро тестируется
// с фейковыми реализациями и не знает о конкретной бирже
type MarketDataPort interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error)
	GetOrderBook(ctx context.Context, symbol string, limit int) (*models.OrderBook, error)
	GetAccountInfo(ctx context.Context) (*models.AccountInfo, error)
}

// OrderRequest представляет запрос на открытие позиции
type OrderRequest struct {
	Symbol     string
	Side       models.Side
	Volume     float64
	StopLoss   float64
	TakeProfit float64
}

// ExecutionPort порт исполнения ордеров
type ExecutionPort interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)
	ModifyPosition(ctx context.Context, pos *models.PositionState, stopLoss, takeProfit float64) error
	ClosePosition(ctx context.Context, pos *models.PositionState) error
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skalibog/btde/internal/config"
	"github.com/skalibog/btde/internal/engine"
	"github.com/skalibog/btde/internal/exchange"
	"github.com/skalibog/btde/internal/storage"
	"github.com/skalibog/btde/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Init()
	defer logger.GetLogger().Sync()

	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	flag.Parse()

	// Проверяем наличие файла конфигурации
	logger.Info("Проверка наличия файла конфигурации", zap.String("path", *configPath))
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		logger.Fatal("Файл конфигурации не найден", zap.String("path", *configPath))
	}

	// Загружаем конфигурацию; невалидные параметры фатальны до начала торговли
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	// Создаем контекст с возможностью отмены через горутину
	ctx, cancel := context.WithCancel(context.Background())

	// Настраиваем обработку сигналов завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nЗавершение работы...")
		cancel()
		time.Sleep(5 * time.Second) // Даем горутинам время на завершение
		os.Exit(0)
	}()

	// Инициализируем хранилище журнала решений
	store, err := storage.NewInfluxDBStorage(cfg.Storage)
	if err != nil {
		logger.Fatal("Ошибка инициализации хранилища", zap.Error(err))
	}
	defer store.Close()

	// Инициализируем клиент биржи
	client, err := exchange.NewBinanceClient(cfg.Binance)
	if err != nil {
		logger.Fatal("Ошибка инициализации клиента биржи", zap.Error(err))
	}

	// Запускаем сборщик свечей в отдельной горутине
	collector := exchange.NewCandleCollector(client, store, cfg.Trading.Symbols, cfg.Trading.Interval)
	go func() {
		if err := collector.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("Сборщик свечей остановлен", zap.Error(err))
		}
	}()

	// Создаем решающий механизм
	decisionEngine := engine.NewEngine(cfg, client, client, store)

	// Последнее решение из журнала аудита для непрерывности между запусками
	for _, symbol := range cfg.Trading.Symbols {
		history, err := store.GetDecisionHistory(ctx, symbol, 1)
		if err != nil || len(history) == 0 {
			continue
		}
		logger.Info("Последнее решение по символу",
			zap.String("symbol", symbol),
			zap.String("action", string(history[0].Action)),
			zap.Time("timestamp", history[0].Timestamp))
	}

	// Основной цикл оценки
	cycleSeconds := cfg.Trading.CycleSeconds
	if cycleSeconds <= 0 {
		cycleSeconds = 60
	}
	ticker := time.NewTicker(time.Duration(cycleSeconds) * time.Second)
	defer ticker.Stop()

	logger.Info("Решающий механизм запущен",
		zap.Any("symbols", cfg.Trading.Symbols),
		zap.Int("cycle_seconds", cycleSeconds))

	for {
		select {
		case <-ticker.C:
			// Сентимент-сервис ведет собственный новостной календарь:
			// пустой список событий означает оценку текущего календаря
			decisionEngine.RunCycle(ctx, nil)
		case <-ctx.Done():
			logger.Info("Решающий механизм остановлен")
			return
		}
	}
}

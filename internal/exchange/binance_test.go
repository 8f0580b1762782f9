package exchange

import (
	"testing"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/skalibog/btde/internal/config"
)

func TestNewBinanceClientTestnet(t *testing.T) {
	futures.UseTestnet = false
	defer func() { futures.UseTestnet = false }()

	if _, err := NewBinanceClient(config.BinanceConfig{Testnet: true}); err != nil {
		t.Fatalf("неожиданная ошибка создания клиента: %v", err)
	}
	if !futures.UseTestnet {
		t.Error("тестовая сеть должна включаться пакетным флагом futures.UseTestnet")
	}
}

func TestNewBinanceClientMainnet(t *testing.T) {
	futures.UseTestnet = false

	if _, err := NewBinanceClient(config.BinanceConfig{}); err != nil {
		t.Fatalf("неожиданная ошибка создания клиента: %v", err)
	}
	if futures.UseTestnet {
		t.Error("боевая конфигурация не должна включать тестовую сеть")
	}
}

package sentiment

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/skalibog/btde/internal/config"
	"github.com/skalibog/btde/pkg/models"
)

func sentimentConfig(url string) config.SentimentConfig {
	return config.SentimentConfig{
		URL:            url,
		TimeoutSeconds: 2,
		Retries:        3,
		BackoffMs:      1,
	}
}

func sampleEvents() []models.EconomicEvent {
	return []models.EconomicEvent{
		{Symbol: "BTCUSDT", Description: "Fed rate decision", Impact: "high"},
	}
}

func TestPrimaryPathSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"signal":"BUY","score":0.4,"confidence":0.8,"reasoning":"rate pause","event_count":1,"source":"AI"}`))
	}))
	defer server.Close()

	analyzer := NewAnalyzer(sentimentConfig(server.URL))
	result := analyzer.Analyze(context.Background(), sampleEvents())

	if result.Source != models.SentimentSourceAI {
		t.Errorf("ожидался источник AI, получен %v", result.Source)
	}
	if result.Signal != models.SentimentBuy {
		t.Errorf("ожидался сигнал BUY, получен %v", result.Signal)
	}
	if result.Score != 0.4 || result.Confidence != 0.8 {
		t.Errorf("неверные score/confidence: %v/%v", result.Score, result.Confidence)
	}
}

func TestNilEventsSentAsEmptyArray(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Write([]byte(`{"signal":"NEUTRAL","score":0,"confidence":0.2,"source":"AI"}`))
	}))
	defer server.Close()

	analyzer := NewAnalyzer(sentimentConfig(server.URL))
	result := analyzer.Analyze(context.Background(), nil)

	// Контракт сервиса требует массив событий, а не null
	if strings.TrimSpace(body) != "[]" {
		t.Errorf("пустой список должен сериализоваться в [], отправлено %q", body)
	}
	if result.Source != models.SentimentSourceAI {
		t.Errorf("ожидался источник AI, получен %v", result.Source)
	}
}

func TestFallbackAfterThreeFailures(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	analyzer := NewAnalyzer(sentimentConfig(server.URL))
	result := analyzer.Analyze(context.Background(), sampleEvents())

	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("ожидалось 3 попытки, выполнено %d", got)
	}
	if result.Source != models.SentimentSourceFallback {
		t.Errorf("ожидался резервный источник, получен %v", result.Source)
	}
	if result.Confidence >= 0.5 {
		t.Errorf("уверенность резерва должна быть ниже 0.5, получена %v", result.Confidence)
	}
}

func TestMalformedResponseRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Сигнал вне перечисления контракта
		w.Write([]byte(`{"signal":"MOON","score":5.0,"confidence":0.9}`))
	}))
	defer server.Close()

	analyzer := NewAnalyzer(sentimentConfig(server.URL))
	result := analyzer.Analyze(context.Background(), sampleEvents())

	if result.Source != models.SentimentSourceFallback {
		t.Errorf("невалидный ответ должен вести к резерву, получен источник %v", result.Source)
	}
}

func TestFallbackLexiconScoring(t *testing.T) {
	analyzer := NewAnalyzer(sentimentConfig("http://127.0.0.1:1"))

	positive := analyzer.fallback([]models.EconomicEvent{
		{Description: "bullish rally strong growth"},
	})
	if positive.Score <= 0 {
		t.Errorf("позитивный текст должен дать score > 0, получен %v", positive.Score)
	}

	negative := analyzer.fallback([]models.EconomicEvent{
		{Description: "bearish crash fear recession"},
	})
	if negative.Score >= 0 {
		t.Errorf("негативный текст должен дать score < 0, получен %v", negative.Score)
	}
	if negative.Signal != models.SentimentStrongSell && negative.Signal != models.SentimentSell {
		t.Errorf("ожидался SELL/STRONG_SELL, получен %v", negative.Signal)
	}
}

func TestFallbackEmptyEventsNeutral(t *testing.T) {
	analyzer := NewAnalyzer(sentimentConfig("http://127.0.0.1:1"))

	result := analyzer.Analyze(context.Background(), nil)
	if result.Signal != models.SentimentNeutral {
		t.Errorf("ожидался NEUTRAL, получен %v", result.Signal)
	}
	if result.Confidence < 0.1 || result.Confidence > 0.3 {
		t.Errorf("уверенность деградации должна быть в 0.1-0.3, получена %v", result.Confidence)
	}
	if result.Source != models.SentimentSourceFallback {
		t.Errorf("ожидался резервный источник, получен %v", result.Source)
	}
}

func TestScoreBoundsClamped(t *testing.T) {
	analyzer := NewAnalyzer(sentimentConfig("http://127.0.0.1:1"))

	result := analyzer.fallback([]models.EconomicEvent{
		{Description: "bullish bullish bullish"},
	})
	if result.Score < -1 || result.Score > 1 {
		t.Errorf("score %v вне диапазона [-1,1]", result.Score)
	}
}

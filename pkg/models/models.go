package models

import (
	"time"
)

// Candle представляет свечу
type Candle struct {
	Symbol    string
	Interval  string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// OrderBookLevel представляет уровень стакана
type OrderBookLevel struct {
	Price  string
	Amount string
}

// OrderBook представляет стакан заявок
type OrderBook struct {
	Symbol    string
	Timestamp time.Time
	Bids      []OrderBookLevel
	Asks      []OrderBookLevel
}

// IndicatorSnapshot представляет рассчитанные значения индикаторов для символа
type IndicatorSnapshot struct {
	SMA           float64
	EMAShort      float64
	EMAMedium     float64
	EMALong       float64
	RSI           float64
	ATR           float64
	ADX           float64
	PlusDI        float64
	MinusDI       float64
	MACDMain      float64
	MACDSignal    float64
	MACDHistogram float64
	BBUpper       float64
	BBMiddle      float64
	BBLower       float64
}

// SignalComponent представляет вклад одного анализатора в композитный сигнал
type SignalComponent struct {
	Name       string
	Value      float64
	Weight     float64
	Confidence float64
}

// CompositeSignal представляет итоговый взвешенный сигнал
type CompositeSignal struct {
	Symbol     string
	Timestamp  time.Time
	Score      float64
	Confidence float64
	Components []SignalComponent
}

// SentimentSignal категория сигнала сентимент-оракула
type SentimentSignal string

const (
	SentimentStrongBuy  SentimentSignal = "STRONG_BUY"
	SentimentBuy        SentimentSignal = "BUY"
	SentimentNeutral    SentimentSignal = "NEUTRAL"
	SentimentSell       SentimentSignal = "SELL"
	SentimentStrongSell SentimentSignal = "STRONG_SELL"
)

// SentimentSource источник результата сентимент-анализа
type SentimentSource string

const (
	SentimentSourceAI       SentimentSource = "AI"
	SentimentSourceFallback SentimentSource = "FALLBACK"
)

// SentimentResult представляет результат сентимент-анализа
type SentimentResult struct {
	Signal     SentimentSignal
	Score      float64
	Confidence float64
	Reasoning  string
	EventCount int
	Source     SentimentSource
}

// EconomicEvent представляет событие новостного календаря для сентимент-оракула
type EconomicEvent struct {
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Impact      string `json:"impact"`
	Actual      string `json:"actual"`
	Forecast    string `json:"forecast"`
	Previous    string `json:"previous"`
}

// RiskParameters представляет параметры риска и ограничения брокера на цикл
type RiskParameters struct {
	AccountBalance float64
	RiskPercent    float64
	MinVolume      float64
	MaxVolume      float64
	VolumeStep     float64
	TickValue      float64
	TickSize       float64
}

// SLTPLevels представляет рассчитанные дистанции стоп-лосса и тейк-профита
type SLTPLevels struct {
	StopLossDistance   float64
	TakeProfitDistance float64
}

// Side сторона позиции
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// PositionState представляет состояние открытой позиции.
// Единственный владелец состояния — ключ (symbol, side).
type PositionState struct {
	TicketID             string
	Symbol               string
	Side                 Side
	OpenPrice            float64
	Volume               float64
	CurrentStopLoss      float64
	TakeProfit           float64
	BreakevenActive      bool
	TrailingActive       bool
	LastModificationTime time.Time
}

// AccountInfo представляет состояние торгового счета
type AccountInfo struct {
	Balance float64
	Equity  float64
}

// Action действие решающего механизма
type Action string

const (
	ActionHold       Action = "HOLD"
	ActionOpenLong   Action = "OPEN_LONG"
	ActionOpenShort  Action = "OPEN_SHORT"
	ActionCloseLong  Action = "CLOSE_LONG"
	ActionCloseShort Action = "CLOSE_SHORT"
)

// Decision представляет итоговое решение одного цикла оценки
type Decision struct {
	Symbol     string
	Timestamp  time.Time
	Action     Action
	Score      float64
	Confidence float64
	Volume     float64
	StopLoss   float64
	TakeProfit float64
	Reason     string
	Components map[string]float64
}

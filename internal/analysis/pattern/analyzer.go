package pattern

import (
	"math"

	"github.com/skalibog/btde/internal/config"
	"github.com/skalibog/btde/pkg/models"
)

// Пороговые коэффициенты свечных паттернов
const (
	engulfRatio     = 1.5 // тело текущей свечи к телу предыдущей
	bodyRatio       = 1.2 // тело подтверждающей свечи к среднему телу
	volumeRatio     = 1.5 // объем подтверждающей свечи к среднему объему
	starBodyRatio   = 0.3 // тело средней свечи звезды к среднему телу
	hammerBodyRatio = 0.8 // тело молота к среднему телу
	wickBodyRatio   = 3.0 // длинная тень к телу
	noseBodyRatio   = 0.1 // короткая тень к телу
)

// CandleShape представляет геометрию свечи
type CandleShape struct {
	Body      float64
	UpperWick float64
	LowerWick float64
	IsBullish bool
}

// NewCandleShape рассчитывает геометрию свечи
func NewCandleShape(c *models.Candle) CandleShape {
	return CandleShape{
		Body:      math.Abs(c.Close - c.Open),
		UpperWick: c.High - math.Max(c.Open, c.Close),
		LowerWick: math.Min(c.Open, c.Close) - c.Low,
		IsBullish: c.Close > c.Open,
	}
}

// Result представляет итог классификации паттернов за цикл
type Result struct {
	Bullish bool
	Bearish bool
	Name    string
}

// Analyzer реализует распознаватель разворотных свечных паттернов
type Analyzer struct {
	config config.PatternConfig
}

// NewAnalyzer создает новый распознаватель паттернов
func NewAnalyzer(cfg config.PatternConfig) *Analyzer {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 10
	}
	return &Analyzer{
		config: cfg,
	}
}

// Analyze классифицирует последние закрытые свечи.
// Свечи идут по возрастанию времени. Если одновременно сработали бычий и
// медвежий паттерн, результат считается неоднозначным и паттерн не фиксируется.
func (a *Analyzer) Analyze(candles []*models.Candle) Result {
	// Нужны три свечи для трехсвечных паттернов плюс окно для средних значений
	if len(candles) < a.config.Lookback+3 {
		return Result{}
	}

	cur := candles[len(candles)-1]
	prev := candles[len(candles)-2]
	first := candles[len(candles)-3]

	avgBody, avgVolume := a.averages(candles)
	if avgBody == 0 || avgVolume == 0 {
		return Result{}
	}

	var bullish, bearish bool
	var bullName, bearName string

	switch {
	case a.isBullishEngulfing(prev, cur, avgBody, avgVolume):
		bullish, bullName = true, "bullish_engulfing"
	case a.isMorningStar(first, prev, cur, avgBody, avgVolume):
		bullish, bullName = true, "morning_star"
	case a.isHammer(prev, cur, avgBody, avgVolume):
		bullish, bullName = true, "hammer"
	}

	switch {
	case a.isBearishEngulfing(prev, cur, avgBody, avgVolume):
		bearish, bearName = true, "bearish_engulfing"
	case a.isEveningStar(first, prev, cur, avgBody, avgVolume):
		bearish, bearName = true, "evening_star"
	case a.isShootingStar(prev, cur, avgBody, avgVolume):
		bearish, bearName = true, "shooting_star"
	}

	// Одновременное срабатывание обеих сторон трактуется как отсутствие паттерна
	if bullish && bearish {
		return Result{}
	}
	if bullish {
		return Result{Bullish: true, Name: bullName}
	}
	if bearish {
		return Result{Bearish: true, Name: bearName}
	}
	return Result{}
}

// averages рассчитывает скользящие средние тела и объема по окну,
// предшествующему текущей свече
func (a *Analyzer) averages(candles []*models.Candle) (float64, float64) {
	end := len(candles) - 1
	start := end - a.config.Lookback
	var totalBody, totalVolume float64
	for i := start; i < end; i++ {
		shape := NewCandleShape(candles[i])
		totalBody += shape.Body
		totalVolume += candles[i].Volume
	}
	n := float64(a.config.Lookback)
	return totalBody / n, totalVolume / n
}

// isBullishEngulfing проверяет бычье поглощение
func (a *Analyzer) isBullishEngulfing(prev, cur *models.Candle, avgBody, avgVolume float64) bool {
	prevShape := NewCandleShape(prev)
	curShape := NewCandleShape(cur)

	if !curShape.IsBullish || prevShape.IsBullish {
		return false
	}
	// Текущая свеча открывается ниже закрытия и закрывается выше открытия предыдущей
	if cur.Open >= prev.Close || cur.Close <= prev.Open {
		return false
	}
	if curShape.Body <= engulfRatio*prevShape.Body {
		return false
	}
	if curShape.Body <= bodyRatio*avgBody {
		return false
	}
	return cur.Volume > volumeRatio*avgVolume
}

// isBearishEngulfing проверяет медвежье поглощение
func (a *Analyzer) isBearishEngulfing(prev, cur *models.Candle, avgBody, avgVolume float64) bool {
	prevShape := NewCandleShape(prev)
	curShape := NewCandleShape(cur)

	if curShape.IsBullish || !prevShape.IsBullish {
		return false
	}
	if cur.Open <= prev.Close || cur.Close >= prev.Open {
		return false
	}
	if curShape.Body <= engulfRatio*prevShape.Body {
		return false
	}
	if curShape.Body <= bodyRatio*avgBody {
		return false
	}
	return cur.Volume > volumeRatio*avgVolume
}

// isMorningStar проверяет утреннюю звезду (трехсвечный разворот вверх)
func (a *Analyzer) isMorningStar(first, middle, cur *models.Candle, avgBody, avgVolume float64) bool {
	firstShape := NewCandleShape(first)
	middleShape := NewCandleShape(middle)
	curShape := NewCandleShape(cur)

	// Первая свеча медвежья, средняя — нерешительность, третья — сильная бычья
	if firstShape.IsBullish || !curShape.IsBullish {
		return false
	}
	if middleShape.Body >= starBodyRatio*avgBody {
		return false
	}
	if curShape.Body <= bodyRatio*avgBody {
		return false
	}
	if cur.Close <= first.Open {
		return false
	}
	return cur.Volume > volumeRatio*avgVolume
}

// isEveningStar проверяет вечернюю звезду (трехсвечный разворот вниз)
func (a *Analyzer) isEveningStar(first, middle, cur *models.Candle, avgBody, avgVolume float64) bool {
	firstShape := NewCandleShape(first)
	middleShape := NewCandleShape(middle)
	curShape := NewCandleShape(cur)

	if !firstShape.IsBullish || curShape.IsBullish {
		return false
	}
	if middleShape.Body >= starBodyRatio*avgBody {
		return false
	}
	if curShape.Body <= bodyRatio*avgBody {
		return false
	}
	if cur.Close >= first.Open {
		return false
	}
	return cur.Volume > volumeRatio*avgVolume
}

// isHammer проверяет молот
func (a *Analyzer) isHammer(prev, cur *models.Candle, avgBody, avgVolume float64) bool {
	curShape := NewCandleShape(cur)

	if !curShape.IsBullish {
		return false
	}
	if curShape.LowerWick <= wickBodyRatio*curShape.Body {
		return false
	}
	if curShape.UpperWick >= noseBodyRatio*curShape.Body {
		return false
	}
	if curShape.Body <= hammerBodyRatio*avgBody {
		return false
	}
	// Молот должен обновить локальный минимум
	if cur.Low >= prev.Low {
		return false
	}
	return cur.Volume > volumeRatio*avgVolume
}

// isShootingStar проверяет падающую звезду
func (a *Analyzer) isShootingStar(prev, cur *models.Candle, avgBody, avgVolume float64) bool {
	curShape := NewCandleShape(cur)

	if curShape.IsBullish {
		return false
	}
	if curShape.UpperWick <= wickBodyRatio*curShape.Body {
		return false
	}
	if curShape.LowerWick >= noseBodyRatio*curShape.Body {
		return false
	}
	if curShape.Body <= hammerBodyRatio*avgBody {
		return false
	}
	// Падающая звезда должна обновить локальный максимум
	if cur.High <= prev.High {
		return false
	}
	return cur.Volume > volumeRatio*avgVolume
}

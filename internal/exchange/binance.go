package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// Binance adapts the spot REST API to the Exchange contract. Precision rules
// are fetched lazily from exchange info and cached per symbol.
type Binance struct {
	client *binance.Client

	mu        sync.Mutex
	precision map[string]Precision
}

// NewBinance creates an adapter; keys may be empty for public market data.
func NewBinance(apiKey, secretKey string) *Binance {
	return &Binance{
		client:    binance.NewClient(apiKey, secretKey),
		precision: make(map[string]Precision),
	}
}

// GetCandles returns the last `limit` one-minute candles ending at `end`.
func (b *Binance) GetCandles(ctx context.Context, symbol string, end time.Time, limit int) ([]schema.Candle, error) {
	klines, err := b.client.NewKlinesService().
		Symbol(symbol).
		Interval("1m").
		EndTime(end.UnixMilli()).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch klines %s", symbol)
	}

	candles := make([]schema.Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := klineToCandle(k)
		if err != nil {
			return nil, errors.Wrapf(err, "parse kline %s", symbol)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func klineToCandle(k *binance.Kline) (schema.Candle, error) {
	open, err := decimal.NewFromString(k.Open)
	if err != nil {
		return schema.Candle{}, err
	}
	high, err := decimal.NewFromString(k.High)
	if err != nil {
		return schema.Candle{}, err
	}
	low, err := decimal.NewFromString(k.Low)
	if err != nil {
		return schema.Candle{}, err
	}
	cls, err := decimal.NewFromString(k.Close)
	if err != nil {
		return schema.Candle{}, err
	}
	vol, err := decimal.NewFromString(k.Volume)
	if err != nil {
		return schema.Candle{}, err
	}
	return schema.Candle{
		OpenTime: time.UnixMilli(k.OpenTime).UTC(),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    cls,
		Volume:   vol,
	}, nil
}

// GetNextCandles is rejected: live time has no hindsight.
func (b *Binance) GetNextCandles(context.Context, string, time.Time, int) ([]schema.Candle, error) {
	return nil, ErrNoLookAhead
}

// GetAveragePrice returns the VWAP over the last five one-minute candles.
func (b *Binance) GetAveragePrice(ctx context.Context, symbol string, at time.Time) (decimal.Decimal, error) {
	return averagePrice(ctx, b, symbol, at)
}

// FormatPrice formats to the symbol tick size; unknown symbols fall back to
// 8 places.
func (b *Binance) FormatPrice(symbol string, price decimal.Decimal) string {
	return formatFixed(price, b.cachedPrecision(symbol).Price)
}

// FormatQuantity formats to the symbol step size.
func (b *Binance) FormatQuantity(symbol string, qty decimal.Decimal) string {
	return formatFixed(qty, b.cachedPrecision(symbol).Quantity)
}

func (b *Binance) cachedPrecision(symbol string) Precision {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.precision[symbol]; ok {
		return p
	}
	return Precision{Price: 8, Quantity: 8}
}

// LoadPrecision fetches and caches formatting rules for a symbol.
func (b *Binance) LoadPrecision(ctx context.Context, symbol string) (Precision, error) {
	b.mu.Lock()
	if p, ok := b.precision[symbol]; ok {
		b.mu.Unlock()
		return p, nil
	}
	b.mu.Unlock()

	info, err := b.client.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return Precision{}, errors.Wrapf(err, "fetch exchange info %s", symbol)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		p := Precision{Price: 8, Quantity: 8}
		if f := s.PriceFilter(); f != nil {
			p.Price = stepPrecision(f.TickSize)
		}
		if f := s.LotSizeFilter(); f != nil {
			p.Quantity = stepPrecision(f.StepSize)
		}
		b.mu.Lock()
		b.precision[symbol] = p
		b.mu.Unlock()
		return p, nil
	}
	return Precision{}, errors.Wrap(ErrUnknownSym, symbol)
}

// GetOrderBook fetches a depth snapshot.
func (b *Binance) GetOrderBook(ctx context.Context, symbol string, depth int) (schema.OrderBook, error) {
	res, err := b.client.NewDepthService().Symbol(symbol).Limit(depth).Do(ctx)
	if err != nil {
		return schema.OrderBook{}, errors.Wrapf(err, "fetch depth %s", symbol)
	}

	book := schema.OrderBook{Symbol: symbol, At: time.Now().UTC()}
	for _, bid := range res.Bids {
		price, err := decimal.NewFromString(bid.Price)
		if err != nil {
			continue
		}
		qty, err := decimal.NewFromString(bid.Quantity)
		if err != nil {
			continue
		}
		book.Bids = append(book.Bids, schema.OrderBookLevel{Price: price, Quantity: qty})
	}
	for _, ask := range res.Asks {
		price, err := decimal.NewFromString(ask.Price)
		if err != nil {
			continue
		}
		qty, err := decimal.NewFromString(ask.Quantity)
		if err != nil {
			continue
		}
		book.Asks = append(book.Asks, schema.OrderBookLevel{Price: price, Quantity: qty})
	}
	return book, nil
}

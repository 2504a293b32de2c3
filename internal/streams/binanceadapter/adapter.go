// Package binanceadapter implements streams.Adapter for Binance spot and
// futures public market data, grounded on the teacher's gorilla/websocket
// dial/read-loop idiom (internal/binance/user_data_stream.go), adapted here
// from the authenticated user-data stream to public trade and book-ticker
// streams.
package binanceadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/koshedu/marketcore/internal/instrument"
	"github.com/koshedu/marketcore/internal/orderbook"
	"github.com/koshedu/marketcore/internal/orderstore"
	"github.com/koshedu/marketcore/internal/streams"
)

const (
	spotBaseURL    = "wss://stream.binance.com:9443/stream"
	futuresBaseURL = "wss://fstream.binance.com/stream"
)

// Adapter opens combined-stream WebSocket connections against Binance's
// public market data endpoints.
type Adapter struct {
	exchange     instrument.ExchangeId
	toSymbol     func(instrument.Instrument) string
	resolveIndex func(instrument.Instrument) instrument.InstrumentIndex
	logger       zerolog.Logger
}

// New builds an Adapter for either instrument.BinanceSpot or
// instrument.BinanceFuturesUsd. toSymbol renders an Instrument into
// Binance's lowercase pair notation (e.g. "btcusdt"); resolveIndex maps it to
// the dense index the engine's NameIndexer assigned at startup.
func New(exchange instrument.ExchangeId, toSymbol func(instrument.Instrument) string, resolveIndex func(instrument.Instrument) instrument.InstrumentIndex, logger zerolog.Logger) *Adapter {
	return &Adapter{
		exchange:     exchange,
		toSymbol:     toSymbol,
		resolveIndex: resolveIndex,
		logger:       logger.With().Str("component", "binance_adapter").Str("exchange", exchange.String()).Logger(),
	}
}

// Validate reports whether sub's kind is one this adapter can serve.
func (a *Adapter) Validate(sub instrument.Subscription) error {
	switch sub.Kind {
	case instrument.PublicTrades, instrument.OrderBooksL1:
		return nil
	default:
		return fmt.Errorf("binance adapter does not support sub kind %s", sub.Kind)
	}
}

// Open dials one combined-stream connection covering every subscription and
// translates incoming frames into streams.Result values.
func (a *Adapter) Open(ctx context.Context, subs []instrument.Subscription) (<-chan streams.Result, error) {
	streamNames := make([]string, 0, len(subs))
	bySubStream := make(map[string]instrument.Subscription, len(subs))
	for _, sub := range subs {
		symbol := a.toSymbol(sub.Instrument)
		name := combinedStreamName(symbol, sub.Kind)
		streamNames = append(streamNames, name)
		bySubStream[name] = sub
	}

	url := a.baseURL() + "?streams=" + strings.Join(streamNames, "/")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, &streams.DataError{Kind: streams.ErrConnectivity, Exchange: a.exchange, Cause: err}
	}

	out := make(chan streams.Result)
	go a.readLoop(ctx, conn, bySubStream, out)
	return out, nil
}

func (a *Adapter) baseURL() string {
	if a.exchange == instrument.BinanceFuturesUsd {
		return futuresBaseURL
	}
	return spotBaseURL
}

func combinedStreamName(symbol string, kind instrument.SubKind) string {
	switch kind {
	case instrument.PublicTrades:
		return symbol + "@trade"
	case instrument.OrderBooksL1:
		return symbol + "@bookTicker"
	default:
		return symbol + "@trade"
	}
}

type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type tradeFrame struct {
	Symbol    string `json:"s"`
	TradeID   int64  `json:"t"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	BuyerMkr  bool   `json:"m"`
	EventTime int64  `json:"E"`
}

type bookTickerFrame struct {
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

func (a *Adapter) readLoop(ctx context.Context, conn *websocket.Conn, bySubStream map[string]instrument.Subscription, out chan<- streams.Result) {
	defer close(out)
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				a.logger.Warn().Err(err).Msg("read error, closing connection")
			}
			return
		}

		var frame combinedFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			a.logger.Warn().Err(err).Msg("failed to parse combined stream envelope")
			continue
		}

		sub, known := bySubStream[frame.Stream]
		if !known {
			continue
		}

		result, ok := a.translate(sub, frame.Data)
		if !ok {
			continue
		}

		select {
		case out <- result:
		case <-ctx.Done():
			return
		}
	}
}

func (a *Adapter) translate(sub instrument.Subscription, data json.RawMessage) (streams.Result, bool) {
	now := time.Now()
	idx := a.resolveIndex(sub.Instrument)

	switch sub.Kind {
	case instrument.PublicTrades:
		var f tradeFrame
		if err := json.Unmarshal(data, &f); err != nil {
			a.logger.Warn().Err(err).Msg("failed to parse trade frame")
			return streams.Result{}, false
		}
		level, err := orderbook.ParseLevel(f.Price, f.Quantity)
		if err != nil {
			a.logger.Warn().Err(err).Msg("failed to parse trade price/quantity")
			return streams.Result{}, false
		}
		side := orderstore.Buy
		if f.BuyerMkr {
			side = orderstore.Sell
		}
		return streams.Ok(streams.MarketEvent{
			TimeExchange: orderbook.ParseExchangeTime(f.EventTime/1000, (f.EventTime%1000)*1_000_000),
			TimeReceived: now,
			Exchange:     a.exchange,
			Instrument:   idx,
			Kind:         streams.PayloadTrade,
			Trade: &streams.PublicTrade{
				ID:     fmt.Sprintf("%d", f.TradeID),
				Price:  level.Price,
				Amount: level.Amount,
				Side:   side,
			},
		}), true

	case instrument.OrderBooksL1:
		var f bookTickerFrame
		if err := json.Unmarshal(data, &f); err != nil {
			a.logger.Warn().Err(err).Msg("failed to parse book ticker frame")
			return streams.Result{}, false
		}
		bid, err1 := orderbook.ParseLevel(f.BidPrice, f.BidQty)
		ask, err2 := orderbook.ParseLevel(f.AskPrice, f.AskQty)
		if err1 != nil || err2 != nil {
			a.logger.Warn().Msg("failed to parse book ticker levels")
			return streams.Result{}, false
		}
		return streams.Ok(streams.MarketEvent{
			TimeExchange: now,
			TimeReceived: now,
			Exchange:     a.exchange,
			Instrument:   idx,
			Kind:         streams.PayloadBookL1,
			BookL1:       &streams.OrderBookL1{BestBid: bid, BestAsk: ask},
		}), true

	default:
		return streams.Result{}, false
	}
}

// Command marketcore is the engine process: it wires the NameIndexer,
// StreamSupervisor, ExecutionManagers and PositionManagers together and runs
// until interrupted. It owns no trading logic itself — that lives in the
// strategy layer this binary would eventually load — only the plumbing
// spec §6 describes as "an external collaborator".
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/koshedu/marketcore/internal/config"
	"github.com/koshedu/marketcore/internal/execution"
	"github.com/koshedu/marketcore/internal/execution/mocktest"
	"github.com/koshedu/marketcore/internal/indexer"
	"github.com/koshedu/marketcore/internal/instrument"
	"github.com/koshedu/marketcore/internal/orderstore"
	"github.com/koshedu/marketcore/internal/position"
	"github.com/koshedu/marketcore/internal/streams"
	"github.com/koshedu/marketcore/internal/streams/binanceadapter"
)

func main() {
	cfgPath := os.Getenv("MARKETCORE_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	logger.Info().Msg("marketcore engine starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	idx, err := loadIndexer(cfg.Indexer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load name indexer")
	}

	resolveIndexFor := func(exchange instrument.ExchangeId) func(instrument.Instrument) instrument.InstrumentIndex {
		return func(i instrument.Instrument) instrument.InstrumentIndex {
			idxValue, err := idx.InstrumentIndexOfInstrument(exchange, i)
			if err != nil {
				return -1
			}
			return idxValue
		}
	}
	adapters := streams.Adapters{
		instrument.BinanceSpot:       binanceadapter.New(instrument.BinanceSpot, binanceSymbol, resolveIndexFor(instrument.BinanceSpot), logger),
		instrument.BinanceFuturesUsd: binanceadapter.New(instrument.BinanceFuturesUsd, binanceSymbol, resolveIndexFor(instrument.BinanceFuturesUsd), logger),
	}

	supervisor := streams.NewSupervisor(adapters, cfg.Reconnect.ToPolicy(), logger)

	subs := subscriptionsFromConfig(cfg.Subscriptions)
	channels, err := supervisor.Init(ctx, [][]instrument.Subscription{subs})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize stream supervisor")
	}
	dyn := streams.NewDynamicStreams(channels)

	posManager := position.New(logger)
	store := orderstore.New(logger)

	execClient := mocktest.New()
	execManager := execution.New(execClient, store, idx, instrument.BinanceSpot, cfg.Execution.RequestTimeout, cfg.Reconnect.ToPolicy(), logger)

	requests := make(chan execution.Request)
	go execManager.Run(ctx, requests)

	for class, ch := range dyn.SelectAll() {
		go consumeMarketData(ctx, logger, idx, class, ch, posManager)
	}

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received, draining in-flight work")
	close(requests)
	time.Sleep(time.Second)
	logger.Info().Msg("marketcore engine stopped")
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", "marketcore").Logger()
}

func loadIndexer(cfg config.IndexerConfig) (*indexer.NameIndexer, error) {
	assets, err := readAssetEntries(cfg.AssetsPath)
	if err != nil {
		return nil, fmt.Errorf("read asset entries: %w", err)
	}
	instruments, err := readInstrumentEntries(cfg.InstrumentsPath)
	if err != nil {
		return nil, fmt.Errorf("read instrument entries: %w", err)
	}
	return indexer.New(assets, instruments)
}

type assetSeed struct {
	Exchange string `json:"exchange"`
	Name     string `json:"name"`
	Index    int    `json:"index"`
}

type instrumentSeed struct {
	Exchange string `json:"exchange"`
	Name     string `json:"name"`
	Index    int    `json:"index"`
	Base     string `json:"base"`
	Quote    string `json:"quote"`
	Kind     string `json:"kind"`
}

func readAssetEntries(path string) ([]indexer.AssetEntry, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seeds []assetSeed
	if err := json.Unmarshal(raw, &seeds); err != nil {
		return nil, err
	}
	out := make([]indexer.AssetEntry, 0, len(seeds))
	for _, s := range seeds {
		out = append(out, indexer.AssetEntry{
			Exchange: exchangeFromString(s.Exchange),
			Name:     instrument.AssetNameExchange(s.Name),
			Index:    instrument.AssetIndex(s.Index),
		})
	}
	return out, nil
}

func readInstrumentEntries(path string) ([]indexer.InstrumentEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seeds []instrumentSeed
	if err := json.Unmarshal(raw, &seeds); err != nil {
		return nil, err
	}
	out := make([]indexer.InstrumentEntry, 0, len(seeds))
	for _, s := range seeds {
		out = append(out, indexer.InstrumentEntry{
			Exchange: exchangeFromString(s.Exchange),
			Name:     instrument.InstrumentNameExchange(s.Name),
			Index:    instrument.InstrumentIndex(s.Index),
			Instrument: instrument.Instrument{
				Base:  s.Base,
				Quote: s.Quote,
				Kind:  instrumentKindFromString(s.Kind),
			},
		})
	}
	return out, nil
}

func instrumentKindFromString(s string) instrument.InstrumentKind {
	switch s {
	case "perpetual":
		return instrument.Perpetual
	case "future":
		return instrument.Future
	case "option":
		return instrument.Option
	default:
		return instrument.Spot
	}
}

func subscriptionsFromConfig(entries []config.SubscriptionConfig) []instrument.Subscription {
	out := make([]instrument.Subscription, 0, len(entries))
	for _, e := range entries {
		out = append(out, instrument.Subscription{
			Exchange:   exchangeFromString(e.Exchange),
			Instrument: instrument.Instrument{Base: e.Base, Quote: e.Quote, Kind: instrument.Spot},
			Kind:       subKindFromString(e.Kind),
		})
	}
	return out
}

func exchangeFromString(s string) instrument.ExchangeId {
	switch s {
	case "binance_spot":
		return instrument.BinanceSpot
	case "binance_futures_usd":
		return instrument.BinanceFuturesUsd
	default:
		return instrument.Unknown
	}
}

func subKindFromString(s string) instrument.SubKind {
	switch s {
	case "order_books_l1":
		return instrument.OrderBooksL1
	case "order_books_l2":
		return instrument.OrderBooksL2
	case "liquidations":
		return instrument.Liquidations
	default:
		return instrument.PublicTrades
	}
}

func binanceSymbol(i instrument.Instrument) string {
	return strings.ToLower(i.Base + i.Quote)
}

func consumeMarketData(ctx context.Context, logger zerolog.Logger, idx *indexer.NameIndexer, class instrument.Class, ch <-chan streams.Item, posManager *position.Manager) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-ch:
			if !ok {
				return
			}
			switch item.Kind {
			case streams.ItemReconnecting:
				logger.Warn().Str("exchange", class.Exchange.String()).Str("sub_kind", class.Kind.String()).Msg("market data reconnecting")
			case streams.ItemReconnected:
				logger.Info().Str("exchange", class.Exchange.String()).Str("sub_kind", class.Kind.String()).Msg("market data reconnected")
			case streams.ItemPayload:
				if item.Result.Err != nil {
					logger.Error().Err(item.Result.Err).Msg("market data error")
					continue
				}
				if item.Result.Event.Instrument < 0 {
					logger.Warn().Str("exchange", class.Exchange.String()).Msg("received event for unindexed instrument, dropping")
					continue
				}
				if _, err := idx.InstrumentOf(item.Result.Event.Instrument); err != nil {
					logger.Warn().Err(err).Msg("instrument index not found in indexer")
				}
			}
		}
	}
}

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quantbridge/tda/internal/adapter"
	"github.com/quantbridge/tda/internal/contracts"
	"github.com/quantbridge/tda/internal/tda"
	"github.com/quantbridge/tda/pkg/logger"
)

var streamFlags struct {
	tickers []string
}

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Stream live quotes to the console",
	Run:   runStream,
}

func init() {
	streamCmd.Flags().StringSliceVar(&streamFlags.tickers, "tickers", nil, "tickers to stream (required)")
}

// consoleAggregator prints streamed ticks. It stands in for the host
// engine's data pipeline.
type consoleAggregator struct {
	logger *logger.Logger
}

func (c *consoleAggregator) Add(tick *contracts.Tick) {
	fields := map[string]interface{}{
		"ticker": tick.Symbol.Ticker,
		"type":   tick.Type,
	}
	if tick.Type == contracts.TickTypeTrade {
		fields["price"] = tick.Price
		fields["size"] = tick.Quantity
	} else {
		fields["bid"] = tick.BidPrice
		fields["ask"] = tick.AskPrice
	}
	c.logger.WithFields(fields).Info("Tick")
}

func (c *consoleAggregator) Update(bar *contracts.TradeBar) {
	c.logger.WithFields(map[string]interface{}{
		"ticker": bar.Symbol.Ticker,
		"close":  bar.Close,
	}).Info("Bar")
}

func (c *consoleAggregator) Remove(symbol contracts.Symbol) {}

func runStream(cmd *cobra.Command, args []string) {
	if len(streamFlags.tickers) == 0 {
		_ = cmd.Usage()
		os.Exit(1)
	}

	a, err := newApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer a.close()

	streamer := tda.NewStreamer(a.client, a.logger)
	brokerage := adapter.NewBrokerage(a.client, streamer, &consoleAggregator{logger: a.logger}, a.logger)

	ctx := context.Background()
	if err := brokerage.Connect(ctx); err != nil {
		a.logger.WithError(err).Fatal("Streamer connection failed")
	}

	symbols := make([]contracts.Symbol, 0, len(streamFlags.tickers))
	for _, ticker := range streamFlags.tickers {
		symbols = append(symbols, contracts.NewEquity(ticker, adapter.MarketUSA))
	}

	if err := brokerage.Subscribe(ctx, symbols); err != nil {
		a.logger.WithError(err).Fatal("Subscription failed")
	}

	a.logger.WithField("tickers", streamFlags.tickers).Info("Streaming, Ctrl-C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	if err := brokerage.Disconnect(); err != nil {
		a.logger.WithError(err).Warn("Disconnect failed")
	}
}

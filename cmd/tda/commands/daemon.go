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
	"github.com/quantbridge/tda/internal/scheduler"
	"github.com/quantbridge/tda/internal/tda"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the adapter with streaming and scheduled token refresh",
	Run:   runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) {
	a, err := newApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer a.close()

	ctx := context.Background()

	keeper := scheduler.NewTokenKeeper(a.client, a.logger)
	if err := keeper.Start(ctx); err != nil {
		a.logger.WithError(err).Fatal("Token keeper failed to start")
	}
	defer keeper.Stop()

	streamer := tda.NewStreamer(a.client, a.logger)
	brokerage := adapter.NewBrokerage(a.client, streamer, &consoleAggregator{logger: a.logger}, a.logger)

	brokerage.OnMessage(func(msg contracts.BrokerageMessage) {
		a.logger.WithFields(map[string]interface{}{
			"type": msg.Type,
			"code": msg.Code,
		}).Warn(msg.Message)
	})
	brokerage.OnOrderEvent(func(event contracts.OrderEvent) {
		a.logger.WithFields(map[string]interface{}{
			"order_id":  event.OrderID,
			"broker_id": event.BrokerID,
			"status":    event.Status,
		}).Info("Order event")
	})

	if err := brokerage.Connect(ctx); err != nil {
		a.logger.WithError(err).Fatal("Streamer connection failed")
	}

	a.logger.WithField("account", a.cfg.TDA.AccountID).Info("Daemon running, Ctrl-C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	if err := brokerage.Disconnect(); err != nil {
		a.logger.WithError(err).Warn("Disconnect failed")
	}
}

package commands

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantbridge/tda/internal/adapter"
	"github.com/quantbridge/tda/internal/contracts"
	"github.com/quantbridge/tda/internal/store"
)

var downloadFlags struct {
	tickers      []string
	resolution   string
	fromDate     string
	toDate       string
	securityType string
	market       string
	outputDir    string
	toDatabase   bool
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download historical bars to CSV and optionally PostgreSQL",
	Run:   runDownload,
}

func init() {
	downloadCmd.Flags().StringSliceVar(&downloadFlags.tickers, "tickers", nil, "tickers to download (required)")
	downloadCmd.Flags().StringVar(&downloadFlags.resolution, "resolution", "", "bar resolution: minute, hour, daily (required)")
	downloadCmd.Flags().StringVar(&downloadFlags.fromDate, "from-date", "", "start date YYYY-MM-DD (required)")
	downloadCmd.Flags().StringVar(&downloadFlags.toDate, "to-date", "", "end date YYYY-MM-DD (default today)")
	downloadCmd.Flags().StringVar(&downloadFlags.securityType, "security-type", "equity", "security type (equity only)")
	downloadCmd.Flags().StringVar(&downloadFlags.market, "market", adapter.MarketUSA, "market tag")
	downloadCmd.Flags().StringVar(&downloadFlags.outputDir, "output", "data", "CSV output directory")
	downloadCmd.Flags().BoolVar(&downloadFlags.toDatabase, "to-database", false, "also write bars to DATABASE_URL")
}

func runDownload(cmd *cobra.Command, args []string) {
	if len(downloadFlags.tickers) == 0 || downloadFlags.resolution == "" || downloadFlags.fromDate == "" {
		_ = cmd.Usage()
		os.Exit(1)
	}

	resolution, ok := contracts.ParseResolution(downloadFlags.resolution)
	if !ok || resolution < contracts.ResolutionMinute {
		fmt.Fprintf(os.Stderr, "unsupported resolution %q\n", downloadFlags.resolution)
		_ = cmd.Usage()
		os.Exit(1)
	}

	if downloadFlags.securityType != "equity" {
		fmt.Fprintf(os.Stderr, "unsupported security type %q\n", downloadFlags.securityType)
		os.Exit(1)
	}

	start, err := time.Parse("2006-01-02", downloadFlags.fromDate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid from-date: %v\n", err)
		os.Exit(1)
	}

	end := time.Now().UTC()
	if downloadFlags.toDate != "" {
		end, err = time.Parse("2006-01-02", downloadFlags.toDate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid to-date: %v\n", err)
			os.Exit(1)
		}
		end = end.AddDate(0, 0, 1) // inclusive end date
	}

	a, err := newApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer a.close()

	ctx := context.Background()
	history := adapter.NewHistoryAdapter(a.client, adapter.NewSymbolMapper(), a.logger)

	var barStore *store.BarStore
	if downloadFlags.toDatabase {
		if a.cfg.DatabaseURL == "" {
			a.logger.Fatal("DATABASE_URL is required with --to-database")
		}
		barStore, err = store.NewBarStore(ctx, a.cfg.DatabaseURL, a.logger)
		if err != nil {
			a.logger.WithError(err).Fatal("Database connection failed")
		}
		defer barStore.Close()

		if err := barStore.EnsureSchema(ctx); err != nil {
			a.logger.WithError(err).Fatal("Schema setup failed")
		}
	}

	if err := os.MkdirAll(downloadFlags.outputDir, 0o755); err != nil {
		a.logger.WithError(err).Fatal("Cannot create output directory")
	}

	for _, ticker := range downloadFlags.tickers {
		symbol := contracts.NewEquity(ticker, downloadFlags.market)

		bars, err := history.GetHistory(ctx, contracts.HistoryRequest{
			Symbol:       symbol,
			Resolution:   resolution,
			StartTimeUTC: start,
			EndTimeUTC:   end,
			TickType:     contracts.TickTypeTrade,
		})
		if err != nil {
			a.logger.WithError(err).WithField("ticker", ticker).Error("Download failed")
			continue
		}
		if len(bars) == 0 {
			a.logger.WithField("ticker", ticker).Warn("No bars returned")
			continue
		}

		path := filepath.Join(downloadFlags.outputDir,
			fmt.Sprintf("%s_%s.csv", symbol.Ticker, resolution.String()))
		if err := writeBarsCSV(path, bars); err != nil {
			a.logger.WithError(err).WithField("ticker", ticker).Error("CSV write failed")
			continue
		}

		if barStore != nil {
			if err := barStore.SaveBars(ctx, resolution, bars); err != nil {
				a.logger.WithError(err).WithField("ticker", ticker).Error("Database write failed")
			}
		}

		a.logger.WithFields(map[string]interface{}{
			"ticker": symbol.Ticker,
			"bars":   len(bars),
			"file":   path,
		}).Info("Download complete")
	}
}

func writeBarsCSV(path string, bars []contracts.TradeBar) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}

	for _, bar := range bars {
		record := []string{
			bar.Time.Format(time.RFC3339),
			strconv.FormatFloat(bar.Open, 'f', -1, 64),
			strconv.FormatFloat(bar.High, 'f', -1, 64),
			strconv.FormatFloat(bar.Low, 'f', -1, 64),
			strconv.FormatFloat(bar.Close, 'f', -1, 64),
			strconv.FormatInt(bar.Volume, 10),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	return w.Error()
}

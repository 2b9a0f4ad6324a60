package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/vitos/wyckoff_backtest/internal/domain"
	"github.com/vitos/wyckoff_backtest/internal/infrastructure/logger"
	"github.com/vitos/wyckoff_backtest/internal/infrastructure/marketdata"
	"github.com/vitos/wyckoff_backtest/internal/usecase"
)

// runcheck runs one simulation synchronously over a CSV bar file and a JSON
// signal file and prints the resulting metrics. Meant for quick strategy
// checks without the server.
func main() {
	var (
		barsPath    = flag.String("bars", "", "path to CSV bar file (time,open,high,low,close,volume)")
		signalsPath = flag.String("signals", "", "path to JSON signal file")
		symbol      = flag.String("symbol", "UNKNOWN", "symbol label for the run")
		timeframe   = flag.String("timeframe", "1h", "bar timeframe: 1m 5m 15m 1h 4h 1d")
		equity      = flag.Float64("equity", 100000, "initial equity")
		logLevel    = flag.String("log-level", "warn", "log level")
	)
	flag.Parse()

	if *barsPath == "" {
		fmt.Fprintln(os.Stderr, "runcheck: -bars is required")
		flag.Usage()
		os.Exit(2)
	}

	log, err := logger.NewLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	bars, err := marketdata.LoadBarsCSV(*barsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load bars: %v\n", err)
		os.Exit(1)
	}

	var signals []domain.Signal
	if *signalsPath != "" {
		data, err := os.ReadFile(*signalsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read signals: %v\n", err)
			os.Exit(1)
		}
		if err := json.Unmarshal(data, &signals); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to parse signals: %v\n", err)
			os.Exit(1)
		}
	}

	cfg := domain.RunConfig{
		Symbol:        *symbol,
		Timeframe:     *timeframe,
		InitialEquity: *equity,
	}
	cfg.ApplyDefaults()

	engine := usecase.NewEngine(log)
	res, err := engine.Run(context.Background(), "runcheck", cfg, bars, signals, usecase.SimSinks{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Simulation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("bars: %d  signals: %d  orders: %d  expired: %d\n",
		res.BarsProcessed, len(signals), res.OrdersPlaced, res.OrdersExpired)
	fmt.Printf("trades: %d  rejections: %d\n", len(res.Trades), len(res.Rejections))

	out, err := json.MarshalIndent(res.Metrics, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode metrics: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"ratescraper/internal/aggregate"
	"ratescraper/internal/app"
	"ratescraper/internal/config"
	"ratescraper/internal/provider"
)

func main() {
	_ = godotenv.Load()

	var (
		configPath string
		region     string
		strategy   string
		asJSON     bool
		verbose    bool
	)
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json or config.yaml (optional)")
	flag.StringVar(&region, "region", "", "region code, e.g. AR or BR (overrides config)")
	flag.StringVar(&strategy, "strategy", "", "auto, browser or http (overrides config)")
	flag.BoolVar(&asJSON, "json", false, "print the batch as JSON")
	flag.BoolVar(&verbose, "v", false, "log pipeline activity to stderr")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if region != "" {
		cfg.Scrape.Region = region
	}
	if strategy != "" {
		cfg.Scrape.Strategy = strategy
	}
	// One-shot runs never need durable history.
	cfg.Store.Driver = config.DriverMemory
	cfg.Kafka.Brokers = nil
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logOut := io.Discard
	if verbose {
		logOut = os.Stderr
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Scrape.BatchTimeout()+5*time.Second)
	defer cancel()

	a, err := app.New(ctx, cfg, app.NewLogger(cfg.Log, logOut))
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer a.Close()

	snap := a.Cache.EnsureFresh(ctx, 0)
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		_ = enc.Encode(snap.Batch)
		return
	}
	printBatch(os.Stdout, cfg.Scrape.Region, snap.Batch)
}

func printBatch(w io.Writer, region string, b provider.Batch) {
	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(w, "%s region=%s origin=%s mechanism=%s\n", bold("quotes"), region, b.Origin, b.Mechanism)
	for _, o := range b.Outcomes {
		name := o.Name
		if name == "" {
			name = o.Source
		}
		if o.OK && o.Data != nil {
			fmt.Fprintf(w, "  %s %-10s buy=%-12.4f sell=%-12.4f %s\n", ok("OK "), name, o.Data.BuyPrice, o.Data.SellPrice, dim(o.Source))
			continue
		}
		fmt.Fprintf(w, "  %s %-10s %s %s\n", bad("ERR"), name, o.Error, dim(o.Source))
	}

	avg, err := aggregate.Mean(aggregate.Successful(b.Outcomes))
	switch {
	case errors.Is(err, aggregate.ErrNoQuotes):
		fmt.Fprintln(w, bad("no successful quotes"))
	case err != nil:
		fmt.Fprintln(w, bad(err.Error()))
	default:
		fmt.Fprintf(w, "%s buy=%.6f sell=%.6f (%d sources)\n", bold("average"), avg.AverageBuyPrice, avg.AverageSellPrice, avg.Count)
	}
	if b.Origin == provider.OriginFallback {
		fmt.Fprintln(w, bad("warning: synthetic data, no acquisition mechanism was available"))
	}
}

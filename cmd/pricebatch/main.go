// Package main runs one price batch from the command line.
//
//	pricebatch -in products.xlsx -out results.xlsx
//
// Progress lines go to stderr and a summary table to stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fairyhunter13/price-batch-service/internal/batch"
	"github.com/fairyhunter13/price-batch-service/internal/config"
	"github.com/fairyhunter13/price-batch-service/internal/obs"
	"github.com/fairyhunter13/price-batch-service/internal/progress"
	"github.com/fairyhunter13/price-batch-service/internal/report"
	"github.com/fairyhunter13/price-batch-service/internal/sheet"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pricebatch:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	in := flag.String("in", "", "input workbook; product names in the first column")
	out := flag.String("out", cfg.OutputFilename, "output workbook")
	modelID := flag.String("model", cfg.Model, "model identifier")
	prompt := flag.String("prompt", cfg.SystemPrompt, "system instructions")
	concurrency := flag.Int("concurrency", cfg.ItemConcurrency, "parallel lookups")
	quiet := flag.Bool("quiet", false, "skip the summary table")
	flag.Parse()

	obs.InitLoggerWriter(os.Stderr, "warn")
	if *in == "" {
		flag.Usage()
		return errors.New("-in is required")
	}
	cfg.ItemConcurrency = *concurrency
	if err := cfg.Validate(); err != nil {
		return err
	}

	items, err := sheet.FileSource{Path: *in}.Items()
	if err != nil {
		return fmt.Errorf("%w: %w", batch.ErrSourceUnreadable, err)
	}
	w, res, err := batch.NewWorker(cfg)
	if err != nil {
		return err
	}
	defer res.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := progress.NewBus("cli", cfg.BusBuffer, 0)
	sub := bus.Subscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range sub.C() {
			fmt.Fprintln(os.Stderr, ev.String())
		}
	}()

	art, err := w.Run(ctx, batch.Request{
		BatchID:      "cli",
		Filename:     filepath.Join(filepath.Dir(*out), sheet.EnsureExt(*out, cfg.OutputFilename)),
		Instructions: *prompt,
		Model:        *modelID,
		Items:        items,
	}, bus)
	bus.Close()
	<-printed
	if err != nil {
		return err
	}

	if err := os.WriteFile(art.Filename, art.Data, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	fmt.Fprintf(os.Stderr, "wrote %d rows to %s\n", len(art.Records), art.Filename)
	if *quiet {
		return nil
	}
	return report.Write(os.Stdout, art.Table())
}

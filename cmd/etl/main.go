package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/termveil/termveil/internal/config"
	"github.com/termveil/termveil/internal/etl"
	"github.com/termveil/termveil/internal/logger"
	"github.com/termveil/termveil/internal/rules"
)

func main() {
	var (
		configPath   = flag.String("config", "", "Configuration file path")
		inputFile    = flag.String("input", "", "Input dataset file (CSV, Parquet, or JSON)")
		outputFile   = flag.String("output", "", "Output rules file (defaults to the configured rules file)")
		batchSize    = flag.Int("batch-size", 1000, "Batch size for processing")
		validateOnly = flag.Bool("validate-only", false, "Only validate the dataset, don't write anything")
		dryRun       = flag.Bool("dry-run", false, "Process the dataset but skip writing the merged rules")
		fresh        = flag.Bool("fresh", false, "Ignore the existing rules file and build the output from the dataset alone")
	)
	flag.Parse()

	if *inputFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input rules.csv\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input rules.parquet --output configs/rules.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input rules.json --validate-only\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	output := *outputFile
	if output == "" {
		output = cfg.Workspace.RulesFile
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling import")
		cancel()
	}()

	var existing *rules.RuleSet
	if !*fresh {
		store, err := rules.NewStore(cfg.Workspace.RulesFile, log.WithComponent("rules"))
		if err != nil {
			if !os.IsNotExist(unwrapConfigError(err)) {
				log.Fatal("Failed to load existing rules", zap.Error(err))
			}
			log.Info("No existing rules file, starting fresh",
				zap.String("path", cfg.Workspace.RulesFile))
		} else {
			existing = store.RuleSet()
		}
	}

	pipeline := etl.NewPipeline(existing, &etl.Config{
		BatchSize:      *batchSize,
		SkipDuplicates: true,
		ValidateOnly:   *validateOnly,
		DryRun:         *dryRun,
		ProgressReport: 1000,
	}, log.WithComponent("etl").Logger)

	result, err := pipeline.ProcessFile(ctx, *inputFile, output)
	if err != nil {
		log.Fatal("Import failed", zap.Error(err))
	}

	log.Info("Import finished",
		zap.Int64("total", result.TotalRecords),
		zap.Int64("accepted", result.ProcessedOK),
		zap.Int64("failed", result.ProcessedFailed),
		zap.Int64("duplicates", result.Duplicates),
		zap.Int64("merged", result.Merged))

	if result.ProcessedFailed > 0 {
		for _, msg := range result.Errors {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(1)
	}
}

// unwrapConfigError digs out the underlying os error from a rules load
// failure so a missing file can be told apart from a malformed one.
func unwrapConfigError(err error) error {
	var cfgErr *rules.ConfigError
	if errors.As(err, &cfgErr) && cfgErr.Err != nil {
		return cfgErr.Err
	}
	return err
}

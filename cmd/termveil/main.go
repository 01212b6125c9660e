package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/termveil/termveil/internal/audit"
	"github.com/termveil/termveil/internal/cache"
	"github.com/termveil/termveil/internal/config"
	"github.com/termveil/termveil/internal/engine"
	"github.com/termveil/termveil/internal/history"
	"github.com/termveil/termveil/internal/logger"
	"github.com/termveil/termveil/internal/rules"
	"github.com/termveil/termveil/internal/server"
	"go.uber.org/zap"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

const usage = `Usage: termveil [options] <command>

Commands:
  encode       Replace sensitive terms in the work file with aliases
  decode       Replace aliases in the work file with the original terms
  check        Report whether the work file is free of sensitive terms
  find-terms   List sensitive terms in the work file with positions
  rules        List the loaded substitution rules
  validate     Check the rule mapping for conflicts
  stats        Show substitution counts for the last (or a given) operation
  history      List recorded operations
  undo         Restore the work file from the most recent backup
  completions  Suggest aliases for a prefix
  serve        Run the HTTP API server

Options:
`

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		workFile    = flag.String("file", "", "Work file to operate on (overrides configuration)")
		preview     = flag.Bool("preview", false, "Compute the result without writing or recording it")
		category    = flag.String("category", "", "Category filter for the rules command")
		prefix      = flag.String("prefix", "", "Prefix for the completions command")
		operationID = flag.String("operation", "", "Operation ID for the stats command")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("termveil %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	command := flag.Arg(0)
	if command == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *workFile != "" {
		cfg.Workspace.WorkFile = *workFile
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	a, err := buildApp(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize", zap.Error(err))
	}
	defer a.cleanup()

	if err := a.run(command, runOptions{
		preview:     *preview,
		category:    *category,
		prefix:      *prefix,
		operationID: *operationID,
	}); err != nil {
		log.Fatal("Command failed", zap.String("command", command), zap.Error(err))
	}
}

type runOptions struct {
	preview     bool
	category    string
	prefix      string
	operationID string
}

type app struct {
	cfg    *config.Config
	log    *logger.Logger
	engine *engine.Engine
	cache  *cache.ResultCache
	audit  *audit.Store
}

func buildApp(cfg *config.Config, log *logger.Logger) (*app, error) {
	ruleStore, err := rules.NewStore(cfg.Workspace.RulesFile, log.WithComponent("rules"))
	if err != nil {
		return nil, err
	}

	historyStore, err := history.NewStore(cfg.Workspace.BackupDir, cfg.Workspace.HistoryFile, log.WithComponent("history"))
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}

	if cfg.Cache.Enabled {
		resultCache, err := cache.NewResultCache(&cache.Config{
			RedisURL:       cfg.Cache.RedisURL,
			KeyPrefix:      cfg.Cache.KeyPrefix,
			DefaultTTL:     cfg.Cache.DefaultTTL,
			MaxConnections: cfg.Cache.MaxConnections,
			MinIdleConns:   cfg.Cache.MinIdleConns,
		}, log.WithComponent("cache").Logger)
		if err != nil {
			// The engine works without a cache; degrade instead of failing.
			log.Warn("Result cache unavailable, continuing without it", zap.Error(err))
		} else {
			a.cache = resultCache
		}
	}

	if cfg.Audit.Enabled {
		auditStore, err := audit.NewStore(&audit.Config{
			DatabaseURL:     cfg.Audit.DatabaseURL,
			MaxOpenConns:    cfg.Audit.MaxOpenConns,
			MaxIdleConns:    cfg.Audit.MaxIdleConns,
			ConnMaxLifetime: cfg.Audit.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Audit.ConnMaxIdleTime,
		}, log.WithComponent("audit").Logger)
		if err != nil {
			return nil, fmt.Errorf("audit sink configured but unavailable: %w", err)
		}
		a.audit = auditStore
	}

	a.engine = engine.New(ruleStore, historyStore, log.WithComponent("engine"), engine.Options{
		Cache: a.cache,
		Audit: a.audit,
	})

	return a, nil
}

func (a *app) cleanup() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.audit != nil {
		a.audit.Close()
	}
}

func (a *app) run(command string, opts runOptions) error {
	ctx := context.Background()

	switch command {
	case "encode", "decode":
		return a.runTransform(ctx, command, opts.preview)
	case "check":
		text, err := a.readWorkFile()
		if err != nil {
			return err
		}
		return printJSON(a.engine.Check(text))
	case "find-terms":
		text, err := a.readWorkFile()
		if err != nil {
			return err
		}
		return printJSON(a.engine.FindTerms(text))
	case "rules":
		return printJSON(a.engine.Rules(opts.category))
	case "validate":
		conflicts := a.engine.Validate()
		if err := printJSON(map[string]interface{}{
			"valid":     len(conflicts) == 0,
			"conflicts": conflictStrings(conflicts),
		}); err != nil {
			return err
		}
		if len(conflicts) > 0 {
			os.Exit(1)
		}
		return nil
	case "stats":
		summary, err := a.engine.Stats(opts.operationID)
		if err != nil {
			return err
		}
		report := map[string]interface{}{"substitutions": summary}
		// Workspace counts only make sense against the work file itself.
		if text, err := a.readWorkFile(); err == nil {
			report["workspace"] = a.engine.Workspace(text)
		}
		return printJSON(report)
	case "history":
		return printJSON(a.engine.History())
	case "undo":
		return a.runUndo()
	case "completions":
		return printJSON(a.engine.Completions(opts.prefix))
	case "serve":
		return a.runServe()
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

// runTransform rewrites the work file in place. With -preview the result
// goes to stdout and nothing is written or recorded.
func (a *app) runTransform(ctx context.Context, command string, preview bool) error {
	text, err := a.readWorkFile()
	if err != nil {
		return err
	}

	var result *engine.Result
	if command == "decode" {
		result, err = a.engine.Decode(ctx, text, preview)
	} else {
		result, err = a.engine.Encode(ctx, text, preview)
	}
	if err != nil {
		return err
	}

	if preview {
		fmt.Print(result.Output)
		return nil
	}

	if err := a.writeWorkFile(result.Output); err != nil {
		return err
	}

	return printJSON(map[string]interface{}{
		"operation": result.Operation,
		"summary":   result.Summary,
	})
}

func (a *app) runUndo() error {
	restored, op, err := a.engine.Undo()
	if err != nil {
		if errors.Is(err, history.ErrNoHistory) {
			fmt.Fprintln(os.Stderr, "Nothing to undo")
			os.Exit(1)
		}
		return err
	}

	if err := a.writeWorkFile(restored); err != nil {
		return err
	}

	return printJSON(map[string]interface{}{
		"operation": op,
		"restored":  true,
	})
}

// runServe runs the HTTP API with graceful shutdown. Configuration file
// changes trigger a rules reload so a long-running server follows edits.
func (a *app) runServe() error {
	srv := server.New(a.cfg, a.engine, a.log)
	server.Version = version

	config.Watch(a.cfg, func(*config.Config) {
		if count, err := a.engine.Reload(); err != nil {
			a.log.Warn("Rules reload after config change failed", zap.Error(err))
		} else {
			a.log.Info("Rules reloaded after config change", zap.Int("rules", count))
		}
	})

	stopWatch, err := a.watchRulesFile()
	if err != nil {
		a.log.Warn("Rules file watch unavailable", zap.Error(err))
	} else {
		defer stopWatch()
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return err
	case sig := <-shutdown:
		a.log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server gracefully: %w", err)
		}

		a.log.Info("Server shutdown complete")
		return nil
	}
}

// watchRulesFile reloads the rules when the rules file changes on disk,
// so a long-running server follows edits without a restart.
func (a *app) watchRulesFile() (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(a.cfg.Workspace.RulesFile); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if count, err := a.engine.Reload(); err != nil {
					a.log.Warn("Rules reload failed, keeping previous rules", zap.Error(err))
				} else {
					a.log.Info("Rules file changed, reloaded", zap.Int("rules", count))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				a.log.Warn("Rules file watch error", zap.Error(err))
			}
		}
	}()

	return func() { watcher.Close() }, nil
}

// readWorkFile reads the configured work file, or stdin when the path
// is "-".
func (a *app) readWorkFile() (string, error) {
	path := a.cfg.Workspace.WorkFile
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read work file %s: %w", path, err)
	}
	return string(data), nil
}

func (a *app) writeWorkFile(text string) error {
	path := a.cfg.Workspace.WorkFile
	if path == "-" {
		fmt.Print(text)
		return nil
	}

	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write work file %s: %w", path, err)
	}
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func conflictStrings(conflicts []rules.Conflict) []string {
	out := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, c.String())
	}
	return out
}

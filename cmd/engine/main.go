package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/klaimedis/engine/internal/cache"
	"github.com/klaimedis/engine/internal/config"
	"github.com/klaimedis/engine/internal/database"
	"github.com/klaimedis/engine/internal/domain"
	"github.com/klaimedis/engine/internal/reference"
	"github.com/klaimedis/engine/internal/service"
	"github.com/klaimedis/engine/pkg/external"
)

const usage = `Usage: engine <command> [arguments]

Commands:
  resolve <domain> <term>      resolve a free-text term to a canonical code
  browse <query>               browse head-code groups matching a query
  details <head>               list the subcodes under a head group
  analyze                      analyze a claim read as JSON from stdin
  migrate [up|down]            run reference schema migrations
`

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := config.NewLogger(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	if flag.Arg(0) == "migrate" {
		runMigrations(cfg, configManager, flag.Arg(1), logger)
		return
	}

	engine, err := buildEngine(ctx, cfg, configManager, logger)
	if err != nil {
		logger.WithError(err).Fatal("Engine startup failed")
	}

	if err := runCommand(ctx, engine, flag.Args()); err != nil {
		logger.WithError(err).Fatal("Command failed")
	}
}

// engine holds the wired components behind the CLI commands.
type engine struct {
	resolver *service.TermResolver
	browser  *service.HierarchyBrowser
	analyzer *service.ClaimAnalyzer
}

// buildEngine loads the reference data and wires the full service stack.
// A reference load failure is fatal: the engine cannot answer anything
// without its code tables.
func buildEngine(ctx context.Context, cfg *config.Config, manager *config.Manager, logger *logrus.Logger) (*engine, error) {
	var source reference.Source
	switch cfg.Reference.Backend {
	case "postgres":
		db, err := database.NewConnection(ctx, database.Config{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			Database:    cfg.Database.Database,
			Username:    cfg.Database.Username,
			Password:    cfg.Database.Password,
			SSLMode:     cfg.Database.SSLMode,
			MaxConns:    int32(cfg.Database.MaxOpenConns),
			MinConns:    int32(cfg.Database.MinIdleConns),
			MaxConnLife: cfg.Database.ConnMaxLifetime,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to reference database: %w", err)
		}
		source = reference.NewPostgresSource(db.Pool, logger)
	default:
		sqliteSource, err := reference.NewSQLiteSource(cfg.Reference.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening reference database: %w", err)
		}
		source = sqliteSource
	}

	dataset, err := source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading reference data: %w", err)
	}
	store, err := reference.NewStore(dataset, logger)
	if err != nil {
		return nil, err
	}

	var provider external.Provider
	if cfg.Provider.Enabled {
		client := external.NewClient(external.ClientConfig{
			BaseURL:   cfg.Provider.BaseURL,
			APIKey:    cfg.Provider.APIKey,
			Timeout:   cfg.Provider.Timeout,
			RateLimit: rate.Limit(cfg.Provider.RateLimit),
		}, logger)
		provider = external.NewResilientProvider(client, logger)
	}

	cacheConfig := cache.Config{
		Capacity: cfg.Cache.Capacity,
		TTL:      cfg.Cache.TTL,
		RedisTTL: cfg.Cache.RedisTTL,
	}
	if cfg.Cache.RedisEnabled {
		opts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis URL: %w", err)
		}
		cacheConfig.RedisClient = redis.NewClient(opts)
	}
	analysisCache, err := cache.New(cacheConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("building analysis cache: %w", err)
	}

	resolver := service.NewTermResolver(store, provider, service.ResolverConfig{
		SimilarityThreshold: cfg.Resolver.SimilarityThreshold,
		ProviderTimeout:     cfg.Resolver.ProviderTimeout,
	}, logger)
	browser := service.NewHierarchyBrowser(store, logger)
	validator := service.NewValidator(store, logger)
	batch := service.NewBatchCoordinator(store, provider, service.BatchConfig{
		ProviderTimeout: cfg.Analyzer.BatchTimeout,
	}, logger)
	analyzer := service.NewClaimAnalyzer(resolver, validator, batch, analysisCache, service.AnalyzerConfig{
		Concurrency: cfg.Analyzer.Concurrency,
	}, logger)

	return &engine{resolver: resolver, browser: browser, analyzer: analyzer}, nil
}

func runCommand(ctx context.Context, e *engine, args []string) error {
	switch args[0] {
	case "resolve":
		if len(args) < 3 {
			return fmt.Errorf("usage: engine resolve <domain> <term>")
		}
		tag := domain.DomainTag(args[1])
		result, err := e.resolver.Resolve(ctx, strings.Join(args[2:], " "), tag)
		if err != nil {
			return err
		}
		return printJSON(result)
	case "browse":
		if len(args) < 2 {
			return fmt.Errorf("usage: engine browse <query>")
		}
		return printJSON(e.browser.BrowseCategories(strings.Join(args[1:], " ")))
	case "details":
		if len(args) < 2 {
			return fmt.Errorf("usage: engine details <head>")
		}
		return printJSON(e.browser.BrowseDetails(args[1]))
	case "analyze":
		var input domain.ClaimInput
		if err := json.NewDecoder(os.Stdin).Decode(&input); err != nil {
			return fmt.Errorf("decoding claim input: %w", err)
		}
		analysis, err := e.analyzer.AnalyzeClaim(ctx, input)
		if err != nil {
			return err
		}
		return printJSON(analysis)
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func runMigrations(cfg *config.Config, manager *config.Manager, direction string, logger *logrus.Logger) {
	runner, err := database.NewMigrationRunner(manager.GetDatabaseConnectionString(), cfg.Database.MigrationsPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Could not create migration runner")
	}
	defer runner.Close()

	start := time.Now()
	switch direction {
	case "down":
		err = runner.Down()
	default:
		err = runner.Up()
	}
	if err != nil {
		logger.WithError(err).Fatal("Migration failed")
	}
	logger.WithField("duration", time.Since(start).String()).Info("Migrations complete")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Package main is the Mitsuke CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mitsuke/internal/cli"
	"github.com/hyperjump/mitsuke/internal/config"
	"github.com/hyperjump/mitsuke/internal/embedding"
	"github.com/hyperjump/mitsuke/internal/history"
	"github.com/hyperjump/mitsuke/internal/indexer"
	"github.com/hyperjump/mitsuke/internal/keyword"
	"github.com/hyperjump/mitsuke/internal/models"
	"github.com/hyperjump/mitsuke/internal/search"
	"github.com/hyperjump/mitsuke/internal/server"
	"github.com/hyperjump/mitsuke/internal/store"
	"github.com/hyperjump/mitsuke/internal/watcher"
	"github.com/hyperjump/mitsuke/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/mitsuke/config.yaml"

// loadConfig loads config from path. When path is the default, it first
// looks for config.yaml in the current directory, so running from the
// project dir picks up the project's config.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "tags":
		runTags()
	case "similar":
		runSimilar()
	case "index":
		runIndex()
	case "cleanup":
		runCleanup()
	case "status":
		runStatus()
	case "backup":
		runBackup()
	case "restore":
		runRestore()
	case "version", "--version", "-v":
		fmt.Printf("mitsuke version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// Components bundles everything a command needs.
type Components struct {
	Store    store.Store
	Embedder embedding.Embedder
	Keyword  keyword.Index
	History  *history.Store
	Engine   *search.Engine
	Indexer  *indexer.Indexer
}

// Close releases component resources in reverse dependency order.
func (c *Components) Close() {
	if c.Engine != nil {
		_ = c.Engine.Close()
	} else if c.History != nil {
		_ = c.History.Close()
	}
	if c.Keyword != nil {
		_ = c.Keyword.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	st := store.NewFileStore(cfg.Storage.RecordsPath,
		store.WithLogger(logger),
		store.WithExtensions(cfg.Images.Extensions))

	var embedder embedding.Embedder
	if cfg.Embedding.Provider == "mock" {
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	} else {
		clipEmbedder, err := embedding.NewClipEmbedder(
			cfg.Embedding.TextModelPath,
			cfg.Embedding.ImageModelPath,
			cfg.Embedding.VocabPath,
			cfg.Embedding.Dimensions,
			cfg.Embedding.MaxTokens,
			cfg.Embedding.CacheSize,
		)
		if err != nil {
			logger.Warn("CLIP embedder unavailable, using mock embedder", zap.Error(err))
			embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
		} else {
			embedder = clipEmbedder
		}
	}

	keywordIndex, err := keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	var hist *history.Store
	if cfg.Storage.HistoryPath != "" {
		hist, err = history.NewStore(cfg.Storage.HistoryPath)
		if err != nil {
			logger.Warn("query history disabled", zap.Error(err))
			hist = nil
		}
	}

	engineOpts := []search.EngineOption{search.WithKeywordIndex(keywordIndex)}
	if hist != nil {
		engineOpts = append(engineOpts, search.WithHistory(hist))
	}
	if debug {
		engineOpts = append(engineOpts, search.WithLogger(logger))
	}
	engine := search.NewEngine(st, embedder, &cfg.Search, engineOpts...)

	idxOpts := []indexer.Option{indexer.WithKeywordIndex(keywordIndex)}
	if debug {
		idxOpts = append(idxOpts, indexer.WithLogger(logger))
	}
	idx := indexer.New(st, embedder, &cfg.Images, idxOpts...)

	return &Components{
		Store:    st,
		Embedder: embedder,
		Keyword:  keywordIndex,
		History:  hist,
		Engine:   engine,
		Indexer:  idx,
	}, nil
}

func setup(args []string, extraFlags func(*flag.FlagSet)) (*config.Config, *zap.Logger, *Components, *flag.FlagSet) {
	fs := flag.NewFlagSet(args[0], flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	if extraFlags != nil {
		extraFlags(fs)
	}
	_ = fs.Parse(reorderArgs(args[1:]))

	cfg, resolvedPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolvedPath))

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, logger, components, fs
}

func runServer() {
	cfg, logger, components, _ := setup(os.Args[1:], nil)
	defer logger.Sync()
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var w *watcher.Watcher
	if cfg.Images.Watch {
		idx := components.Indexer
		w = watcher.New(cfg.Images.Directory, cfg.Images.Extensions,
			func(path string) {
				if err := idx.IndexOne(ctx, path); err != nil {
					logger.Warn("failed to index image", zap.String("path", path), zap.Error(err))
					return
				}
				components.Engine.ClearCache()
			},
			func(path string) {
				if err := idx.Remove(ctx, path); err != nil {
					logger.Warn("failed to remove image", zap.String("path", path), zap.Error(err))
					return
				}
				components.Engine.ClearCache()
			},
			watcher.WithLogger(logger))
		if err := w.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	srv := server.NewServer(components.Engine, components.Indexer, components.History, &cfg.Server, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		logger.Fatal("Server stopped", zap.Error(err))
	case sig := <-sigCh:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", zap.Error(err))
		}
	}
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	serverURL := fs.String("server", "", "server URL; when set, search via the HTTP API instead of in-process")
	maxResults := fs.Int("max", 0, "maximum results (0 = config default)")
	minSimilarity := fs.Float64("min-similarity", 0, "minimum cosine similarity in [0, 1]")
	strategy := fs.String("strategy", "", "ranking strategy: confidence, similarity, or hybrid")
	diversity := fs.Bool("diversity", false, "deduplicate results with similar tag sets")
	outputJSON := fs.Bool("json", false, "output JSON")
	useKeyword := fs.Bool("keyword", false, "use the keyword index instead of embeddings")
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	queryText := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if queryText == "" {
		fmt.Println("Usage: mitsuke search [flags] <query>")
		os.Exit(1)
	}
	query := &models.SearchQuery{
		Text:          queryText,
		MaxResults:    *maxResults,
		MinSimilarity: *minSimilarity,
		Strategy:      models.RankingStrategy(*strategy),
		Diversity:     *diversity,
	}

	// The HTTP path avoids opening the bleve index a running server
	// already holds locked.
	if *serverURL != "" {
		response, err := searchViaHTTP(*serverURL, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		writeResponse(response, *outputJSON)
		return
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || *debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger, cfg.Debug || *debug)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	if *useKeyword {
		hits, err := components.Engine.KeywordSearch(ctx, queryText, *maxResults)
		if err != nil {
			logger.Fatal("Keyword search failed", zap.Error(err))
		}
		for i, hit := range hits {
			fmt.Printf("%d. %s (score %.4f)\n   %s\n", i+1, hit.ID, hit.Score, hit.Description)
		}
		return
	}

	response, err := components.Engine.Search(ctx, query)
	if err != nil {
		logger.Fatal("Search failed", zap.Error(err))
	}
	writeResponse(response, *outputJSON)
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimRight(serverURL, "/")+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, err
	}
	return &response, nil
}

func runTags() {
	var (
		matchAll   *bool
		limit      *int
		outputJSON *bool
	)
	_, logger, components, fs := setup(os.Args[1:], func(fs *flag.FlagSet) {
		matchAll = fs.Bool("all", false, "require every tag to match")
		limit = fs.Int("max", 0, "maximum results (0 = config default)")
		outputJSON = fs.Bool("json", false, "output JSON")
	})
	defer logger.Sync()
	defer components.Close()

	if fs.NArg() == 0 {
		fmt.Println("Usage: mitsuke tags [flags] <tag> [tag...]")
		os.Exit(1)
	}

	response, err := components.Engine.SearchByTags(context.Background(), fs.Args(), *matchAll, *limit)
	if err != nil {
		logger.Fatal("Tag search failed", zap.Error(err))
	}
	writeResponse(response, *outputJSON)
}

func runSimilar() {
	var (
		limit      *int
		outputJSON *bool
	)
	_, logger, components, fs := setup(os.Args[1:], func(fs *flag.FlagSet) {
		limit = fs.Int("max", 0, "maximum results (0 = config default)")
		outputJSON = fs.Bool("json", false, "output JSON")
	})
	defer logger.Sync()
	defer components.Close()

	if fs.NArg() != 1 {
		fmt.Println("Usage: mitsuke similar [flags] <image-id>")
		os.Exit(1)
	}

	response, err := components.Engine.FindSimilarTo(context.Background(), fs.Arg(0), *limit)
	if err != nil {
		logger.Fatal("Similar search failed", zap.Error(err))
	}
	writeResponse(response, *outputJSON)
}

func runIndex() {
	_, logger, components, _ := setup(os.Args[1:], nil)
	defer logger.Sync()
	defer components.Close()

	result, err := components.Indexer.Sync(context.Background())
	if err != nil {
		logger.Fatal("Sync failed", zap.Error(err))
	}
	fmt.Printf("Scanned %d images: %d indexed, %d failed (%.1fs)\n",
		result.Scanned, result.Indexed, result.Failed, result.Elapsed.Seconds())
}

func runCleanup() {
	_, logger, components, _ := setup(os.Args[1:], nil)
	defer logger.Sync()
	defer components.Close()

	removed, err := components.Indexer.Cleanup(context.Background())
	if err != nil {
		logger.Fatal("Cleanup failed", zap.Error(err))
	}
	fmt.Printf("Removed %d orphaned records\n", removed)
}

func runStatus() {
	cfg, logger, components, _ := setup(os.Args[1:], nil)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	readiness := components.Engine.ValidateReadiness(ctx)
	fmt.Printf("Ready: %v\n", readiness.Ready)
	for _, issue := range readiness.Issues {
		fmt.Printf("  issue: %s\n", issue)
	}
	fmt.Printf("Images indexed: %d\n", readiness.RecordCount)
	fmt.Printf("Embedding dimensions: %d\n", readiness.Dimensions)
	fmt.Printf("Record store: %s\n", components.Store.Path())
	fmt.Printf("Image directory: %s\n", cfg.Images.Directory)
	if count, err := components.Keyword.Count(); err == nil {
		fmt.Printf("Keyword index entries: %d\n", count)
	}
	if components.History != nil {
		if summary, err := components.History.Aggregate(ctx); err == nil {
			fmt.Printf("Searches: %d total, %d errors, %.1fms avg\n",
				summary.TotalSearches, summary.TotalErrors, summary.AvgTimeMs)
		}
	}
}

func runBackup() {
	_, logger, components, _ := setup(os.Args[1:], nil)
	defer logger.Sync()
	defer components.Close()

	path, err := components.Store.CreateBackup(context.Background())
	if err != nil {
		logger.Fatal("Backup failed", zap.Error(err))
	}
	fmt.Printf("Backup written to %s\n", path)
}

func runRestore() {
	_, logger, components, fs := setup(os.Args[1:], nil)
	defer logger.Sync()
	defer components.Close()

	if fs.NArg() != 1 {
		fmt.Println("Usage: mitsuke restore [flags] <backup-path>")
		os.Exit(1)
	}
	if err := components.Store.RestoreFromBackup(context.Background(), fs.Arg(0)); err != nil {
		logger.Fatal("Restore failed", zap.Error(err))
	}
	fmt.Println("Restore complete")
}

// reorderArgs moves flag arguments (and their values) ahead of
// positionals so users can write the query first: "search red panda -json".
// stdlib flag parsing stops at the first positional otherwise.
func reorderArgs(args []string) []string {
	var flags, positionals []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "-") {
			flags = append(flags, arg)
			if !strings.Contains(arg, "=") && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") && flagTakesValue(arg) {
				flags = append(flags, args[i+1])
				i++
			}
			continue
		}
		positionals = append(positionals, arg)
	}
	return append(flags, positionals...)
}

// flagTakesValue reports whether the flag consumes the next argument.
// Booleans take none; everything else here does.
func flagTakesValue(arg string) bool {
	name := strings.TrimLeft(arg, "-")
	switch name {
	case "debug", "json", "diversity", "all", "keyword":
		return false
	}
	return true
}

func writeResponse(response *models.SearchResponse, asJSON bool) {
	format := cli.OutputText
	if asJSON {
		format = cli.OutputJSON
	}
	_ = cli.WriteSearchResults(os.Stdout, response, format)
}

func printUsage() {
	fmt.Println(`mitsuke - Natural-language image search

Usage:
  mitsuke server [flags]             Start the HTTP server
  mitsuke search [flags] <query>     Search images by description
  mitsuke tags [flags] <tag>...      Search images by tag
  mitsuke similar [flags] <id>       Find images similar to an indexed one
  mitsuke index [flags]              Scan the image directory and index changes
  mitsuke cleanup [flags]            Remove records for deleted images
  mitsuke status [flags]             Show index and engine status
  mitsuke backup [flags]             Create a record store backup
  mitsuke restore [flags] <path>     Restore the record store from a backup
  mitsuke version                    Show version

Common flags:
  -config <path>   Config file (default ` + defaultConfigPath + `)
  -debug           Enable debug logging

Search flags:
  -server <url>    Search via a running server's HTTP API
  -max <n>         Maximum results
  -json            JSON output`)
}

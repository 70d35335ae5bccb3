// Package main is the rxmatch CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rxbridge/rxmatch/internal/catalog"
	"github.com/rxbridge/rxmatch/internal/cli"
	"github.com/rxbridge/rxmatch/internal/config"
	"github.com/rxbridge/rxmatch/internal/match"
	"github.com/rxbridge/rxmatch/internal/models"
	"github.com/rxbridge/rxmatch/internal/normalize"
	"github.com/rxbridge/rxmatch/internal/resolve"
	"github.com/rxbridge/rxmatch/internal/server"
	"github.com/rxbridge/rxmatch/internal/store"
	"github.com/rxbridge/rxmatch/internal/watcher"
	"github.com/rxbridge/rxmatch/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/rxmatch/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists it
// is used, so that "rxmatch server" from the project dir uses the project's
// config (including debug). Returns the config and the path actually loaded.
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
	case "resolve":
		runResolve()
	case "match":
		runMatch()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("rxmatch version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// loadCatalog reads and indexes the concept feed at cfg.Catalog.FeedPath.
func loadCatalog(cfg *config.Config, logger *zap.Logger) (*catalog.Index, catalog.FeedStats, error) {
	f, err := os.Open(cfg.Catalog.FeedPath)
	if err != nil {
		return nil, catalog.FeedStats{}, fmt.Errorf("open feed: %w", err)
	}
	defer f.Close()

	records, stats, err := catalog.ParseFeed(f, cfg.Catalog.Authority, logger)
	if err != nil {
		return nil, stats, fmt.Errorf("parse feed: %w", err)
	}
	idx := catalog.Build(records, catalog.WithLogger(logger))
	return idx, stats, nil
}

// Components holds initialized services.
type Components struct {
	Provider *catalog.Provider
	Store    store.Store
	Pipeline *resolve.Pipeline
	Stats    catalog.FeedStats
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	idx, stats, err := loadCatalog(cfg, logger)
	if err != nil {
		return nil, err
	}
	provider := catalog.NewProvider(idx)

	st, err := store.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := st.RecordSnapshot(context.Background(), &store.Snapshot{
		SourcePath: cfg.Catalog.FeedPath,
		Loaded:     stats.Loaded,
		Skipped:    stats.Skipped,
		Rejected:   stats.Rejected,
		Concepts:   idx.Len(),
	}); err != nil {
		logger.Warn("snapshot record failed", zap.Error(err))
	}

	pipeline := resolve.NewPipeline(provider, cfg.Match, cfg.Resolve, resolve.WithLogger(logger))

	logger.Info("catalog loaded",
		zap.String("feed_path", cfg.Catalog.FeedPath),
		zap.Int("concepts", idx.Len()),
		zap.Int("skipped", stats.Skipped),
		zap.Int("rejected", stats.Rejected),
	)
	return &Components{
		Provider: provider,
		Store:    st,
		Pipeline: pipeline,
		Stats:    stats,
	}, nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (feed reloads, tier decisions, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
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
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	reload := func(ctx context.Context) error {
		idx, stats, err := loadCatalog(cfg, logger)
		if err != nil {
			return err
		}
		components.Provider.Swap(idx)
		if err := components.Store.RecordSnapshot(ctx, &store.Snapshot{
			SourcePath: cfg.Catalog.FeedPath,
			Loaded:     stats.Loaded,
			Skipped:    stats.Skipped,
			Rejected:   stats.Rejected,
			Concepts:   idx.Len(),
		}); err != nil {
			logger.Warn("snapshot record failed", zap.Error(err))
		}
		logger.Info("catalog reloaded", zap.Int("concepts", idx.Len()))
		return nil
	}

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Watch.Enabled {
		watchOpts := []watcher.Option{watcher.WithDebounce(cfg.Watch.Debounce)}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		feedWatch := watcher.New(cfg.Catalog.FeedPath, func(path string) {
			if err := reload(context.Background()); err != nil {
				logger.Warn("feed reload failed", zap.String("path", path), zap.Error(err))
			}
		}, watchOpts...)
		if err := feedWatch.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start feed watcher", zap.Error(err))
		}
		defer feedWatch.Stop()
	}

	srv := server.NewServer(
		components.Provider,
		cfg.Match,
		components.Pipeline,
		components.Store,
		&cfg.Server,
		logger,
		server.WithReload(reload),
	)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// printResolveUsage prints resolve subcommand usage and attribute hints.
func printResolveUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: rxmatch resolve [flags] <free-text>\n\n")
	fmt.Fprintf(fs.Output(), "Free text is all remaining arguments joined by spaces. Multi-word input works with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Structured attribute flags (-ingredient, -strength, -form, -brand, -route)
supply pre-extracted fields alongside the free text; verification then scores
each field instead of relying on the text matcher alone.

Examples:
  rxmatch resolve amoxicillin 500 mg capsule
  rxmatch resolve "amoxicillin 500 mg capsule"            # same as above
  rxmatch resolve -ingredient amlodipine -strength "10 MG" -brand Norvasc norvasc 10
  rxmatch resolve -output json metformin 850 mg tablet     # structured JSON for other apps
`)
}

// buildQuery joins all positional args with spaces so multi-word input works
// the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "rxmatch resolve \"text\" -output json"
// would otherwise leave -output unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// buildAttributes assembles structured attributes from flag values.
// Returns nil when no attribute flag was set.
func buildAttributes(ingredient, strength, form, brand, route string) *models.StructuredAttributes {
	if ingredient == "" && strength == "" && form == "" && brand == "" && route == "" {
		return nil
	}
	return &models.StructuredAttributes{
		Ingredient: ingredient,
		Strength:   strength,
		Form:       form,
		Brand:      brand,
		Route:      route,
	}
}

func runResolve() {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = resolve against local catalog when server is not running)")
	ingredient := fs.String("ingredient", "", "structured attribute: active ingredient")
	strength := fs.String("strength", "", "structured attribute: strength, e.g. \"500 MG\"")
	form := fs.String("form", "", "structured attribute: dose form, e.g. \"oral tablet\"")
	brand := fs.String("brand", "", "structured attribute: brand name")
	route := fs.String("route", "", "structured attribute: administration route")
	outputFormat := fs.String("output", "text", "output format: text (human-readable), compact (one result per line), or json (parseable)")
	fs.Usage = func() { printResolveUsage(fs) }
	_ = fs.Parse(argsReorder(os.Args[2:]))

	queryStr := buildQuery(fs.Args())
	attrs := buildAttributes(*ingredient, *strength, *form, *brand, *route)
	if queryStr == "" && attrs == nil {
		printResolveUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if *serverURL != "" {
		// Use HTTP API when the server is running (avoids SQLite lock conflict).
		res, err := resolveViaHTTP(*serverURL, queryStr, attrs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Resolve failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteResolution(os.Stdout, res, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Direct catalog access (when the server is not running).
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	res, err := components.Pipeline.Resolve(context.Background(), queryStr, attrs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Resolve failed: %v\n", err)
		os.Exit(1)
	}
	if err := components.Store.SaveResolution(context.Background(), res); err != nil {
		logger.Warn("failed to persist resolution", zap.String("id", res.ID), zap.Error(err))
	}
	if err := cli.WriteResolution(os.Stdout, res, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func resolveViaHTTP(serverURL, text string, attrs *models.StructuredAttributes) (*models.Resolution, error) {
	body, err := json.Marshal(map[string]interface{}{"text": text, "attributes": attrs})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/resolve", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var res models.Resolution
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &res, nil
}

func runMatch() {
	fs := flag.NewFlagSet("match", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = match against local catalog)")
	limit := fs.Int("limit", 10, "number of candidates")
	routeFlag := fs.String("route", "", "administration route hint, e.g. oral or injection")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	queryStr := buildQuery(fs.Args())
	if queryStr == "" {
		fmt.Println("Usage: rxmatch match [flags] <free-text>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if *serverURL != "" {
		list, err := matchViaHTTP(*serverURL, queryStr, *routeFlag, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Match failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteCandidates(os.Stdout, list, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	idx, _, err := loadCatalog(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load catalog: %v\n", err)
		os.Exit(1)
	}
	list := matchDirect(idx, cfg.Match, queryStr, *routeFlag, *limit)
	if err := cli.WriteCandidates(os.Stdout, list, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// matchDirect scores and ranks candidates against idx without a server.
func matchDirect(idx *catalog.Index, matchCfg *match.Config, text, routeStr string, limit int) *cli.CandidateList {
	q := normalize.Normalize(text)
	drugWords := normalize.DrugWords(q.Tokens)
	routeHint := models.ParseRoute(routeStr)
	if routeHint == models.RouteUnknown {
		routeHint = normalize.DetectRoute(q.Tokens)
	}

	scorer := match.NewScorer(idx, matchCfg)
	results := scorer.ScoreCandidates(context.Background(), q, idx.Recall(q), routeHint, drugWords, 4)
	ranker := match.NewRanker(idx)
	ranker.Rank(results)
	if segs := normalize.BracketSegments(text); len(segs) > 0 {
		ranker.BrandResort(results, segs[0])
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	list := &cli.CandidateList{Query: text, Count: len(results)}
	for _, r := range results {
		cand := cli.Candidate{ConceptID: r.ConceptID, Type: r.Type, Score: match.Round3(r.Score)}
		if c := idx.Concept(r.ConceptID); c != nil {
			cand.Name = c.Name
		}
		list.Candidates = append(list.Candidates, cand)
	}
	return list
}

func matchViaHTTP(serverURL, text, route string, limit int) (*cli.CandidateList, error) {
	body, err := json.Marshal(map[string]interface{}{"text": text, "route": route, "limit": limit})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/match", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var list cli.CandidateList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &list, nil
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Concepts     int             `json:"concepts"`
	Resolutions  int64           `json:"resolutions"`
	LastFeedLoad *store.Snapshot `json:"last_feed_load,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use local catalog and store)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		ctx := context.Background()
		count, err := components.Store.CountResolutions(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count resolutions failed: %v\n", err)
			os.Exit(1)
		}
		snap, err := components.Store.LatestSnapshot(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Latest snapshot failed: %v\n", err)
			os.Exit(1)
		}
		status = statusResponse{
			Concepts:     components.Provider.Get().Len(),
			Resolutions:  count,
			LastFeedLoad: snap,
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("concepts:     %d   # indexed catalog concepts\n", status.Concepts)
		fmt.Printf("resolutions:  %d   # audit records persisted\n", status.Resolutions)
		if status.LastFeedLoad != nil {
			fmt.Println()
			fmt.Println("# last feed load")
			fmt.Printf("source_path:  %s\n", status.LastFeedLoad.SourcePath)
			fmt.Printf("loaded:       %d\n", status.LastFeedLoad.Loaded)
			fmt.Printf("skipped:      %d\n", status.LastFeedLoad.Skipped)
			fmt.Printf("rejected:     %d\n", status.LastFeedLoad.Rejected)
			fmt.Printf("loaded_at:    %s\n", status.LastFeedLoad.LoadedAt.Format(time.RFC3339))
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

func printUsage() {
	fmt.Println(`rxmatch - Medication free-text to vocabulary concept resolution

Usage:
  rxmatch server [flags]            Start the HTTP server
  rxmatch resolve [flags] <text>    Resolve free text to catalog concepts
  rxmatch match [flags] <text>      List ranked candidates without resolution
  rxmatch status [flags]            Show catalog/store status
  rxmatch version                   Show version
  rxmatch help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/rxmatch/config.yaml)
  --debug            Enable debug logging (feed reloads, tier decisions, etc.)

Resolve Flags:
  --config string      Config file path (for direct mode)
  --server string      Server URL (default: http://localhost:8080). Use empty (--server "") for direct mode.
  --ingredient string  Structured attribute: active ingredient
  --strength string    Structured attribute: strength, e.g. "500 MG"
  --form string        Structured attribute: dose form
  --brand string       Structured attribute: brand name
  --route string       Structured attribute: administration route
  --output string      Output format: text, compact, or json (default: text)

Match Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct mode.
  --limit int        Number of candidates (default: 10)
  --route string     Administration route hint
  --output string    Output format: text, compact, or json (default: text)

Status Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct mode.
  --output string    Output format: text or json (default: text)

Examples:
  rxmatch server
  rxmatch resolve "amoxicillin 500 mg capsule"
  rxmatch resolve -ingredient amlodipine -strength "10 MG" -brand Norvasc norvasc 10
  rxmatch resolve --output json metformin 850 mg tablet   # structured JSON for other apps
  rxmatch match --limit 5 lipitor 20 mg
  rxmatch status
  rxmatch status --output json`)
}

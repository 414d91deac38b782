package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/replypilot/enrich-cli/internal/discover"
	"github.com/replypilot/enrich-cli/internal/enrich"
	"github.com/replypilot/enrich-cli/internal/extract"
	"github.com/replypilot/enrich-cli/internal/fetch"
	"github.com/replypilot/enrich-cli/internal/leads"
	"github.com/replypilot/enrich-cli/internal/resilience"
	"github.com/replypilot/enrich-cli/internal/search"
	"github.com/replypilot/enrich-cli/internal/store"
	anthropicpkg "github.com/replypilot/enrich-cli/pkg/anthropic"
	"github.com/replypilot/enrich-cli/pkg/google"
	"github.com/replypilot/enrich-cli/pkg/jina"
	"github.com/replypilot/enrich-cli/pkg/serpapi"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "replypilot.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore connects and migrates. Callers close the returned store.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// enrichEnv holds the services shared by the enrich and serve commands.
type enrichEnv struct {
	Store        store.Store
	Leads        *leads.Service
	Orchestrator *enrich.Orchestrator
	Discover     *discover.Importer // nil without a Places key
	browser      *fetch.BrowserFetcher
}

// Close releases the browser and the store.
func (e *enrichEnv) Close() {
	if e.browser != nil {
		if err := e.browser.Close(); err != nil {
			zap.L().Warn("close browser", zap.Error(err))
		}
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnrich builds the store, clients, capabilities, and the orchestrator.
// Callers should defer env.Close().
func initEnrich(ctx context.Context, mode string) (*enrichEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &enrichEnv{Store: st, Leads: leads.NewService(st)}

	retry := resilience.FromConfig("http", cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs)

	jinaOpts := []jina.Option{jina.WithBaseURL(cfg.Jina.BaseURL)}
	if cfg.Jina.SearchBaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
	}
	jinaClient := jina.NewClient(cfg.Jina.Key, jinaOpts...)

	var serpClient serpapi.Client
	if cfg.SerpAPI.Key != "" {
		serpClient = serpapi.NewClient(cfg.SerpAPI.Key, serpapi.WithBaseURL(cfg.SerpAPI.BaseURL))
	}

	searcher, err := search.New(search.Options{
		Provider:       cfg.Search.Provider,
		BlockedDomains: cfg.Search.BlockedDomains,
		RatePerSec:     cfg.Search.RatePerSec,
		Timeout:        secs(cfg.Search.TimeoutSecs),
		GL:             cfg.SerpAPI.GL,
		HL:             cfg.SerpAPI.HL,
		Num:            cfg.SerpAPI.Num,
		Retry:          retry,
	}, serpClient, jinaClient)
	if err != nil {
		env.Close()
		return nil, err
	}

	available := map[string]fetch.Fetcher{
		"http": fetch.NewHTTPFetcher(secs(cfg.Fetch.TimeoutSecs),
			fetch.WithMaxBodyKB(cfg.Fetch.MaxBodyKB),
			fetch.WithRetryPolicy(retry),
		),
	}
	if cfg.Jina.Key != "" {
		available["jina"] = fetch.NewJinaFetcher(jinaClient, secs(cfg.Fetch.TimeoutSecs))
	}
	if cfg.Browser.Enabled {
		env.browser = fetch.NewBrowserFetcher(fetch.BrowserConfig{
			Bin:               cfg.Browser.Bin,
			Headless:          cfg.Browser.Headless,
			NavigationTimeout: secs(cfg.Browser.NavigationTimeoutSecs),
		}, fetch.NewDismisser(cfg.Browser.DismissSelectors, time.Duration(cfg.Browser.DismissTimeoutMs)*time.Millisecond))
		available["browser"] = env.browser
	}
	chain := fetch.Ordered(cfg.Fetch.Order, available)
	if chain.Len() == 0 {
		env.Close()
		return nil, eris.Errorf("fetch.order %v names no available fetcher", cfg.Fetch.Order)
	}

	judge, err := initJudge(ctx)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Orchestrator = enrich.NewOrchestrator(st,
		enrich.NewSelector(searcher, cfg.Enrich.SimilarityThreshold, cfg.Search.BlockedDomains),
		chain,
		extract.NewContactExtractor(),
		extract.NewIdentityExtractor(judge, cfg.Enrich.MaxTextChars, secs(cfg.Enrich.JudgeTimeoutSecs)),
	)

	if cfg.Google.Key != "" {
		env.Discover = newImporter(st)
	} else {
		zap.L().Debug("REPLYPILOT_GOOGLE_KEY not set, discovery disabled")
	}

	zap.L().Info("enrichment ready",
		zap.Int("fetchers", chain.Len()),
		zap.String("search", cfg.Search.Provider),
		zap.String("judge", judge.Name()),
	)
	return env, nil
}

func initJudge(ctx context.Context) (extract.Judge, error) {
	switch cfg.Enrich.JudgeProvider {
	case "gemini":
		j, err := extract.NewGeminiJudge(ctx, cfg.Gemini.Key, cfg.Gemini.Model)
		if err != nil {
			return nil, eris.Wrap(err, "init gemini judge")
		}
		return j, nil
	default:
		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		return extract.NewAnthropicJudge(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens), nil
	}
}

func newImporter(st store.Store) *discover.Importer {
	places := google.NewClient(cfg.Google.Key, google.WithBaseURL(cfg.Google.BaseURL))
	return discover.NewImporter(st, places, 0)
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Command server runs the full trading desk: agents, orchestrator, REST and
// websocket API, and the metrics endpoint, wired from one config file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/alphadesk/alphadesk/internal/agent"
	"github.com/alphadesk/alphadesk/internal/api"
	"github.com/alphadesk/alphadesk/internal/broker"
	"github.com/alphadesk/alphadesk/internal/clock"
	"github.com/alphadesk/alphadesk/internal/config"
	"github.com/alphadesk/alphadesk/internal/db"
	"github.com/alphadesk/alphadesk/internal/earnings"
	"github.com/alphadesk/alphadesk/internal/events"
	"github.com/alphadesk/alphadesk/internal/exits"
	"github.com/alphadesk/alphadesk/internal/gates"
	"github.com/alphadesk/alphadesk/internal/indicators"
	"github.com/alphadesk/alphadesk/internal/llm"
	"github.com/alphadesk/alphadesk/internal/memory"
	"github.com/alphadesk/alphadesk/internal/metrics"
	"github.com/alphadesk/alphadesk/internal/orchestrator"
	"github.com/alphadesk/alphadesk/internal/risk"
	tradesignal "github.com/alphadesk/alphadesk/internal/signal"
	"github.com/alphadesk/alphadesk/internal/sizing"
	"github.com/alphadesk/alphadesk/internal/smartmoney"
)

const marketTimezone = "America/New_York"

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./configs/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logFormat := "json"
	if cfg.App.Environment == "development" {
		logFormat = "console"
	}
	config.InitLogger(cfg.App.LogLevel, logFormat)

	log.Info().
		Str("version", cfg.App.Version).
		Str("environment", cfg.App.Environment).
		Int("agents", len(cfg.Trading.Agents)).
		Msg("Starting AlphaDesk")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("Server exited with error")
	}
	log.Info().Msg("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config) error {
	// Persistence is optional: without it the desk trades from a clean
	// slate and keeps everything in memory
	var (
		database *db.DB
		store    *db.Store
	)
	if cfg.Database.Host != "" {
		d, err := db.New(ctx, cfg.Database.GetDSN())
		if err != nil {
			log.Warn().Err(err).Msg("Database unavailable, running without persistence")
		} else {
			database = d
			store = db.NewStore(d.Pool())
			defer database.Close()
		}
	}

	var natsConn *nats.Conn
	if cfg.NATS.Enabled {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable, events stay in-process")
		} else {
			natsConn = nc
			defer natsConn.Drain()
		}
	}
	broadcaster := events.NewBroadcaster(natsConn, "alphadesk.events")

	var cache smartmoney.Cache = smartmoney.NewMemoryCache()
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, using in-process cache")
		} else {
			cache = smartmoney.NewRedisCache(client)
			defer client.Close()
		}
	}
	smart := smartmoney.NewService(
		smartmoney.NewHTTPProvider(15*time.Second, "alphadesk/"+cfg.App.Version),
		metrics.NewInstrumentedCache(cache),
	)

	external := risk.NewExternalBreakers(nil, nil, nil)
	var brk broker.Broker
	if cfg.Trading.PaperTrading && cfg.Broker.APIKey == "" {
		log.Info().Msg("No broker credentials, using the deterministic paper broker")
		brk = broker.NewMockBroker(cfg.Trading.InitialCapitalPerAgent*float64(len(cfg.Trading.Agents)+1), cfg.Trading.SimulatedFeePerTrade)
	} else {
		brk = broker.NewAlpacaClient(broker.AlpacaConfig{
			TradingURL: cfg.Broker.BaseURL,
			DataURL:    cfg.Broker.DataURL,
			KeyID:      cfg.Broker.APIKey,
			SecretKey:  cfg.Broker.SecretKey,
			Timeout:    cfg.Broker.GetTimeout(),
		}, external.Broker())
	}

	var repo memory.Repository = memory.NewInMemoryRepository()
	if database != nil {
		repo = memory.NewPostgresRepository(database.Pool())
	}
	mem := memory.NewService(repo, memory.NewPatternIndex(repo))

	var earningsProvider earnings.Provider = &earnings.StaticProvider{}
	if key := cfg.SmartMoney.EarningsAPIKey; key != "" {
		earningsProvider = earnings.NewFinnhubProvider(key, 10*time.Second)
	}

	mktClock, err := clock.New(marketTimezone)
	if err != nil {
		return fmt.Errorf("market clock: %w", err)
	}

	tradingBreaker := risk.NewTradingBreaker()
	exitEngine := exits.NewEngine(cfg.Trading.PartialTakeProfit)

	deps := agent.Deps{
		Broker:   brk,
		Memory:   mem,
		Sizer:    sizing.NewSizer(),
		Combiner: tradesignal.NewCombiner(),
		Gates:    gates.NewEvaluator(),
		Earnings: earnings.NewService(earningsProvider),
		Exits:    exitEngine,
		Breaker:  tradingBreaker,
	}
	if store != nil {
		deps.Recorder = store
	}

	if len(cfg.Trading.Agents) == 0 {
		return fmt.Errorf("no agents configured under trading.agents")
	}

	buildAgent := func(spec config.AgentSpec) *agent.Agent {
		spec, row := restoreSpec(ctx, store, spec, cfg.Trading.InitialCapitalPerAgent)
		agentDeps := deps
		agentDeps.LLM = llm.NewClient(llm.ClientConfig{
			Endpoint:    cfg.LLM.Endpoint,
			APIKey:      cfg.LLM.APIKey,
			Model:       spec.ModelHandle,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.GetTimeout(),
		})
		a := agent.New(spec, cfg.Trading.InitialCapitalPerAgent, cfg.Trading.SimulatedFeePerTrade,
			cfg.Trading.SubstituteSymbols, agentDeps)
		if row != nil {
			if row.CurrentCapital > 0 {
				a.RestoreCapital(row.CurrentCapital, row.TotalFees)
			}
			restorePositions(ctx, store, a, exitEngine)
		}
		return a
	}

	agents := make([]*agent.Agent, 0, len(cfg.Trading.Agents))
	for _, spec := range cfg.Trading.Agents {
		agents = append(agents, buildAgent(spec))
	}

	meta := buildAgent(config.AgentSpec{
		ID:          "agent-consortium",
		Name:        "consortium",
		ModelHandle: cfg.Trading.Agents[0].ModelHandle,
		Personality: "Executes the combined decision of the whole desk.",
	})

	orch := orchestrator.New(orchestrator.Deps{
		Clock:      mktClock,
		Broker:     brk,
		SmartMoney: smart,
		Analyzer:   indicators.NewAnalyzer(),
		Agents:     agents,
		Meta:       meta,
		Consortium: agent.NewConsortium(cfg.Trading.ConsortiumMode),
		Breaker:    tradingBreaker,
		Exits:      exitEngine,
		Events:     broadcaster,
		Store:      storeOrNil(store),
	}, orchestrator.Options{
		TickInterval:    cfg.Trading.Interval(),
		QueueMissedTick: cfg.Trading.QueueMissedTick,
	})

	var health func(ctx context.Context) error
	if database != nil {
		health = database.Health
	}
	apiServer := api.NewServer(api.Config{Host: cfg.API.Host, Port: cfg.API.Port}, orch, broadcaster, health)

	var metricsServer *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Monitoring.PrometheusPort)
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
	}

	updater := metrics.NewUpdater(agentSampler{orch}, poolStats(database), 15*time.Second)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orch.Run(gctx) })
	g.Go(func() error {
		updater.Start(gctx)
		return nil
	})
	g.Go(func() error {
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("API shutdown failed")
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Metrics shutdown failed")
			}
		}
		return gctx.Err()
	})

	return g.Wait()
}

// restoreSpec reconciles a configured agent with its database row so the ID
// and capital survive restarts
func restoreSpec(ctx context.Context, store *db.Store, spec config.AgentSpec, initialCapital float64) (config.AgentSpec, *db.AgentRow) {
	if store == nil {
		return spec, nil
	}
	row, err := store.UpsertAgent(ctx, spec.Name, spec.ModelHandle, spec.Personality, initialCapital)
	if err != nil {
		log.Warn().Err(err).Str("agent", spec.Name).Msg("Failed to upsert agent row")
		return spec, nil
	}
	spec.ID = row.ID
	return spec, row
}

// restorePositions reloads an agent's mirrored holdings after a restart
func restorePositions(ctx context.Context, store *db.Store, a *agent.Agent, engine *exits.Engine) {
	rows, err := store.OpenPositions(ctx, a.ID())
	if err != nil {
		log.Warn().Err(err).Str("agent", a.Name()).Msg("Failed to load open positions")
		return
	}
	seedPositions(a, engine, rows)
}

// seedPositions reseeds holdings and their exit levels. The original
// decision context is not persisted, so levels restart from the stored
// entry with moderate defaults.
func seedPositions(a *agent.Agent, engine *exits.Engine, rows []db.PositionRow) {
	for _, p := range rows {
		a.RestorePosition(p.Symbol, p.Quantity, p.EntryPrice)
		engine.Register(a.ID(), p.Symbol, p.EntryPrice, p.Quantity, 70, "MEDIUM", 20, smartmoney.Neutral)
	}
	if len(rows) > 0 {
		log.Info().Str("agent", a.Name()).Int("positions", len(rows)).Msg("Restored open positions")
	}
}

// storeOrNil avoids a typed-nil interface inside the orchestrator
func storeOrNil(store *db.Store) orchestrator.Store {
	if store == nil {
		return nil
	}
	return store
}

// agentSampler adapts the orchestrator roster to the metrics updater
type agentSampler struct {
	orch *orchestrator.Orchestrator
}

func (s agentSampler) Sample() []metrics.AgentSample {
	infos := s.orch.Agents()
	out := make([]metrics.AgentSample, 0, len(infos))
	for _, info := range infos {
		out = append(out, metrics.AgentSample{
			Name:          info.Name,
			Cash:          info.Cash,
			Equity:        info.Equity,
			Performance:   info.PerformancePct,
			TotalFees:     info.TotalFees,
			OpenPositions: len(info.Positions),
			BreakerPaused: info.Breaker.Paused,
		})
	}
	return out
}

// poolStats exposes pgxpool statistics to the updater; nil without a database
func poolStats(database *db.DB) func() metrics.PoolStats {
	if database == nil {
		return nil
	}
	return func() metrics.PoolStats {
		return database.Pool().Stat()
	}
}

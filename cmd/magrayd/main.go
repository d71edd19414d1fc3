// Command magrayd runs the MAGRAY agent runtime as a long-lived process:
// it wires the bus, tool registry, policy engine, orchestrator, and
// scheduler together, then exposes them over a gRPC Agent service and a
// Prometheus /metrics endpoint. Grounded on the teacher's
// example/cmd/assistant/main.go (flag parsing, goa.design/clue log
// context setup, signal-driven graceful shutdown via an error channel and
// sync.WaitGroup), narrowed to the single gRPC transport MAGRAY needs
// instead of the teacher's HTTP+gRPC+WebSocket multi-transport fan-out.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"goa.design/clue/log"

	"github.com/magray/magray/internal/agents"
	"github.com/magray/magray/internal/bus"
	"github.com/magray/magray/internal/config"
	"github.com/magray/magray/internal/model"
	"github.com/magray/magray/internal/orchestrator"
	"github.com/magray/magray/internal/orchestrator/inmem"
	"github.com/magray/magray/internal/telemetry"
	"github.com/magray/magray/internal/tools"
)

func main() {
	var (
		grpcAddrF    = flag.String("grpc-addr", "localhost:8090", "gRPC listen address")
		metricsAddrF = flag.String("metrics-addr", "localhost:9090", "Prometheus /metrics listen address")
		schedTickF   = flag.Duration("scheduler-tick", time.Second, "scheduler poll interval")
		dbgF         = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf(ctx, err, "load configuration")
	}
	logger := telemetry.NewClueLogger()

	sched, err := agents.NewScheduler(cfg.Home + "/scheduler.db")
	if err != nil {
		log.Fatalf(ctx, err, "open scheduler store")
	}
	defer sched.Close()

	policyEngine, err := loadPolicyEngine(cfg)
	if err != nil {
		log.Fatalf(ctx, err, "load policy sources")
	}
	policyEngine.SetAuditFunc(func(reason string) {
		logger.Warn(ctx, "policy emergency disable engaged", "reason", reason)
	})

	registry := tools.New()
	dispatcher := tools.NewDispatcher(registry, nil, nil, policyEngine)

	llm := buildModelClient(ctx, logger)
	evtBus := bus.New(bus.Options{})
	planner := agents.NewPlanner(registry)
	planner.Limits = cfg.PlannerLimits()
	executor := agents.NewExecutor(dispatcher, nil)
	intentAnalyzer := agents.NewIntentAnalyzer(llm, evtBus.Publish)
	critic := agents.NewCritic()
	saga := orchestrator.NewSaga(nil, nil)
	engine := inmem.New()
	orch := orchestrator.New(intentAnalyzer, planner, executor, critic, saga, evtBus, engine)

	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	handleGRPCServer(ctx, *grpcAddrF, orch, evtBus, logger, &wg, errc)
	handleMetricsServer(ctx, *metricsAddrF, logger, &wg, errc)

	wg.Add(1)
	go func() {
		defer wg.Done()
		runSchedulerLoop(ctx, sched, planner, executor, logger, *schedTickF)
	}()

	log.Printf(ctx, "exiting (%v)", <-errc)
	cancel()
	wg.Wait()
	log.Printf(ctx, "exited")
}

// buildModelClient selects a model.Client from MAGRAY_MODEL_PROVIDER
// (anthropic, openai, or unset); an unset/unrecognized provider leaves the
// IntentAnalyzer's LLM fallback disabled rather than failing startup,
// since the fallback is optional per spec.md §4.5.
func buildModelClient(ctx context.Context, logger telemetry.Logger) model.Client {
	switch os.Getenv("MAGRAY_MODEL_PROVIDER") {
	case "anthropic":
		client, err := newAnthropicClient()
		if err != nil {
			logger.Warn(ctx, "anthropic model client disabled", "error", err)
			return nil
		}
		return client
	case "openai":
		client, err := newOpenAIClient()
		if err != nil {
			logger.Warn(ctx, "openai model client disabled", "error", err)
			return nil
		}
		return client
	default:
		return nil
	}
}

func handleMetricsServer(ctx context.Context, addr string, logger telemetry.Logger, wg *sync.WaitGroup, errc chan error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(telemetry.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	wg.Add(1)
	go func() {
		defer wg.Done()
		go func() {
			logger.Info(ctx, "metrics server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errc <- err
			}
		}()
		<-ctx.Done()
		logger.Info(ctx, "shutting down metrics server", "addr", addr)
		_ = srv.Close()
	}()
}

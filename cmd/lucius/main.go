package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lucius-ai/internal/adapter/agents"
	"lucius-ai/internal/adapter/metricstore"
	"lucius-ai/internal/domain"
	"lucius-ai/internal/infra/config"
	"lucius-ai/internal/infra/logger"
	"lucius-ai/internal/infra/tracer"
	"lucius-ai/internal/usecase/convo"
	"lucius-ai/internal/usecase/dispatch"
	"lucius-ai/internal/usecase/eventbus"
	"lucius-ai/internal/usecase/metrics"
	"lucius-ai/internal/usecase/registry"
	"lucius-ai/internal/usecase/scheduling"
	"lucius-ai/internal/usecase/workflow"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("LUCIUS_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func run() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Metrics persistence
	var store domain.MetricsStore
	switch cfg.Metrics.Backend {
	case "sqlite":
		sqliteStore, err := metricstore.NewSQLiteStore(cfg.Metrics.Path)
		if err != nil {
			return fmt.Errorf("metrics store: %w", err)
		}
		defer sqliteStore.Close()
		store = sqliteStore
	default:
		fileStore, err := metricstore.NewFileStore(cfg.Metrics.Path)
		if err != nil {
			return fmt.Errorf("metrics store: %w", err)
		}
		store = fileStore
	}

	svc, err := metrics.NewService(ctx, store, log,
		metrics.WithWindowSize(cfg.Metrics.WindowSize),
		metrics.WithErrorCap(cfg.Metrics.ErrorCap),
	)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// 4. Event bus
	bus := eventbus.New(log)
	defer bus.Close()

	// 5. Conversation store
	contexts := convo.NewStore(cfg.Conversation.StickyWindowDuration(), log,
		convo.WithIdleTTL(cfg.Conversation.IdleTTLDuration()))

	// 6. Agents
	reg := registry.New(log)
	for _, agent := range []domain.Agent{
		agents.NewChief(),
		agents.NewCalendar(),
		agents.NewMail(),
		agents.NewResearch(),
		agents.NewProject(),
	} {
		if cfg.Breaker.Enabled {
			agent = agents.NewBreaker(agent, agents.BreakerSettings{
				MaxFailures: cfg.Breaker.MaxFailures,
				Timeout:     cfg.Breaker.TimeoutDuration(),
				Interval:    cfg.Breaker.IntervalDuration(),
			}, log)
		}
		reg.Register(agent)
	}

	// 7. Workflow engine
	engine := workflow.NewEngine(reg.Lookup(), svc, bus, workflow.Config{
		StepTimeout: cfg.Engine.StepTimeoutDuration(),
		MaxRunning:  cfg.Engine.MaxRunning,
	}, log)

	for _, def := range builtinWorkflows() {
		if err := engine.Register(def); err != nil {
			return fmt.Errorf("workflow %q: %w", def.Name, err)
		}
	}
	for _, spec := range cfg.Workflows {
		def, err := workflow.FromSpec(spec)
		if err != nil {
			return fmt.Errorf("workflow %q: %w", spec.Name, err)
		}
		if err := engine.Register(def); err != nil {
			return fmt.Errorf("workflow %q: %w", spec.Name, err)
		}
	}

	// 8. Dispatcher
	dispatcher := dispatch.New(contexts, reg, engine, svc, agents.NewKeywordClassifier(), bus,
		dispatch.Config{
			AgentTimeout:  cfg.Engine.StepTimeoutDuration(),
			RatePerSecond: cfg.Dispatch.RatePerSecond,
			Burst:         cfg.Dispatch.Burst,
		}, log)

	// 9. Graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 10. Background maintenance
	if cfg.Scheduler.Enabled {
		sched := scheduling.NewScheduler(log)
		sched.RegisterAction(scheduling.ActionContextReap, func(context.Context) error {
			reaped := contexts.ReapIdle(time.Now())
			if reaped > 0 {
				bus.Publish(ctx, domain.Event{
					Type:      domain.EventContextReaped,
					Timestamp: time.Now(),
					Data:      map[string]string{"count": fmt.Sprintf("%d", reaped)},
				})
			}
			return nil
		})
		sched.RegisterAction(scheduling.ActionMetricsTrim, func(context.Context) error {
			svc.TrimRetention(time.Now())
			return nil
		})
		for _, task := range []scheduling.ScheduledTask{
			{Name: "context-reap", Schedule: cfg.Scheduler.ReapSchedule, Action: scheduling.ActionContextReap},
			{Name: "metrics-trim", Schedule: cfg.Scheduler.ReapSchedule, Action: scheduling.ActionMetricsTrim},
		} {
			if err := sched.AddTask(task); err != nil {
				return fmt.Errorf("scheduler: %w", err)
			}
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		defer sched.Stop()
	}

	log.Info("lucius starting",
		"agents", reg.Names(),
		"workflows", engine.Names(),
		"metrics_backend", cfg.Metrics.Backend,
	)

	return repl(ctx, dispatcher, svc)
}

// builtinWorkflows are the sequences shipped out of the box: the chief
// of staff opens and closes each, with the specialists in the middle.
func builtinWorkflows() []domain.WorkflowDefinition {
	return []domain.WorkflowDefinition{
		{
			Name:  "research",
			Steps: []string{"lucius", "mike", "tom", "lucius"},
			Transitions: map[string][]string{
				"lucius": {"mike"},
				"mike":   {"tom"},
				"tom":    {"lucius"},
			},
		},
		{
			Name:  "task_management",
			Steps: []string{"lucius", "tom", "lucius"},
			Transitions: map[string][]string{
				"lucius": {"tom"},
				"tom":    {"lucius"},
			},
		},
	}
}

// repl reads messages from stdin and dispatches them on a single
// thread until EOF or shutdown.
func repl(ctx context.Context, dispatcher *dispatch.Dispatcher, svc *metrics.Service) error {
	const threadID = "cli"

	fmt.Println("Lucius listo. Escribe tu mensaje (\"/status\" para métricas, \"/quit\" para salir).")

	scanner := bufio.NewScanner(os.Stdin)
	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case line, ok := <-lines:
			if !ok {
				return scanner.Err()
			}
			msg := strings.TrimSpace(line)
			switch {
			case msg == "":
				continue
			case msg == "/quit" || msg == "/exit":
				return nil
			case msg == "/status":
				printStatus(svc)
				continue
			}

			reply, err := dispatcher.Handle(ctx, domain.Request{
				ThreadID: threadID,
				Speaker:  domain.SpeakerUser,
				Message:  msg,
			})
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Println(reply.Text)
		}
	}
}

func printStatus(svc *metrics.Service) {
	out, err := json.MarshalIndent(svc.Status(), "", "  ")
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println(string(out))
}

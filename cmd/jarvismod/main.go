package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jarvis-moderation/internal/actions"
	"jarvis-moderation/internal/bot"
	"jarvis-moderation/internal/classifier"
	"jarvis-moderation/internal/config"
	"jarvis-moderation/internal/gate"
	"jarvis-moderation/internal/persist"
	"jarvis-moderation/internal/pipeline"
	"jarvis-moderation/internal/queue"
	"jarvis-moderation/internal/risk"
	"jarvis-moderation/internal/scam"
	"jarvis-moderation/internal/storage"
	"jarvis-moderation/internal/threat"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := storage.New(cfg.DatabasePath, cfg.Escalation.MaxAnalysisLog, cfg.Escalation.MaxOffenses)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	snapshots, err := persist.New(cfg.DataDir, logger)
	if err != nil {
		logger.Fatal("snapshot dir init failed", zap.Error(err))
	}

	riskStore := risk.NewStore(cfg.Risk.MaxHistory, snapshots, logger)
	riskStore.Load()
	threats := threat.NewDatabase(snapshots, logger)
	threats.Load()

	generator := classifier.NewHTTPGenerator(
		cfg.Classifier.BaseURL,
		cfg.Classifier.APIKey,
		cfg.Classifier.Model,
		time.Duration(cfg.Classifier.TimeoutSeconds)*time.Second,
	)
	batchClassifier := classifier.NewProtocolClassifier(generator.Generate)

	links := gate.NewDomainListChecker(cfg.Gate.AllowedDomains, cfg.Gate.BlockedDomains)
	moderationGate := gate.New(gate.Config{
		NewAccountDays:    cfg.Gate.NewAccountDays,
		RealtimeRiskScore: cfg.Gate.RealtimeRiskScore,
		MentionLimit:      cfg.Gate.MentionLimit,
	}, threats, links)

	detector := scam.New(scam.Config{
		FlagSameDayAccounts:     cfg.Scam.FlagSameDayAccounts,
		FlagThisYearAccounts:    cfg.Scam.FlagThisYear,
		NewAccountThresholdDays: cfg.Scam.NewAccountDays,
	})

	manager := queue.NewManager(queue.Config{
		MaxSize:         cfg.Queue.MaxSize,
		BatchInterval:   time.Duration(cfg.Queue.BatchIntervalSeconds) * time.Second,
		SizeTrigger:     cfg.Queue.SizeTrigger,
		MaxRetries:      cfg.Queue.MaxRetries,
		ClassifyTimeout: time.Duration(cfg.Classifier.TimeoutSeconds) * time.Second,
		RatePerMinute:   cfg.Classifier.RatePerMinute,
		Burst:           cfg.Classifier.Burst,
	}, batchClassifier, nil, snapshots, logger)
	manager.Load()

	botSvc, err := bot.New(cfg, logger, manager, riskStore, threats, store, detector)
	if err != nil {
		logger.Fatal("bot init failed", zap.Error(err))
	}

	executor := actions.NewDiscord(botSvc.Session(), cfg.Actions.Enabled, logger)
	p := pipeline.New(moderationGate, manager, batchClassifier, riskStore, threats, store, executor,
		time.Duration(cfg.Escalation.WindowHours)*time.Hour, logger)
	manager.SetSink(p)
	botSvc.SetPipeline(p)

	if err := botSvc.Start(); err != nil {
		logger.Fatal("bot start failed", zap.Error(err))
	}
	manager.Start()
	logger.Info("bot started")

	var server *http.Server
	if cfg.Health.Enabled {
		server = &http.Server{Addr: cfg.Health.Addr}
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		go func() {
			logger.Info("health endpoint enabled", zap.String("addr", cfg.Health.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("health server error", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown requested")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if server != nil {
		_ = server.Shutdown(ctx)
	}
	manager.Close()
	botSvc.Close(ctx)
}

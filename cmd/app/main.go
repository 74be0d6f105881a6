package main

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suchimauz/shift-coverage-coordinator/internal/adapters/in/http"
	"github.com/suchimauz/shift-coverage-coordinator/internal/adapters/in/rabbitmq"
	"github.com/suchimauz/shift-coverage-coordinator/internal/adapters/in/timer"
	"github.com/suchimauz/shift-coverage-coordinator/internal/adapters/out/cache"
	"github.com/suchimauz/shift-coverage-coordinator/internal/adapters/out/channel"
	"github.com/suchimauz/shift-coverage-coordinator/internal/adapters/out/directory"
	"github.com/suchimauz/shift-coverage-coordinator/internal/adapters/out/logger"
	"github.com/suchimauz/shift-coverage-coordinator/internal/adapters/out/metrics"
	"github.com/suchimauz/shift-coverage-coordinator/internal/adapters/out/notify"
	"github.com/suchimauz/shift-coverage-coordinator/internal/adapters/out/storage"
	"github.com/suchimauz/shift-coverage-coordinator/internal/config"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/json_types"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/services/coordination_service"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/services/ranking_service"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/services/repetition_guard"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Инициализация логгера с таймзоной
	mainLogger, err := logger.NewConsoleLogger(cfg.App.Timezone, logger.WithLevel(cfg.App.LogLevel))
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger := mainLogger.WithModule("Main")

	logger.Info("app.starting", out.LogFields{
		"version":         cfg.App.Version,
		"env":             cfg.App.Env,
		"timezone":        cfg.App.Timezone,
		"storageDriver":   cfg.Storage.Driver,
		"rabbitmqEnabled": cfg.RabbitMq.Enabled,
		"cacheEnabled":    cfg.Cache.Enabled,
		"telegramEnabled": cfg.Telegram.Enabled,
	})

	json_types.DefaultLocation = cfg.Location()

	// Настройка Gin в зависимости от окружения
	if cfg.IsNotLocal() {
		gin.SetMode(gin.ReleaseMode)
	}
	if !cfg.IsLocal() && cfg.Auth.ChannelEventsSecret == "" {
		logger.Warn("app.channel_events.secret_missing", out.LogFields{
			"env": cfg.App.Env,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tiers, err := config.LoadTierPolicies(cfg.Outreach.TiersConfigPath)
	if err != nil {
		logger.Error("app.tiers.load_failed", out.LogFields{
			"path":  cfg.Outreach.TiersConfigPath,
			"error": err.Error(),
		})
		os.Exit(1)
	}
	if err := tiers.Watch(ctx, cfg.Outreach.TiersConfigPath, mainLogger.WithModule("TierPolicies")); err != nil {
		logger.Warn("app.tiers.watch_failed", out.LogFields{
			"error": err.Error(),
		})
	}

	// Инициализация адаптеров
	store, err := storage.NewSQLAdapter(cfg, mainLogger.WithModule("SQLAdapter"))
	if err != nil {
		logger.Error("app.storage.init_failed", out.LogFields{
			"error": err.Error(),
		})
		os.Exit(1)
	}
	defer store.Close()

	// Без кеша порт остается nil-интерфейсом, а не типизированным nil
	var cachePort out.CachePort
	if cfg.Cache.Enabled {
		cacheAdapter, err := cache.NewCacheAdapter(cfg, mainLogger.WithModule("CacheAdapter"))
		if err != nil {
			logger.Error("app.cache.init_failed", out.LogFields{
				"error": err.Error(),
			})
			os.Exit(1)
		}
		cachePort = cacheAdapter
	}

	directoryAdapter := directory.NewDirectoryAdapter(cfg, mainLogger.WithModule("DirectoryAdapter"))
	channelAdapter := channel.NewChannelAdapter(cfg, mainLogger.WithModule("ChannelAdapter"))
	metricsAdapter := metrics.NewPrometheusMetrics()

	notifiers := []out.NotificationPort{notify.NewLogNotifier(mainLogger.WithModule("LogNotifier"))}
	if cfg.Telegram.Enabled {
		telegram, err := notify.NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID, mainLogger.WithModule("TelegramNotifier"))
		if err != nil {
			logger.Error("app.telegram.init_failed", out.LogFields{
				"error": err.Error(),
			})
			os.Exit(1)
		}
		notifiers = append(notifiers, telegram)
	}
	if cfg.Webhook.URL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.Webhook.URL, 10*time.Second, mainLogger.WithModule("WebhookNotifier")))
	}

	waveTimer := timer.NewWaveTimer(cfg, mainLogger.WithModule("WaveTimer"))

	// Инициализация сервисов
	ranker := ranking_service.NewRankingService(directoryAdapter, cachePort, cfg, mainLogger)
	guard := repetition_guard.NewGuard(store, cachePort, cfg, mainLogger)

	coordinationService := coordination_service.NewCoordinationService(coordination_service.Dependencies{
		Store:    store,
		Ranker:   ranker,
		Channel:  channelAdapter,
		Guard:    guard,
		Notifier: notify.NewMultiNotifier(notifiers...),
		Timer:    waveTimer,
		Metrics:  metricsAdapter,
		Tiers:    tiers,
	}, cfg, mainLogger)

	waveTimer.Bind(coordinationService)
	waveTimer.Start(ctx)
	defer waveTimer.Stop()

	// Настройка HTTP сервера
	router := gin.Default()
	controller := http.NewCoordinationController(
		coordinationService,
		cfg,
		mainLogger.WithModule("HttpController"),
	)
	controller.RegisterRoutes(router, metricsAdapter.Handler())

	// Настройка RabbitMQ слушателя, nil если он выключен
	listener, err := rabbitmq.NewCoordinationListener(
		coordinationService,
		cfg,
		mainLogger.WithModule("RabbitMQListener"),
	)
	if err != nil {
		logger.Error("app.rabbitmq.init_failed", out.LogFields{
			"error": err.Error(),
		})
		os.Exit(1)
	}
	if listener != nil {
		if err := listener.Start(ctx); err != nil {
			logger.Error("app.rabbitmq.start_failed", out.LogFields{
				"error": err.Error(),
			})
			os.Exit(1)
		}
		defer func() {
			if err := listener.Stop(); err != nil {
				logger.Error("app.rabbitmq.stop_failed", out.LogFields{
					"error": err.Error(),
				})
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	server := &nethttp.Server{
		Addr:    cfg.HTTP.Host + ":" + cfg.HTTP.Port,
		Handler: router,
	}

	go func() {
		logger.Info("app.http.starting", out.LogFields{
			"host": cfg.HTTP.Host,
			"port": cfg.HTTP.Port,
		})

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			logger.Error("app.http.failed", out.LogFields{
				"error": err.Error(),
			})
			sigChan <- syscall.SIGTERM
		}
	}()

	sig := <-sigChan
	logger.Info("app.shutdown.initiated", out.LogFields{
		"signal": sig.String(),
	})

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("app.http.shutdown_failed", out.LogFields{
			"error": err.Error(),
		})
	}
	cancel()

	// Дополнительное логирование для разработки
	if cfg.IsLocal() {
		logger.Debug("app.config.debug", out.LogFields{
			"config": map[string]interface{}{
				"http": map[string]string{
					"host": cfg.HTTP.Host,
					"port": cfg.HTTP.Port,
				},
				"directory": map[string]string{
					"url":      cfg.Directory.URL,
					"username": cfg.Directory.Username,
				},
				"rabbitmq": map[string]interface{}{
					"enabled":           cfg.RabbitMq.Enabled,
					"callOffQueue":      cfg.RabbitMq.QueueConfig.CallOffQueueName,
					"channelEventQueue": cfg.RabbitMq.QueueConfig.ChannelEventQueueName,
				},
				"cache": map[string]interface{}{
					"enabled":        cfg.Cache.Enabled,
					"candidate_size": cfg.Cache.CandidateSize,
					"window_size":    cfg.Cache.WindowSize,
				},
			},
		})
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/church-treasury-core/config"
	"github.com/church-treasury-core/internal/database"
	"github.com/church-treasury-core/internal/logger"
	"github.com/church-treasury-core/internal/mq"
	"github.com/church-treasury-core/internal/router"
	"github.com/church-treasury-core/internal/service"
	"go.uber.org/zap"
)

func main() {
	// ./app prod | ./app test | ./app path/to/config.yaml；否则使用 APP_ENV
	configPath := ""
	if len(os.Args) > 1 {
		switch arg := os.Args[1]; arg {
		case "prod", "production":
			configPath = "config/config.prod.yaml"
		case "test", "testing":
			configPath = "config/config.test.yaml"
		case "dev", "development":
			configPath = "config/config.yaml"
		default:
			if arg != "" && arg[0] != '-' {
				configPath = arg
			}
		}
	}

	if err := config.Load(configPath); err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}

	if err := logger.InitLogger(); err != nil {
		panic(fmt.Sprintf("init logger: %v", err))
	}
	defer logger.Sync()

	if err := database.InitMySQL(); err != nil {
		logger.Logger.Fatal("init database failed", zap.Error(err))
	}
	defer database.CloseMySQL()

	if config.Cfg.Database.AutoMigrate {
		if err := database.Migrate(database.DB); err != nil {
			logger.Logger.Fatal("migrate database failed", zap.Error(err))
		}
	}

	// Redis 只用于审批配置缓存，不可达时照常运行
	if err := database.InitRedis(); err != nil {
		logger.Logger.Warn("init redis failed, approval config cache disabled", zap.Error(err))
	}
	defer database.CloseRedis()

	var publisher service.EventPublisher
	mqProducer := mq.GetGlobalMQClient()
	if mqProducer.IsEnabled() {
		publisher = mqProducer
		logger.Logger.Info("rocketmq producer started")
		defer func() {
			if err := mqProducer.Close(); err != nil {
				logger.Logger.Error("close rocketmq producer failed", zap.Error(err))
			}
		}()
	}

	services, err := service.NewServices(database.DB, database.RDB, publisher, config.Cfg)
	if err != nil {
		logger.Logger.Fatal("init services failed", zap.Error(err))
	}

	jobCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()
	go services.ReconcileJob.Start(jobCtx)

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", config.Cfg.App.Port),
		Handler:        router.SetupRouter(services),
		ReadTimeout:    config.Cfg.App.ReadTimeout,
		WriteTimeout:   config.Cfg.App.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Logger.Info("server starting",
			zap.String("address", srv.Addr),
			zap.String("mode", config.Cfg.App.Mode))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info("shutting down")
	services.ReconcileJob.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Logger.Error("forced shutdown", zap.Error(err))
	}

	logger.Logger.Info("server stopped")
}

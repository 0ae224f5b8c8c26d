// cmd/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collision-hub/internal/config"
	"collision-hub/internal/di"
	"collision-hub/internal/utils"
)

func main() {
	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		if cfg == nil {
			panic("Failed to load config: " + err.Error())
		}
		utils.Logger.WithError(err).Warn("Continuing without .env")
	}
	utils.SetupLogger(cfg.LogLevel)

	// DI 컨테이너 생성
	container, err := di.NewContainer(cfg)
	if err != nil {
		utils.Logger.Fatalf("Failed to create DI container: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := container.HubService.Start(ctx); err != nil {
		container.Cleanup()
		utils.Logger.Fatalf("Failed to start hub: %v", err)
	}

	utils.Logger.WithField("http", cfg.HTTPAddr).
		WithField("ops", cfg.OpsAddr).
		WithField("tick", cfg.TickInterval.String()).
		Info("🎯 Collision hub running")

	// 우아한 종료 처리
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		utils.Logger.Infof("🛑 Shutdown signal received: %v", sig)
	case err := <-container.HubService.Errors():
		utils.Logger.WithError(err).Error("Listener failed, shutting down")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer shutdownCancel()
	start := time.Now()
	container.HubService.Shutdown(shutdownCtx)

	utils.Logger.Infof("✅ Shutdown completed in %v", time.Since(start))
}

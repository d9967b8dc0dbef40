package main

import (
	"flag"
	"os"
	"strings"
	"syscall"

	"github.com/bazaar-next/internal/app"
	"github.com/bazaar-next/internal/config"
	"github.com/bazaar-next/internal/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	var mode string
	flag.StringVar(&mode, "mode", app.ModeAll, "启动模式: all (默认), api, worker")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	log := logger.S()

	if isWeakSecret(cfg.UserJWT.SecretKey) {
		if cfg.Server.Mode == "release" {
			log.Fatalw("user_jwt_secret_weak", "hint", "请在生产环境中配置强随机密钥")
		}
		log.Warnw("user_jwt_secret_weak", "hint", "建议在生产环境中更换")
	}
	for name, provider := range map[string]config.PaymentProviderConfig{
		"mbank":  cfg.Payment.Mbank,
		"elsom":  cfg.Payment.Elsom,
		"odengi": cfg.Payment.Odengi,
	} {
		if provider.Enabled && strings.TrimSpace(provider.Secret) == "" {
			log.Warnw("payment_provider_secret_missing", "provider", name)
		}
	}

	if err := app.InitDatabase(cfg); err != nil {
		log.Fatalw("database_init_failed", "error", err)
	}

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := app.Run(app.Options{
		Config:  cfg,
		Logger:  log,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		Mode:    mode,
	}); err != nil {
		log.Fatalw("app_run_failed", "error", err)
	}
}

func isWeakSecret(secret string) bool {
	if len(secret) < 32 {
		return true
	}
	normalized := strings.ToLower(secret)
	return strings.Contains(normalized, "change-me") ||
		strings.Contains(normalized, "change-in-production") ||
		strings.Contains(normalized, "your-secret-key")
}

package main

import (
	"time"

	"go.uber.org/zap"

	"notification-engine/config"
	"notification-engine/internal/api"
	"notification-engine/internal/provider"
	"notification-engine/internal/repository"
	"notification-engine/internal/service"
	"notification-engine/internal/token"
	"notification-engine/pkg/db"
	"notification-engine/pkg/redis"
)

func main() {
	// 1. Load config
	cfg := config.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// 2. Init DB
	dbConn, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		logger.Fatal("DB initialization failed", zap.Error(err))
	}

	// 3. Init Redis
	rdb := redis.NewClient(cfg.Redis)

	// 4. Init stores and CRM provider
	stores := repository.NewPgxStoreFactory(dbConn, logger)
	crm := provider.NewCRMClient(cfg.CRM.BaseURL)

	// 5. Init action token service
	tokenService, err := token.NewService(
		[]byte(cfg.ActionToken.Secret),
		time.Duration(cfg.ActionToken.TTLHours)*time.Hour,
		token.NewRedisUsedStore(rdb),
	)
	if err != nil {
		logger.Fatal("Token service initialization failed", zap.Error(err))
	}

	// 6. Init services
	fanoutService := service.NewFanoutService(stores, crm, logger)
	preferenceService := service.NewPreferenceService(stores, crm, logger)
	actionService := service.NewActionService(stores, tokenService, logger)
	typeService := service.NewTypeService(stores, logger)

	// 7. Init handlers
	notificationHandler := api.NewNotificationHandler(fanoutService, actionService)
	preferenceHandler := api.NewPreferenceHandler(preferenceService)
	actionHandler := api.NewActionHandler(actionService)
	typeHandler := api.NewTypeHandler(typeService)
	addressHandler := api.NewAddressHandler(stores)

	// 8. Init router
	router := api.NewRouter(notificationHandler, preferenceHandler, actionHandler, typeHandler, addressHandler, cfg.JWT.Secret)

	// 9. Run server
	if err := router.Run(cfg.Server.Port); err != nil {
		logger.Fatal("server start failed", zap.Error(err))
	}
}

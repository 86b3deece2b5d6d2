package main

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	cron "github.com/robfig/cron/v3"
	"github.com/rs/cors"

	"github.com/poofware/patrol-service/internal/app"
	"github.com/poofware/patrol-service/internal/config"
	"github.com/poofware/patrol-service/internal/controllers"
	"github.com/poofware/patrol-service/internal/middleware"
	"github.com/poofware/patrol-service/internal/repositories"
	"github.com/poofware/patrol-service/internal/routes"
	"github.com/poofware/patrol-service/internal/services"
	"github.com/poofware/patrol-service/internal/utils"
)

func main() {
	utils.InitLogger(config.AppName)
	cfg := config.LoadConfig()

	application, err := app.NewApp(cfg)
	if err != nil {
		utils.Logger.Fatal("Failed to initialize patrol-service:", err)
	}
	defer application.Close()

	repos := repositories.NewRepositories(application.DB)
	uow := repositories.NewUnitOfWork(application.DB)

	codec, err := services.NewChallengeCodec(cfg.ChallengeSigningKey)
	if err != nil {
		utils.Logger.WithError(err).Fatal("Failed to create challenge codec")
	}
	challengeService := services.NewChallengeService(
		codec,
		services.NewLedgerReplayGuard(repos.ConsumedChallenges, application.Cache, cfg.LDFlag_LedgerFastPathCheck),
		cfg.ChallengeTTL,
	)
	scanService := services.NewScanService(
		cfg,
		repos,
		uow,
		challengeService,
		services.NewRoleAuthorizer(),
		application.Cache,
	)
	cleanupService := services.NewLedgerCleanupService(repos.ConsumedChallenges, cfg.LedgerRetention)

	if cfg.LDFlag_SeedDbWithTestData {
		if err := app.SeedAllTestData(context.Background(), repos); err != nil {
			utils.Logger.WithError(err).Fatal("Failed to seed test data")
		} else {
			utils.Logger.Info("Seeded test data successfully")
		}
	}

	scanController := controllers.NewScanController(scanService)
	var cachePinger controllers.Pinger
	if application.Cache != nil {
		cachePinger = application.Cache
	}
	healthController := controllers.NewHealthController(application.DB, cachePinger)

	router := mux.NewRouter()

	// Public
	router.HandleFunc(routes.Health, healthController.HealthCheckHandler).Methods(http.MethodGet)

	secured := router.NewRoute().Subrouter()
	secured.Use(middleware.AuthMiddleware(cfg.RSAPublicKey))

	secured.HandleFunc(routes.ScansStart, scanController.StartScanHandler).Methods(http.MethodPost)
	secured.HandleFunc(routes.ScansFinish, scanController.FinishScanHandler).Methods(http.MethodPost)

	c := cron.New()
	_, cleanupErr := c.AddFunc("15 3 * * *", func() {
		if _, e := cleanupService.CleanupExpired(context.Background()); e != nil {
			utils.Logger.WithError(e).Error("Scheduled ledger cleanup failed")
		}
	})
	if cleanupErr != nil {
		utils.Logger.WithError(cleanupErr).Fatal("Failed to schedule ledger cleanup cron")
	}
	c.Start()
	defer c.Stop()

	allowedOrigins := []string{cfg.AppUrl}
	if !cfg.LDFlag_CORSHighSecurity {
		allowedOrigins = append(allowedOrigins, utils.CORSLowSecurityAllowedOriginLocalhost)
	}

	co := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", utils.DeviceIDHeader},
		AllowCredentials: true,
	})

	utils.Logger.Infof("Starting %s on port: %s", cfg.AppName, cfg.AppPort)
	if err := http.ListenAndServe(":"+cfg.AppPort, co.Handler(router)); err != nil {
		utils.Logger.Fatal("patrol-service failed to start:", err)
	}
}

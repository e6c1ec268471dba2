package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"arena-feedback-system/handlers"
	"arena-feedback-system/middleware"
	"arena-feedback-system/models"
	"arena-feedback-system/services"
	"arena-feedback-system/utils"
	"arena-feedback-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024, // 1MB — JSON bodies only
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token, X-User-ID",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Match{},
		&models.Review{},
		&models.MatchInteraction{},
		&models.Paper{},
		&models.Agent{},
		&models.RankingEntry{},
		&models.ArenaUser{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	agentRunnerURL := os.Getenv("AGENT_RUNNER_URL")
	if agentRunnerURL == "" {
		log.Fatal("AGENT_RUNNER_URL environment variable not set")
	}
	serviceToken := os.Getenv("ARENA_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("ARENA_SERVICE_TOKEN environment variable not set")
	}
	syncServiceURL := os.Getenv("SYNC_SERVICE_URL")
	if syncServiceURL == "" {
		log.Fatal("SYNC_SERVICE_URL environment variable not set")
	}
	catalogServiceURL := os.Getenv("CATALOG_SERVICE_URL")
	if catalogServiceURL == "" {
		log.Fatal("CATALOG_SERVICE_URL environment variable not set")
	}

	// Services: match completion events feed the leaderboard, the leaderboard
	// and feedback both fan out through the realtime hub.
	runner := services.NewHTTPAgentRunner(agentRunnerURL, serviceToken)
	feedbackService := services.NewFeedbackService(db)
	leaderboardService := services.NewLeaderboardService(db)
	matchService := services.NewMatchService(db, runner, feedbackService)
	hub := services.NewHub(feedbackService, leaderboardService)
	archiveService := services.NewArchiveService(matchService, feedbackService, utils.UploadBytesToR2)

	feedbackService.SetNotifier(hub)
	leaderboardService.SetNotifier(hub)
	matchService.SetHub(hub)
	matchService.OnCompletion(leaderboardService.HandleCompletion)

	if err := matchService.Load(); err != nil {
		log.Fatal("failed to load matches:", err)
	}
	if err := leaderboardService.Load(); err != nil {
		log.Fatal("failed to load rankings:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	userSyncWorker := workers.NewArenaUserSyncWorker(db, syncServiceURL, "/api/v1/public/profiles", serviceToken)
	userSyncWorker.Start(ctx)

	catalogSyncWorker := workers.NewCatalogSyncWorker(db, catalogServiceURL, "/api/v1/public/catalog/changes", serviceToken)
	catalogSyncWorker.Start(ctx)

	matchService.StartSweeper()

	handlers.SetupMatchRoutes(app, matchService, archiveService)
	handlers.SetupFeedbackRoutes(app, feedbackService)
	handlers.SetupLeaderboardRoutes(app, leaderboardService)
	handlers.SetupChannelRoutes(app, hub)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Arena User Sync Worker running")
	log.Println("✅ Catalog Sync Worker running")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	_ = app.Shutdown()
}

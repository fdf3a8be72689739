package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/AI-Wars-Soc/matchmaker/handlers"
	"github.com/AI-Wars-Soc/matchmaker/models"
	"github.com/AI-Wars-Soc/matchmaker/services"
	"github.com/AI-Wars-Soc/matchmaker/utils"
	"github.com/AI-Wars-Soc/matchmaker/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	runnerURL := os.Getenv("RUNNER_URL")
	if runnerURL == "" {
		runnerURL = "http://runner:8080"
	}

	gamemode := os.Getenv("GAMEMODE")
	if gamemode == "" {
		log.Fatal("GAMEMODE environment variable not set")
	}

	options := json.RawMessage(os.Getenv("GAMEMODE_OPTIONS"))
	if len(options) == 0 {
		options = json.RawMessage("{}")
	} else if !json.Valid(options) {
		log.Fatal("GAMEMODE_OPTIONS is not valid JSON")
	}

	playerCount := envInt("GAMEMODE_PLAYER_COUNT", 2)
	matchmakers := envInt("MATCHMAKERS", 1)
	targetSeconds := envInt("TARGET_SECONDS_PER_GAME", 60)
	initialScore := envFloat("INITIAL_SCORE", 1000)
	turbulence := envFloat("SCORE_TURBULENCE", 32)

	statusAddr := os.Getenv("STATUS_ADDR")
	if statusAddr == "" {
		statusAddr = ":5220"
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Entrant{},
		&models.Match{},
		&models.Result{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	archive, err := utils.NewRecordingArchive()
	if err != nil {
		log.Fatal("failed to initialize recording archive:", err)
	}
	if archive == nil {
		log.Println("⚠️  R2 environment not set, recording archival disabled")
	}

	selector := services.NewSelectorService(db)
	recorder := services.NewRecorderService(db, selector, archive, gamemode, turbulence, initialScore)
	runner := services.NewRunnerClient(runnerURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	loops := make([]*workers.Matchmaker, 0, matchmakers)
	for i := 0; i < matchmakers; i++ {
		m := workers.NewMatchmaker(fmt.Sprintf("matchmaker-%d", i), gamemode, options,
			playerCount, targetSeconds, selector, runner, recorder)
		loops = append(loops, m)
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Run(ctx)
		}()
	}

	services.StartStatsScheduler(db, selector)

	app := fiber.New()
	handlers.SetupStatusRoutes(app, db, loops)
	go func() {
		if err := app.Listen(statusAddr); err != nil {
			log.Printf("Status server error: %v", err)
		}
	}()

	log.Printf("✅ %d matchmaker(s) running for gamemode %s", matchmakers, gamemode)
	log.Printf("✅ Status server on %s", statusAddr)

	<-ctx.Done()
	log.Println("Shutting down matchmakers...")
	wg.Wait()
	_ = app.Shutdown()
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return f
}

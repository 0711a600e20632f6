package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"menu-hand/config"
	"menu-hand/models"
	"menu-hand/notify"
	"menu-hand/providers/swmenu"
	"menu-hand/services"
	"menu-hand/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Setup Database Connection
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to menu database.")

	logging.Info("Running database auto-migration...")
	db.AutoMigrate(&models.Dish{}, &models.DishAlias{}, &models.Tag{}, &models.Location{},
		&models.Occurrence{}, &models.OccurrenceTag{}, &models.OccurrenceSideDish{},
		&models.ConfidenceSuggestion{})

	// Seeding
	seedDefaultTags(db, logging)
	seedLocations(db, cfg, logging)

	catalog := services.NewCatalog(db, logging)

	// Lookup-Tabellen laden und periodisch auffrischen
	mapping := services.NewMapping(catalog, logging)
	if err := mapping.Refresh(); err != nil {
		logging.Fatal("Initial mapping refresh failed", zap.Error(err))
	}
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.MappingRefreshSchedule, func() {
		if err := mapping.Refresh(); err != nil {
			logging.Error("Scheduled mapping refresh failed", zap.Error(err))
		}
	})
	cronScheduler.Start()

	// Setup Services
	parser := services.NewParser(mapping.IsTagValid, logging)
	resolver := services.NewResolver(catalog, parser, cfg.FuzzyThreshold, cfg.FuzzyCandidates, logging)

	var notifier services.Notifier = notify.NopNotifier{}
	if cfg.DiscordWebhookURL != "" {
		notifier = notify.NewDiscordNotifier(cfg.DiscordWebhookURL, logging)
	}
	suggestionService := services.NewSuggestionService(catalog, notifier, logging)

	var rawCopySink *storage.RawCopySink
	if cfg.RawCopyEnabled {
		s3Client, err := storage.NewS3Client(cfg)
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
		rawCopySink = storage.NewRawCopySink(s3Client, cfg.RawCopyS3Bucket)
	}

	// Setup Workers: einer pro konfiguriertem Feed
	feedLocations, err := cfg.ParseFeedLocations()
	if err != nil {
		logging.Fatal("Invalid feed configuration", zap.Error(err))
	}
	var workers []*services.Worker
	var telemetries []*services.WorkerTelemetry
	for _, fl := range feedLocations {
		fetcher := swmenu.NewFetcher(cfg.FeedBaseURL, fl.FeedName, fl.ExternalID, cfg.ScrapeDelay(), logging)
		if rawCopySink != nil {
			fetcher = fetcher.WithRawCopySink(rawCopySink)
		}
		telemetry := services.NewWorkerTelemetry(fl.FeedName)
		reconciler := services.NewReconciler(catalog, resolver, suggestionService, parser,
			mapping, telemetry, time.Duration(cfg.RetentionDays)*24*time.Hour, logging)
		workers = append(workers, services.NewWorker(fetcher, reconciler, telemetry, logging))
		telemetries = append(telemetries, telemetry)
	}
	logging.Info("Workers configured", zap.Int("feeds", len(workers)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go suggestionService.Run(ctx)

	scheduler := services.NewScheduler(workers, logging)
	scheduler.Start(ctx)

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	setupStatsRoutes(router, telemetries)
	setupDishRoutes(router, db, logging)
	setupOccurrenceRoutes(router, db, logging)
	setupSuggestionRoutes(router, catalog, suggestionService, logging)

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("Failed to run server", zap.Error(err))
		}
	}()

	// Graceful Shutdown: erst Worker stoppen, dann den HTTP-Server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info("Shutdown signal received, stopping workers...")
	cancel()
	scheduler.Wait()
	cronScheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("Server shutdown failed", zap.Error(err))
	}
	logging.Info("Shutdown complete.")
}

func setupStatsRoutes(router *gin.Engine, telemetries []*services.WorkerTelemetry) {
	router.GET("/stats", func(c *gin.Context) {
		snapshots := make([]services.TelemetrySnapshot, 0, len(telemetries))
		for _, t := range telemetries {
			snapshots = append(snapshots, t.Snapshot())
		}
		c.JSON(http.StatusOK, snapshots)
	})
}

func setupDishRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/dishes")

	rg.GET("/", func(c *gin.Context) {
		var dishes []models.Dish
		if err := db.Order("name_de asc").Find(&dishes).Error; err != nil {
			log.Error("Database query for dishes failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, dishes)
	})

	rg.GET("/:id", func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dish id"})
			return
		}
		var dish models.Dish
		if err := db.First(&dish, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "dish not found"})
				return
			}
			log.Error("Database query for dish failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		var aliases []models.DishAlias
		if err := db.Where("dish_id = ?", id).Find(&aliases).Error; err != nil {
			log.Error("Database query for aliases failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"dish": dish, "aliases": aliases})
	})
}

func setupOccurrenceRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/occurrences")

	rg.GET("/", func(c *gin.Context) {
		query := db.Model(&models.Occurrence{}).Preload("Tags")

		if date := c.Query("date"); date != "" {
			parsed, err := time.Parse("2006-01-02", date)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
				return
			}
			query = query.Where("date = ?", parsed)
		}
		if location := c.Query("location"); location != "" {
			id, err := uuid.Parse(location)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location id"})
				return
			}
			query = query.Where("location_id = ?", id)
		}
		if c.Query("active") == "true" {
			query = query.Where("not_available_after IS NULL")
		}

		var occurrences []models.Occurrence
		if err := query.Order("date desc").Find(&occurrences).Error; err != nil {
			log.Error("Database query for occurrences failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, occurrences)
	})
}

func setupSuggestionRoutes(router *gin.Engine, catalog *services.Catalog,
	suggestionService *services.SuggestionService, log *zap.Logger) {
	rg := router.Group("/suggestions")

	rg.GET("/", func(c *gin.Context) {
		suggestions, err := catalog.PendingSuggestions()
		if err != nil {
			log.Error("Database query for suggestions failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, suggestions)
	})

	rg.POST("/:occurrence/decision", func(c *gin.Context) {
		occurrenceID, err := uuid.Parse(c.Param("occurrence"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid occurrence id"})
			return
		}

		var req struct {
			Action    string `json:"action" binding:"required"`
			Candidate int    `json:"candidate"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. 'action' field is required."})
			return
		}

		action := services.Action(req.Action)
		switch action {
		case services.ActionAccept, services.ActionInsertNew, services.ActionDiscard:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "action must be one of accept, new, discard"})
			return
		}

		if err := suggestionService.Submit(c.Request.Context(), occurrenceID, action, req.Candidate); err != nil {
			log.Error("Decision submission failed",
				zap.String("occurrence", occurrenceID.String()), zap.Error(err))
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "decision applied", "action": req.Action})
	})
}

func seedDefaultTags(db *gorm.DB, logger *zap.Logger) {
	var count int64
	db.Model(&models.Tag{}).Count(&count)
	if count > 0 {
		return
	}
	tags := []models.Tag{
		{Key: "Wz", Name: "Weizen", IsAllergy: true},
		{Key: "Ro", Name: "Roggen", IsAllergy: true},
		{Key: "Ge", Name: "Gerste", IsAllergy: true},
		{Key: "Hf", Name: "Hafer", IsAllergy: true},
		{Key: "Kr", Name: "Krebstiere", IsAllergy: true},
		{Key: "Ei", Name: "Eier", IsAllergy: true},
		{Key: "Fi", Name: "Fisch", IsAllergy: true},
		{Key: "Er", Name: "Erdnüsse", IsAllergy: true},
		{Key: "So", Name: "Soja", IsAllergy: true},
		{Key: "Mi", Name: "Milch", IsAllergy: true},
		{Key: "Man", Name: "Mandeln", IsAllergy: true},
		{Key: "Has", Name: "Haselnüsse", IsAllergy: true},
		{Key: "Wal", Name: "Walnüsse", IsAllergy: true},
		{Key: "Kas", Name: "Cashewkerne", IsAllergy: true},
		{Key: "Pek", Name: "Pekannüsse", IsAllergy: true},
		{Key: "Par", Name: "Paranüsse", IsAllergy: true},
		{Key: "Mac", Name: "Macadamianüsse", IsAllergy: true},
		{Key: "Pis", Name: "Pistazien", IsAllergy: true},
		{Key: "Sel", Name: "Sellerie", IsAllergy: true},
		{Key: "Sen", Name: "Senf", IsAllergy: true},
		{Key: "Ses", Name: "Sesam", IsAllergy: true},
		{Key: "Su", Name: "Schwefeldioxid und Sulfite", IsAllergy: true},
		{Key: "Lu", Name: "Lupinen", IsAllergy: true},
		{Key: "Wt", Name: "Weichtiere", IsAllergy: true},
		{Key: "1", Name: "Farbstoff"},
		{Key: "2", Name: "Konservierungsstoff"},
		{Key: "3", Name: "Antioxidationsmittel"},
		{Key: "4", Name: "Geschmacksverstärker"},
		{Key: "5", Name: "geschwefelt"},
		{Key: "6", Name: "geschwärzt"},
		{Key: "7", Name: "gewachst"},
		{Key: "8", Name: "Phosphat"},
		{Key: "9", Name: "Süßungsmittel"},
		{Key: "10", Name: "Phenylalaninquelle"},
		{Key: "11", Name: "koffeinhaltig"},
		{Key: "12", Name: "chininhaltig"},
		{Key: "13", Name: "Alkohol"},
		{Key: "S", Name: "Schwein"},
		{Key: "R", Name: "Rind"},
		{Key: "G", Name: "Geflügel"},
		{Key: "L", Name: "Lamm"},
		{Key: "W", Name: "Wild"},
		{Key: "F", Name: "Fisch (Gericht)"},
		{Key: "V", Name: "vegetarisch"},
		{Key: "veg", Name: "vegan"},
		{Key: "MSC", Name: "MSC-zertifizierter Fisch"},
		{Key: "Gf", Name: "glutenfrei"},
		{Key: "A", Name: "mit Alkohol"},
		{Key: "B", Name: "Bio"},
		{Key: "CO2", Name: "klimafreundlich"},
		{Key: "MV", Name: "Mensa Vital"},
	}
	if err := db.Create(&tags).Error; err != nil {
		logger.Warn("Failed to seed default tags", zap.Error(err))
	} else {
		logger.Info("Default tag vocabulary seeded.")
	}
}

// seedLocations legt für jeden konfigurierten Feed eine Location an, falls
// sie noch nicht existiert.
func seedLocations(db *gorm.DB, cfg *config.Config, logger *zap.Logger) {
	feedLocations, err := cfg.ParseFeedLocations()
	if err != nil {
		logger.Fatal("Invalid feed configuration", zap.Error(err))
	}
	for _, fl := range feedLocations {
		var count int64
		db.Model(&models.Location{}).Where("external_id = ?", fl.ExternalID).Count(&count)
		if count > 0 {
			continue
		}
		location := models.Location{Name: fl.FeedName, ExternalID: fl.ExternalID}
		if err := db.Create(&location).Error; err != nil {
			logger.Warn("Failed to seed location", zap.String("feed", fl.FeedName), zap.Error(err))
		} else {
			logger.Info("Location seeded.", zap.String("feed", fl.FeedName))
		}
	}
}

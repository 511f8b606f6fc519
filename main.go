package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"capitolbrief/config"
	"capitolbrief/feed"
	"capitolbrief/models"
	"capitolbrief/publisher"
	"capitolbrief/services"
	"capitolbrief/storage"
	"capitolbrief/summarizer"
	"capitolbrief/textsource"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	billsIngestedCounter    prometheus.Counter
	textsAcceptedCounter    prometheus.Counter
	billsPublishedCounter   prometheus.Counter
	billsProblematicCounter prometheus.Counter
)

func init() {
	billsIngestedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bills_ingested_total",
		Help: "Total number of new bills inserted from the feed.",
	})
	textsAcceptedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bill_texts_accepted_total",
		Help: "Total number of full texts accepted by the enrichment chain.",
	})
	billsPublishedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bills_published_total",
		Help: "Total number of bills posted to the platform.",
	})
	billsProblematicCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bills_problematic_total",
		Help: "Total number of bills flagged for manual review.",
	})
	prometheus.MustRegister(billsIngestedCounter, textsAcceptedCounter, billsPublishedCounter, billsProblematicCounter)
}

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

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to bills database.")

	logging.Info("Running database auto-migration...")
	if err := db.AutoMigrate(&models.Bill{}, &models.PublishRecord{}); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	archive, err := storage.NewArchive(cfg)
	if err != nil {
		logging.Fatal("S3 archive client creation failed", zap.Error(err))
	}

	store := services.NewBillStore(db, logging)
	chain := textsource.NewChain(logging, cfg.MinTextLength,
		textsource.NewAPISource(cfg, logging),
		textsource.NewDirectURLSource(cfg, logging),
		textsource.NewScrapeSource(cfg, logging),
	)
	pipeline := services.NewPipeline(cfg, store,
		feed.NewClient(cfg, logging),
		chain,
		summarizer.NewClient(cfg, logging),
		publisher.NewClient(cfg, logging),
		archive,
		logging,
	)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupBillRoutes(router, db, logging)
	setupAdminRoutes(router, db, logging)
	setupPipelineRoutes(router, pipeline, logging)

	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled pipeline pass...")
		runPipeline(pipeline, logging)
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func runPipeline(pipeline *services.Pipeline, log *zap.Logger) {
	stats, err := pipeline.RunOnce(context.Background())
	if err != nil {
		log.Error("Pipeline run failed", zap.Error(err))
	}
	billsIngestedCounter.Add(float64(stats.NewBills))
	textsAcceptedCounter.Add(float64(stats.TextsAccepted))
	billsProblematicCounter.Add(float64(stats.Problematic))
	if stats.Published {
		billsPublishedCounter.Inc()
	}
}

func setupBillRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/bills")

	// Published bills only; this is what the website consumes.
	rg.GET("/", func(c *gin.Context) {
		var bills []models.Bill
		if err := db.Where("published = ?", true).Order("published_at desc").Find(&bills).Error; err != nil {
			log.Error("Database query for published bills failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, bills)
	})

	rg.GET("/:bill_id", func(c *gin.Context) {
		billID := c.Param("bill_id")
		var bill models.Bill
		if err := db.Where("bill_id = ?", billID).First(&bill).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "bill not found"})
				return
			}
			log.Error("DB error fetching bill", zap.String("bill_id", billID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, bill)
	})

	// Body-driven endpoint for complex queries.
	rg.POST("/query", func(c *gin.Context) {
		type BillQuery struct {
			Published   *bool  `json:"published"`
			Problematic *bool  `json:"problematic"`
			Summarized  *bool  `json:"summarized"`
			TextSource  string `json:"text_source"`
			StatusNorm  string `json:"status_norm"`
			Limit       int    `json:"limit"`
		}

		var req BillQuery
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		query := db.Model(&models.Bill{})
		if req.Published != nil {
			query = query.Where("published = ?", *req.Published)
		}
		if req.Problematic != nil {
			query = query.Where("problematic = ?", *req.Problematic)
		}
		if req.Summarized != nil {
			query = query.Where("summarized = ?", *req.Summarized)
		}
		if req.TextSource != "" {
			query = query.Where("text_source = ?", req.TextSource)
		}
		if req.StatusNorm != "" {
			query = query.Where("status_norm = ?", req.StatusNorm)
		}
		if req.Limit > 0 {
			query = query.Limit(req.Limit)
		}

		var bills []models.Bill
		if err := query.Order("created_at desc").Find(&bills).Error; err != nil {
			log.Error("Database query for bills failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, bills)
	})
}

func setupAdminRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/admin/bills")

	// Partial update of derived fields and the problem flag. Setting a derived
	// field marks the bill admin-edited so the pipeline leaves it alone.
	rg.PATCH("/:bill_id", func(c *gin.Context) {
		billID := c.Param("bill_id")

		var bill models.Bill
		if err := db.Where("bill_id = ?", billID).First(&bill).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "bill not found"})
				return
			}
			log.Error("DB error checking for bill on PATCH", zap.String("bill_id", billID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		var payload struct {
			Overview       *string  `json:"overview"`
			Detailed       *string  `json:"detailed"`
			ShortText      *string  `json:"short_text"`
			RelevanceScore *float64 `json:"relevance_score"`
			Problematic    *bool    `json:"problematic"`
			ProblemReason  *string  `json:"problem_reason"`
		}
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		updates := map[string]interface{}{}
		if payload.Overview != nil {
			updates["overview"] = *payload.Overview
			updates["admin_edited"] = true
		}
		if payload.Detailed != nil {
			updates["detailed"] = *payload.Detailed
			updates["admin_edited"] = true
		}
		if payload.ShortText != nil {
			updates["short_text"] = *payload.ShortText
			updates["admin_edited"] = true
		}
		if payload.RelevanceScore != nil {
			updates["relevance_score"] = *payload.RelevanceScore
			updates["admin_edited"] = true
		}
		if payload.Problematic != nil {
			updates["problematic"] = *payload.Problematic
			if !*payload.Problematic {
				updates["problem_reason"] = ""
			}
		}
		if payload.ProblemReason != nil {
			updates["problem_reason"] = *payload.ProblemReason
		}
		if len(updates) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No updatable fields provided"})
			return
		}

		if err := db.Model(&bill).Updates(updates).Error; err != nil {
			log.Error("DB error updating bill", zap.String("bill_id", billID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update bill"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "updated fields", "updates": updates})
	})
}

func setupPipelineRoutes(router *gin.Engine, pipeline *services.Pipeline, log *zap.Logger) {
	rg := router.Group("/pipeline")
	rg.POST("/run", func(c *gin.Context) {
		go func() {
			log.Info("Running manually triggered pipeline pass...")
			runPipeline(pipeline, log)
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Pipeline run triggered."})
	})
}

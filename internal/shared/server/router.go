package server

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"insight-backend/internal/cache"
	"insight-backend/internal/completion"
	"insight-backend/internal/completion/mock"
	"insight-backend/internal/completion/openai"
	"insight-backend/internal/pipeline"
	"insight-backend/internal/services/health"
	"insight-backend/internal/shared/config"
	"insight-backend/internal/shared/metrics"
	"insight-backend/internal/shared/server/middleware"
	"insight-backend/internal/shared/server/respond"
	"insight-backend/internal/shared/storage/db"
	"insight-backend/internal/uploads"
)

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(cfg config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules: map[string]middleware.RateLimitRule{
				"DEFAULT": {Rate: 2, Burst: 10},
				"POLLING": {Rate: 10, Burst: 30},
			},
			GroupFor: func(c *gin.Context) string {
				if c.Request.Method == http.MethodGet && c.FullPath() == "/api/v1/analyses/:id" {
					return "POLLING"
				}
				return "DEFAULT"
			},
		}),
	)

	// Dependencies
	var sqlDB *sql.DB
	if cfg.DatabaseURL != "" {
		dbConn, err := db.Connect(context.Background(), cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
		if err != nil {
			log.Printf("failed to connect database, falling back to memory: %v", err)
		} else {
			if err := db.RunMigrations(context.Background(), dbConn); err != nil {
				log.Printf("failed to run migrations, falling back to memory: %v", err)
				dbConn = nil
			}
		}
		sqlDB = dbConn
	}

	var jobRepo pipeline.Repo
	if sqlDB != nil {
		jobRepo = &pipeline.PGRepo{DB: sqlDB}
	} else {
		jobRepo = pipeline.NewMemoryRepo()
	}

	var jobCache cache.Cache
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL)
		if err != nil {
			log.Printf("failed to configure redis cache, polling falls back to repo: %v", err)
		} else if err := redisCache.Ping(context.Background()); err != nil {
			log.Printf("redis unreachable, polling falls back to repo: %v", err)
		} else {
			jobCache = redisCache
		}
	}

	client := newCompletionClient(cfg)

	orchestrator := pipeline.NewOrchestrator(jobRepo, jobCache, client)
	pipelineHandler := pipeline.NewHandler(orchestrator)

	var cachePinger health.Pinger
	if jobCache != nil {
		cachePinger = jobCache
	}
	healthSvc := health.NewService(sqlDB, cachePinger)

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		status := healthSvc.Status(c.Request.Context())
		code := http.StatusOK
		if ok, _ := status["ok"].(bool); !ok {
			code = http.StatusServiceUnavailable
		}
		respond.JSON(c, code, status)
	})
	r.GET("/metrics", metrics.Handler())
	uploads.RegisterRoutes(api)
	pipelineHandler.RegisterRoutes(api)

	return r
}

func newCompletionClient(cfg config.Config) completion.Client {
	if cfg.CompletionProvider == "mock" {
		log.Printf("completion provider: mock")
		return mock.Static(`{}`)
	}
	client, err := openai.NewClient(os.Getenv("OPENAI_API_KEY"), cfg.CompletionModel)
	if err != nil {
		log.Printf("completion capability unavailable: %v", err)
		return completion.Unavailable{}
	}
	return client
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}

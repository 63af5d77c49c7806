package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arnavshah/role-allocator-go/internal/config"
	"github.com/arnavshah/role-allocator-go/internal/logging"
	"github.com/arnavshah/role-allocator-go/pkg/auth"
	"github.com/arnavshah/role-allocator-go/pkg/database"
	"github.com/arnavshah/role-allocator-go/pkg/handlers"
	"github.com/arnavshah/role-allocator-go/pkg/service"
)

var r *gin.Engine

func init() {
	// Load .env if it exists (for local testing with vercel dev)
	cfg := config.Load()
	logger := logging.Must(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	db, err := database.Open(database.Options{
		DatabaseURL: cfg.DatabaseURL,
		Driver:      cfg.DatabaseDriver,
		DataPath:    cfg.DataPath,
	})
	if err != nil {
		logger.Fatal("could not open database", zap.Error(err))
	}
	store := database.NewStore(db)

	if defaults, err := database.DefaultRoles(); err == nil {
		if _, err := store.SeedRoles(ctx, defaults); err != nil {
			logger.Error("could not seed roles", zap.Error(err))
		}
	}
	if _, err := auth.EnsureAdminExists(ctx, store, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		logger.Error("could not create admin", zap.Error(err))
	}

	h := &handlers.Handler{
		Service: service.New(service.Config{
			Store:   store,
			Logger:  logger,
			Trials:  cfg.AllocationTrials,
			Workers: cfg.AllocationWorkers,
		}),
		Store:  store,
		Auth:   auth.New(cfg.JWTSecret, cfg.APIMasterSecret),
		Logger: logger,
	}

	// Initialize Gin
	gin.SetMode(gin.ReleaseMode)
	r = gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	h.Register(r)
}

// Handler is the entry point for Vercel Go Runtime
func Handler(w http.ResponseWriter, r_req *http.Request) {
	r.ServeHTTP(w, r_req)
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/edtech/ai-gateway/internal/auth"
	"github.com/edtech/ai-gateway/internal/config"
	"github.com/edtech/ai-gateway/internal/db"
	"github.com/edtech/ai-gateway/internal/gate"
	"github.com/edtech/ai-gateway/internal/gateway"
	"github.com/edtech/ai-gateway/internal/policy"
	"github.com/edtech/ai-gateway/internal/policyinfo"
	"github.com/edtech/ai-gateway/internal/provider"
	"github.com/edtech/ai-gateway/internal/ratelimit"
	"github.com/edtech/ai-gateway/internal/tenant"
	"github.com/edtech/ai-gateway/internal/usage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// Initialize database
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 10*time.Second)
	database, err := db.NewDB(startupCtx, cfg.DatabaseURL)
	startupCancel()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer database.Close()

	// Initialize rate limiter
	limiter, err := ratelimit.NewLimiter(cfg.RedisURL)
	if err != nil {
		log.Fatal("Failed to initialize rate limiter:", err)
	}
	defer limiter.Close()

	// Policy tables are built once and shared read-only
	table := policy.NewTable()

	resolver := tenant.NewResolver(database)
	accessGate := gate.New(database, table)
	ledger := usage.NewLedger(database, table)
	llm := provider.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL, cfg.ProviderTimeout)

	if !llm.Configured() {
		log.Println("⚠️ No provider credential configured, serving canned responses")
	}

	// Initialize router
	router := mux.NewRouter()

	// Auth middleware
	authMiddleware := auth.NewMiddleware(cfg.JWTSecret)

	gatewayHandler := gateway.NewHandler(resolver, accessGate, table, llm, ledger, limiter)
	policyHandler := policyinfo.NewHandler(table)

	api := mux.NewRouter()
	gatewayHandler.RegisterRoutes(api)
	policyHandler.RegisterRoutes(api)

	router.PathPrefix("/ai/").Handler(authMiddleware.Authenticate(api))

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.ServerPort)
		log.Printf("AI gateway available at /ai/invoke")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed:", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

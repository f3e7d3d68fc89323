package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atomicbase/directory/access"
	"github.com/atomicbase/directory/config"
	"github.com/atomicbase/directory/data"
	"github.com/atomicbase/directory/handlers"
	"github.com/atomicbase/directory/query"
	"github.com/atomicbase/directory/settings"
	"github.com/atomicbase/directory/tools"
)

func logStartupInfo(st *settings.Settings) {
	fmt.Println("=== Directory ===")
	fmt.Printf("Port:            %s\n", config.Cfg.Port)
	fmt.Printf("Database:        %s (%s)\n", config.Cfg.DBDSN, config.Cfg.DBDriver)
	fmt.Printf("Request timeout: %ds\n", config.Cfg.RequestTimeout)
	fmt.Printf("Pagination:      %d default, %d max\n", config.Cfg.DefaultLimit, config.Cfg.MaxQueryLimit)
	fmt.Printf("Search fields:   %d (fulltext %t, keyword %t)\n",
		len(st.Search.Fields), st.Search.FullText, st.Search.Keyword)

	warnings := 0
	if config.Cfg.JWTSecret == "" {
		fmt.Println("[WARN] No JWT secret set - the API surface rejects every caller")
		warnings++
	} else {
		fmt.Println("[OK]   API surface authentication enabled")
	}

	if len(config.Cfg.CORSOrigins) == 0 {
		fmt.Println("[INFO] CORS disabled (no origins configured)")
	} else {
		fmt.Printf("[OK]   CORS origins: %v\n", config.Cfg.CORSOrigins)
	}

	if st.AllowPrivateOverride {
		fmt.Println("[WARN] Private override enabled - anonymous callers may request private entries")
		warnings++
	}

	if warnings > 0 {
		fmt.Printf("\n[!] %d security warning(s) - review before production\n", warnings)
	}
	fmt.Println()
}

func main() {
	st, err := settings.Load(config.Cfg.SettingsPath)
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	logStartupInfo(st)

	db, err := data.Open(context.Background(), config.Cfg.DBDriver, config.Cfg.DBDSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	if err := db.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	en, err := access.NewEnforcer(st.Roles)
	if err != nil {
		log.Fatalf("Failed to load role policy: %v", err)
	}

	svc := query.New(db, st)
	h := &handlers.Handler{
		Service: svc,
		Provider: &access.Provider{
			Secret:   []byte(config.Cfg.JWTSecret),
			Enforcer: en,
			Policy:   svc.Policy(),
		},
	}

	app := http.NewServeMux()
	handlers.RegisterRoutes(app, h)

	// Apply middleware chain: panic recovery -> logging -> timeout -> cors -> handler
	handler := tools.PanicRecoveryMiddleware(
		tools.LoggingMiddleware(
			tools.TimeoutMiddleware(
				tools.CORSMiddleware(app))))

	server := &http.Server{
		Addr:    config.Cfg.Port,
		Handler: handler,
	}

	go func() {
		fmt.Printf("Listening on %s\n", config.Cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down server...")

	// Give outstanding requests 10 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	if err := db.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}

	fmt.Println("Server stopped")
}

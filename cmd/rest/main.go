package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"db-agent-be/internal/bootstrap"
	"db-agent-be/internal/config"
	"db-agent-be/internal/server"
	"db-agent-be/internal/tracer"
	"db-agent-be/pkg/catalog"
	"db-agent-be/pkg/database"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer(tracer.Settings{
		Enabled:     cfg.App.OtelEnabled,
		Endpoint:    cfg.App.OtelEndpoint,
		Environment: cfg.App.Environment,
		SampleRatio: cfg.App.OtelSampleRatio,
	})
	defer shutdownTracer(context.Background())

	// 3. Initialize Database
	gormDB, err := database.Open(cfg.Database.Dialect, cfg.Database.Connection, nil)
	if err != nil {
		log.Panicf("Unable to connect to GORM DB: %v", err)
	}

	// 4. Load the Catalog once; it is read-only from here on
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		log.Panicf("Unable to load catalog: %v", err)
	}
	log.Printf("Catalog loaded: %v", cat.Names())

	// 5. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(gormDB, cat, cfg)
	defer container.Close()

	// 6. Start Background Services
	if err := container.AuditService.Consume(context.Background()); err != nil {
		log.Printf("Background Audit Consumer Error: %v", err)
	}

	// 7. Initialize Server
	srv := server.New(cfg, container)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")
		if err := srv.Shutdown(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	// 8. Run Server
	if err := srv.Run(); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}

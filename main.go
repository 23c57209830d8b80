// @title IntelLearn API
// @version 1.0
// @description Backend for the IntelLearn course platform.

// @contact.name IntelLearn API support

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization

package main

import (
	"flag"
	"intellearn_backend/internal/app"
	"intellearn_backend/internal/config"
	"intellearn_backend/pkg/logger"
	"log"
)

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "run database migrations and exit")
	migrate := flag.Bool("migrate", false, "force migrations on startup, even in release mode")
	recount := flag.Bool("recount", false, "recompute cached lesson and question totals and exit")
	flag.Parse()

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	cfg.ForceMigrate = *migrate || *migrateOnly
	cfg.MigrateOnly = *migrateOnly
	cfg.Recount = *recount

	application := app.NewApp(cfg)
	defer logger.Log.Sync()

	if *migrateOnly || *recount {
		log.Println("Maintenance task finished, exiting")
		return
	}

	application.Run()
}

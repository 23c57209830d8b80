package database

import (
	"fmt"
	"intellearn_backend/internal/config"
	"intellearn_backend/internal/model"
	applog "intellearn_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Dialector picks the GORM driver named by cfg.Driver.
func Dialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
			cfg.User,
			cfg.Password,
			cfg.Host,
			cfg.Port,
			cfg.DBName,
			cfg.Charset,
			cfg.ParseTime,
		)
		return mysql.Open(dsn), nil
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
		return postgres.Open(dsn), nil
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = "intellearn.db"
		}
		return sqlite.Open(path + "?_foreign_keys=on"), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func InitDB(cfg *config.DatabaseConfig, debug bool) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	logMode := logger.Warn
	if debug {
		logMode = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logMode),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	applog.Log.Info("Database connection established", zap.String("driver", dialector.Name()))
	return db, nil
}

// Migrate creates or updates every table the application owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	applog.Log.Info("Database migration completed")
	return nil
}

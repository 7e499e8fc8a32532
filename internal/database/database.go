package database

import (
	"time"

	"example.com/backstage/services/charity/config"
	"example.com/backstage/services/charity/internal/metrics"
	"example.com/backstage/services/charity/internal/models"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Connect opens the write and read-only pools. When no read-only DSN is
// configured the write pool serves reads too.
func Connect(cfg config.DatabaseConfig, m *metrics.Metrics) (*gorm.DB, *gorm.DB, error) {
	db, err := open(cfg, cfg.DSN, m)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to write database")
	}

	if cfg.ReadOnlyDSN == "" {
		return db, db, nil
	}

	readOnlyDB, err := open(cfg, cfg.ReadOnlyDSN, m)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to read-only database")
	}
	return db, readOnlyDB, nil
}

func open(cfg config.DatabaseConfig, dsn string, m *metrics.Metrics) (*gorm.DB, error) {
	logLevel := logger.Error
	if cfg.Debug {
		logLevel = logger.Info
	}

	gormLogger := logger.New(
		&logAdapter{},
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get database connection")
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := RegisterHooks(db, m); err != nil {
		return nil, errors.Wrap(err, "failed to register database hooks")
	}

	return db, nil
}

// Migrate creates or updates every table
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return errors.Wrap(err, "failed to run migrations")
	}
	return nil
}

// Seed inserts the reference rows the service matches by name
func Seed(db *gorm.DB) error {
	statuses := []models.EventStatus{
		{Name: models.StatusOpen},
		{Name: models.StatusFeatured},
		{Name: models.StatusTrending},
		{Name: models.StatusClosed},
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&statuses).Error; err != nil {
		return errors.Wrap(err, "failed to seed event statuses")
	}

	var demandTypes []models.DemandType
	for _, c := range models.CategoryOrder {
		demandTypes = append(demandTypes, models.DemandType{Name: string(c)})
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&demandTypes).Error; err != nil {
		return errors.Wrap(err, "failed to seed demand types")
	}

	options := []models.DeliveryOption{
		{Name: "courier"},
		{Name: "post"},
		{Name: "self_delivery"},
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&options).Error; err != nil {
		return errors.Wrap(err, "failed to seed delivery options")
	}

	log.Info().Msg("Reference data seeded")
	return nil
}

// IsRecordNotFoundError checks if an error is a record not found error
func IsRecordNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// logAdapter routes gorm log lines into zerolog
type logAdapter struct{}

func (l *logAdapter) Printf(format string, args ...interface{}) {
	log.Debug().Str("component", "gorm").Msgf(format, args...)
}

// Package store archives finished sessions to Postgres. The server runs
// fine without it; a nil *Store disables archiving.
package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SessionRecord is one finished session.
type SessionRecord struct {
	ID          uint   `gorm:"primaryKey"`
	Code        string `gorm:"size:12;index"`
	SessionID   int64
	Outcome     string `gorm:"size:16"`
	DurationSec float64
	StartedAt   time.Time
	EndedAt     time.Time
	CreatedAt   time.Time
}

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open connects to Postgres and migrates the schema.
func Open(dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&SessionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) SaveResult(ctx context.Context, rec SessionRecord) error {
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("save session record: %w", err)
	}
	s.log.Debug("session archived",
		zap.String("code", rec.Code),
		zap.String("outcome", rec.Outcome))
	return nil
}

// RecentResults returns the most recent finished sessions, newest first.
func (s *Store) RecentResults(ctx context.Context, limit int) ([]SessionRecord, error) {
	var recs []SessionRecord
	err := s.db.WithContext(ctx).
		Order("ended_at desc").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list session records: %w", err)
	}
	return recs, nil
}

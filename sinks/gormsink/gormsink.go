// Package gormsink is a reference gwtypes.Sink implementation backed by
// GORM over SQLite (glebarez/sqlite, a cgo-free driver built on
// modernc.org/sqlite). It is not imported by the orchestrator — Sink is an
// interface, and this package exists to demonstrate one concrete
// collaborator a deployment might wire in: a connection-pool setup plus
// golang-migrate-driven schema management, narrowed to a single
// SQLite-backed store.
package gormsink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/basuigw/gemigate/gwtypes"
)

// RequestRecord is the GORM model persisting one gwtypes.RequestLog row.
type RequestRecord struct {
	ID          uint      `gorm:"primaryKey"`
	TraceID     string    `gorm:"index"`
	Dialect     string
	Model       string    `gorm:"index"`
	Credential  string
	Success     bool      `gorm:"index"`
	StatusCode  int
	LatencyMS   int64
	Streamed    bool
	RequestBody string
	Timestamp   time.Time `gorm:"index"`
}

func (RequestRecord) TableName() string { return "request_logs" }

// ErrorRecord is the GORM model persisting one gwtypes.ErrorLog row.
type ErrorRecord struct {
	ID          uint      `gorm:"primaryKey"`
	TraceID     string    `gorm:"index"`
	Dialect     string
	Model       string    `gorm:"index"`
	Credential  string
	StatusCode  int
	Message     string
	RequestBody string
	Timestamp   time.Time `gorm:"index"`
}

func (ErrorRecord) TableName() string { return "error_logs" }

// Sink persists request/error logs to a SQL database through GORM.
type Sink struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New wraps an already-opened *gorm.DB. Callers are expected to have run
// AutoMigrate (or the golang-migrate migrations under migrations/sqlite)
// before passing the handle in.
func New(db *gorm.DB, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{db: db, logger: logger.With(zap.String("component", "gormsink"))}
}

// AutoMigrate creates or updates the request_logs/error_logs tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&RequestRecord{}, &ErrorRecord{})
}

// ConfigurePool applies connection-pool defaults to the handle's
// underlying *sql.DB.
func ConfigurePool(db *gorm.DB, maxOpen, maxIdle int, connMaxLifetime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	return nil
}

func (s *Sink) RecordRequest(ctx context.Context, log gwtypes.RequestLog) error {
	record := RequestRecord{
		TraceID:     log.TraceID,
		Dialect:     log.Dialect,
		Model:       log.Model,
		Credential:  log.Credential,
		Success:     log.Success,
		StatusCode:  log.StatusCode,
		LatencyMS:   log.LatencyMS,
		Streamed:    log.Streamed,
		RequestBody: log.RequestBody,
		Timestamp:   logTimestamp(log.Timestamp),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logger.Warn("failed to persist request log", zap.Error(err))
		return err
	}
	return nil
}

func (s *Sink) RecordError(ctx context.Context, log gwtypes.ErrorLog) error {
	record := ErrorRecord{
		TraceID:     log.TraceID,
		Dialect:     log.Dialect,
		Model:       log.Model,
		Credential:  log.Credential,
		StatusCode:  log.StatusCode,
		Message:     log.Message,
		RequestBody: log.RequestBody,
		Timestamp:   logTimestamp(log.Timestamp),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logger.Warn("failed to persist error log", zap.Error(err))
		return err
	}
	return nil
}

func logTimestamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

// SQLDB exposes the underlying *sql.DB, e.g. for health checks or for
// handing to the golang-migrate sqlite driver.
func (s *Sink) SQLDB() (*sql.DB, error) {
	return s.db.DB()
}

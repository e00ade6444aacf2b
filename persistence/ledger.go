// Package persistence adapts the teacher's database/orm.go and
// database/transaction.go from placeholder stubs into a real gorm+sqlite
// history sink for health and memory samples.
package persistence

import (
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// HealthRecord is one appended row of an operation's timing/outcome.
type HealthRecord struct {
	ID        uint `gorm:"primaryKey"`
	Module    string
	Operation string
	Success   bool
	Duration  time.Duration
	CreatedAt time.Time
}

// MemoryRecord is one appended row of a per-module memory sample.
type MemoryRecord struct {
	ID        uint `gorm:"primaryKey"`
	Module    string
	HeapUsed  uint64
	HeapTotal uint64
	CreatedAt time.Time
}

// MetricsLedger is the optional sqlite-backed history sink described in
// SPEC_FULL.md §4.8. Additive only: nothing about ring/aggregate correctness
// depends on it.
type MetricsLedger struct {
	db *gorm.DB
}

// Open opens (and migrates) a MetricsLedger at dsn, e.g. "metrics.db".
func Open(dsn string) (*MetricsLedger, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&HealthRecord{}, &MemoryRecord{}); err != nil {
		return nil, err
	}
	return &MetricsLedger{db: db}, nil
}

// AppendHealth records one operation outcome inside a transaction.
func (l *MetricsLedger) AppendHealth(module, operation string, success bool, duration time.Duration) error {
	return l.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&HealthRecord{
			Module:    module,
			Operation: operation,
			Success:   success,
			Duration:  duration,
			CreatedAt: time.Now(),
		}).Error
	})
}

// AppendMemory records one memory sample inside a transaction.
func (l *MetricsLedger) AppendMemory(module string, heapUsed, heapTotal uint64) error {
	return l.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&MemoryRecord{
			Module:    module,
			HeapUsed:  heapUsed,
			HeapTotal: heapTotal,
			CreatedAt: time.Now(),
		}).Error
	})
}

// History returns health records for module within the trailing window,
// answering queries the in-memory ring can no longer serve once it has
// rotated past maxSnapshots.
func (l *MetricsLedger) History(module string, window time.Duration) ([]HealthRecord, error) {
	var records []HealthRecord
	since := time.Now().Add(-window)
	err := l.db.Where("module = ? AND created_at >= ?", module, since).
		Order("created_at asc").
		Find(&records).Error
	return records, err
}

// MemoryHistory returns memory records for module within the trailing window.
func (l *MetricsLedger) MemoryHistory(module string, window time.Duration) ([]MemoryRecord, error) {
	var records []MemoryRecord
	since := time.Now().Add(-window)
	err := l.db.Where("module = ? AND created_at >= ?", module, since).
		Order("created_at asc").
		Find(&records).Error
	return records, err
}

// Close releases the underlying sqlite connection.
func (l *MetricsLedger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

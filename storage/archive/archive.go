// Package archive keeps a queryable copy of every committed ledger event in a
// relational database.
package archive

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"isolend/core/events"
	"isolend/core/ledger"
)

const (
	DriverSqlite   = "sqlite"
	DriverPostgres = "postgres"

	defaultListLimit = 100
	maxListLimit     = 1000
)

// Config selects the archive backend.
type Config struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// EventRecord is one committed event.
type EventRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	BatchID    uuid.UUID `gorm:"type:uuid;index"`
	Seq        int       `gorm:"not null"`
	Type       string    `gorm:"size:64;index"`
	Market     string    `gorm:"size:66;index"`
	BatchTime  uint64    `gorm:"index"`
	Digest     string    `gorm:"size:64"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// Record decodes the stored attributes back into an event record.
func (r *EventRecord) Record() (*events.Record, error) {
	attrs := map[string]string{}
	if strings.TrimSpace(r.Attributes) != "" {
		if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
			return nil, fmt.Errorf("archive: decode attributes of %d: %w", r.ID, err)
		}
	}
	return &events.Record{Type: r.Type, Attributes: attrs}, nil
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Market  string
	Type    string
	BatchID uuid.UUID
	AfterID uint
	Limit   int
}

// Archive persists receipts. It implements ledger.Subscriber.
type Archive struct {
	db *gorm.DB
}

// Open connects to the configured backend and migrates the schema.
func Open(cfg Config) (*Archive, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverSqlite:
		dsn := cfg.DSN
		if strings.TrimSpace(dsn) == "" {
			dsn = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, fmt.Errorf("archive: postgres dsn required")
		}
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("archive: unsupported driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	return New(db)
}

// New wraps an open gorm handle and migrates the schema.
func New(db *gorm.DB) (*Archive, error) {
	if db == nil {
		return nil, fmt.Errorf("archive: database required")
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	return &Archive{db: db}, nil
}

// Name implements ledger.Subscriber.
func (a *Archive) Name() string { return "archive" }

// Publish stores every event of the receipt in one transaction.
func (a *Archive) Publish(ctx context.Context, receipt *ledger.Receipt) error {
	records := receipt.Records()
	if len(records) == 0 {
		return nil
	}
	digest := hex.EncodeToString(receipt.Digest[:])
	rows := make([]EventRecord, 0, len(records))
	for i, rec := range records {
		attrs, err := json.Marshal(rec.Attributes)
		if err != nil {
			return fmt.Errorf("archive: encode attributes: %w", err)
		}
		rows = append(rows, EventRecord{
			BatchID:    receipt.ID,
			Seq:        i,
			Type:       rec.Type,
			Market:     rec.Attributes["market"],
			BatchTime:  receipt.Time,
			Digest:     digest,
			Attributes: string(attrs),
		})
	}
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
}

// List returns archived events in commit order.
func (a *Archive) List(ctx context.Context, filter Filter) ([]EventRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	query := a.db.WithContext(ctx).Model(&EventRecord{})
	if m := strings.TrimSpace(filter.Market); m != "" {
		query = query.Where("market = ?", m)
	}
	if typ := strings.TrimSpace(filter.Type); typ != "" {
		query = query.Where("type = ?", typ)
	}
	if filter.BatchID != uuid.Nil {
		query = query.Where("batch_id = ?", filter.BatchID)
	}
	if filter.AfterID > 0 {
		query = query.Where("id > ?", filter.AfterID)
	}
	var out []EventRecord
	if err := query.Order("id asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

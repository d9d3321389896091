// Package db persists derived depth snapshots and raw liquidity delta
// events for offline analysis. It is an optional sink: state is always
// rebuilt from the chain on startup, never rehydrated from here.
package db

import (
	"fmt"
	"math/big"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tickwatch/tickwatch/internal/domain"
)

// DepthTableRecord is one row of a buy_wall_depth() poll, one row per
// bucket per poll.
type DepthTableRecord struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	PolledAt    time.Time `gorm:"index;not null"`
	PoolAddress string    `gorm:"index;not null"`
	BucketLabel string    `gorm:"not null"`
	Depth       float64   `gorm:"not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (DepthTableRecord) TableName() string {
	return "depth_table_snapshots"
}

// LiquidityDeltaEventRecord is one ingested Mint/Burn/ModifyLiquidity
// event, kept for audit/replay-free historical inspection.
type LiquidityDeltaEventRecord struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	PoolAddress    string    `gorm:"index;not null"`
	TxHash         string    `gorm:"index;not null"`
	Kind           string    `gorm:"not null"`
	LowerTick      int32     `gorm:"not null"`
	UpperTick      int32     `gorm:"not null"`
	LiquidityDelta string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	BlockNumber    uint64    `gorm:"index;not null"`
	ReceivedAt     time.Time `gorm:"not null"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (LiquidityDeltaEventRecord) TableName() string {
	return "liquidity_delta_events"
}

// SnapshotAuditRecorder persists depth polls and delta events via GORM
// and MySQL. Adapted from the teacher's MySQLRecorder: same
// gorm.Open+AutoMigrate+Create shape, different tables.
type SnapshotAuditRecorder struct {
	db *gorm.DB
}

// NewSnapshotAuditRecorder opens dsn and migrates the audit tables.
// dsn format: "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
func NewSnapshotAuditRecorder(dsn string) (*SnapshotAuditRecorder, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	return NewSnapshotAuditRecorderWithDB(db)
}

// NewSnapshotAuditRecorderWithDB wraps an already-open GORM DB (used by
// tests against go-sqlmock).
func NewSnapshotAuditRecorderWithDB(db *gorm.DB) (*SnapshotAuditRecorder, error) {
	if err := db.AutoMigrate(&DepthTableRecord{}, &LiquidityDeltaEventRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &SnapshotAuditRecorder{db: db}, nil
}

// RecordDepthPoll writes one row per bucket of a buy_wall_depth() poll.
func (r *SnapshotAuditRecorder) RecordDepthPoll(poolAddress string, polledAt time.Time, depths []domain.AggregatedDepth) error {
	if len(depths) == 0 {
		return nil
	}
	records := make([]DepthTableRecord, 0, len(depths))
	for _, d := range depths {
		records = append(records, DepthTableRecord{
			PolledAt:    polledAt,
			PoolAddress: poolAddress,
			BucketLabel: d.BucketLabel,
			Depth:       d.Depth,
		})
	}
	if result := r.db.Create(&records); result.Error != nil {
		return fmt.Errorf("failed to record depth poll: %w", result.Error)
	}
	return nil
}

// RecordEvent persists one ingested liquidity delta event.
func (r *SnapshotAuditRecorder) RecordEvent(poolAddress string, e domain.LiquidityDeltaEvent) error {
	record := LiquidityDeltaEventRecord{
		PoolAddress:    poolAddress,
		TxHash:         e.TxHash,
		Kind:           string(e.Kind),
		LowerTick:      e.LowerTick,
		UpperTick:      e.UpperTick,
		LiquidityDelta: bigIntToString(e.LiquidityDelta),
		BlockNumber:    e.BlockNumber,
		ReceivedAt:     e.ReceivedAt,
	}
	if result := r.db.Create(&record); result.Error != nil {
		return fmt.Errorf("failed to record delta event: %w", result.Error)
	}
	return nil
}

// Close closes the underlying database connection.
func (r *SnapshotAuditRecorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying DB: %w", err)
	}
	return sqlDB.Close()
}

func bigIntToString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

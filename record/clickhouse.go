package record

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	isp "github.com/tocurd/go-avrisp"
	"github.com/tocurd/go-avrisp/programmer"
)

const sessionsTable = `
	CREATE TABLE IF NOT EXISTS programming_sessions (
		started_at   DateTime64(3),
		session_id   String,
		station      String,
		chip_type    LowCardinality(String),
		signature    String,
		efuse_write  LowCardinality(String),
		hfuse_write  LowCardinality(String),
		lfuse_write  LowCardinality(String),
		flash        LowCardinality(String),
		flash_bytes  UInt32,
		failure      LowCardinality(String),
		detail       String,
		passed       UInt8,
		duration_ms  UInt32
	) ENGINE = MergeTree()
	ORDER BY (station, started_at)
`

// ClickHouseConfig holds the connection settings.
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Station  string
}

// ClickHouseStore keeps one row per session for production traceability.
type ClickHouseStore struct {
	conn    driver.Conn
	station string
}

// NewClickHouseStore connects and creates the sessions table if needed.
func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	if err := conn.Exec(ctx, sessionsTable); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return &ClickHouseStore{conn: conn, station: cfg.Station}, nil
}

// Record inserts the session row.
func (s *ClickHouseStore) Record(ctx context.Context, r programmer.SessionResult) error {
	rec := FromResult(s.station, r)
	passed := uint8(0)
	if rec.Passed {
		passed = 1
	}
	err := s.conn.Exec(ctx, `
		INSERT INTO programming_sessions (started_at, session_id, station, chip_type, signature,
			efuse_write, hfuse_write, lfuse_write, flash, flash_bytes, failure, detail, passed, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.StartedAt,
		rec.SessionID,
		rec.Station,
		rec.ChipType,
		rec.Signature,
		rec.FuseWrites[isp.FuseExtended.String()],
		rec.FuseWrites[isp.FuseHigh.String()],
		rec.FuseWrites[isp.FuseLow.String()],
		rec.Flash,
		uint32(rec.FlashBytes),
		rec.Failure,
		rec.Detail,
		passed,
		uint32(rec.DurationMS),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", rec.SessionID, err)
	}
	return nil
}

// Close closes the connection.
func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}

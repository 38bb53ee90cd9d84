package clickhouseclient

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"CsvLogPump/internal/config"
	"CsvLogPump/internal/models"
)

const insertTimeout = 60 * time.Second

const columns = "RunID, EventDate, EventTime, FilePath, FileName, Fields, Columns, Line, InsertedAt"

type Client struct {
	conn   clickhouse.Conn
	table  string
	Logger *zap.Logger
}

// New создает клиента ClickHouse. Protocol: "native" или "http".
func New(cfg config.ClickHouseConfig, logger *zap.Logger) (*Client, error) {
	protocol := clickhouse.Native
	if cfg.Protocol == "http" {
		protocol = clickhouse.HTTP
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Address},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		Protocol:    protocol,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	return &Client{conn: conn, table: cfg.Table, Logger: logger}, nil
}

// EnsureTable создаёт таблицу, если её нет.
func (c *Client) EnsureTable(ctx context.Context) error {
	ddl := "CREATE TABLE IF NOT EXISTS " + c.table + ` (
		RunID String,
		EventDate Date,
		EventTime DateTime64(6),
		FilePath String,
		FileName LowCardinality(String),
		Fields Array(String),
		Columns Array(String),
		Line String,
		InsertedAt DateTime64(3)
	) ENGINE = MergeTree
	PARTITION BY toYYYYMM(EventDate)
	ORDER BY (FileName, EventTime)`
	if err := c.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", c.table, err)
	}
	return nil
}

// InsertBatch отправляет строки одной пачкой.
func (c *Client) InsertBatch(ctx context.Context, rows []models.LogRow) error {
	// Отдельный таймаут, чтобы отмена сервиса не прерывала уже начатую вставку
	dbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), insertTimeout)
	defer cancel()

	batch, err := c.conn.PrepareBatch(dbCtx, "INSERT INTO "+c.table+" ("+columns+")")
	if err != nil {
		c.Logger.Error("prepare batch", zap.Error(err), zap.String("table", c.table))
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, row := range rows {
		if err := batch.Append(
			row.RunID,
			row.EventDate,
			row.EventTime,
			row.FilePath,
			row.FileName,
			row.Fields,
			row.Columns,
			row.Line,
			row.InsertedAt,
		); err != nil {
			c.Logger.Error("append batch", zap.Error(err), zap.String("file", row.FilePath))
			_ = batch.Abort()
			return fmt.Errorf("append: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		c.Logger.Error("send batch", zap.Error(err), zap.String("table", c.table))
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Close закрывает соединение с ClickHouse
func (c *Client) Close() error {
	return c.conn.Close()
}

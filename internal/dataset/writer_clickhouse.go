package dataset

import (
	"context"
	"fmt"
	"regexp"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/config"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/model"
)

const (
	defaultTable     = "feature_rows"
	defaultBatchSize = 10000
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS %s (
    Seq     UInt64,
    Label   LowCardinality(String),
    Length  UInt16,
    Payload Array(UInt8)
) ENGINE = MergeTree()
ORDER BY (Label, Seq);
`

func init() {
	Register("clickhouse", func(def config.SinkDef, pipeline config.PipelineConfig, log logrus.FieldLogger) (model.Sink, error) {
		return NewClickHouseSink(def.ClickHouse, pipeline.FeatureWidth, log)
	})
}

// ClickHouseSink batches feature rows into a ClickHouse table.
type ClickHouseSink struct {
	conn      driver.Conn
	table     string
	width     int
	batchSize int
	batch     driver.Batch
	pending   int
	seq       uint64
	log       logrus.FieldLogger
}

// NewClickHouseSink connects to ClickHouse and ensures the table exists.
func NewClickHouseSink(cfg config.ClickHouseConfig, width int, log logrus.FieldLogger) (*ClickHouseSink, error) {
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid clickhouse table name '%s'", table)
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	if err := conn.Exec(context.Background(), fmt.Sprintf(createTableStatement, table)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.WithField("table", table).Info("Connected to ClickHouse and ensured table exists.")

	return &ClickHouseSink{
		conn:      conn,
		table:     table,
		width:     width,
		batchSize: batchSize,
		log:       log,
	}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// columns converts a row into the values appended to a batch.
func columns(seq uint64, row model.FeatureRow, width int) []interface{} {
	payload := row.Bytes
	if len(payload) > width {
		payload = payload[:width]
	}
	return []interface{}{seq, row.Label, uint16(len(payload)), []uint8(payload)}
}

// WriteRow appends row to the current batch, sending it once full.
func (s *ClickHouseSink) WriteRow(row model.FeatureRow) error {
	if s.batch == nil {
		batch, err := s.conn.PrepareBatch(context.Background(), "INSERT INTO "+s.table)
		if err != nil {
			return fmt.Errorf("failed to prepare batch: %w", err)
		}
		s.batch = batch
	}
	if err := s.batch.Append(columns(s.seq, row, s.width)...); err != nil {
		return fmt.Errorf("failed to append row to batch: %w", err)
	}
	s.seq++
	s.pending++
	if s.pending >= s.batchSize {
		return s.send()
	}
	return nil
}

func (s *ClickHouseSink) send() error {
	if s.batch == nil || s.pending == 0 {
		return nil
	}
	if err := s.batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	s.log.WithFields(logrus.Fields{"table": s.table, "rows": s.pending}).Debug("Wrote batch to ClickHouse.")
	s.batch = nil
	s.pending = 0
	return nil
}

// Close sends the remaining rows and closes the connection.
func (s *ClickHouseSink) Close() error {
	if err := s.send(); err != nil {
		s.conn.Close()
		return err
	}
	return s.conn.Close()
}

// Abort drops the pending batch and closes the connection.
func (s *ClickHouseSink) Abort() error {
	if s.batch != nil {
		s.batch.Abort()
	}
	return s.conn.Close()
}

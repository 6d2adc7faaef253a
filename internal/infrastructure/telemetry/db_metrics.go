package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBMetrics records query latency and connection pool usage.
type DBMetrics struct {
	logger *zap.Logger

	queryDuration *Histogram
	queryErrors   *Counter
	poolConns     *Gauge

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewDBMetrics creates the database metric instruments on meter.
func NewDBMetrics(meter metric.Meter, logger *zap.Logger) (*DBMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &DBMetrics{logger: logger, stopCh: make(chan struct{})}
	var err error
	if m.queryDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database statement duration",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.queryErrors, err = NewCounter(meter, "db_query_errors_total", "Failed database statements", "{errors}"); err != nil {
		return nil, err
	}
	if m.poolConns, err = NewGauge(meter, "db_pool_connections", "Connection pool usage by state", "{connections}"); err != nil {
		return nil, err
	}
	return m, nil
}

type metricsStartKey struct{}

// Register installs timing callbacks on every gorm processor.
func (m *DBMetrics) Register(db *gorm.DB) error {
	cb := db.Callback()
	type reg struct {
		op  string
		err error
	}
	// operation is empty for row/raw so it is parsed from the SQL text
	regs := []reg{
		{"insert", cb.Create().Before("gorm:create").Register("metrics:before_create", m.before)},
		{"select", cb.Query().Before("gorm:query").Register("metrics:before_query", m.before)},
		{"update", cb.Update().Before("gorm:update").Register("metrics:before_update", m.before)},
		{"delete", cb.Delete().Before("gorm:delete").Register("metrics:before_delete", m.before)},
		{"row", cb.Row().Before("gorm:row").Register("metrics:before_row", m.before)},
		{"raw", cb.Raw().Before("gorm:raw").Register("metrics:before_raw", m.before)},
		{"insert", cb.Create().After("gorm:create").Register("metrics:after_create", m.after("insert"))},
		{"select", cb.Query().After("gorm:query").Register("metrics:after_query", m.after("select"))},
		{"update", cb.Update().After("gorm:update").Register("metrics:after_update", m.after("update"))},
		{"delete", cb.Delete().After("gorm:delete").Register("metrics:after_delete", m.after("delete"))},
		{"row", cb.Row().After("gorm:row").Register("metrics:after_row", m.after(""))},
		{"raw", cb.Raw().After("gorm:raw").Register("metrics:after_raw", m.after(""))},
	}
	for _, r := range regs {
		if r.err != nil {
			return fmt.Errorf("register %s metrics callback: %w", r.op, r.err)
		}
	}
	return nil
}

func (m *DBMetrics) before(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, metricsStartKey{}, time.Now())
	}
}

func (m *DBMetrics) after(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			return
		}
		start, ok := ctx.Value(metricsStartKey{}).(time.Time)
		if !ok {
			return
		}
		op := operation
		if op == "" {
			op = detectOperation(db.Statement.SQL.String())
		}
		m.RecordQuery(ctx, op, db.Statement.Table, time.Since(start), db.Error)
	}
}

// RecordQuery records one statement. Record-not-found is not an error.
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, d time.Duration, err error) {
	m.queryDuration.RecordDuration(ctx, d, AttrDBOperation.String(operation), AttrDBTable.String(table))
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		m.queryErrors.Inc(ctx, AttrDBOperation.String(operation), AttrDBTable.String(table))
	}
}

// StartPoolStatsCollection samples sqlDB pool statistics every interval until Stop.
func (m *DBMetrics) StartPoolStatsCollection(ctx context.Context, sqlDB *sql.DB, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			m.CollectPoolStats(ctx, sqlDB)
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
			}
		}
	}()
}

// CollectPoolStats records the current pool statistics once.
func (m *DBMetrics) CollectPoolStats(ctx context.Context, sqlDB *sql.DB) {
	stats := sqlDB.Stats()
	m.poolConns.Record(ctx, int64(stats.InUse), AttrDBPoolState.String("in_use"))
	m.poolConns.Record(ctx, int64(stats.Idle), AttrDBPoolState.String("idle"))
	m.poolConns.Record(ctx, int64(stats.MaxOpenConnections), AttrDBPoolState.String("max"))
}

// Stop ends pool stats collection. Safe to call more than once.
func (m *DBMetrics) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func detectOperation(sqlText string) string {
	fields := strings.Fields(sqlText)
	if len(fields) == 0 {
		return "other"
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH":
		return "select"
	case "INSERT":
		return "insert"
	case "UPDATE":
		return "update"
	case "DELETE":
		return "delete"
	default:
		return "other"
	}
}

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool          // include bound variables in spans (dev only)
	SlowQueryThresh time.Duration // default 200ms
	DBSystem        string        // "postgresql" or "sqlite"
}

// DefaultDBTracingConfig returns tracing disabled with a 200ms slow threshold.
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "postgresql",
	}
}

// DBTracingPlugin installs otelgorm and annotates its spans with row counts
// and slow-query markers.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin creates a new database tracing plugin.
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}
	return &DBTracingPlugin{config: cfg, logger: logger}
}

type queryStartKey struct{}

// Register installs otelgorm and the timing callbacks on db.
func (p *DBTracingPlugin) Register(db *gorm.DB) error {
	if !p.config.Enabled {
		p.logger.Debug("Database tracing disabled")
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBSystem)}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	cb := db.Callback()
	registrations := []struct {
		name string
		err  error
	}{
		{"create:before", cb.Create().Before("gorm:create").Register("otel_timing:before_create", markQueryStart)},
		{"query:before", cb.Query().Before("gorm:query").Register("otel_timing:before_query", markQueryStart)},
		{"update:before", cb.Update().Before("gorm:update").Register("otel_timing:before_update", markQueryStart)},
		{"delete:before", cb.Delete().Before("gorm:delete").Register("otel_timing:before_delete", markQueryStart)},
		{"row:before", cb.Row().Before("gorm:row").Register("otel_timing:before_row", markQueryStart)},
		{"raw:before", cb.Raw().Before("gorm:raw").Register("otel_timing:before_raw", markQueryStart)},
		{"create:after", cb.Create().After("gorm:create").Register("otel_timing:after_create", p.annotate)},
		{"query:after", cb.Query().After("gorm:query").Register("otel_timing:after_query", p.annotate)},
		{"update:after", cb.Update().After("gorm:update").Register("otel_timing:after_update", p.annotate)},
		{"delete:after", cb.Delete().After("gorm:delete").Register("otel_timing:after_delete", p.annotate)},
		{"row:after", cb.Row().After("gorm:row").Register("otel_timing:after_row", p.annotate)},
		{"raw:after", cb.Raw().After("gorm:raw").Register("otel_timing:after_raw", p.annotate)},
	}
	for _, r := range registrations {
		if r.err != nil {
			return fmt.Errorf("register %s callback: %w", r.name, r.err)
		}
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
		zap.String("db_system", p.config.DBSystem),
	)
	return nil
}

func markQueryStart(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
	}
}

// annotate runs after each statement and decorates the current span
func (p *DBTracingPlugin) annotate(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	if start, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		if elapsed := time.Since(start); elapsed > p.config.SlowQueryThresh {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
		}
	}
}

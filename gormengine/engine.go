// Package gormengine runs migrations with gorm on PostgreSQL. Every tenant of a
// multi-tenant unit gets its own schema named after the tenant; the history
// table lives next to the tenant's tables.
package gormengine

import (
	"context"
	"time"

	mt "github.com/Maksumys/mt-migrator"
	"github.com/joomcode/errorx"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Option func(*Engine)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithSlowThreshold sets the duration above which gorm reports slow statements.
func WithSlowThreshold(threshold time.Duration) Option {
	return func(e *Engine) {
		e.slowThreshold = threshold
	}
}

type Engine struct {
	logger        logrus.FieldLogger
	slowThreshold time.Duration
}

func New(opts ...Option) *Engine {
	engine := &Engine{
		logger:        logrus.StandardLogger(),
		slowThreshold: time.Second,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// Configure wraps the target's pooled connection in a gorm session. No statement
// is sent to the database until the runner is used.
func (e *Engine) Configure(_ context.Context, opts mt.RunnerOptions) (mt.Runner, error) {
	if opts.DataSource == nil || opts.DataSource.DB == nil {
		return nil, errorx.IllegalArgument.New("no connection available for %s", opts.Target)
	}

	logger := opts.Logger
	if logger == nil {
		logger = e.logger.WithField("target", opts.Target.String())
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: opts.DataSource.DB}), &gorm.Config{
		DisableAutomaticPing: true,
		Logger: gormlogger.New(logger, gormlogger.Config{
			SlowThreshold:             e.slowThreshold,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, errorx.Decorate(err, "unable to open gorm session for %s", opts.Target)
	}

	schema := ""
	if opts.Target.Tenant != "" && opts.Target.Tenant != mt.DefaultTenant {
		schema = opts.Target.Tenant
	}

	return &Runner{
		db:     db,
		opts:   opts,
		schema: schema,
		logger: logger,
	}, nil
}

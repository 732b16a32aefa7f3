// Package migrateengine runs migrations with golang-migrate on SQLite or
// PostgreSQL. Only integer-versioned scripts are applied.
//
// On PostgreSQL every tenant other than the default one gets its own schema,
// created on first use; scripts, the history table and clean are confined to it.
// SQLite has no schemas: tenants share the database, each with its own history
// table, and clean drops only the tables and views the target's scripts create.
package migrateengine

import (
	"context"
	"fmt"

	mt "github.com/Maksumys/mt-migrator"
	"github.com/joomcode/errorx"
	"github.com/sirupsen/logrus"
)

const (
	DriverSQLite   = "sqlite"
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
)

type Option func(*Engine)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithVerbose forwards golang-migrate's verbose output to the debug level.
func WithVerbose(verbose bool) Option {
	return func(e *Engine) {
		e.verbose = verbose
	}
}

type Engine struct {
	logger  logrus.FieldLogger
	verbose bool
}

func New(opts ...Option) *Engine {
	engine := &Engine{
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// Configure checks the target's driver. The source and the database driver are
// created on first use.
func (e *Engine) Configure(_ context.Context, opts mt.RunnerOptions) (mt.Runner, error) {
	if opts.DataSource == nil || opts.DataSource.DB == nil {
		return nil, errorx.IllegalArgument.New("no connection available for %s", opts.Target)
	}

	switch opts.DataSource.Driver {
	case DriverSQLite, DriverPgx, DriverPostgres:
	default:
		return nil, errorx.UnsupportedOperation.New("driver %q of data source %s is not supported",
			opts.DataSource.Driver, opts.DataSource.Name)
	}

	logger := opts.Logger
	if logger == nil {
		logger = e.logger.WithField("target", opts.Target.String())
	}

	runner := &Runner{
		opts:    opts,
		table:   opts.Runtime.Table,
		logger:  logger,
		verbose: e.verbose,
	}
	if tenant := opts.Target.Tenant; tenant != "" && tenant != mt.DefaultTenant {
		if opts.DataSource.Driver == DriverSQLite {
			runner.table = fmt.Sprintf("%s_%s", opts.Runtime.Table, tenant)
		} else {
			runner.schema = tenant
		}
	}
	return runner, nil
}

// migrateLogger adapts logrus to golang-migrate's logger.
type migrateLogger struct {
	logger  logrus.FieldLogger
	verbose bool
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debugf(format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return l.verbose
}

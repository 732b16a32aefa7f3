package migrateengine

import (
	"context"
	"database/sql"
	sqldriver "database/sql/driver"
	"errors"
	"io/fs"
	"strconv"
	"strings"
	"sync"

	mt "github.com/Maksumys/mt-migrator"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/jackc/pgx/v5"
	"github.com/joomcode/errorx"
	"github.com/sirupsen/logrus"
)

// Runner builds a golang-migrate instance per command. On PostgreSQL the
// command holds one pooled connection until it returns; the instance is never
// closed on SQLite since its driver would close the shared pool.
type Runner struct {
	opts    mt.RunnerOptions
	table   string
	schema  string
	logger  logrus.FieldLogger
	verbose bool

	mutex sync.Mutex
}

// session is a golang-migrate instance with the source it was built from.
type session struct {
	instance *migrate.Migrate
	source   source.Driver
	scripts  []script
}

// version reports the recorded version; exists is false for an empty history.
func (s *session) version() (version uint, dirty bool, exists bool, err error) {
	version, dirty, err = s.instance.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, err
	}
	return version, dirty, true, nil
}

func (s *session) known(version uint) bool {
	for _, migration := range s.scripts {
		if migration.version == version {
			return true
		}
	}
	return false
}

// withSession runs fn against a fresh instance and releases its connection
// when fn returns. Commands of one runner are serialized.
func (r *Runner) withSession(ctx context.Context, fn func(s *session) error) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	src, scripts, err := buildSource(r.opts, r.logger)
	if err != nil {
		return err
	}
	driver, release, err := r.databaseDriver(ctx)
	if err != nil {
		return errorx.Decorate(err, "unable to open migration history of %s", r.opts.Target)
	}
	defer release()

	instance, err := migrate.NewWithInstance("iofs", src, r.opts.DataSource.Driver, driver)
	if err != nil {
		return errorx.Decorate(err, "unable to create migrator for %s", r.opts.Target)
	}
	instance.Log = &migrateLogger{logger: r.logger, verbose: r.verbose}

	return fn(&session{instance: instance, source: src, scripts: scripts})
}

func (r *Runner) databaseDriver(ctx context.Context) (database.Driver, func(), error) {
	if r.opts.DataSource.Driver == DriverSQLite {
		driver, err := sqlite.WithInstance(r.opts.DataSource.DB, &sqlite.Config{MigrationsTable: r.table})
		return driver, func() {}, err
	}

	conn, err := r.opts.DataSource.DB.Conn(ctx)
	if err != nil {
		return nil, nil, err
	}
	release := func() { r.releaseConn(ctx, conn) }

	if r.schema != "" {
		schema := pgx.Identifier{r.schema}.Sanitize()
		if _, err := conn.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
			release()
			return nil, nil, err
		}
		if _, err := conn.ExecContext(ctx, "SET search_path TO "+schema); err != nil {
			release()
			return nil, nil, err
		}
	}

	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{
		MigrationsTable: r.table,
		SchemaName:      r.schema,
	})
	if err != nil {
		release()
		return nil, nil, err
	}
	return driver, release, nil
}

// releaseConn hands conn back to the pool with its search_path restored. A
// connection that cannot be restored is discarded instead.
func (r *Runner) releaseConn(ctx context.Context, conn *sql.Conn) {
	if r.schema != "" {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), "RESET search_path"); err != nil {
			r.logger.WithError(err).Warn("unable to reset search_path, discarding connection")
			_ = conn.Raw(func(any) error { return sqldriver.ErrBadConn })
			return
		}
	}
	if err := conn.Close(); err != nil {
		r.logger.WithError(err).Warn("unable to release migration connection")
	}
}

func (r *Runner) callback(ctx context.Context, event mt.Event, version string) error {
	return mt.InvokeCallbacks(ctx, r.opts.Callbacks, event, mt.CallbackContext{
		Target:  r.opts.Target,
		Version: version,
	})
}

func (r *Runner) HistoryExists(ctx context.Context) (bool, error) {
	var exists bool
	err := r.withSession(ctx, func(s *session) (err error) {
		_, _, exists, err = s.version()
		return err
	})
	return exists, err
}

// Clean drops the current schema's tables on PostgreSQL and the objects created
// by the target's scripts on SQLite, history table included.
func (r *Runner) Clean(ctx context.Context) error {
	if r.opts.Runtime.CleanDisabled {
		return mt.CleanDisabled.New("clean is disabled for %s", r.opts.Target)
	}
	if err := r.callback(ctx, mt.BeforeClean, ""); err != nil {
		return err
	}

	err := r.withSession(ctx, func(s *session) error {
		if r.opts.DataSource.Driver == DriverSQLite {
			return r.dropCreated(ctx, s.scripts)
		}
		return s.instance.Drop()
	})
	if err != nil {
		return errorx.Decorate(err, "unable to clean %s", r.opts.Target)
	}

	return r.callback(ctx, mt.AfterClean, "")
}

// Validate fails on a dirty history or, unless missing migrations are ignored,
// on a current version no local script provides.
func (r *Runner) Validate(ctx context.Context) error {
	if err := r.callback(ctx, mt.BeforeValidate, ""); err != nil {
		return err
	}

	err := r.withSession(ctx, func(s *session) error {
		version, dirty, exists, err := s.version()
		if err != nil || !exists {
			return err
		}
		if dirty {
			return mt.ValidationFailed.New("migration %d failed for %s", version, r.opts.Target)
		}
		if !r.opts.Runtime.IgnoreMissingMigrations && !s.known(version) && version != r.baselineVersion() {
			return mt.ValidationFailed.New("applied migration %d not resolved locally for %s", version, r.opts.Target)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return r.callback(ctx, mt.AfterValidate, "")
}

func (r *Runner) baselineVersion() uint {
	version, err := strconv.ParseUint(r.opts.Runtime.BaselineVersion, 10, 64)
	if err != nil {
		return 0
	}
	return uint(version)
}

func (r *Runner) Baseline(ctx context.Context) error {
	raw := r.opts.Runtime.BaselineVersion
	if err := r.callback(ctx, mt.BeforeBaseline, raw); err != nil {
		return err
	}

	version, err := strconv.Atoi(raw)
	if err != nil || version < 0 {
		return mt.ConfigurationError.New("invalid baseline version %q for %s: this engine only accepts integer versions",
			raw, r.opts.Target)
	}

	err = r.withSession(ctx, func(s *session) error {
		_, _, exists, err := s.version()
		if err != nil {
			return err
		}
		if exists {
			return errorx.IllegalState.New("unable to baseline %s: history table %s already contains migrations",
				r.opts.Target, r.table)
		}
		if err := s.instance.Force(version); err != nil {
			return errorx.Decorate(err, "unable to baseline %s", r.opts.Target)
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.logger.Info("Baselined at version ", version)

	return r.callback(ctx, mt.AfterBaseline, raw)
}

// Repair moves a dirty history back to the version preceding the failed migration.
func (r *Runner) Repair(ctx context.Context) error {
	if err := r.callback(ctx, mt.BeforeRepair, ""); err != nil {
		return err
	}

	err := r.withSession(ctx, func(s *session) error {
		version, dirty, _, err := s.version()
		if err != nil || !dirty {
			return err
		}
		previous := -1
		prev, err := s.source.Prev(version)
		switch {
		case err == nil:
			previous = int(prev)
		case !errors.Is(err, fs.ErrNotExist):
			return errorx.Decorate(err, "unable to repair %s", r.opts.Target)
		}
		if err := s.instance.Force(previous); err != nil {
			return errorx.Decorate(err, "unable to repair %s", r.opts.Target)
		}
		r.logger.Info("Removed failed migration ", version)
		return nil
	})
	if err != nil {
		return err
	}

	return r.callback(ctx, mt.AfterRepair, "")
}

func (r *Runner) Migrate(ctx context.Context) error {
	if err := r.callback(ctx, mt.BeforeMigrate, ""); err != nil {
		return err
	}

	target := strings.TrimSpace(r.opts.Runtime.TargetVersion)
	latest := target == "" || strings.EqualFold(target, "latest")
	var version uint64
	if !latest {
		var err error
		version, err = strconv.ParseUint(target, 10, 64)
		if err != nil {
			return mt.ConfigurationError.Wrap(err, "invalid target version for %s", r.opts.Target)
		}
	}

	err := r.withSession(ctx, func(s *session) error {
		var err error
		if latest {
			err = s.instance.Up()
		} else {
			err = s.instance.Migrate(uint(version))
		}
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return err
	})
	if err != nil {
		if cbErr := r.callback(ctx, mt.AfterMigrateError, ""); cbErr != nil {
			r.logger.WithError(cbErr).Error("afterMigrateError callback failed")
		}
		return errorx.Decorate(err, "migration failed for %s", r.opts.Target)
	}

	return r.callback(ctx, mt.AfterMigrate, "")
}

func (r *Runner) Info(ctx context.Context) (mt.Info, error) {
	info := mt.Info{Target: r.opts.Target}

	err := r.withSession(ctx, func(s *session) error {
		version, dirty, exists, err := s.version()
		if err != nil {
			return err
		}
		if !exists {
			info.Pending = len(s.scripts)
			return nil
		}

		info.CurrentVersion = strconv.FormatUint(uint64(version), 10)
		info.Dirty = dirty
		for _, migration := range s.scripts {
			switch {
			case migration.version < version:
				info.Applied++
			case migration.version == version && dirty:
				info.Failed++
			case migration.version == version:
				info.Applied++
			default:
				info.Pending++
			}
		}
		return nil
	})
	return info, err
}

package gormengine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	mt "github.com/Maksumys/mt-migrator"
	"github.com/Maksumys/mt-migrator/internal/models"
	"github.com/Maksumys/mt-migrator/internal/repository"
	"github.com/joomcode/errorx"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Runner executes commands for one target.
type Runner struct {
	db     *gorm.DB
	opts   mt.RunnerOptions
	schema string
	logger logrus.FieldLogger
}

func (r *Runner) table() string {
	if r.schema != "" {
		return r.schema + "." + r.opts.Runtime.Table
	}
	return r.opts.Runtime.Table
}

func (r *Runner) conn(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *Runner) callback(ctx context.Context, event mt.Event, version string) error {
	return mt.InvokeCallbacks(ctx, r.opts.Callbacks, event, mt.CallbackContext{
		Target:  r.opts.Target,
		Version: version,
	})
}

func (r *Runner) HistoryExists(ctx context.Context) (bool, error) {
	exists, err := repository.HasHistoryTable(r.conn(ctx), r.table())
	if err != nil {
		return false, errorx.Decorate(err, "unable to look up history table of %s", r.opts.Target)
	}
	return exists, nil
}

// Clean drops the tenant schema, or every table of the current schema for the default tenant.
func (r *Runner) Clean(ctx context.Context) error {
	if r.opts.Runtime.CleanDisabled {
		return mt.CleanDisabled.New("clean is disabled for %s", r.opts.Target)
	}
	if err := r.callback(ctx, mt.BeforeClean, ""); err != nil {
		return err
	}

	db := r.conn(ctx)
	if r.schema != "" {
		r.logger.Info("Dropping tenant schema")
		if err := repository.DropSchema(db, r.schema); err != nil {
			return err
		}
	} else {
		tables, err := db.Migrator().GetTables()
		if err != nil {
			return err
		}
		for _, table := range tables {
			r.logger.Info("Dropping table ", table)
			if err := repository.DropTable(db, table); err != nil {
				return err
			}
		}
	}

	return r.callback(ctx, mt.AfterClean, "")
}

// Validate fails when the history holds failed migrations, or applied migrations
// that are missing locally or whose checksum changed.
func (r *Runner) Validate(ctx context.Context) error {
	if err := r.callback(ctx, mt.BeforeValidate, ""); err != nil {
		return err
	}

	resolved, err := resolveMigrations(r.opts)
	if err != nil {
		return err
	}

	db := r.conn(ctx)
	exists, err := repository.HasHistoryTable(db, r.table())
	if err != nil {
		return err
	}
	if exists {
		savedMigrations, err := repository.GetMigrationsSorted(db, r.table(), repository.OrderASC)
		if err != nil {
			return err
		}
		if problems := r.validationProblems(resolved, savedMigrations); len(problems) > 0 {
			return mt.ValidationFailed.New("validation failed for %s: %s", r.opts.Target, strings.Join(problems, "; "))
		}
	}

	return r.callback(ctx, mt.AfterValidate, "")
}

func (r *Runner) validationProblems(resolved []Migration, savedMigrations []models.MigrationModel) []string {
	byVersion := make(map[models.Version]Migration, len(resolved))
	for _, migration := range resolved {
		if migration.MigrationType == models.TypeVersioned {
			byVersion[migration.Version] = migration
		}
	}

	var problems []string
	for _, saved := range savedMigrations {
		if saved.State == models.StateFailure {
			problems = append(problems, fmt.Sprintf("migration %s (%s) failed", saved.Version, saved.Description))
			continue
		}
		if saved.Type != models.TypeVersioned {
			continue
		}
		migration, ok := byVersion[saved.Version]
		if !ok {
			if !r.opts.Runtime.IgnoreMissingMigrations {
				problems = append(problems, fmt.Sprintf("applied migration %s not resolved locally", saved.Version))
			}
			continue
		}
		if migration.Checksum != saved.Checksum {
			problems = append(problems, fmt.Sprintf("checksum mismatch for migration %s", saved.Version))
		}
	}
	return problems
}

// Baseline records the configured baseline version in an empty history.
func (r *Runner) Baseline(ctx context.Context) error {
	if err := r.callback(ctx, mt.BeforeBaseline, r.opts.Runtime.BaselineVersion); err != nil {
		return err
	}

	version, err := models.ParseVersion(r.opts.Runtime.BaselineVersion)
	if err != nil {
		return mt.ConfigurationError.Wrap(err, "invalid baseline version for %s", r.opts.Target)
	}

	db := r.conn(ctx)
	if err := r.initSystemTables(db); err != nil {
		return err
	}
	savedMigrations, err := repository.GetMigrationsSorted(db, r.table(), repository.OrderASC)
	if err != nil {
		return err
	}
	if len(savedMigrations) > 0 {
		return errorx.IllegalState.New("unable to baseline %s: history table %s already contains migrations",
			r.opts.Target, r.table())
	}

	_, err = repository.SaveMigration(db, r.table(), repository.SaveMigrationRequest{
		Rank:        1,
		Type:        models.TypeBaseline,
		Version:     version,
		Description: r.opts.Runtime.BaselineDescription,
		Script:      r.opts.Runtime.BaselineDescription,
		State:       models.StateSuccess,
	})
	if err != nil {
		return err
	}
	r.logger.Info("Baselined at version ", version)

	return r.callback(ctx, mt.AfterBaseline, r.opts.Runtime.BaselineVersion)
}

// Repair removes failed entries and realigns checksums and descriptions with the
// migrations resolved locally.
func (r *Runner) Repair(ctx context.Context) error {
	if err := r.callback(ctx, mt.BeforeRepair, ""); err != nil {
		return err
	}

	db := r.conn(ctx)
	exists, err := repository.HasHistoryTable(db, r.table())
	if err != nil {
		return err
	}
	if exists {
		removed, err := repository.DeleteFailed(db, r.table())
		if err != nil {
			return err
		}
		if removed > 0 {
			r.logger.Info(fmt.Sprintf("Removed %d failed migration entries", removed))
		}

		resolved, err := resolveMigrations(r.opts)
		if err != nil {
			return err
		}
		if err := r.realign(db, resolved); err != nil {
			return err
		}
	}

	return r.callback(ctx, mt.AfterRepair, "")
}

func (r *Runner) realign(db *gorm.DB, resolved []Migration) error {
	savedMigrations, err := repository.GetMigrationsSorted(db, r.table(), repository.OrderASC)
	if err != nil {
		return err
	}
	byVersion := make(map[models.Version]Migration, len(resolved))
	for _, migration := range resolved {
		if migration.MigrationType == models.TypeVersioned {
			byVersion[migration.Version] = migration
		}
	}
	for i := range savedMigrations {
		saved := &savedMigrations[i]
		if saved.Type != models.TypeVersioned {
			continue
		}
		migration, ok := byVersion[saved.Version]
		if !ok || (migration.Checksum == saved.Checksum && migration.Description == saved.Description) {
			continue
		}
		if err := repository.UpdateChecksum(db, r.table(), saved, migration.Checksum, migration.Description); err != nil {
			return err
		}
	}
	return nil
}

// Migrate applies pending versioned migrations in order, then changed repeatable
// ones. Every migration runs in its own transaction and is recorded whether it
// succeeds or not; the first failure stops the run.
func (r *Runner) Migrate(ctx context.Context) error {
	r.logger.Info("Preparing migrations execution")

	resolved, err := resolveMigrations(r.opts)
	if err != nil {
		return err
	}
	targetVersion, err := r.targetVersion()
	if err != nil {
		return err
	}
	if err := r.callback(ctx, mt.BeforeMigrate, ""); err != nil {
		return err
	}

	db := r.conn(ctx)
	if err := r.initSystemTables(db); err != nil {
		return err
	}
	savedMigrations, err := repository.GetMigrationsSorted(db, r.table(), repository.OrderASC)
	if err != nil {
		return err
	}

	planner := migratePlanner{
		logger:          r.logger,
		resolved:        resolved,
		savedMigrations: savedMigrations,
		targetVersion:   targetVersion,
	}
	plan := planner.MakePlan()
	rank := repository.MaxRank(savedMigrations)

	for !plan.IsEmpty() {
		migration := plan.PopFirst()
		rank++

		if err := r.callback(ctx, mt.BeforeEachMigrate, migration.Version.String()); err != nil {
			return err
		}

		started := time.Now()
		execErr := r.executeMigration(ctx, migration)
		state := models.StateSuccess
		if execErr != nil {
			state = models.StateFailure
		}

		_, saveErr := repository.SaveMigration(db, r.table(), repository.SaveMigrationRequest{
			Rank:          rank,
			Type:          migration.MigrationType,
			Version:       migration.Version,
			Description:   migration.Description,
			Script:        migration.Script,
			Checksum:      migration.Checksum,
			State:         state,
			ExecutionTime: time.Since(started).Milliseconds(),
		})

		if execErr != nil {
			if cbErr := r.callback(ctx, mt.AfterMigrateError, migration.Version.String()); cbErr != nil {
				r.logger.WithError(cbErr).Error("afterMigrateError callback failed")
			}
			return errorx.Decorate(execErr, "migration %s (%s) failed for %s",
				migration.Version, migration.Description, r.opts.Target)
		}
		if saveErr != nil {
			return saveErr
		}

		if err := r.callback(ctx, mt.AfterEachMigrate, migration.Version.String()); err != nil {
			return err
		}
	}

	r.logger.Info("Migrations completed, current schema version is up to date")
	return r.callback(ctx, mt.AfterMigrate, "")
}

func (r *Runner) executeMigration(ctx context.Context, migration Migration) error {
	r.logger.WithFields(logrus.Fields{
		"type":    migration.MigrationType,
		"version": migration.Version.String(),
	}).Info("Executing migration: ", migration.Description)

	return r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if r.schema != "" {
			if err := tx.Exec("SET LOCAL search_path TO ?", clause.Table{Name: r.schema}).Error; err != nil {
				return err
			}
		}

		if migration.Code != nil {
			sqlTx, ok := tx.Statement.ConnPool.(*sql.Tx)
			if !ok {
				return errorx.IllegalState.New("code migration %s requires a *sql.Tx", migration.Script)
			}
			return migration.Code.Up(ctx, sqlTx)
		}

		_, err := tx.Statement.ConnPool.ExecContext(ctx, migration.SQL)
		return err
	})
}

func (r *Runner) Info(ctx context.Context) (mt.Info, error) {
	info := mt.Info{Target: r.opts.Target}

	resolved, err := resolveMigrations(r.opts)
	if err != nil {
		return info, err
	}
	targetVersion, err := r.targetVersion()
	if err != nil {
		return info, err
	}

	db := r.conn(ctx)
	var savedMigrations []models.MigrationModel
	exists, err := repository.HasHistoryTable(db, r.table())
	if err != nil {
		return info, err
	}
	if exists {
		savedMigrations, err = repository.GetMigrationsSorted(db, r.table(), repository.OrderASC)
		if err != nil {
			return info, err
		}
	}

	for _, saved := range savedMigrations {
		switch saved.State {
		case models.StateSuccess:
			info.Applied++
		case models.StateFailure:
			info.Failed++
		}
	}
	if current := currentVersion(savedMigrations); current != nil {
		info.CurrentVersion = current.String()
	}

	planner := migratePlanner{
		logger:          r.logger,
		resolved:        resolved,
		savedMigrations: savedMigrations,
		targetVersion:   targetVersion,
	}
	info.Pending = planner.MakePlan().Len()
	info.Dirty = info.Failed > 0
	return info, nil
}

func (r *Runner) initSystemTables(db *gorm.DB) error {
	if r.schema != "" {
		if err := repository.CreateSchema(db, r.schema); err != nil {
			return err
		}
	}
	exists, err := repository.HasHistoryTable(db, r.table())
	if err != nil {
		return err
	}
	if !exists {
		r.logger.Info("History table not found, creating ", r.table())
		return repository.CreateHistoryTable(db, r.table())
	}
	return nil
}

func (r *Runner) targetVersion() (*models.Version, error) {
	raw := r.opts.Runtime.TargetVersion
	if raw == "" || strings.EqualFold(raw, "latest") {
		return nil, nil
	}
	version, err := models.ParseVersion(raw)
	if err != nil {
		return nil, mt.ConfigurationError.Wrap(err, "invalid target version for %s", r.opts.Target)
	}
	return &version, nil
}

package mt_migrator

import (
	"context"
	"database/sql"

	"github.com/sirupsen/logrus"
)

// DataSource is a named, pooled connection handed out by a DataSourceProvider.
type DataSource struct {
	Name   string
	Driver string
	DB     *sql.DB
}

type DataSourceProvider interface {
	// DataSource fails with DataSourceNotConfigured when name is unknown.
	DataSource(name string) (*DataSource, error)
	ActiveDataSourceNames() []string
}

// Engine materializes runners. Configure must not touch the database.
type Engine interface {
	Configure(ctx context.Context, opts RunnerOptions) (Runner, error)
}

// Runner executes migration commands against a single target.
type Runner interface {
	Clean(ctx context.Context) error
	Validate(ctx context.Context) error
	Baseline(ctx context.Context) error
	Repair(ctx context.Context) error
	Migrate(ctx context.Context) error
	Info(ctx context.Context) (Info, error)
	HistoryExists(ctx context.Context) (bool, error)
}

// RunnerOptions is everything an engine needs to build a runner. Customizers
// receive it before the engine does.
type RunnerOptions struct {
	Target           Target
	DataSource       *DataSource
	Runtime          RuntimeConfig
	Build            BuildTimeConfig
	Callbacks        []Callback
	Locations        []string
	MigrationClasses []MigrationClassDescriptor
	Resources        ResourceReader
	Logger           logrus.FieldLogger
}

// Info is a point-in-time view of a target's migration history.
type Info struct {
	Target         Target
	CurrentVersion string
	Applied        int
	Pending        int
	Failed         int
	Dirty          bool
}

// ResourceReader reads discovered migration resources. List expands a
// filesystem-prefixed directory into the files below it.
type ResourceReader interface {
	ReadFile(location string) ([]byte, error)
	List(location string) ([]string, error)
}

// SQLGeneratorRegistry knows which units can produce their schema DDL without migrations.
type SQLGeneratorRegistry interface {
	HasGeneratorFor(unit string) bool
}

// SQLGenerators is a map-backed SQLGeneratorRegistry keyed by unit name.
type SQLGenerators map[string]func() string

func (g SQLGenerators) HasGeneratorFor(unit string) bool {
	_, ok := g[canonicalUnit(unit)]
	return ok
}

// TenantSupport lists the tenants whose schemas are initialized at startup.
type TenantSupport interface {
	TenantsToInitialize() []string
}

type TenantSupportFunc func() []string

func (f TenantSupportFunc) TenantsToInitialize() []string {
	return f()
}

// CodeMigration is a versioned migration written in Go.
type CodeMigration interface {
	Version() string
	Description() string
	Up(ctx context.Context, tx *sql.Tx) error
}

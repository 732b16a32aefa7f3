package mt_migrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/joomcode/errorx"
	"github.com/sirupsen/logrus"
)

// RegistryDeps are the collaborators a ContainerRegistry builds containers from.
type RegistryDeps struct {
	Snapshot    *Snapshot
	Config      Config
	DataSources DataSourceProvider
	Engine      Engine
	Generators  SQLGeneratorRegistry
	Customizers []CustomizerBinding
	Logger      logrus.FieldLogger
}

// ContainerRegistry lazily builds one container per target and hands the same
// container to every caller asking for that target.
type ContainerRegistry struct {
	deps   RegistryDeps
	logger logrus.FieldLogger

	mutex sync.Mutex
	cells map[Target]*containerCell
}

type containerCell struct {
	once      sync.Once
	container *Container
	err       error
}

func NewContainerRegistry(deps RegistryDeps) (*ContainerRegistry, error) {
	if deps.Snapshot == nil {
		return nil, errorx.IllegalArgument.New("container registry requires a snapshot")
	}
	if deps.Engine == nil {
		return nil, errorx.IllegalArgument.New("container registry requires a migration engine")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ContainerRegistry{
		deps:   deps,
		logger: logger,
		cells:  make(map[Target]*containerCell),
	}, nil
}

// GetOrCreate returns the container for target, building it on first access.
// Targets of single-tenant units are collapsed onto the default tenant whatever
// tenant the caller asked for. A failed construction is not cached: callers
// waiting on it share the error, later callers retry.
func (r *ContainerRegistry) GetOrCreate(ctx context.Context, target Target) (*Container, error) {
	runtime, build := r.deps.Config.Resolve(target.Unit)
	key := Target{Unit: canonicalUnit(target.Unit), Tenant: target.Tenant}
	if !build.MultiTenant {
		key.Tenant = DefaultTenant
	}

	r.mutex.Lock()
	cell, ok := r.cells[key]
	if !ok {
		cell = &containerCell{}
		r.cells[key] = cell
	}
	r.mutex.Unlock()

	cell.once.Do(func() {
		cell.container, cell.err = r.construct(ctx, key, runtime, build)
		if cell.err != nil {
			r.forget(key, cell)
		}
	})
	return cell.container, cell.err
}

// forget drops a failed cell so that the next request for key builds again.
func (r *ContainerRegistry) forget(key Target, cell *containerCell) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.cells[key] == cell {
		delete(r.cells, key)
	}
}

func (r *ContainerRegistry) construct(ctx context.Context, target Target, runtime RuntimeConfig, build BuildTimeConfig) (*Container, error) {
	unit := target.Unit
	dataSourceName := build.DataSourceName(unit)
	logger := r.logger.WithFields(logrus.Fields{
		"unit":        unit,
		"tenant":      target.Tenant,
		"data_source": dataSourceName,
	})

	dataSource, err := r.resolveDataSource(dataSourceName)
	if err != nil {
		if !errorx.IsOfType(err, DataSourceNotConfigured) {
			return nil, err
		}
		logger.WithError(err).Debug("data source not configured, registering unconfigured container")
		return newUnconfiguredContainer(target, dataSourceName, fmt.Sprintf(
			"Unable to find data source '%s' for migrations of unit '%s': %s",
			dataSourceName, unit, err.Error()), err), nil
	}

	if build.MultiTenant && !target.Qualified() {
		return nil, ConfigurationError.New(
			"runner for multi-tenant unit %s must be qualified with a tenant", unit)
	}

	opts := RunnerOptions{
		Target:           target,
		DataSource:       dataSource,
		Runtime:          cloneRuntime(runtime),
		Build:            cloneBuild(build),
		Callbacks:        r.deps.Snapshot.Callbacks(unit),
		Locations:        r.deps.Snapshot.LocationsFor(unit),
		MigrationClasses: r.deps.Snapshot.MigrationClasses(),
		Resources:        r.deps.Snapshot.Resources(),
		Logger:           logger,
	}
	for _, customizer := range MatchCustomizers(unit, r.deps.Customizers) {
		customizer.Customize(&opts)
	}

	runner, err := r.deps.Engine.Configure(ctx, opts)
	if err != nil {
		return nil, errorx.Decorate(err, "unable to configure migration runner for %s", target)
	}

	hasMigrations := r.deps.Snapshot.Facts().HasMigrations(unit)
	createPossible := !hasMigrations && r.deps.Generators != nil && r.deps.Generators.HasGeneratorFor(unit)

	logger.WithFields(logrus.Fields{
		"has_migrations":  hasMigrations,
		"create_possible": createPossible,
	}).Debug("migration container created")

	return &Container{
		target:              target,
		runner:              runner,
		dataSource:          dataSource,
		dataSourceName:      dataSourceName,
		baselineAtStart:     runtime.BaselineAtStart,
		cleanAtStart:        runtime.CleanAtStart,
		migrateAtStart:      runtime.MigrateAtStart,
		repairAtStart:       runtime.RepairAtStart,
		validateAtStart:     runtime.ValidateAtStart,
		multiTenancyEnabled: build.MultiTenant,
		hasMigrations:       hasMigrations,
		createPossible:      createPossible,
	}, nil
}

func (r *ContainerRegistry) resolveDataSource(name string) (*DataSource, error) {
	if r.deps.DataSources == nil {
		return nil, DataSourceNotConfigured.New("no data source provider registered")
	}
	dataSource, err := r.deps.DataSources.DataSource(name)
	if err != nil {
		return nil, err
	}
	if dataSource == nil {
		return nil, DataSourceNotConfigured.New("data source %s is not configured", name)
	}
	return dataSource, nil
}

func cloneRuntime(r RuntimeConfig) RuntimeConfig {
	if r.Placeholders != nil {
		placeholders := make(map[string]string, len(r.Placeholders))
		for k, v := range r.Placeholders {
			placeholders[k] = v
		}
		r.Placeholders = placeholders
	}
	if r.Active != nil {
		active := *r.Active
		r.Active = &active
	}
	return r
}

func cloneBuild(b BuildTimeConfig) BuildTimeConfig {
	b.Locations = append([]string(nil), b.Locations...)
	b.Callbacks = append([]string(nil), b.Callbacks...)
	b.SQLMigrationSuffixes = append([]string(nil), b.SQLMigrationSuffixes...)
	return b
}

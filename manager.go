package mt_migrator

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/joomcode/errorx"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// NewMigrationsManager creates the facade coordinating discovery, container
// materialization and start actions for every configured unit.
func NewMigrationsManager(opts ...ManagerOption) (*MigrationManager, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.ErrorLevel)

	manager := MigrationManager{
		logger:  logger,
		index:   NewTypeIndex(),
		tenants: make(map[string]TenantSupport),
	}

	for _, opt := range opts {
		opt(&manager)
	}

	if manager.engine == nil {
		return nil, errorx.IllegalArgument.New("a migration engine is required")
	}

	return &manager, nil
}

type MigrationManager struct {
	logger      logrus.FieldLogger
	config      Config
	roots       []afero.Fs
	index       *TypeIndex
	candidates  []TypeDescriptor
	dataSources DataSourceProvider
	engine      Engine
	generators  SQLGeneratorRegistry
	customizers []CustomizerBinding
	tenants     map[string]TenantSupport

	mutex     sync.Mutex
	snapshot  *Snapshot
	registry  *ContainerRegistry
	sequencer *Sequencer
}

// Prepare discovers migrations and resolves callbacks once. Configuration errors
// are reported here, before any container is built.
func (m *MigrationManager) Prepare() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.prepareLocked()
}

func (m *MigrationManager) prepareLocked() error {
	if m.snapshot != nil {
		return nil
	}

	catalog := NewCatalog(m.logger, m.roots...)
	snapshot, err := BuildSnapshot(m.config, catalog, m.index, m.candidates)
	if err != nil {
		return err
	}

	m.logger.WithFields(logrus.Fields{
		"with_migrations":    snapshot.Facts().WithMigrations(),
		"missing_migrations": snapshot.Facts().MissingMigrations(),
	}).Debug("migration resources discovered")

	registry, err := NewContainerRegistry(RegistryDeps{
		Snapshot:    snapshot,
		Config:      m.config,
		DataSources: m.dataSources,
		Engine:      m.engine,
		Generators:  m.generators,
		Customizers: m.customizers,
		Logger:      m.logger,
	})
	if err != nil {
		return err
	}

	m.snapshot = snapshot
	m.registry = registry
	m.sequencer = NewSequencer(registry, m.config, m.dataSources, m.tenants, m.logger)
	return nil
}

func (m *MigrationManager) prepared() (*Snapshot, *ContainerRegistry, *Sequencer, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.prepareLocked(); err != nil {
		return nil, nil, nil, err
	}
	return m.snapshot, m.registry, m.sequencer, nil
}

func (m *MigrationManager) Snapshot() (*Snapshot, error) {
	snapshot, _, _, err := m.prepared()
	return snapshot, err
}

// Container returns the memoized container of target.
func (m *MigrationManager) Container(ctx context.Context, target Target) (*Container, error) {
	_, registry, _, err := m.prepared()
	if err != nil {
		return nil, err
	}
	return registry.GetOrCreate(ctx, target)
}

// Runner returns the runner of target; it fails with UnconfiguredAccess when the
// target's data source is missing.
func (m *MigrationManager) Runner(ctx context.Context, target Target) (Runner, error) {
	container, err := m.Container(ctx, target)
	if err != nil {
		return nil, err
	}
	return container.Runner()
}

func (m *MigrationManager) StartActions(ctx context.Context, unit string) error {
	_, _, sequencer, err := m.prepared()
	if err != nil {
		return err
	}
	return sequencer.StartActions(ctx, unit)
}

// StartAll runs the start actions of every unit. A failing unit does not stop the others.
func (m *MigrationManager) StartAll(ctx context.Context) error {
	snapshot, _, sequencer, err := m.prepared()
	if err != nil {
		return err
	}

	var errs []error
	for _, unit := range snapshot.Units() {
		if err := sequencer.StartActions(ctx, unit); err != nil {
			errs = append(errs, errorx.Decorate(err, "start actions failed for unit %s", unit))
		}
	}
	return errors.Join(errs...)
}

// Info reports the history of every configured target. Multi-tenant units are
// reported for the tenants their TenantSupport lists; unconfigured targets are skipped.
func (m *MigrationManager) Info(ctx context.Context) ([]Info, error) {
	snapshot, registry, _, err := m.prepared()
	if err != nil {
		return nil, err
	}

	var result []Info
	for _, unit := range snapshot.Units() {
		for _, target := range m.targetsOf(unit) {
			container, err := registry.GetOrCreate(ctx, target)
			if err != nil {
				return nil, err
			}
			if container.Unconfigured() {
				continue
			}
			runner, err := container.Runner()
			if err != nil {
				return nil, err
			}
			info, err := runner.Info(ctx)
			if err != nil {
				return nil, errorx.Decorate(err, "unable to read migration info for %s", target)
			}
			info.Target = container.Target()
			result = append(result, info)
		}
	}
	return result, nil
}

func (m *MigrationManager) targetsOf(unit string) []Target {
	_, build := m.config.Resolve(unit)
	if !build.MultiTenant {
		return []Target{UnitTarget(unit)}
	}
	support, ok := m.tenants[canonicalUnit(unit)]
	if !ok || support == nil {
		return nil
	}
	var targets []Target
	for _, tenant := range support.TenantsToInitialize() {
		if tenant != "" {
			targets = append(targets, TenantTarget(unit, tenant))
		}
	}
	return targets
}

package mt_migrator

import (
	"context"
	"sync"
	"testing"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, config Config, provider DataSourceProvider, engine Engine, options ...func(*RegistryDeps)) *ContainerRegistry {
	t.Helper()

	catalog := NewCatalog(quietLogger(), memFs(t, "db/migration/V1__init.sql"))
	snapshot, err := BuildSnapshot(config, catalog, nil, nil)
	require.NoError(t, err)

	deps := RegistryDeps{
		Snapshot:    snapshot,
		Config:      config,
		DataSources: provider,
		Engine:      engine,
		Logger:      quietLogger(),
	}
	for _, option := range options {
		option(&deps)
	}

	registry, err := NewContainerRegistry(deps)
	require.NoError(t, err)
	return registry
}

func multiTenantConfig() Config {
	return Config{
		Default: UnitConfig{Runtime: RuntimeConfig{MigrateAtStart: true}},
		Units: map[string]UnitConfig{
			"named": {
				Runtime: RuntimeConfig{MigrateAtStart: true},
				Build:   BuildTimeConfig{MultiTenant: true, DataSource: DefaultUnit},
			},
			"missing": {
				Build: BuildTimeConfig{DataSource: "missing-ds"},
			},
		},
	}
}

func TestRegistryRequiresCollaborators(t *testing.T) {
	_, err := NewContainerRegistry(RegistryDeps{Engine: &fakeEngine{}})
	assert.True(t, errorx.IsOfType(err, errorx.IllegalArgument))

	_, err = NewContainerRegistry(RegistryDeps{Snapshot: &Snapshot{}})
	assert.True(t, errorx.IsOfType(err, errorx.IllegalArgument))
}

func TestRegistryMemoizesContainers(t *testing.T) {
	engine := &fakeEngine{}
	registry := newTestRegistry(t, multiTenantConfig(), newFakeProvider(nil, DefaultUnit), engine)
	ctx := context.Background()

	first, err := registry.GetOrCreate(ctx, UnitTarget(DefaultUnit))
	require.NoError(t, err)
	second, err := registry.GetOrCreate(ctx, UnitTarget("<default>"))
	require.NoError(t, err)
	third, err := registry.GetOrCreate(ctx, TenantTarget(DefaultUnit, "acme"))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Same(t, first, third)
	assert.Equal(t, TenantTarget(DefaultUnit, DefaultTenant), first.Target())
	assert.Equal(t, "default_default", first.Id())
	assert.Equal(t, 1, engine.ConfigureCount())
}

func TestRegistryBuildsOneContainerPerTenant(t *testing.T) {
	engine := &fakeEngine{}
	registry := newTestRegistry(t, multiTenantConfig(), newFakeProvider(nil, DefaultUnit), engine)
	ctx := context.Background()

	acme, err := registry.GetOrCreate(ctx, TenantTarget("named", "acme"))
	require.NoError(t, err)
	globex, err := registry.GetOrCreate(ctx, TenantTarget("named", "globex"))
	require.NoError(t, err)
	again, err := registry.GetOrCreate(ctx, TenantTarget("named", "acme"))
	require.NoError(t, err)

	assert.NotSame(t, acme, globex)
	assert.Same(t, acme, again)
	assert.True(t, acme.MultiTenancyEnabled())
	assert.Equal(t, "named_acme", acme.Id())
	assert.Equal(t, "named_globex", globex.Id())
	assert.Equal(t, 2, engine.ConfigureCount())
}

func TestRegistryRejectsUnqualifiedMultiTenantTarget(t *testing.T) {
	engine := &fakeEngine{}
	registry := newTestRegistry(t, multiTenantConfig(), newFakeProvider(nil, DefaultUnit), engine)

	_, err := registry.GetOrCreate(context.Background(), UnitTarget("named"))
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, ConfigurationError))
	assert.Zero(t, engine.ConfigureCount())
}

func TestRegistryUnconfiguredContainer(t *testing.T) {
	engine := &fakeEngine{}
	registry := newTestRegistry(t, multiTenantConfig(), newFakeProvider(nil, DefaultUnit), engine)

	container, err := registry.GetOrCreate(context.Background(), UnitTarget("missing"))
	require.NoError(t, err)
	assert.True(t, container.Unconfigured())
	assert.Equal(t, "missing-ds", container.DataSourceName())
	assert.Contains(t, container.Diagnostic(), "missing-ds")
	assert.Nil(t, container.DataSource())

	runner, err := container.Runner()
	require.Error(t, err)
	assert.Nil(t, runner)
	assert.True(t, errorx.IsOfType(err, UnconfiguredAccess))
	assert.Contains(t, err.Error(), "missing-ds")
	assert.Zero(t, engine.ConfigureCount())
}

func TestRegistryPropagatesProviderFailures(t *testing.T) {
	provider := &failingProvider{err: errorx.IllegalState.New("pool closed")}
	registry := newTestRegistry(t, Config{}, provider, &fakeEngine{})

	_, err := registry.GetOrCreate(context.Background(), UnitTarget(DefaultUnit))
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, errorx.IllegalState))
}

func TestRegistryContainerFlags(t *testing.T) {
	config := Config{
		Default: UnitConfig{Runtime: RuntimeConfig{
			CleanAtStart:    true,
			ValidateAtStart: true,
			BaselineAtStart: true,
			RepairAtStart:   true,
			MigrateAtStart:  true,
		}},
		Units: map[string]UnitConfig{
			"reporting": {Build: BuildTimeConfig{Locations: []string{"db/reporting"}}},
			"archive":   {Build: BuildTimeConfig{Locations: []string{"db/archive"}}},
		},
	}
	generators := SQLGenerators{"reporting": func() string { return "create table report ()" }}
	registry := newTestRegistry(t, config,
		newFakeProvider(nil, DefaultUnit, "reporting", "archive"), &fakeEngine{},
		func(deps *RegistryDeps) { deps.Generators = generators })
	ctx := context.Background()

	primary, err := registry.GetOrCreate(ctx, UnitTarget(DefaultUnit))
	require.NoError(t, err)
	assert.True(t, primary.CleanAtStart())
	assert.True(t, primary.ValidateAtStart())
	assert.True(t, primary.BaselineAtStart())
	assert.True(t, primary.RepairAtStart())
	assert.True(t, primary.MigrateAtStart())
	assert.True(t, primary.HasMigrations())
	assert.False(t, primary.CreatePossible())
	assert.False(t, primary.MultiTenancyEnabled())

	reporting, err := registry.GetOrCreate(ctx, UnitTarget("reporting"))
	require.NoError(t, err)
	assert.False(t, reporting.MigrateAtStart())
	assert.False(t, reporting.HasMigrations())
	assert.True(t, reporting.CreatePossible())

	archive, err := registry.GetOrCreate(ctx, UnitTarget("archive"))
	require.NoError(t, err)
	assert.False(t, archive.CreatePossible())
}

func TestRegistryAppliesCustomizersToACopy(t *testing.T) {
	config := Config{
		Default: UnitConfig{Runtime: RuntimeConfig{Placeholders: map[string]string{"owner": "app"}}},
		Units: map[string]UnitConfig{
			"orders": {Build: BuildTimeConfig{Locations: []string{"db/migration"}}},
		},
	}
	customizers := []CustomizerBinding{
		Bind(Unqualified(), ConfigCustomizerFunc(func(opts *RunnerOptions) {
			opts.Runtime.Placeholders["owner"] = "admin"
			opts.Runtime.Table = "custom_history"
		})),
		Bind(ForUnit("orders"), ConfigCustomizerFunc(func(opts *RunnerOptions) {
			opts.Build.Locations[0] = "db/changed"
			opts.Runtime.CleanDisabled = true
		})),
	}
	engine := &fakeEngine{}
	registry := newTestRegistry(t, config, newFakeProvider(nil, DefaultUnit, "orders"), engine,
		func(deps *RegistryDeps) { deps.Customizers = customizers })
	ctx := context.Background()

	_, err := registry.GetOrCreate(ctx, UnitTarget(DefaultUnit))
	require.NoError(t, err)
	_, err = registry.GetOrCreate(ctx, UnitTarget("orders"))
	require.NoError(t, err)

	require.Len(t, engine.configured, 2)
	primary, orders := engine.configured[0], engine.configured[1]
	assert.Equal(t, "custom_history", primary.Runtime.Table)
	assert.Equal(t, "admin", primary.Runtime.Placeholders["owner"])
	assert.Equal(t, []string{"db/migration/V1__init.sql"}, primary.Locations)
	assert.NotNil(t, primary.Resources)

	assert.Equal(t, DefaultHistoryTable, orders.Runtime.Table)
	assert.True(t, orders.Runtime.CleanDisabled)
	assert.Equal(t, []string{"db/changed"}, orders.Build.Locations)

	assert.Equal(t, "app", config.Default.Runtime.Placeholders["owner"])
	assert.Equal(t, []string{"db/migration"}, config.Units["orders"].Build.Locations)
}

func TestRegistryRetriesFailedConstruction(t *testing.T) {
	attempts := 0
	engine := &fakeEngine{failConfigure: func(Target) error {
		attempts++
		if attempts == 1 {
			return errorx.IllegalState.New("engine warming up")
		}
		return nil
	}}
	registry := newTestRegistry(t, multiTenantConfig(), newFakeProvider(nil, DefaultUnit), engine)
	ctx := context.Background()

	_, err := registry.GetOrCreate(ctx, TenantTarget("named", "acme"))
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, errorx.IllegalState))
	assert.Zero(t, engine.ConfigureCount())

	container, err := registry.GetOrCreate(ctx, TenantTarget("named", "acme"))
	require.NoError(t, err)
	again, err := registry.GetOrCreate(ctx, TenantTarget("named", "acme"))
	require.NoError(t, err)
	assert.Same(t, container, again)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, engine.ConfigureCount())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	engine := &fakeEngine{}
	registry := newTestRegistry(t, multiTenantConfig(), newFakeProvider(nil, DefaultUnit), engine)
	ctx := context.Background()

	const workers = 32
	containers := make([]*Container, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			container, err := registry.GetOrCreate(ctx, TenantTarget("named", "acme"))
			assert.NoError(t, err)
			containers[i] = container
		}(i)
	}
	wg.Wait()

	for _, container := range containers {
		assert.Same(t, containers[0], container)
	}
	assert.Equal(t, 1, engine.ConfigureCount())
}

type failingProvider struct {
	err error
}

func (p *failingProvider) DataSource(string) (*DataSource, error) {
	return nil, p.err
}

func (p *failingProvider) ActiveDataSourceNames() []string {
	return nil
}

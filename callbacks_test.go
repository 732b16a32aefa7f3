package mt_migrator

import (
	"context"
	"database/sql"
	"testing"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type auditCallback struct {
	name string
}

func (c *auditCallback) Supports(event Event) bool {
	return event == BeforeMigrate || event == AfterMigrate
}

func (c *auditCallback) Handle(context.Context, Event, CallbackContext) error {
	return nil
}

type seedMigration struct{}

func (seedMigration) Version() string                   { return "5" }
func (seedMigration) Description() string               { return "seed" }
func (seedMigration) Up(context.Context, *sql.Tx) error { return nil }

func callbackIndex() *TypeIndex {
	return NewTypeIndex(
		Concrete("hooks.Audit", func() *auditCallback { return &auditCallback{name: "audit"} }),
		Concrete("hooks.Metrics", func() *auditCallback { return &auditCallback{name: "metrics"} }),
		Abstract("hooks.Base"),
		TypeDescriptor{Name: "hooks.NeedsArgs"},
		Concrete("hooks.NotACallback", func() int { return 42 }),
	)
}

func TestResolveCallbacksKeepsDeclarationOrder(t *testing.T) {
	set, err := ResolveCallbacks(callbackIndex(), []string{DefaultUnit, "orders"}, map[string][]string{
		DefaultUnit: {"hooks.Metrics", "hooks.Audit"},
		"orders":    {"hooks.Audit"},
	})
	require.NoError(t, err)

	callbacks := set.For("<default>")
	require.Len(t, callbacks, 2)
	assert.Equal(t, "metrics", callbacks[0].(*auditCallback).name)
	assert.Equal(t, "audit", callbacks[1].(*auditCallback).name)
	assert.Len(t, set.For("orders"), 1)
	assert.Empty(t, set.For("unknown"))
	assert.Equal(t, []string{"hooks.Audit", "hooks.Metrics"}, set.Retained())

	callbacks[0] = nil
	assert.NotNil(t, set.For(DefaultUnit)[0])
}

func TestResolveCallbacksRejectsInvalidTypes(t *testing.T) {
	cases := map[string]string{
		"hooks.Missing":      "please verify the fully qualified name of the type: hooks.Missing",
		"hooks.Base":         "invalid migration callback hooks.Base for unit orders",
		"hooks.NeedsArgs":    "must have a no-argument constructor",
		"hooks.NotACallback": "does not implement Callback",
	}
	for name, message := range cases {
		_, err := ResolveCallbacks(callbackIndex(), []string{"orders"}, map[string][]string{
			"orders": {"hooks.Audit", name},
		})
		require.Error(t, err, name)
		assert.True(t, errorx.IsOfType(err, ConfigurationError), name)
		assert.Contains(t, err.Error(), message)
	}
}

func TestAbstractCallbackFailsBeforeAnyContainer(t *testing.T) {
	engine := &fakeEngine{}
	manager, err := NewMigrationsManager(
		WithLogger(quietLogger()),
		WithEngine(engine),
		WithDataSources(newFakeProvider([]string{DefaultUnit}, DefaultUnit)),
		WithTypes(Abstract("hooks.Base")),
		WithConfig(Config{Default: UnitConfig{
			Runtime: RuntimeConfig{MigrateAtStart: true},
			Build:   BuildTimeConfig{Callbacks: []string{"hooks.Base"}},
		}}),
	)
	require.NoError(t, err)

	err = manager.Prepare()
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, ConfigurationError))
	assert.Contains(t, err.Error(), "hooks.Base")

	require.Error(t, manager.StartAll(context.Background()))
	assert.Zero(t, engine.ConfigureCount())
}

func TestResolveMigrationClasses(t *testing.T) {
	classes := ResolveMigrationClasses([]TypeDescriptor{
		Concrete("migrations.Seed", func() seedMigration { return seedMigration{} }),
		Abstract("migrations.Base"),
		Concrete("migrations.Another", func() seedMigration { return seedMigration{} }),
		Concrete("migrations.Seed", func() seedMigration { return seedMigration{} }),
		{Name: "migrations.NoCtor"},
	})

	names := make([]string, 0, len(classes))
	for _, class := range classes {
		names = append(names, class.Name)
	}
	assert.Equal(t, []string{"migrations.Another", "migrations.NoCtor", "migrations.Seed"}, names)

	migration, err := classes[2].Instantiate()
	require.NoError(t, err)
	assert.Equal(t, "5", migration.Version())

	_, err = classes[1].Instantiate()
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, ConfigurationError))
}

func TestInvokeCallbacksStopsAtFirstFailure(t *testing.T) {
	var handled []Event
	failing := callbackFunc(func(event Event) error {
		handled = append(handled, event)
		return errorx.IllegalState.New("boom")
	})
	counting := callbackFunc(func(event Event) error {
		handled = append(handled, event)
		return nil
	})

	err := InvokeCallbacks(context.Background(), []Callback{counting, failing, counting}, BeforeClean,
		CallbackContext{Target: UnitTarget(DefaultUnit)})
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, errorx.IllegalState))
	assert.Equal(t, []Event{BeforeClean, BeforeClean}, handled)

	handled = nil
	require.NoError(t, InvokeCallbacks(context.Background(), []Callback{&auditCallback{}}, BeforeClean, CallbackContext{}))
	assert.Empty(t, handled)
}

type callbackFunc func(event Event) error

func (f callbackFunc) Supports(Event) bool { return true }

func (f callbackFunc) Handle(_ context.Context, event Event, _ CallbackContext) error {
	return f(event)
}

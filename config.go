package mt_migrator

import "sort"

// RuntimeConfig holds the per-unit settings read at startup.
type RuntimeConfig struct {
	// Active overrides the data source activity when set.
	Active *bool `mapstructure:"active"`

	CleanAtStart    bool `mapstructure:"clean-at-start"`
	ValidateAtStart bool `mapstructure:"validate-at-start"`
	BaselineAtStart bool `mapstructure:"baseline-at-start"`
	RepairAtStart   bool `mapstructure:"repair-at-start"`
	MigrateAtStart  bool `mapstructure:"migrate-at-start"`

	CleanDisabled           bool              `mapstructure:"clean-disabled"`
	BaselineVersion         string            `mapstructure:"baseline-version"`
	BaselineDescription     string            `mapstructure:"baseline-description"`
	Table                   string            `mapstructure:"table"`
	TargetVersion           string            `mapstructure:"target-version"`
	IgnoreMissingMigrations bool              `mapstructure:"ignore-missing-migrations"`
	Placeholders            map[string]string `mapstructure:"placeholders"`
}

// BuildTimeConfig holds settings fixed before any container is built.
type BuildTimeConfig struct {
	// DataSource defaults to the unit name.
	DataSource  string   `mapstructure:"data-source"`
	MultiTenant bool     `mapstructure:"multi-tenant"`
	Locations   []string `mapstructure:"locations"`
	Callbacks   []string `mapstructure:"callbacks"`

	SQLMigrationPrefix           string   `mapstructure:"sql-migration-prefix"`
	RepeatableSQLMigrationPrefix string   `mapstructure:"repeatable-sql-migration-prefix"`
	SQLMigrationSuffixes         []string `mapstructure:"sql-migration-suffixes"`
}

type UnitConfig struct {
	Runtime RuntimeConfig   `mapstructure:"runtime"`
	Build   BuildTimeConfig `mapstructure:"build"`
}

// Config holds the default unit configuration plus named overrides.
type Config struct {
	Default UnitConfig            `mapstructure:"default"`
	Units   map[string]UnitConfig `mapstructure:"units"`
}

const (
	DefaultLocation            = "db/migration"
	DefaultHistoryTable        = "schema_history"
	DefaultBaselineVersion     = "1"
	DefaultBaselineDescription = "<< Baseline >>"
)

// Resolve returns the named override for unit, or the default unit configuration.
// It never fails.
func (c Config) Resolve(unit string) (RuntimeConfig, BuildTimeConfig) {
	uc := c.Default
	if !IsDefaultUnit(unit) {
		if named, ok := c.Units[unit]; ok {
			uc = named
		}
	}
	return uc.Runtime.withDefaults(), uc.Build.withDefaults()
}

// UnitNames returns the default unit followed by every named unit.
func (c Config) UnitNames() []string {
	names := []string{DefaultUnit}
	for name := range c.Units {
		if !IsDefaultUnit(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names[1:])
	return names
}

func (r RuntimeConfig) withDefaults() RuntimeConfig {
	if r.BaselineVersion == "" {
		r.BaselineVersion = DefaultBaselineVersion
	}
	if r.BaselineDescription == "" {
		r.BaselineDescription = DefaultBaselineDescription
	}
	if r.Table == "" {
		r.Table = DefaultHistoryTable
	}
	return r
}

func (b BuildTimeConfig) withDefaults() BuildTimeConfig {
	if len(b.Locations) == 0 {
		b.Locations = []string{DefaultLocation}
	}
	if b.SQLMigrationPrefix == "" {
		b.SQLMigrationPrefix = "V"
	}
	if b.RepeatableSQLMigrationPrefix == "" {
		b.RepeatableSQLMigrationPrefix = "R"
	}
	if len(b.SQLMigrationSuffixes) == 0 {
		b.SQLMigrationSuffixes = []string{".sql"}
	}
	return b
}

// DataSourceName returns the data source backing unit.
func (b BuildTimeConfig) DataSourceName(unit string) string {
	if b.DataSource != "" {
		return b.DataSource
	}
	return canonicalUnit(unit)
}

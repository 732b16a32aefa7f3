package mt_migrator

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

type ManagerOption func(*MigrationManager)

func WithLogger(logger logrus.FieldLogger) ManagerOption {
	return func(m *MigrationManager) {
		m.logger = logger
	}
}

func WithConfig(config Config) ManagerOption {
	return func(m *MigrationManager) {
		m.config = config
	}
}

// WithResourceRoots adds roots searched for classpath-style locations.
func WithResourceRoots(roots ...afero.Fs) ManagerOption {
	return func(m *MigrationManager) {
		m.roots = append(m.roots, roots...)
	}
}

// WithTypes makes declared types, such as callbacks, resolvable by name.
func WithTypes(types ...TypeDescriptor) ManagerOption {
	return func(m *MigrationManager) {
		m.index.Register(types...)
	}
}

// WithMigrationClasses offers code migration candidates to the engine.
func WithMigrationClasses(candidates ...TypeDescriptor) ManagerOption {
	return func(m *MigrationManager) {
		m.candidates = append(m.candidates, candidates...)
	}
}

func WithDataSources(provider DataSourceProvider) ManagerOption {
	return func(m *MigrationManager) {
		m.dataSources = provider
	}
}

func WithEngine(engine Engine) ManagerOption {
	return func(m *MigrationManager) {
		m.engine = engine
	}
}

func WithSQLGenerators(generators SQLGeneratorRegistry) ManagerOption {
	return func(m *MigrationManager) {
		m.generators = generators
	}
}

func WithCustomizer(selector Selector, customizer ConfigCustomizer) ManagerOption {
	return func(m *MigrationManager) {
		m.customizers = append(m.customizers, Bind(selector, customizer))
	}
}

// WithTenantSupport registers the tenants to initialize for a multi-tenant unit.
func WithTenantSupport(unit string, support TenantSupport) ManagerOption {
	return func(m *MigrationManager) {
		m.tenants[canonicalUnit(unit)] = support
	}
}

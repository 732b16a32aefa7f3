package commands

import (
	mt "github.com/Maksumys/mt-migrator"
	"github.com/Maksumys/mt-migrator/datasource"
	"github.com/Maksumys/mt-migrator/gormengine"
	"github.com/Maksumys/mt-migrator/internal/config"
	"github.com/Maksumys/mt-migrator/migrateengine"
	"github.com/spf13/afero"
)

// newManager wires the migrations manager described by settings. The caller
// closes the returned pool.
func newManager(settings config.Settings) (*mt.MigrationManager, *datasource.Pool, error) {
	logger := settings.Logger()
	pool := datasource.NewPool(settings.DataSources, logger)

	var engine mt.Engine
	switch settings.Engine {
	case config.EngineMigrate:
		engine = migrateengine.New(migrateengine.WithLogger(logger))
	default:
		engine = gormengine.New(gormengine.WithLogger(logger))
	}

	osFs := afero.NewOsFs()
	roots := make([]afero.Fs, 0, len(settings.ResourceRoots))
	for _, root := range settings.ResourceRoots {
		roots = append(roots, afero.NewReadOnlyFs(afero.NewBasePathFs(osFs, root)))
	}

	opts := []mt.ManagerOption{
		mt.WithLogger(logger),
		mt.WithConfig(settings.Migrations),
		mt.WithResourceRoots(roots...),
		mt.WithDataSources(pool),
		mt.WithEngine(engine),
	}
	for unit, support := range settings.TenantSupport() {
		opts = append(opts, mt.WithTenantSupport(unit, support))
	}

	manager, err := mt.NewMigrationsManager(opts...)
	if err != nil {
		_ = pool.Close()
		return nil, nil, err
	}
	return manager, pool, nil
}

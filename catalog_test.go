package mt_migrator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joomcode/errorx"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenFs fails every lookup with a permission error.
type brokenFs struct {
	afero.Fs
}

func (brokenFs) Stat(name string) (os.FileInfo, error) {
	return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrPermission}
}

func TestDiscoverReRootsFilesUnderLocation(t *testing.T) {
	root := memFs(t,
		"db/migration/V1__init.sql",
		"db/migration/nested/V2__more.sql",
		"db/other/V1__other.sql",
	)
	catalog := NewCatalog(quietLogger(), root)

	locations, err := catalog.Discover([]string{"classpath:db/migration"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"db/migration/V1__init.sql",
		"db/migration/nested/V2__more.sql",
	}, locations)
}

func TestDiscoverDeduplicatesAcrossRootsAndLocations(t *testing.T) {
	first := memFs(t, "db/migration/V1__init.sql")
	second := memFs(t, "db/migration/V1__init.sql", "db/migration/V2__next.sql")
	catalog := NewCatalog(quietLogger(), first, second)

	input := []string{"db/migration", "classpath:/db/migration/", "db\\migration"}
	locations, err := catalog.Discover(input)
	require.NoError(t, err)
	assert.Equal(t, []string{"db/migration/V1__init.sql", "db/migration/V2__next.sql"}, locations)

	again, err := catalog.Discover(input)
	require.NoError(t, err)
	assert.Equal(t, locations, again)
	for _, location := range again {
		assert.False(t, strings.Contains(location, "\\"))
	}
}

func TestDiscoverEmitsFilesystemLocationsVerbatim(t *testing.T) {
	catalog := NewCatalog(quietLogger(), memFs(t, "db/migration/V1__init.sql"))

	locations, err := catalog.Discover([]string{
		"filesystem:/srv/migrations",
		"filesystem:C:\\migrations",
		"filesystem:/srv/migrations",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"filesystem:/srv/migrations", "filesystem:C:/migrations"}, locations)
}

func TestDiscoverSingleScriptLocation(t *testing.T) {
	catalog := NewCatalog(quietLogger(), memFs(t, "db/migration/V1__init.sql", "db/migration/V2__next.sql"))

	locations, err := catalog.Discover([]string{"db/migration/V1__init.sql", "classpath:/db/migration/V2__next.sql/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"db/migration/V1__init.sql", "db/migration/V2__next.sql"}, locations)

	data, err := catalog.ReadFile(locations[0])
	require.NoError(t, err)
	assert.Equal(t, "-- db/migration/V1__init.sql", string(data))
}

func TestDiscoverWholeResourceRoot(t *testing.T) {
	catalog := NewCatalog(quietLogger(), memFs(t, "db/migration/V1__init.sql", "V0__top.sql"))

	locations, err := catalog.Discover([]string{"classpath:"})
	require.NoError(t, err)
	assert.Equal(t, []string{"V0__top.sql", "db/migration/V1__init.sql"}, locations)
	for _, location := range locations {
		assert.False(t, strings.HasPrefix(location, "/"), location)
	}
}

func TestDiscoverRejectsBlankLocation(t *testing.T) {
	catalog := NewCatalog(quietLogger(), memFs(t))

	_, err := catalog.Discover([]string{"db/migration", "  "})
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, ConfigurationError))
}

func TestDiscoverSkipsUnreadableRoots(t *testing.T) {
	healthy := memFs(t, "db/migration/V1__init.sql")
	catalog := NewCatalog(quietLogger(), brokenFs{Fs: afero.NewMemMapFs()}, healthy, memFs(t))

	locations, err := catalog.Discover([]string{"db/migration"})
	require.NoError(t, err)
	assert.Equal(t, []string{"db/migration/V1__init.sql"}, locations)
}

func TestNormalizeLocation(t *testing.T) {
	cases := map[string]string{
		"db/migration":                "db/migration/",
		"classpath:db/migration":      "db/migration/",
		"classpath:/db/migration/":    "db/migration/",
		"db\\migration\\tenants":      "db/migration/tenants/",
		"filesystem:/var/lib/sql":     "filesystem:/var/lib/sql",
		"  filesystem:D:\\sql\\all  ": "filesystem:D:/sql/all",
		"classpath:":                  "",
		"classpath:/":                 "",
	}
	for input, expected := range cases {
		assert.Equal(t, expected, NormalizeLocation(input), input)
	}
}

func TestCatalogReadsAndListsResources(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "V2__b.sql"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "V1__a.sql"), []byte("a"), 0o644))

	catalog := NewCatalog(quietLogger(), memFs(t, "db/migration/V1__init.sql"))
	location := FilesystemPrefix + filepath.ToSlash(dir)

	files, err := catalog.List(location)
	require.NoError(t, err)
	assert.Equal(t, []string{location + "/V2__b.sql", location + "/sub/V1__a.sql"}, files)

	data, err := catalog.ReadFile(location + "/sub/V1__a.sql")
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))

	data, err = catalog.ReadFile("db/migration/V1__init.sql")
	require.NoError(t, err)
	assert.Equal(t, "-- db/migration/V1__init.sql", string(data))

	files, err = catalog.List("db/migration/V1__init.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"db/migration/V1__init.sql"}, files)

	_, err = catalog.ReadFile("db/migration/V9__absent.sql")
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, ResourceNotFound))

	_, err = catalog.List(FilesystemPrefix + filepath.ToSlash(filepath.Join(dir, "absent")))
	require.Error(t, err)
	assert.True(t, errorx.HasTrait(err, errorx.NotFound()))
}

func TestMigrationStateFactsPartitionUnits(t *testing.T) {
	catalog := NewCatalog(quietLogger(), memFs(t, "db/migration/V1__init.sql"))
	config := Config{
		Units: map[string]UnitConfig{
			"reporting": {Build: BuildTimeConfig{Locations: []string{"db/reporting"}}},
		},
	}

	snapshot, err := BuildSnapshot(config, catalog, nil, nil)
	require.NoError(t, err)

	facts := snapshot.Facts()
	assert.Equal(t, []string{"default"}, facts.WithMigrations())
	assert.Equal(t, []string{"reporting"}, facts.MissingMigrations())
	assert.True(t, facts.HasMigrations("<default>"))
	assert.False(t, facts.HasMigrations("reporting"))

	for _, unit := range snapshot.Units() {
		with := facts.HasMigrations(unit)
		missing := false
		for _, m := range facts.MissingMigrations() {
			missing = missing || m == unit
		}
		assert.NotEqual(t, with, missing, unit)
	}
}

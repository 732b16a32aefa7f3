package mt_migrator

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const (
	ClasspathPrefix  = "classpath:"
	FilesystemPrefix = "filesystem:"
)

// Catalog discovers migration resources below a set of resource roots.
type Catalog struct {
	roots  []afero.Fs
	osFs   afero.Fs
	logger logrus.FieldLogger
}

func NewCatalog(logger logrus.FieldLogger, roots ...afero.Fs) *Catalog {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Catalog{
		roots:  roots,
		osFs:   afero.NewOsFs(),
		logger: logger,
	}
}

// Discover expands locations into the ordered, deduplicated set of migration resources.
// Filesystem-prefixed locations are emitted as they are; every other location is walked
// in each root. A root that cannot be walked contributes nothing.
func (c *Catalog) Discover(locations []string) ([]string, error) {
	result := make([]string, 0)
	seen := make(map[string]struct{})
	add := func(location string) {
		if _, ok := seen[location]; ok {
			return
		}
		seen[location] = struct{}{}
		result = append(result, location)
	}

	for i, raw := range locations {
		if strings.TrimSpace(raw) == "" {
			return nil, ConfigurationError.New("migration location #%d must not be empty", i)
		}

		location := NormalizeLocation(raw)
		if strings.HasPrefix(location, FilesystemPrefix) {
			add(location)
			continue
		}

		for _, root := range c.roots {
			files, err := walkLocation(root, strings.TrimSuffix(location, "/"), location)
			if err != nil {
				entry := c.logger.WithError(err).WithField("location", location)
				if os.IsNotExist(err) {
					entry.Debug("migration location not present in resource root")
				} else {
					entry.Warn("unable to scan migration location, skipping resource root")
				}
				continue
			}
			for _, file := range files {
				add(file)
			}
		}
	}

	return result, nil
}

// NormalizeLocation strips the classpath marker, canonicalizes separators and
// terminates non-filesystem locations with a slash. The resource root itself
// normalizes to the empty string.
func NormalizeLocation(location string) string {
	location = strings.ReplaceAll(strings.TrimSpace(location), "\\", "/")
	if strings.HasPrefix(location, FilesystemPrefix) {
		return location
	}
	location = strings.TrimPrefix(location, ClasspathPrefix)
	location = strings.TrimPrefix(location, "/")
	if location != "" && !strings.HasSuffix(location, "/") {
		location += "/"
	}
	return location
}

// walkLocation lists the regular files below dir, re-rooted under prefix. When
// dir is itself a file, prefix without its trailing slash is the only entry.
func walkLocation(root afero.Fs, dir, prefix string) ([]string, error) {
	if dir == "" {
		dir = "."
	}

	var files []string
	err := afero.Walk(root, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			files = append(files, strings.TrimSuffix(prefix, "/"))
			return nil
		}
		files = append(files, prefix+filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (c *Catalog) ReadFile(location string) ([]byte, error) {
	if path, ok := strings.CutPrefix(location, FilesystemPrefix); ok {
		data, err := afero.ReadFile(c.osFs, filepath.FromSlash(path))
		if err != nil {
			return nil, ResourceNotFound.Wrap(err, "unable to read migration resource %s", location)
		}
		return data, nil
	}

	for _, root := range c.roots {
		data, err := afero.ReadFile(root, location)
		if err == nil {
			return data, nil
		}
	}
	return nil, ResourceNotFound.New("migration resource %s not found in any resource root", location)
}

// List returns location itself, unless it is a filesystem directory, which is
// expanded into the regular files below it in lexical order.
func (c *Catalog) List(location string) ([]string, error) {
	path, ok := strings.CutPrefix(location, FilesystemPrefix)
	if !ok {
		return []string{location}, nil
	}

	info, err := c.osFs.Stat(filepath.FromSlash(path))
	if err != nil {
		return nil, ResourceNotFound.Wrap(err, "unable to read migration location %s", location)
	}
	if !info.IsDir() {
		return []string{location}, nil
	}

	dir := strings.TrimSuffix(path, "/")
	files, err := walkLocation(c.osFs, filepath.FromSlash(dir), FilesystemPrefix+dir+"/")
	if err != nil {
		return nil, ResourceNotFound.Wrap(err, "unable to scan migration location %s", location)
	}
	sort.Strings(files)
	return files, nil
}

// ExpandLocations flattens discovered locations into individual resources.
func ExpandLocations(resources ResourceReader, locations []string) ([]string, error) {
	var result []string
	for _, location := range locations {
		files, err := resources.List(location)
		if err != nil {
			return nil, err
		}
		result = append(result, files...)
	}
	return result, nil
}

// MigrationStateFacts partitions units into those with and without migrations.
type MigrationStateFacts struct {
	has     map[string]struct{}
	missing map[string]struct{}
}

// BuildMigrationStateFacts places every unit in exactly one of the two sets.
func BuildMigrationStateFacts(units []string, discovered map[string][]string) MigrationStateFacts {
	facts := MigrationStateFacts{
		has:     make(map[string]struct{}),
		missing: make(map[string]struct{}),
	}
	for _, unit := range units {
		unit = canonicalUnit(unit)
		if len(discovered[unit]) > 0 {
			facts.has[unit] = struct{}{}
			delete(facts.missing, unit)
		} else if _, ok := facts.has[unit]; !ok {
			facts.missing[unit] = struct{}{}
		}
	}
	return facts
}

func (f MigrationStateFacts) HasMigrations(unit string) bool {
	_, ok := f.has[canonicalUnit(unit)]
	return ok
}

func (f MigrationStateFacts) WithMigrations() []string {
	return sortedKeys(f.has)
}

func (f MigrationStateFacts) MissingMigrations() []string {
	return sortedKeys(f.missing)
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
